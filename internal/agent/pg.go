package agent

// #region pg

// pgUpdater is plain REINFORCE: policy-gradient ascent on discounted
// returns with a per-episode mean baseline.
type pgUpdater struct {
	pol *linearPolicy
}

func newPGUpdater() *pgUpdater { return &pgUpdater{} }

func (u *pgUpdater) name() string { return "pg" }

func (u *pgUpdater) init(obsDim, nActions int, lr float64, seed int64) {
	u.pol = newLinearPolicy(obsDim, nActions, lr, seed)
}

func (u *pgUpdater) policy(obs []float64) []float64 {
	return u.pol.distribution(obs)
}

func (u *pgUpdater) update(ep *episode) {
	if len(ep.steps) == 0 {
		return
	}
	var baseline float64
	for _, g := range ep.returns {
		baseline += g
	}
	baseline /= float64(len(ep.returns))

	u.pol.mu.Lock()
	defer u.pol.mu.Unlock()
	for i, st := range ep.steps {
		u.pol.addLogGradLocked(st.Obs, ep.probs[i], st.Action, ep.returns[i]-baseline)
	}
}

// #endregion pg
