package agent

// #region a2c

// a2cUpdater is advantage actor-critic: the policy gradient is scaled
// by the advantage against a learned linear value head, which is fit
// toward the discounted returns after each episode.
type a2cUpdater struct {
	pol *linearPolicy
	val *valueHead
}

func newA2CUpdater() *a2cUpdater { return &a2cUpdater{} }

func (u *a2cUpdater) name() string { return "a2c" }

func (u *a2cUpdater) init(obsDim, nActions int, lr float64, seed int64) {
	u.pol = newLinearPolicy(obsDim, nActions, lr, seed)
	u.val = newValueHead(obsDim, lr)
}

func (u *a2cUpdater) policy(obs []float64) []float64 {
	return u.pol.distribution(obs)
}

func (u *a2cUpdater) update(ep *episode) {
	if len(ep.steps) == 0 {
		return
	}
	u.pol.mu.Lock()
	defer u.pol.mu.Unlock()
	for i, st := range ep.steps {
		advantage := ep.returns[i] - u.val.value(st.Obs)
		u.pol.addLogGradLocked(st.Obs, ep.probs[i], st.Action, advantage)
		u.val.fit(st.Obs, ep.returns[i])
	}
}

// #endregion a2c
