package agent

// #region ppo

const (
	ppoClip   = 0.2
	ppoEpochs = 3
)

// ppoUpdater runs the clipped-surrogate update: several epochs over the
// episode, each step weighted by the probability ratio against the
// rollout policy and clipped to [1-eps, 1+eps].
type ppoUpdater struct {
	pol *linearPolicy
	val *valueHead
}

func newPPOUpdater() *ppoUpdater { return &ppoUpdater{} }

func (u *ppoUpdater) name() string { return "ppo" }

func (u *ppoUpdater) init(obsDim, nActions int, lr float64, seed int64) {
	u.pol = newLinearPolicy(obsDim, nActions, lr, seed)
	u.val = newValueHead(obsDim, lr)
}

func (u *ppoUpdater) policy(obs []float64) []float64 {
	return u.pol.distribution(obs)
}

func (u *ppoUpdater) update(ep *episode) {
	if len(ep.steps) == 0 {
		return
	}
	for epoch := 0; epoch < ppoEpochs; epoch++ {
		for i, st := range ep.steps {
			current := u.pol.distribution(st.Obs)

			u.pol.mu.Lock()
			advantage := ep.returns[i] - u.val.value(st.Obs)
			oldP := ep.probs[i][st.Action]
			if oldP < 1e-12 {
				oldP = 1e-12
			}
			ratio := current[st.Action] / oldP

			// Outside the trust region with the advantage pushing further
			// out, the clipped surrogate has zero gradient.
			if (advantage > 0 && ratio > 1+ppoClip) || (advantage < 0 && ratio < 1-ppoClip) {
				u.val.fit(st.Obs, ep.returns[i])
				u.pol.mu.Unlock()
				continue
			}
			u.pol.addLogGradLocked(st.Obs, current, st.Action, ratio*advantage)
			u.val.fit(st.Obs, ep.returns[i])
			u.pol.mu.Unlock()
		}
	}
}

// #endregion ppo
