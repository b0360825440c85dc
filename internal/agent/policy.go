package agent

import (
	"math"
	"math/rand"
	"sync"

	"gonum.org/v1/gonum/mat"
)

// #region linear-policy

// linearPolicy is a softmax policy over a linear score of the
// observation plus a bias feature. One mutex serializes reads and
// updates from the rollout workers.
type linearPolicy struct {
	mu sync.Mutex
	w  *mat.Dense // (obsDim+1, nActions)
	lr float64
}

func newLinearPolicy(obsDim, nActions int, lr float64, seed int64) *linearPolicy {
	rng := rand.New(rand.NewSource(seed))
	w := mat.NewDense(obsDim+1, nActions, nil)
	for i := 0; i < obsDim+1; i++ {
		for j := 0; j < nActions; j++ {
			w.Set(i, j, rng.NormFloat64()*0.01)
		}
	}
	return &linearPolicy{w: w, lr: lr}
}

// withBias appends the constant 1 feature.
func withBias(obs []float64) []float64 {
	x := make([]float64, len(obs)+1)
	copy(x, obs)
	x[len(obs)] = 1
	return x
}

// distribution returns softmax(x*W) for one observation.
func (p *linearPolicy) distribution(obs []float64) []float64 {
	x := withBias(obs)
	p.mu.Lock()
	defer p.mu.Unlock()
	_, nActions := p.w.Dims()
	logits := make([]float64, nActions)
	for j := 0; j < nActions; j++ {
		var s float64
		for i, xi := range x {
			s += xi * p.w.At(i, j)
		}
		logits[j] = s
	}
	return softmax(logits)
}

// addLogGrad applies scale * d log pi(action|obs) / dW in place.
// Caller holds p.mu.
func (p *linearPolicy) addLogGradLocked(obs []float64, probs []float64, action int, scale float64) {
	x := withBias(obs)
	for j := range probs {
		coef := -probs[j]
		if j == action {
			coef += 1
		}
		for i, xi := range x {
			p.w.Set(i, j, p.w.At(i, j)+p.lr*scale*coef*xi)
		}
	}
}

func softmax(logits []float64) []float64 {
	m := logits[0]
	for _, v := range logits[1:] {
		if v > m {
			m = v
		}
	}
	var sum float64
	out := make([]float64, len(logits))
	for i, v := range logits {
		e := math.Exp(v - m)
		out[i] = e
		sum += e
	}
	for i := range out {
		out[i] /= sum
	}
	return out
}

// #endregion linear-policy

// #region value-head

// valueHead is a linear state-value estimate used by the a2c updater.
type valueHead struct {
	w  []float64 // obsDim+1
	lr float64
}

func newValueHead(obsDim int, lr float64) *valueHead {
	return &valueHead{w: make([]float64, obsDim+1), lr: lr}
}

func (v *valueHead) value(obs []float64) float64 {
	x := withBias(obs)
	var s float64
	for i, xi := range x {
		s += xi * v.w[i]
	}
	return s
}

// fit moves the estimate toward target with one squared-error step.
func (v *valueHead) fit(obs []float64, target float64) {
	x := withBias(obs)
	err := target - v.value(obs)
	for i, xi := range x {
		v.w[i] += v.lr * err * xi
	}
}

// #endregion value-head
