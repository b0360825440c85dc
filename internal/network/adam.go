package network

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

// #region adam

// Adam applies Adam updates to a named parameter set. Moment buffers are
// keyed by parameter name, so the optimizer state survives weight-set
// clones between training steps.
type Adam struct {
	LR    float64
	Beta1 float64
	Beta2 float64
	Eps   float64

	t int
	m map[string]*mat.Dense
	v map[string]*mat.Dense
}

// NewAdam creates an optimizer with the usual defaults.
func NewAdam(lr float64) *Adam {
	return &Adam{
		LR:    lr,
		Beta1: 0.9,
		Beta2: 0.999,
		Eps:   1e-8,
		m:     map[string]*mat.Dense{},
		v:     map[string]*mat.Dense{},
	}
}

// Step applies one update in place. params and grads must share keys
// and shapes.
func (a *Adam) Step(params, grads map[string]*mat.Dense) {
	a.t++
	bc1 := 1 - math.Pow(a.Beta1, float64(a.t))
	bc2 := 1 - math.Pow(a.Beta2, float64(a.t))

	for name, p := range params {
		g, ok := grads[name]
		if !ok {
			continue
		}
		r, c := p.Dims()
		m, ok := a.m[name]
		if !ok {
			m = mat.NewDense(r, c, nil)
			a.m[name] = m
			a.v[name] = mat.NewDense(r, c, nil)
		}
		v := a.v[name]

		for i := 0; i < r; i++ {
			for j := 0; j < c; j++ {
				gij := g.At(i, j)
				mij := a.Beta1*m.At(i, j) + (1-a.Beta1)*gij
				vij := a.Beta2*v.At(i, j) + (1-a.Beta2)*gij*gij
				m.Set(i, j, mij)
				v.Set(i, j, vij)
				update := a.LR * (mij / bc1) / (math.Sqrt(vij/bc2) + a.Eps)
				p.Set(i, j, p.At(i, j)-update)
			}
		}
	}
}

// #endregion adam
