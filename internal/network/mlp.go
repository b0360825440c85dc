package network

import (
	"math"
	"math/rand"

	"gonum.org/v1/gonum/mat"
)

// #region dense

// dense is a fully connected layer: y = x*W + b.
type dense struct {
	name string
	w    *mat.Dense // (in, out)
	b    *mat.Dense // (1, out)

	x  *mat.Dense // forward cache
	dw *mat.Dense
	db *mat.Dense
}

// newDense allocates a layer with Glorot-uniform weights.
func newDense(name string, in, out int, rng *rand.Rand) *dense {
	limit := math.Sqrt(6.0 / float64(in+out))
	w := mat.NewDense(in, out, nil)
	for i := 0; i < in; i++ {
		for j := 0; j < out; j++ {
			w.Set(i, j, (rng.Float64()*2-1)*limit)
		}
	}
	return &dense{
		name: name,
		w:    w,
		b:    mat.NewDense(1, out, nil),
		dw:   mat.NewDense(in, out, nil),
		db:   mat.NewDense(1, out, nil),
	}
}

// forward computes y = x*W + b. The input is cached for backward only
// in training mode, so eval passes write no layer state and a served
// weight snapshot is safe for concurrent readers.
func (d *dense) forward(x *mat.Dense, training bool) *mat.Dense {
	if training {
		d.x = x
	}
	n, _ := x.Dims()
	_, out := d.w.Dims()
	y := mat.NewDense(n, out, nil)
	y.Mul(x, d.w)
	for i := 0; i < n; i++ {
		for j := 0; j < out; j++ {
			y.Set(i, j, y.At(i, j)+d.b.At(0, j))
		}
	}
	return y
}

func (d *dense) backward(dy *mat.Dense) *mat.Dense {
	d.dw.Mul(d.x.T(), dy)
	n, out := dy.Dims()
	for j := 0; j < out; j++ {
		var sum float64
		for i := 0; i < n; i++ {
			sum += dy.At(i, j)
		}
		d.db.Set(0, j, sum)
	}
	in, _ := d.w.Dims()
	dx := mat.NewDense(n, in, nil)
	dx.Mul(dy, d.w.T())
	return dx
}

func (d *dense) params(into map[string]*mat.Dense) {
	into[d.name+".w"] = d.w
	into[d.name+".b"] = d.b
}

func (d *dense) grads(into map[string]*mat.Dense) {
	into[d.name+".w"] = d.dw
	into[d.name+".b"] = d.db
}

func (d *dense) clone() *dense {
	return &dense{
		name: d.name,
		w:    mat.DenseCopyOf(d.w),
		b:    mat.DenseCopyOf(d.b),
		dw:   mat.DenseCopyOf(d.dw),
		db:   mat.DenseCopyOf(d.db),
	}
}

// #endregion dense

// #region activations

// leakyAlpha matches the Keras LeakyReLU default.
const leakyAlpha = 0.3

type leakyReLU struct {
	x *mat.Dense
}

func (l *leakyReLU) forward(x *mat.Dense, training bool) *mat.Dense {
	if training {
		l.x = x
	}
	n, m := x.Dims()
	y := mat.NewDense(n, m, nil)
	for i := 0; i < n; i++ {
		for j := 0; j < m; j++ {
			v := x.At(i, j)
			if v < 0 {
				v *= leakyAlpha
			}
			y.Set(i, j, v)
		}
	}
	return y
}

func (l *leakyReLU) backward(dy *mat.Dense) *mat.Dense {
	n, m := dy.Dims()
	dx := mat.NewDense(n, m, nil)
	for i := 0; i < n; i++ {
		for j := 0; j < m; j++ {
			g := dy.At(i, j)
			if l.x.At(i, j) < 0 {
				g *= leakyAlpha
			}
			dx.Set(i, j, g)
		}
	}
	return dx
}

// #endregion activations

// #region dropout

// dropout zeroes units with probability p during training, scaling the
// survivors by 1/(1-p) so inference needs no weight rescaling. In eval
// mode it is the identity, which keeps served rewards deterministic.
type dropout struct {
	p    float64
	mask *mat.Dense
}

func (d *dropout) forward(x *mat.Dense, training bool, rng *rand.Rand) *mat.Dense {
	if !training || d.p <= 0 {
		return x
	}
	n, m := x.Dims()
	keep := 1.0 - d.p
	d.mask = mat.NewDense(n, m, nil)
	y := mat.NewDense(n, m, nil)
	for i := 0; i < n; i++ {
		for j := 0; j < m; j++ {
			if rng.Float64() < keep {
				scale := 1.0 / keep
				d.mask.Set(i, j, scale)
				y.Set(i, j, x.At(i, j)*scale)
			}
		}
	}
	return y
}

func (d *dropout) backward(dy *mat.Dense) *mat.Dense {
	if d.mask == nil {
		return dy
	}
	n, m := dy.Dims()
	dx := mat.NewDense(n, m, nil)
	for i := 0; i < n; i++ {
		for j := 0; j < m; j++ {
			dx.Set(i, j, dy.At(i, j)*d.mask.At(i, j))
		}
	}
	return dx
}

// #endregion dropout

// #region mlp-head

// mlpHead is the shared scoring head: two hidden layers with leaky ReLU
// and dropout, then a linear scalar output.
type mlpHead struct {
	fc1, fc2, out    *dense
	act1, act2       leakyReLU
	drop1, drop2     dropout
}

func newMLPHead(inputDim, hidden int, dropP float64, rng *rand.Rand) *mlpHead {
	return &mlpHead{
		fc1:   newDense("mlp.fc1", inputDim, hidden, rng),
		fc2:   newDense("mlp.fc2", hidden, hidden, rng),
		out:   newDense("mlp.out", hidden, 1, rng),
		drop1: dropout{p: dropP},
		drop2: dropout{p: dropP},
	}
}

func (h *mlpHead) forward(x *mat.Dense, training bool, rng *rand.Rand) *mat.Dense {
	y := h.fc1.forward(x, training)
	y = h.act1.forward(y, training)
	y = h.drop1.forward(y, training, rng)
	y = h.fc2.forward(y, training)
	y = h.act2.forward(y, training)
	y = h.drop2.forward(y, training, rng)
	return h.out.forward(y, training)
}

func (h *mlpHead) backward(dy *mat.Dense) *mat.Dense {
	g := h.out.backward(dy)
	g = h.drop2.backward(g)
	g = h.act2.backward(g)
	g = h.fc2.backward(g)
	g = h.drop1.backward(g)
	g = h.act1.backward(g)
	return h.fc1.backward(g)
}

func (h *mlpHead) params(into map[string]*mat.Dense) {
	h.fc1.params(into)
	h.fc2.params(into)
	h.out.params(into)
}

func (h *mlpHead) grads(into map[string]*mat.Dense) {
	h.fc1.grads(into)
	h.fc2.grads(into)
	h.out.grads(into)
}

func (h *mlpHead) clone() *mlpHead {
	return &mlpHead{
		fc1:   h.fc1.clone(),
		fc2:   h.fc2.clone(),
		out:   h.out.clone(),
		drop1: dropout{p: h.drop1.p},
		drop2: dropout{p: h.drop2.p},
	}
}

// #endregion mlp-head
