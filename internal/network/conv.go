package network

import (
	"math"
	"math/rand"

	"gonum.org/v1/gonum/mat"
)

// #region sizing

// sameOut is the output extent of a same-padded strided convolution.
func sameOut(in, stride int) int {
	return int(math.Ceil(float64(in) / float64(stride)))
}

// ConvOutputDim computes the flattened feature size of the two-stage
// conv stack analytically: ceil(ceil(H/4)/3) x ceil(ceil(W/4)/3) x 8.
// The head's input dimension must be exact at construction time because
// weights are allocated eagerly.
func ConvOutputDim(h, w int) int {
	oh := sameOut(sameOut(h, conv1Stride), conv2Stride)
	ow := sameOut(sameOut(w, conv1Stride), conv2Stride)
	return oh * ow * conv2Channels
}

// #endregion sizing

// #region conv-layer

const (
	conv1Channels = 4
	conv1Kernel   = 8
	conv1Stride   = 4
	conv2Channels = 8
	conv2Kernel   = 6
	conv2Stride   = 3
)

// convLayer is a same-padded strided 2D convolution computed via im2col,
// so the kernel lives in one (k*k*inC, outC) matrix.
type convLayer struct {
	name                 string
	k, stride, inC, outC int
	inH, inW             int
	outH, outW           int

	kernel *mat.Dense // (k*k*inC, outC)
	bias   *mat.Dense // (1, outC)

	dKernel *mat.Dense
	dBias   *mat.Dense

	cols []*mat.Dense // per-sample im2col cache
}

func newConvLayer(name string, inH, inW, inC, outC, k, stride int, rng *rand.Rand) *convLayer {
	fanIn := k * k * inC
	fanOut := k * k * outC
	limit := math.Sqrt(6.0 / float64(fanIn+fanOut))
	kernel := mat.NewDense(fanIn, outC, nil)
	for i := 0; i < fanIn; i++ {
		for j := 0; j < outC; j++ {
			kernel.Set(i, j, (rng.Float64()*2-1)*limit)
		}
	}
	return &convLayer{
		name: name,
		k:    k, stride: stride, inC: inC, outC: outC,
		inH: inH, inW: inW,
		outH:    sameOut(inH, stride),
		outW:    sameOut(inW, stride),
		kernel:  kernel,
		bias:    mat.NewDense(1, outC, nil),
		dKernel: mat.NewDense(fanIn, outC, nil),
		dBias:   mat.NewDense(1, outC, nil),
	}
}

// padBefore follows the TF convention: the excess padding goes after.
func (c *convLayer) padBefore() (int, int) {
	padH := (c.outH-1)*c.stride + c.k - c.inH
	padW := (c.outW-1)*c.stride + c.k - c.inW
	if padH < 0 {
		padH = 0
	}
	if padW < 0 {
		padW = 0
	}
	return padH / 2, padW / 2
}

// im2col unrolls one (inH, inW, inC) sample into (outH*outW, k*k*inC).
func (c *convLayer) im2col(input []float64) *mat.Dense {
	padTop, padLeft := c.padBefore()
	col := mat.NewDense(c.outH*c.outW, c.k*c.k*c.inC, nil)
	for oy := 0; oy < c.outH; oy++ {
		for ox := 0; ox < c.outW; ox++ {
			row := oy*c.outW + ox
			for ky := 0; ky < c.k; ky++ {
				iy := oy*c.stride + ky - padTop
				if iy < 0 || iy >= c.inH {
					continue
				}
				for kx := 0; kx < c.k; kx++ {
					ix := ox*c.stride + kx - padLeft
					if ix < 0 || ix >= c.inW {
						continue
					}
					for ch := 0; ch < c.inC; ch++ {
						col.Set(row, (ky*c.k+kx)*c.inC+ch, input[(iy*c.inW+ix)*c.inC+ch])
					}
				}
			}
		}
	}
	return col
}

// forwardBatch maps each (inH*inW*inC) sample to (outH*outW*outC). The
// im2col matrices are cached for backward only in training mode; eval
// passes leave the layer untouched.
func (c *convLayer) forwardBatch(inputs [][]float64, training bool) [][]float64 {
	if training {
		c.cols = make([]*mat.Dense, len(inputs))
	}
	outs := make([][]float64, len(inputs))
	for i, in := range inputs {
		col := c.im2col(in)
		if training {
			c.cols[i] = col
		}
		var y mat.Dense
		y.Mul(col, c.kernel)
		rows, _ := y.Dims()
		out := make([]float64, rows*c.outC)
		for r := 0; r < rows; r++ {
			for j := 0; j < c.outC; j++ {
				out[r*c.outC+j] = y.At(r, j) + c.bias.At(0, j)
			}
		}
		outs[i] = out
	}
	return outs
}

// backwardBatch accumulates kernel/bias gradients and, when needInput is
// set, returns the gradient w.r.t. each input sample.
func (c *convLayer) backwardBatch(dOuts [][]float64, needInput bool) [][]float64 {
	c.dKernel.Zero()
	c.dBias.Zero()
	var dInputs [][]float64
	if needInput {
		dInputs = make([][]float64, len(dOuts))
	}
	padTop, padLeft := c.padBefore()

	for i, dOut := range dOuts {
		dy := mat.NewDense(c.outH*c.outW, c.outC, dOut)

		var dK mat.Dense
		dK.Mul(c.cols[i].T(), dy)
		c.dKernel.Add(c.dKernel, &dK)

		rows, _ := dy.Dims()
		for j := 0; j < c.outC; j++ {
			var sum float64
			for r := 0; r < rows; r++ {
				sum += dy.At(r, j)
			}
			c.dBias.Set(0, j, c.dBias.At(0, j)+sum)
		}

		if !needInput {
			continue
		}
		var dCol mat.Dense
		dCol.Mul(dy, c.kernel.T())
		dIn := make([]float64, c.inH*c.inW*c.inC)
		for oy := 0; oy < c.outH; oy++ {
			for ox := 0; ox < c.outW; ox++ {
				row := oy*c.outW + ox
				for ky := 0; ky < c.k; ky++ {
					iy := oy*c.stride + ky - padTop
					if iy < 0 || iy >= c.inH {
						continue
					}
					for kx := 0; kx < c.k; kx++ {
						ix := ox*c.stride + kx - padLeft
						if ix < 0 || ix >= c.inW {
							continue
						}
						for ch := 0; ch < c.inC; ch++ {
							dIn[(iy*c.inW+ix)*c.inC+ch] += dCol.At(row, (ky*c.k+kx)*c.inC+ch)
						}
					}
				}
			}
		}
		dInputs[i] = dIn
	}
	return dInputs
}

func (c *convLayer) params(into map[string]*mat.Dense) {
	into[c.name+".k"] = c.kernel
	into[c.name+".b"] = c.bias
}

func (c *convLayer) grads(into map[string]*mat.Dense) {
	into[c.name+".k"] = c.dKernel
	into[c.name+".b"] = c.dBias
}

func (c *convLayer) clone() *convLayer {
	cp := *c
	cp.kernel = mat.DenseCopyOf(c.kernel)
	cp.bias = mat.DenseCopyOf(c.bias)
	cp.dKernel = mat.DenseCopyOf(c.dKernel)
	cp.dBias = mat.DenseCopyOf(c.dBias)
	cp.cols = nil
	return &cp
}

// #endregion conv-layer

// #region conv-stack

// convStack is the image feature extractor: two same-padded strided
// convolutions with ReLU, then flatten. Observations without a channel
// dimension are treated as single-channel.
type convStack struct {
	c1, c2 *convLayer
	z1, z2 [][]float64 // pre-activation caches
}

func newConvStack(h, w int, rng *rand.Rand) *convStack {
	return newConvStackChannels(h, w, 1, rng)
}

func newConvStackChannels(h, w, channels int, rng *rand.Rand) *convStack {
	c1 := newConvLayer("conv.c1", h, w, channels, conv1Channels, conv1Kernel, conv1Stride, rng)
	c2 := newConvLayer("conv.c2", c1.outH, c1.outW, conv1Channels, conv2Channels, conv2Kernel, conv2Stride, rng)
	return &convStack{c1: c1, c2: c2}
}

func (s *convStack) outputDim() int {
	return s.c2.outH * s.c2.outW * s.c2.outC
}

func (s *convStack) forwardBatch(obs [][]float64, training bool) [][]float64 {
	z1 := s.c1.forwardBatch(obs, training)
	a1 := reluBatch(z1)
	z2 := s.c2.forwardBatch(a1, training)
	if training {
		s.z1, s.z2 = z1, z2
	}
	return reluBatch(z2)
}

func (s *convStack) backwardBatch(dFeats [][]float64) {
	d2 := reluGradBatch(dFeats, s.z2)
	dA1 := s.c2.backwardBatch(d2, true)
	d1 := reluGradBatch(dA1, s.z1)
	s.c1.backwardBatch(d1, false)
}

func (s *convStack) params(into map[string]*mat.Dense) {
	s.c1.params(into)
	s.c2.params(into)
}

func (s *convStack) grads(into map[string]*mat.Dense) {
	s.c1.grads(into)
	s.c2.grads(into)
}

func (s *convStack) clone() *convStack {
	return &convStack{c1: s.c1.clone(), c2: s.c2.clone()}
}

func reluBatch(xs [][]float64) [][]float64 {
	out := make([][]float64, len(xs))
	for i, x := range xs {
		y := make([]float64, len(x))
		for j, v := range x {
			if v > 0 {
				y[j] = v
			}
		}
		out[i] = y
	}
	return out
}

func reluGradBatch(dys, zs [][]float64) [][]float64 {
	out := make([][]float64, len(dys))
	for i, dy := range dys {
		g := make([]float64, len(dy))
		for j, v := range dy {
			if zs[i][j] > 0 {
				g[j] = v
			}
		}
		out[i] = g
	}
	return out
}

// #endregion conv-stack
