package network

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func flatNet(t *testing.T, dropout float64) *RewardNet {
	t.Helper()
	cfg := DefaultConfig([]int{4}, 2)
	cfg.Dropout = dropout
	cfg.Hidden = 8
	net, err := New(cfg)
	require.NoError(t, err)
	return net
}

func batch(n, obsLen, actLen int, seed int64) (obs, acts [][]float64) {
	rng := rand.New(rand.NewSource(seed))
	for i := 0; i < n; i++ {
		o := make([]float64, obsLen)
		for j := range o {
			o[j] = rng.NormFloat64()
		}
		a := make([]float64, actLen)
		a[rng.Intn(actLen)] = 1
		obs = append(obs, o)
		acts = append(acts, a)
	}
	return obs, acts
}

func TestConvOutputDimAnalytic(t *testing.T) {
	// ceil(ceil(16/4)/3) = 2 per axis, times 8 channels.
	assert.Equal(t, 2*2*8, ConvOutputDim(16, 16))
	// Atari-sized frames: ceil(84/4)=21, ceil(21/3)=7.
	assert.Equal(t, 7*7*8, ConvOutputDim(84, 84))
	assert.Equal(t, 1*1*8, ConvOutputDim(1, 1))
}

func TestEvalModeIsDeterministic(t *testing.T) {
	net := flatNet(t, 0.5)
	obs, acts := batch(6, 4, 2, 1)

	a := net.ScoreBatch(obs, acts, false)
	b := net.ScoreBatch(obs, acts, false)
	assert.Equal(t, a, b, "eval mode must not inject dropout noise")
}

func TestTrainingModeAppliesDropout(t *testing.T) {
	net := flatNet(t, 0.5)
	obs, acts := batch(6, 4, 2, 2)

	eval := net.ScoreBatch(obs, acts, false)
	train := net.ScoreBatch(obs, acts, true)
	assert.NotEqual(t, eval, train, "training mode should drop units")
}

func TestFlatGradientsMatchNumerical(t *testing.T) {
	net := flatNet(t, 0) // dropout off so the forward pass is deterministic
	obs, acts := batch(5, 4, 2, 3)

	loss := func() float64 {
		var sum float64
		for _, s := range net.ScoreBatch(obs, acts, true) {
			sum += s
		}
		return sum
	}

	loss()
	dScore := []float64{1, 1, 1, 1, 1}
	net.Backward(dScore)
	grads := net.Grads()
	params := net.Params()

	const eps = 1e-6
	for _, name := range []string{"mlp.fc1.w", "mlp.fc2.w", "mlp.out.w", "mlp.out.b"} {
		p := params[name]
		g := grads[name]
		r, c := p.Dims()
		for _, idx := range [][2]int{{0, 0}, {r - 1, c - 1}} {
			orig := p.At(idx[0], idx[1])
			p.Set(idx[0], idx[1], orig+eps)
			up := loss()
			p.Set(idx[0], idx[1], orig-eps)
			down := loss()
			p.Set(idx[0], idx[1], orig)

			numeric := (up - down) / (2 * eps)
			assert.InDelta(t, numeric, g.At(idx[0], idx[1]), 1e-4,
				"gradient mismatch at %s[%d,%d]", name, idx[0], idx[1])
		}
	}
}

func TestConvGradientsMatchNumerical(t *testing.T) {
	cfg := DefaultConfig([]int{6, 6}, 2)
	cfg.Dropout = 0
	cfg.Hidden = 4
	net, err := New(cfg)
	require.NoError(t, err)

	obs, acts := batch(3, 36, 2, 4)
	loss := func() float64 {
		var sum float64
		for _, s := range net.ScoreBatch(obs, acts, true) {
			sum += s
		}
		return sum
	}

	loss()
	net.Backward([]float64{1, 1, 1})
	grads := net.Grads()
	params := net.Params()

	const eps = 1e-6
	for _, name := range []string{"conv.c1.k", "conv.c2.k", "conv.c1.b"} {
		p := params[name]
		g := grads[name]
		r, c := p.Dims()
		for _, idx := range [][2]int{{0, 0}, {r / 2, c - 1}} {
			orig := p.At(idx[0], idx[1])
			p.Set(idx[0], idx[1], orig+eps)
			up := loss()
			p.Set(idx[0], idx[1], orig-eps)
			down := loss()
			p.Set(idx[0], idx[1], orig)

			numeric := (up - down) / (2 * eps)
			assert.InDelta(t, numeric, g.At(idx[0], idx[1]), 1e-4,
				"gradient mismatch at %s[%d,%d]", name, idx[0], idx[1])
		}
	}
}

func TestSetParamsValidatesShapes(t *testing.T) {
	a := flatNet(t, 0)
	cfg := DefaultConfig([]int{4}, 2)
	cfg.Hidden = 16 // different width
	b, err := New(cfg)
	require.NoError(t, err)

	err = a.SetParams(b.Params())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "expected")
}

func TestCloneIsIndependentSnapshot(t *testing.T) {
	net := flatNet(t, 0)
	obs, acts := batch(4, 4, 2, 5)
	before := net.ScoreBatch(obs, acts, false)

	clone := net.Clone()
	for _, p := range clone.Params() {
		p.Scale(2, p)
	}

	after := net.ScoreBatch(obs, acts, false)
	assert.Equal(t, before, after, "mutating a clone must not disturb the original")
	assert.NotEqual(t, before, clone.ScoreBatch(obs, acts, false))
}

func TestAdamReducesScoreTowardTarget(t *testing.T) {
	net := flatNet(t, 0)
	obs, acts := batch(8, 4, 2, 6)
	opt := NewAdam(0.01)

	// Drive all scores toward zero with an L2 objective.
	sq := func(scores []float64) float64 {
		var sum float64
		for _, s := range scores {
			sum += s * s
		}
		return sum
	}

	initial := sq(net.ScoreBatch(obs, acts, false))
	for i := 0; i < 200; i++ {
		scores := net.ScoreBatch(obs, acts, true)
		dScore := make([]float64, len(scores))
		for j, s := range scores {
			dScore[j] = 2 * s
		}
		net.Backward(dScore)
		opt.Step(net.Params(), net.Grads())
	}
	final := sq(net.ScoreBatch(obs, acts, false))
	assert.Less(t, final, initial/10, "Adam should shrink the objective")
}
