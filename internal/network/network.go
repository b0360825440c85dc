// Package network implements the reward network: a feature extractor
// (identity flatten for vector observations, a conv stack for images)
// feeding a shared two-hidden-layer MLP scoring head.
package network

import (
	"fmt"
	"math/rand"
	"sort"
	"strings"

	"gonum.org/v1/gonum/mat"
)

// #region extractor

// featureExtractor maps raw observations to the head's input features.
// Selected by observation rank at construction, not by subclassing.
type featureExtractor interface {
	outputDim() int
	forwardBatch(obs [][]float64, training bool) [][]float64
	backwardBatch(dFeats [][]float64)
	params(into map[string]*mat.Dense)
	grads(into map[string]*mat.Dense)
}

// identityFlatten passes vector observations straight through.
type identityFlatten struct {
	dim int
}

func (f *identityFlatten) outputDim() int                              { return f.dim }
func (f *identityFlatten) forwardBatch(obs [][]float64, _ bool) [][]float64 { return obs }
func (f *identityFlatten) backwardBatch([][]float64)                   {}
func (f *identityFlatten) params(map[string]*mat.Dense)                {}
func (f *identityFlatten) grads(map[string]*mat.Dense)                 {}

// #endregion extractor

// #region config

// Config fixes the network's architecture. All dimensions must be known
// up front; weights are allocated eagerly at construction.
type Config struct {
	ObsShape []int // rank 1: vector; rank 2: image; rank 3: image with channels
	ActDim   int   // flattened action length (one-hot size for discrete envs)
	Hidden   int   // MLP width, default 64
	Dropout  float64
	Seed     int64
}

// DefaultConfig fills in the historical hyperparameters.
func DefaultConfig(obsShape []int, actDim int) Config {
	return Config{
		ObsShape: obsShape,
		ActDim:   actDim,
		Hidden:   64,
		Dropout:  0.5,
		Seed:     1,
	}
}

// Fingerprint identifies the architecture for checkpoint compatibility.
func (c Config) Fingerprint() string {
	dims := make([]string, len(c.ObsShape))
	for i, d := range c.ObsShape {
		dims[i] = fmt.Sprint(d)
	}
	return fmt.Sprintf("obs=%s act=%d hidden=%d", strings.Join(dims, "x"), c.ActDim, c.Hidden)
}

// #endregion config

// #region reward-net

// RewardNet scores one (observation, action) step. Score is the learned
// per-step reward estimate; training runs with dropout, serving without.
type RewardNet struct {
	cfg     Config
	feat    featureExtractor
	head    *mlpHead
	rng     *rand.Rand
	featDim int
}

// New builds a reward network, choosing the extractor by observation rank.
func New(cfg Config) (*RewardNet, error) {
	if cfg.Hidden <= 0 {
		cfg.Hidden = 64
	}
	if cfg.ActDim <= 0 {
		return nil, fmt.Errorf("action dim must be > 0, got %d", cfg.ActDim)
	}
	rng := rand.New(rand.NewSource(cfg.Seed))

	var feat featureExtractor
	switch len(cfg.ObsShape) {
	case 1:
		feat = &identityFlatten{dim: cfg.ObsShape[0]}
	case 2:
		// No channel dimension: promote to single-channel before convolving.
		feat = newConvStack(cfg.ObsShape[0], cfg.ObsShape[1], rng)
	case 3:
		feat = newConvStackChannels(cfg.ObsShape[0], cfg.ObsShape[1], cfg.ObsShape[2], rng)
	default:
		return nil, fmt.Errorf("unsupported observation rank %d", len(cfg.ObsShape))
	}

	featDim := feat.outputDim()
	return &RewardNet{
		cfg:     cfg,
		feat:    feat,
		head:    newMLPHead(featDim+cfg.ActDim, cfg.Hidden, cfg.Dropout, rng),
		rng:     rng,
		featDim: featDim,
	}, nil
}

// Config returns the architecture the network was built with.
func (n *RewardNet) Config() Config { return n.cfg }

// ScoreBatch returns per-step reward estimates for a batch of
// (observation, action) pairs. With training set, dropout is active and
// intermediate state is cached for Backward; without it the pass is
// deterministic and writes no network state, so concurrent eval calls
// on a shared snapshot are safe.
func (n *RewardNet) ScoreBatch(obs, acts [][]float64, training bool) []float64 {
	feats := n.feat.forwardBatch(obs, training)
	x := mat.NewDense(len(obs), n.featDim+n.cfg.ActDim, nil)
	for i := range feats {
		for j, v := range feats[i] {
			x.Set(i, j, v)
		}
		for j, v := range acts[i] {
			x.Set(i, n.featDim+j, v)
		}
	}
	y := n.head.forward(x, training, n.rng)
	scores := make([]float64, len(obs))
	for i := range scores {
		scores[i] = y.At(i, 0)
	}
	return scores
}

// Backward propagates per-step score gradients from the latest training
// ScoreBatch and fills all parameter gradients.
func (n *RewardNet) Backward(dScore []float64) {
	dy := mat.NewDense(len(dScore), 1, dScore)
	dx := n.head.backward(dy)
	dFeats := make([][]float64, len(dScore))
	for i := range dFeats {
		row := make([]float64, n.featDim)
		for j := 0; j < n.featDim; j++ {
			row[j] = dx.At(i, j)
		}
		dFeats[i] = row
	}
	n.feat.backwardBatch(dFeats)
}

// Params exposes the weights keyed by layer name.
func (n *RewardNet) Params() map[string]*mat.Dense {
	out := map[string]*mat.Dense{}
	n.feat.params(out)
	n.head.params(out)
	return out
}

// Grads exposes the gradient buffers keyed like Params.
func (n *RewardNet) Grads() map[string]*mat.Dense {
	out := map[string]*mat.Dense{}
	n.feat.grads(out)
	n.head.grads(out)
	return out
}

// SetParams overwrites the weights, validating every shape. A mismatch
// reports expected vs actual and leaves nothing partially applied.
func (n *RewardNet) SetParams(params map[string]*mat.Dense) error {
	own := n.Params()
	if len(params) != len(own) {
		return fmt.Errorf("parameter count mismatch: expected %d tensors, got %d", len(own), len(params))
	}
	for _, name := range sortedKeys(own) {
		src, ok := params[name]
		if !ok {
			return fmt.Errorf("missing parameter %q", name)
		}
		er, ec := own[name].Dims()
		gr, gc := src.Dims()
		if er != gr || ec != gc {
			return fmt.Errorf("parameter %q shape mismatch: expected %dx%d, got %dx%d", name, er, ec, gr, gc)
		}
	}
	for name, dst := range own {
		dst.Copy(params[name])
	}
	return nil
}

// Clone deep-copies the network. The clone shares no weight storage with
// the original, so the original stays a valid immutable snapshot.
func (n *RewardNet) Clone() *RewardNet {
	var feat featureExtractor
	switch f := n.feat.(type) {
	case *identityFlatten:
		feat = &identityFlatten{dim: f.dim}
	case *convStack:
		feat = f.clone()
	}
	return &RewardNet{
		cfg:     n.cfg,
		feat:    feat,
		head:    n.head.clone(),
		rng:     n.rng,
		featDim: n.featDim,
	}
}

func sortedKeys(m map[string]*mat.Dense) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// #endregion reward-net
