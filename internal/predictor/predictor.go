// Package predictor serves per-step reward estimates to the RL trainers
// and trains the reward network from labeled comparisons.
package predictor

import (
	"context"
	"fmt"

	"github.com/openpref/preflearn/internal/collector"
	"github.com/openpref/preflearn/internal/config"
	"github.com/openpref/preflearn/internal/schedule"
	"github.com/openpref/preflearn/internal/segment"
)

// #region interface

// RewardPredictor is the contract every trainer and the rollout recorder
// consume. PredictReward must be safe to call concurrently with
// TrainPredictor; trainers hold a single RewardPredictor and never know
// which variant is behind it.
type RewardPredictor interface {
	// PredictReward maps a batch of recorded steps to the rewards the
	// agent should learn from.
	PredictReward(steps []segment.Step) []float64
	// TrainPredictor runs one training step, requesting labels from the
	// schedule first. Having no labeled comparisons yet is not an error.
	TrainPredictor(ctx context.Context) error
	// SaveCheckpoint persists the weights and iteration counter.
	SaveCheckpoint(path string) error
	// LoadCheckpoint restores a checkpoint, validating the architecture.
	LoadCheckpoint(path string) error
}

// #endregion interface

// #region traditional

// Traditional passes the true environment reward through untouched, for
// runs that opt out of preference learning. Training and checkpoints are
// no-ops so the trainer integration stays identical.
type Traditional struct{}

// NewTraditional creates the pass-through predictor.
func NewTraditional() *Traditional { return &Traditional{} }

func (*Traditional) PredictReward(steps []segment.Step) []float64 {
	out := make([]float64, len(steps))
	for i, st := range steps {
		out[i] = st.Reward
	}
	return out
}

func (*Traditional) TrainPredictor(context.Context) error { return nil }
func (*Traditional) SaveCheckpoint(string) error          { return nil }
func (*Traditional) LoadCheckpoint(string) error          { return nil }

var _ RewardPredictor = (*Traditional)(nil)

// #endregion traditional

// #region factory

// ForKind resolves the predictor variant once at startup. The rl kind
// needs no collector or schedule and ignores both.
func ForKind(kind config.PredictorKind, cfg Config, coll collector.Collector, sched schedule.LabelSchedule) (RewardPredictor, error) {
	switch kind {
	case config.PredictorRL:
		return NewTraditional(), nil
	case config.PredictorSynth, config.PredictorHuman:
		return NewComparisonPredictor(cfg, coll, sched)
	default:
		return nil, fmt.Errorf("bad value for predictor: %q (want rl, synth or human)", kind)
	}
}

// #endregion factory
