// Package video captures periodic rollout clips during training so a
// human can inspect what the learned reward is encouraging.
package video

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"math/rand"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/openpref/preflearn/internal/envs"
	"github.com/openpref/preflearn/internal/predictor"
	"github.com/openpref/preflearn/internal/segment"
)

// #region recorder

// defaultInterval is how many predictor training steps pass between
// recorded rollouts.
const defaultInterval = 100

// SegmentRecorder decorates a reward predictor: all four methods pass
// through, and every interval TrainPredictor calls it records one full
// random rollout with both true and predicted rewards to the segments
// dir. Trainers never know whether they hold the bare predictor or this.
type SegmentRecorder struct {
	inner    predictor.RewardPredictor
	envID    string
	dir      string
	runName  string
	interval int64
	seed     int64

	calls atomic.Int64
}

// NewSegmentRecorder wraps pred. A non-positive interval selects the
// default of 100 training steps per recording.
func NewSegmentRecorder(pred predictor.RewardPredictor, envID, dir, runName string, interval int, seed int64) *SegmentRecorder {
	if interval <= 0 {
		interval = defaultInterval
	}
	return &SegmentRecorder{
		inner:    pred,
		envID:    envID,
		dir:      dir,
		runName:  runName,
		interval: int64(interval),
		seed:     seed,
	}
}

// PredictReward passes straight through to the wrapped predictor.
func (r *SegmentRecorder) PredictReward(steps []segment.Step) []float64 {
	return r.inner.PredictReward(steps)
}

// TrainPredictor trains the wrapped predictor and records a rollout on
// the capture cadence. A failed recording is logged, not fatal: losing
// one clip must not kill training.
func (r *SegmentRecorder) TrainPredictor(ctx context.Context) error {
	err := r.inner.TrainPredictor(ctx)
	n := r.calls.Add(1)
	if n%r.interval == 0 {
		if recErr := r.record(n); recErr != nil {
			log.Printf("[REC] rollout capture at step %d failed: %v", n, recErr)
		}
	}
	return err
}

func (r *SegmentRecorder) SaveCheckpoint(path string) error { return r.inner.SaveCheckpoint(path) }
func (r *SegmentRecorder) LoadCheckpoint(path string) error { return r.inner.LoadCheckpoint(path) }

// ObserveRollout forwards trainer clips when the wrapped predictor
// accepts them, so decorating never cuts off the collector's feed.
func (r *SegmentRecorder) ObserveRollout(seg *segment.Segment) error {
	if sink, ok := r.inner.(interface{ ObserveRollout(*segment.Segment) error }); ok {
		return sink.ObserveRollout(seg)
	}
	return nil
}

var _ predictor.RewardPredictor = (*SegmentRecorder)(nil)

// #endregion recorder

// #region capture

// capture is the JSON payload written per recorded rollout.
type capture struct {
	RunName          string        `json:"run_name"`
	EnvID            string        `json:"env_id"`
	TrainingStep     int64         `json:"training_step"`
	RecordedAt       time.Time     `json:"recorded_at"`
	Segment          *segment.Segment `json:"segment"`
	PredictedRewards []float64     `json:"predicted_rewards"`
}

// record plays one full random-action episode and writes it as JSON.
func (r *SegmentRecorder) record(step int64) error {
	env, err := envs.Make(r.envID, r.seed+step)
	if err != nil {
		return err
	}
	rng := rand.New(rand.NewSource(r.seed + step))

	obs := env.Reset()
	var steps []segment.Step
	for i := 0; i < env.MaxEpisodeSteps(); i++ {
		action := rng.Intn(env.NumActions())
		next, reward, done := env.Step(action)
		steps = append(steps, segment.Step{Obs: obs, Action: action, Reward: reward})
		obs = next
		if done {
			break
		}
	}
	seg := segment.NewSegment(r.envID, env.ObsShape(), env.NumActions(), steps, 0, 0)

	payload := capture{
		RunName:          r.runName,
		EnvID:            r.envID,
		TrainingStep:     step,
		RecordedAt:       time.Now().UTC(),
		Segment:          seg,
		PredictedRewards: r.inner.PredictReward(steps),
	}
	data, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return fmt.Errorf("encode rollout capture: %w", err)
	}

	if err := os.MkdirAll(r.dir, 0o755); err != nil {
		return fmt.Errorf("create segments dir: %w", err)
	}
	path := filepath.Join(r.dir, fmt.Sprintf("%s-%06d.json", r.runName, step))
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write rollout capture: %w", err)
	}
	log.Printf("[REC] wrote rollout capture %s (%d steps)", path, len(steps))
	return nil
}

// #endregion capture
