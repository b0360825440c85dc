// Package agent holds the RL trainers that consume the reward
// predictor. The trainers are deliberately small: shared rollout
// workers drive an environment with a linear softmax policy, score
// every step through the predictor, and hand episodes to one of three
// update rules.
package agent

import (
	"context"
	"fmt"
	"log"
	"math"
	"math/rand"
	"sync"
	"sync/atomic"

	"github.com/openpref/preflearn/internal/config"
	"github.com/openpref/preflearn/internal/envs"
	"github.com/openpref/preflearn/internal/predictor"
	"github.com/openpref/preflearn/internal/segment"
)

// #region config

const (
	gamma = 0.99
	// betaEndFraction is where the exploration bonus decays to,
	// relative to its starting value.
	betaEndFraction = 0.1
	// defaultPredictorEvery is how many env steps pass between
	// predictor training calls.
	defaultPredictorEvery = 2048
)

// TrainConfig parameterizes a training run. Built once and passed by
// value; trainers never mutate it.
type TrainConfig struct {
	EnvID          string
	Seed           int64
	Workers        int
	NumTimesteps   int
	StartingBeta   float64
	ClipSeconds    float64
	PredictorEvery int // env steps between TrainPredictor calls; 0 selects the default
	LearningRate   float64
}

// DefaultTrainConfig derives trainer settings from a run config.
func DefaultTrainConfig(rc config.RunConfig) TrainConfig {
	return TrainConfig{
		EnvID:          rc.EnvID,
		Seed:           rc.Seed,
		Workers:        rc.Workers,
		NumTimesteps:   rc.NumTimesteps,
		StartingBeta:   rc.StartingBeta,
		ClipSeconds:    rc.ClipLength,
		PredictorEvery: defaultPredictorEvery,
		LearningRate:   0.01,
	}
}

// #endregion config

// #region interface

// SegmentSink receives fresh rollout clips during training so the
// comparison collector keeps growing. The traditional predictor does
// not implement it and the loop feeds nothing.
type SegmentSink interface {
	ObserveRollout(seg *segment.Segment) error
}

// Trainer runs an RL algorithm against a reward predictor until the
// timestep budget is spent or the context ends.
type Trainer interface {
	Name() string
	Train(ctx context.Context, pred predictor.RewardPredictor) error
}

// ForKind resolves the trainer variant once at startup.
func ForKind(kind config.AgentKind, cfg TrainConfig) (Trainer, error) {
	switch kind {
	case config.AgentPG:
		return newTrainer(cfg, newPGUpdater()), nil
	case config.AgentA2C:
		return newTrainer(cfg, newA2CUpdater()), nil
	case config.AgentPPO:
		return newTrainer(cfg, newPPOUpdater()), nil
	default:
		return nil, fmt.Errorf("%q is not a valid choice for agent (want pg, a2c or ppo)", kind)
	}
}

// #endregion interface

// #region episode

// episode is one completed rollout with the policy's action
// distributions and the predictor-shaped rewards.
type episode struct {
	steps   []segment.Step // Reward holds the true env reward
	probs   [][]float64    // policy distribution at each step
	shaped  []float64      // predicted reward + entropy bonus, the learning signal
	returns []float64      // discounted returns of shaped rewards
}

func (e *episode) computeReturns() {
	e.returns = make([]float64, len(e.shaped))
	var g float64
	for i := len(e.shaped) - 1; i >= 0; i-- {
		g = e.shaped[i] + gamma*g
		e.returns[i] = g
	}
}

// updater is one policy update rule applied per finished episode.
// Implementations own their parameters and serialize updates
// internally.
type updater interface {
	name() string
	// init sizes the parameters once the obs/action dims are known.
	init(obsDim, nActions int, lr float64, seed int64)
	// policy returns the action distribution for one observation.
	policy(obs []float64) []float64
	// update applies one learning step from a finished episode.
	update(ep *episode)
}

// #endregion episode

// #region trainer

type trainer struct {
	cfg TrainConfig
	upd updater

	steps    atomic.Int64
	episodes atomic.Int64

	initOnce sync.Once
}

func newTrainer(cfg TrainConfig, upd updater) *trainer {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.PredictorEvery <= 0 {
		cfg.PredictorEvery = defaultPredictorEvery
	}
	if cfg.LearningRate <= 0 {
		cfg.LearningRate = 0.01
	}
	return &trainer{cfg: cfg, upd: upd}
}

func (t *trainer) Name() string { return t.upd.name() }

// Train runs rollout workers until the timestep budget is spent.
// Each worker owns its environment and RNG; the policy and the
// predictor are the only shared state.
func (t *trainer) Train(ctx context.Context, pred predictor.RewardPredictor) error {
	probe, err := envs.Make(t.cfg.EnvID, t.cfg.Seed)
	if err != nil {
		return fmt.Errorf("probe env: %w", err)
	}
	obsDim := envs.ObsLen(probe.ObsShape())
	t.initOnce.Do(func() {
		t.upd.init(obsDim, probe.NumActions(), t.cfg.LearningRate, t.cfg.Seed)
	})
	clipLen := segment.ClipSteps(t.cfg.ClipSeconds, probe.FPS())
	sink, _ := pred.(SegmentSink)

	log.Printf("[AGENT] %s: training on %s for %d timesteps across %d workers",
		t.upd.name(), t.cfg.EnvID, t.cfg.NumTimesteps, t.cfg.Workers)

	var wg sync.WaitGroup
	errs := make(chan error, t.cfg.Workers)
	for w := 0; w < t.cfg.Workers; w++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			if err := t.runWorker(ctx, worker, pred, sink, clipLen); err != nil {
				errs <- err
			}
		}(w)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil && err != context.Canceled {
			return err
		}
	}
	log.Printf("[AGENT] %s: finished after %d timesteps, %d episodes",
		t.upd.name(), t.steps.Load(), t.episodes.Load())
	return ctx.Err()
}

func (t *trainer) runWorker(ctx context.Context, worker int, pred predictor.RewardPredictor, sink SegmentSink, clipLen int) error {
	env, err := envs.Make(t.cfg.EnvID, t.cfg.Seed+int64(worker)+1)
	if err != nil {
		return fmt.Errorf("worker %d env: %w", worker, err)
	}
	rng := rand.New(rand.NewSource(t.cfg.Seed + int64(worker)*1000))

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		if t.steps.Load() >= int64(t.cfg.NumTimesteps) {
			return nil
		}

		ep, err := t.playEpisode(ctx, env, rng, pred)
		if err != nil {
			return err
		}
		t.upd.update(ep)
		epNum := t.episodes.Add(1)

		if sink != nil {
			if err := t.feedSink(sink, env, ep, clipLen, int(epNum), worker, rng); err != nil {
				return err
			}
		}
		if epNum%50 == 0 {
			var trueReward float64
			for _, st := range ep.steps {
				trueReward += st.Reward
			}
			log.Printf("[AGENT] %s: episode %d, %d steps, true reward %.1f (beta %.4f)",
				t.upd.name(), epNum, len(ep.steps), trueReward, t.beta())
		}
	}
}

// playEpisode rolls one episode, scoring every step through the
// predictor once, matching how the serving path is exercised in
// production: one PredictReward call per env step batch.
func (t *trainer) playEpisode(ctx context.Context, env envs.Env, rng *rand.Rand, pred predictor.RewardPredictor) (*episode, error) {
	ep := &episode{}
	obs := env.Reset()
	crossed := false
	for i := 0; i < env.MaxEpisodeSteps(); i++ {
		probs := t.upd.policy(obs)
		action := sampleAction(probs, rng)
		next, trueReward, done := env.Step(action)

		step := segment.Step{Obs: obs, Action: action, Reward: trueReward}
		predicted := pred.PredictReward([]segment.Step{step})
		ep.steps = append(ep.steps, step)
		ep.probs = append(ep.probs, probs)
		ep.shaped = append(ep.shaped, predicted[0]+t.beta()*entropy(probs))

		if t.steps.Add(1)%int64(t.cfg.PredictorEvery) == 0 {
			crossed = true
		}
		obs = next
		if done {
			break
		}
	}
	ep.computeReturns()

	if crossed {
		if err := pred.TrainPredictor(ctx); err != nil {
			return nil, fmt.Errorf("train predictor: %w", err)
		}
	}
	return ep, nil
}

// feedSink cuts the episode into clips and hands them to the collector.
func (t *trainer) feedSink(sink SegmentSink, env envs.Env, ep *episode, clipLen, epNum, worker int, rng *rand.Rand) error {
	if len(ep.steps) < clipLen {
		return nil
	}
	start := rng.Intn(len(ep.steps) - clipLen + 1)
	clip := append([]segment.Step(nil), ep.steps[start:start+clipLen]...)
	seg := segment.NewSegment(t.cfg.EnvID, env.ObsShape(), env.NumActions(), clip, epNum, worker)
	return sink.ObserveRollout(seg)
}

// beta is the current exploration bonus coefficient, decayed linearly
// from StartingBeta to betaEndFraction of it over the timestep budget.
func (t *trainer) beta() float64 {
	if t.cfg.NumTimesteps <= 0 {
		return t.cfg.StartingBeta
	}
	frac := float64(t.steps.Load()) / float64(t.cfg.NumTimesteps)
	if frac > 1 {
		frac = 1
	}
	end := betaEndFraction * t.cfg.StartingBeta
	return t.cfg.StartingBeta - frac*(t.cfg.StartingBeta-end)
}

// #endregion trainer

// #region math

func sampleAction(probs []float64, rng *rand.Rand) int {
	u := rng.Float64()
	var cum float64
	for i, p := range probs {
		cum += p
		if u < cum {
			return i
		}
	}
	return len(probs) - 1
}

func entropy(probs []float64) float64 {
	var h float64
	for _, p := range probs {
		if p > 0 {
			h -= p * math.Log(p)
		}
	}
	return h
}

// #endregion math
