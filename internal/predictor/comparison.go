package predictor

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"math/rand"
	"sync"
	"sync/atomic"

	"github.com/openpref/preflearn/internal/collector"
	"github.com/openpref/preflearn/internal/network"
	"github.com/openpref/preflearn/internal/schedule"
	"github.com/openpref/preflearn/internal/segment"
)

// #region config

// Config tunes the comparison predictor's training loop.
type Config struct {
	Net          network.Config
	LearningRate float64 // Adam step size, default 1e-3
	BatchSize    int     // comparisons per gradient step, default 8
}

// DefaultConfig fills the training defaults around a network config.
func DefaultConfig(net network.Config) Config {
	return Config{Net: net, LearningRate: 1e-3, BatchSize: 8}
}

// probClamp bounds the predicted preference probability away from 0 and
// 1 so the cross-entropy stays finite on confident mistakes.
const probClamp = 1e-6

// #endregion config

// #region comparison-predictor

// ComparisonPredictor learns per-step rewards from labeled segment
// comparisons. Serving reads an immutable weight snapshot published
// atomically after each training step; readers see the weights from
// before or after an update, never a mix.
type ComparisonPredictor struct {
	cfg   Config
	coll  collector.Collector
	sched schedule.LabelSchedule

	snapshot atomic.Pointer[network.RewardNet]
	served   atomic.Int64 // env steps scored so far, the schedule's progress basis

	mu        sync.Mutex // guards everything below
	trainNet  *network.RewardNet
	opt       *network.Adam
	rng       *rand.Rand
	iteration int64
}

// NewComparisonPredictor builds the network and publishes the initial
// snapshot so PredictReward works before any training.
func NewComparisonPredictor(cfg Config, coll collector.Collector, sched schedule.LabelSchedule) (*ComparisonPredictor, error) {
	if cfg.LearningRate <= 0 {
		cfg.LearningRate = 1e-3
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 8
	}
	if coll == nil {
		return nil, fmt.Errorf("comparison predictor needs a collector")
	}
	if sched == nil {
		return nil, fmt.Errorf("comparison predictor needs a label schedule")
	}
	net, err := network.New(cfg.Net)
	if err != nil {
		return nil, fmt.Errorf("build reward network: %w", err)
	}
	p := &ComparisonPredictor{
		cfg:      cfg,
		coll:     coll,
		sched:    sched,
		trainNet: net,
		opt:      network.NewAdam(cfg.LearningRate),
		rng:      rand.New(rand.NewSource(cfg.Net.Seed)),
	}
	p.snapshot.Store(net.Clone())
	return p, nil
}

// PredictReward scores a batch of steps against the current snapshot.
// Lock-free; the batch length is counted as training progress.
func (p *ComparisonPredictor) PredictReward(steps []segment.Step) []float64 {
	obs := make([][]float64, len(steps))
	acts := make([][]float64, len(steps))
	for i, st := range steps {
		obs[i] = st.Obs
		acts[i] = oneHot(st.Action, p.cfg.Net.ActDim)
	}
	scores := p.snapshot.Load().ScoreBatch(obs, acts, false)
	p.served.Add(int64(len(steps)))
	return scores
}

// TrainPredictor requests labels up to the schedule's current desire,
// then runs one gradient step on a minibatch of labeled comparisons.
// With nothing labeled yet it skips rather than fails.
func (p *ComparisonPredictor) TrainPredictor(ctx context.Context) error {
	goal := p.sched.NDesiredLabels(float64(p.served.Load()))
	if _, err := p.coll.LabelUnlabeledComparisons(ctx, goal, false); err != nil {
		return fmt.Errorf("request labels: %w", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	labeled := p.coll.LabeledComparisons()
	if len(labeled) == 0 {
		log.Printf("[PRED] no labeled comparisons yet, skipping training step")
		return nil
	}

	loss := p.stepLocked(labeled)
	p.iteration++
	p.snapshot.Store(p.trainNet.Clone())
	if p.iteration%100 == 0 {
		log.Printf("[PRED] iteration %d: loss %.4f over %d labeled comparisons", p.iteration, loss, len(labeled))
	}
	return nil
}

// ObserveRollout feeds a fresh training rollout clip into the
// collector and pairs it into a new unlabeled comparison once at least
// two segments exist. The labels arrive later through TrainPredictor's
// schedule-driven requests.
func (p *ComparisonPredictor) ObserveRollout(seg *segment.Segment) error {
	if err := p.coll.AddSegment(seg); err != nil {
		return err
	}
	if _, err := p.coll.InventComparison(); err != nil && !errors.Is(err, collector.ErrNotEnoughSegments) {
		return err
	}
	return nil
}

// Iteration reports how many gradient steps have run.
func (p *ComparisonPredictor) Iteration() int64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.iteration
}

// #endregion comparison-predictor

// #region training-step

// stepLocked runs one Adam step of Bradley-Terry cross-entropy on a
// minibatch drawn without replacement. Caller holds p.mu.
func (p *ComparisonPredictor) stepLocked(labeled []*collector.Comparison) float64 {
	batch := labeled
	if len(labeled) > p.cfg.BatchSize {
		batch = make([]*collector.Comparison, p.cfg.BatchSize)
		for i, idx := range p.rng.Perm(len(labeled))[:p.cfg.BatchSize] {
			batch[i] = labeled[idx]
		}
	}

	// One concatenated forward pass over every step of every segment,
	// left halves then right halves per comparison.
	type span struct{ start, end int }
	var obs, acts [][]float64
	lefts := make([]span, len(batch))
	rights := make([]span, len(batch))
	appendSeg := func(seg *segment.Segment) span {
		s := span{start: len(obs)}
		for _, st := range seg.Steps {
			obs = append(obs, st.Obs)
			acts = append(acts, oneHot(st.Action, p.cfg.Net.ActDim))
		}
		s.end = len(obs)
		return s
	}
	for i, cmp := range batch {
		lefts[i] = appendSeg(cmp.Left)
		rights[i] = appendSeg(cmp.Right)
	}

	scores := p.trainNet.ScoreBatch(obs, acts, true)
	sum := func(s span) float64 {
		var t float64
		for i := s.start; i < s.end; i++ {
			t += scores[i]
		}
		return t
	}

	dScore := make([]float64, len(scores))
	var loss float64
	n := float64(len(batch))
	for i, cmp := range batch {
		sumL := sum(lefts[i])
		sumR := sum(rights[i])

		// Two-way softmax over segment sums, stabilized by the max.
		m := math.Max(sumL, sumR)
		eL := math.Exp(sumL - m)
		eR := math.Exp(sumR - m)
		pL := eL / (eL + eR)
		pL = math.Min(math.Max(pL, probClamp), 1-probClamp)
		pR := 1 - pL

		targetL := 0.0
		switch cmp.Label {
		case collector.LabelLeft:
			targetL = 1.0
		case collector.LabelRight:
			targetL = 0.0
		case collector.LabelEqual:
			targetL = 0.5
		}
		loss += -(targetL*math.Log(pL) + (1-targetL)*math.Log(pR))

		dL := (pL - targetL) / n
		for j := lefts[i].start; j < lefts[i].end; j++ {
			dScore[j] = dL
		}
		for j := rights[i].start; j < rights[i].end; j++ {
			dScore[j] = -dL
		}
	}

	p.trainNet.Backward(dScore)
	p.opt.Step(p.trainNet.Params(), p.trainNet.Grads())
	return loss / n
}

func oneHot(action, dim int) []float64 {
	v := make([]float64, dim)
	if action >= 0 && action < dim {
		v[action] = 1
	}
	return v
}

// #endregion training-step

// #region pretrain

// Pretrain bootstraps the predictor before RL starts: clear the
// collector, sample twice as many random-rollout segments as labels,
// invent and label the comparisons, then run nIters gradient steps.
func (p *ComparisonPredictor) Pretrain(ctx context.Context, envID string, nLabels, nIters int, clipSeconds float64, workers int) error {
	if nLabels <= 0 {
		return fmt.Errorf("pretrain labels must be > 0, got %d", nLabels)
	}
	if err := p.coll.ClearOldData(); err != nil {
		return fmt.Errorf("clear collector: %w", err)
	}

	log.Printf("[PRED] sampling %d random-rollout segments across %d workers", 2*nLabels, workers)
	segs, err := segment.SampleRandRollouts(ctx, envID, 2*nLabels, clipSeconds, workers, p.cfg.Net.Seed)
	if err != nil {
		return fmt.Errorf("sample pretrain segments: %w", err)
	}
	for _, seg := range segs {
		if err := p.coll.AddSegment(seg); err != nil {
			return err
		}
	}
	for i := 0; i < nLabels; i++ {
		if _, err := p.coll.InventComparison(); err != nil {
			return err
		}
	}
	if _, err := p.coll.LabelUnlabeledComparisons(ctx, nLabels, true); err != nil {
		return fmt.Errorf("label pretrain comparisons: %w", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	labeled := p.coll.LabeledComparisons()
	if len(labeled) == 0 {
		return fmt.Errorf("no labeled comparisons after pretraining labels")
	}
	for i := 1; i <= nIters; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		loss := p.stepLocked(labeled)
		p.iteration++
		if i%25 == 0 {
			log.Printf("[PRED] %d/%d predictor pretraining iterations (loss %.4f)", i, nIters, loss)
		}
	}
	p.snapshot.Store(p.trainNet.Clone())
	return nil
}

var _ RewardPredictor = (*ComparisonPredictor)(nil)

// #endregion pretrain
