package collector

import (
	"context"
	"log"
	"math"
	"math/rand"

	"github.com/openpref/preflearn/internal/segment"
)

// #region config

// SyntheticConfig tunes the oracle's tie band and noise.
type SyntheticConfig struct {
	// TieEpsilon: cumulative-reward gaps at or below this yield equal.
	TieEpsilon float64
	// NoiseProb flips the preferred side with this probability.
	NoiseProb float64
}

// DefaultSyntheticConfig is a noiseless oracle with exact-equality ties.
func DefaultSyntheticConfig() SyntheticConfig {
	return SyntheticConfig{TieEpsilon: 0, NoiseProb: 0}
}

// #endregion config

// #region synthetic

// Synthetic labels comparisons by comparing true cumulative environment
// reward. Labeling is synchronous and never blocks.
type Synthetic struct {
	pool
	cfg SyntheticConfig
}

// NewSynthetic creates a synthetic oracle collector. store may be nil
// for a purely in-memory pool; rng may be nil to self-seed.
func NewSynthetic(cfg SyntheticConfig, rng *rand.Rand, store *segment.Store) *Synthetic {
	return &Synthetic{pool: newPool(rng, store), cfg: cfg}
}

// LabelUnlabeledComparisons labels oldest-first until goal total labeled
// comparisons or none remain unlabeled.
func (s *Synthetic) LabelUnlabeledComparisons(ctx context.Context, goal int, verbose bool) (int, error) {
	labeled := 0
	for {
		if err := ctx.Err(); err != nil {
			return labeled, err
		}
		s.mu.Lock()
		have := s.labeledCountLocked()
		s.mu.Unlock()
		if have >= goal {
			break
		}
		unlabeled := s.unlabeledSnapshot()
		if len(unlabeled) == 0 {
			break
		}
		cmp := unlabeled[0]
		if err := s.setLabel(cmp, s.judge(cmp)); err != nil {
			return labeled, err
		}
		labeled++
		if verbose && labeled%25 == 0 {
			log.Printf("[COLL] synthetic oracle labeled %d comparisons (goal %d)", labeled, goal)
		}
	}
	return labeled, nil
}

// judge compares true cumulative rewards with the tie band, optionally
// flipping the result with NoiseProb.
func (s *Synthetic) judge(cmp *Comparison) Label {
	left := cmp.Left.TotalReward()
	right := cmp.Right.TotalReward()

	var label Label
	switch {
	case math.Abs(left-right) <= s.cfg.TieEpsilon:
		label = LabelEqual
	case left > right:
		label = LabelLeft
	default:
		label = LabelRight
	}

	if s.cfg.NoiseProb > 0 && label != LabelEqual {
		s.mu.Lock()
		flip := s.rng.Float64() < s.cfg.NoiseProb
		s.mu.Unlock()
		if flip {
			if label == LabelLeft {
				label = LabelRight
			} else {
				label = LabelLeft
			}
		}
	}
	return label
}

var _ Collector = (*Synthetic)(nil)

// #endregion synthetic
