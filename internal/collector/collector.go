// Package collector owns the pool of segments and comparisons and the
// labeling process that turns comparisons into training data.
package collector

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/openpref/preflearn/internal/segment"
)

// #region label

// Label is the outcome of comparing two segments.
type Label string

const (
	LabelUnlabeled Label = "unlabeled"
	LabelLeft      Label = "left"
	LabelRight     Label = "right"
	LabelEqual     Label = "equal"
)

// #endregion label

// #region comparison

// Comparison pairs two segments with an optional preference label.
// Created unlabeled; the labeling process sets a terminal label at most
// once. Permanently unlabeled comparisons never reach training.
type Comparison struct {
	ID        string
	Left      *segment.Segment
	Right     *segment.Segment
	Label     Label
	CreatedAt time.Time
}

// #endregion comparison

// #region interface

// Collector is the contract shared by the synthetic oracle and the
// human-backed collector.
type Collector interface {
	// AddSegment transfers ownership of a segment into the pool.
	AddSegment(seg *segment.Segment) error
	// InventComparison creates an unlabeled comparison from two distinct
	// previously added segments, picked uniformly.
	InventComparison() (*Comparison, error)
	// LabelUnlabeledComparisons labels until the total labeled count
	// reaches goal or no unlabeled comparisons remain, and returns how
	// many it newly labeled.
	LabelUnlabeledComparisons(ctx context.Context, goal int, verbose bool) (int, error)
	// ClearOldData evicts all segments and comparisons.
	ClearOldData() error
	// LabeledRatio reports labeled / total comparisons for backpressure.
	LabeledRatio() float64
	// LabeledComparisons returns the comparisons eligible for training.
	LabeledComparisons() []*Comparison
}

// #endregion interface

// #region pool

// pool is the shared segment/comparison bookkeeping. A single mutex
// guards it; labeling backends must not hold the lock while waiting on
// external responses.
type pool struct {
	mu          sync.Mutex
	segments    []*segment.Segment
	comparisons []*Comparison
	rng         *rand.Rand
	store       *segment.Store // optional write-through persistence
}

func newPool(rng *rand.Rand, store *segment.Store) pool {
	if rng == nil {
		rng = rand.New(rand.NewSource(rand.Int63()))
	}
	return pool{rng: rng, store: store}
}

func (p *pool) AddSegment(seg *segment.Segment) error {
	p.mu.Lock()
	p.segments = append(p.segments, seg)
	store := p.store
	p.mu.Unlock()

	if store != nil {
		if err := store.PutSegment(seg); err != nil {
			return fmt.Errorf("persist segment: %w", err)
		}
	}
	return nil
}

// ErrNotEnoughSegments is returned by InventComparison before two
// segments have been added.
var ErrNotEnoughSegments = errors.New("need at least 2 segments to invent a comparison")

func (p *pool) InventComparison() (*Comparison, error) {
	p.mu.Lock()
	if len(p.segments) < 2 {
		n := len(p.segments)
		p.mu.Unlock()
		return nil, fmt.Errorf("%w, have %d", ErrNotEnoughSegments, n)
	}
	i := p.rng.Intn(len(p.segments))
	j := p.rng.Intn(len(p.segments) - 1)
	if j >= i {
		j++
	}
	cmp := &Comparison{
		ID:        uuid.New().String(),
		Left:      p.segments[i],
		Right:     p.segments[j],
		Label:     LabelUnlabeled,
		CreatedAt: time.Now().UTC(),
	}
	p.comparisons = append(p.comparisons, cmp)
	store := p.store
	p.mu.Unlock()

	if store != nil {
		err := store.PutComparison(segment.ComparisonRecord{
			ID:        cmp.ID,
			LeftID:    cmp.Left.ID,
			RightID:   cmp.Right.ID,
			Label:     string(LabelUnlabeled),
			CreatedAt: cmp.CreatedAt,
		})
		if err != nil {
			return nil, fmt.Errorf("persist comparison: %w", err)
		}
	}
	return cmp, nil
}

func (p *pool) ClearOldData() error {
	p.mu.Lock()
	p.segments = nil
	p.comparisons = nil
	store := p.store
	p.mu.Unlock()

	if store != nil {
		if err := store.Clear(); err != nil {
			return fmt.Errorf("clear store: %w", err)
		}
	}
	return nil
}

func (p *pool) LabeledRatio() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.comparisons) == 0 {
		return 0
	}
	return float64(p.labeledCountLocked()) / float64(len(p.comparisons))
}

func (p *pool) LabeledComparisons() []*Comparison {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]*Comparison, 0, len(p.comparisons))
	for _, c := range p.comparisons {
		if c.Label != LabelUnlabeled {
			out = append(out, c)
		}
	}
	return out
}

// SegmentCount reports the pool size.
func (p *pool) SegmentCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.segments)
}

func (p *pool) labeledCountLocked() int {
	n := 0
	for _, c := range p.comparisons {
		if c.Label != LabelUnlabeled {
			n++
		}
	}
	return n
}

// unlabeledSnapshot copies the unlabeled comparisons so labeling can run
// without holding the pool lock.
func (p *pool) unlabeledSnapshot() []*Comparison {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]*Comparison, 0)
	for _, c := range p.comparisons {
		if c.Label == LabelUnlabeled {
			out = append(out, c)
		}
	}
	return out
}

// setLabel applies a terminal label exactly once.
func (p *pool) setLabel(cmp *Comparison, label Label) error {
	if label == LabelUnlabeled {
		return fmt.Errorf("cannot set label to unlabeled")
	}
	p.mu.Lock()
	if cmp.Label != LabelUnlabeled {
		p.mu.Unlock()
		return fmt.Errorf("comparison %s already labeled %s", cmp.ID, cmp.Label)
	}
	cmp.Label = label
	store := p.store
	p.mu.Unlock()

	if store != nil {
		if err := store.SetLabel(cmp.ID, string(label), time.Now().UTC()); err != nil {
			return fmt.Errorf("persist label: %w", err)
		}
	}
	return nil
}

// #endregion pool
