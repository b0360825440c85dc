package collector

import (
	"context"
	"fmt"
	"log"
	"math/rand"
	"time"

	"github.com/openpref/preflearn/internal/segment"
)

// #region backend

// LabelRequest carries one comparison to the external labeling channel.
type LabelRequest struct {
	ComparisonID string
	Left         *segment.Segment
	Right        *segment.Segment
}

// LabelResponse is a human verdict for a dispatched comparison.
type LabelResponse struct {
	ComparisonID string
	Label        Label
}

// LabelBackend is the request/response channel to a human-facing
// labeling interface. Implementations must not assume every dispatched
// comparison gets an answer.
type LabelBackend interface {
	Dispatch(ctx context.Context, req LabelRequest) error
	Poll(ctx context.Context) ([]LabelResponse, error)
	PendingCount(ctx context.Context) (int, error)
}

// #endregion backend

// #region human

// Human dispatches comparisons to a labeling backend and polls for
// verdicts. Labeling blocks for unbounded real time, so it runs without
// holding the pool lock; cancellation comes from the caller's context.
type Human struct {
	pool
	backend      LabelBackend
	pollInterval time.Duration
	dispatched   map[string]*Comparison
	carry        []LabelResponse // verdicts beyond a call's goal, kept for the next call
}

// NewHuman creates a human-backed collector. pollInterval bounds how
// often the backend is polled; zero defaults to one second.
func NewHuman(backend LabelBackend, pollInterval time.Duration, rng *rand.Rand, store *segment.Store) *Human {
	if pollInterval <= 0 {
		pollInterval = time.Second
	}
	return &Human{
		pool:         newPool(rng, store),
		backend:      backend,
		pollInterval: pollInterval,
		dispatched:   map[string]*Comparison{},
	}
}

// LabelUnlabeledComparisons dispatches every unlabeled comparison, then
// polls until the labeled total reaches goal, the context ends, or no
// answers can still arrive. Unanswered comparisons stay unlabeled.
func (h *Human) LabelUnlabeledComparisons(ctx context.Context, goal int, verbose bool) (int, error) {
	if err := h.dispatchUnlabeled(ctx); err != nil {
		return 0, err
	}

	newlyLabeled := 0
	ticker := time.NewTicker(h.pollInterval)
	defer ticker.Stop()

	for {
		h.mu.Lock()
		have := h.labeledCountLocked()
		h.mu.Unlock()
		if have >= goal {
			return newlyLabeled, nil
		}

		polled, err := h.backend.Poll(ctx)
		if err != nil {
			return newlyLabeled, fmt.Errorf("poll labels: %w", err)
		}
		responses := append(h.carry, polled...)
		h.carry = nil
		for i, resp := range responses {
			if have >= goal {
				h.carry = responses[i:]
				break
			}
			cmp, ok := h.dispatched[resp.ComparisonID]
			if !ok {
				log.Printf("[LABEL] dropping response for unknown comparison %s", resp.ComparisonID)
				continue
			}
			if err := h.setLabel(cmp, resp.Label); err != nil {
				// Duplicate verdicts are harmless; keep the first.
				log.Printf("[LABEL] %v", err)
				continue
			}
			newlyLabeled++
			have++
		}
		if have >= goal {
			return newlyLabeled, nil
		}

		pending, err := h.backend.PendingCount(ctx)
		if err != nil {
			return newlyLabeled, fmt.Errorf("pending count: %w", err)
		}
		if pending == 0 && len(h.unlabeledSnapshot()) == 0 {
			return newlyLabeled, nil
		}

		if verbose {
			h.mu.Lock()
			have = h.labeledCountLocked()
			h.mu.Unlock()
			log.Printf("[LABEL] %d/%d comparisons labeled, %d awaiting human verdicts", have, goal, pending)
		}

		select {
		case <-ctx.Done():
			return newlyLabeled, ctx.Err()
		case <-ticker.C:
		}
	}
}

// dispatchUnlabeled posts comparisons that have not been sent yet.
func (h *Human) dispatchUnlabeled(ctx context.Context) error {
	for _, cmp := range h.unlabeledSnapshot() {
		if _, sent := h.dispatched[cmp.ID]; sent {
			continue
		}
		req := LabelRequest{ComparisonID: cmp.ID, Left: cmp.Left, Right: cmp.Right}
		if err := h.backend.Dispatch(ctx, req); err != nil {
			return fmt.Errorf("dispatch comparison %s: %w", cmp.ID, err)
		}
		h.dispatched[cmp.ID] = cmp
	}
	return nil
}

var _ Collector = (*Human)(nil)

// #endregion human
