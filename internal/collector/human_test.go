package collector

import (
	"context"
	"math/rand"
	"sync"
	"testing"
	"time"
)

// fakeBackend answers a configurable subset of dispatched comparisons.
type fakeBackend struct {
	mu        sync.Mutex
	pending   []LabelRequest
	answers   map[string]Label // comparisons the "human" will answer
	responded map[string]bool
	extra     []LabelResponse // injected duplicates or strays
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{answers: map[string]Label{}, responded: map[string]bool{}}
}

func (f *fakeBackend) Dispatch(_ context.Context, req LabelRequest) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pending = append(f.pending, req)
	return nil
}

func (f *fakeBackend) Poll(context.Context) ([]LabelResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []LabelResponse
	remaining := f.pending[:0]
	for _, req := range f.pending {
		if label, ok := f.answers[req.ComparisonID]; ok && !f.responded[req.ComparisonID] {
			f.responded[req.ComparisonID] = true
			out = append(out, LabelResponse{ComparisonID: req.ComparisonID, Label: label})
		} else {
			remaining = append(remaining, req)
		}
	}
	f.pending = remaining
	out = append(out, f.extra...)
	f.extra = nil
	return out, nil
}

func (f *fakeBackend) PendingCount(context.Context) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.pending), nil
}

func humanWithComparisons(t *testing.T, backend LabelBackend, n int) (*Human, []*Comparison) {
	t.Helper()
	h := NewHuman(backend, 5*time.Millisecond, rand.New(rand.NewSource(1)), nil)
	if err := h.AddSegment(segWithReward(5, 2)); err != nil {
		t.Fatal(err)
	}
	if err := h.AddSegment(segWithReward(-1, 2)); err != nil {
		t.Fatal(err)
	}
	cmps := make([]*Comparison, n)
	for i := range cmps {
		cmp, err := h.InventComparison()
		if err != nil {
			t.Fatal(err)
		}
		cmps[i] = cmp
	}
	return h, cmps
}

func TestHumanCollectsVerdictsUntilGoal(t *testing.T) {
	backend := newFakeBackend()
	h, cmps := humanWithComparisons(t, backend, 3)
	for _, cmp := range cmps {
		backend.answers[cmp.ID] = LabelLeft
	}

	n, err := h.LabelUnlabeledComparisons(context.Background(), 3, true)
	if err != nil {
		t.Fatalf("label: %v", err)
	}
	if n != 3 {
		t.Fatalf("expected 3 newly labeled, got %d", n)
	}
	for _, cmp := range cmps {
		if cmp.Label != LabelLeft {
			t.Fatalf("comparison %s not labeled", cmp.ID)
		}
	}
}

func TestHumanUnansweredStayUnlabeled(t *testing.T) {
	backend := newFakeBackend()
	h, cmps := humanWithComparisons(t, backend, 4)
	// The human only ever answers two of the four.
	backend.answers[cmps[0].ID] = LabelRight
	backend.answers[cmps[1].ID] = LabelEqual

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	n, err := h.LabelUnlabeledComparisons(ctx, 4, false)
	if err == nil {
		t.Fatal("expected context deadline with an unresponsive labeler")
	}
	if n != 2 {
		t.Fatalf("expected 2 newly labeled before timeout, got %d", n)
	}
	if got := len(h.LabeledComparisons()); got != 2 {
		t.Fatalf("training feed must exclude unlabeled comparisons, got %d", got)
	}
	if cmps[2].Label != LabelUnlabeled || cmps[3].Label != LabelUnlabeled {
		t.Fatal("unanswered comparisons must stay unlabeled")
	}
}

func TestHumanIgnoresDuplicateAndStrayVerdicts(t *testing.T) {
	backend := newFakeBackend()
	h, cmps := humanWithComparisons(t, backend, 2)
	backend.answers[cmps[0].ID] = LabelLeft
	backend.answers[cmps[1].ID] = LabelRight
	backend.extra = []LabelResponse{
		{ComparisonID: cmps[0].ID, Label: LabelRight}, // duplicate verdict
		{ComparisonID: "no-such-comparison", Label: LabelLeft},
	}

	n, err := h.LabelUnlabeledComparisons(context.Background(), 2, false)
	if err != nil {
		t.Fatalf("label: %v", err)
	}
	if n != 2 {
		t.Fatalf("expected 2 newly labeled, got %d", n)
	}
	if cmps[0].Label != LabelLeft {
		t.Fatalf("first verdict must win, got %s", cmps[0].Label)
	}
}
