package collector

import (
	"context"
	"math/rand"
	"testing"

	"github.com/openpref/preflearn/internal/segment"
)

func segWithReward(total float64, steps int) *segment.Segment {
	ss := make([]segment.Step, steps)
	for i := range ss {
		ss[i] = segment.Step{Obs: []float64{1, 2, 3, 4}, Action: 0, Reward: total / float64(steps)}
	}
	return segment.NewSegment("CartPole-v0", []int{4}, 2, ss, 0, 0)
}

func TestInventComparisonNeedsTwoSegments(t *testing.T) {
	c := NewSynthetic(DefaultSyntheticConfig(), rand.New(rand.NewSource(1)), nil)
	if _, err := c.InventComparison(); err == nil {
		t.Fatal("expected error with empty pool")
	}
	if err := c.AddSegment(segWithReward(1, 3)); err != nil {
		t.Fatal(err)
	}
	if _, err := c.InventComparison(); err == nil {
		t.Fatal("expected error with a single segment")
	}
	if err := c.AddSegment(segWithReward(2, 3)); err != nil {
		t.Fatal(err)
	}
	cmp, err := c.InventComparison()
	if err != nil {
		t.Fatalf("invent: %v", err)
	}
	if cmp.Left.ID == cmp.Right.ID {
		t.Fatal("comparison must pair distinct segments")
	}
	if cmp.Label != LabelUnlabeled {
		t.Fatalf("new comparison must be unlabeled, got %s", cmp.Label)
	}
}

func TestSyntheticPrefersHigherTrueReward(t *testing.T) {
	c := NewSynthetic(DefaultSyntheticConfig(), rand.New(rand.NewSource(2)), nil)
	high := segWithReward(10, 5)
	low := segWithReward(-5, 5)
	if err := c.AddSegment(high); err != nil {
		t.Fatal(err)
	}
	if err := c.AddSegment(low); err != nil {
		t.Fatal(err)
	}

	agree := 0
	const trials = 200
	for i := 0; i < trials; i++ {
		cmp, err := c.InventComparison()
		if err != nil {
			t.Fatal(err)
		}
		if _, err := c.LabelUnlabeledComparisons(context.Background(), i+1, false); err != nil {
			t.Fatal(err)
		}
		want := LabelLeft
		if cmp.Left.ID == low.ID {
			want = LabelRight
		}
		if cmp.Label == want {
			agree++
		}
	}
	if float64(agree) < 0.99*trials {
		t.Fatalf("oracle agreed with true ordering only %d/%d times", agree, trials)
	}
}

func TestSyntheticTieBandYieldsEqual(t *testing.T) {
	cfg := SyntheticConfig{TieEpsilon: 0.5}
	c := NewSynthetic(cfg, rand.New(rand.NewSource(3)), nil)
	if err := c.AddSegment(segWithReward(1.0, 2)); err != nil {
		t.Fatal(err)
	}
	if err := c.AddSegment(segWithReward(1.3, 2)); err != nil {
		t.Fatal(err)
	}
	cmp, err := c.InventComparison()
	if err != nil {
		t.Fatal(err)
	}
	if _, err := c.LabelUnlabeledComparisons(context.Background(), 1, false); err != nil {
		t.Fatal(err)
	}
	if cmp.Label != LabelEqual {
		t.Fatalf("gap within epsilon should yield equal, got %s", cmp.Label)
	}
}

func TestLabelGoalCapAndOnceOnly(t *testing.T) {
	c := NewSynthetic(DefaultSyntheticConfig(), rand.New(rand.NewSource(4)), nil)
	if err := c.AddSegment(segWithReward(3, 2)); err != nil {
		t.Fatal(err)
	}
	if err := c.AddSegment(segWithReward(7, 2)); err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 10; i++ {
		if _, err := c.InventComparison(); err != nil {
			t.Fatal(err)
		}
	}

	n, err := c.LabelUnlabeledComparisons(context.Background(), 4, false)
	if err != nil {
		t.Fatal(err)
	}
	if n != 4 {
		t.Fatalf("expected 4 newly labeled, got %d", n)
	}
	if got := len(c.LabeledComparisons()); got != 4 {
		t.Fatalf("expected 4 labeled comparisons, got %d", got)
	}

	// Goal already met: nothing new gets labeled.
	n, err = c.LabelUnlabeledComparisons(context.Background(), 4, false)
	if err != nil {
		t.Fatal(err)
	}
	if n != 0 {
		t.Fatalf("expected 0 newly labeled on met goal, got %d", n)
	}

	// Remaining unlabeled pool caps the count.
	n, err = c.LabelUnlabeledComparisons(context.Background(), 100, false)
	if err != nil {
		t.Fatal(err)
	}
	if n != 6 {
		t.Fatalf("expected the 6 remaining, got %d", n)
	}
	if ratio := c.LabeledRatio(); ratio != 1.0 {
		t.Fatalf("expected ratio 1.0, got %v", ratio)
	}
}

func TestClearOldDataEvictsPool(t *testing.T) {
	c := NewSynthetic(DefaultSyntheticConfig(), rand.New(rand.NewSource(5)), nil)
	if err := c.AddSegment(segWithReward(1, 2)); err != nil {
		t.Fatal(err)
	}
	if err := c.AddSegment(segWithReward(2, 2)); err != nil {
		t.Fatal(err)
	}
	if _, err := c.InventComparison(); err != nil {
		t.Fatal(err)
	}
	if err := c.ClearOldData(); err != nil {
		t.Fatal(err)
	}
	if c.SegmentCount() != 0 {
		t.Fatal("segments should be evicted")
	}
	if c.LabeledRatio() != 0 {
		t.Fatal("comparisons should be evicted")
	}
}
