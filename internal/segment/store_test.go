package segment

import (
	"path/filepath"
	"testing"
	"time"
)

func testStore(t *testing.T) *Store {
	t.Helper()
	s, err := NewStore(filepath.Join(t.TempDir(), "segments.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func testSegment(rewards ...float64) *Segment {
	steps := make([]Step, len(rewards))
	for i, r := range rewards {
		steps[i] = Step{Obs: []float64{float64(i), 0.5, -1.25, 3}, Action: i % 2, Reward: r}
	}
	return NewSegment("CartPole-v0", []int{4}, 2, steps, 1, 0)
}

func TestSegmentRoundTrip(t *testing.T) {
	store := testStore(t)
	seg := testSegment(1, 0, 1)

	if err := store.PutSegment(seg); err != nil {
		t.Fatalf("put segment: %v", err)
	}
	got, err := store.GetSegment(seg.ID)
	if err != nil {
		t.Fatalf("get segment: %v", err)
	}
	if got.EnvID != seg.EnvID || got.NumActions != seg.NumActions {
		t.Fatalf("metadata mismatch: %+v", got)
	}
	if got.Len() != seg.Len() {
		t.Fatalf("step count %d, want %d", got.Len(), seg.Len())
	}
	for i, st := range got.Steps {
		want := seg.Steps[i]
		if st.Action != want.Action || st.Reward != want.Reward {
			t.Fatalf("step %d mismatch: %+v vs %+v", i, st, want)
		}
		for j := range st.Obs {
			if st.Obs[j] != want.Obs[j] {
				t.Fatalf("obs[%d][%d] = %v, want %v", i, j, st.Obs[j], want.Obs[j])
			}
		}
	}
	if got.TotalReward() != 2 {
		t.Fatalf("total reward %v, want 2", got.TotalReward())
	}
}

func TestComparisonLabelOnce(t *testing.T) {
	store := testStore(t)
	left, right := testSegment(1), testSegment(0)
	if err := store.PutSegment(left); err != nil {
		t.Fatal(err)
	}
	if err := store.PutSegment(right); err != nil {
		t.Fatal(err)
	}

	rec := ComparisonRecord{
		ID: "cmp-1", LeftID: left.ID, RightID: right.ID,
		Label: "unlabeled", CreatedAt: time.Now().UTC(),
	}
	if err := store.PutComparison(rec); err != nil {
		t.Fatalf("put comparison: %v", err)
	}
	if err := store.SetLabel("cmp-1", "left", time.Now().UTC()); err != nil {
		t.Fatalf("first label: %v", err)
	}
	if err := store.SetLabel("cmp-1", "right", time.Now().UTC()); err == nil {
		t.Fatal("second label must be rejected")
	}

	list, err := store.ListComparisons()
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 1 || list[0].Label != "left" || list[0].LabeledAt == nil {
		t.Fatalf("unexpected record: %+v", list)
	}
}

func TestClearEvictsEverything(t *testing.T) {
	store := testStore(t)
	seg := testSegment(1)
	if err := store.PutSegment(seg); err != nil {
		t.Fatal(err)
	}
	if err := store.Clear(); err != nil {
		t.Fatalf("clear: %v", err)
	}
	n, err := store.CountSegments()
	if err != nil {
		t.Fatal(err)
	}
	if n != 0 {
		t.Fatalf("expected empty store, found %d segments", n)
	}
}
