package schedule

import (
	"testing"
	"time"
)

func TestAnnealerReferenceCurve(t *testing.T) {
	a, err := NewAnnealer(100, 1000, 1_000_000)
	if err != nil {
		t.Fatalf("new annealer: %v", err)
	}
	cases := []struct {
		progress float64
		want     int
	}{
		{0, 100},
		{500_000, 550},
		{1_000_000, 1000},
		{2_000_000, 1000},
		{-5, 100},
	}
	for _, c := range cases {
		if got := a.NDesiredLabels(c.progress); got != c.want {
			t.Fatalf("NDesiredLabels(%g) = %d, want %d", c.progress, got, c.want)
		}
	}
}

func TestAnnealerMonotoneAndBounded(t *testing.T) {
	a, err := NewAnnealer(10, 500, 100_000)
	if err != nil {
		t.Fatal(err)
	}
	prev := -1
	for p := 0.0; p <= 250_000; p += 997 {
		n := a.NDesiredLabels(p)
		if n < prev {
			t.Fatalf("schedule decreased at progress %g: %d < %d", p, n, prev)
		}
		if n > 500 {
			t.Fatalf("schedule exceeded final labels at progress %g: %d", p, n)
		}
		prev = n
	}
	if prev != 500 {
		t.Fatalf("schedule should reach final labels, ended at %d", prev)
	}
}

func TestAnnealerRejectsBadParams(t *testing.T) {
	if _, err := NewAnnealer(10, 0, 1000); err == nil {
		t.Fatal("zero final labels must be rejected")
	}
	if _, err := NewAnnealer(10, 100, 0); err == nil {
		t.Fatal("zero final timesteps must be rejected")
	}
	if _, err := NewAnnealer(200, 100, 1000); err == nil {
		t.Fatal("pretrain above final must be rejected")
	}
}

func TestConstantScheduleGrowsWithWallClock(t *testing.T) {
	s := NewConstantSchedule(25, 5*time.Second)
	base := time.Now()
	s.startedAt = base
	current := base
	s.now = func() time.Time { return current }

	if got := s.NDesiredLabels(1e9); got != 25 {
		t.Fatalf("at start expected pretrain count 25, got %d", got)
	}
	current = base.Add(4 * time.Second)
	if got := s.NDesiredLabels(0); got != 25 {
		t.Fatalf("before first interval expected 25, got %d", got)
	}
	current = base.Add(26 * time.Second)
	if got := s.NDesiredLabels(0); got != 30 {
		t.Fatalf("after 26s expected 30, got %d", got)
	}
}
