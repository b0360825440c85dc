package segment

import (
	"context"
	"testing"
)

func TestClipSteps(t *testing.T) {
	cases := []struct {
		seconds, fps float64
		want         int
	}{
		{1.5, 50, 75},
		{0.1, 50, 5},
		{0.01, 10, 1}, // rounds up, never zero
		{2, 10, 20},
	}
	for _, c := range cases {
		if got := ClipSteps(c.seconds, c.fps); got != c.want {
			t.Fatalf("ClipSteps(%v, %v) = %d, want %d", c.seconds, c.fps, got, c.want)
		}
	}
}

func TestSampleRandRolloutsCollectsExactCount(t *testing.T) {
	segs, err := SampleRandRollouts(context.Background(), "CartPole-v0", 12, 0.1, 4, 1)
	if err != nil {
		t.Fatalf("sample: %v", err)
	}
	if len(segs) != 12 {
		t.Fatalf("expected 12 segments, got %d", len(segs))
	}
	seen := map[string]bool{}
	for _, s := range segs {
		if s.Len() != 5 {
			t.Fatalf("clip length %d, want 5 (0.1s at 50fps)", s.Len())
		}
		if seen[s.ID] {
			t.Fatalf("duplicate segment id %s", s.ID)
		}
		seen[s.ID] = true
		if s.EnvID != "CartPole-v0" || s.NumActions != 2 {
			t.Fatalf("bad segment metadata: %+v", s)
		}
	}
}

func TestSampleRandRolloutsUnknownEnv(t *testing.T) {
	if _, err := SampleRandRollouts(context.Background(), "Nope-v0", 4, 0.1, 2, 1); err == nil {
		t.Fatal("expected error for unknown env")
	}
}

func TestSampleRandRolloutsRejectsOversizedClip(t *testing.T) {
	// 20s at 50fps is a 1000-step clip; cartpole episodes cap at 500.
	if _, err := SampleRandRollouts(context.Background(), "CartPole-v0", 2, 20, 1, 1); err == nil {
		t.Fatal("expected error when clips cannot fit any episode")
	}
}

func TestSampleRandRolloutsImageEnv(t *testing.T) {
	segs, err := SampleRandRollouts(context.Background(), "PixelGrid-v0", 3, 0.5, 2, 9)
	if err != nil {
		t.Fatalf("sample: %v", err)
	}
	for _, s := range segs {
		if len(s.ObsShape) != 2 {
			t.Fatalf("expected image-shaped obs, got shape %v", s.ObsShape)
		}
		if s.Len() != 5 {
			t.Fatalf("clip length %d, want 5 (0.5s at 10fps)", s.Len())
		}
	}
}
