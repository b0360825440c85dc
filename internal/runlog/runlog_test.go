package runlog

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/openpref/preflearn/internal/segment"
)

// #region helpers

func setupDB(t *testing.T) *segment.Store {
	t.Helper()
	store, err := segment.NewStore(filepath.Join(t.TempDir(), "run.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

// #endregion helpers

// #region log-event-tests

func TestLogEvent_Success(t *testing.T) {
	store := setupDB(t)

	ev := Event{
		RunName:   "cartpole-synth",
		EventType: "predictor_step",
		Detail:    map[string]any{"iteration": 100, "loss": 0.42},
		CreatedAt: time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
	}
	if err := LogEvent(store.DB(), ev); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	events, err := ListEvents(store.DB(), "cartpole-synth")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}
	if events[0].EventType != "predictor_step" {
		t.Errorf("expected event_type 'predictor_step', got %q", events[0].EventType)
	}
	detail, ok := events[0].Detail.(string)
	if !ok || detail == "" {
		t.Fatalf("expected JSON detail, got %v", events[0].Detail)
	}
}

func TestLogEvent_ZeroCreatedAt(t *testing.T) {
	store := setupDB(t)

	before := time.Now().UTC()
	if err := LogEvent(store.DB(), Event{RunName: "r", EventType: "run_started"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	events, err := ListEvents(store.DB(), "r")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if events[0].CreatedAt.Before(before.Truncate(time.Second)) {
		t.Error("expected auto-filled created_at to be >= test start time")
	}
}

func TestLogEvent_Validation(t *testing.T) {
	store := setupDB(t)

	if err := LogEvent(store.DB(), Event{EventType: "run_started"}); err == nil {
		t.Error("expected error on missing run name")
	}
	if err := LogEvent(store.DB(), Event{RunName: "r"}); err == nil {
		t.Error("expected error on missing event type")
	}
}

func TestListEvents_OrderedAndScoped(t *testing.T) {
	store := setupDB(t)

	for _, typ := range []string{"run_started", "pretrain_done", "run_finished"} {
		if err := LogEvent(store.DB(), Event{RunName: "a", EventType: typ}); err != nil {
			t.Fatalf("log: %v", err)
		}
	}
	if err := LogEvent(store.DB(), Event{RunName: "b", EventType: "run_started"}); err != nil {
		t.Fatalf("log: %v", err)
	}

	events, err := ListEvents(store.DB(), "a")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(events) != 3 {
		t.Fatalf("expected 3 events for run a, got %d", len(events))
	}
	if events[0].EventType != "run_started" || events[2].EventType != "run_finished" {
		t.Errorf("events out of order: %v, %v", events[0].EventType, events[2].EventType)
	}
}

// #endregion log-event-tests
