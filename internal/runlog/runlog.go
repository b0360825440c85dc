// Package runlog appends training milestones to the run_log table so a
// finished run can be reconstructed after the fact.
package runlog

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// #region event

// Event is a single row in the run_log table.
type Event struct {
	RunName   string
	EventType string // "run_started" | "pretrain_done" | "predictor_step" | "checkpoint" | "run_finished"
	Detail    any    // serialized as JSON into detail_json
	CreatedAt time.Time
}

// #endregion event

// #region log-event

// LogEvent writes one milestone to the run_log table.
func LogEvent(db *sql.DB, ev Event) error {
	if ev.RunName == "" {
		return fmt.Errorf("run name is required")
	}
	if ev.EventType == "" {
		return fmt.Errorf("event type is required")
	}
	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = time.Now().UTC()
	}

	var detail interface{}
	if ev.Detail != nil {
		raw, err := json.Marshal(ev.Detail)
		if err != nil {
			return fmt.Errorf("marshal event detail: %w", err)
		}
		detail = string(raw)
	}

	_, err := db.Exec(
		`INSERT INTO run_log (run_name, event_type, detail_json, created_at)
		 VALUES (?, ?, ?, ?)`,
		ev.RunName,
		ev.EventType,
		detail,
		ev.CreatedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("log run event: %w", err)
	}
	return nil
}

// #endregion log-event

// #region list-events

// ListEvents returns a run's events oldest-first.
func ListEvents(db *sql.DB, runName string) ([]Event, error) {
	rows, err := db.Query(
		`SELECT run_name, event_type, detail_json, created_at
		 FROM run_log WHERE run_name = ? ORDER BY id`, runName)
	if err != nil {
		return nil, fmt.Errorf("list run events: %w", err)
	}
	defer rows.Close()

	var out []Event
	for rows.Next() {
		var ev Event
		var detail sql.NullString
		var createdAt string
		if err := rows.Scan(&ev.RunName, &ev.EventType, &detail, &createdAt); err != nil {
			return nil, fmt.Errorf("scan run event: %w", err)
		}
		if detail.Valid {
			ev.Detail = detail.String
		}
		ev.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
		out = append(out, ev)
	}
	return out, rows.Err()
}

// #endregion list-events
