package segment

import (
	"bytes"
	"database/sql"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"time"

	_ "modernc.org/sqlite"
)

// #region schema
const schema = `
CREATE TABLE IF NOT EXISTS segments (
	segment_id    TEXT PRIMARY KEY,
	env_id        TEXT NOT NULL,
	obs_shape     TEXT NOT NULL,
	num_actions   INTEGER NOT NULL,
	episode       INTEGER NOT NULL,
	worker        INTEGER NOT NULL,
	total_reward  REAL NOT NULL,
	steps         BLOB NOT NULL,
	created_at    TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS comparisons (
	comparison_id TEXT PRIMARY KEY,
	left_id       TEXT NOT NULL,
	right_id      TEXT NOT NULL,
	label         TEXT NOT NULL,
	created_at    TEXT NOT NULL,
	labeled_at    TEXT,
	FOREIGN KEY (left_id) REFERENCES segments(segment_id),
	FOREIGN KEY (right_id) REFERENCES segments(segment_id)
);

CREATE TABLE IF NOT EXISTS run_log (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	run_name    TEXT NOT NULL,
	event_type  TEXT NOT NULL,
	detail_json TEXT,
	created_at  TEXT NOT NULL
);
`

// #endregion schema

// #region store-struct

// Store persists segments and comparisons in SQLite.
type Store struct {
	db *sql.DB
}

// #endregion store-struct

// #region constructor

// NewStore opens a SQLite database and runs migrations.
func NewStore(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		return nil, fmt.Errorf("pragma: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		return nil, fmt.Errorf("pragma fk: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return &Store{db: db}, nil
}

// #endregion constructor

// #region close

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB returns the underlying *sql.DB for use by other packages (e.g. runlog).
func (s *Store) DB() *sql.DB {
	return s.db
}

// #endregion close

// #region put-segment

// PutSegment inserts one segment.
func (s *Store) PutSegment(seg *Segment) error {
	shape, err := json.Marshal(seg.ObsShape)
	if err != nil {
		return fmt.Errorf("marshal obs shape: %w", err)
	}
	blob, err := encodeSteps(seg.Steps)
	if err != nil {
		return fmt.Errorf("encode steps: %w", err)
	}
	_, err = s.db.Exec(
		`INSERT INTO segments (segment_id, env_id, obs_shape, num_actions, episode, worker, total_reward, steps, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		seg.ID, seg.EnvID, string(shape), seg.NumActions, seg.Episode, seg.Worker,
		seg.TotalReward(), blob, seg.CreatedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("insert segment: %w", err)
	}
	return nil
}

// #endregion put-segment

// #region get-segment

// GetSegment loads one segment by ID.
func (s *Store) GetSegment(id string) (*Segment, error) {
	row := s.db.QueryRow(
		`SELECT segment_id, env_id, obs_shape, num_actions, episode, worker, steps, created_at
		 FROM segments WHERE segment_id = ?`, id)

	var seg Segment
	var shapeJSON, createdAt string
	var blob []byte
	if err := row.Scan(&seg.ID, &seg.EnvID, &shapeJSON, &seg.NumActions, &seg.Episode, &seg.Worker, &blob, &createdAt); err != nil {
		return nil, fmt.Errorf("get segment %s: %w", id, err)
	}
	if err := json.Unmarshal([]byte(shapeJSON), &seg.ObsShape); err != nil {
		return nil, fmt.Errorf("decode obs shape: %w", err)
	}
	steps, err := decodeSteps(blob)
	if err != nil {
		return nil, fmt.Errorf("decode steps: %w", err)
	}
	seg.Steps = steps
	seg.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
	return &seg, nil
}

// CountSegments returns the number of stored segments.
func (s *Store) CountSegments() (int, error) {
	var n int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM segments`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count segments: %w", err)
	}
	return n, nil
}

// #endregion get-segment

// #region comparisons

// ComparisonRecord is the persisted form of a comparison.
type ComparisonRecord struct {
	ID        string
	LeftID    string
	RightID   string
	Label     string
	CreatedAt time.Time
	LabeledAt *time.Time
}

// PutComparison inserts an unlabeled comparison record.
func (s *Store) PutComparison(rec ComparisonRecord) error {
	_, err := s.db.Exec(
		`INSERT INTO comparisons (comparison_id, left_id, right_id, label, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
		rec.ID, rec.LeftID, rec.RightID, rec.Label, rec.CreatedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("insert comparison: %w", err)
	}
	return nil
}

// SetLabel records a comparison's terminal label.
func (s *Store) SetLabel(id, label string, at time.Time) error {
	res, err := s.db.Exec(
		`UPDATE comparisons SET label = ?, labeled_at = ? WHERE comparison_id = ? AND labeled_at IS NULL`,
		label, at.Format(time.RFC3339Nano), id,
	)
	if err != nil {
		return fmt.Errorf("set label: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("set label: comparison %s missing or already labeled", id)
	}
	return nil
}

// ListComparisons returns all comparison records, oldest first.
func (s *Store) ListComparisons() ([]ComparisonRecord, error) {
	rows, err := s.db.Query(
		`SELECT comparison_id, left_id, right_id, label, created_at, labeled_at
		 FROM comparisons ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("list comparisons: %w", err)
	}
	defer rows.Close()

	var out []ComparisonRecord
	for rows.Next() {
		var rec ComparisonRecord
		var createdAt string
		var labeledAt sql.NullString
		if err := rows.Scan(&rec.ID, &rec.LeftID, &rec.RightID, &rec.Label, &createdAt, &labeledAt); err != nil {
			return nil, fmt.Errorf("scan comparison: %w", err)
		}
		rec.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
		if labeledAt.Valid {
			t, _ := time.Parse(time.RFC3339Nano, labeledAt.String)
			rec.LabeledAt = &t
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// #endregion comparisons

// #region clear

// Clear drops all segments and comparisons; used before a fresh pretraining pass.
func (s *Store) Clear() error {
	if _, err := s.db.Exec(`DELETE FROM comparisons`); err != nil {
		return fmt.Errorf("clear comparisons: %w", err)
	}
	if _, err := s.db.Exec(`DELETE FROM segments`); err != nil {
		return fmt.Errorf("clear segments: %w", err)
	}
	return nil
}

// #endregion clear

// #region step-codec

// encodeSteps packs steps as little-endian binary:
// uint32 count, uint32 obsLen, then per step obsLen float64s,
// one uint32 action and one float64 reward.
func encodeSteps(steps []Step) ([]byte, error) {
	var buf bytes.Buffer
	obsLen := 0
	if len(steps) > 0 {
		obsLen = len(steps[0].Obs)
	}
	if err := binary.Write(&buf, binary.LittleEndian, uint32(len(steps))); err != nil {
		return nil, err
	}
	if err := binary.Write(&buf, binary.LittleEndian, uint32(obsLen)); err != nil {
		return nil, err
	}
	for _, st := range steps {
		if len(st.Obs) != obsLen {
			return nil, fmt.Errorf("ragged observation: %d vs %d", len(st.Obs), obsLen)
		}
		for _, v := range st.Obs {
			if err := binary.Write(&buf, binary.LittleEndian, math.Float64bits(v)); err != nil {
				return nil, err
			}
		}
		if err := binary.Write(&buf, binary.LittleEndian, uint32(st.Action)); err != nil {
			return nil, err
		}
		if err := binary.Write(&buf, binary.LittleEndian, math.Float64bits(st.Reward)); err != nil {
			return nil, err
		}
	}
	return buf.Bytes(), nil
}

func decodeSteps(blob []byte) ([]Step, error) {
	buf := bytes.NewReader(blob)
	var count, obsLen uint32
	if err := binary.Read(buf, binary.LittleEndian, &count); err != nil {
		return nil, err
	}
	if err := binary.Read(buf, binary.LittleEndian, &obsLen); err != nil {
		return nil, err
	}
	steps := make([]Step, count)
	for i := range steps {
		obs := make([]float64, obsLen)
		for j := range obs {
			var bits uint64
			if err := binary.Read(buf, binary.LittleEndian, &bits); err != nil {
				return nil, err
			}
			obs[j] = math.Float64frombits(bits)
		}
		var action uint32
		if err := binary.Read(buf, binary.LittleEndian, &action); err != nil {
			return nil, err
		}
		var rewardBits uint64
		if err := binary.Read(buf, binary.LittleEndian, &rewardBits); err != nil {
			return nil, err
		}
		steps[i] = Step{Obs: obs, Action: int(action), Reward: math.Float64frombits(rewardBits)}
	}
	return steps, nil
}

// #endregion step-codec
