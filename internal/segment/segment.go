// Package segment defines trajectory clips and their sampling and storage.
package segment

import (
	"time"

	"github.com/google/uuid"
)

// #region step

// Step is one recorded (observation, action, true reward) triple.
type Step struct {
	Obs    []float64 `json:"obs"`
	Action int       `json:"action"`
	Reward float64   `json:"reward"`
}

// #endregion step

// #region segment

// Segment is a fixed-length clip of steps drawn from one episode.
// Immutable once created; the comparison collector owns it after AddSegment.
type Segment struct {
	ID         string    `json:"id"`
	EnvID      string    `json:"env_id"`
	ObsShape   []int     `json:"obs_shape"`
	NumActions int       `json:"num_actions"`
	Steps      []Step    `json:"steps"`
	Episode    int       `json:"episode"`
	Worker     int       `json:"worker"`
	CreatedAt  time.Time `json:"created_at"`
}

// NewSegment stamps a segment with a fresh ID and creation time.
func NewSegment(envID string, obsShape []int, numActions int, steps []Step, episode, worker int) *Segment {
	return &Segment{
		ID:         uuid.New().String(),
		EnvID:      envID,
		ObsShape:   append([]int(nil), obsShape...),
		NumActions: numActions,
		Steps:      steps,
		Episode:    episode,
		Worker:     worker,
		CreatedAt:  time.Now().UTC(),
	}
}

// TotalReward is the clip's cumulative true environment reward,
// the quantity the synthetic oracle compares.
func (s *Segment) TotalReward() float64 {
	var sum float64
	for _, st := range s.Steps {
		sum += st.Reward
	}
	return sum
}

// Len returns the clip length in steps.
func (s *Segment) Len() int { return len(s.Steps) }

// #endregion segment
