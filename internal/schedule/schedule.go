// Package schedule decides how many comparison labels should have been
// requested by a given point in training.
package schedule

import (
	"fmt"
	"time"
)

// #region interface

// LabelSchedule maps training progress (timesteps so far) to the target
// cumulative number of labels. Implementations must be monotone
// non-decreasing in progress.
type LabelSchedule interface {
	NDesiredLabels(progress float64) int
}

// #endregion interface

// #region annealer

// Annealer interpolates linearly from PretrainLabels at progress 0 to
// FinalLabels at FinalTimesteps, clamped at FinalLabels beyond that.
type Annealer struct {
	PretrainLabels int
	FinalLabels    int
	FinalTimesteps float64
}

// NewAnnealer validates the curve parameters. FinalLabels must be a
// positive budget; callers without a finite budget use ConstantSchedule.
func NewAnnealer(pretrainLabels, finalLabels int, finalTimesteps float64) (*Annealer, error) {
	if finalLabels <= 0 {
		return nil, fmt.Errorf("final labels must be positive, got %d", finalLabels)
	}
	if finalTimesteps <= 0 {
		return nil, fmt.Errorf("final timesteps must be positive, got %g", finalTimesteps)
	}
	if pretrainLabels < 0 || pretrainLabels > finalLabels {
		return nil, fmt.Errorf("pretrain labels %d out of range [0, %d]", pretrainLabels, finalLabels)
	}
	return &Annealer{
		PretrainLabels: pretrainLabels,
		FinalLabels:    finalLabels,
		FinalTimesteps: finalTimesteps,
	}, nil
}

func (a *Annealer) NDesiredLabels(progress float64) int {
	if progress <= 0 {
		return a.PretrainLabels
	}
	if progress >= a.FinalTimesteps {
		return a.FinalLabels
	}
	frac := progress / a.FinalTimesteps
	n := float64(a.PretrainLabels) + frac*float64(a.FinalLabels-a.PretrainLabels)
	return int(n)
}

// #endregion annealer

// #region constant

// ConstantSchedule ignores training progress: it returns PretrainLabels
// immediately, then grows the target by one per elapsed Interval of wall
// clock. Unbounded; meant for indefinite human-labeling sessions with no
// fixed budget. The wall-clock basis is deliberately unlike the
// annealer's progress basis: a budgetless session has no notion of a
// final timestep to anneal toward.
type ConstantSchedule struct {
	PretrainLabels int
	Interval       time.Duration

	startedAt time.Time
	now       func() time.Time
}

// NewConstantSchedule starts the wall clock at construction. A zero
// interval defaults to 5 seconds.
func NewConstantSchedule(pretrainLabels int, interval time.Duration) *ConstantSchedule {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	s := &ConstantSchedule{
		PretrainLabels: pretrainLabels,
		Interval:       interval,
		now:            time.Now,
	}
	s.startedAt = s.now()
	return s
}

func (s *ConstantSchedule) NDesiredLabels(float64) int {
	elapsed := s.now().Sub(s.startedAt)
	return s.PretrainLabels + int(elapsed/s.Interval)
}

// #endregion constant
