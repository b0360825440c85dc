// Package config defines the immutable run configuration.
package config

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
)

// #region kinds

// PredictorKind selects which reward predictor drives training.
type PredictorKind string

const (
	PredictorRL    PredictorKind = "rl"    // pass through true environment reward
	PredictorSynth PredictorKind = "synth" // synthetic oracle labels comparisons
	PredictorHuman PredictorKind = "human" // labels arrive from the labeling service
)

// AgentKind selects which RL trainer consumes the predictor.
type AgentKind string

const (
	AgentPG  AgentKind = "pg"
	AgentA2C AgentKind = "a2c"
	AgentPPO AgentKind = "ppo"
)

// #endregion kinds

// #region run-config

// RunConfig is built once from the CLI and passed by value.
// It is never mutated after Validate.
type RunConfig struct {
	EnvID          string
	Predictor      PredictorKind
	Name           string
	Seed           int64
	Workers        int
	NLabels        int // total label budget; 0 selects the constant schedule
	PretrainLabels int // 0 defaults to NLabels/4
	NumTimesteps   int
	Agent          AgentKind
	PretrainIters  int
	StartingBeta   float64
	ClipLength     float64 // seconds
	NoVideos       bool
	Restore        bool

	// BaseDir roots the checkpoint and segment directories.
	BaseDir string
	// LabelerAddr is the labeling service address for the human predictor.
	LabelerAddr string
	// DBPath holds segments, comparisons and the run log.
	DBPath string
}

// DefaultRunConfig mirrors the historical CLI defaults.
func DefaultRunConfig() RunConfig {
	return RunConfig{
		Predictor:     PredictorSynth,
		Seed:          1,
		Workers:       4,
		NumTimesteps:  5_000_000,
		Agent:         AgentPG,
		PretrainIters: 10_000,
		StartingBeta:  0.1,
		ClipLength:    1.5,
		BaseDir:       ".",
		LabelerAddr:   "http://localhost:8089",
	}
}

// #endregion run-config

// #region validate

// Validate rejects bad configuration before any resource is allocated.
func (c *RunConfig) Validate() error {
	if c.EnvID == "" {
		return fmt.Errorf("env id is required")
	}
	switch c.Predictor {
	case PredictorRL, PredictorSynth, PredictorHuman:
	default:
		return fmt.Errorf("bad value for predictor: %q (want rl, synth or human)", c.Predictor)
	}
	switch c.Agent {
	case AgentPG, AgentA2C, AgentPPO:
	default:
		return fmt.Errorf("%q is not a valid choice for agent (want pg, a2c or ppo)", c.Agent)
	}
	if c.Predictor != PredictorRL {
		if c.NLabels == 0 && c.PretrainLabels == 0 {
			return fmt.Errorf("pretrain labels are required when no label budget is given")
		}
		if c.NLabels < 0 {
			return fmt.Errorf("label budget must be positive, got %d", c.NLabels)
		}
	}
	if c.Workers <= 0 {
		return fmt.Errorf("workers must be > 0, got %d", c.Workers)
	}
	if c.ClipLength <= 0 {
		return fmt.Errorf("clip length must be > 0 seconds, got %g", c.ClipLength)
	}
	if c.Name == "" {
		return fmt.Errorf("experiment name is required")
	}
	return nil
}

// #endregion validate

// #region derived

// EffectivePretrainLabels applies the one-quarter default.
func (c *RunConfig) EffectivePretrainLabels() int {
	if c.PretrainLabels > 0 {
		return c.PretrainLabels
	}
	return c.NLabels / 4
}

// CheckpointPath returns the reward-model checkpoint file for this run.
func (c *RunConfig) CheckpointPath() string {
	return filepath.Join(c.BaseDir, "checkpoints", "reward_model", Slugify(c.Name)+".ckpt")
}

// SegmentsDir returns the directory rollout captures are written to.
func (c *RunConfig) SegmentsDir() string {
	return filepath.Join(c.BaseDir, "segments")
}

// #endregion derived

// #region slugify

var slugStrip = regexp.MustCompile(`[^a-z0-9]+`)

// Slugify normalizes an experiment name for file and table keys.
func Slugify(name string) string {
	s := slugStrip.ReplaceAllString(strings.ToLower(name), "-")
	return strings.Trim(s, "-")
}

// #endregion slugify
