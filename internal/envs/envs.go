// Package envs provides the simulated environments rollouts are drawn from.
package envs

import (
	"fmt"
	"math/rand"
)

// #region env-interface

// Env is a single-agent episodic environment with discrete actions.
type Env interface {
	// Reset starts a new episode and returns the initial observation.
	Reset() []float64
	// Step applies an action and returns the next observation, the true
	// environment reward, and whether the episode ended.
	Step(action int) ([]float64, float64, bool)
	// ObsShape describes the observation layout: one element for vector
	// observations, two (height, width) for image observations.
	ObsShape() []int
	// NumActions returns the size of the discrete action space.
	NumActions() int
	// FPS is the simulation rate, used to convert clip seconds to steps.
	FPS() float64
	// MaxEpisodeSteps bounds episode length.
	MaxEpisodeSteps() int
}

// #endregion env-interface

// #region registry

// Maker constructs an environment with its own seeded RNG.
type Maker func(rng *rand.Rand) Env

var registry = map[string]Maker{
	"CartPole-v0":  func(rng *rand.Rand) Env { return NewCartPole(rng) },
	"PixelGrid-v0": func(rng *rand.Rand) Env { return NewPixelGrid(rng) },
}

// Make builds the environment registered under id.
func Make(id string, seed int64) (Env, error) {
	maker, ok := registry[id]
	if !ok {
		return nil, fmt.Errorf("unknown env id %q", id)
	}
	return maker(rand.New(rand.NewSource(seed))), nil
}

// ObsLen returns the flattened observation length for a shape.
func ObsLen(shape []int) int {
	n := 1
	for _, d := range shape {
		n *= d
	}
	return n
}

// #endregion registry
