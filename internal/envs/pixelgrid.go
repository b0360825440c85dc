package envs

import (
	"math"
	"math/rand"
)

// #region constants

const (
	pgSize     = 16 // grid is pgSize x pgSize pixels
	pgMaxSteps = 100
	pgFPS      = 10.0
)

// #endregion constants

// #region pixelgrid

// PixelGrid is a small image-observation environment: an agent pixel
// moves on a 16x16 grid toward a goal pixel. Observations are the raw
// grid (height x width, no channel dimension), which exercises the
// convolutional reward path.
type PixelGrid struct {
	agentX, agentY int
	goalX, goalY   int
	steps          int
	rng            *rand.Rand
}

// NewPixelGrid creates a pixel-grid environment. A nil rng self-seeds.
func NewPixelGrid(rng *rand.Rand) *PixelGrid {
	if rng == nil {
		rng = rand.New(rand.NewSource(rand.Int63()))
	}
	env := &PixelGrid{rng: rng}
	env.Reset()
	return env
}

func (e *PixelGrid) Reset() []float64 {
	e.agentX = e.rng.Intn(pgSize)
	e.agentY = e.rng.Intn(pgSize)
	for {
		e.goalX = e.rng.Intn(pgSize)
		e.goalY = e.rng.Intn(pgSize)
		if e.goalX != e.agentX || e.goalY != e.agentY {
			break
		}
	}
	e.steps = 0
	return e.obs()
}

// Step moves the agent: 0=up, 1=down, 2=left, 3=right.
// Reward is the negative normalized distance to the goal, +1 on arrival.
func (e *PixelGrid) Step(action int) ([]float64, float64, bool) {
	switch action {
	case 0:
		if e.agentY > 0 {
			e.agentY--
		}
	case 1:
		if e.agentY < pgSize-1 {
			e.agentY++
		}
	case 2:
		if e.agentX > 0 {
			e.agentX--
		}
	case 3:
		if e.agentX < pgSize-1 {
			e.agentX++
		}
	}
	e.steps++

	atGoal := e.agentX == e.goalX && e.agentY == e.goalY
	done := atGoal || e.steps >= pgMaxSteps

	reward := -e.distance() / float64(pgSize)
	if atGoal {
		reward = 1.0
	}
	return e.obs(), reward, done
}

func (e *PixelGrid) distance() float64 {
	dx := float64(e.agentX - e.goalX)
	dy := float64(e.agentY - e.goalY)
	return math.Sqrt(dx*dx + dy*dy)
}

// obs renders the grid row-major: agent pixel 1.0, goal pixel 0.5.
func (e *PixelGrid) obs() []float64 {
	grid := make([]float64, pgSize*pgSize)
	grid[e.goalY*pgSize+e.goalX] = 0.5
	grid[e.agentY*pgSize+e.agentX] = 1.0
	return grid
}

func (e *PixelGrid) ObsShape() []int { return []int{pgSize, pgSize} }

func (e *PixelGrid) NumActions() int { return 4 }

func (e *PixelGrid) FPS() float64 { return pgFPS }

func (e *PixelGrid) MaxEpisodeSteps() int { return pgMaxSteps }

// #endregion pixelgrid
