package envs

import (
	"math"
	"math/rand"
)

// #region constants

const (
	cpGravity        = 9.81
	cpMassCart       = 1.0
	cpMassPole       = 0.1
	cpLength         = 0.5
	cpTotalMass      = cpMassCart + cpMassPole
	cpPoleMassLength = cpMassPole * cpLength
	cpForceMax       = 10.0
	cpTau            = 0.02

	cpXThreshold     = 2.4
	cpThetaThreshold = 12.0 * math.Pi / 180.0
	cpMaxSteps       = 500
)

// #endregion constants

// #region cartpole

// CartPole is the classic pole-balancing environment with a
// four-dimensional observation and two actions (push left, push right).
type CartPole struct {
	x, xDot, theta, thetaDot float64
	steps                    int
	rng                      *rand.Rand
}

// NewCartPole creates a cartpole environment. A nil rng self-seeds.
func NewCartPole(rng *rand.Rand) *CartPole {
	if rng == nil {
		rng = rand.New(rand.NewSource(rand.Int63()))
	}
	env := &CartPole{rng: rng}
	env.Reset()
	return env
}

func (e *CartPole) Reset() []float64 {
	e.x = e.rng.Float64()*0.1 - 0.05
	e.xDot = e.rng.Float64()*0.1 - 0.05
	e.theta = e.rng.Float64()*0.1 - 0.05
	e.thetaDot = e.rng.Float64()*0.1 - 0.05
	e.steps = 0
	return e.obs()
}

func (e *CartPole) Step(action int) ([]float64, float64, bool) {
	force := cpForceMax
	if action == 0 {
		force = -cpForceMax
	}

	cosTheta := math.Cos(e.theta)
	sinTheta := math.Sin(e.theta)

	temp := (force + cpPoleMassLength*e.thetaDot*e.thetaDot*sinTheta) / cpTotalMass
	thetaAcc := (cpGravity*sinTheta - cosTheta*temp) /
		(cpLength * (4.0/3.0 - cpMassPole*cosTheta*cosTheta/cpTotalMass))
	xAcc := temp - cpPoleMassLength*thetaAcc*cosTheta/cpTotalMass

	e.x += cpTau * e.xDot
	e.xDot += cpTau * xAcc
	e.theta += cpTau * e.thetaDot
	e.thetaDot += cpTau * thetaAcc
	e.steps++

	done := e.x < -cpXThreshold || e.x > cpXThreshold ||
		e.theta < -cpThetaThreshold || e.theta > cpThetaThreshold ||
		e.steps >= cpMaxSteps
	reward := 1.0
	if done && e.steps < cpMaxSteps {
		reward = 0.0
	}
	return e.obs(), reward, done
}

func (e *CartPole) obs() []float64 {
	return []float64{e.x, e.xDot, e.theta, e.thetaDot}
}

func (e *CartPole) ObsShape() []int { return []int{4} }

func (e *CartPole) NumActions() int { return 2 }

// FPS is 1/tau: one simulation step per 20ms.
func (e *CartPole) FPS() float64 { return 1.0 / cpTau }

func (e *CartPole) MaxEpisodeSteps() int { return cpMaxSteps }

// #endregion cartpole
