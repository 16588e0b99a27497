package timestep

import (
	"gonum.org/v1/gonum/mat"
)

// Transition packages together a single (state, action, reward, next
// state, done) tuple of the controller-environment interaction. States
// are flattened observation vectors. Done marks the end of an episode,
// whether terminated or truncated by the step budget.
type Transition struct {
	State     mat.Vector
	Action    int
	Reward    float64
	NextState mat.Vector
	Done      bool
}

// NewTransition constructs a Transition from two adjacent timesteps
// and the action that led from the first to the second.
func NewTransition(step TimeStep, action int, nextStep TimeStep) Transition {
	return Transition{
		State:     step.Observation,
		Action:    action,
		Reward:    nextStep.Reward,
		NextState: nextStep.Observation,
		Done:      nextStep.Last(),
	}
}
