// Package agent defines what it means to be a learning controller
package agent

import (
	ts "github.com/Zyzzyva0381/dynamic-diffuser/timestep"
)

// Agent determines the implementation details of a learning controller.
//
// An Agent is composed of a Learner, which updates weights from
// experience, and a Policy, which chooses an action in each state. The
// Policy and Learner share weights, so every learning step is
// immediately reflected in the actions the Policy chooses.
type Agent interface {
	Learner
	Policy
}

// A Closer is an agent that must be closed after it is done learning
type Closer interface {
	Agent
	Close() error
}

// Learner implements a learning algorithm that defines how weights are
// updated.
type Learner interface {
	// Step performs a single update to the learner
	Step() error

	// Observe records that an action led to some timestep
	Observe(action int, nextStep ts.TimeStep) error

	// ObserveFirst records the first timestep in an episode
	ObserveFirst(ts.TimeStep) error

	// EndEpisode performs cleanup at the end of an episode
	EndEpisode()
}

// Policy determines how an agent selects actions. Action selection
// must respect the legality mask carried on each timestep: an action
// whose mask entry is false is never returned.
type Policy interface {
	SelectAction(t ts.TimeStep) int
	Eval()        // Set policy to evaluation mode
	Train()       // Set policy to training mode
	IsEval() bool // Indicates if in evaluation mode
}

// EGreedyPolicy is a Policy whose exploration rate can be set and
// retrieved, for annealing schedules.
type EGreedyPolicy interface {
	Policy
	SetEpsilon(float64)
	Epsilon() float64
}

// Saver is an agent whose learned weights can be persisted and
// restored.
type Saver interface {
	Agent
	Save(path string) error
	Load(path string) error
}
