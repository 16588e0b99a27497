// Package environment outlines the interfaces and specifications needed
// to implement concrete environments
package environment

import (
	"gonum.org/v1/gonum/mat"

	ts "github.com/Zyzzyva0381/dynamic-diffuser/timestep"
)

// Cardinality indicates whether the associated type is continuous or
// discrete
type Cardinality int

const (
	Discrete Cardinality = iota
	Continuous
)

// SpecType determines what kind of specification a Spec is. A Spec can
// specify the layout of an action, an observation, a discount, or a
// reward
type SpecType int

const (
	Action SpecType = iota
	Observation
	Discount
	Reward
)

// Spec implements a specification, which tells the type, shape, and
// bounds of an action, observation, discount, or reward
type Spec struct {
	Shape      mat.Vector
	Type       SpecType
	LowerBound mat.Vector
	UpperBound mat.Vector
	Cardinality
}

// NewSpec constructs a new environment specification
func NewSpec(shape mat.Vector, t SpecType, lowerBound,
	upperBound mat.Vector, c Cardinality) Spec {
	return Spec{shape, t, lowerBound, upperBound, c}
}

// Environment implements a physical or simulated control environment.
//
// Reset and Step can touch hardware and so can fail; a failed call
// leaves the episode unusable and the caller is responsible for
// re-establishing state. The bool returned by Step indicates whether
// the returned timestep was the last of the episode.
type Environment interface {
	Reset() (ts.TimeStep, error)
	Step(action int) (ts.TimeStep, bool, error)

	// ActionMask returns which discrete actions are legal in the
	// current state. The mask is recomputed from current state on
	// every call and is never cached across a state mutation.
	ActionMask() []bool

	ObservationSpec() Spec
	ActionSpec() Spec
	DiscountSpec() Spec

	// Close releases any hardware held by the environment. It must be
	// called on every exit path, including error paths.
	Close() error
}
