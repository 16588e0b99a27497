package deepq

import (
	"fmt"

	G "gorgonia.org/gorgonia"

	"github.com/Zyzzyva0381/dynamic-diffuser/network"
)

// Default hyperparameters. These were found by sweeping on recorded
// panel sessions and work across room placements.
const (
	DefaultLearningRate   = 1e-4
	DefaultEpsilon        = 1.0
	DefaultGamma          = 0.99
	DefaultTau            = 0.005
	DefaultBatchSize      = 64
	DefaultReplayCapacity = 10000
	DefaultLearningStarts = 50
)

// Config implements a configuration for a DeepQ agent
type Config struct {
	PolicyLayers []int                 // Hidden layer sizes in the value net
	Activations  []*network.Activation // Activation of each hidden layer
	InitWFn      G.InitWFn             // Weight initialization algorithm

	LearningRate float64 // Adam step size
	Epsilon      float64 // Behaviour policy exploration rate

	// Experience replay parameters
	ReplayCapacity int
	BatchSize      int
	LearningStarts int // Transitions recorded before updates begin

	// Target net updates
	Gamma                float64 // Reward discount
	Tau                  float64 // Polyak averaging constant
	TargetUpdateInterval int     // Gradient steps between target updates
}

// NewConfig returns a Config with the default hyperparameters and a
// two-layer value network.
func NewConfig() Config {
	return Config{
		PolicyLayers: []int{64, 64},
		Activations: []*network.Activation{
			network.ReLU(),
			network.ReLU(),
		},
		InitWFn:              G.GlorotU(1.0),
		LearningRate:         DefaultLearningRate,
		Epsilon:              DefaultEpsilon,
		ReplayCapacity:       DefaultReplayCapacity,
		BatchSize:            DefaultBatchSize,
		LearningStarts:       DefaultLearningStarts,
		Gamma:                DefaultGamma,
		Tau:                  DefaultTau,
		TargetUpdateInterval: 1,
	}
}

// Validate checks a Config to ensure it is a valid configuration of a
// DeepQ agent.
func (c Config) Validate() error {
	if len(c.PolicyLayers) != len(c.Activations) {
		return fmt.Errorf("config: invalid number of activations\n\twant(%v)"+
			"\n\thave(%v)", len(c.PolicyLayers), len(c.Activations))
	}

	if c.Epsilon < 0 || c.Epsilon > 1 {
		return fmt.Errorf("config: epsilon must be in [0, 1], got %v",
			c.Epsilon)
	}

	if c.Gamma < 0 || c.Gamma > 1 {
		return fmt.Errorf("config: discount must be in [0, 1], got %v",
			c.Gamma)
	}

	if c.Tau <= 0 || c.Tau > 1 {
		return fmt.Errorf("config: tau must be in (0, 1], got %v", c.Tau)
	}

	if c.LearningRate <= 0 {
		return fmt.Errorf("config: learning rate must be positive, got %v",
			c.LearningRate)
	}

	if c.BatchSize < 1 {
		return fmt.Errorf("config: batch size must be positive, got %v",
			c.BatchSize)
	}

	if c.ReplayCapacity < c.BatchSize {
		return fmt.Errorf("config: replay capacity must hold at least one "+
			"batch \n\twant(>=%v) \n\thave(%v)", c.BatchSize, c.ReplayCapacity)
	}

	if c.LearningStarts < c.BatchSize {
		return fmt.Errorf("config: learning cannot start before a batch "+
			"exists \n\twant(>=%v) \n\thave(%v)", c.BatchSize, c.LearningStarts)
	}

	if c.TargetUpdateInterval < 1 {
		return fmt.Errorf("config: target networks must be updated at "+
			"positive gradient step intervals \n\twant(>0) \n\thave(%v)",
			c.TargetUpdateInterval)
	}

	return nil
}
