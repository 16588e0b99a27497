// Package diffuser implements the control environment for a dynamic
// acoustic diffuser panel: a bank of binary-position electromagnets
// repositioned to balance the loudness measured by a microphone array.
package diffuser

import (
	"fmt"
	"math"
	"time"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"github.com/Zyzzyva0381/dynamic-diffuser/actuator"
	env "github.com/Zyzzyva0381/dynamic-diffuser/environment"
	"github.com/Zyzzyva0381/dynamic-diffuser/sensor"
	ts "github.com/Zyzzyva0381/dynamic-diffuser/timestep"
)

const (
	// DefaultFrames is the number of loudness frames summarized from
	// each acquisition window
	DefaultFrames = 10

	// DefaultMaxEpisodeSteps is the per-episode step budget
	DefaultMaxEpisodeSteps = 1000

	// DefaultSettle is how long a magnet takes to physically reach a
	// commanded position
	DefaultSettle = 1 * time.Second

	// RewardEpsilon is the default floor added to the per-frame
	// loudness spread before taking its reciprocal. It bounds the
	// reward at 1/RewardEpsilon per frame when the channels are
	// perfectly balanced, keeping rewards finite and comparable across
	// runs. Changing it invalidates comparisons with earlier runs.
	RewardEpsilon = 1e-6
)

// Config collects the tunable parameters of the environment
type Config struct {
	Frames          int           // loudness frames per observation
	MaxEpisodeSteps int           // step budget before truncation
	Settle          time.Duration // wait after each magnet command
	Discount        float64       // discount reported on timesteps
	RewardFloor     float64       // floor on the per-frame loudness spread
}

// NewConfig returns a Config with the reference sizing
func NewConfig() Config {
	return Config{
		Frames:          DefaultFrames,
		MaxEpisodeSteps: DefaultMaxEpisodeSteps,
		Settle:          DefaultSettle,
		Discount:        0.99,
		RewardFloor:     RewardEpsilon,
	}
}

// Validate checks the Config for usable values
func (c Config) Validate() error {
	if c.Frames < 1 {
		return fmt.Errorf("config: frame count must be positive, got %d",
			c.Frames)
	}
	if c.MaxEpisodeSteps < 1 {
		return fmt.Errorf("config: step budget must be positive, got %d",
			c.MaxEpisodeSteps)
	}
	if c.Settle < 0 {
		return fmt.Errorf("config: settle delay must be non-negative, got %v",
			c.Settle)
	}
	if c.Discount < 0 || c.Discount > 1 {
		return fmt.Errorf("config: discount must be in [0, 1], got %v",
			c.Discount)
	}
	if c.RewardFloor <= 0 {
		return fmt.Errorf("config: reward floor must be positive, got %v",
			c.RewardFloor)
	}
	return nil
}

// Diffuser is the control environment. It owns the actuator link and
// the sensor for its lifetime and is the single source of truth for
// the last commanded magnet positions: the legality mask is derived
// from this record, never from hardware read-back.
//
// The discrete action space has 2N+1 actions for N magnets:
//
//	Action	 Meaning
//	[0, N)	 retract magnet id = action
//	[N, 2N)	 extend magnet id = action - N
//	2N	 no-op
//
// The no-op action exists for wire-format compatibility with earlier
// controllers but is permanently masked out; it carries no training
// signal and must never be chosen.
type Diffuser struct {
	link actuator.Commander
	daq  sensor.Acquirer

	config    Config
	positions []actuator.Direction // last commanded position per magnet
	stepNum   int
}

// New constructs a Diffuser environment around an actuator link and an
// acquisition device. The environment takes ownership of both; Close
// releases them.
func New(link actuator.Commander, daq sensor.Acquirer,
	config Config) (*Diffuser, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("new: %v", err)
	}
	if link.Magnets() < 1 {
		return nil, fmt.Errorf("new: link has no magnets")
	}

	return &Diffuser{
		link:      link,
		daq:       daq,
		config:    config,
		positions: make([]actuator.Direction, link.Magnets()),
	}, nil
}

// Magnets returns the number of magnets under control
func (d *Diffuser) Magnets() int {
	return len(d.positions)
}

// NumActions returns the size of the discrete action space, including
// the permanently masked no-op
func (d *Diffuser) NumActions() int {
	return 2*d.Magnets() + 1
}

// noOp returns the index of the no-op action
func (d *Diffuser) noOp() int {
	return 2 * d.Magnets()
}

// Features returns the length of a flattened observation vector
func (d *Diffuser) Features() int {
	return d.config.Frames * d.daq.Channels()
}

// Reset drives every magnet to the retracted position and starts a new
// episode. Retract commands are issued unconditionally: re-issuing a
// retract to an already retracted magnet is safe, and commanding all of
// them forces the recorded positions back in sync with the hardware.
func (d *Diffuser) Reset() (ts.TimeStep, error) {
	for id := range d.positions {
		if err := d.link.Command(id, actuator.Retract); err != nil {
			return ts.TimeStep{}, fmt.Errorf("reset: magnet %d: %v", id, err)
		}
		time.Sleep(d.config.Settle)
		d.positions[id] = actuator.Retract
	}
	d.stepNum = 0

	obs, err := d.observe()
	if err != nil {
		return ts.TimeStep{}, fmt.Errorf("reset: %v", err)
	}

	return ts.New(ts.First, 0, d.config.Discount, obs, d.ActionMask(), 0), nil
}

// Step decodes and applies one action, waits out the physical settle
// delay if a magnet moved, and acquires a fresh observation. The caller
// must only pass actions that were legal under the mask of the previous
// timestep; a malformed action index panics to surface agent bugs
// early. The returned bool reports whether the episode just hit its
// step budget.
func (d *Diffuser) Step(action int) (ts.TimeStep, bool, error) {
	if action < 0 || action >= d.NumActions() {
		panic(fmt.Sprintf("step: action %d ∉ [0, %d)", action,
			d.NumActions()))
	}

	if action != d.noOp() {
		id, direction := d.decode(action)

		// Skip the command if the magnet is already where the action
		// would put it. The mask should prevent this; skipping keeps
		// the recorded positions truthful either way.
		if d.positions[id] != direction {
			if err := d.link.Command(id, direction); err != nil {
				return ts.TimeStep{}, false, fmt.Errorf("step: magnet %d: %v",
					id, err)
			}
			d.positions[id] = direction
			time.Sleep(d.config.Settle)
		}
	}

	obs, err := d.observe()
	if err != nil {
		return ts.TimeStep{}, false, fmt.Errorf("step: %v", err)
	}
	reward := d.reward(obs)

	d.stepNum++
	truncated := d.stepNum >= d.config.MaxEpisodeSteps

	stepType := ts.Mid
	discount := d.config.Discount
	if truncated {
		stepType = ts.Last
		discount = 0
	}

	step := ts.New(stepType, reward, discount, obs, d.ActionMask(), d.stepNum)
	return step, truncated, nil
}

// ActionMask returns which actions are legal given the current recorded
// magnet positions. For every magnet exactly one direction is legal,
// the one that changes its state, so the mask always holds exactly N
// true entries. The no-op entry is always false. The mask is recomputed
// from the positions on every call and is never cached.
func (d *Diffuser) ActionMask() []bool {
	n := d.Magnets()
	mask := make([]bool, d.NumActions())
	for id, position := range d.positions {
		if position == actuator.Retract {
			mask[id+n] = true // may extend
		} else {
			mask[id] = true // may retract
		}
	}
	return mask
}

// decode splits a non-no-op action index into the addressed magnet and
// target direction
func (d *Diffuser) decode(action int) (int, actuator.Direction) {
	n := d.Magnets()
	if action >= n {
		return action - n, actuator.Extend
	}
	return action, actuator.Retract
}

// observe acquires one window and summarizes it into a flattened
// loudness observation
func (d *Diffuser) observe() (mat.Vector, error) {
	block, err := d.daq.Acquire()
	if err != nil {
		return nil, err
	}

	obs, err := sensor.Summarize(block, d.config.Frames)
	if err != nil {
		return nil, err
	}
	return sensor.Flatten(obs), nil
}

// reward scores a flattened observation. For each frame the population
// standard deviation of the per-channel loudness is taken as the
// imbalance; the reward is the mean over frames of the reciprocal of
// (imbalance + RewardEpsilon). Balanced channels score high.
func (d *Diffuser) reward(obs mat.Vector) float64 {
	channels := d.daq.Channels()
	frames := d.config.Frames

	row := make([]float64, channels)
	total := 0.0
	for f := 0; f < frames; f++ {
		for c := 0; c < channels; c++ {
			row[c] = obs.AtVec(f*channels + c)
		}
		spread := stat.PopStdDev(row, nil)
		total += 1.0 / (spread + d.config.RewardFloor)
	}
	return total / float64(frames)
}

// ObservationSpec returns the observation specification of the
// environment
func (d *Diffuser) ObservationSpec() env.Spec {
	features := d.Features()
	shape := mat.NewVecDense(features, nil)

	lower := mat.NewVecDense(features, nil)
	upper := make([]float64, features)
	for i := range upper {
		upper[i] = math.Inf(1)
	}

	return env.NewSpec(shape, env.Observation, lower,
		mat.NewVecDense(features, upper), env.Continuous)
}

// ActionSpec returns the action specification of the environment
func (d *Diffuser) ActionSpec() env.Spec {
	shape := mat.NewVecDense(1, nil)
	lowerBound := mat.NewVecDense(1, []float64{0})
	upperBound := mat.NewVecDense(1, []float64{float64(d.NumActions() - 1)})

	return env.NewSpec(shape, env.Action, lowerBound, upperBound,
		env.Discrete)
}

// DiscountSpec returns the discounting specification of the environment
func (d *Diffuser) DiscountSpec() env.Spec {
	shape := mat.NewVecDense(1, nil)
	bound := mat.NewVecDense(1, []float64{d.config.Discount})

	return env.NewSpec(shape, env.Discount, bound, bound, env.Continuous)
}

// Close releases the actuator link and the acquisition device. Both are
// closed even if the first close fails.
func (d *Diffuser) Close() error {
	linkErr := d.link.Close()
	daqErr := d.daq.Close()
	if linkErr != nil {
		return fmt.Errorf("close: actuator link: %v", linkErr)
	}
	if daqErr != nil {
		return fmt.Errorf("close: acquisition: %v", daqErr)
	}
	return nil
}
