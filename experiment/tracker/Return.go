package tracker

import (
	"encoding/gob"
	"fmt"
	"os"

	ts "github.com/Zyzzyva0381/dynamic-diffuser/timestep"
)

// Return tracks and saves the episodic return of an experiment. The
// reward of every tracked timestep is accumulated, and the total is
// recorded as one episode's return whenever a final timestep is seen.
//
// An episode must finish for its return to be recorded. If the last
// episode of an experiment does not finish, its partial return is
// dropped.
type Return struct {
	lastTimeStep   int
	currentReturn  float64
	episodeReturns []float64
	filename       string
}

// NewReturn creates and returns a new Return tracker which saves to
// filename
func NewReturn(filename string) *Return {
	return &Return{lastTimeStep: -1, filename: filename}
}

// Track accumulates the reward seen on a timestep. Episode boundaries
// are detected from the timestep itself, so calling Track on every
// timestep of consecutive episodes records each episode separately.
//
// Track panics if called on non-sequential timesteps.
func (r *Return) Track(step ts.TimeStep) {
	if step.First() {
		r.currentReturn = 0.0
		r.lastTimeStep = step.Number
		return
	}

	if r.lastTimeStep+1 != step.Number {
		panic(fmt.Sprintf("track: non-sequential timesteps: %v --> %v",
			r.lastTimeStep, step.Number))
	}

	r.currentReturn += step.Reward
	r.lastTimeStep = step.Number

	if step.Last() {
		r.episodeReturns = append(r.episodeReturns, r.currentReturn)
		r.currentReturn = 0.0
		r.lastTimeStep = -1
	}
}

// Returns returns the episodic returns recorded so far
func (r *Return) Returns() []float64 {
	return r.episodeReturns
}

// Save persists the recorded episodic returns to disk
func (r *Return) Save() error {
	file, err := os.Create(r.filename)
	if err != nil {
		return fmt.Errorf("save: could not open save file: %v", err)
	}
	defer file.Close()

	if err := gob.NewEncoder(file).Encode(r.episodeReturns); err != nil {
		return fmt.Errorf("save: could not encode return data: %v", err)
	}
	return nil
}

// LoadReturns reads episodic returns previously saved by a Return
// tracker.
func LoadReturns(filename string) ([]float64, error) {
	file, err := os.Open(filename)
	if err != nil {
		return nil, fmt.Errorf("loadreturns: %v", err)
	}
	defer file.Close()

	var returns []float64
	if err := gob.NewDecoder(file).Decode(&returns); err != nil {
		return nil, fmt.Errorf("loadreturns: could not decode return "+
			"data: %v", err)
	}
	return returns, nil
}
