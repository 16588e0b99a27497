// Package tracker records data generated while an agent interacts with
// an environment
package tracker

import (
	ts "github.com/Zyzzyva0381/dynamic-diffuser/timestep"
)

// Tracker tracks experiment data on each timestep and saves the
// accumulated data to disk once the experiment finishes.
type Tracker interface {
	// Track caches the data of a single timestep
	Track(t ts.TimeStep)

	// Save persists all cached data to disk
	Save() error
}
