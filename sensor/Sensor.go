// Package sensor implements multi-channel analog acquisition and the
// summarization of raw sample blocks into per-frame loudness
// observations.
package sensor

import (
	"errors"
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// errTimeout signals that an acquisition did not complete within the
// requested window duration plus slack. Acquisition timeouts are fatal
// to the episode; stale data is never substituted.
var errTimeout = errors.New("acquisition window timed out")

// IsTimeout returns whether err was caused by an acquisition timeout
func IsTimeout(err error) bool {
	return errors.Is(err, errTimeout)
}

// Acquirer acquires one window of raw multi-channel readings. The
// returned matrix has one row per sample and one column per channel.
// Acquire blocks for the length of the acquisition window; a hang
// beyond the window duration plus a fixed slack is a fatal condition
// reported as a timeout error, not retried.
type Acquirer interface {
	Acquire() (*mat.Dense, error)

	// Channels returns the number of channels per sample
	Channels() int

	// SampleRate returns the per-channel sampling rate in Hz
	SampleRate() int

	Close() error
}

// validateBlock checks that a raw sample block has the expected shape
func validateBlock(block *mat.Dense, channels int) error {
	rows, cols := block.Dims()
	if cols != channels {
		return fmt.Errorf("block has %d channels, want %d", cols, channels)
	}
	if rows == 0 {
		return fmt.Errorf("block has no samples")
	}
	return nil
}
