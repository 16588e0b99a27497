package sensor

import (
	"encoding/binary"
	"fmt"
	"io"
	"time"

	"gonum.org/v1/gonum/mat"
)

// timeoutSlack is the grace added on top of the requested window
// duration before an acquisition is declared hung.
const timeoutSlack = 1 * time.Second

// Stream acquires windows from a raw sample stream, typically a pipe or
// socket fed by a vendor capture bridge. Samples arrive as interleaved
// little-endian float64 values, channel-major within each sample tick.
//
// Each Acquire reads exactly one window of sampleRate*duration ticks.
// If the stream does not deliver a full window within the window
// duration plus a fixed slack, Acquire fails with a timeout error and
// the underlying stream should be considered dead.
type Stream struct {
	r          io.ReadCloser
	channels   int
	sampleRate int
	duration   time.Duration
}

// NewStream returns a Stream acquiring windows of the given duration
// from r.
func NewStream(r io.ReadCloser, channels, sampleRate int,
	duration time.Duration) (*Stream, error) {
	if channels < 1 {
		return nil, fmt.Errorf("newstream: channel count must be positive, "+
			"got %d", channels)
	}
	if sampleRate < 1 {
		return nil, fmt.Errorf("newstream: sample rate must be positive, "+
			"got %d", sampleRate)
	}
	if duration <= 0 {
		return nil, fmt.Errorf("newstream: window duration must be positive, "+
			"got %v", duration)
	}

	return &Stream{
		r:          r,
		channels:   channels,
		sampleRate: sampleRate,
		duration:   duration,
	}, nil
}

// Channels returns the number of channels per sample
func (s *Stream) Channels() int {
	return s.channels
}

// SampleRate returns the per-channel sampling rate in Hz
func (s *Stream) SampleRate() int {
	return s.sampleRate
}

// Acquire blocks until one full window has been read and returns it as
// a (samples x channels) matrix.
func (s *Stream) Acquire() (*mat.Dense, error) {
	samples := int(float64(s.sampleRate) * s.duration.Seconds())
	values := make([]float64, samples*s.channels)

	type result struct {
		err error
	}
	done := make(chan result, 1)
	go func() {
		done <- result{binary.Read(s.r, binary.LittleEndian, values)}
	}()

	select {
	case res := <-done:
		if res.err != nil {
			return nil, fmt.Errorf("acquire: stream read failed: %v", res.err)
		}
	case <-time.After(s.duration + timeoutSlack):
		return nil, fmt.Errorf("acquire: %w after %v", errTimeout,
			s.duration+timeoutSlack)
	}

	block := mat.NewDense(samples, s.channels, values)
	if err := validateBlock(block, s.channels); err != nil {
		return nil, fmt.Errorf("acquire: %v", err)
	}
	return block, nil
}

// Close closes the underlying stream
func (s *Stream) Close() error {
	return s.r.Close()
}
