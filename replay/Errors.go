package replay

import "errors"

var (
	errEmptyBuffer         = errors.New("no samples in buffer")
	errInsufficientSamples = errors.New("fewer samples in buffer than batch size")
)

// Error describes an error that occurred on a replay buffer operation
type Error struct {
	Op  string
	Err error
}

func (e *Error) Error() string {
	return "replay " + e.Op + ": " + e.Err.Error()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// IsEmptyBuffer returns whether err was caused by sampling an empty
// buffer
func IsEmptyBuffer(err error) bool {
	return errors.Is(err, errEmptyBuffer)
}

// IsInsufficientSamples returns whether err was caused by sampling a
// buffer holding fewer transitions than the batch size. Callers treat
// this as a well-defined no-op, never a failure.
func IsInsufficientSamples(err error) bool {
	return errors.Is(err, errInsufficientSamples)
}
