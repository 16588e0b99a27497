// Package actuator drives a bank of binary-position electromagnets over
// a serial line.
//
// The wire protocol is a fixed 4-byte frame:
//
//	[0xAA][0x55][magnet id + 0x0A][direction + 0x0A]
//
// The payload offset keeps id and direction bytes clear of the header
// values so the firmware can resynchronize on corrupted streams.
package actuator

import (
	"fmt"
	"io"
	"time"

	"go.bug.st/serial"
)

const (
	// Frame header
	Header1 byte = 0xAA
	Header2 byte = 0x55

	// Offset added to the id and direction payload bytes
	PayloadOffset byte = 0x0A

	// FrameLength is the number of bytes in one command frame
	FrameLength = 4

	// DefaultBaudRate of the magnet controller firmware
	DefaultBaudRate = 115200
)

// Direction is the commanded position of a magnet
type Direction int

const (
	Retract Direction = iota // magnet pulled in
	Extend                   // magnet pushed out
)

func (d Direction) String() string {
	switch d {
	case Retract:
		return "in"
	case Extend:
		return "out"
	default:
		return fmt.Sprintf("Direction(%d)", int(d))
	}
}

// Commander issues position commands to a magnet bank. Implementations
// must reject malformed ids and directions before any byte reaches the
// hardware.
type Commander interface {
	// Command drives magnet id to direction d
	Command(id int, d Direction) error

	// Magnets returns the number of magnets on the bank
	Magnets() int

	Close() error
}

// Link is a Commander over a byte stream, usually a serial port. Link
// performs no read-back; the caller owns the record of last commanded
// positions.
type Link struct {
	w       io.WriteCloser
	magnets int
}

// NewLink returns a Link that writes command frames to w. It is used
// directly in tests and by callers that bring their own transport;
// hardware callers should use Open.
func NewLink(w io.WriteCloser, magnets int) (*Link, error) {
	if magnets < 1 {
		return nil, fmt.Errorf("newlink: magnet count must be positive, got %d",
			magnets)
	}
	return &Link{w: w, magnets: magnets}, nil
}

// Open connects to the magnet controller on the named serial port. The
// controller resets when the port opens, so Open blocks for readyTime
// before the link is usable. No auto-reconnect is attempted: if the
// port drops, the caller must re-establish the link and re-initialize
// actuator state.
func Open(portName string, baudRate, magnets int,
	readyTime time.Duration) (*Link, error) {
	mode := &serial.Mode{
		BaudRate: baudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}

	port, err := serial.Open(portName, mode)
	if err != nil {
		return nil, fmt.Errorf("open: could not open port %v: %v", portName,
			err)
	}
	time.Sleep(readyTime)

	return NewLink(port, magnets)
}

// Magnets returns the number of magnets on the bank
func (l *Link) Magnets() int {
	return l.magnets
}

// Command drives magnet id to direction d. Malformed ids and directions
// are rejected before any byte is written.
func (l *Link) Command(id int, d Direction) error {
	frame, err := l.encode(id, d)
	if err != nil {
		return fmt.Errorf("command: %v", err)
	}

	n, err := l.w.Write(frame)
	if err != nil {
		return fmt.Errorf("command: write failed: %v", err)
	}
	if n != FrameLength {
		return fmt.Errorf("command: short write: %d of %d bytes", n,
			FrameLength)
	}
	return nil
}

// RetractAll drives every magnet to the retracted position, pausing for
// settle after each command. Commands are issued regardless of last
// known state; re-issuing a retract to an already retracted magnet is
// safe.
func (l *Link) RetractAll(settle time.Duration) error {
	for id := 0; id < l.magnets; id++ {
		if err := l.Command(id, Retract); err != nil {
			return fmt.Errorf("retractall: magnet %d: %v", id, err)
		}
		time.Sleep(settle)
	}
	return nil
}

// Close closes the underlying byte stream
func (l *Link) Close() error {
	return l.w.Close()
}

// encode builds the 4-byte command frame for a single magnet move
func (l *Link) encode(id int, d Direction) ([]byte, error) {
	if id < 0 || id >= l.magnets {
		return nil, fmt.Errorf("invalid magnet id %d ∉ [0, %d)", id,
			l.magnets)
	}
	if d != Retract && d != Extend {
		return nil, fmt.Errorf("invalid direction %v", d)
	}

	return []byte{
		Header1,
		Header2,
		byte(id) + PayloadOffset,
		byte(d) + PayloadOffset,
	}, nil
}
