package actuator

import (
	"bytes"
	"testing"
)

// writeRecorder records every frame written through the link
type writeRecorder struct {
	buf    bytes.Buffer
	closed bool
}

func (w *writeRecorder) Write(p []byte) (int, error) {
	return w.buf.Write(p)
}

func (w *writeRecorder) Close() error {
	w.closed = true
	return nil
}

func TestCommandEncodesFrame(t *testing.T) {
	tests := []struct {
		id   int
		dir  Direction
		want []byte
	}{
		{0, Retract, []byte{0xAA, 0x55, 0x0A, 0x0A}},
		{0, Extend, []byte{0xAA, 0x55, 0x0A, 0x0B}},
		{3, Extend, []byte{0xAA, 0x55, 0x0D, 0x0B}},
		{8, Retract, []byte{0xAA, 0x55, 0x12, 0x0A}},
	}

	for _, test := range tests {
		rec := &writeRecorder{}
		link, err := NewLink(rec, 9)
		if err != nil {
			t.Fatal(err)
		}

		if err := link.Command(test.id, test.dir); err != nil {
			t.Fatalf("command(%d, %v): %v", test.id, test.dir, err)
		}

		if !bytes.Equal(rec.buf.Bytes(), test.want) {
			t.Errorf("command(%d, %v) wrote % X, want % X", test.id,
				test.dir, rec.buf.Bytes(), test.want)
		}
	}
}

func TestCommandRejectsMalformedBeforeWrite(t *testing.T) {
	tests := []struct {
		name string
		id   int
		dir  Direction
	}{
		{"negative id", -1, Retract},
		{"id past bank", 9, Extend},
		{"bad direction", 4, Direction(7)},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			rec := &writeRecorder{}
			link, err := NewLink(rec, 9)
			if err != nil {
				t.Fatal(err)
			}

			if err := link.Command(test.id, test.dir); err == nil {
				t.Fatal("expected error, got nil")
			}
			if rec.buf.Len() != 0 {
				t.Errorf("wrote % X before rejecting bad command",
					rec.buf.Bytes())
			}
		})
	}
}

func TestRetractAllCommandsEveryMagnet(t *testing.T) {
	rec := &writeRecorder{}
	link, err := NewLink(rec, 9)
	if err != nil {
		t.Fatal(err)
	}

	if err := link.RetractAll(0); err != nil {
		t.Fatal(err)
	}

	frames := rec.buf.Bytes()
	if len(frames) != 9*FrameLength {
		t.Fatalf("wrote %d bytes, want %d", len(frames), 9*FrameLength)
	}
	for id := 0; id < 9; id++ {
		frame := frames[id*FrameLength : (id+1)*FrameLength]
		if frame[2] != byte(id)+PayloadOffset || frame[3] != PayloadOffset {
			t.Errorf("magnet %d frame = % X", id, frame)
		}
	}
}
