package sensor

import (
	"fmt"
	"math"
	"os"
	"time"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"gonum.org/v1/gonum/mat"
)

// Playback acquires windows from a recorded multi-channel WAV file
// instead of live hardware. It is used for offline training and
// evaluation runs against captured excitation recordings. When the
// recording runs out, playback wraps around to the start so a run can
// draw arbitrarily many windows.
type Playback struct {
	samples    *mat.Dense // full recording, samples x channels
	channels   int
	sampleRate int
	window     int // samples per acquisition window
	pos        int
}

// NewPlayback loads the WAV file at path and returns a Playback
// acquiring windows of the given duration.
func NewPlayback(path string, duration time.Duration) (*Playback, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("newplayback: %v", err)
	}
	defer f.Close()

	dec := wav.NewDecoder(f)
	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, fmt.Errorf("newplayback: could not decode %v: %v", path,
			err)
	}

	channels := buf.Format.NumChannels
	sampleRate := buf.Format.SampleRate
	if channels < 1 || sampleRate < 1 {
		return nil, fmt.Errorf("newplayback: malformed wav header in %v", path)
	}

	// Interleaved PCM to float64 in [-1, 1)
	scale := math.Pow(2, float64(dec.BitDepth)-1)
	samples := len(buf.Data) / channels
	data := make([]float64, samples*channels)
	for i := 0; i < samples*channels; i++ {
		data[i] = float64(buf.Data[i]) / scale
	}

	window := int(float64(sampleRate) * duration.Seconds())
	if window < 1 || window > samples {
		return nil, fmt.Errorf("newplayback: recording %v too short for a "+
			"%v window", path, duration)
	}

	return &Playback{
		samples:    mat.NewDense(samples, channels, data),
		channels:   channels,
		sampleRate: sampleRate,
		window:     window,
	}, nil
}

// Channels returns the number of channels per sample
func (p *Playback) Channels() int {
	return p.channels
}

// SampleRate returns the per-channel sampling rate in Hz
func (p *Playback) SampleRate() int {
	return p.sampleRate
}

// Acquire returns the next window of the recording, wrapping around at
// the end.
func (p *Playback) Acquire() (*mat.Dense, error) {
	total, _ := p.samples.Dims()
	if p.pos+p.window > total {
		p.pos = 0
	}

	block := mat.NewDense(p.window, p.channels, nil)
	block.Copy(p.samples.Slice(p.pos, p.pos+p.window, 0, p.channels))
	p.pos += p.window

	return block, nil
}

// Close implements Acquirer. Playback holds no resources after loading.
func (p *Playback) Close() error {
	return nil
}

// ExportWAV normalizes each channel of a raw sample block to unit peak,
// averages the channels, and writes the result to path as a mono 16-bit
// PCM WAV file. It mirrors what the acquisition tooling saves for
// listening checks of captured windows.
func ExportWAV(path string, block *mat.Dense, sampleRate int) error {
	samples, channels := block.Dims()

	normalized := mat.NewDense(samples, channels, nil)
	col := make([]float64, samples)
	for c := 0; c < channels; c++ {
		mat.Col(col, c, block)

		peak := 0.0
		for _, v := range col {
			if a := math.Abs(v); a > peak {
				peak = a
			}
		}
		if peak > 0 {
			for i := range col {
				col[i] /= peak
			}
		}
		normalized.SetCol(c, col)
	}

	// Average the normalized channels into a mono track
	mono := make([]int, samples)
	for s := 0; s < samples; s++ {
		sum := 0.0
		for c := 0; c < channels; c++ {
			sum += normalized.At(s, c)
		}
		v := sum / float64(channels)
		mono[s] = int(v * float64(math.MaxInt16))
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("exportwav: %v", err)
	}
	defer f.Close()

	enc := wav.NewEncoder(f, sampleRate, 16, 1, 1)
	buf := &audio.IntBuffer{
		Format:         &audio.Format{NumChannels: 1, SampleRate: sampleRate},
		Data:           mono,
		SourceBitDepth: 16,
	}
	if err := enc.Write(buf); err != nil {
		return fmt.Errorf("exportwav: could not write samples: %v", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("exportwav: could not finalize file: %v", err)
	}
	return nil
}
