package sensor

import (
	"fmt"
	"math"
	"os"
	"time"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// WriteSine writes a mono 16-bit PCM sine tone to path. The tone is
// played through the room as the excitation signal during training and
// evaluation runs.
func WriteSine(path string, frequency float64, duration time.Duration,
	sampleRate int) error {
	if frequency <= 0 {
		return fmt.Errorf("writesine: frequency must be positive, got %v",
			frequency)
	}

	samples := int(float64(sampleRate) * duration.Seconds())
	data := make([]int, samples)
	for i := 0; i < samples; i++ {
		t := float64(i) / float64(sampleRate)
		data[i] = int(math.Sin(2*math.Pi*frequency*t) * float64(math.MaxInt16))
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("writesine: %v", err)
	}
	defer f.Close()

	enc := wav.NewEncoder(f, sampleRate, 16, 1, 1)
	buf := &audio.IntBuffer{
		Format:         &audio.Format{NumChannels: 1, SampleRate: sampleRate},
		Data:           data,
		SourceBitDepth: 16,
	}
	if err := enc.Write(buf); err != nil {
		return fmt.Errorf("writesine: could not write samples: %v", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("writesine: could not finalize file: %v", err)
	}
	return nil
}
