package sensor

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// Summarize reduces a raw (samples x channels) block into a
// (frames x channels) loudness observation. Each channel first has its
// DC bias removed by subtracting the channel mean over the whole block,
// then the block is split into frames along the sample axis and the
// root-mean-square magnitude of each channel within each frame is
// taken as that frame's loudness.
//
// Trailing samples that do not fill a whole frame are folded into the
// last frame, so every sample contributes to exactly one frame.
func Summarize(block *mat.Dense, frames int) (*mat.Dense, error) {
	if frames < 1 {
		return nil, fmt.Errorf("summarize: frame count must be positive, "+
			"got %d", frames)
	}

	samples, channels := block.Dims()
	if samples < frames {
		return nil, fmt.Errorf("summarize: %d samples cannot fill %d frames",
			samples, frames)
	}

	// Remove per-channel DC bias
	unbiased := mat.NewDense(samples, channels, nil)
	col := make([]float64, samples)
	for c := 0; c < channels; c++ {
		mat.Col(col, c, block)
		bias := stat.Mean(col, nil)
		floats.AddConst(-bias, col)
		unbiased.SetCol(c, col)
	}

	perFrame := samples / frames
	obs := mat.NewDense(frames, channels, nil)
	for f := 0; f < frames; f++ {
		start := f * perFrame
		end := start + perFrame
		if f == frames-1 {
			end = samples
		}

		for c := 0; c < channels; c++ {
			sumSq := 0.0
			for s := start; s < end; s++ {
				v := unbiased.At(s, c)
				sumSq += v * v
			}
			obs.Set(f, c, math.Sqrt(sumSq/float64(end-start)))
		}
	}

	return obs, nil
}

// Flatten copies a (frames x channels) observation into a single
// row-major vector, the layout expected by the value agent.
func Flatten(obs *mat.Dense) *mat.VecDense {
	rows, cols := obs.Dims()
	data := make([]float64, rows*cols)
	for r := 0; r < rows; r++ {
		for c := 0; c < cols; c++ {
			data[r*cols+c] = obs.At(r, c)
		}
	}
	return mat.NewVecDense(rows*cols, data)
}
