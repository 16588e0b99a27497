package experiment

import (
	"fmt"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"
)

// PlotReturns draws the learning curve of a training run and saves it
// to path. The image format is chosen from the path's extension.
func PlotReturns(returns []float64, path string) error {
	if len(returns) == 0 {
		return fmt.Errorf("plotreturns: no returns to plot")
	}

	p := plot.New()
	p.Title.Text = "Episodic return"
	p.X.Label.Text = "Episode"
	p.Y.Label.Text = "Return"

	points := make(plotter.XYs, len(returns))
	for i, v := range returns {
		points[i] = plotter.XY{X: float64(i), Y: v}
	}

	line, err := plotter.NewLine(points)
	if err != nil {
		return fmt.Errorf("plotreturns: %v", err)
	}
	line.Color = plotutil.Color(0)
	p.Add(line)

	if err := p.Save(8*vg.Inch, 8*vg.Inch, path); err != nil {
		return fmt.Errorf("plotreturns: could not save plot: %v", err)
	}
	return nil
}
