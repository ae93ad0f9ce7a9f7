package plot

import (
	"errors"
	"fmt"
	"image/color"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"
)

// Curves holds per-epoch training and held-out metrics.
type Curves struct {
	Accuracy    []float64
	ValAccuracy []float64
	Loss        []float64
	ValLoss     []float64
}

// Series is one labelled line.
type Series struct {
	Label  string
	Values []float64
	Color  color.Color
}

// Panel is a line chart with a title and legend.
type Panel struct {
	Title       string
	XLabel      string
	YLabel      string
	Series      []Series
	LegendLower bool
}

// Plot builds the chart. Epochs are numbered from 0 on the x axis.
func (p Panel) Plot() (*plot.Plot, error) {
	pl := plot.New()
	pl.Title.Text = p.Title
	pl.X.Label.Text = p.XLabel
	pl.Y.Label.Text = p.YLabel
	pl.Add(plotter.NewGrid())
	pl.Legend.Top = !p.LegendLower

	for _, s := range p.Series {
		xys := make(plotter.XYs, len(s.Values))
		for i, v := range s.Values {
			xys[i].X = float64(i)
			xys[i].Y = v
		}
		line, points, err := plotter.NewLinePoints(xys)
		if err != nil {
			return nil, fmt.Errorf("series %q: %w", s.Label, err)
		}
		line.Color = s.Color
		line.Width = vg.Points(2)
		points.Color = s.Color
		points.Radius = vg.Points(2)
		pl.Add(line, points)
		pl.Legend.Add(s.Label, line)
	}
	return pl, nil
}

// History renders the accuracy and error panels stacked vertically.
func History(path string, cv Curves) error {
	if len(cv.Accuracy) == 0 || len(cv.Loss) == 0 {
		return errors.New("history has no epochs")
	}
	const width, panelH = 900, 360

	acc := []Series{{Label: "train accuracy", Values: cv.Accuracy, Color: trainBlue}}
	loss := []Series{{Label: "train error", Values: cv.Loss, Color: trainBlue}}
	if len(cv.ValAccuracy) > 0 {
		acc = append(acc, Series{Label: "test accuracy", Values: cv.ValAccuracy, Color: testOrg})
	}
	if len(cv.ValLoss) > 0 {
		loss = append(loss, Series{Label: "test error", Values: cv.ValLoss, Color: testOrg})
	}

	top, err := Panel{Title: "Accuracy eval", XLabel: "Epoch", YLabel: "Accuracy", Series: acc, LegendLower: true}.Plot()
	if err != nil {
		return err
	}
	bottom, err := Panel{Title: "Error eval", XLabel: "Epoch", YLabel: "Error", Series: loss}.Plot()
	if err != nil {
		return err
	}

	return render(path, width, 2*panelH, func(dc draw.Canvas) {
		plots := [][]*plot.Plot{{top}, {bottom}}
		tiles := draw.Tiles{Rows: 2, Cols: 1, PadX: vg.Points(8), PadY: vg.Points(12), PadTop: vg.Points(8), PadBottom: vg.Points(8), PadLeft: vg.Points(8), PadRight: vg.Points(16)}
		canvases := plot.Align(plots, tiles, dc)
		for i := range plots {
			plots[i][0].Draw(canvases[i][0])
		}
	})
}
