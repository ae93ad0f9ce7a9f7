package plot

import (
	"errors"
	"fmt"
	"math"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/palette"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/text"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"
)

var title = cases.Title(language.English)

// DisplayLabel turns a genre directory name such as "hip_hop" into
// "Hip Hop".
func DisplayLabel(name string) string {
	out := []rune(name)
	for i, r := range out {
		if r == '_' || r == '-' {
			out[i] = ' '
		}
	}
	return title.String(string(out))
}

// grid adapts a row-major matrix to plotter.GridXYZ. Row 0 is drawn at the
// bottom unless flip is set.
type grid struct {
	values [][]float64
	flip   bool
}

func (g grid) Dims() (c, r int) { return len(g.values[0]), len(g.values) }
func (g grid) X(c int) float64 { return float64(c) }
func (g grid) Y(r int) float64 { return float64(r) }
func (g grid) Z(c, r int) float64 { return g.values[g.row(r)][c] }

func (g grid) row(r int) int {
	if g.flip {
		return len(g.values) - 1 - r
	}
	return r
}

// scaleBar is a vertical colour bar plot for cm over its current range.
func scaleBar(cm palette.ColorMap, heading string) *plot.Plot {
	p := plot.New()
	p.Title.Text = heading
	p.HideX()
	p.Add(&plotter.ColorBar{ColorMap: cm, Vertical: true})
	return p
}

const barWidth = 90

// Confusion renders counts (rows true, columns predicted) as an annotated
// YlGnBu heatmap. labels are vocabulary entries in index order.
func Confusion(path string, labels []string, counts [][]int) error {
	k := len(labels)
	if k == 0 || len(counts) != k {
		return errors.New("confusion matrix does not match its labels")
	}
	values := make([][]float64, k)
	peak := 0.0
	for i, row := range counts {
		if len(row) != k {
			return errors.New("confusion matrix is not square")
		}
		values[i] = make([]float64, k)
		for j, v := range row {
			values[i][j] = float64(v)
			peak = math.Max(peak, float64(v))
		}
	}

	cm := YlGnBu()
	cm.SetMax(math.Max(peak, 1))
	g := grid{values: values, flip: true}
	heat := plotter.NewHeatMap(g, cm.Palette(255))
	heat.Min, heat.Max = 0, cm.Max()

	var xTicks, yTicks []plot.Tick
	annot := plotter.XYLabels{}
	for i := 0; i < k; i++ {
		name := DisplayLabel(labels[i])
		xTicks = append(xTicks, plot.Tick{Value: float64(i), Label: name})
		yTicks = append(yTicks, plot.Tick{Value: float64(k - 1 - i), Label: name})
		for j := 0; j < k; j++ {
			annot.XYs = append(annot.XYs, plotter.XY{X: float64(j), Y: float64(k - 1 - i)})
			annot.Labels = append(annot.Labels, fmt.Sprint(counts[i][j]))
		}
	}
	counted, err := plotter.NewLabels(annot)
	if err != nil {
		return fmt.Errorf("confusion labels: %w", err)
	}
	for n, xy := range annot.XYs {
		bg, err := cm.At(g.Z(int(xy.X), int(xy.Y)))
		if err == nil {
			counted.TextStyle[n].Color = contrast(bg)
		}
		counted.TextStyle[n].XAlign = text.XCenter
		counted.TextStyle[n].YAlign = text.YCenter
	}

	p := plot.New()
	p.Title.Text = "Confusion Matrix"
	p.X.Label.Text = "Predicted Label"
	p.Y.Label.Text = "True Label"
	p.X.Tick.Marker = plot.ConstantTicks(xTicks)
	p.Y.Tick.Marker = plot.ConstantTicks(yTicks)
	p.Add(heat, counted)

	const cell = 72
	width := 110 + k*cell + 110
	height := 50 + k*cell + 70
	bar := scaleBar(cm, "Scale")
	return render(path, width, height, func(dc draw.Canvas) {
		p.Draw(draw.Crop(dc, 0, -barWidth, 0, 0))
		bar.Draw(draw.Crop(dc, vg.Length(width-barWidth), 0, 0, 0))
	})
}

// Matrix renders rows × cols values as a heatmap with row 0 at the bottom,
// the way spectra are shown. cols map to time.
func Matrix(path, heading, xLabel, yLabel string, values [][]float64, cm palette.ColorMap) error {
	if len(values) == 0 || len(values[0]) == 0 {
		return errors.New("nothing to plot")
	}
	rows, cols := len(values), len(values[0])
	lo, hi := math.Inf(1), math.Inf(-1)
	for _, row := range values {
		if len(row) != cols {
			return errors.New("matrix rows differ in length")
		}
		for _, v := range row {
			lo = math.Min(lo, v)
			hi = math.Max(hi, v)
		}
	}
	if hi-lo < 1e-12 {
		hi = lo + 1
	}
	cm.SetMin(lo)
	cm.SetMax(hi)

	heat := plotter.NewHeatMap(grid{values: values}, cm.Palette(255))
	heat.Min, heat.Max = lo, hi

	p := plot.New()
	p.Title.Text = heading
	p.X.Label.Text = xLabel
	p.Y.Label.Text = yLabel
	p.Add(heat)

	plotW := min(max(cols*3, 400), 1200)
	plotH := min(max(rows*16, 200), 600)
	width := 60 + plotW + barWidth + 30
	bar := scaleBar(cm, "")
	return render(path, width, 40+plotH+50, func(dc draw.Canvas) {
		p.Draw(draw.Crop(dc, 0, -barWidth, 0, 0))
		bar.Draw(draw.Crop(dc, vg.Length(width-barWidth), 0, 0, 0))
	})
}
