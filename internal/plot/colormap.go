package plot

import (
	"image/color"
	"math"

	"gonum.org/v1/plot/palette"
	"gonum.org/v1/plot/palette/moreland"
)

// ramp is a piecewise-linear palette.ColorMap through fixed colour stops.
type ramp struct {
	stops    []color.RGBA
	min, max float64
	alpha    float64
}

var ylGnBu = []color.RGBA{
	{255, 255, 217, 255},
	{237, 248, 177, 255},
	{199, 233, 180, 255},
	{127, 205, 187, 255},
	{65, 182, 196, 255},
	{29, 145, 192, 255},
	{34, 94, 168, 255},
	{37, 52, 148, 255},
	{8, 29, 88, 255},
}

// YlGnBu returns the ColorBrewer yellow-green-blue sequential scale over
// [0, 1].
func YlGnBu() palette.ColorMap {
	return &ramp{stops: ylGnBu, max: 1, alpha: 1}
}

// CoolWarm returns Moreland's diverging blue-red scale for signed data.
func CoolWarm() palette.ColorMap {
	return moreland.SmoothBlueRed()
}

func (r *ramp) At(v float64) (color.Color, error) {
	switch {
	case math.IsNaN(v):
		return nil, palette.ErrNaN
	case v < r.min:
		return nil, palette.ErrUnderflow
	case v > r.max:
		return nil, palette.ErrOverflow
	}
	pos := 0.0
	if r.max > r.min {
		pos = (v - r.min) / (r.max - r.min) * float64(len(r.stops)-1)
	}
	i := min(int(pos), len(r.stops)-2)
	f := pos - float64(i)
	a, b := r.stops[i], r.stops[i+1]
	lerp := func(x, y uint8) uint8 { return uint8(math.Round(float64(x) + f*(float64(y)-float64(x)))) }
	return color.NRGBA{lerp(a.R, b.R), lerp(a.G, b.G), lerp(a.B, b.B), uint8(math.Round(255 * r.alpha))}, nil
}

func (r *ramp) Max() float64 { return r.max }
func (r *ramp) Min() float64 { return r.min }
func (r *ramp) SetMax(v float64) { r.max = v }
func (r *ramp) SetMin(v float64) { r.min = v }
func (r *ramp) Alpha() float64 { return r.alpha }
func (r *ramp) SetAlpha(alpha float64) { r.alpha = alpha }

// Palette samples n evenly spaced colours.
func (r *ramp) Palette(n int) palette.Palette {
	return sample(r, n)
}

type colors []color.Color

func (c colors) Colors() []color.Color { return c }

// sample draws n colours spread over the full range of cm.
func sample(cm palette.ColorMap, n int) palette.Palette {
	out := make(colors, n)
	lo, hi := cm.Min(), cm.Max()
	for i := range out {
		v := lo
		if n > 1 {
			v = lo + (hi-lo)*float64(i)/float64(n-1)
		}
		c, err := cm.At(v)
		if err != nil {
			c = color.Black
		}
		out[i] = c
	}
	return out
}

// contrast picks black or white text for legibility on bg.
func contrast(bg color.Color) color.Color {
	r, g, b, _ := bg.RGBA()
	lum := (0.299*float64(r) + 0.587*float64(g) + 0.114*float64(b)) / 257
	if lum > 140 {
		return color.Black
	}
	return color.White
}
