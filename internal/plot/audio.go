package plot

import (
	"errors"
	"fmt"
	"image"
	"image/draw"
	"math"
	"os"
	"path/filepath"

	"github.com/eligwz/spectrogram"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	vgdraw "gonum.org/v1/plot/vg/draw"
)

// envelope reduces samples to at most buckets min/max pairs and returns
// them as a closed outline: maxima left to right, then minima back.
func envelope(samples []float64, sampleRate, buckets int) plotter.XYs {
	buckets = min(buckets, len(samples))
	upper := make(plotter.XYs, buckets)
	lower := make(plotter.XYs, buckets)
	for b := 0; b < buckets; b++ {
		start := b * len(samples) / buckets
		end := max(start+1, (b+1)*len(samples)/buckets)
		lo, hi := samples[start], samples[start]
		for _, s := range samples[start:min(end, len(samples))] {
			lo = math.Min(lo, s)
			hi = math.Max(hi, s)
		}
		t := float64(start) / float64(sampleRate)
		upper[b] = plotter.XY{X: t, Y: hi}
		lower[buckets-1-b] = plotter.XY{X: t, Y: lo}
	}
	return append(upper, lower...)
}

// Waveform draws amplitude over time as a filled min/max envelope.
func Waveform(path string, samples []float64, sampleRate int) error {
	if len(samples) == 0 || sampleRate <= 0 {
		return errors.New("empty waveform")
	}
	const width, height = 1288, 486

	outline, err := plotter.NewPolygon(envelope(samples, sampleRate, 1200))
	if err != nil {
		return fmt.Errorf("waveform: %w", err)
	}
	outline.Color = waveBlue
	outline.LineStyle.Color = waveBlue

	p := plot.New()
	p.Title.Text = "Waveform"
	p.X.Label.Text = "Time (s)"
	p.Y.Label.Text = "Amplitude"
	p.Add(plotter.NewGrid(), outline)
	return render(path, width, height, func(dc vgdraw.Canvas) { p.Draw(dc) })
}

// Spectrogram draws a linear-magnitude Hamming-window FFT spectrogram.
func Spectrogram(path string, samples []float64, sampleRate, width, height int) error {
	if len(samples) == 0 || sampleRate <= 0 {
		return errors.New("empty waveform")
	}
	if width <= 0 || height <= 0 {
		return fmt.Errorf("spectrogram size %dx%d", width, height)
	}
	img := spectrogram.NewImage128(image.Rect(0, 0, width, height))
	draw.Draw(img, img.Bounds(), image.NewUniform(spectrogram.ParseColor("000000")), image.Point{}, draw.Src)

	spectrogram.Drawfft(
		img,
		samples,
		uint32(sampleRate),
		uint32(height),
		false, // Hamming window
		false, // FFT rather than DFT
		true,  // magnitude
		false, // linear scale
	)

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating plot directory: %w", err)
	}
	if err := spectrogram.SavePng(img, path); err != nil {
		return fmt.Errorf("saving %s: %w", path, err)
	}
	return nil
}
