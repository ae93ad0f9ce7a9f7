package plot

import (
	"errors"
	"image/color"
	"image/png"
	"math"
	"os"
	"path/filepath"
	"testing"

	"gonum.org/v1/plot/palette"
)

func pngSize(t *testing.T, path string) (int, int) {
	t.Helper()
	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("opening %s: %v", path, err)
	}
	defer f.Close()
	cfg, err := png.DecodeConfig(f)
	if err != nil {
		t.Fatalf("%s is not a PNG: %v", path, err)
	}
	return cfg.Width, cfg.Height
}

func TestHistoryPlot(t *testing.T) {
	path := filepath.Join(t.TempDir(), "plots", "history.png")
	cv := Curves{
		Accuracy:    []float64{0.2, 0.4, 0.6, 0.7},
		ValAccuracy: []float64{0.25, 0.35, 0.5, 0.55},
		Loss:        []float64{2.1, 1.5, 1.1, 0.9},
		ValLoss:     []float64{2.0, 1.7, 1.4, 1.35},
	}
	if err := History(path, cv); err != nil {
		t.Fatalf("History failed: %v", err)
	}
	if w, h := pngSize(t, path); w != 900 || h != 720 {
		t.Errorf("size %dx%d, want 900x720", w, h)
	}

	single := Curves{Accuracy: []float64{0.5}, Loss: []float64{1}}
	if err := History(filepath.Join(t.TempDir(), "one.png"), single); err != nil {
		t.Errorf("single-epoch history failed: %v", err)
	}
	if err := History(filepath.Join(t.TempDir(), "none.png"), Curves{}); err == nil {
		t.Error("expected error for empty history")
	}
}

func TestConfusionPlot(t *testing.T) {
	path := filepath.Join(t.TempDir(), "confusion.png")
	labels := []string{"blues", "hip_hop", "jazz"}
	counts := [][]int{{5, 1, 0}, {0, 6, 0}, {2, 0, 4}}
	if err := Confusion(path, labels, counts); err != nil {
		t.Fatalf("Confusion failed: %v", err)
	}
	if w, h := pngSize(t, path); w != 110+3*72+110 || h != 50+3*72+70 {
		t.Errorf("size %dx%d", w, h)
	}
	if err := Confusion(path, labels, counts[:2]); err == nil {
		t.Error("expected error when rows do not match labels")
	}
}

func TestMatrixAndWaveformPlots(t *testing.T) {
	dir := t.TempDir()
	mfcc := make([][]float64, 13)
	for i := range mfcc {
		mfcc[i] = make([]float64, 130)
		for j := range mfcc[i] {
			mfcc[i][j] = float64(i*j) - 300
		}
	}
	if err := Matrix(filepath.Join(dir, "mfcc.png"), "MFCCs", "Time", "MFCC coefficients", mfcc, CoolWarm()); err != nil {
		t.Fatalf("Matrix failed: %v", err)
	}
	if w, h := pngSize(t, filepath.Join(dir, "mfcc.png")); w != 60+400+barWidth+30 || h != 40+208+50 {
		t.Errorf("matrix size %dx%d", w, h)
	}

	samples := make([]float64, 22050)
	for i := range samples {
		samples[i] = math.Sin(2 * math.Pi * 220 * float64(i) / 22050)
	}
	if err := Waveform(filepath.Join(dir, "wave.png"), samples, 22050); err != nil {
		t.Fatalf("Waveform failed: %v", err)
	}
	if w, h := pngSize(t, filepath.Join(dir, "wave.png")); w != 1288 || h != 486 {
		t.Errorf("waveform size %dx%d", w, h)
	}
	if err := Waveform(filepath.Join(dir, "empty.png"), nil, 22050); err == nil {
		t.Error("expected error for empty waveform")
	}
}

func TestSpectrogramPlot(t *testing.T) {
	samples := make([]float64, 4*22050)
	for i := range samples {
		samples[i] = 0.5 * math.Sin(2*math.Pi*1000*float64(i)/22050)
	}
	path := filepath.Join(t.TempDir(), "spec.png")
	if err := Spectrogram(path, samples, 22050, 256, 128); err != nil {
		t.Fatalf("Spectrogram failed: %v", err)
	}
	if w, h := pngSize(t, path); w != 256 || h != 128 {
		t.Errorf("size %dx%d, want 256x128", w, h)
	}
}

func TestColormap(t *testing.T) {
	cm := YlGnBu()
	cm.SetMax(10)
	lo, err := cm.At(0)
	if err != nil {
		t.Fatal(err)
	}
	if r, g, b, _ := lo.RGBA(); r>>8 != 255 || g>>8 != 255 || b>>8 != 217 {
		t.Errorf("lowest colour = %v", lo)
	}
	mid, err := cm.At(5)
	if err != nil {
		t.Fatal(err)
	}
	if r, g, b, _ := mid.RGBA(); r>>8 != 65 || g>>8 != 182 || b>>8 != 196 {
		t.Errorf("midpoint = %v, want the fifth stop", mid)
	}
	if _, err := cm.At(11); !errors.Is(err, palette.ErrOverflow) {
		t.Errorf("expected overflow above the range, got %v", err)
	}
	if n := len(cm.Palette(7).Colors()); n != 7 {
		t.Errorf("palette has %d colours", n)
	}

	if contrast(color.RGBA{8, 29, 88, 255}) != color.White || contrast(color.RGBA{255, 255, 217, 255}) != color.Black {
		t.Error("contrast text colour is wrong")
	}
}

func TestEnvelope(t *testing.T) {
	samples := []float64{0, 1, -1, 0.5, -0.5, 0.25}
	xy := envelope(samples, 2, 3)
	if len(xy) != 6 {
		t.Fatalf("outline has %d points", len(xy))
	}
	want := []float64{1, 0.5, 0.25, -0.5, -1, 0}
	for i, p := range xy {
		if p.Y != want[i] {
			t.Errorf("point %d = %v, want y %v", i, p, want[i])
		}
	}
	if xy[1].X != 1 || xy[3].X != 2 {
		t.Errorf("time axis wrong: %v", xy)
	}
}

func TestDisplayLabel(t *testing.T) {
	tests := map[string]string{
		"blues":   "Blues",
		"hip_hop": "Hip Hop",
		"k-pop":   "K Pop",
	}
	for in, want := range tests {
		if got := DisplayLabel(in); got != want {
			t.Errorf("DisplayLabel(%q) = %q, want %q", in, got, want)
		}
	}
}
