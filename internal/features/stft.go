package features

import (
	"errors"
	"math"
	"math/cmplx"

	"github.com/mjibson/go-dsp/fft"
)

// Hann returns a periodic Hann window of length n, the variant used for
// spectral analysis (the DFT-even form).
func Hann(n int) []float64 {
	w := make([]float64, n)
	for i := range w {
		w[i] = 0.5 - 0.5*math.Cos(2*math.Pi*float64(i)/float64(n))
	}
	return w
}

// Hamming returns a symmetric Hamming window of length n.
func Hamming(n int) []float64 {
	w := make([]float64, n)
	if n == 1 {
		w[0] = 1
		return w
	}
	for i := range w {
		w[i] = 0.54 - 0.46*math.Cos(2*math.Pi*float64(i)/float64(n-1))
	}
	return w
}

// PowerSpectrum returns |X[k]|^2 for the non-negative frequencies
// 0..n/2 inclusive.
func PowerSpectrum(spectrum []complex128) []float64 {
	bins := len(spectrum)/2 + 1
	out := make([]float64, bins)
	for k := 0; k < bins; k++ {
		a := cmplx.Abs(spectrum[k])
		out[k] = a * a
	}
	return out
}

// reflectIndex maps an out-of-range index onto [0, n) by mirroring about the
// edge samples without repeating them.
func reflectIndex(j, n int) int {
	if n == 1 {
		return 0
	}
	period := 2 * (n - 1)
	j %= period
	if j < 0 {
		j += period
	}
	if j >= n {
		j = period - j
	}
	return j
}

// CenteredFrameCount is the number of frames a centred STFT produces for a
// signal of length n.
func CenteredFrameCount(n, nfft, hop int) int {
	pad := nfft / 2
	padded := n + 2*pad
	if padded < nfft {
		return 0
	}
	return 1 + (padded-nfft)/hop
}

// PowerSTFT computes a centred short-time power spectrogram, time-major:
// spec[frame][bin]. The signal is reflect-padded by nfft/2 on both sides so
// frame t is centred on sample t*hop.
func PowerSTFT(samples []float64, nfft, hop int, window []float64) ([][]float64, error) {
	if len(window) != nfft {
		return nil, errors.New("window length must equal fft size")
	}
	if hop <= 0 {
		return nil, errors.New("hop length must be positive")
	}
	if len(samples) < 2 {
		return nil, errors.New("signal too short for reflect padding")
	}

	n := len(samples)
	pad := nfft / 2
	frames := CenteredFrameCount(n, nfft, hop)

	spec := make([][]float64, frames)
	frame := make([]float64, nfft)
	for t := 0; t < frames; t++ {
		start := t*hop - pad
		for i := 0; i < nfft; i++ {
			frame[i] = samples[reflectIndex(start+i, n)] * window[i]
		}
		spec[t] = PowerSpectrum(fft.FFTReal(frame))
	}
	return spec, nil
}
