package features

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// Slaney mel scale constants: linear below 1 kHz, logarithmic above.
const (
	melFSp       = 200.0 / 3
	melMinLogHz  = 1000.0
	melMinLogMel = melMinLogHz / melFSp
)

var melLogStep = math.Log(6.4) / 27.0

// HzToMel converts a frequency to the Slaney mel scale.
func HzToMel(f float64) float64 {
	if f >= melMinLogHz {
		return melMinLogMel + math.Log(f/melMinLogHz)/melLogStep
	}
	return f / melFSp
}

// MelToHz is the inverse of HzToMel.
func MelToHz(m float64) float64 {
	if m >= melMinLogMel {
		return melMinLogHz * math.Exp(melLogStep*(m-melMinLogMel))
	}
	return melFSp * m
}

// MelFilterBank builds an nMels × (nfft/2+1) triangular filterbank with
// Slaney area normalization.
func MelFilterBank(sampleRate, nfft, nMels int, fmin, fmax float64) *mat.Dense {
	bins := nfft/2 + 1
	fftFreqs := make([]float64, bins)
	floats.Span(fftFreqs, 0, float64(sampleRate)/2)

	mels := make([]float64, nMels+2)
	floats.Span(mels, HzToMel(fmin), HzToMel(fmax))
	melF := make([]float64, len(mels))
	for i, m := range mels {
		melF[i] = MelToHz(m)
	}

	weights := mat.NewDense(nMels, bins, nil)
	for i := 0; i < nMels; i++ {
		lowDiff := melF[i+1] - melF[i]
		highDiff := melF[i+2] - melF[i+1]
		enorm := 2.0 / (melF[i+2] - melF[i])
		for k, f := range fftFreqs {
			lower := (f - melF[i]) / lowDiff
			upper := (melF[i+2] - f) / highDiff
			w := math.Max(0, math.Min(lower, upper))
			weights.Set(i, k, w*enorm)
		}
	}
	return weights
}

// DCTBasis returns the orthonormal DCT-II matrix truncated to the first
// nCoeffs rows: y = D·x.
func DCTBasis(nCoeffs, n int) *mat.Dense {
	d := mat.NewDense(nCoeffs, n, nil)
	for k := 0; k < nCoeffs; k++ {
		scale := math.Sqrt(2.0 / float64(n))
		if k == 0 {
			scale = math.Sqrt(1.0 / float64(n))
		}
		for i := 0; i < n; i++ {
			d.Set(k, i, scale*math.Cos(math.Pi*float64(k)*(2*float64(i)+1)/(2*float64(n))))
		}
	}
	return d
}

// MFCCConfig parameterizes cepstral analysis.
type MFCCConfig struct {
	SampleRate int
	NumMFCC    int
	NFFT       int
	HopLength  int
	NumMels    int
	FMin       float64
	FMax       float64 // 0 means Nyquist
	TopDB      float64 // 0 disables clipping
}

// DefaultMFCCConfig matches the analysis used for the genre datasets.
func DefaultMFCCConfig() MFCCConfig {
	return MFCCConfig{
		SampleRate: 22050,
		NumMFCC:    13,
		NFFT:       2048,
		HopLength:  512,
		NumMels:    128,
		TopDB:      80,
	}
}

func (c MFCCConfig) validate() error {
	switch {
	case c.SampleRate <= 0:
		return errors.New("sample rate must be positive")
	case c.NFFT < 2:
		return errors.New("fft size must be at least 2")
	case c.HopLength <= 0:
		return errors.New("hop length must be positive")
	case c.NumMels <= 0:
		return errors.New("mel band count must be positive")
	case c.NumMFCC <= 0 || c.NumMFCC > c.NumMels:
		return fmt.Errorf("coefficient count %d must be in [1, %d]", c.NumMFCC, c.NumMels)
	}
	return nil
}

// MFCC computes mel-frequency cepstral coefficients. It is safe for
// sequential reuse but not for concurrent use.
type MFCC struct {
	cfg    MFCCConfig
	window []float64
	mel    *mat.Dense // nMels × bins
	dct    *mat.Dense // nMFCC × nMels
}

func NewMFCC(cfg MFCCConfig) (*MFCC, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	fmax := cfg.FMax
	if fmax <= 0 {
		fmax = float64(cfg.SampleRate) / 2
	}
	return &MFCC{
		cfg:    cfg,
		window: Hann(cfg.NFFT),
		mel:    MelFilterBank(cfg.SampleRate, cfg.NFFT, cfg.NumMels, cfg.FMin, fmax),
		dct:    DCTBasis(cfg.NumMFCC, cfg.NumMels),
	}, nil
}

func (m *MFCC) Config() MFCCConfig { return m.cfg }

// FrameCount returns how many MFCC vectors a signal of n samples yields.
func (m *MFCC) FrameCount(n int) int {
	return CenteredFrameCount(n, m.cfg.NFFT, m.cfg.HopLength)
}

// Compute returns the time-major coefficient matrix, frames × NumMFCC.
func (m *MFCC) Compute(samples []float64) ([][]float64, error) {
	spec, err := PowerSTFT(samples, m.cfg.NFFT, m.cfg.HopLength, m.window)
	if err != nil {
		return nil, err
	}
	frames := len(spec)
	bins := m.cfg.NFFT/2 + 1

	power := mat.NewDense(frames, bins, nil)
	for t, row := range spec {
		power.SetRow(t, row)
	}

	var melSpec mat.Dense
	melSpec.Mul(power, m.mel.T())

	logMel := powerToDB(&melSpec, m.cfg.TopDB)

	var coeffs mat.Dense
	coeffs.Mul(logMel, m.dct.T())

	out := make([][]float64, frames)
	for t := range out {
		out[t] = mat.Row(nil, t, &coeffs)
	}
	return out, nil
}

// powerToDB converts power to decibels relative to 1.0 and clips everything
// more than topDB below the peak.
func powerToDB(s *mat.Dense, topDB float64) *mat.Dense {
	const amin = 1e-10
	r, c := s.Dims()
	out := mat.NewDense(r, c, nil)
	out.Apply(func(_, _ int, v float64) float64 {
		return 10 * math.Log10(math.Max(amin, v))
	}, s)
	if topDB > 0 {
		floor := mat.Max(out) - topDB
		out.Apply(func(_, _ int, v float64) float64 {
			return math.Max(v, floor)
		}, out)
	}
	return out
}
