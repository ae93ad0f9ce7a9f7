package audio

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// DefaultSampleRate is the rate every track is resampled to before feature
// extraction.
const DefaultSampleRate = 22050

// Extensions lists the file types the decoder accepts. Anything other than
// .wav goes through ffmpeg.
var Extensions = map[string]bool{
	".wav":  true,
	".au":   true,
	".mp3":  true,
	".flac": true,
	".ogg":  true,
	".m4a":  true,
	".aiff": true,
}

var ErrNotWAV = errors.New("not a valid WAV file")

// Waveform is a mono signal normalized to [-1, 1].
type Waveform struct {
	Samples    []float64
	SampleRate int
}

// Duration returns the length of the waveform in seconds.
func (w Waveform) Duration() float64 {
	if w.SampleRate == 0 {
		return 0
	}
	return float64(len(w.Samples)) / float64(w.SampleRate)
}

// IsAudioFile reports whether path has an extension the decoder supports.
func IsAudioFile(path string) bool {
	return Extensions[strings.ToLower(filepath.Ext(path))]
}

// Decoder loads audio files as mono waveforms at a fixed sample rate.
type Decoder struct {
	SampleRate int
	Converter  *Converter
}

// NewDecoder returns a decoder producing waveforms at sampleRate. Non-WAV
// input and WAV files at other rates are converted in tempDir.
func NewDecoder(sampleRate int, tempDir string) *Decoder {
	if sampleRate <= 0 {
		sampleRate = DefaultSampleRate
	}
	return &Decoder{
		SampleRate: sampleRate,
		Converter:  &Converter{TempDir: tempDir},
	}
}

// Decode reads path and returns its mono waveform at d.SampleRate.
func (d *Decoder) Decode(ctx context.Context, path string) (Waveform, error) {
	if strings.EqualFold(filepath.Ext(path), ".wav") {
		w, err := ReadWAV(path)
		if err == nil && w.SampleRate == d.SampleRate {
			return w, nil
		}
		if err != nil && !errors.Is(err, ErrUnsupportedFormat) {
			return Waveform{}, err
		}
	}

	converted, err := d.Converter.ToMonoWAV(ctx, path, d.SampleRate)
	if err != nil {
		return Waveform{}, fmt.Errorf("converting %s: %w", filepath.Base(path), err)
	}
	defer os.Remove(converted)

	w, err := ReadWAV(converted)
	if err != nil {
		return Waveform{}, fmt.Errorf("reading converted %s: %w", filepath.Base(path), err)
	}
	if w.SampleRate != d.SampleRate {
		return Waveform{}, fmt.Errorf("converted %s has rate %d, want %d", filepath.Base(path), w.SampleRate, d.SampleRate)
	}
	return w, nil
}

// ErrUnsupportedFormat is returned for WAV files the native reader cannot
// handle (e.g. float or compressed payloads); Decode falls back to ffmpeg.
var ErrUnsupportedFormat = errors.New("unsupported WAV encoding")

// ReadWAV decodes an integer PCM WAV file and downmixes it to mono by
// averaging channels.
func ReadWAV(path string) (Waveform, error) {
	f, err := os.Open(path)
	if err != nil {
		return Waveform{}, err
	}
	defer f.Close()

	dec := wav.NewDecoder(f)
	if !dec.IsValidFile() {
		return Waveform{}, fmt.Errorf("%s: %w", filepath.Base(path), ErrNotWAV)
	}
	if dec.WavAudioFormat != 1 {
		return Waveform{}, fmt.Errorf("%s: format %d: %w", filepath.Base(path), dec.WavAudioFormat, ErrUnsupportedFormat)
	}

	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return Waveform{}, fmt.Errorf("decoding PCM samples: %w", err)
	}

	channels := int(dec.NumChans)
	if buf.Format != nil && buf.Format.NumChannels > 0 {
		channels = buf.Format.NumChannels
	}
	samples, err := toMono(buf.Data, channels, int(dec.BitDepth))
	if err != nil {
		return Waveform{}, fmt.Errorf("%s: %w", filepath.Base(path), err)
	}

	return Waveform{Samples: samples, SampleRate: int(dec.SampleRate)}, nil
}

// toMono converts interleaved integer samples to normalized mono float64.
func toMono(data []int, channels, bitDepth int) ([]float64, error) {
	if channels <= 0 {
		return nil, errors.New("channel count is zero")
	}
	if bitDepth <= 0 || bitDepth > 32 {
		return nil, fmt.Errorf("bit depth %d: %w", bitDepth, ErrUnsupportedFormat)
	}

	scale := 1.0 / float64(int64(1)<<uint(bitDepth-1))
	offset := 0.0
	if bitDepth == 8 {
		// 8-bit PCM is unsigned
		offset = 128
	}

	frames := len(data) / channels
	out := make([]float64, frames)
	for i := 0; i < frames; i++ {
		sum := 0.0
		for c := 0; c < channels; c++ {
			sum += (float64(data[i*channels+c]) - offset) * scale
		}
		out[i] = sum / float64(channels)
	}
	return out, nil
}

// WriteWAV encodes mono samples in [-1, 1] as a 16-bit PCM WAV file.
func WriteWAV(path string, samples []float64, sampleRate int) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}

	enc := wav.NewEncoder(f, sampleRate, 16, 1, 1)
	data := make([]int, len(samples))
	for i, s := range samples {
		if s > 1 {
			s = 1
		} else if s < -1 {
			s = -1
		}
		data[i] = int(s * 32767)
	}
	buf := &goaudio.IntBuffer{
		Format:         &goaudio.Format{NumChannels: 1, SampleRate: sampleRate},
		Data:           data,
		SourceBitDepth: 16,
	}
	if err := enc.Write(buf); err != nil {
		f.Close()
		return fmt.Errorf("encoding wav: %w", err)
	}
	if err := enc.Close(); err != nil {
		f.Close()
		return fmt.Errorf("finalizing wav: %w", err)
	}
	return f.Close()
}
