// Package config loads the YAML configuration file and applies environment
// overrides.
package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/himanishpuri/GenreDNA/internal/audio"
	"github.com/himanishpuri/GenreDNA/internal/features"
	"gopkg.in/yaml.v3"
)

type Audio struct {
	SampleRate    int `yaml:"sample_rate"`
	TrackDuration int `yaml:"track_duration"`
	FFmpegTimeout int `yaml:"ffmpeg_timeout"`
}

type Features struct {
	NumMFCC     int `yaml:"num_mfcc"`
	NFFT        int `yaml:"n_fft"`
	HopLength   int `yaml:"hop_length"`
	NumSegments int `yaml:"num_segments"`
}

type Training struct {
	Seed      int64   `yaml:"seed"`
	Dropout   float64 `yaml:"dropout"`
	BatchSize int     `yaml:"batch_size"` // 0 keeps the architecture's own size
	Epochs    int     `yaml:"epochs"`     // 0 keeps the architecture's own count
	Stratify  bool    `yaml:"stratify"`

	// Architectures lists extra architecture YAML files.
	Architectures []string `yaml:"architectures"`
}

type Paths struct {
	Dataset string `yaml:"dataset"`
	DB      string `yaml:"db"`
	Temp    string `yaml:"temp"`
	Plots   string `yaml:"plots"`
}

type Root struct {
	LogLevel string   `yaml:"log_level"`
	Audio    Audio    `yaml:"audio"`
	Features Features `yaml:"features"`
	Training Training `yaml:"training"`
	Paths    Paths    `yaml:"paths"`

	// Source is the file the configuration was read from, if any.
	Source string `yaml:"-"`
}

func Default() *Root {
	p := features.DefaultParams()
	return &Root{
		LogLevel: "INFO",
		Audio: Audio{
			SampleRate:    p.SampleRate,
			TrackDuration: p.TrackDuration,
			FFmpegTimeout: int(audio.DefaultConvertTimeout / time.Second),
		},
		Features: Features{
			NumMFCC:     p.NumMFCC,
			NFFT:        p.NFFT,
			HopLength:   p.HopLength,
			NumSegments: p.NumSegments,
		},
		Training: Training{
			Dropout: 0.3,
		},
		Paths: Paths{
			Dataset: "data.json",
			DB:      "genredna.sqlite3",
			Temp:    os.TempDir(),
			Plots:   "plots",
		},
	}
}

var searchPaths = []string{
	"genredna.yaml",
	filepath.Join("config", "genredna.yaml"),
}

// Load reads path, or GENREDNA_CONFIG when path is empty, or the first file
// found in the default search paths. Without any file the defaults are
// used. Environment overrides are applied last.
func Load(path string) (*Root, error) {
	cfg := Default()

	explicit := path != ""
	if !explicit {
		path = os.Getenv("GENREDNA_CONFIG")
		explicit = path != ""
	}
	if !explicit {
		for _, p := range searchPaths {
			if _, err := os.Stat(p); err == nil {
				path = p
				break
			}
		}
	}

	if path != "" {
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("opening config: %w", err)
		}
		defer f.Close()
		if err := yaml.NewDecoder(f).Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("parsing %s: %w", path, err)
		}
		cfg.Source = path
	}

	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (r *Root) applyEnv() {
	if v := os.Getenv("GENREDNA_DB_PATH"); v != "" {
		r.Paths.DB = v
	}
	if v := os.Getenv("GENREDNA_TEMP_DIR"); v != "" {
		r.Paths.Temp = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		r.LogLevel = v
	}
}

func (r *Root) Validate() error {
	if err := r.FeatureParams().Validate(); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if r.Training.Dropout < 0 || r.Training.Dropout >= 1 {
		return fmt.Errorf("config: dropout %.2f must be in [0, 1)", r.Training.Dropout)
	}
	if r.Training.BatchSize < 0 || r.Training.Epochs < 0 {
		return fmt.Errorf("config: batch size %d and epochs %d must not be negative", r.Training.BatchSize, r.Training.Epochs)
	}
	return nil
}

// FeatureParams returns the extraction parameters.
func (r *Root) FeatureParams() features.Params {
	return features.Params{
		SampleRate:    r.Audio.SampleRate,
		TrackDuration: r.Audio.TrackDuration,
		NumMFCC:       r.Features.NumMFCC,
		NFFT:          r.Features.NFFT,
		HopLength:     r.Features.HopLength,
		NumSegments:   r.Features.NumSegments,
	}
}

func (r *Root) FFmpegTimeout() time.Duration { return seconds(r.Audio.FFmpegTimeout) }

func seconds(n int) time.Duration { return time.Duration(n) * time.Second }
