package genreclass

import (
	"io"
	"os"
	"time"

	"github.com/himanishpuri/GenreDNA/internal/audio"
	"github.com/himanishpuri/GenreDNA/internal/features"
)

type Config struct {
	DBPath        string
	TempDir       string
	PlotDir       string
	Features      features.Params
	FFmpegTimeout time.Duration

	// Seed drives splits, weight init, dropout and shuffling. Zero picks
	// a time-based seed that is logged and recorded with the run.
	Seed      int64
	Stratify  bool
	Dropout   float64
	BatchSize int // 0 keeps the architecture's batch size
	Epochs    int // 0 keeps the architecture's epoch count

	Architectures []Architecture
	Progress      io.Writer
	Logger        Logger
	Storage       Storage
}

type Option func(*Config)

func WithDBPath(path string) Option {
	return func(c *Config) {
		c.DBPath = path
	}
}

func WithTempDir(dir string) Option {
	return func(c *Config) {
		c.TempDir = dir
	}
}

// WithPlotDir sets where training and audio plots are written. An empty
// directory disables training plots.
func WithPlotDir(dir string) Option {
	return func(c *Config) {
		c.PlotDir = dir
	}
}

func WithSampleRate(rate int) Option {
	return func(c *Config) {
		c.Features.SampleRate = rate
	}
}

func WithFeatureParams(p features.Params) Option {
	return func(c *Config) {
		c.Features = p
	}
}

func WithFFmpegTimeout(d time.Duration) Option {
	return func(c *Config) {
		c.FFmpegTimeout = d
	}
}

func WithSeed(seed int64) Option {
	return func(c *Config) {
		c.Seed = seed
	}
}

func WithStratify(on bool) Option {
	return func(c *Config) {
		c.Stratify = on
	}
}

func WithDropout(rate float64) Option {
	return func(c *Config) {
		c.Dropout = rate
	}
}

func WithBatchSize(n int) Option {
	return func(c *Config) {
		c.BatchSize = n
	}
}

func WithEpochs(n int) Option {
	return func(c *Config) {
		c.Epochs = n
	}
}

// WithArchitectures registers extra architectures next to the presets.
func WithArchitectures(archs ...Architecture) Option {
	return func(c *Config) {
		c.Architectures = append(c.Architectures, archs...)
	}
}

// WithProgress draws progress bars to w; nil disables them.
func WithProgress(w io.Writer) Option {
	return func(c *Config) {
		c.Progress = w
	}
}

func WithLogger(log Logger) Option {
	return func(c *Config) {
		c.Logger = log
	}
}

func WithStorage(storage Storage) Option {
	return func(c *Config) {
		c.Storage = storage
	}
}

func defaultConfig() *Config {
	return &Config{
		DBPath:        "genredna.sqlite3",
		TempDir:       os.TempDir(),
		PlotDir:       "plots",
		Features:      features.DefaultParams(),
		FFmpegTimeout: audio.DefaultConvertTimeout,
		Dropout:       0.3,
		Progress:      os.Stderr,
	}
}
