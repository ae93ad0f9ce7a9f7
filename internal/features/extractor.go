package features

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/himanishpuri/GenreDNA/internal/audio"
	"github.com/himanishpuri/GenreDNA/internal/dataset"
	"github.com/himanishpuri/GenreDNA/internal/progress"
	"github.com/himanishpuri/GenreDNA/pkg/logger"
)

// Params controls how tracks are cut into segments and analysed.
type Params struct {
	SampleRate    int
	TrackDuration int // seconds
	NumMFCC       int
	NFFT          int
	HopLength     int
	NumSegments   int
}

func DefaultParams() Params {
	return Params{
		SampleRate:    audio.DefaultSampleRate,
		TrackDuration: 30,
		NumMFCC:       13,
		NFFT:          2048,
		HopLength:     512,
		NumSegments:   5,
	}
}

func (p Params) SamplesPerTrack() int { return p.SampleRate * p.TrackDuration }

func (p Params) SamplesPerSegment() int { return p.SamplesPerTrack() / p.NumSegments }

// ExpectedFrames is the number of MFCC vectors a full segment must yield.
func (p Params) ExpectedFrames() int {
	return int(math.Ceil(float64(p.SamplesPerSegment()) / float64(p.HopLength)))
}

func (p Params) Validate() error {
	switch {
	case p.SampleRate <= 0:
		return errors.New("sample rate must be positive")
	case p.TrackDuration <= 0:
		return errors.New("track duration must be positive")
	case p.NumSegments <= 0:
		return errors.New("segment count must be positive")
	case p.HopLength <= 0:
		return errors.New("hop length must be positive")
	case p.SamplesPerSegment() == 0:
		return fmt.Errorf("%d segments leave no samples per segment", p.NumSegments)
	}
	return nil
}

// MFCCConfig returns the analysis settings for one segment.
func (p Params) MFCCConfig() MFCCConfig {
	c := DefaultMFCCConfig()
	c.SampleRate = p.SampleRate
	c.NumMFCC = p.NumMFCC
	c.NFFT = p.NFFT
	c.HopLength = p.HopLength
	return c
}

// WaveformDecoder loads a file as a mono waveform at a fixed rate.
type WaveformDecoder interface {
	Decode(ctx context.Context, path string) (audio.Waveform, error)
}

// GenreStats summarizes extraction for one genre directory.
type GenreStats struct {
	Genre    string
	Files    int
	Segments int
	Dropped  int
	Skipped  int // non-audio files
}

// Stats summarizes one extraction run.
type Stats struct {
	Genres   []GenreStats
	Duration time.Duration
}

// Totals sums files, kept segments and dropped segments across genres.
func (s Stats) Totals() (files, kept, dropped int) {
	for _, g := range s.Genres {
		files += g.Files
		kept += g.Segments
		dropped += g.Dropped
	}
	return
}

// Logger is the subset of the project logger the extractor writes to.
type Logger interface {
	Debugf(format string, args ...any)
	Infof(format string, args ...any)
	Warnf(format string, args ...any)
}

// Extractor walks a genre-labelled corpus and turns every track into
// fixed-shape MFCC segments.
type Extractor struct {
	params   Params
	decoder  WaveformDecoder
	mfcc     *MFCC
	log      Logger
	progress io.Writer
}

type ExtractorOption func(*Extractor)

// WithLogger sets the logger; the default is logger.GetLogger().
func WithLogger(l Logger) ExtractorOption {
	return func(e *Extractor) { e.log = l }
}

// WithProgress sends the progress bar to w. A nil writer disables it.
func WithProgress(w io.Writer) ExtractorOption {
	return func(e *Extractor) { e.progress = w }
}

func NewExtractor(p Params, dec WaveformDecoder, opts ...ExtractorOption) (*Extractor, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	m, err := NewMFCC(p.MFCCConfig())
	if err != nil {
		return nil, err
	}
	e := &Extractor{
		params:   p,
		decoder:  dec,
		mfcc:     m,
		log:      logger.GetLogger(),
		progress: os.Stderr,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

func (e *Extractor) Params() Params { return e.params }

// Segments cuts the first SamplesPerTrack samples of signal into
// NumSegments equal parts and returns the MFCC matrix of every part whose
// frame count matches ExpectedFrames, plus how many parts were dropped.
func (e *Extractor) Segments(signal []float64) ([][][]float64, int, error) {
	sps := e.params.SamplesPerSegment()
	want := e.params.ExpectedFrames()

	var kept [][][]float64
	dropped := 0
	for s := 0; s < e.params.NumSegments; s++ {
		start := s * sps
		end := start + sps
		if start > len(signal) {
			start = len(signal)
		}
		if end > len(signal) {
			end = len(signal)
		}
		seg := signal[start:end]

		if len(seg) < 2 || e.mfcc.FrameCount(len(seg)) != want {
			dropped++
			continue
		}
		m, err := e.mfcc.Compute(seg)
		if err != nil {
			return nil, 0, fmt.Errorf("segment %d: %w", s, err)
		}
		if len(m) != want {
			dropped++
			continue
		}
		kept = append(kept, m)
	}
	return kept, dropped, nil
}

type genreDir struct {
	name  string
	files []string
	other int
}

// scan lists genre directories in lexicographic order so label indices do
// not depend on filesystem traversal order.
func (e *Extractor) scan(root string) ([]genreDir, int, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, 0, fmt.Errorf("reading dataset root: %w", err)
	}
	var genres []genreDir
	total := 0
	for _, entry := range entries {
		if !entry.IsDir() || strings.HasPrefix(entry.Name(), ".") {
			continue
		}
		g := genreDir{name: entry.Name()}
		files, err := os.ReadDir(filepath.Join(root, entry.Name()))
		if err != nil {
			return nil, 0, fmt.Errorf("reading genre %s: %w", entry.Name(), err)
		}
		for _, f := range files {
			if f.IsDir() || strings.HasPrefix(f.Name(), ".") {
				continue
			}
			path := filepath.Join(root, entry.Name(), f.Name())
			if !audio.IsAudioFile(path) {
				e.log.Warnf("Skipping non-audio file %s", path)
				g.other++
				continue
			}
			g.files = append(g.files, path)
		}
		sort.Strings(g.files)
		total += len(g.files)
		genres = append(genres, g)
	}
	sort.Slice(genres, func(i, j int) bool { return genres[i].name < genres[j].name })
	return genres, total, nil
}

// Extract builds a dataset from root/<genre>/<file>. Any decode failure
// aborts the whole run.
func (e *Extractor) Extract(ctx context.Context, root string) (*dataset.Dataset, Stats, error) {
	started := time.Now()
	genres, total, err := e.scan(root)
	if err != nil {
		return nil, Stats{}, err
	}
	e.log.Infof("Found %d genres and %d audio files under %s", len(genres), total, root)
	e.log.Debugf("Segment length %d samples, expecting %d frames of %d coefficients",
		e.params.SamplesPerSegment(), e.params.ExpectedFrames(), e.params.NumMFCC)

	bar := progress.New(e.progress, "Extracting", total)

	ds := &dataset.Dataset{Genres: make([]string, 0, len(genres))}
	stats := Stats{Genres: make([]GenreStats, 0, len(genres))}

	fail := func(err error) (*dataset.Dataset, Stats, error) {
		bar.Abort()
		bar.Wait()
		return nil, stats, err
	}

	for label, g := range genres {
		ds.Genres = append(ds.Genres, g.name)
		gs := GenreStats{Genre: g.name, Skipped: g.other}
		e.log.Infof("Processing %s", g.name)

		for _, path := range g.files {
			if err := ctx.Err(); err != nil {
				return fail(err)
			}
			t0 := time.Now()

			w, err := e.decoder.Decode(ctx, path)
			if err != nil {
				return fail(fmt.Errorf("decoding %s: %w", path, err))
			}
			segs, dropped, err := e.Segments(w.Samples)
			if err != nil {
				return fail(fmt.Errorf("extracting %s: %w", path, err))
			}
			for _, m := range segs {
				ds.Append(m, label)
			}
			gs.Files++
			gs.Segments += len(segs)
			gs.Dropped += dropped
			if dropped > 0 {
				e.log.Debugf("%s: dropped %d short segment(s)", filepath.Base(path), dropped)
			}
			bar.Done(time.Since(t0))
		}
		stats.Genres = append(stats.Genres, gs)
	}
	bar.Wait()

	stats.Duration = time.Since(started)
	files, kept, dropped := stats.Totals()
	e.log.Infof("Extracted %d segments from %d files (%d dropped) in %s",
		kept, files, dropped, stats.Duration.Round(time.Millisecond))
	return ds, stats, nil
}
