// Package genreclass trains and evaluates music-genre classifiers on MFCC
// datasets extracted from a genre-labelled audio corpus.
package genreclass

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/himanishpuri/GenreDNA/internal/audio"
	"github.com/himanishpuri/GenreDNA/internal/dataset"
	"github.com/himanishpuri/GenreDNA/internal/eval"
	"github.com/himanishpuri/GenreDNA/internal/features"
	"github.com/himanishpuri/GenreDNA/internal/nn"
	"github.com/himanishpuri/GenreDNA/internal/plot"
	"github.com/himanishpuri/GenreDNA/internal/storage"
	"github.com/himanishpuri/GenreDNA/pkg/logger"
)

// genreService is the default implementation of the Service interface.
type genreService struct {
	storage Storage
	log     Logger
	config  *Config
	archs   *Registry
	decoder *audio.Decoder
}

func NewService(opts ...Option) (Service, error) {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(cfg)
	}

	// Set default logger if none provided
	if cfg.Logger == nil {
		cfg.Logger = logger.GetLogger()
	}
	if err := cfg.Features.Validate(); err != nil {
		return nil, fmt.Errorf("feature parameters: %w", err)
	}
	if cfg.Dropout < 0 || cfg.Dropout >= 1 {
		return nil, fmt.Errorf("dropout %.2f must be in [0, 1)", cfg.Dropout)
	}

	archs, err := NewRegistry(cfg.Architectures...)
	if err != nil {
		return nil, err
	}

	// Create or use provided storage
	var stor Storage
	if cfg.Storage != nil {
		stor = cfg.Storage
	} else {
		stor, err = storage.NewDBClientWithPath(cfg.DBPath)
		if err != nil {
			return nil, fmt.Errorf("failed to create storage: %w", err)
		}
	}

	dec := audio.NewDecoder(cfg.Features.SampleRate, cfg.TempDir)
	dec.Converter.Timeout = cfg.FFmpegTimeout

	return &genreService{
		storage: stor,
		log:     cfg.Logger,
		config:  cfg,
		archs:   archs,
		decoder: dec,
	}, nil
}

// Extract builds the MFCC dataset for root/<genre>/<file> and writes it to out.
func (s *genreService) Extract(ctx context.Context, root, out string) (*ExtractReport, error) {
	s.log.Infof("Extracting features from %s", root)

	ex, err := features.NewExtractor(s.config.Features, s.decoder,
		features.WithLogger(s.log),
		features.WithProgress(s.config.Progress),
	)
	if err != nil {
		return nil, fmt.Errorf("creating extractor: %w", err)
	}

	ds, stats, err := ex.Extract(ctx, root)
	if err != nil {
		return nil, fmt.Errorf("feature extraction failed: %w", err)
	}
	for _, g := range stats.Genres {
		s.log.Debugf("%-12s files=%d segments=%d dropped=%d skipped=%d", g.Genre, g.Files, g.Segments, g.Dropped, g.Skipped)
	}

	if err := ds.Save(out); err != nil {
		return nil, fmt.Errorf("failed to save dataset: %w", err)
	}
	info, err := os.Stat(out)
	if err != nil {
		return nil, fmt.Errorf("failed to stat dataset: %w", err)
	}

	report := &ExtractReport{
		Output:   out,
		Genres:   ds.Genres,
		Samples:  ds.Len(),
		Stats:    stats,
		FileSize: info.Size(),
	}
	s.log.Infof("Wrote %d samples over %d genres to %s (%s)", report.Samples, len(report.Genres), out, report.Size())
	return report, nil
}

func (s *genreService) seed() int64 {
	if s.config.Seed != 0 {
		return s.config.Seed
	}
	seed := time.Now().UnixNano()
	s.log.Infof("No seed configured, using %d", seed)
	return seed
}

func (s *genreService) split(splitter *dataset.Splitter, arch Architecture, labels []int) (dataset.Split, error) {
	if arch.Split == SplitNested {
		return splitter.Nested(labels, arch.TestFraction, arch.ValFraction)
	}
	return splitter.Flat(labels, arch.TestFraction)
}

// Train fits architecture on the dataset at datasetPath, evaluates it on
// the held-out test split and records the run.
func (s *genreService) Train(ctx context.Context, datasetPath, architecture string) (*Report, error) {
	arch, err := s.archs.Lookup(architecture)
	if err != nil {
		return nil, err
	}
	started := time.Now()
	s.log.Infof("Training %s on %s", arch.Name, datasetPath)

	// 1. Load the dataset
	ds, err := dataset.Load(datasetPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load dataset: %w", err)
	}
	if ds.Len() == 0 {
		return nil, errors.New("dataset has no samples")
	}
	frames, coeffs := ds.SampleShape()
	s.log.Infof("Loaded %d samples of %dx%d over %d genres", ds.Len(), frames, coeffs, ds.NumClasses())

	// 2. Split
	seed := s.seed()
	rng := rand.New(rand.NewSource(seed))
	splitter := &dataset.Splitter{Rand: rng, Stratify: s.config.Stratify}
	split, err := s.split(splitter, arch, ds.Y)
	if err != nil {
		return nil, fmt.Errorf("split failed: %w", err)
	}
	nTrain, nVal, nTest := split.Sizes()
	s.log.Infof("Split: %d train, %d validation, %d test", nTrain, nVal, nTest)

	// 3. Materialize tensors
	trainX, trainY, err := s.tensors(arch, ds, split.Train)
	if err != nil {
		return nil, err
	}
	testX, testY, err := s.tensors(arch, ds, split.Test)
	if err != nil {
		return nil, err
	}
	valX, valY := testX, testY
	if arch.Split == SplitNested {
		if valX, valY, err = s.tensors(arch, ds, split.Validation); err != nil {
			return nil, err
		}
	}

	// 4. Build the model
	model, err := arch.Build(arch.InputShape(frames, coeffs), ds.NumClasses(), s.config.Dropout, rng)
	if err != nil {
		return nil, fmt.Errorf("failed to build model: %w", err)
	}
	defer model.Close()
	model.SetLogger(s.log)
	s.log.Infof("Model summary:\n%s", model)

	// 5. Fit
	epochs, batch := arch.Epochs, arch.BatchSize
	if s.config.Epochs > 0 {
		epochs = s.config.Epochs
	}
	if s.config.BatchSize > 0 {
		batch = s.config.BatchSize
	}
	hist, err := model.Fit(ctx, trainX, trainY, nn.FitConfig{
		Epochs:    epochs,
		BatchSize: batch,
		ValX:      valX,
		ValY:      valY,
	})
	if err != nil {
		return nil, fmt.Errorf("training failed: %w", err)
	}

	// 6. Evaluate on the test split
	testLoss, testAcc, err := model.Evaluate(testX, testY, batch)
	if err != nil {
		return nil, fmt.Errorf("evaluation failed: %w", err)
	}
	s.log.Infof("Test loss %.4f, test accuracy %.4f", testLoss, testAcc)

	// 7. Predict and tally
	probs, err := model.Predict(testX, batch)
	if err != nil {
		return nil, fmt.Errorf("prediction failed: %w", err)
	}
	predicted := nn.Argmax(probs)
	correct := eval.CountCorrect(testY, predicted)
	s.log.Infof("Predicted %d of %d test samples correctly", correct, len(predicted))

	conf, err := eval.NewConfusion(ds.Genres, testY, predicted)
	if err != nil {
		return nil, fmt.Errorf("confusion matrix: %w", err)
	}
	s.log.Debugf("Confusion matrix:\n%s", conf)

	report := &Report{
		RunID:        uuid.NewString(),
		Architecture: arch.Name,
		Seed:         seed,
		Genres:       ds.Genres,
		TrainSize:    nTrain,
		ValSize:      nVal,
		TestSize:     nTest,
		ParamCount:   model.ParamCount(),
		History:      hist,
		TestLoss:     testLoss,
		TestAccuracy: testAcc,
		Correct:      correct,
		Confusion:    conf,
	}

	// 8. Plots
	if s.config.PlotDir != "" {
		plots, err := s.trainingPlots(report)
		if err != nil {
			return nil, err
		}
		report.Plots = plots
	}
	report.Duration = time.Since(started)

	// 9. Record the run
	run := &storage.Run{
		ID:           report.RunID,
		Architecture: arch.Name,
		DatasetPath:  datasetPath,
		Genres:       ds.Genres,
		Seed:         seed,
		Dropout:      s.config.Dropout,
		Epochs:       epochs,
		BatchSize:    batch,
		LearningRate: arch.LearningRate,
		TrainSize:    nTrain,
		ValSize:      nVal,
		TestSize:     nTest,
		TestLoss:     testLoss,
		TestAccuracy: testAcc,
		Correct:      correct,
		Confusion:    conf.Counts,
		DurationMs:   report.Duration.Milliseconds(),
		CreatedAt:    time.Now(),
		History:      make([]storage.EpochMetric, len(hist.Epochs)),
	}
	for i, e := range hist.Epochs {
		run.History[i] = storage.EpochMetric{
			Epoch:       e.Epoch,
			Loss:        e.Loss,
			Accuracy:    e.Accuracy,
			ValLoss:     e.ValLoss,
			ValAccuracy: e.ValAccuracy,
		}
	}
	if err := s.storage.SaveRun(run); err != nil {
		return nil, fmt.Errorf("failed to save run: %w", err)
	}

	s.log.Infof("Successfully recorded run %s", run.ID)
	return report, nil
}

func (s *genreService) tensors(arch Architecture, ds *dataset.Dataset, idx []int) (*nn.Tensor, []int, error) {
	x, y := ds.Subset(idx).Arrays()
	t, err := arch.Tensor(x)
	if err != nil {
		return nil, nil, fmt.Errorf("building %s tensor: %w", arch.Input, err)
	}
	return t, y, nil
}

func (s *genreService) trainingPlots(r *Report) ([]string, error) {
	prefix := filepath.Join(s.config.PlotDir, fmt.Sprintf("%s-%s", r.Architecture, r.RunID[:8]))

	historyPath := prefix + "-history.png"
	err := plot.History(historyPath, plot.Curves{
		Accuracy:    r.History.Accuracy(),
		ValAccuracy: r.History.ValAccuracy(),
		Loss:        r.History.Loss(),
		ValLoss:     r.History.ValLoss(),
	})
	if err != nil {
		return nil, fmt.Errorf("history plot: %w", err)
	}

	confusionPath := prefix + "-confusion.png"
	if err := plot.Confusion(confusionPath, r.Confusion.Labels, r.Confusion.Counts); err != nil {
		return nil, fmt.Errorf("confusion plot: %w", err)
	}
	s.log.Infof("Saved plots %s and %s", historyPath, confusionPath)
	return []string{historyPath, confusionPath}, nil
}

// firstTracks returns the first audio file of every genre directory.
func firstTracks(root string) (map[string]string, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, fmt.Errorf("reading dataset root: %w", err)
	}
	out := make(map[string]string)
	for _, e := range entries {
		if !e.IsDir() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		files, err := os.ReadDir(filepath.Join(root, e.Name()))
		if err != nil {
			return nil, fmt.Errorf("reading genre %s: %w", e.Name(), err)
		}
		for _, f := range files {
			path := filepath.Join(root, e.Name(), f.Name())
			if !f.IsDir() && !strings.HasPrefix(f.Name(), ".") && audio.IsAudioFile(path) {
				out[e.Name()] = path
				break
			}
		}
	}
	return out, nil
}

// spectrogramBins is the image height; every column gets at least two
// windows' worth of samples.
const spectrogramBins = 256

// Visualize renders waveform, spectrogram and MFCC images of the first
// track of every genre under root and returns the written paths.
func (s *genreService) Visualize(ctx context.Context, root, outDir string) ([]string, error) {
	tracks, err := firstTracks(root)
	if err != nil {
		return nil, err
	}
	genres := make([]string, 0, len(tracks))
	for g := range tracks {
		genres = append(genres, g)
	}
	sort.Strings(genres)

	mfcc, err := features.NewMFCC(s.config.Features.MFCCConfig())
	if err != nil {
		return nil, err
	}

	var written []string
	for _, genre := range genres {
		if err := ctx.Err(); err != nil {
			return written, err
		}
		path := tracks[genre]
		s.log.Infof("Visualizing %s: %s", genre, filepath.Base(path))

		w, err := s.decoder.Decode(ctx, path)
		if err != nil {
			return written, fmt.Errorf("decoding %s: %w", path, err)
		}
		if len(w.Samples) == 0 {
			s.log.Warnf("%s is empty, skipping", path)
			continue
		}

		base := filepath.Join(outDir, genre)
		if err := plot.Waveform(base+"-waveform.png", w.Samples, w.SampleRate); err != nil {
			return written, fmt.Errorf("waveform of %s: %w", genre, err)
		}
		width := min(max(len(w.Samples)/(2*spectrogramBins), 16), 800)
		if err := plot.Spectrogram(base+"-spectrogram.png", w.Samples, w.SampleRate, width, spectrogramBins); err != nil {
			return written, fmt.Errorf("spectrogram of %s: %w", genre, err)
		}

		coeffs, err := mfcc.Compute(w.Samples)
		if err != nil {
			return written, fmt.Errorf("mfcc of %s: %w", genre, err)
		}
		heading := fmt.Sprintf("MFCC - %s", plot.DisplayLabel(genre))
		if err := plot.Matrix(base+"-mfcc.png", heading, "Time", "MFCC", transpose(coeffs), plot.CoolWarm()); err != nil {
			return written, fmt.Errorf("mfcc plot of %s: %w", genre, err)
		}
		written = append(written, base+"-waveform.png", base+"-spectrogram.png", base+"-mfcc.png")
	}
	s.log.Infof("Wrote %d images to %s", len(written), outDir)
	return written, nil
}

func transpose(m [][]float64) [][]float64 {
	if len(m) == 0 {
		return nil
	}
	out := make([][]float64, len(m[0]))
	for j := range out {
		out[j] = make([]float64, len(m))
		for i := range m {
			out[j][i] = m[i][j]
		}
	}
	return out
}

func (s *genreService) Architectures() []Architecture {
	names := s.archs.Names()
	out := make([]Architecture, len(names))
	for i, n := range names {
		out[i], _ = s.archs.Lookup(n)
	}
	return out
}

func (s *genreService) ListRuns(architecture string, limit int) ([]storage.Run, error) {
	return s.storage.ListRuns(architecture, limit)
}

func (s *genreService) RunCounts() (map[string]int64, error) {
	return s.storage.CountRuns()
}

func (s *genreService) GetRun(id string) (*storage.Run, error) {
	return s.storage.GetRun(id)
}

func (s *genreService) DeleteRun(id string) error {
	return s.storage.DeleteRun(id)
}

func (s *genreService) Close() error {
	return s.storage.Close()
}
