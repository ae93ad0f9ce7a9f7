package genreclass

import (
	"time"

	"github.com/dustin/go-humanize"
	"github.com/himanishpuri/GenreDNA/internal/eval"
	"github.com/himanishpuri/GenreDNA/internal/features"
	"github.com/himanishpuri/GenreDNA/internal/nn"
)

// ExtractReport describes a dataset written by Extract.
type ExtractReport struct {
	Output   string         // dataset JSON path
	Genres   []string       // vocabulary in label order
	Samples  int            // segments written
	Stats    features.Stats // per-genre file and segment counts
	FileSize int64          // size of the JSON document in bytes
}

// Size returns the dataset file size in human-readable form.
func (r *ExtractReport) Size() string {
	return humanize.Bytes(uint64(max(r.FileSize, 0)))
}

// Report is the outcome of one training run.
type Report struct {
	RunID        string
	Architecture string
	Seed         int64
	Genres       []string
	TrainSize    int
	ValSize      int // zero when the test split doubles as validation
	TestSize     int
	ParamCount   int
	History      *nn.History
	TestLoss     float64
	TestAccuracy float64
	Correct      int // exact matches on the test split
	Confusion    *eval.Confusion
	Plots        []string
	Duration     time.Duration
}
