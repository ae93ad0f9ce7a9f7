package genreclass

import (
	"context"

	"github.com/himanishpuri/GenreDNA/internal/storage"
)

type Service interface {
	Extract(ctx context.Context, root, out string) (*ExtractReport, error)
	Train(ctx context.Context, datasetPath, architecture string) (*Report, error)
	Visualize(ctx context.Context, root, outDir string) ([]string, error)
	Architectures() []Architecture
	ListRuns(architecture string, limit int) ([]storage.Run, error)
	RunCounts() (map[string]int64, error)
	GetRun(id string) (*storage.Run, error)
	DeleteRun(id string) error
	Close() error
}

type Storage interface {
	SaveRun(run *storage.Run) error
	GetRun(id string) (*storage.Run, error)
	ListRuns(architecture string, limit int) ([]storage.Run, error)
	DeleteRun(id string) error
	CountRuns() (map[string]int64, error)
	Close() error
}

type Logger interface {
	Infof(format string, args ...any)
	Warnf(format string, args ...any)
	Errorf(format string, args ...any)
	Debugf(format string, args ...any)
}
