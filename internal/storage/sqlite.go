package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const DefaultDBFile = "genredna.sqlite3"
const errDBClientNil = "db client is nil"

// ErrRunNotFound is returned when no run has the requested ID.
var ErrRunNotFound = errors.New("run not found")

type DBClient struct {
	DB *gorm.DB
	db *sql.DB
}

// Run is one training run of one architecture on one dataset.
type Run struct {
	ID           string    `gorm:"primaryKey;type:varchar(36)" json:"id"`
	Architecture string    `gorm:"index:idx_run_arch" json:"architecture"`
	DatasetPath  string    `json:"dataset_path"`
	Genres       []string  `gorm:"serializer:json" json:"genres"`
	Seed         int64     `json:"seed"`
	Dropout      float64   `json:"dropout"`
	Epochs       int       `json:"epochs"`
	BatchSize    int       `json:"batch_size"`
	LearningRate float64   `json:"learning_rate"`
	TrainSize    int       `json:"train_size"`
	ValSize      int       `json:"val_size"`
	TestSize     int       `json:"test_size"`
	TestLoss     float64   `json:"test_loss"`
	TestAccuracy float64   `json:"test_accuracy"`
	Correct      int       `json:"correct"`
	Confusion    [][]int   `gorm:"serializer:json" json:"confusion"`
	DurationMs   int64     `json:"duration_ms"`
	CreatedAt    time.Time `gorm:"index:idx_run_created" json:"created_at"`

	History []EpochMetric `gorm:"foreignKey:RunID;constraint:OnDelete:CASCADE" json:"history,omitempty"`
}

// EpochMetric is the per-epoch training record of a run.
type EpochMetric struct {
	ID          uint    `gorm:"primaryKey;autoIncrement" json:"-"`
	RunID       string  `gorm:"type:varchar(36);index:idx_epoch_run" json:"run_id"`
	Epoch       int     `json:"epoch"`
	Loss        float64 `json:"loss"`
	Accuracy    float64 `json:"accuracy"`
	ValLoss     float64 `json:"val_loss"`
	ValAccuracy float64 `json:"val_accuracy"`
}

// NewDBClient opens the database named by GENREDNA_DB_PATH, or
// DefaultDBFile in the working directory.
func NewDBClient() (*DBClient, error) {
	dbPath := os.Getenv("GENREDNA_DB_PATH")
	if dbPath == "" {
		dbPath = DefaultDBFile
	}
	return NewDBClientWithPath(dbPath)
}

func NewDBClientWithPath(dbPath string) (*DBClient, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating db dir: %w", err)
		}
	}

	gormConfig := &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	}

	db, err := gorm.Open(sqlite.Open(dbPath+"?_pragma=foreign_keys(1)"), gormConfig)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite db: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("getting sql.DB from gorm: %w", err)
	}

	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetConnMaxLifetime(time.Hour)

	if err := db.AutoMigrate(&Run{}, &EpochMetric{}); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("auto migrate: %w", err)
	}

	return &DBClient{DB: db, db: sqlDB}, nil
}

func (c *DBClient) Close() error {
	if c == nil || c.db == nil {
		return nil
	}
	return c.db.Close()
}

// SaveRun stores run and its history in one transaction, assigning an ID
// when the run has none.
func (c *DBClient) SaveRun(run *Run) error {
	if c == nil || c.DB == nil {
		return errors.New(errDBClientNil)
	}
	if run.ID == "" {
		run.ID = uuid.NewString()
	}
	return c.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Omit("History").Create(run).Error; err != nil {
			return fmt.Errorf("creating run: %w", err)
		}
		if len(run.History) == 0 {
			return nil
		}
		for i := range run.History {
			run.History[i].RunID = run.ID
		}
		if err := tx.CreateInBatches(run.History, 500).Error; err != nil {
			return fmt.Errorf("inserting epoch metrics: %w", err)
		}
		return nil
	})
}

// GetRun loads a run with its history ordered by epoch.
func (c *DBClient) GetRun(id string) (*Run, error) {
	if c == nil || c.DB == nil {
		return nil, errors.New(errDBClientNil)
	}
	var run Run
	err := c.DB.Preload("History", func(db *gorm.DB) *gorm.DB {
		return db.Order("epoch ASC")
	}).Where("id = ?", id).First(&run).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%s: %w", id, ErrRunNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("querying run: %w", err)
	}
	return &run, nil
}

// ListRuns returns runs newest first without their history. An empty
// architecture matches every run; limit <= 0 means no limit.
func (c *DBClient) ListRuns(architecture string, limit int) ([]Run, error) {
	if c == nil || c.DB == nil {
		return nil, errors.New(errDBClientNil)
	}
	q := c.DB.Order("created_at DESC")
	if architecture != "" {
		q = q.Where("architecture = ?", architecture)
	}
	if limit > 0 {
		q = q.Limit(limit)
	}
	var runs []Run
	if err := q.Find(&runs).Error; err != nil {
		return nil, fmt.Errorf("listing runs: %w", err)
	}
	return runs, nil
}

// DeleteRun removes a run and its history.
func (c *DBClient) DeleteRun(id string) error {
	if c == nil || c.DB == nil {
		return errors.New(errDBClientNil)
	}
	return c.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("run_id = ?", id).Delete(&EpochMetric{}).Error; err != nil {
			return err
		}
		res := tx.Where("id = ?", id).Delete(&Run{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return fmt.Errorf("%s: %w", id, ErrRunNotFound)
		}
		return nil
	})
}

// CountRuns returns how many runs exist per architecture.
func (c *DBClient) CountRuns() (map[string]int64, error) {
	if c == nil || c.DB == nil {
		return nil, errors.New(errDBClientNil)
	}
	var rows []struct {
		Architecture string
		N            int64
	}
	if err := c.DB.Model(&Run{}).Select("architecture, count(*) as n").Group("architecture").Scan(&rows).Error; err != nil {
		return nil, fmt.Errorf("counting runs: %w", err)
	}
	out := make(map[string]int64, len(rows))
	for _, r := range rows {
		out[r.Architecture] = r.N
	}
	return out, nil
}
