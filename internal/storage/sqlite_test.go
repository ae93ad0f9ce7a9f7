package storage

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"
)

// Helper function to create a temporary test database
func setupTestDB(t *testing.T) (*DBClient, string) {
	t.Helper()

	dbPath := filepath.Join(t.TempDir(), "test_genredna.sqlite3")
	t.Setenv("GENREDNA_DB_PATH", dbPath)

	client, err := NewDBClient()
	if err != nil {
		t.Fatalf("Failed to create test DB client: %v", err)
	}
	t.Cleanup(func() {
		client.Close()
	})

	return client, dbPath
}

func sampleRun(arch string, created time.Time) *Run {
	return &Run{
		Architecture: arch,
		DatasetPath:  "data.json",
		Genres:       []string{"blues", "jazz"},
		Seed:         42,
		Dropout:      0.3,
		Epochs:       2,
		BatchSize:    32,
		LearningRate: 1e-4,
		TrainSize:    70,
		TestSize:     30,
		TestLoss:     0.9,
		TestAccuracy: 0.6,
		Correct:      18,
		Confusion:    [][]int{{10, 5}, {7, 8}},
		CreatedAt:    created,
		History: []EpochMetric{
			{Epoch: 1, Loss: 1.2, Accuracy: 0.4, ValLoss: 1.1, ValAccuracy: 0.5},
			{Epoch: 2, Loss: 0.8, Accuracy: 0.7, ValLoss: 0.9, ValAccuracy: 0.6},
		},
	}
}

// TestNewDBClient tests database initialization
func TestNewDBClient(t *testing.T) {
	client, dbPath := setupTestDB(t)

	if client.DB == nil {
		t.Fatal("Expected non-nil GORM DB handle")
	}
	if client.db == nil {
		t.Fatal("Expected non-nil sql.DB handle")
	}
	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		t.Errorf("Database file was not created at %s", dbPath)
	}
}

// TestNewDBClientWithCustomPath tests database creation in a new directory
func TestNewDBClientWithCustomPath(t *testing.T) {
	customPath := filepath.Join(t.TempDir(), "subdir", "custom.db")

	client, err := NewDBClientWithPath(customPath)
	if err != nil {
		t.Fatalf("Failed to create DB with custom path: %v", err)
	}
	defer client.Close()

	if _, err := os.Stat(customPath); os.IsNotExist(err) {
		t.Errorf("Database file was not created at custom path %s", customPath)
	}
}

func TestSaveAndGetRun(t *testing.T) {
	client, _ := setupTestDB(t)

	run := sampleRun("mlp", time.Now())
	if err := client.SaveRun(run); err != nil {
		t.Fatalf("Failed to save run: %v", err)
	}
	if len(run.ID) != 36 {
		t.Fatalf("Expected a UUID run ID, got %q", run.ID)
	}

	got, err := client.GetRun(run.ID)
	if err != nil {
		t.Fatalf("Failed to get run: %v", err)
	}
	if got.Architecture != "mlp" || got.Correct != 18 || got.TestAccuracy != 0.6 {
		t.Errorf("Unexpected run %+v", got)
	}
	if !reflect.DeepEqual(got.Genres, run.Genres) {
		t.Errorf("Genres = %v, want %v", got.Genres, run.Genres)
	}
	if !reflect.DeepEqual(got.Confusion, run.Confusion) {
		t.Errorf("Confusion = %v, want %v", got.Confusion, run.Confusion)
	}
	if len(got.History) != 2 || got.History[0].Epoch != 1 || got.History[1].ValAccuracy != 0.6 {
		t.Errorf("Unexpected history %+v", got.History)
	}
	for _, e := range got.History {
		if e.RunID != run.ID {
			t.Errorf("Epoch %d points at run %q", e.Epoch, e.RunID)
		}
	}
}

func TestGetRunNotFound(t *testing.T) {
	client, _ := setupTestDB(t)

	if _, err := client.GetRun("does-not-exist"); !errors.Is(err, ErrRunNotFound) {
		t.Errorf("Expected ErrRunNotFound, got %v", err)
	}
}

func TestListRunsNewestFirst(t *testing.T) {
	client, _ := setupTestDB(t)

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	for i, arch := range []string{"mlp", "cnn", "mlp"} {
		if err := client.SaveRun(sampleRun(arch, base.Add(time.Duration(i)*time.Minute))); err != nil {
			t.Fatalf("Failed to save run %d: %v", i, err)
		}
	}

	all, err := client.ListRuns("", 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 3 {
		t.Fatalf("Expected 3 runs, got %d", len(all))
	}
	for i := 1; i < len(all); i++ {
		if all[i].CreatedAt.After(all[i-1].CreatedAt) {
			t.Errorf("Runs not ordered newest first: %v then %v", all[i-1].CreatedAt, all[i].CreatedAt)
		}
	}
	if len(all[0].History) != 0 {
		t.Error("ListRuns should not load history")
	}

	mlp, err := client.ListRuns("mlp", 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(mlp) != 2 {
		t.Errorf("Expected 2 mlp runs, got %d", len(mlp))
	}

	limited, _ := client.ListRuns("", 1)
	if len(limited) != 1 || limited[0].Architecture != "mlp" {
		t.Errorf("Unexpected limited list %+v", limited)
	}

	counts, err := client.CountRuns()
	if err != nil {
		t.Fatal(err)
	}
	if counts["mlp"] != 2 || counts["cnn"] != 1 {
		t.Errorf("Unexpected counts %v", counts)
	}
}

func TestDeleteRun(t *testing.T) {
	client, _ := setupTestDB(t)

	run := sampleRun("lstm", time.Now())
	if err := client.SaveRun(run); err != nil {
		t.Fatal(err)
	}
	if err := client.DeleteRun(run.ID); err != nil {
		t.Fatalf("Failed to delete run: %v", err)
	}
	if _, err := client.GetRun(run.ID); !errors.Is(err, ErrRunNotFound) {
		t.Errorf("Expected run to be gone, got %v", err)
	}

	var count int64
	client.DB.Model(&EpochMetric{}).Where("run_id = ?", run.ID).Count(&count)
	if count != 0 {
		t.Errorf("Expected epoch metrics to be deleted, found %d", count)
	}

	if err := client.DeleteRun(run.ID); !errors.Is(err, ErrRunNotFound) {
		t.Errorf("Expected ErrRunNotFound on second delete, got %v", err)
	}
}

func TestNilClient(t *testing.T) {
	var client *DBClient
	if err := client.SaveRun(&Run{}); err == nil {
		t.Error("Expected error from nil client")
	}
	if err := client.Close(); err != nil {
		t.Errorf("Close on nil client should be a no-op, got %v", err)
	}
}
