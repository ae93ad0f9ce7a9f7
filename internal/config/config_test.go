package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "genredna.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadMergesOverDefaults(t *testing.T) {
	path := writeConfig(t, `
log_level: debug
features:
  num_segments: 10
training:
  seed: 7
  stratify: true
paths:
  dataset: gtzan.json
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Features.NumSegments != 10 || cfg.Features.NumMFCC != 13 {
		t.Errorf("features = %+v", cfg.Features)
	}
	if cfg.Training.Seed != 7 || !cfg.Training.Stratify || cfg.Training.BatchSize != 0 {
		t.Errorf("training = %+v", cfg.Training)
	}
	if cfg.Paths.Dataset != "gtzan.json" || cfg.Source != path {
		t.Errorf("paths = %+v, source %q", cfg.Paths, cfg.Source)
	}
	if got := cfg.FeatureParams().ExpectedFrames(); got != 130 {
		t.Errorf("expected frames = %d, want 130", got)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	path := writeConfig(t, "paths:\n  db: from-file.sqlite3\n")
	t.Setenv("GENREDNA_CONFIG", path)
	t.Setenv("GENREDNA_DB_PATH", "/tmp/env.sqlite3")
	t.Setenv("GENREDNA_TEMP_DIR", "/tmp/genredna")
	t.Setenv("LOG_LEVEL", "WARN")

	cfg, err := Load("")
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Paths.DB != "/tmp/env.sqlite3" || cfg.Paths.Temp != "/tmp/genredna" || cfg.LogLevel != "WARN" {
		t.Errorf("env overrides not applied: %+v, %q", cfg.Paths, cfg.LogLevel)
	}
}

func TestLoadDefaultsWithoutFile(t *testing.T) {
	t.Setenv("GENREDNA_CONFIG", "")
	wd, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	if err := os.Chdir(t.TempDir()); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = os.Chdir(wd) })

	cfg, err := Load("")
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Source != "" || cfg.Audio.SampleRate != 22050 || cfg.FFmpegTimeout().Seconds() != 30 {
		t.Errorf("unexpected defaults %+v", cfg)
	}
}

func TestLoadErrors(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for missing explicit file")
	}
	if _, err := Load(writeConfig(t, "features: [1, 2")); err == nil {
		t.Error("expected parse error")
	}
	if _, err := Load(writeConfig(t, "training:\n  dropout: 1.5\n")); err == nil {
		t.Error("expected validation error for dropout")
	}
	if _, err := Load(writeConfig(t, "training:\n  epochs: -1\n")); err == nil {
		t.Error("expected validation error for negative epochs")
	}
	if _, err := Load(writeConfig(t, "features:\n  num_segments: 0\n")); err == nil {
		t.Error("expected validation error for zero segments")
	}
}

func TestLoadEmptyFile(t *testing.T) {
	cfg, err := Load(writeConfig(t, ""))
	if err != nil {
		t.Fatalf("empty file should load defaults: %v", err)
	}
	if cfg.Features.HopLength != 512 {
		t.Errorf("hop length = %d", cfg.Features.HopLength)
	}
}
