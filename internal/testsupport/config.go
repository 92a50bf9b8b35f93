package testsupport

import (
	"os"
	"path/filepath"
	"testing"

	"technotaggr/internal/config"
)

// ConfigOption adjusts a test configuration after the temp layout is in place.
type ConfigOption func(t testing.TB, cfg *config.Config)

// NewConfig returns the default configuration with every path moved under a
// fresh temp directory:
//
//	<base>/models      model bundle
//	<base>/results     session documents
//	<base>/logs        log file
//	<base>/work        decoder scratch space
//	<base>/history.db  run ledger
//
// Logging is quietened to errors. Directories are not created.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfg := config.Default()
	cfg.Paths = config.Paths{
		ModelsDir: filepath.Join(base, "models"),
		OutputDir: filepath.Join(base, "results"),
		LogDir:    filepath.Join(base, "logs"),
		WorkDir:   filepath.Join(base, "work"),
	}
	cfg.History.Path = filepath.Join(base, "history.db")
	cfg.Logging.Level = "error"

	for _, opt := range opts {
		opt(t, &cfg)
	}
	return &cfg
}

// BaseDir returns the temp directory NewConfig placed cfg's paths under.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.ModelsDir)
}

func WithWorkers(n int) ConfigOption {
	return func(_ testing.TB, cfg *config.Config) { cfg.Inference.Workers = n }
}

func WithTempoBackend(backend string) ConfigOption {
	return func(_ testing.TB, cfg *config.Config) { cfg.Tempo.Backend = backend }
}

func WithoutHistory() ConfigOption {
	return func(_ testing.TB, cfg *config.Config) { cfg.History.Enabled = false }
}

// WithStubbedBinaries puts no-op executables for names (ffmpeg, ffprobe and
// the inference runner when empty) first on PATH for the rest of the test.
// Tests using it cannot run in parallel.
func WithStubbedBinaries(names ...string) ConfigOption {
	return func(t testing.TB, cfg *config.Config) {
		t.Helper()
		if len(names) == 0 {
			names = []string{cfg.FFmpegBinary(), cfg.FFprobeBinary(), cfg.Inference.Runner}
		}
		binDir := filepath.Join(BaseDir(cfg), "bin")
		if err := os.MkdirAll(binDir, 0o755); err != nil {
			t.Fatalf("mkdir bin dir: %v", err)
		}
		for _, name := range names {
			target := filepath.Join(binDir, filepath.Base(name))
			if err := os.WriteFile(target, []byte("#!/bin/sh\nexit 0\n"), 0o755); err != nil {
				t.Fatalf("write stub %s: %v", name, err)
			}
		}
		t.Setenv("PATH", binDir+string(os.PathListSeparator)+os.Getenv("PATH"))
	}
}
