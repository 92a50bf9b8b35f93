package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory configuration.
type Paths struct {
	ModelsDir string `toml:"models_dir"`
	OutputDir string `toml:"output_dir"`
	LogDir    string `toml:"log_dir"`
	WorkDir   string `toml:"work_dir"`
}

// Models contains the published model catalog used by `models download`.
type Models struct {
	// BaseURL is the root of the published model tree.
	BaseURL string `toml:"base_url"`
	// Classifiers lists the classification heads to fetch.
	Classifiers []string `toml:"classifiers"`
	// Backbones lists the backbone variants each head is fetched for.
	Backbones []string `toml:"backbones"`
}

// Inference contains configuration for the model runtime bridge.
type Inference struct {
	// Runner is the launcher used for the Python bridge (uvx by default).
	Runner string `toml:"runner"`
	// Packages are the Python requirements handed to the runner.
	Packages []string `toml:"packages"`
	// CUDAEnabled selects the GPU build of the TensorFlow runtime.
	CUDAEnabled bool `toml:"cuda_enabled"`
	// Workers bounds how many audio files are analyzed in parallel. Each
	// worker owns its own bridge process.
	Workers int `toml:"workers"`
	// RequestTimeoutSeconds bounds a single embed/predict/tempo call.
	RequestTimeoutSeconds int `toml:"request_timeout_seconds"`
}

// Audio contains configuration for audio discovery and decoding.
type Audio struct {
	FFmpegBinary  string   `toml:"ffmpeg_binary"`
	FFprobeBinary string   `toml:"ffprobe_binary"`
	Extensions    []string `toml:"extensions"`
	Recursive     bool     `toml:"recursive"`
}

// Tempo contains configuration for tempo estimation in the phrase pass.
type Tempo struct {
	// Backend is "bridge" (runtime beat tracker) or "native" (onset autocorrelation).
	Backend string  `toml:"backend"`
	MinBPM  float64 `toml:"min_bpm"`
	MaxBPM  float64 `toml:"max_bpm"`
}

// History contains configuration for the SQLite run ledger.
type History struct {
	Enabled bool   `toml:"enabled"`
	Path    string `toml:"path"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Config encapsulates all configuration values for technotaggr.
//
// Configuration sections by subsystem:
//   - Paths: models, results, logs, and scratch directories
//   - Models: published model catalog for downloads
//   - Inference: bridge runtime, parallelism, and timeouts
//   - Audio: supported extensions and decoder binaries
//   - Tempo: tempo estimator selection and search range
//   - History: SQLite run ledger
//   - Logging: log format and level
type Config struct {
	Paths     Paths     `toml:"paths"`
	Models    Models    `toml:"models"`
	Inference Inference `toml:"inference"`
	Audio     Audio     `toml:"audio"`
	Tempo     Tempo     `toml:"tempo"`
	History   History   `toml:"history"`
	Logging   Logging   `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath(defaultConfigPath)
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		decoder.DisallowUnknownFields()
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := expandPath(defaultConfigPath)
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("technotaggr.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates the directories an analysis run writes into.
// The models directory is not created: an empty catalog is reported by the
// commands that need it.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.OutputDir, c.Paths.LogDir, c.Paths.WorkDir} {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	if c.History.Enabled && strings.TrimSpace(c.History.Path) != "" {
		if err := os.MkdirAll(filepath.Dir(c.History.Path), 0o755); err != nil {
			return fmt.Errorf("create history directory: %w", err)
		}
	}
	return nil
}

// FFmpegBinary returns the ffmpeg executable used for audio conversion.
func (c *Config) FFmpegBinary() string {
	if v := strings.TrimSpace(c.Audio.FFmpegBinary); v != "" {
		return v
	}
	return "ffmpeg"
}

// FFprobeBinary returns the ffprobe executable used for audio inspection.
func (c *Config) FFprobeBinary() string {
	if v := strings.TrimSpace(c.Audio.FFprobeBinary); v != "" {
		return v
	}
	return "ffprobe"
}

// ClassifierHeadsDir returns the directory holding classification heads.
func (c *Config) ClassifierHeadsDir() string {
	return filepath.Join(c.Paths.ModelsDir, "classification-heads")
}

// FeatureExtractorsDir returns the directory holding backbone models.
func (c *Config) FeatureExtractorsDir() string {
	return filepath.Join(c.Paths.ModelsDir, "feature-extractors")
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
