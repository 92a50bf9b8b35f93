package config

import (
	"fmt"
	"os"
	"sort"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeModels()
	c.normalizeInference()
	c.normalizeAudio()
	c.normalizeTempo()
	if err := c.normalizeHistory(); err != nil {
		return err
	}
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	if value, ok := os.LookupEnv("TECHNOTAGGR_MODELS_DIR"); ok && strings.TrimSpace(value) != "" {
		c.Paths.ModelsDir = value
	}
	if value, ok := os.LookupEnv("TECHNOTAGGR_OUTPUT_DIR"); ok && strings.TrimSpace(value) != "" {
		c.Paths.OutputDir = value
	}

	var err error
	if strings.TrimSpace(c.Paths.ModelsDir) == "" {
		c.Paths.ModelsDir = defaultModelsDir
	}
	if c.Paths.ModelsDir, err = expandPath(strings.TrimSpace(c.Paths.ModelsDir)); err != nil {
		return fmt.Errorf("paths.models_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.OutputDir) == "" {
		c.Paths.OutputDir = defaultOutputDir
	}
	if c.Paths.OutputDir, err = expandPath(strings.TrimSpace(c.Paths.OutputDir)); err != nil {
		return fmt.Errorf("paths.output_dir: %w", err)
	}
	if c.Paths.LogDir, err = expandPath(strings.TrimSpace(c.Paths.LogDir)); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.WorkDir) == "" {
		c.Paths.WorkDir = defaultWorkDir
	}
	if c.Paths.WorkDir, err = expandPath(strings.TrimSpace(c.Paths.WorkDir)); err != nil {
		return fmt.Errorf("paths.work_dir: %w", err)
	}
	return nil
}

func (c *Config) normalizeModels() {
	c.Models.BaseURL = strings.TrimRight(strings.TrimSpace(c.Models.BaseURL), "/")
	if c.Models.BaseURL == "" {
		c.Models.BaseURL = defaultModelsBaseURL
	}
	c.Models.Classifiers = trimList(c.Models.Classifiers, defaultClassifiers)
	c.Models.Backbones = trimList(c.Models.Backbones, defaultBackbones)
}

func trimList(values, fallback []string) []string {
	out := make([]string, 0, len(values))
	for _, value := range values {
		if value = strings.TrimSpace(value); value != "" {
			out = append(out, value)
		}
	}
	if len(out) == 0 {
		out = append(out, fallback...)
	}
	return out
}

func (c *Config) normalizeInference() {
	c.Inference.Runner = strings.TrimSpace(c.Inference.Runner)
	if c.Inference.Runner == "" {
		c.Inference.Runner = defaultRunner
	}
	c.Inference.Packages = trimList(c.Inference.Packages, defaultPackages)
	if c.Inference.Workers == 0 {
		c.Inference.Workers = defaultWorkers
	}
	if c.Inference.RequestTimeoutSeconds == 0 {
		c.Inference.RequestTimeoutSeconds = defaultRequestTimeoutSeconds
	}
}

func (c *Config) normalizeAudio() {
	c.Audio.FFmpegBinary = strings.TrimSpace(c.Audio.FFmpegBinary)
	c.Audio.FFprobeBinary = strings.TrimSpace(c.Audio.FFprobeBinary)

	seen := make(map[string]struct{}, len(c.Audio.Extensions))
	exts := make([]string, 0, len(c.Audio.Extensions))
	for _, ext := range c.Audio.Extensions {
		ext = strings.ToLower(strings.TrimSpace(ext))
		if ext == "" {
			continue
		}
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		if _, ok := seen[ext]; ok {
			continue
		}
		seen[ext] = struct{}{}
		exts = append(exts, ext)
	}
	if len(exts) == 0 {
		exts = append(exts, defaultExtensions...)
	}
	sort.Strings(exts)
	c.Audio.Extensions = exts
}

func (c *Config) normalizeTempo() {
	c.Tempo.Backend = strings.ToLower(strings.TrimSpace(c.Tempo.Backend))
	if c.Tempo.Backend == "" {
		c.Tempo.Backend = defaultTempoBackend
	}
	if c.Tempo.MinBPM == 0 {
		c.Tempo.MinBPM = defaultMinBPM
	}
	if c.Tempo.MaxBPM == 0 {
		c.Tempo.MaxBPM = defaultMaxBPM
	}
}

func (c *Config) normalizeHistory() error {
	if strings.TrimSpace(c.History.Path) == "" {
		c.History.Path = defaultHistoryPath
	}
	var err error
	if c.History.Path, err = expandPath(strings.TrimSpace(c.History.Path)); err != nil {
		return fmt.Errorf("history.path: %w", err)
	}
	return nil
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}
