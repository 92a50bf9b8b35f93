package config

import (
	"errors"
	"fmt"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validatePaths(); err != nil {
		return err
	}
	if err := c.validateModels(); err != nil {
		return err
	}
	if err := c.validateInference(); err != nil {
		return err
	}
	if err := c.validateTempo(); err != nil {
		return err
	}
	if err := c.validateLogging(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validatePaths() error {
	if strings.TrimSpace(c.Paths.ModelsDir) == "" {
		return errors.New("paths.models_dir must be set")
	}
	if strings.TrimSpace(c.Paths.OutputDir) == "" {
		return errors.New("paths.output_dir must be set")
	}
	return nil
}

func (c *Config) validateModels() error {
	if !strings.HasPrefix(c.Models.BaseURL, "http://") && !strings.HasPrefix(c.Models.BaseURL, "https://") {
		return fmt.Errorf("models.base_url must be an http(s) URL, got %q", c.Models.BaseURL)
	}
	return nil
}

func (c *Config) validateInference() error {
	if c.Inference.Workers < 1 {
		return errors.New("inference.workers must be at least 1")
	}
	if c.Inference.Workers > 64 {
		return fmt.Errorf("inference.workers must be at most 64, got %d", c.Inference.Workers)
	}
	if c.Inference.RequestTimeoutSeconds < 0 {
		return errors.New("inference.request_timeout_seconds must be positive")
	}
	return nil
}

func (c *Config) validateTempo() error {
	switch c.Tempo.Backend {
	case TempoBackendBridge, TempoBackendNative:
	default:
		return fmt.Errorf("tempo.backend: unsupported value %q (want %q or %q)", c.Tempo.Backend, TempoBackendBridge, TempoBackendNative)
	}
	if c.Tempo.MinBPM <= 0 {
		return errors.New("tempo.min_bpm must be positive")
	}
	if c.Tempo.MaxBPM <= c.Tempo.MinBPM {
		return fmt.Errorf("tempo.max_bpm (%g) must be greater than tempo.min_bpm (%g)", c.Tempo.MaxBPM, c.Tempo.MinBPM)
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format: unsupported value %q", c.Logging.Format)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level: unsupported value %q", c.Logging.Level)
	}
	return nil
}
