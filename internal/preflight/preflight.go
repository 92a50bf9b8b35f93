package preflight

import (
	"strings"

	"technotaggr/internal/config"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name   string
	Passed bool
	Detail string
}

// RunAll executes the directory and model checks for cfg. The output and work
// directories are created first, so they only fail when they cannot be.
func RunAll(cfg *config.Config) []Result {
	if cfg == nil {
		return nil
	}

	var results []Result
	results = append(results, CheckReadableDirectory("Models directory", cfg.Paths.ModelsDir))
	if err := cfg.EnsureDirectories(); err != nil {
		results = append(results, Result{Name: "Directories", Detail: err.Error()})
		return results
	}
	results = append(results, CheckDirectoryAccess("Output directory", cfg.Paths.OutputDir))
	if strings.TrimSpace(cfg.Paths.WorkDir) != "" {
		results = append(results, CheckDirectoryAccess("Work directory", cfg.Paths.WorkDir))
	}
	results = append(results, CheckModels(cfg))
	return results
}

// Failed returns the results that did not pass.
func Failed(results []Result) []Result {
	var failed []Result
	for _, r := range results {
		if !r.Passed {
			failed = append(failed, r)
		}
	}
	return failed
}
