package preflight

import (
	"fmt"
	"os"
	"strings"

	"golang.org/x/sys/unix"

	"technotaggr/internal/config"
	"technotaggr/internal/deps"
	"technotaggr/internal/logging"
	"technotaggr/internal/models"
)

// CheckDirectoryAccess verifies that the directory exists and is readable/writable.
func CheckDirectoryAccess(name, path string) Result {
	return checkDirectory(name, path, unix.R_OK|unix.W_OK|unix.X_OK, "read/write ok")
}

// CheckReadableDirectory verifies that the directory exists and can be listed.
func CheckReadableDirectory(name, path string) Result {
	return checkDirectory(name, path, unix.R_OK|unix.X_OK, "read ok")
}

func checkDirectory(name, path string, mode uint32, okDetail string) Result {
	if strings.TrimSpace(path) == "" {
		return Result{Name: name, Detail: "not configured"}
	}
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Result{Name: name, Detail: fmt.Sprintf("%s (error: does not exist)", path)}
		}
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: stat: %v)", path, err)}
	}
	if !info.IsDir() {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: is not a directory)", path)}
	}
	if err := unix.Access(path, mode); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: insufficient permissions: %v)", path, err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (%s)", path, okDetail)}
}

// CheckModels scans the model bundle and reports how many classifiers are
// usable. A bundle where every classifier was skipped fails.
func CheckModels(cfg *config.Config) Result {
	const name = "Model bundle"
	catalog, err := models.Scan(cfg.Paths.ModelsDir, logging.NewNop())
	if err != nil {
		return Result{Name: name, Detail: err.Error()}
	}
	detail := fmt.Sprintf("%d classifiers across %d backbones", len(catalog.Classifiers), len(catalog.Backbones))
	if len(catalog.Skipped) > 0 {
		detail += fmt.Sprintf(", %d skipped", len(catalog.Skipped))
	}
	if len(catalog.Classifiers) == 0 {
		return Result{Name: name, Detail: detail + " (run 'technotaggr models download')"}
	}
	return Result{Name: name, Passed: true, Detail: detail}
}

// CheckSystemDeps evaluates the external binaries cfg needs.
func CheckSystemDeps(cfg *config.Config) []deps.Status {
	results := deps.CheckBinaries([]deps.Requirement{{
		Name:        "FFmpeg",
		Command:     cfg.FFmpegBinary(),
		Description: "Required for decoding and resampling audio",
	}})
	results = append(results, deps.ResolveFFprobe(cfg.FFmpegBinary(), cfg.FFprobeBinary()))
	return append(results, deps.CheckBinaries([]deps.Requirement{{
		Name:        "Inference runner",
		Command:     cfg.Inference.Runner,
		Description: "Runs the essentia-tensorflow bridge (" + strings.Join(cfg.Inference.Packages, ", ") + ")",
	}})...)
}
