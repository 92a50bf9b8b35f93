package deps

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
)

// ResolveFFprobe reports the ffprobe binary that belongs with ffmpegCommand.
//
// An explicitly configured ffprobe path wins. When ffprobe is left as the bare
// command name and ffmpeg points at a specific build, an ffprobe sitting next
// to that ffmpeg is preferred over the one on PATH so both tools come from the
// same build.
func ResolveFFprobe(ffmpegCommand, ffprobeCommand string) Status {
	result := Status{
		Name:        "FFprobe",
		Description: "Required for audio stream inspection",
	}

	ffprobe := strings.TrimSpace(ffprobeCommand)
	if ffprobe == "" {
		ffprobe = "ffprobe"
	}
	result.Command = ffprobe
	if ffprobe == "ffprobe" {
		if ffmpeg := strings.TrimSpace(ffmpegCommand); ffmpeg != "" {
			if resolved, err := exec.LookPath(ffmpeg); err == nil {
				candidate := siblingBinary(resolved, "ffprobe")
				if info, statErr := os.Stat(candidate); statErr == nil && isExecutable(info) {
					result.Path = candidate
					result.Available = true
					return result
				}
			}
		}
	}

	if path, err := exec.LookPath(ffprobe); err == nil {
		result.Path = path
		result.Available = true
		return result
	}

	result.Detail = fmt.Sprintf("binary %q not found", ffprobe)
	return result
}

func siblingBinary(path, name string) string {
	if runtime.GOOS == "windows" {
		name += ".exe"
	}
	return filepath.Join(filepath.Dir(path), name)
}

func isExecutable(info os.FileInfo) bool {
	if info == nil || info.IsDir() {
		return false
	}
	if runtime.GOOS == "windows" {
		return true
	}
	return info.Mode().Perm()&0o111 != 0
}
