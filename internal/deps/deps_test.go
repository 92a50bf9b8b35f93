package deps

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"
)

func writeStub(t *testing.T, path string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte("#!/bin/sh\nexit 0\n"), 0o755); err != nil {
		t.Fatalf("write stub %s: %v", path, err)
	}
}

func TestCheckBinaries(t *testing.T) {
	present := filepath.Join(t.TempDir(), "present")
	writeStub(t, present)

	tests := []struct {
		name      string
		req       Requirement
		available bool
		path      string
	}{
		{name: "explicit path", req: Requirement{Name: "Present", Command: present}, available: true, path: present},
		{name: "missing", req: Requirement{Name: "Missing", Command: "clearly-not-present-binary"}},
		{name: "blank", req: Requirement{Name: "Blank", Command: "  "}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status := CheckBinaries([]Requirement{tt.req})[0]
			if status.Available != tt.available || status.Path != tt.path {
				t.Fatalf("unexpected status %#v", status)
			}
			if !tt.available && status.Detail == "" {
				t.Fatal("expected detail for an unavailable binary")
			}
			if tt.available && status.Detail != "" {
				t.Fatalf("unexpected detail %q", status.Detail)
			}
		})
	}
}

func TestMissingSkipsOptional(t *testing.T) {
	statuses := []Status{
		{Name: "FFmpeg", Available: true},
		{Name: "FFprobe"},
		{Name: "Extra", Optional: true},
	}
	missing := Missing(statuses)
	if len(missing) != 1 || missing[0].Name != "FFprobe" {
		t.Fatalf("unexpected missing list %#v", missing)
	}
}

func TestResolveFFprobeSibling(t *testing.T) {
	tmp := t.TempDir()
	ffmpegPath := filepath.Join(tmp, executableName("ffmpeg"))
	ffprobePath := filepath.Join(tmp, executableName("ffprobe"))
	writeStub(t, ffmpegPath)
	writeStub(t, ffprobePath)

	status := ResolveFFprobe(ffmpegPath, "ffprobe")
	if !status.Available {
		t.Fatalf("expected ffprobe sibling to be available, got detail %q", status.Detail)
	}
	if status.Path != ffprobePath || status.Command != "ffprobe" {
		t.Fatalf("expected sibling %q, got %#v", ffprobePath, status)
	}
}

func TestResolveFFprobePathFallback(t *testing.T) {
	tmp := t.TempDir()
	ffmpegPath := filepath.Join(tmp, executableName("ffmpeg"))
	writeStub(t, ffmpegPath)
	binDir := filepath.Join(tmp, "bin")
	ffprobePath := filepath.Join(binDir, executableName("ffprobe"))
	writeStub(t, ffprobePath)
	t.Setenv("PATH", binDir)

	status := ResolveFFprobe(ffmpegPath, "")
	if !status.Available {
		t.Fatalf("expected ffprobe fallback to be available, got detail %q", status.Detail)
	}
	if status.Path != ffprobePath {
		t.Fatalf("expected PATH ffprobe %q, got %q", ffprobePath, status.Path)
	}
}

func TestResolveFFprobeExplicitPath(t *testing.T) {
	custom := filepath.Join(t.TempDir(), "custom-probe")
	writeStub(t, custom)
	status := ResolveFFprobe("ffmpeg", custom)
	if !status.Available || status.Path != custom {
		t.Fatalf("explicit ffprobe should win, got %#v", status)
	}
}

func TestResolveFFprobeNotFound(t *testing.T) {
	t.Setenv("PATH", "")
	status := ResolveFFprobe(filepath.Join(t.TempDir(), "ffmpeg"), "ffprobe")
	if status.Available || status.Detail == "" {
		t.Fatalf("expected ffprobe resolution to fail with detail, got %#v", status)
	}
}

func executableName(base string) string {
	if runtime.GOOS == "windows" {
		return base + ".exe"
	}
	return base
}
