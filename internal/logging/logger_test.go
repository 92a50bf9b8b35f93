package logging_test

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"technotaggr/internal/config"
	"technotaggr/internal/logging"
	"technotaggr/internal/services"
)

func TestNewFromConfigWritesJSONLogFile(t *testing.T) {
	cfg := config.Default()
	cfg.Paths.LogDir = t.TempDir()
	cfg.Logging.Level = "info"

	logger, err := logging.NewFromConfig(&cfg)
	if err != nil {
		t.Fatalf("NewFromConfig returned error: %v", err)
	}
	logger.Info("session started", logging.String(logging.FieldSessionID, "abc"))

	content, err := os.ReadFile(filepath.Join(cfg.Paths.LogDir, logging.LogFileName))
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	var entry map[string]any
	if err := json.Unmarshal([]byte(strings.TrimSpace(string(content))), &entry); err != nil {
		t.Fatalf("log file is not JSON: %v (%q)", err, content)
	}
	if entry["msg"] != "session started" {
		t.Fatalf("unexpected msg: %v", entry["msg"])
	}
	if entry["level"] != "info" {
		t.Fatalf("expected lowercase level, got %v", entry["level"])
	}
	if _, ok := entry["ts"]; !ok {
		t.Fatalf("expected ts key, got %v", entry)
	}
	if entry[logging.FieldSessionID] != "abc" {
		t.Fatalf("expected session_id attribute, got %v", entry)
	}
}

func TestConsoleLoggerOmitsSourceForInfo(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "console-info.log")

	logger, err := logging.New(logging.Options{
		Format:      "console",
		Level:       "info",
		OutputPaths: []string{logPath},
	})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}

	logger.Info("message without caller")

	content, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	if strings.Contains(string(content), ".go:") {
		t.Fatalf("expected no source information in info logs, got %q", content)
	}
	if strings.Contains(string(content), "\x1b[") {
		t.Fatalf("expected no ANSI colour in file output, got %q", content)
	}
}

func TestConsoleLoggerRendersComponentAndFields(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "console.log")

	logger, err := logging.New(logging.Options{
		Format:      "console",
		Level:       "info",
		OutputPaths: []string{logPath},
	})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}

	component := logging.NewComponentLogger(logger, "pipeline")
	component.Info("classifier finished",
		logging.Classifier("mood_happy"),
		logging.Int("num_segments", 12),
		logging.String("note", "has spaces"),
	)

	content, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	line := string(content)
	for _, want := range []string{"INFO", "[pipeline]", "classifier finished", "classifier=mood_happy", "num_segments=12", `note="has spaces"`} {
		if !strings.Contains(line, want) {
			t.Fatalf("expected %q in %q", want, line)
		}
	}
	if strings.Contains(line, "component=") {
		t.Fatalf("component should render as a prefix, got %q", line)
	}
}

func TestConsoleLoggerShowsAudioFileBaseName(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "console.log")

	logger, err := logging.New(logging.Options{Format: "console", Level: "info", OutputPaths: []string{logPath}})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	logger.Info("decoded", logging.AudioFile("/music/sets/track01.flac"))

	content, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	line := string(content)
	if !strings.Contains(line, "track01.flac") {
		t.Fatalf("expected base name in %q", line)
	}
	if strings.Contains(line, "/music/sets") {
		t.Fatalf("info lines should not repeat the full path, got %q", line)
	}
}

func TestDebugLevelFiltersBelowThreshold(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "json.log")

	logger, err := logging.New(logging.Options{Format: "json", Level: "warn", OutputPaths: []string{logPath}})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	logger.Info("hidden")
	logger.Warn("visible")

	content, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	if strings.Contains(string(content), "hidden") {
		t.Fatalf("info record should be filtered at warn level: %q", content)
	}
	if !strings.Contains(string(content), "visible") {
		t.Fatalf("expected warn record: %q", content)
	}
}

func TestNewRejectsUnknownFormat(t *testing.T) {
	if _, err := logging.New(logging.Options{Format: "xml"}); err == nil {
		t.Fatal("expected error for unsupported format")
	}
}

func TestWithContextAddsServiceFields(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "ctx.log")
	logger, err := logging.New(logging.Options{Format: "json", Level: "info", OutputPaths: []string{logPath}})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}

	ctx := services.WithSessionID(context.Background(), "sess-1")
	ctx = services.WithClassifier(ctx, "mood_sad")
	ctx = services.WithWorker(ctx, 2)
	logging.WithContext(ctx, logger).Info("context message")

	content, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	var entry map[string]any
	if err := json.Unmarshal(content, &entry); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if entry[logging.FieldSessionID] != "sess-1" || entry[logging.FieldClassifier] != "mood_sad" {
		t.Fatalf("missing context fields: %v", entry)
	}
	if worker, ok := entry[logging.FieldWorker].(float64); !ok || worker != 2 {
		t.Fatalf("expected worker=2, got %v", entry[logging.FieldWorker])
	}
}

func TestWarnWithContextInjectsDefaults(t *testing.T) {
	handler := &recordingHandler{}
	logger := slog.New(handler)

	logging.WarnWithContext(logger, "decode fallback", "audio_decode_fallback",
		logging.Hint("install ffmpeg"),
	)

	if len(handler.records) != 1 {
		t.Fatalf("expected 1 record, got %d", len(handler.records))
	}
	attrs := handler.attrs(0)
	if attrs[logging.FieldEventType] != "audio_decode_fallback" {
		t.Fatalf("unexpected event_type: %v", attrs)
	}
	if attrs[logging.FieldErrorHint] != "install ffmpeg" {
		t.Fatalf("caller hint should win, got %v", attrs[logging.FieldErrorHint])
	}
	if attrs[logging.FieldImpact] == "" {
		t.Fatalf("expected default impact, got %v", attrs)
	}
}

func TestErrorWithContextNilLogger(t *testing.T) {
	logging.ErrorWithContext(nil, "ignored", "noop", logging.Error(errors.New("boom")))
}

func TestLogFileKeepsDebugRecords(t *testing.T) {
	dir := t.TempDir()
	consolePath := filepath.Join(dir, "console.log")
	filePath := filepath.Join(dir, "logs", logging.LogFileName)

	logger, err := logging.New(logging.Options{
		Format:      "console",
		Level:       "info",
		OutputPaths: []string{consolePath},
		FilePath:    filePath,
	})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	logger.Debug("segment embedded",
		logging.Duration("elapsed", 1500*time.Millisecond),
		logging.Error(errors.New("boom")),
	)

	console, err := os.ReadFile(consolePath)
	if err != nil {
		t.Fatalf("read console log: %v", err)
	}
	if len(console) != 0 {
		t.Fatalf("debug record should not reach an info console, got %q", console)
	}

	content, err := os.ReadFile(filePath)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	var entry map[string]any
	if err := json.Unmarshal([]byte(strings.TrimSpace(string(content))), &entry); err != nil {
		t.Fatalf("log file is not JSON: %v (%q)", err, content)
	}
	if entry["level"] != "debug" {
		t.Fatalf("expected debug level, got %v", entry["level"])
	}
	if elapsed, ok := entry["elapsed"].(float64); !ok || elapsed != 1.5 {
		t.Fatalf("expected elapsed in seconds, got %v", entry["elapsed"])
	}
	if entry["error"] != "boom" {
		t.Fatalf("expected error message, got %v", entry["error"])
	}
	if _, ok := entry["source"]; !ok {
		t.Fatalf("file records should carry source, got %v", entry)
	}
}

func TestNopLoggerDiscards(t *testing.T) {
	logger := logging.NewNop()
	if logger.Enabled(context.Background(), slog.LevelError) {
		t.Fatal("nop logger should not be enabled")
	}
}

type recordingHandler struct {
	preset  []slog.Attr
	records []slog.Record
	shared  *recordingHandler
}

func (h *recordingHandler) root() *recordingHandler {
	if h.shared != nil {
		return h.shared
	}
	return h
}

func (h *recordingHandler) Enabled(context.Context, slog.Level) bool { return true }

func (h *recordingHandler) Handle(_ context.Context, record slog.Record) error {
	rec := record.Clone()
	rec.AddAttrs(h.preset...)
	root := h.root()
	root.records = append(root.records, rec)
	return nil
}

func (h *recordingHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &recordingHandler{preset: append(append([]slog.Attr(nil), h.preset...), attrs...), shared: h.root()}
}

func (h *recordingHandler) WithGroup(string) slog.Handler { return h }

func (h *recordingHandler) attrs(idx int) map[string]string {
	out := map[string]string{}
	h.root().records[idx].Attrs(func(attr slog.Attr) bool {
		out[attr.Key] = attr.Value.String()
		return true
	})
	return out
}
