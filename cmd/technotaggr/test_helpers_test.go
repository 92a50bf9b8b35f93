package main

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/pelletier/go-toml/v2"

	"technotaggr/internal/audio"
	"technotaggr/internal/config"
	"technotaggr/internal/inference"
	"technotaggr/internal/models"
	"technotaggr/internal/pipeline"
	"technotaggr/internal/testsupport"
)

type cliTestEnv struct {
	cfg        *config.Config
	configPath string
	baseDir    string
	inputDir   string
	engine     *fakeEngine
	decoder    *fakeDecoder
}

// setupCLITestEnv writes a config file, a one-classifier model bundle and
// two audio files, and swaps the decoder and engine constructors for fakes.
func setupCLITestEnv(t *testing.T, opts ...testsupport.ConfigOption) *cliTestEnv {
	t.Helper()

	cfg := testsupport.NewConfig(t, opts...)
	base := testsupport.BaseDir(cfg)

	backbone := testsupport.MusiCNNBackbone()
	testsupport.WriteBackbone(t, cfg.Paths.ModelsDir, backbone)
	testsupport.WriteClassifier(t, cfg.Paths.ModelsDir, testsupport.ClassifierFixture{
		Head:     "mood_happy",
		Name:     "mood_happy",
		Variant:  backbone.Name,
		Classes:  []string{"non_happy", "happy"},
		Backbone: backbone,
	})

	inputDir := filepath.Join(base, "music")
	testsupport.WriteFile(t, filepath.Join(inputDir, "first.wav"), 64)
	testsupport.WriteFile(t, filepath.Join(inputDir, "second.mp3"), 64)
	testsupport.WriteFile(t, filepath.Join(inputDir, "notes.txt"), 8)

	configPath := filepath.Join(base, "config.toml")
	writeTestConfig(t, configPath, cfg)

	env := &cliTestEnv{
		cfg:        cfg,
		configPath: configPath,
		baseDir:    base,
		inputDir:   inputDir,
		engine:     &fakeEngine{segments: 10, bpm: 128},
		decoder:    &fakeDecoder{seconds: 30},
	}

	prevDecoder, prevEngine := newDecoder, newEngine
	newDecoder = func(*config.Config, *slog.Logger) pipeline.Decoder { return env.decoder }
	newEngine = func(*config.Config, *slog.Logger) bridgeEngine { return env.engine }
	t.Cleanup(func() {
		newDecoder, newEngine = prevDecoder, prevEngine
	})
	return env
}

func writeTestConfig(t *testing.T, path string, cfg *config.Config) {
	t.Helper()
	data, err := toml.Marshal(cfg)
	if err != nil {
		t.Fatalf("marshal config: %v", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
}

func runCLI(t *testing.T, args []string, configPath string) (string, string, error) {
	t.Helper()
	cmd := newRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	var flags []string
	if configPath != "" {
		flags = append(flags, "--config", configPath)
	}
	cmd.SetArgs(append(flags, args...))
	err := cmd.ExecuteContext(context.Background())
	return stdout.String(), stderr.String(), err
}

func requireContains(t *testing.T, output, substr string) {
	t.Helper()
	if !strings.Contains(output, substr) {
		t.Fatalf("expected %q to contain %q", output, substr)
	}
}

type fakeDecoder struct {
	mu      sync.Mutex
	seconds int
	paths   []string
}

func (d *fakeDecoder) Decode(_ context.Context, path string, rate int) (*audio.Buffer, error) {
	d.mu.Lock()
	d.paths = append(d.paths, path)
	d.mu.Unlock()
	return &audio.Buffer{Samples: make([]float32, rate*d.seconds), SampleRate: rate}, nil
}

// fakeEngine embeds every file into segments rows and scores each head
// 0.25/0.75 across two classes.
type fakeEngine struct {
	mu       sync.Mutex
	segments int
	bpm      float64
	tempos   int
	closed   int
}

func (e *fakeEngine) Embed(_ context.Context, _ models.Algorithm, _ *audio.Buffer, _, _ string) (inference.Matrix, error) {
	return inference.Matrix{Rows: e.segments, Cols: 4, Data: make([]float32, e.segments*4)}, nil
}

func (e *fakeEngine) Predict(_ context.Context, _ models.Algorithm, emb inference.Matrix, _, _, _ string) (inference.Matrix, error) {
	data := make([]float32, emb.Rows*2)
	for i := range emb.Rows {
		data[2*i] = 0.25
		data[2*i+1] = 0.75
	}
	return inference.Matrix{Rows: emb.Rows, Cols: 2, Data: data}, nil
}

func (e *fakeEngine) Tempo(context.Context, *audio.Buffer) (inference.TempoEstimate, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.tempos++
	return inference.TempoEstimate{BPM: e.bpm, Confidence: 1}, nil
}

func (e *fakeEngine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.closed++
	return nil
}
