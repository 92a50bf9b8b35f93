package pipeline_test

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"technotaggr/internal/audio"
	"technotaggr/internal/inference"
	"technotaggr/internal/logging"
	"technotaggr/internal/models"
	"technotaggr/internal/pipeline"
	"technotaggr/internal/services"
)

type fakeDecoder struct {
	mu    sync.Mutex
	calls map[string][]int
	fail  map[string]error
	delay func(path string) time.Duration
}

func (d *fakeDecoder) Decode(ctx context.Context, path string, sampleRate int) (*audio.Buffer, error) {
	if d.delay != nil {
		time.Sleep(d.delay(path))
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	d.mu.Lock()
	if d.calls == nil {
		d.calls = map[string][]int{}
	}
	d.calls[path] = append(d.calls[path], sampleRate)
	err := d.fail[path]
	d.mu.Unlock()
	if err != nil {
		return nil, err
	}
	// Ten seconds of silence at the requested rate.
	return &audio.Buffer{Samples: make([]float32, sampleRate*10), SampleRate: sampleRate}, nil
}

func (d *fakeDecoder) callsFor(path string) []int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.calls[path]
}

// fakeEngine embeds every buffer into segments rows and answers each head
// with one column per class unless an override says otherwise.
type fakeEngine struct {
	segments   int
	embedCalls *atomic.Int32
	embedFail  map[string]error
	predFail   map[string]error
	cols       map[string]int
	extraRows  map[string]int
	closed     *atomic.Int32
}

func newFakeEngine() *fakeEngine {
	return &fakeEngine{segments: 5, embedCalls: &atomic.Int32{}, closed: &atomic.Int32{}}
}

func (e *fakeEngine) Embed(_ context.Context, alg models.Algorithm, buf *audio.Buffer, graph, output string) (inference.Matrix, error) {
	e.embedCalls.Add(1)
	if err := e.embedFail[graph]; err != nil {
		return inference.Matrix{}, err
	}
	if !alg.ProducesEmbeddings() || buf == nil {
		return inference.Matrix{}, errors.New("bad embed call")
	}
	return inference.Matrix{Rows: e.segments, Cols: 4, Data: make([]float32, e.segments*4)}, nil
}

func (e *fakeEngine) Predict(_ context.Context, _ models.Algorithm, emb inference.Matrix, graph, _, _ string) (inference.Matrix, error) {
	if err := e.predFail[graph]; err != nil {
		return inference.Matrix{}, err
	}
	cols := 2
	if c, ok := e.cols[graph]; ok {
		cols = c
	}
	rows := emb.Rows + e.extraRows[graph]
	data := make([]float32, rows*cols)
	for i := range data {
		data[i] = 1 / float32(cols)
	}
	return inference.Matrix{Rows: rows, Cols: cols, Data: data}, nil
}

func (e *fakeEngine) Close() error {
	e.closed.Add(1)
	return nil
}

func backbone(name string, alg models.Algorithm, rate int, segDur float64) *models.BackboneConfig {
	return &models.BackboneConfig{
		Name:            name,
		Algorithm:       alg,
		Artifact:        name + ".pb",
		SampleRate:      rate,
		OutputNode:      "model/embeddings",
		SegmentDuration: segDur,
	}
}

func head(id string, b *models.BackboneConfig, classes ...string) *models.ClassifierConfig {
	if len(classes) == 0 {
		classes = []string{"yes", "no"}
	}
	return &models.ClassifierConfig{
		ID:         id,
		Name:       id,
		Algorithm:  models.AlgorithmPredict2D,
		Artifact:   id + ".pb",
		Classes:    classes,
		InputNode:  "model/Placeholder",
		OutputNode: "model/Softmax",
		Backbone:   b,
	}
}

func predictionIDs(result pipeline.Result) []string {
	var ids []string
	for _, p := range result.Predictions {
		ids = append(ids, p.Classifier.ID)
	}
	return ids
}

func TestRunEmbedsOncePerBackbone(t *testing.T) {
	musicnn := backbone("msd-musicnn-1", models.AlgorithmMusiCNN, 16000, 3)
	effnet := backbone("discogs-effnet-bs64-1", models.AlgorithmEffnetDiscogs, 16000, 2)
	classifiers := []*models.ClassifierConfig{
		head("mood_happy-discogs-effnet-1", effnet),
		head("mood_happy-msd-musicnn-1", musicnn),
		head("mood_sad-msd-musicnn-1", musicnn),
		head("tonal_atonal-msd-musicnn-1", musicnn),
	}
	decoder := &fakeDecoder{}
	engine := newFakeEngine()

	result := pipeline.New(decoder, engine, logging.NewNop()).Run(context.Background(), "track.wav", classifiers)

	if got := engine.embedCalls.Load(); got != 2 {
		t.Fatalf("expected one embedding per backbone (2), got %d", got)
	}
	if result.EmbedCalls != 2 {
		t.Fatalf("result should report 2 embed calls, got %d", result.EmbedCalls)
	}
	if got := decoder.callsFor("track.wav"); !slices.Equal(got, []int{16000}) {
		t.Fatalf("expected a single decode at 16000 Hz, got %v", got)
	}
	want := []string{"mood_happy-discogs-effnet-1", "mood_happy-msd-musicnn-1", "mood_sad-msd-musicnn-1", "tonal_atonal-msd-musicnn-1"}
	if got := predictionIDs(result); !slices.Equal(got, want) {
		t.Fatalf("predictions %v, want input order %v", got, want)
	}
	for _, p := range result.Predictions {
		if p.Matrix.Rows != 5 {
			t.Fatalf("%s: rows %d do not match 5 segments", p.Classifier.ID, p.Matrix.Rows)
		}
	}
	if len(result.Failures) != 0 || !result.Succeeded() {
		t.Fatalf("unexpected failures %+v", result.Failures)
	}
	if result.Duration != 10 || result.SampleRate != 16000 {
		t.Fatalf("unexpected audio info %v s @ %d", result.Duration, result.SampleRate)
	}
}

func TestRunKeepsSameNamedBackbonesApart(t *testing.T) {
	musicnn := backbone("shared-1", models.AlgorithmMusiCNN, 16000, 3)
	musicnn.Artifact = "musicnn/shared-1.pb"
	effnet := backbone("shared-1", models.AlgorithmEffnetDiscogs, 16000, 2)
	effnet.Artifact = "discogs-effnet/shared-1.pb"
	classifiers := []*models.ClassifierConfig{
		head("mood_happy-musicnn", musicnn),
		head("mood_sad-effnet", effnet),
	}
	engine := newFakeEngine()
	engine.embedFail = map[string]error{"discogs-effnet/shared-1.pb": errors.New("graph rejected")}

	result := pipeline.New(&fakeDecoder{}, engine, logging.NewNop()).Run(context.Background(), "track.wav", classifiers)

	if got := engine.embedCalls.Load(); got != 2 {
		t.Fatalf("each backbone needs its own embedding, got %d embed calls", got)
	}
	if got := predictionIDs(result); !slices.Equal(got, []string{"mood_happy-musicnn"}) {
		t.Fatalf("only the musicnn head should predict, got %v", got)
	}
	if len(result.Failures) != 1 || result.Failures[0].Classifier != "mood_sad-effnet" {
		t.Fatalf("the effnet head should fail with its own backbone, got %+v", result.Failures)
	}
}

func TestRunDecodesOncePerSampleRate(t *testing.T) {
	a := backbone("a", models.AlgorithmMusiCNN, 16000, 3)
	b := backbone("b", models.AlgorithmEffnetDiscogs, 22050, 2)
	c := backbone("c", models.AlgorithmMusiCNN, 16000, 3)
	decoder := &fakeDecoder{}

	pipeline.New(decoder, newFakeEngine(), nil).Run(context.Background(), "x.flac", []*models.ClassifierConfig{
		head("h1", a), head("h2", b), head("h3", c),
	})

	if got := decoder.callsFor("x.flac"); !slices.Equal(got, []int{16000, 22050}) {
		t.Fatalf("expected one decode per distinct rate, got %v", got)
	}
}

func TestClassCountMismatchIsIsolated(t *testing.T) {
	musicnn := backbone("msd-musicnn-1", models.AlgorithmMusiCNN, 16000, 3)
	classifiers := []*models.ClassifierConfig{
		head("mood_happy", musicnn),
		head("nsynth_reverb", musicnn, "dry", "wet", "hall"),
		head("mood_sad", musicnn),
	}
	engine := newFakeEngine()
	engine.cols = map[string]int{"nsynth_reverb.pb": 2}

	result := pipeline.New(&fakeDecoder{}, engine, nil).Run(context.Background(), "t.wav", classifiers)

	if got := predictionIDs(result); !slices.Equal(got, []string{"mood_happy", "mood_sad"}) {
		t.Fatalf("expected the other classifiers to complete, got %v", got)
	}
	if len(result.Failures) != 1 {
		t.Fatalf("expected exactly one failure, got %+v", result.Failures)
	}
	failure := result.Failures[0]
	if failure.Classifier != "nsynth_reverb" || failure.Kind != services.KindClassifier || !errors.Is(failure.Err, services.ErrClassifier) {
		t.Fatalf("unexpected failure %+v", failure)
	}
	if failure.Backbone != "msd-musicnn-1" || failure.AudioFile != "t.wav" {
		t.Fatalf("failure should name backbone and file, got %+v", failure)
	}
	if !strings.Contains(failure.Message, "2 columns for 3 classes") {
		t.Fatalf("unexpected message %q", failure.Message)
	}
}

func TestRowCountMismatchIsClassifierError(t *testing.T) {
	musicnn := backbone("m", models.AlgorithmMusiCNN, 16000, 3)
	engine := newFakeEngine()
	engine.extraRows = map[string]int{"bad.pb": 1}

	result := pipeline.New(&fakeDecoder{}, engine, nil).Run(context.Background(), "t.wav", []*models.ClassifierConfig{
		head("bad", musicnn), head("good", musicnn),
	})

	if len(result.Failures) != 1 || result.Failures[0].Kind != services.KindClassifier {
		t.Fatalf("expected a classifier failure, got %+v", result.Failures)
	}
	if got := predictionIDs(result); !slices.Equal(got, []string{"good"}) {
		t.Fatalf("unexpected predictions %v", got)
	}
}

func TestPredictionFailureIsIsolated(t *testing.T) {
	musicnn := backbone("m", models.AlgorithmMusiCNN, 16000, 3)
	engine := newFakeEngine()
	engine.predFail = map[string]error{"broken.pb": errors.New("RuntimeError: bad graph")}

	result := pipeline.New(&fakeDecoder{}, engine, nil).Run(context.Background(), "t.wav", []*models.ClassifierConfig{
		head("broken", musicnn), head("fine", musicnn),
	})

	if len(result.Failures) != 1 || !errors.Is(result.Failures[0].Err, services.ErrClassifier) {
		t.Fatalf("expected one classifier failure, got %+v", result.Failures)
	}
	if !result.Succeeded() {
		t.Fatal("file with one surviving classifier counts as successful")
	}
}

func TestBackboneFailureFailsOnlyItsGroup(t *testing.T) {
	musicnn := backbone("msd-musicnn-1", models.AlgorithmMusiCNN, 16000, 3)
	effnet := backbone("discogs-effnet-bs64-1", models.AlgorithmEffnetDiscogs, 16000, 2)
	engine := newFakeEngine()
	engine.embedFail = map[string]error{"discogs-effnet-bs64-1.pb": errors.New("OOM")}

	result := pipeline.New(&fakeDecoder{}, engine, nil).Run(context.Background(), "t.wav", []*models.ClassifierConfig{
		head("e1", effnet), head("m1", musicnn), head("e2", effnet),
	})

	if got := predictionIDs(result); !slices.Equal(got, []string{"m1"}) {
		t.Fatalf("musicnn classifiers should still run, got %v", got)
	}
	if len(result.Failures) != 2 {
		t.Fatalf("expected both effnet heads to fail, got %+v", result.Failures)
	}
	for _, f := range result.Failures {
		if f.Kind != services.KindBackbone || f.Backbone != "discogs-effnet-bs64-1" {
			t.Fatalf("unexpected failure %+v", f)
		}
	}
	if got := engine.embedCalls.Load(); got != 2 {
		t.Fatalf("failed backbone must not be retried per classifier, got %d embed calls", got)
	}
}

func TestDecodeFailureFailsEveryClassifier(t *testing.T) {
	musicnn := backbone("m", models.AlgorithmMusiCNN, 16000, 3)
	decoder := &fakeDecoder{fail: map[string]error{
		"corrupt.mp3": services.Wrap(services.ErrDecode, "audio", "convert", "ffmpeg: Invalid data", nil),
	}}
	engine := newFakeEngine()

	result := pipeline.New(decoder, engine, nil).Run(context.Background(), "corrupt.mp3", []*models.ClassifierConfig{
		head("a", musicnn), head("b", musicnn),
	})

	if result.Succeeded() || len(result.Failures) != 2 {
		t.Fatalf("expected every classifier to fail, got %+v", result)
	}
	for _, f := range result.Failures {
		if f.Kind != services.KindDecode {
			t.Fatalf("expected decode failures, got %+v", f)
		}
	}
	if engine.embedCalls.Load() != 0 {
		t.Fatal("embedding must not run after a decode failure")
	}
}

func TestClassifierWithoutBackboneIsConfigFailure(t *testing.T) {
	result := pipeline.New(&fakeDecoder{}, newFakeEngine(), nil).Run(context.Background(), "t.wav", []*models.ClassifierConfig{
		head("orphan", nil),
	})
	if len(result.Failures) != 1 || result.Failures[0].Kind != services.KindConfig {
		t.Fatalf("expected config failure, got %+v", result.Failures)
	}
}

func TestBatchPreservesInputOrder(t *testing.T) {
	musicnn := backbone("m", models.AlgorithmMusiCNN, 16000, 3)
	files := make([]string, 8)
	for i := range files {
		files[i] = fmt.Sprintf("track%02d.wav", i)
	}
	decoder := &fakeDecoder{
		fail: map[string]error{"track03.wav": services.Wrap(services.ErrDecode, "audio", "probe", "no audio stream", nil)},
		delay: func(path string) time.Duration {
			// Earlier files finish later.
			var n int
			_, _ = fmt.Sscanf(path, "track%02d.wav", &n)
			return time.Duration(len(files)-n) * time.Millisecond
		},
	}

	var factories atomic.Int32
	closed := &atomic.Int32{}
	var reported []int
	batch := &pipeline.Batch{
		Decoder: decoder,
		Workers: 3,
		Logger:  logging.NewNop(),
		NewEngine: func(int) pipeline.Engine {
			factories.Add(1)
			engine := newFakeEngine()
			engine.closed = closed
			return engine
		},
		OnResult: func(index int, _ pipeline.Result) {
			reported = append(reported, index)
		},
	}

	results := batch.Run(context.Background(), files, []*models.ClassifierConfig{head("h", musicnn)})

	if len(results) != len(files) {
		t.Fatalf("expected %d results, got %d", len(files), len(results))
	}
	for i, res := range results {
		if res.AudioFile != files[i] {
			t.Fatalf("result %d is for %s, want %s", i, res.AudioFile, files[i])
		}
		if want := i != 3; res.Succeeded() != want {
			t.Fatalf("result %d success=%v, want %v", i, res.Succeeded(), want)
		}
	}
	if got := factories.Load(); got != 3 {
		t.Fatalf("expected one engine per worker, got %d", got)
	}
	if got := closed.Load(); got != 3 {
		t.Fatalf("expected every engine to be closed, got %d", got)
	}
	slices.Sort(reported)
	if len(reported) != len(files) || reported[0] != 0 || reported[len(reported)-1] != len(files)-1 {
		t.Fatalf("expected a report per file, got %v", reported)
	}
}

func TestBatchCancelledBeforeStart(t *testing.T) {
	musicnn := backbone("m", models.AlgorithmMusiCNN, 16000, 3)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	batch := &pipeline.Batch{
		Decoder:   &fakeDecoder{},
		Workers:   2,
		NewEngine: func(int) pipeline.Engine { return newFakeEngine() },
	}
	results := batch.Run(ctx, []string{"a.wav", "b.wav", "c.wav"}, []*models.ClassifierConfig{head("h", musicnn)})

	for i, res := range results {
		if res.Succeeded() || len(res.Failures) == 0 {
			t.Fatalf("result %d should carry a failure after cancellation: %+v", i, res)
		}
	}
}

func TestBatchEmpty(t *testing.T) {
	batch := &pipeline.Batch{NewEngine: func(int) pipeline.Engine { return newFakeEngine() }}
	if results := batch.Run(context.Background(), nil, nil); len(results) != 0 {
		t.Fatalf("expected no results, got %d", len(results))
	}
}
