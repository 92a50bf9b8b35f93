package testsupport

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// BackboneFixture describes a feature-extractor descriptor to write.
type BackboneFixture struct {
	Family     string // musicnn or discogs-effnet
	Name       string // e.g. msd-musicnn-1
	Algorithm  string
	SampleRate int
	Shape      []any
	// Nested places the files under <family>/<name>/ instead of <family>/.
	Nested bool
	// SkipGraph omits the .pb file.
	SkipGraph bool
}

// MusiCNNBackbone returns the fixture of the published MusiCNN extractor
// (187-frame patches, three-second segments).
func MusiCNNBackbone() BackboneFixture {
	return BackboneFixture{
		Family:     "musicnn",
		Name:       "msd-musicnn-1",
		Algorithm:  "TensorflowPredictMusiCNN",
		SampleRate: 16000,
		Shape:      []any{187, 96},
	}
}

// EffnetBackbone returns the fixture of the published Discogs EffNet
// extractor (128-frame patches in a batch of 64, two-second segments).
func EffnetBackbone() BackboneFixture {
	return BackboneFixture{
		Family:     "discogs-effnet",
		Name:       "discogs-effnet-bs64-1",
		Algorithm:  "TensorflowPredictEffnetDiscogs",
		SampleRate: 16000,
		Shape:      []any{64, 128, 96},
		Nested:     true,
	}
}

// BackboneDescriptor builds the metadata document for f.
func BackboneDescriptor(f BackboneFixture) map[string]any {
	return map[string]any{
		"name":    strings.ToUpper(f.Name),
		"version": "1",
		"inference": map[string]any{
			"algorithm":   f.Algorithm,
			"sample_rate": f.SampleRate,
		},
		"schema": map[string]any{
			"inputs": []any{
				map[string]any{"name": "model/Placeholder", "type": "float", "shape": f.Shape},
			},
			"outputs": []any{
				map[string]any{"name": "model/Sigmoid", "output_purpose": "predictions"},
				map[string]any{"name": "model/dense/BiasAdd", "output_purpose": "embeddings"},
			},
		},
	}
}

// WriteBackbone writes the backbone descriptor and graph under
// root/feature-extractors and returns the descriptor path.
func WriteBackbone(t testing.TB, root string, f BackboneFixture) string {
	t.Helper()
	dir := filepath.Join(root, "feature-extractors", f.Family)
	if f.Nested {
		dir = filepath.Join(dir, f.Name)
	}
	path := filepath.Join(dir, f.Name+".json")
	WriteJSON(t, path, BackboneDescriptor(f))
	if !f.SkipGraph {
		WriteFile(t, filepath.Join(dir, f.Name+".pb"), 64)
	}
	return path
}

// ClassifierFixture describes a classification-head descriptor to write.
type ClassifierFixture struct {
	Head        string // directory under classification-heads
	Name        string
	Variant     string // backbone variant suffix, e.g. msd-musicnn-1
	Classes     []string
	Backbone    BackboneFixture
	SampleRate  int
	Predictions []string // output names tagged "predictions"; defaults to one
	SkipGraph   bool
	// Mutate edits the descriptor before it is written.
	Mutate func(map[string]any)
}

// ClassifierDescriptor builds the metadata document for f.
func ClassifierDescriptor(f ClassifierFixture) map[string]any {
	rate := f.SampleRate
	if rate == 0 {
		rate = f.Backbone.SampleRate
	}
	predictions := f.Predictions
	if predictions == nil {
		predictions = []string{"model/Softmax"}
	}
	outputs := make([]any, 0, len(predictions)+1)
	for _, name := range predictions {
		outputs = append(outputs, map[string]any{"name": name, "output_purpose": "predictions"})
	}
	outputs = append(outputs, map[string]any{"name": "model/dense/BiasAdd", "output_purpose": ""})

	classes := make([]any, 0, len(f.Classes))
	for _, class := range f.Classes {
		classes = append(classes, class)
	}
	doc := map[string]any{
		"name":              f.Name,
		"version":           "1",
		"description":       "classification of " + f.Head,
		"author":            "Test Author",
		"email":             "author@example.com",
		"release_date":      "2022-08-25",
		"framework":         "tensorflow",
		"framework_version": "2.4.1",
		"dataset":           map[string]any{"name": "In-house " + f.Head, "size": "100 tracks"},
		"classes":           classes,
		"inference": map[string]any{
			"algorithm":   "TensorflowPredict2D",
			"sample_rate": rate,
			"embedding_model": map[string]any{
				"algorithm":  f.Backbone.Algorithm,
				"model_name": f.Backbone.Name,
			},
		},
		"schema": map[string]any{
			"inputs": []any{
				map[string]any{"name": "model/Placeholder", "type": "float", "shape": []any{200}},
			},
			"outputs": outputs,
		},
	}
	if f.Mutate != nil {
		f.Mutate(doc)
	}
	return doc
}

// WriteClassifier writes the head descriptor and graph under
// root/classification-heads/<head>/ and returns the descriptor path.
func WriteClassifier(t testing.TB, root string, f ClassifierFixture) string {
	t.Helper()
	stem := f.Head + "-" + f.Variant
	dir := filepath.Join(root, "classification-heads", f.Head)
	path := filepath.Join(dir, stem+".json")
	WriteJSON(t, path, ClassifierDescriptor(f))
	if !f.SkipGraph {
		WriteFile(t, filepath.Join(dir, stem+".pb"), 64)
	}
	return path
}

// WriteJSON marshals v to path, creating parent directories.
func WriteJSON(t testing.TB, path string, v any) {
	t.Helper()
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		t.Fatalf("marshal %s: %v", path, err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir for %s: %v", path, err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}
