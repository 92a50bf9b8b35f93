package session

import (
	"math"
	"slices"
	"time"

	"technotaggr/internal/pipeline"
)

// Document is the persisted record of one analysis session.
type Document struct {
	SessionID        string       `json:"session_id"`
	SessionTimestamp string       `json:"session_timestamp"`
	InputDirectory   string       `json:"input_directory"`
	OutputDirectory  string       `json:"output_directory"`
	ModelsDirectory  string       `json:"models_directory,omitempty"`
	TotalFiles       int          `json:"total_files"`
	SuccessfulFiles  int          `json:"successful_files"`
	FailedFiles      int          `json:"failed_files"`
	ClassifiersUsed  []string     `json:"classifiers_used"`
	Results          []FileResult `json:"results"`
	Failures         []Failure    `json:"failures"`
}

// FileResult holds every classifier output for one audio file. BPM and
// PhraseDurationSeconds are filled in by the phrase pass.
type FileResult struct {
	AudioFile             string        `json:"audio_file"`
	AudioDurationSeconds  float64       `json:"audio_duration_seconds"`
	SampleRate            int           `json:"sample_rate"`
	BPM                   float64       `json:"bpm,omitzero"`
	PhraseDurationSeconds float64       `json:"phrase_duration_seconds,omitzero"`
	Models                []ModelResult `json:"models"`
}

// ModelResult is one classifier's output for a file. Every prediction row
// follows Classes order.
type ModelResult struct {
	ModelName              string        `json:"model_name"`
	ModelVersion           string        `json:"model_version"`
	ModelPath              string        `json:"model_path"`
	EmbeddingModel         string        `json:"embedding_model"`
	EmbeddingModelPath     string        `json:"embedding_model_path"`
	SegmentDurationSeconds float64       `json:"segment_duration_seconds,omitzero"`
	Classes                []string      `json:"classes"`
	NumSegments            int           `json:"num_segments"`
	SegmentPredictions     [][]float64   `json:"segment_predictions"`
	AggregatedPredictions  LabeledValues `json:"aggregated_predictions"`
	// Phrase pass outputs; absent until postprocessing runs.
	BarPredictions           [][]float64   `json:"bar_predictions,omitzero"`
	AggregatedBarPredictions LabeledValues `json:"aggregated_bar_predictions,omitzero"`
}

// Failure is one classifier, or one whole file when Classifier is empty,
// that produced no result.
type Failure struct {
	AudioFile  string `json:"audio_file"`
	Classifier string `json:"classifier,omitempty"`
	Backbone   string `json:"backbone,omitempty"`
	Kind       string `json:"kind"`
	Message    string `json:"message"`
}

// Meta describes the session being assembled.
type Meta struct {
	SessionID       string
	Started         time.Time
	InputDirectory  string
	OutputDirectory string
	ModelsDirectory string
}

// Build assembles a session document from pipeline results. A file counts
// as successful when at least one classifier produced predictions.
func Build(meta Meta, results []pipeline.Result) *Document {
	started := meta.Started
	if started.IsZero() {
		started = time.Now()
	}
	doc := &Document{
		SessionID:        meta.SessionID,
		SessionTimestamp: started.Format(time.RFC3339),
		InputDirectory:   meta.InputDirectory,
		OutputDirectory:  meta.OutputDirectory,
		ModelsDirectory:  meta.ModelsDirectory,
		TotalFiles:       len(results),
		ClassifiersUsed:  []string{},
		Results:          []FileResult{},
		Failures:         []Failure{},
	}

	used := map[string]bool{}
	for _, res := range results {
		for _, f := range res.Failures {
			doc.Failures = append(doc.Failures, Failure{
				AudioFile:  f.AudioFile,
				Classifier: f.Classifier,
				Backbone:   f.Backbone,
				Kind:       f.Kind,
				Message:    f.Message,
			})
		}
		if !res.Succeeded() {
			doc.FailedFiles++
			continue
		}
		doc.SuccessfulFiles++

		file := FileResult{
			AudioFile:            res.AudioFile,
			AudioDurationSeconds: Round(res.Duration, 3),
			SampleRate:           res.SampleRate,
			Models:               make([]ModelResult, 0, len(res.Predictions)),
		}
		for _, pred := range res.Predictions {
			file.Models = append(file.Models, modelResult(pred))
			used[pred.Classifier.Name] = true
		}
		doc.Results = append(doc.Results, file)
	}
	for name := range used {
		doc.ClassifiersUsed = append(doc.ClassifiersUsed, name)
	}
	slices.Sort(doc.ClassifiersUsed)
	return doc
}

func modelResult(pred pipeline.Prediction) ModelResult {
	clf := pred.Classifier
	rows := pred.Matrix.Float64Rows()
	out := ModelResult{
		ModelName:             clf.Name,
		ModelVersion:          clf.Version,
		ModelPath:             clf.Artifact,
		Classes:               clf.Classes,
		NumSegments:           len(rows),
		SegmentPredictions:    rows,
		AggregatedPredictions: Label(clf.Classes, ColumnMean(rows, len(clf.Classes))),
	}
	if bb := clf.Backbone; bb != nil {
		out.EmbeddingModel = bb.Name
		out.EmbeddingModelPath = bb.Artifact
		out.SegmentDurationSeconds = bb.SegmentDuration
	}
	return out
}

// ColumnMean averages rows per column. An empty input yields zeros.
func ColumnMean(rows [][]float64, cols int) []float64 {
	out := make([]float64, cols)
	if len(rows) == 0 {
		return out
	}
	for _, row := range rows {
		for j := 0; j < cols && j < len(row); j++ {
			out[j] += row[j]
		}
	}
	for j := range out {
		out[j] /= float64(len(rows))
	}
	return out
}

// Round rounds v to the given number of decimals.
func Round(v float64, decimals int) float64 {
	p := math.Pow(10, float64(decimals))
	return math.Round(v*p) / p
}
