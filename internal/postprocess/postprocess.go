package postprocess

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"technotaggr/internal/audio"
	"technotaggr/internal/logging"
	"technotaggr/internal/models"
	"technotaggr/internal/phrase"
	"technotaggr/internal/services"
	"technotaggr/internal/session"
	"technotaggr/internal/tempo"
)

// Decoder loads mono audio at a requested sample rate.
type Decoder interface {
	Decode(ctx context.Context, path string, sampleRate int) (*audio.Buffer, error)
}

// Where a model's segment duration came from.
const (
	SourceDocument   = "document"
	SourceDescriptor = "descriptor"
	SourceEstimated  = "estimated"
)

// Options configures a postprocess pass.
type Options struct {
	// AudioBasePath resolves relative audio_file entries. Empty means the
	// working directory.
	AudioBasePath string
	Decoder       Decoder
	Estimator     tempo.Estimator
	Logger        *slog.Logger
	// OnFile is called after each file, successful or not.
	OnFile func(index int, audioFile string, err error)
}

// ModelSummary describes how one model's predictions were bucketed.
type ModelSummary struct {
	ModelName              string  `json:"model_name"`
	EmbeddingModel         string  `json:"embedding_model"`
	SegmentDurationSeconds float64 `json:"segment_duration_seconds"`
	SegmentDurationSource  string  `json:"segment_duration_source"`
	NumSegments            int     `json:"num_segments"`
	SegmentsPerPhrase      float64 `json:"segments_per_phrase"`
	NumPhrases             int     `json:"num_phrases"`
}

// FileSummary is the outcome for one successfully processed file.
type FileSummary struct {
	AudioFile             string         `json:"audio_file"`
	AudioDurationSeconds  float64        `json:"audio_duration_seconds"`
	BPM                   float64        `json:"bpm"`
	PhraseDurationSeconds float64        `json:"phrase_duration_seconds"`
	Models                []ModelSummary `json:"models"`
}

// Summary reports a postprocess pass.
type Summary struct {
	TotalFiles      int               `json:"total_files"`
	SuccessfulFiles int               `json:"successful_files"`
	FailedFiles     int               `json:"failed_files"`
	Files           []FileSummary     `json:"files"`
	Failures        []session.Failure `json:"failures"`
}

// Run adds tempo, phrase duration and phrase-level predictions to every
// result in doc, in place. A file whose tempo cannot be established loses any
// phrase data from an earlier pass and is recorded as a file failure. Once
// tempo is known, each model is aggregated on its own: a model whose
// predictions cannot be bucketed is recorded as a classifier failure and its
// siblings are still updated. Failures go to both the summary and
// doc.Failures. Run only returns an error when ctx ends; the summary then
// covers the files processed so far.
func Run(ctx context.Context, doc *session.Document, opts Options) (Summary, error) {
	logger := logging.NewComponentLogger(opts.Logger, "postprocess")
	if ctx == nil {
		ctx = context.Background()
	}
	summary := Summary{
		TotalFiles: len(doc.Results),
		Files:      []FileSummary{},
		Failures:   []session.Failure{},
	}
	if opts.Decoder == nil || opts.Estimator == nil {
		return summary, services.Wrap(services.ErrConfig, "postprocess", "run", "decoder and tempo estimator are required", nil)
	}
	if doc.SessionID != "" {
		ctx = services.WithSessionID(ctx, doc.SessionID)
	}

	for i := range doc.Results {
		if err := ctx.Err(); err != nil {
			return summary, err
		}
		result := &doc.Results[i]
		fileCtx := services.WithAudioFile(ctx, result.AudioFile)
		fileSummary, modelFailures, err := processFile(fileCtx, result, opts, logger)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return summary, ctxErr
			}
			clearPhrases(result)
			summary.FailedFiles++
			failure := session.Failure{
				AudioFile: result.AudioFile,
				Kind:      services.KindOf(err),
				Message:   err.Error(),
			}
			summary.Failures = append(summary.Failures, failure)
			doc.Failures = append(doc.Failures, failure)
			logging.WarnWithContext(logging.WithContext(fileCtx, logger), "phrase aggregation skipped",
				"postprocess_skipped",
				logging.Hint("check that the audio file is reachable and has a steady beat"),
				logging.Impact("segment predictions kept without phrase summaries"),
				logging.Error(err),
			)
		} else {
			summary.SuccessfulFiles++
			summary.Files = append(summary.Files, fileSummary)
			summary.Failures = append(summary.Failures, modelFailures...)
			doc.Failures = append(doc.Failures, modelFailures...)
		}
		if opts.OnFile != nil {
			opts.OnFile(i, result.AudioFile, err)
		}
	}
	return summary, nil
}

// processFile returns an error only for problems that affect the whole file
// (path, decode, tempo). Per-model aggregation failures come back as records.
func processFile(ctx context.Context, result *session.FileResult, opts Options, logger *slog.Logger) (FileSummary, []session.Failure, error) {
	path, err := ResolveAudioPath(result.AudioFile, opts.AudioBasePath)
	if err != nil {
		return FileSummary{}, nil, err
	}
	buf, err := opts.Decoder.Decode(ctx, path, opts.Estimator.SampleRate())
	if err != nil {
		return FileSummary{}, nil, err
	}
	bpm, err := opts.Estimator.Estimate(ctx, buf)
	if err != nil {
		return FileSummary{}, nil, err
	}
	phraseSeconds, err := phrase.PhraseSeconds(bpm)
	if err != nil {
		return FileSummary{}, nil, err
	}

	summary := FileSummary{
		AudioFile:             result.AudioFile,
		AudioDurationSeconds:  result.AudioDurationSeconds,
		BPM:                   session.Round(bpm, 2),
		PhraseDurationSeconds: session.Round(phraseSeconds, 3),
		Models:                []ModelSummary{},
	}
	result.BPM = summary.BPM
	result.PhraseDurationSeconds = summary.PhraseDurationSeconds

	var failures []session.Failure
	for j := range result.Models {
		model := &result.Models[j]
		info, err := aggregateModel(ctx, model, result.AudioDurationSeconds, bpm, logger)
		if err != nil {
			model.BarPredictions = nil
			model.AggregatedBarPredictions = nil
			failures = append(failures, session.Failure{
				AudioFile:  result.AudioFile,
				Classifier: model.ModelName,
				Backbone:   model.EmbeddingModel,
				Kind:       services.KindOf(err),
				Message:    err.Error(),
			})
			logging.WarnWithContext(logging.WithContext(ctx, logger), "model phrase aggregation failed",
				"postprocess_model_failed",
				logging.Classifier(model.ModelName),
				logging.Backbone(model.EmbeddingModel),
				logging.Hint("re-run analyze for this file; the stored predictions do not match the model classes"),
				logging.Impact("model keeps segment predictions without phrase summaries"),
				logging.Error(err),
			)
			continue
		}
		summary.Models = append(summary.Models, info)
	}

	logging.WithContext(ctx, logger).Info("phrases aggregated",
		logging.Float64("bpm", summary.BPM),
		logging.Float64("phrase_seconds", summary.PhraseDurationSeconds),
		logging.Int("models", len(summary.Models)),
		logging.Int("failed_models", len(failures)),
	)
	return summary, failures, nil
}

// aggregateModel writes one model's phrase outputs. A model with no segment
// rows gets empty outputs.
func aggregateModel(ctx context.Context, model *session.ModelResult, audioDuration, bpm float64, logger *slog.Logger) (ModelSummary, error) {
	info := ModelSummary{
		ModelName:      model.ModelName,
		EmbeddingModel: model.EmbeddingModel,
		NumSegments:    model.NumSegments,
	}
	if len(model.SegmentPredictions) == 0 {
		model.BarPredictions = [][]float64{}
		model.AggregatedBarPredictions = session.LabeledValues{}
		return info, nil
	}

	segDur, source := segmentDuration(ctx, model, audioDuration, logger)
	agg, err := phrase.Aggregate(model.SegmentPredictions, segDur, bpm, model.Classes)
	if err != nil {
		return info, services.Wrap(services.ErrAggregation, "postprocess", "aggregate", model.ModelName, err)
	}
	model.BarPredictions = agg.Phrases
	model.AggregatedBarPredictions = session.Label(model.Classes, agg.Aggregated)

	info.SegmentDurationSeconds = session.Round(segDur, 3)
	info.SegmentDurationSource = source
	info.SegmentsPerPhrase = session.Round(agg.SegmentsPerPhrase, 2)
	info.NumPhrases = len(agg.Phrases)
	return info, nil
}

// clearPhrases drops tempo and phrase outputs left by an earlier pass.
func clearPhrases(result *session.FileResult) {
	result.BPM = 0
	result.PhraseDurationSeconds = 0
	for j := range result.Models {
		result.Models[j].BarPredictions = nil
		result.Models[j].AggregatedBarPredictions = nil
	}
}

// ResolveAudioPath joins a relative audio path onto base (or the working
// directory) and checks the file exists.
func ResolveAudioPath(audioFile, base string) (string, error) {
	path := strings.TrimSpace(audioFile)
	if path == "" {
		return "", services.Wrap(services.ErrValidation, "postprocess", "resolve audio", "result has no audio_file", nil)
	}
	if !filepath.IsAbs(path) {
		if base == "" {
			wd, err := os.Getwd()
			if err != nil {
				return "", fmt.Errorf("resolve working directory: %w", err)
			}
			base = wd
		}
		path = filepath.Join(base, path)
	}
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", services.Wrap(services.ErrNotFound, "postprocess", "resolve audio", path, err)
		}
		return "", fmt.Errorf("stat audio: %w", err)
	}
	return path, nil
}

// segmentDuration picks the duration stored in the document, then the
// backbone descriptor on disk, then audio duration over segment count.
func segmentDuration(ctx context.Context, model *session.ModelResult, audioDuration float64, logger *slog.Logger) (float64, string) {
	if model.SegmentDurationSeconds > 0 {
		return model.SegmentDurationSeconds, SourceDocument
	}
	if d, ok := DescriptorSegmentDuration(model.EmbeddingModelPath); ok {
		return d, SourceDescriptor
	}
	estimated := audioDuration / float64(len(model.SegmentPredictions))
	logging.WarnWithContext(logging.WithContext(ctx, logger), "estimating segment duration",
		"segment_duration_fallback",
		logging.Classifier(model.ModelName),
		logging.Backbone(model.EmbeddingModel),
		logging.Float64("segment_seconds", estimated),
		logging.Hint("keep the feature extractor descriptor next to its .pb file"),
		logging.Impact("phrase boundaries follow an estimated segment length"),
	)
	return estimated, SourceEstimated
}

// DescriptorSegmentDuration reads the backbone descriptor that sits next to
// artifact (<dir>/<name>.json) or one level up (<parent>/<name>.json).
func DescriptorSegmentDuration(artifact string) (float64, bool) {
	artifact = strings.TrimSpace(artifact)
	if artifact == "" {
		return 0, false
	}
	stem := strings.TrimSuffix(filepath.Base(artifact), filepath.Ext(artifact))
	dir := filepath.Dir(artifact)
	for _, candidate := range []string{
		filepath.Join(dir, stem+".json"),
		filepath.Join(filepath.Dir(dir), stem+".json"),
	} {
		desc, err := models.LoadDescriptor(candidate)
		if err != nil {
			continue
		}
		backbone, err := models.ResolveBackbone(desc, artifact)
		if err != nil {
			continue
		}
		return backbone.SegmentDuration, true
	}
	return 0, false
}
