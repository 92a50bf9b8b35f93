package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"technotaggr/internal/audio"
	"technotaggr/internal/inference"
	"technotaggr/internal/logging"
	"technotaggr/internal/models"
	"technotaggr/internal/services"
)

// Decoder turns an audio file into a mono buffer at a sample rate.
type Decoder interface {
	Decode(ctx context.Context, path string, sampleRate int) (*audio.Buffer, error)
}

// Engine runs backbone and classifier graphs. Implementations are not
// assumed to be safe for concurrent use.
type Engine interface {
	Embed(ctx context.Context, alg models.Algorithm, buf *audio.Buffer, graph, output string) (inference.Matrix, error)
	Predict(ctx context.Context, alg models.Algorithm, emb inference.Matrix, graph, input, output string) (inference.Matrix, error)
}

// Prediction is one classifier's [segment, class] matrix for a file.
type Prediction struct {
	Classifier *models.ClassifierConfig
	Matrix     inference.Matrix
}

// Failure records one classifier (or the whole file, when Classifier is
// empty) that produced no predictions.
type Failure struct {
	AudioFile  string
	Classifier string
	Backbone   string
	Kind       string
	Message    string
	Err        error
}

// Result is the outcome of analyzing one file.
type Result struct {
	AudioFile  string
	Duration   float64
	SampleRate int
	// Predictions follow the order of the classifiers passed to Run.
	Predictions []Prediction
	Failures    []Failure
	EmbedCalls  int
	Elapsed     time.Duration
}

// Succeeded reports whether at least one classifier produced predictions.
func (r Result) Succeeded() bool {
	return len(r.Predictions) > 0
}

// Pipeline analyzes one file at a time against a set of classifiers.
type Pipeline struct {
	decoder Decoder
	engine  Engine
	logger  *slog.Logger
}

// New constructs a Pipeline. The engine must not be shared with another
// pipeline running concurrently.
func New(decoder Decoder, engine Engine, logger *slog.Logger) *Pipeline {
	return &Pipeline{
		decoder: decoder,
		engine:  engine,
		logger:  logging.NewComponentLogger(logger, "pipeline"),
	}
}

// Run evaluates every classifier against file. Each backbone's embeddings
// are computed once and shared by all classifiers that reference it. A
// decode or embedding failure fails that backbone's classifiers only; a
// prediction failure fails one classifier only.
func (p *Pipeline) Run(ctx context.Context, file string, classifiers []*models.ClassifierConfig) Result {
	started := time.Now()
	ctx = services.WithAudioFile(ctx, file)
	logger := logging.WithContext(ctx, p.logger)
	result := Result{AudioFile: file}
	cache := newEmbeddingCache(file, p.decoder, p.engine)

	order := make(map[*models.ClassifierConfig]int, len(classifiers))
	for i, clf := range classifiers {
		order[clf] = i
		if clf != nil && clf.Backbone == nil {
			p.fail(ctx, &result, clf, "", services.Wrap(services.ErrConfig, "pipeline", "group",
				fmt.Sprintf("classifier %s has no resolved backbone", clf.ID), nil))
		}
	}
	slots := make([]*Prediction, len(classifiers))

	for _, group := range models.GroupByBackbone(classifiers) {
		backbone := group.Backbone
		groupCtx := services.WithBackbone(ctx, backbone.Name)

		emb, err := cache.Embeddings(groupCtx, backbone)
		if err != nil {
			for _, clf := range group.Classifiers {
				p.fail(groupCtx, &result, clf, backbone.Name, err)
			}
			continue
		}
		logging.WithContext(groupCtx, p.logger).Debug("embeddings ready",
			logging.Int("segments", emb.Rows),
			logging.Int("features", emb.Cols),
			logging.Int("classifiers", len(group.Classifiers)),
		)

		for _, clf := range group.Classifiers {
			clfCtx := services.WithClassifier(groupCtx, clf.ID)
			pred, err := p.predict(clfCtx, clf, emb)
			if err != nil {
				p.fail(clfCtx, &result, clf, backbone.Name, err)
				continue
			}
			slots[order[clf]] = &Prediction{Classifier: clf, Matrix: pred}
		}
	}

	for _, slot := range slots {
		if slot != nil {
			result.Predictions = append(result.Predictions, *slot)
		}
	}
	if buf := cache.Decoded(); buf != nil {
		result.Duration = buf.Duration()
		result.SampleRate = buf.SampleRate
	}
	result.EmbedCalls = cache.EmbedCalls()
	result.Elapsed = time.Since(started)

	logger.Info("file analyzed",
		logging.String(logging.FieldEventType, "file_analyzed"),
		logging.Int("predictions", len(result.Predictions)),
		logging.Int("failures", len(result.Failures)),
		logging.Int("embeddings", result.EmbedCalls),
		logging.Duration("elapsed", result.Elapsed),
	)
	return result
}

func (p *Pipeline) predict(ctx context.Context, clf *models.ClassifierConfig, emb inference.Matrix) (inference.Matrix, error) {
	pred, err := p.engine.Predict(ctx, clf.Algorithm, emb, clf.Artifact, clf.InputNode, clf.OutputNode)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return inference.Matrix{}, ctxErr
		}
		return inference.Matrix{}, services.Wrap(services.ErrClassifier, "pipeline", "predict", clf.ID, err)
	}
	if pred.Cols != len(clf.Classes) {
		return inference.Matrix{}, services.Wrap(services.ErrClassifier, "pipeline", "predict",
			fmt.Sprintf("%s returned %d columns for %d classes", clf.ID, pred.Cols, len(clf.Classes)), nil)
	}
	if pred.Rows != emb.Rows {
		return inference.Matrix{}, services.Wrap(services.ErrClassifier, "pipeline", "predict",
			fmt.Sprintf("%s returned %d rows for %d segments", clf.ID, pred.Rows, emb.Rows), nil)
	}
	return pred, nil
}

func (p *Pipeline) fail(ctx context.Context, result *Result, clf *models.ClassifierConfig, backbone string, err error) {
	failure := Failure{
		AudioFile: result.AudioFile,
		Backbone:  backbone,
		Kind:      services.KindOf(err),
		Message:   err.Error(),
		Err:       err,
	}
	if clf != nil {
		failure.Classifier = clf.ID
	}
	result.Failures = append(result.Failures, failure)
	logging.WarnWithContext(logging.WithContext(ctx, p.logger), "classifier failed", failure.Kind+"_failure",
		logging.Hint(hintFor(failure.Kind)),
		logging.Impact("classifier omitted from this file's results"),
		logging.Error(err),
	)
}

func hintFor(kind string) string {
	switch kind {
	case services.KindDecode:
		return "check that the file is readable audio and ffmpeg can decode it"
	case services.KindBackbone:
		return "check the feature extractor graph and the bridge stderr"
	case services.KindClassifier:
		return "check the classification head graph and its class list"
	default:
		return "check logs for details"
	}
}
