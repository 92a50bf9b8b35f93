package models

import (
	"fmt"
	"math"
	"path/filepath"
	"strings"

	"technotaggr/internal/services"
)

const (
	// PatchesPerSecond converts a backbone's declared input patch length to
	// seconds of audio.
	PatchesPerSecond = 64

	purposeEmbeddings  = "embeddings"
	purposePredictions = "predictions"
)

// BackboneConfig identifies a feature extractor shared by many classifiers.
type BackboneConfig struct {
	// Name is the reference classifiers use (the artifact stem, e.g. msd-musicnn-1).
	Name        string
	DisplayName string
	Version     string
	Algorithm   Algorithm
	Artifact    string
	SampleRate  int
	OutputNode  string
	PatchSize   int
	// SegmentDuration is the seconds of audio one embedding row represents.
	SegmentDuration float64
}

// Key identifies the backbone within a bundle. Extractors in different
// families may share a Name, so the family is part of the key.
func (b *BackboneConfig) Key() string {
	return backboneKey(b.Algorithm, b.Name)
}

func backboneKey(alg Algorithm, name string) string {
	return alg.Family() + "/" + name
}

// BackboneRef is a classifier's unresolved pointer to its backbone.
type BackboneRef struct {
	Name      string
	Algorithm Algorithm
}

// Metadata carries descriptive fields that do not affect inference.
type Metadata struct {
	Author           string
	Email            string
	ReleaseDate      string
	Framework        string
	FrameworkVersion string
	Dataset          string
}

// ClassifierConfig identifies one classification head. Backbone is filled in by
// the catalog and shared by pointer between heads that use the same extractor.
type ClassifierConfig struct {
	// ID is the artifact stem (e.g. mood_happy-msd-musicnn-1) and is unique in a catalog.
	ID          string
	Name        string
	Version     string
	Description string
	Algorithm   Algorithm
	Artifact    string
	SampleRate  int
	Classes     []string
	InputNode   string
	OutputNode  string
	BackboneRef BackboneRef
	Backbone    *BackboneConfig
	Metadata    Metadata
}

// Resolved is either *BackboneConfig or *ClassifierConfig.
type Resolved interface {
	ModelName() string
	resolved()
}

func (b *BackboneConfig) ModelName() string { return b.Name }

func (c *ClassifierConfig) ModelName() string { return c.Name }

func (*BackboneConfig) resolved() {}

func (*ClassifierConfig) resolved() {}

// Resolve turns a descriptor into a typed configuration. A descriptor that
// references an embedding model is a classifier; anything else is a backbone.
// artifact is the path of the graph the descriptor belongs to. Resolve does no
// I/O.
func Resolve(doc Descriptor, artifact string) (Resolved, error) {
	if doc.Inference.EmbeddingModel != nil {
		return ResolveClassifier(doc, artifact)
	}
	return ResolveBackbone(doc, artifact)
}

// ResolveBackbone resolves a feature-extractor descriptor.
func ResolveBackbone(doc Descriptor, artifact string) (*BackboneConfig, error) {
	alg, err := requireAlgorithm(doc)
	if err != nil {
		return nil, err
	}
	if !alg.ProducesEmbeddings() {
		return nil, configError("resolve backbone", fmt.Sprintf("algorithm %s does not produce embeddings", alg))
	}
	rate, err := requireSampleRate(doc)
	if err != nil {
		return nil, err
	}
	output, err := outputByPurpose(doc.Schema, purposeEmbeddings)
	if err != nil {
		return nil, err
	}
	patch, err := patchSize(doc.Schema)
	if err != nil {
		return nil, err
	}
	segment := SegmentDurationForPatch(patch)
	if segment <= 0 {
		return nil, configError("resolve backbone", fmt.Sprintf("patch size %d yields a zero segment duration", patch))
	}

	return &BackboneConfig{
		Name:            nameFor(doc, artifact, true),
		DisplayName:     strings.TrimSpace(doc.Name),
		Version:         versionOf(doc),
		Algorithm:       alg,
		Artifact:        artifact,
		SampleRate:      rate,
		OutputNode:      output,
		PatchSize:       patch,
		SegmentDuration: segment,
	}, nil
}

// ResolveClassifier resolves a classification-head descriptor. The backbone
// reference is validated but left unresolved.
func ResolveClassifier(doc Descriptor, artifact string) (*ClassifierConfig, error) {
	ref := doc.Inference.EmbeddingModel
	if ref == nil {
		return nil, configError("resolve classifier", "embedding_model is required")
	}
	alg, err := requireAlgorithm(doc)
	if err != nil {
		return nil, err
	}
	if alg != AlgorithmPredict2D {
		return nil, configError("resolve classifier", fmt.Sprintf("algorithm %s cannot evaluate embeddings", alg))
	}
	rate, err := requireSampleRate(doc)
	if err != nil {
		return nil, err
	}
	if len(doc.Schema.Inputs) == 0 || strings.TrimSpace(doc.Schema.Inputs[0].Name) == "" {
		return nil, configError("resolve classifier", "schema declares no input node")
	}
	output, err := outputByPurpose(doc.Schema, purposePredictions)
	if err != nil {
		return nil, err
	}
	if len(doc.Classes) == 0 {
		return nil, configError("resolve classifier", "classes must not be empty")
	}

	refAlg, err := ParseAlgorithm(ref.Algorithm)
	if err != nil {
		return nil, err
	}
	if !refAlg.ProducesEmbeddings() {
		return nil, configError("resolve classifier", fmt.Sprintf("embedding_model algorithm %s does not produce embeddings", refAlg))
	}
	refName := strings.TrimSpace(ref.ModelName)
	if refName == "" {
		return nil, configError("resolve classifier", "embedding_model.model_name is required")
	}

	return &ClassifierConfig{
		ID:          nameFor(doc, artifact, true),
		Name:        nameFor(doc, artifact, false),
		Version:     versionOf(doc),
		Description: strings.TrimSpace(doc.Description),
		Algorithm:   alg,
		Artifact:    artifact,
		SampleRate:  rate,
		Classes:     append([]string(nil), doc.Classes...),
		InputNode:   doc.Schema.Inputs[0].Name,
		OutputNode:  output,
		BackboneRef: BackboneRef{Name: refName, Algorithm: refAlg},
		Metadata: Metadata{
			Author:           doc.Author,
			Email:            doc.Email,
			ReleaseDate:      doc.ReleaseDate,
			Framework:        doc.Framework,
			FrameworkVersion: doc.FrameworkVersion.String(),
			Dataset:          doc.DatasetName(),
		},
	}, nil
}

// SegmentDurationForPatch converts a patch length to whole seconds, rounding
// to the nearest second.
func SegmentDurationForPatch(patch int) float64 {
	if patch <= 0 {
		return 0
	}
	return math.Round(float64(patch) / PatchesPerSecond)
}

func requireAlgorithm(doc Descriptor) (Algorithm, error) {
	if doc.Inference.Algorithm == nil || strings.TrimSpace(*doc.Inference.Algorithm) == "" {
		return AlgorithmUnknown, configError("resolve", "inference.algorithm is required")
	}
	return ParseAlgorithm(*doc.Inference.Algorithm)
}

func requireSampleRate(doc Descriptor) (int, error) {
	if doc.Inference.SampleRate == nil {
		return 0, configError("resolve", "inference.sample_rate is required")
	}
	if *doc.Inference.SampleRate <= 0 {
		return 0, configError("resolve", fmt.Sprintf("inference.sample_rate must be positive, got %d", *doc.Inference.SampleRate))
	}
	return *doc.Inference.SampleRate, nil
}

// outputByPurpose finds the single output node tagged with purpose.
func outputByPurpose(schema Schema, purpose string) (string, error) {
	var matches []string
	for _, node := range schema.Outputs {
		if node.OutputPurpose == purpose {
			matches = append(matches, node.Name)
		}
	}
	switch len(matches) {
	case 0:
		return "", configError("resolve output", fmt.Sprintf("no output tagged %q", purpose))
	case 1:
		if strings.TrimSpace(matches[0]) == "" {
			return "", configError("resolve output", fmt.Sprintf("output tagged %q has no name", purpose))
		}
		return matches[0], nil
	default:
		return "", configError("resolve output", fmt.Sprintf("%d outputs tagged %q: %s", len(matches), purpose, strings.Join(matches, ", ")))
	}
}

// patchSize reads the time dimension of the first input: shape[0] for a
// [time, features] input and shape[1] for [batch, time, features].
func patchSize(schema Schema) (int, error) {
	if len(schema.Inputs) == 0 {
		return 0, configError("resolve backbone", "schema declares no input node")
	}
	shape := schema.Inputs[0].Shape
	var raw any
	switch len(shape) {
	case 2:
		raw = shape[0]
	case 3:
		raw = shape[1]
	default:
		return 0, configError("resolve backbone", fmt.Sprintf("unexpected input shape %v", shape))
	}
	patch, ok := shapeDim(raw)
	if !ok || patch <= 0 {
		return 0, configError("resolve backbone", fmt.Sprintf("input patch size %v is not a positive integer", raw))
	}
	return patch, nil
}

func nameFor(doc Descriptor, artifact string, preferArtifact bool) string {
	stem := strings.TrimSuffix(filepath.Base(artifact), filepath.Ext(artifact))
	if artifact == "" {
		stem = ""
	}
	name := strings.TrimSpace(doc.Name)
	if preferArtifact && stem != "" {
		return stem
	}
	if name != "" {
		return name
	}
	return stem
}

func versionOf(doc Descriptor) string {
	if v := strings.TrimSpace(doc.Version.String()); v != "" {
		return v
	}
	return "unknown"
}

func configError(operation, message string) error {
	return services.Wrap(services.ErrConfig, "models", operation, message, nil)
}
