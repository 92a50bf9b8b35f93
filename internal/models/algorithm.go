package models

import (
	"fmt"
	"strings"

	"technotaggr/internal/services"
)

// Algorithm identifies one of the runtime graph runners a descriptor may ask
// for. The set is closed: unknown names are rejected when the catalog loads.
type Algorithm int

const (
	AlgorithmUnknown Algorithm = iota
	// AlgorithmMusiCNN produces embeddings from mel patches of 187 frames.
	AlgorithmMusiCNN
	// AlgorithmEffnetDiscogs produces embeddings from batched 128-frame patches.
	AlgorithmEffnetDiscogs
	// AlgorithmPredict2D evaluates a classification head against an embedding matrix.
	AlgorithmPredict2D
)

var algorithmNames = map[Algorithm]string{
	AlgorithmMusiCNN:       "TensorflowPredictMusiCNN",
	AlgorithmEffnetDiscogs: "TensorflowPredictEffnetDiscogs",
	AlgorithmPredict2D:     "TensorflowPredict2D",
}

// ParseAlgorithm maps a descriptor algorithm name onto the typed enum.
func ParseAlgorithm(name string) (Algorithm, error) {
	trimmed := strings.TrimSpace(name)
	for alg, known := range algorithmNames {
		if known == trimmed {
			return alg, nil
		}
	}
	return AlgorithmUnknown, services.Wrap(services.ErrConfig, "models", "parse algorithm", fmt.Sprintf("unknown algorithm %q", name), nil)
}

// String returns the runtime name of the algorithm.
func (a Algorithm) String() string {
	if name, ok := algorithmNames[a]; ok {
		return name
	}
	return "unknown"
}

// ProducesEmbeddings reports whether the algorithm is a backbone runner.
func (a Algorithm) ProducesEmbeddings() bool {
	return a == AlgorithmMusiCNN || a == AlgorithmEffnetDiscogs
}

// Family returns the feature-extractors subdirectory holding backbones run by
// this algorithm.
func (a Algorithm) Family() string {
	switch a {
	case AlgorithmMusiCNN:
		return "musicnn"
	case AlgorithmEffnetDiscogs:
		return "discogs-effnet"
	default:
		return ""
	}
}

// MarshalText encodes the algorithm by its runtime name.
func (a Algorithm) MarshalText() ([]byte, error) {
	if a == AlgorithmUnknown {
		return nil, fmt.Errorf("marshal unknown algorithm")
	}
	return []byte(a.String()), nil
}

// UnmarshalText decodes a runtime algorithm name.
func (a *Algorithm) UnmarshalText(text []byte) error {
	parsed, err := ParseAlgorithm(string(text))
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}
