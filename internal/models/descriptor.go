package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"strconv"

	"technotaggr/internal/services"
)

// Descriptor is one model metadata document as published next to each graph.
type Descriptor struct {
	Name             string          `json:"name"`
	Version          looseString     `json:"version"`
	Description      string          `json:"description"`
	Author           string          `json:"author"`
	Email            string          `json:"email"`
	ReleaseDate      string          `json:"release_date"`
	Framework        string          `json:"framework"`
	FrameworkVersion looseString     `json:"framework_version"`
	Dataset          json.RawMessage `json:"dataset"`
	Classes          []string        `json:"classes"`
	Inference        InferenceSpec   `json:"inference"`
	Schema           Schema          `json:"schema"`
}

// InferenceSpec is the runtime section of a descriptor. Algorithm and
// SampleRate are pointers so a missing field can be told apart from a zero.
type InferenceSpec struct {
	Algorithm      *string       `json:"algorithm"`
	SampleRate     *int          `json:"sample_rate"`
	EmbeddingModel *EmbeddingRef `json:"embedding_model"`
}

// EmbeddingRef is a classifier's reference to the backbone it consumes.
type EmbeddingRef struct {
	Algorithm string `json:"algorithm"`
	ModelName string `json:"model_name"`
}

// Schema lists the graph's declared input and output nodes.
type Schema struct {
	Inputs  []Node `json:"inputs"`
	Outputs []Node `json:"outputs"`
}

// Node is one declared graph tensor.
type Node struct {
	Name          string `json:"name"`
	Type          string `json:"type"`
	Shape         []any  `json:"shape"`
	OutputPurpose string `json:"output_purpose"`
}

// ParseDescriptor decodes a metadata document. Any JSON type mismatch is a
// configuration error; field presence is checked later by Resolve.
func ParseDescriptor(data []byte) (Descriptor, error) {
	var doc Descriptor
	dec := json.NewDecoder(bytes.NewReader(data))
	if err := dec.Decode(&doc); err != nil {
		return Descriptor{}, services.Wrap(services.ErrConfig, "models", "parse descriptor", "malformed metadata", err)
	}
	return doc, nil
}

// LoadDescriptor reads and parses a metadata document from disk.
func LoadDescriptor(path string) (Descriptor, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Descriptor{}, services.Wrap(services.ErrConfig, "models", "read descriptor", path, err)
	}
	doc, err := ParseDescriptor(data)
	if err != nil {
		return Descriptor{}, fmt.Errorf("%s: %w", path, err)
	}
	return doc, nil
}

// DatasetName returns the training dataset name, accepting either the object
// form ({"name": ...}) or a bare string.
func (d Descriptor) DatasetName() string {
	if len(d.Dataset) == 0 {
		return ""
	}
	var named struct {
		Name string `json:"name"`
	}
	if err := json.Unmarshal(d.Dataset, &named); err == nil {
		return named.Name
	}
	var plain string
	if err := json.Unmarshal(d.Dataset, &plain); err == nil {
		return plain
	}
	return ""
}

// looseString accepts a JSON string or number. Published descriptors are not
// consistent about quoting version fields.
type looseString string

func (s *looseString) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var v string
		if err := json.Unmarshal(data, &v); err != nil {
			return err
		}
		*s = looseString(v)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("expected string or number, got %s", data)
	}
	*s = looseString(n.String())
	return nil
}

func (s looseString) String() string { return string(s) }

// shapeDim converts one declared shape entry to an integer dimension. Named
// dimensions such as "batch_size" report ok=false.
func shapeDim(v any) (int, bool) {
	switch n := v.(type) {
	case float64:
		if n != float64(int(n)) {
			return 0, false
		}
		return int(n), true
	case string:
		parsed, err := strconv.Atoi(n)
		if err != nil {
			return 0, false
		}
		return parsed, true
	default:
		return 0, false
	}
}
