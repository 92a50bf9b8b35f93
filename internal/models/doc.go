// Package models resolves model metadata into typed backbone and classifier
// configurations and discovers them in a model bundle.
//
// A bundle has two trees. classification-heads/<head>/<head>-<variant>.json
// describes one classifier and sits next to its graph. feature-extractors/
// <family>/ holds the backbones those classifiers reference by name. Resolve
// is pure and works on a single descriptor; Scan and Discover walk a bundle,
// share one *BackboneConfig per referenced backbone, and skip unusable
// classifiers with a warning instead of failing. Download fetches a bundle
// from the published model tree.
package models
