// Package services defines shared utilities consumed by the analysis pipeline
// and its external integrations.
//
// Key responsibilities:
//   - Context helpers that stamp session IDs, audio files, classifiers, and
//     backbones for logging and tracing.
//   - Structured error markers plus the Wrap helper. Every pipeline failure
//     carries one marker so it can be isolated to the smallest unit that
//     caused it (classifier, backbone, or file) and reported with a kind in
//     the session document.
//
// Use these helpers when wiring new pipeline logic so failure handling and
// observability stay uniform.
package services
