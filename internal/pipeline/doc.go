// Package pipeline evaluates classification heads against audio files.
//
// Run groups classifiers by backbone, decodes the file once per distinct
// sample rate, embeds once per backbone, and feeds the shared embeddings to
// every head in the group. Failures stay with the smallest unit that caused
// them. Batch spreads files over a bounded worker pool where each worker
// owns its own engine.
package pipeline
