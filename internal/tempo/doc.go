// Package tempo estimates track tempo for the phrase aggregation pass.
//
// The bridge backend uses the inference runtime's beat tracker. The native
// backend computes a spectral-flux onset envelope with go-dsp and picks the
// strongest autocorrelation peak inside the configured BPM range.
package tempo
