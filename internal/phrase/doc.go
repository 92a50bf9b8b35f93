// Package phrase turns per-segment classifier predictions into 16-bar phrase
// summaries.
//
// A phrase lasts 16*4*60/bpm seconds, which rarely lines up with a whole
// number of backbone segments. Windows places each phrase boundary at the
// rounded cumulative position so drift stays within one segment for the
// whole track.
package phrase
