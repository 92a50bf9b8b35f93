// Package postprocess runs the second pass over a saved session: it estimates
// each track's tempo and re-aggregates segment predictions into 16-bar
// phrases.
package postprocess
