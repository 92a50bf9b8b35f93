// Package preflight provides readiness checks for the directories, binaries
// and model bundle an analysis run depends on.
//
// The analyze command calls RunAll before decoding anything so a missing
// models directory or unwritable output directory fails in seconds instead of
// after the first file. The deps command renders the same checks together with
// CheckSystemDeps.
package preflight
