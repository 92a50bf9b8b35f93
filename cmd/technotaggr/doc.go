// Package main hosts the technotaggr CLI entrypoint and command graph.
//
// The Cobra command tree turns terminal invocations into analysis runs,
// postprocess passes over saved sessions, model bundle maintenance, run
// history queries and configuration scaffolding. Configuration loading and
// logger construction live in commandContext so subcommands only wire the
// internal packages together and render their results.
package main
