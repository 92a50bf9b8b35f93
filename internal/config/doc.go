// Package config loads, normalizes, and validates technotaggr configuration.
//
// Configuration lives in a TOML file (default ~/.config/technotaggr/config.toml,
// falling back to ./technotaggr.toml). Missing files are not an error: Load
// returns repository defaults with every path expanded. Two environment
// variables override paths for scripted runs: TECHNOTAGGR_MODELS_DIR and
// TECHNOTAGGR_OUTPUT_DIR.
package config
