// Package logs reads the technotaggr log file for `technotaggr logs`.
//
// Tail returns the last lines (optionally only those mentioning a session id)
// with bounded memory, and Follow polls the file for appended lines until
// the context ends, starting over when the file is truncated.
package logs
