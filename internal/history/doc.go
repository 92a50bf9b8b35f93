// Package history keeps a SQLite ledger of analysis sessions and their
// failures so past runs can be listed without opening every results file.
//
// A session is recorded once after analysis and again after postprocessing;
// the second write replaces the first.
package history
