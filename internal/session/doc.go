// Package session assembles, persists, and reloads the JSON document that
// records one analysis run.
package session
