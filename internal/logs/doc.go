// Package logs reads the metapipe log file for the CLI: the last N lines,
// optionally filtered to one run, and a polling follow mode for watching a
// build from another terminal.
package logs
