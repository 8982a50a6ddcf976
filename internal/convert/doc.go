// Package convert runs the per-kind conversion orchestrators.
//
// An Orchestrator fingerprints every asset of its kind, skips assets whose
// stored fingerprint matches and whose outputs are all present, and converts
// the rest by launching every target format at once. Assets run concurrently
// and a failing asset never cancels its siblings: each finished asset updates
// its own fingerprint entry and the first failure is reported after all
// assets settle. A failed asset keeps its old fingerprint so the next run
// retries it.
//
// Durations probes every sound asset on every run, independent of the cache.
package convert
