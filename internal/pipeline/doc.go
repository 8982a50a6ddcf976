// Package pipeline sequences one metapipe run: classify the source tree, load
// the fingerprint store, reclaim stale outputs, convert every kind
// concurrently, persist the store, then write the manifest and (for builds)
// transfer outputs into the distribution tree.
//
// Stage results travel in an explicit State value. A storage-directory lock
// keeps two runs from sharing one cache.
package pipeline
