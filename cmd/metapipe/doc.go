// Package main hosts the metapipe CLI entrypoint and command graph.
//
// The Cobra-based command tree resolves configuration (file, then flag
// overrides), builds the structured logger, and hands each invocation to the
// pipeline: full production builds, cache warming, development manifests,
// and hash-only refreshes. Maintenance commands inspect and clear the storage
// cache, compare the manifest on disk with the one a build would write, and
// report tool availability.
//
// Keep this package lean: add new functionality by extending the internal
// packages first, then surface it through dedicated commands or flags here.
package main
