// Package services defines shared utilities consumed by the pipeline stages
// and the external media tools they drive.
//
// Key responsibilities:
//   - Context helpers that stamp run IDs, stage names, and asset kinds for
//     logging.
//   - Structured error markers plus the Wrap helper so every failure carries
//     the stage, operation, and asset it happened on.
//   - Exit code mapping for the CLI.
//
// Use these helpers when wiring new stage logic so failures stay uniform
// across the pipeline.
package services
