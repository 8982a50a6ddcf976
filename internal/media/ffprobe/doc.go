// Package ffprobe provides a typed wrapper around ffprobe JSON output.
//
// Key types:
//   - Result: parsed ffprobe output containing streams and format metadata
//   - Stream: per-stream codec, duration, and frame count
//   - Client: binds a binary name so callers can inject a fake prober
//
// Result.DurationSeconds and Result.FrameCount return errors marked with
// services.ErrProbe when ffprobe reports no usable value.
package ffprobe
