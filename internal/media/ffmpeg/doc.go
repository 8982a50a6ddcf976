// Package ffmpeg runs single-output ffmpeg transcodes.
//
// Runner.Encode writes to a hidden partial file beside the destination and
// renames it into place only after ffmpeg exits cleanly, so an interrupted
// encode never leaves a truncated output that looks converted. Failures carry
// services.ErrEncode and the tail of ffmpeg's output.
package ffmpeg
