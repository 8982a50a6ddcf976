package convert

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"metapipe/internal/assets"
	"metapipe/internal/logging"
)

// animationAdvisories warns about animations that are likely too heavy for
// the runtime. They never block conversion, and a failed probe only warns.
func (o *Orchestrator) animationAdvisories(ctx context.Context, logger *slog.Logger, asset assets.Asset) []string {
	var warnings []string

	if o.opts.AnimationSizeWarnBytes > 0 {
		if info, err := os.Stat(asset.Path); err == nil && info.Size() > o.opts.AnimationSizeWarnBytes {
			msg := fmt.Sprintf("animation is %d bytes (advisory limit %d)", info.Size(), o.opts.AnimationSizeWarnBytes)
			warnings = append(warnings, msg)
			logging.WarnWithContext(logger, "animation file is large", "animation_size_advisory",
				logging.Int64("size_bytes", info.Size()),
				logging.Int64("limit_bytes", o.opts.AnimationSizeWarnBytes),
				logging.String(logging.FieldErrorHint, "consider shortening the animation or converting it to video"),
				logging.String(logging.FieldImpact, "slower page loads"))
		}
	}

	if o.opts.AnimationFrameWarn <= 0 || o.deps.Prober == nil {
		return warnings
	}
	result, err := o.deps.Prober.Inspect(ctx, asset.Path)
	if err != nil {
		logging.WarnWithContext(logger, "animation probe failed", "animation_probe_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "frame count advisory skipped"))
		return warnings
	}
	frames, err := result.FrameCount()
	if err != nil {
		logging.WarnWithContext(logger, "animation frame count unavailable", "animation_probe_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "frame count advisory skipped"))
		return warnings
	}
	if frames > o.opts.AnimationFrameWarn {
		msg := fmt.Sprintf("animation has %d frames (advisory limit %d)", frames, o.opts.AnimationFrameWarn)
		warnings = append(warnings, msg)
		logging.WarnWithContext(logger, "animation has many frames", "animation_frame_advisory",
			logging.Int("frames", frames),
			logging.Int("limit", o.opts.AnimationFrameWarn),
			logging.String(logging.FieldErrorHint, "consider a sprite sheet or a video asset"),
			logging.String(logging.FieldImpact, "large output files and slow decoding"))
	}
	return warnings
}
