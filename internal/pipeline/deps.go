package pipeline

import (
	"log/slog"

	"metapipe/internal/config"
	"metapipe/internal/convert"
	"metapipe/internal/media/drapto"
	"metapipe/internal/media/ffmpeg"
	"metapipe/internal/media/ffprobe"
	"metapipe/internal/media/imagecodec"
)

// Deps are the media collaborators a run drives.
type Deps struct {
	Transcoder convert.Transcoder
	Images     convert.ImageEncoder
	AV1        convert.AV1Encoder
	Prober     convert.Prober
}

// NewDeps wires the real ffmpeg, ffprobe, libvips, and (when configured)
// drapto collaborators.
func NewDeps(cfg *config.Config, logger *slog.Logger) Deps {
	runner := ffmpeg.New(cfg.FFmpegBinary())
	deps := Deps{
		Transcoder: runner,
		Images:     imagecodec.New(),
		Prober:     ffprobe.Client{Binary: cfg.FFprobeBinary()},
	}
	if cfg.Tools.AV1Encoder == config.AV1EncoderDrapto {
		deps.AV1 = drapto.New(runner, logger)
	}
	return deps
}

func (d Deps) convertDeps() convert.Deps {
	return convert.Deps{
		Transcoder: d.Transcoder,
		Images:     d.Images,
		AV1:        d.AV1,
		Prober:     d.Prober,
	}
}
