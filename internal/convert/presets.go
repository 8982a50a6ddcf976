package convert

import (
	"fmt"

	"metapipe/internal/assets"
)

// soundCommon resamples every audio rendition to 44.1 kHz stereo.
var soundCommon = []string{"-vn", "-ar", "44100", "-ac", "2"}

var presets = map[assets.Kind]map[string][]string{
	assets.Sound: {
		"mp3": {"-f", "mp3", "-aq", "6"},
		"ogg": {"-acodec", "libvorbis", "-f", "ogg", "-aq", "2"},
		"m4a": {"-ab", "96k", "-strict", "-2"},
	},
	assets.Animation: {
		"gif":  {"-lavfi", "split[a][b];[a]palettegen=stats_mode=diff[p];[b][p]paletteuse=dither=bayer", "-loop", "0", "-f", "gif"},
		"webp": {"-an", "-c:v", "libwebp_anim", "-lossless", "0", "-q:v", "75", "-loop", "0", "-f", "webp"},
		"avif": {"-an", "-c:v", "libaom-av1", "-crf", "32", "-b:v", "0", "-pix_fmt", "yuv420p", "-f", "avif"},
	},
	assets.Video: {
		"h264": {"-c:v", "libx264", "-preset", "slow", "-crf", "23", "-pix_fmt", "yuv420p", "-c:a", "aac", "-b:a", "128k", "-movflags", "+faststart", "-f", "mp4"},
		"av1":  {"-c:v", "libsvtav1", "-preset", "8", "-crf", "35", "-pix_fmt", "yuv420p10le", "-c:a", "libopus", "-b:a", "96k", "-f", "webm"},
	},
}

// Args returns the ffmpeg arguments placed between the input and the output
// for format f of kind k.
func Args(k assets.Kind, f assets.Format) ([]string, error) {
	byName, ok := presets[k]
	if !ok {
		return nil, fmt.Errorf("no ffmpeg presets for %s assets", k)
	}
	args, ok := byName[f.Name]
	if !ok {
		return nil, fmt.Errorf("no ffmpeg preset for %s %s", k, f.Name)
	}
	out := make([]string, 0, len(soundCommon)+len(args))
	if k == assets.Sound {
		out = append(out, soundCommon...)
	}
	return append(out, args...), nil
}
