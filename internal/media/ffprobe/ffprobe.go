package ffprobe

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os/exec"
	"strconv"
	"strings"

	"metapipe/internal/services"
)

// Result represents the parsed output from an ffprobe inspection.
type Result struct {
	Streams []Stream `json:"streams"`
	Format  Format   `json:"format"`
}

// Stream describes a single stream in the media container.
type Stream struct {
	Index      int    `json:"index"`
	CodecName  string `json:"codec_name"`
	CodecType  string `json:"codec_type"`
	Duration   string `json:"duration"`
	NBFrames   string `json:"nb_frames"`
	Width      int    `json:"width"`
	Height     int    `json:"height"`
	SampleRate string `json:"sample_rate"`
	Channels   int    `json:"channels"`
}

// Format captures container-level metadata extracted by ffprobe.
type Format struct {
	Filename   string `json:"filename"`
	NBStreams  int    `json:"nb_streams"`
	Duration   string `json:"duration"`
	Size       string `json:"size"`
	BitRate    string `json:"bit_rate"`
	FormatName string `json:"format_name"`
}

// Client runs a configured ffprobe binary.
type Client struct {
	Binary string
}

// Inspect probes path with the client's binary.
func (c Client) Inspect(ctx context.Context, path string) (Result, error) {
	return Inspect(ctx, c.Binary, path)
}

// Inspect executes ffprobe against the provided path and decodes the JSON response.
func Inspect(ctx context.Context, binary string, path string) (Result, error) {
	binary = strings.TrimSpace(binary)
	if binary == "" {
		binary = "ffprobe"
	}
	path = strings.TrimSpace(path)
	if path == "" {
		return Result{}, services.Wrap(services.ErrProbe, "ffprobe", "inspect", "", errors.New("empty path"))
	}

	cmd := exec.CommandContext(ctx, binary, "-v", "error", "-hide_banner", "-show_format", "-show_streams", "-of", "json", "--", path)
	output, err := cmd.CombinedOutput()
	if err != nil {
		return Result{}, services.Wrap(services.ErrProbe, "ffprobe", "inspect", path,
			fmt.Errorf("%w: %s", err, strings.TrimSpace(string(output))))
	}
	return Parse(output)
}

// Parse decodes raw ffprobe JSON output.
func Parse(data []byte) (Result, error) {
	var result Result
	if err := json.Unmarshal(data, &result); err != nil {
		return Result{}, services.Wrap(services.ErrProbe, "ffprobe", "parse", "", err)
	}
	return result, nil
}

// DurationSeconds returns the first stream's duration, falling back to the
// container duration.
func (r Result) DurationSeconds() (float64, error) {
	if len(r.Streams) > 0 {
		if d, ok := positive(r.Streams[0].Duration); ok {
			return d, nil
		}
	}
	if d, ok := positive(r.Format.Duration); ok {
		return d, nil
	}
	return 0, services.Wrap(services.ErrProbe, "ffprobe", "duration", "no usable duration field", nil)
}

// FrameCount returns nb_frames of the first video stream.
func (r Result) FrameCount() (int, error) {
	for _, stream := range r.Streams {
		if stream.CodecType != "" && !strings.EqualFold(stream.CodecType, "video") {
			continue
		}
		value := strings.TrimSpace(stream.NBFrames)
		if value == "" {
			break
		}
		frames, err := strconv.Atoi(value)
		if err != nil || frames < 0 {
			return 0, services.Wrap(services.ErrProbe, "ffprobe", "frame count", fmt.Sprintf("invalid nb_frames %q", value), err)
		}
		return frames, nil
	}
	return 0, services.Wrap(services.ErrProbe, "ffprobe", "frame count", "no nb_frames field", nil)
}

func positive(value string) (float64, bool) {
	parsed := parseFloat(value)
	if math.IsNaN(parsed) || math.IsInf(parsed, 0) || parsed <= 0 {
		return 0, false
	}
	return parsed, true
}

func parseFloat(value string) float64 {
	cleaned := strings.TrimSpace(value)
	if cleaned == "" || cleaned == "N/A" {
		return 0
	}
	if parsed, err := strconv.ParseFloat(cleaned, 64); err == nil {
		return parsed
	}
	return math.NaN()
}
