package deps

import (
	"bufio"
	"context"
	"fmt"
	"os/exec"
	"sort"
	"strings"
	"time"
)

// RequiredEncoders lists the ffmpeg encoders the conversion presets use.
var RequiredEncoders = []string{
	"aac",
	"libaom-av1",
	"libmp3lame",
	"libopus",
	"libsvtav1",
	"libvorbis",
	"libwebp_anim",
	"libx264",
}

// CheckFFmpegEncoders runs `ffmpeg -encoders` and reports which required
// encoders the build lacks.
func CheckFFmpegEncoders(ctx context.Context, binary string) Status {
	status := Status{Requirement: Requirement{
		Name:        "FFmpeg encoders",
		Command:     binary,
		Description: "Codecs used by the sound, animation, and video presets",
	}}
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	out, err := exec.CommandContext(ctx, binary, "-hide_banner", "-encoders").Output()
	if err != nil {
		status.Detail = fmt.Sprintf("list encoders: %v", err)
		return status
	}
	missing := MissingEncoders(ParseEncoders(string(out)), RequiredEncoders)
	if len(missing) > 0 {
		status.Detail = "missing " + strings.Join(missing, ", ")
		return status
	}
	status.Available = true
	return status
}

// ParseEncoders extracts encoder names from `ffmpeg -encoders` output. Lines
// start with a six-character capability field followed by the name.
func ParseEncoders(output string) map[string]struct{} {
	names := make(map[string]struct{})
	scanner := bufio.NewScanner(strings.NewReader(output))
	inTable := false
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if strings.HasPrefix(line, "------") {
			inTable = true
			continue
		}
		if !inTable {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 2 || len(fields[0]) != 6 {
			continue
		}
		names[fields[1]] = struct{}{}
	}
	return names
}

// MissingEncoders returns the required names absent from available, sorted.
func MissingEncoders(available map[string]struct{}, required []string) []string {
	var missing []string
	for _, name := range required {
		if _, ok := available[name]; !ok {
			missing = append(missing, name)
		}
	}
	sort.Strings(missing)
	return missing
}
