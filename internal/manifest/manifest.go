// Package manifest builds and persists the declarative description of the
// formats available to the runtime.
package manifest

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/pmezard/go-difflib/difflib"

	"metapipe/internal/assets"
	"metapipe/internal/fileutil"
	"metapipe/internal/services"
)

// Formats lists the file suffixes a runtime may request.
type Formats struct {
	Formats []string `json:"formats"`
}

// Sounds adds per-track durations, keyed by basename, in seconds.
type Sounds struct {
	Formats       []string           `json:"formats"`
	TrackDuration map[string]float64 `json:"trackDuration"`
}

// Manifest is the build manifest consumed by the game runtime.
type Manifest struct {
	Prod        bool    `json:"prod"`
	GameVersion string  `json:"gameVersion"`
	Textures    Formats `json:"textures"`
	Sounds      Sounds  `json:"sounds"`
	Video       Formats `json:"video"`
}

// Build assembles a manifest. Production manifests declare every transcoded
// format; development manifests declare only the source formats.
func Build(prod bool, version string, durations map[string]float64) Manifest {
	track := make(map[string]float64, len(durations))
	for base, seconds := range durations {
		track[base] = seconds
	}
	return Manifest{
		Prod:        prod,
		GameVersion: version,
		Textures:    Formats{Formats: formatsFor(assets.Image, prod)},
		Sounds:      Sounds{Formats: formatsFor(assets.Sound, prod), TrackDuration: track},
		Video:       Formats{Formats: formatsFor(assets.Video, prod)},
	}
}

func formatsFor(kind assets.Kind, prod bool) []string {
	if !prod {
		return []string{kind.SourceFormat()}
	}
	return kind.OutputSuffixes()
}

// Encode renders m as indented JSON with a trailing newline.
func Encode(m Manifest) ([]byte, error) {
	if m.Sounds.TrackDuration == nil {
		m.Sounds.TrackDuration = map[string]float64{}
	}
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return nil, err
	}
	return append(data, '\n'), nil
}

// Write replaces dir/name atomically with m.
func Write(dir, name string, m Manifest) (string, error) {
	target := filepath.Join(dir, name)
	data, err := Encode(m)
	if err != nil {
		return target, services.Wrap(services.ErrConfig, "manifest", "encode", target, err)
	}
	if err := fileutil.WriteFileAtomic(target, data, 0o644); err != nil {
		return target, services.Wrap(services.ErrConfig, "manifest", "write", target, err)
	}
	return target, nil
}

// Read loads a manifest previously written by Write.
func Read(path string) (Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Manifest{}, services.Wrap(services.ErrConfig, "manifest", "read", path, err)
	}
	var m Manifest
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&m); err != nil {
		return Manifest{}, services.Wrap(services.ErrConfig, "manifest", "decode", path, err)
	}
	return m, nil
}

// Remove deletes dir/name if present.
func Remove(dir, name string) (bool, error) {
	target := filepath.Join(dir, name)
	removed, err := fileutil.RemoveIfExists(target)
	if err != nil {
		return false, services.Wrap(services.ErrConfig, "manifest", "remove", target, err)
	}
	return removed, nil
}

// Diff returns a unified diff from current to expected, or "" when they
// encode identically.
func Diff(current, expected Manifest, currentName, expectedName string) (string, error) {
	a, err := Encode(current)
	if err != nil {
		return "", err
	}
	b, err := Encode(expected)
	if err != nil {
		return "", err
	}
	if bytes.Equal(a, b) {
		return "", nil
	}
	diff, err := difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
		A:        difflib.SplitLines(string(a)),
		B:        difflib.SplitLines(string(b)),
		FromFile: currentName,
		ToFile:   expectedName,
		Context:  3,
	})
	if err != nil {
		return "", fmt.Errorf("diff manifests: %w", err)
	}
	return diff, nil
}
