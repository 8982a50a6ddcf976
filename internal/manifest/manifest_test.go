package manifest_test

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"metapipe/internal/manifest"
	"metapipe/internal/services"
)

func TestBuildProdDeclaresTranscodedFormats(t *testing.T) {
	m := manifest.Build(true, "1.2.3", map[string]float64{"music/theme": 92.5})
	if !reflect.DeepEqual(m.Textures.Formats, []string{".avif", ".png", ".webp"}) {
		t.Fatalf("textures = %v", m.Textures.Formats)
	}
	if !reflect.DeepEqual(m.Sounds.Formats, []string{".m4a", ".mp3", ".ogg"}) {
		t.Fatalf("sounds = %v", m.Sounds.Formats)
	}
	if !reflect.DeepEqual(m.Video.Formats, []string{".mp4", ".webm"}) {
		t.Fatalf("video = %v", m.Video.Formats)
	}
	if m.Sounds.TrackDuration["music/theme"] != 92.5 || !m.Prod || m.GameVersion != "1.2.3" {
		t.Fatalf("unexpected manifest %+v", m)
	}
}

func TestBuildDevDeclaresSourceFormats(t *testing.T) {
	m := manifest.Build(false, "0.0.0", nil)
	if !reflect.DeepEqual(m.Textures.Formats, []string{".png"}) {
		t.Fatalf("textures = %v", m.Textures.Formats)
	}
	if !reflect.DeepEqual(m.Sounds.Formats, []string{".wav"}) || !reflect.DeepEqual(m.Video.Formats, []string{".mp4"}) {
		t.Fatalf("unexpected dev formats %+v", m)
	}
}

func TestEncodeShape(t *testing.T) {
	data, err := manifest.Encode(manifest.Build(false, "0.0.1", map[string]float64{"a": 1.5}))
	if err != nil {
		t.Fatal(err)
	}
	want := `{
  "prod": false,
  "gameVersion": "0.0.1",
  "textures": {
    "formats": [
      ".png"
    ]
  },
  "sounds": {
    "formats": [
      ".wav"
    ],
    "trackDuration": {
      "a": 1.5
    }
  },
  "video": {
    "formats": [
      ".mp4"
    ]
  }
}
`
	if string(data) != want {
		t.Fatalf("encoded manifest:\n%s", data)
	}
}

func TestWriteReadRemove(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "dist")
	m := manifest.Build(true, "2.0.0", map[string]float64{"sfx/jump": 0.25})

	path, err := manifest.Write(dir, "meta.json", m)
	if err != nil {
		t.Fatalf("Write: %v", err)
	}
	got, err := manifest.Read(path)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if !reflect.DeepEqual(got, m) {
		t.Fatalf("read back %+v, want %+v", got, m)
	}

	removed, err := manifest.Remove(dir, "meta.json")
	if err != nil || !removed {
		t.Fatalf("Remove = %v, %v", removed, err)
	}
	if removed, err := manifest.Remove(dir, "meta.json"); err != nil || removed {
		t.Fatalf("second Remove = %v, %v", removed, err)
	}
}

func TestReadFailuresAreConfigErrors(t *testing.T) {
	dir := t.TempDir()
	if _, err := manifest.Read(filepath.Join(dir, "absent.json")); !errors.Is(err, services.ErrConfig) {
		t.Fatalf("missing manifest: %v", err)
	}
	bad := filepath.Join(dir, "bad.json")
	if err := os.WriteFile(bad, []byte(`{"prod": true, "extra": 1}`), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := manifest.Read(bad); !errors.Is(err, services.ErrConfig) {
		t.Fatalf("unknown field: %v", err)
	}
}

func TestWriteFailureIsConfigError(t *testing.T) {
	dir := t.TempDir()
	blocker := filepath.Join(dir, "file")
	if err := os.WriteFile(blocker, nil, 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := manifest.Write(blocker, "meta.json", manifest.Build(false, "1", nil)); !errors.Is(err, services.ErrConfig) {
		t.Fatalf("expected ErrConfig, got %v", err)
	}
}

func TestDiff(t *testing.T) {
	a := manifest.Build(true, "1.0.0", map[string]float64{"x": 1})
	if diff, err := manifest.Diff(a, a, "current", "expected"); err != nil || diff != "" {
		t.Fatalf("identical manifests diff = %q, %v", diff, err)
	}
	b := manifest.Build(true, "1.0.1", map[string]float64{"x": 1})
	diff, err := manifest.Diff(a, b, "current", "expected")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(diff, `-  "gameVersion": "1.0.0",`) || !strings.Contains(diff, `+  "gameVersion": "1.0.1",`) {
		t.Fatalf("unexpected diff:\n%s", diff)
	}
}
