package assets_test

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"metapipe/internal/assets"
	"metapipe/internal/services"
	"metapipe/internal/testsupport"
)

func TestClassifyPartitionsByExtension(t *testing.T) {
	root := t.TempDir()
	testsupport.WriteTree(t, root, map[string]string{
		"images/hero.PNG":     "png",
		"images/bg.jpg":       "jpg",
		"sfx/jump.wav":        "wav",
		"anim/spark.gif":      "gif",
		"video/intro.mp4":     "mp4",
		"notes/readme.txt":    "ignored",
		"images/already.webp": "ignored",
		"meta.json":           "{}",
	})

	sel, err := assets.Classify(root, assets.Options{})
	if err != nil {
		t.Fatalf("Classify: %v", err)
	}
	if sel.Len() != 5 {
		t.Fatalf("expected 5 assets, got %d: %v", sel.Len(), sel.Keys())
	}

	images := sel.Assets(assets.Image)
	if len(images) != 2 || images[0].Key != "images/bg.jpg" || images[1].Key != "images/hero.PNG" {
		t.Fatalf("unexpected images: %+v", images)
	}
	if images[1].Base != "images/hero" {
		t.Fatalf("unexpected base: %q", images[1].Base)
	}
	if images[1].Path != filepath.Join(root, "images", "hero.PNG") {
		t.Fatalf("unexpected path: %q", images[1].Path)
	}

	sound, ok := sel.Get("sfx/jump.wav")
	if !ok || sound.Kind != assets.Sound {
		t.Fatalf("expected sound asset, got %+v", sound)
	}
	if !sel.Owns("anim/spark", assets.Animation) || sel.Owns("anim/spark", assets.Image) {
		t.Fatal("unexpected ownership for anim/spark")
	}
	if sel.Count(assets.Video) != 1 {
		t.Fatalf("expected one video, got %d", sel.Count(assets.Video))
	}
}

func TestClassifyAppliesExcludesAndSkip(t *testing.T) {
	root := t.TempDir()
	testsupport.WriteTree(t, root, map[string]string{
		"raw/source.png":  "x",
		"ui/button.png":   "x",
		"ui/button@2.png": "x",
		"ui/draft.psd":    "x",
		"music/theme.wav": "x",
		"skip.wav":        "x",
	})

	sel, err := assets.Classify(root, assets.Options{
		Exclude: []string{"raw", "*@2.png"},
		Skip:    []string{"skip.wav"},
	})
	if err != nil {
		t.Fatalf("Classify: %v", err)
	}
	want := []string{"music/theme.wav", "ui/button.png"}
	if got := sel.Keys(); !reflect.DeepEqual(got, want) {
		t.Fatalf("keys = %v, want %v", got, want)
	}
}

func TestClassifyRejectsSymlinks(t *testing.T) {
	root := t.TempDir()
	testsupport.WriteTree(t, root, map[string]string{"real.png": "x"})
	if err := os.Symlink(filepath.Join(root, "real.png"), filepath.Join(root, "link.png")); err != nil {
		t.Skipf("symlinks unavailable: %v", err)
	}

	_, err := assets.Classify(root, assets.Options{})
	if !errors.Is(err, services.ErrIO) {
		t.Fatalf("expected ErrIO, got %v", err)
	}
}

func TestClassifyMissingRoot(t *testing.T) {
	_, err := assets.Classify(filepath.Join(t.TempDir(), "missing"), assets.Options{})
	if !errors.Is(err, services.ErrIO) {
		t.Fatalf("expected ErrIO, got %v", err)
	}
}

func TestClassifyDropsLaterAssetOnOutputCollision(t *testing.T) {
	root := t.TempDir()
	testsupport.WriteTree(t, root, map[string]string{
		"hero.png": "x",
		"hero.jpg": "x",
		"hero.gif": "x",
		"bg.png":   "x",
	})
	sel, err := assets.Classify(root, assets.Options{})
	if err != nil {
		t.Fatalf("Classify: %v", err)
	}
	if got, want := sel.Keys(), []string{"bg.png", "hero.gif"}; !reflect.DeepEqual(got, want) {
		t.Fatalf("keys = %v, want %v", got, want)
	}
	conflicts := sel.Conflicts()
	if len(conflicts) != 2 {
		t.Fatalf("conflicts = %+v", conflicts)
	}
	for i, dropped := range []string{"hero.jpg", "hero.png"} {
		if conflicts[i].Dropped.Key != dropped || conflicts[i].Kept.Key != "hero.gif" {
			t.Fatalf("conflict %d = %+v", i, conflicts[i])
		}
	}
	if conflicts[0].Suffix != ".webp" && conflicts[0].Suffix != ".avif" {
		t.Fatalf("unexpected shared suffix %q", conflicts[0].Suffix)
	}
}

func TestClassifyKeepsOnDiskNameForDecomposedUnicode(t *testing.T) {
	root := t.TempDir()
	decomposed := "music/cafe\u0301.wav"
	testsupport.WriteTree(t, root, map[string]string{decomposed: "wav"})

	sel, err := assets.Classify(root, assets.Options{})
	if err != nil {
		t.Fatalf("Classify: %v", err)
	}
	asset, ok := sel.Get("music/caf\u00e9.wav")
	if !ok {
		t.Fatalf("expected composed key, got %v", sel.Keys())
	}
	if asset.Rel != decomposed {
		t.Fatalf("rel = %q, want on-disk %q", asset.Rel, decomposed)
	}
	if asset.Path != filepath.Join(root, filepath.FromSlash(decomposed)) {
		t.Fatalf("path = %q", asset.Path)
	}
	if _, err := os.Stat(asset.Path); err != nil {
		t.Fatalf("asset path must exist: %v", err)
	}
	if asset.Base != "music/caf\u00e9" {
		t.Fatalf("base = %q", asset.Base)
	}
}

func TestClassifyAllowsSameBaseAcrossDisjointKinds(t *testing.T) {
	root := t.TempDir()
	testsupport.WriteTree(t, root, map[string]string{
		"intro.wav": "x",
		"intro.mp4": "x",
	})
	sel, err := assets.Classify(root, assets.Options{})
	if err != nil {
		t.Fatalf("Classify: %v", err)
	}
	if !sel.Owns("intro", assets.Sound) || !sel.Owns("intro", assets.Video) {
		t.Fatal("expected both kinds to own intro")
	}
}

func TestCanonicalKeyNormalizesToNFC(t *testing.T) {
	decomposed := "sfx/café.wav"
	if got := assets.CanonicalKey(decomposed); got != "sfx/caf\u00e9.wav" {
		t.Fatalf("CanonicalKey = %q", got)
	}
	if got := assets.CanonicalKey(filepath.Join("a", "b", "c.png")); got != "a/b/c.png" {
		t.Fatalf("CanonicalKey = %q", got)
	}
}

func TestAssetOutputPaths(t *testing.T) {
	a := assets.NewAsset("/src", "sfx/jump.wav", assets.Sound)
	paths := a.OutputPaths("/cache")
	if len(paths) != 3 {
		t.Fatalf("expected three outputs, got %d", len(paths))
	}
	for f, p := range paths {
		want := filepath.Join("/cache", "sfx", "jump"+f.Suffix)
		if p != want {
			t.Fatalf("output %s = %q, want %q", f.Name, p, want)
		}
	}
}

func TestMatchPatterns(t *testing.T) {
	cases := []struct {
		key      string
		patterns []string
		want     bool
	}{
		{"raw/hero.png", []string{"raw"}, true},
		{"raw/deep/hero.png", []string{"raw/"}, true},
		{"rawish/hero.png", []string{"raw"}, false},
		{"ui/icon.png", []string{"ui/*.png"}, true},
		{"ui/nested/icon.png", []string{"ui/*.png"}, false},
		{"sfx/jump.wav", []string{"*.wav"}, true},
		{"sfx/jump.wav", []string{"sfx/jump.wav"}, true},
		{"sfx/jump.wav", nil, false},
		{"sfx/jump.wav", []string{""}, false},
	}
	for _, tc := range cases {
		if got := assets.MatchPatterns(tc.key, tc.patterns); got != tc.want {
			t.Errorf("MatchPatterns(%q, %v) = %v, want %v", tc.key, tc.patterns, got, tc.want)
		}
	}
}
