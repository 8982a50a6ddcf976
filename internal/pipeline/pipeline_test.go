package pipeline_test

import (
	"context"
	"errors"
	"path/filepath"
	"reflect"
	"slices"
	"testing"

	"github.com/gofrs/flock"

	"metapipe/internal/config"
	"metapipe/internal/convert"
	"metapipe/internal/fingerprint"
	"metapipe/internal/manifest"
	"metapipe/internal/pipeline"
	"metapipe/internal/services"
	"metapipe/internal/testsupport"
)

type fakes struct {
	ffmpeg *testsupport.FakeTranscoder
	images *testsupport.FakeImageEncoder
	prober *testsupport.FakeProber
}

func newRunner(cfg *config.Config) (*pipeline.Runner, *fakes) {
	f := &fakes{
		ffmpeg: &testsupport.FakeTranscoder{},
		images: &testsupport.FakeImageEncoder{},
		prober: &testsupport.FakeProber{},
	}
	deps := pipeline.Deps{Transcoder: f.ffmpeg, Images: f.images, Prober: f.prober}
	return pipeline.New(cfg, deps, nil), f
}

func run(t *testing.T, r *pipeline.Runner, opts pipeline.Options) *pipeline.State {
	t.Helper()
	state, err := r.Run(context.Background(), opts)
	if err != nil {
		t.Fatalf("Run(%s): %v", opts.Mode, err)
	}
	return state
}

func storeKeys(t *testing.T, cfg *config.Config) []string {
	t.Helper()
	store, err := fingerprint.Load(cfg.Paths.StorageDir, cfg.Names.HashStore, nil)
	if err != nil {
		t.Fatal(err)
	}
	return store.Keys()
}

func TestEndToEndScenario(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	testsupport.WriteTree(t, cfg.Paths.PublicDir, map[string]string{"b.wav": "bbb"})
	r, f := newRunner(cfg)
	run(t, r, pipeline.Options{Mode: pipeline.ModeConvert})

	// c was converted by an earlier run and its source has since been deleted.
	testsupport.WriteTree(t, cfg.Paths.StorageDir, map[string]string{"c.mp3": "x", "c.ogg": "x", "c.m4a": "x"})
	store, err := fingerprint.Load(cfg.Paths.StorageDir, cfg.Names.HashStore, nil)
	if err != nil {
		t.Fatal(err)
	}
	store.Update("c.wav", "stale")
	if err := store.Persist(); err != nil {
		t.Fatal(err)
	}
	testsupport.WriteTree(t, cfg.Paths.PublicDir, map[string]string{"a.png": "aaa"})
	f.ffmpeg.Reset()

	state := run(t, r, pipeline.Options{Mode: pipeline.ModeConvert})

	tree := testsupport.ListTree(t, cfg.Paths.StorageDir)
	want := []string{cfg.Names.HashStore, pipeline.LockFileName, "a.avif", "a.png", "a.webp", "b.m4a", "b.mp3", "b.ogg"}
	if !reflect.DeepEqual(tree, slices.Sorted(slices.Values(want))) {
		t.Fatalf("storage tree = %v, want %v", tree, slices.Sorted(slices.Values(want)))
	}
	if calls := f.ffmpeg.Calls(); len(calls) != 0 {
		t.Fatalf("b.wav should not be reconverted: %v", calls)
	}
	if f.images.Calls() != 1 {
		t.Fatalf("a.png should be converted once, got %d", f.images.Calls())
	}
	if got := storeKeys(t, cfg); !reflect.DeepEqual(got, []string{"a.png", "b.wav"}) {
		t.Fatalf("store keys = %v", got)
	}
	if !reflect.DeepEqual(state.Reclaim.Removed, []string{"c.m4a", "c.mp3", "c.ogg"}) {
		t.Fatalf("reclaimed = %v", state.Reclaim.Removed)
	}
}

func TestSecondConvertRunInvokesNoEncoder(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	testsupport.WriteTree(t, cfg.Paths.PublicDir, map[string]string{
		"sfx/jump.wav": "1", "img/hero.jpg": "2", "anim/spark.gif": "3", "video/intro.mp4": "4",
	})
	r, f := newRunner(cfg)
	run(t, r, pipeline.Options{Mode: pipeline.ModeConvert})
	f.ffmpeg.Reset()
	images := f.images.Calls()

	state := run(t, r, pipeline.Options{Mode: pipeline.ModeConvert})
	if len(f.ffmpeg.Calls()) != 0 || f.images.Calls() != images {
		t.Fatalf("second run encoded: ffmpeg=%v images=%d", f.ffmpeg.Calls(), f.images.Calls()-images)
	}
	if state.Convert.Count(convert.StatusSkipped) != 4 {
		t.Fatalf("expected four cache hits, got %+v", state.Convert.Outcomes)
	}
}

func TestBuildWritesManifestAndTransfers(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithProd())
	testsupport.WriteTree(t, cfg.Paths.PublicDir, map[string]string{
		"music/theme.wav": "wav",
		"hero.png":        "png",
		"favicon.ico":     "ico",
	})
	r, f := newRunner(cfg)
	f.prober.Durations = map[string]string{"theme.wav": "42.5"}

	state := run(t, r, pipeline.Options{Mode: pipeline.ModeBuild, SeedOutDir: true})

	want := []string{"favicon.ico", "hero.avif", "hero.png", "hero.webp", "meta.json", "music/theme.m4a", "music/theme.mp3", "music/theme.ogg"}
	if got := testsupport.ListTree(t, cfg.Paths.OutDir); !reflect.DeepEqual(got, want) {
		t.Fatalf("out tree = %v", got)
	}
	m, err := manifest.Read(filepath.Join(cfg.Paths.OutDir, "meta.json"))
	if err != nil {
		t.Fatal(err)
	}
	if !m.Prod || m.GameVersion != "1.0.0" || m.Sounds.TrackDuration["music/theme"] != 42.5 {
		t.Fatalf("unexpected manifest %+v", m)
	}
	if !reflect.DeepEqual(m.Textures.Formats, []string{".avif", ".png", ".webp"}) {
		t.Fatalf("textures = %v", m.Textures.Formats)
	}
	if state.ManifestPath != filepath.Join(cfg.Paths.OutDir, "meta.json") {
		t.Fatalf("manifest path = %q", state.ManifestPath)
	}
	if !reflect.DeepEqual(state.Transfer.Removed, []string{"music/theme.wav"}) {
		t.Fatalf("removed originals = %v", state.Transfer.Removed)
	}
}

func TestBuildFailureSkipsManifestAndTransfer(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithProd())
	testsupport.WriteTree(t, cfg.Paths.PublicDir, map[string]string{"bad.wav": "x", "good.wav": "y"})
	r, f := newRunner(cfg)
	f.ffmpeg.Fail = map[string]error{"bad.mp3": errors.New("exit status 1")}

	state, err := r.Run(context.Background(), pipeline.Options{Mode: pipeline.ModeBuild})
	if err == nil {
		t.Fatal("expected failure")
	}
	if state.ManifestPath != "" {
		t.Fatalf("manifest written despite failure: %s", state.ManifestPath)
	}
	if testsupport.Exists(t, filepath.Join(cfg.Paths.OutDir, "meta.json")) {
		t.Fatal("manifest file exists")
	}
	if got := storeKeys(t, cfg); !reflect.DeepEqual(got, []string{"good.wav"}) {
		t.Fatalf("persisted keys = %v", got)
	}
}

func TestDevWritesSourceFormatManifest(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	testsupport.WriteTree(t, cfg.Paths.PublicDir, map[string]string{"sfx/jump.wav": "x", "hero.png": "y"})
	r, f := newRunner(cfg)

	state := run(t, r, pipeline.Options{Mode: pipeline.ModeDev})
	m, err := manifest.Read(filepath.Join(cfg.Paths.PublicDir, "meta.json"))
	if err != nil {
		t.Fatal(err)
	}
	if m.Prod || !reflect.DeepEqual(m.Textures.Formats, []string{".png"}) || m.Sounds.TrackDuration["sfx/jump"] != 1 {
		t.Fatalf("unexpected dev manifest %+v", m)
	}
	if len(f.ffmpeg.Calls()) != 0 || f.images.Calls() != 0 {
		t.Fatal("dev mode must not convert")
	}
	if state.Store != nil {
		t.Fatal("dev mode must not load the fingerprint store")
	}

	// A second dev run must not classify its own manifest.
	state = run(t, r, pipeline.Options{Mode: pipeline.ModeDev})
	if state.Selection.Has("meta.json") {
		t.Fatal("manifest was classified as an asset")
	}
}

func TestBundleWritesDevManifestIntoOutDir(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	testsupport.WriteTree(t, cfg.Paths.PublicDir, map[string]string{"sfx/jump.wav": "x", "hero.png": "y"})
	testsupport.WriteTree(t, cfg.Paths.OutDir, map[string]string{"sfx/jump.wav": "x", "hero.png": "y"})
	r, f := newRunner(cfg)

	state := run(t, r, pipeline.Options{Mode: pipeline.ModeBundle})
	m, err := manifest.Read(filepath.Join(cfg.Paths.OutDir, "meta.json"))
	if err != nil {
		t.Fatal(err)
	}
	if m.Prod || !reflect.DeepEqual(m.Textures.Formats, []string{".png"}) || m.Sounds.TrackDuration["sfx/jump"] != 1 {
		t.Fatalf("unexpected bundle manifest %+v", m)
	}
	if got := testsupport.ListTree(t, cfg.Paths.OutDir); !reflect.DeepEqual(got, []string{"hero.png", "meta.json", "sfx/jump.wav"}) {
		t.Fatalf("out tree = %v", got)
	}
	if testsupport.Exists(t, filepath.Join(cfg.Paths.PublicDir, "meta.json")) {
		t.Fatal("bundle mode must not write into the public dir")
	}
	if len(f.ffmpeg.Calls()) != 0 || f.images.Calls() != 0 {
		t.Fatal("bundle mode must not convert")
	}
	if state.Store != nil || len(state.Transfer.Removed) != 0 {
		t.Fatalf("bundle mode must not touch storage or transfer, state %+v", state)
	}
}

func TestHashRecordsFingerprintsWithoutConverting(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	testsupport.WriteTree(t, cfg.Paths.PublicDir, map[string]string{"a.wav": "1", "b.png": "2"})
	r, f := newRunner(cfg)

	state := run(t, r, pipeline.Options{Mode: pipeline.ModeHash})
	if state.Hashed != 2 {
		t.Fatalf("hashed = %d", state.Hashed)
	}
	if len(f.ffmpeg.Calls()) != 0 || f.images.Calls() != 0 {
		t.Fatal("hash mode must not convert")
	}
	if got := storeKeys(t, cfg); !reflect.DeepEqual(got, []string{"a.wav", "b.png"}) {
		t.Fatalf("store keys = %v", got)
	}
}

func TestConcurrentRunIsLocked(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatal(err)
	}
	held := flock.New(filepath.Join(cfg.Paths.StorageDir, pipeline.LockFileName))
	ok, err := held.TryLock()
	if err != nil || !ok {
		t.Fatalf("TryLock = %v, %v", ok, err)
	}
	defer func() { _ = held.Unlock() }()

	r, _ := newRunner(cfg)
	_, err = r.Run(context.Background(), pipeline.Options{Mode: pipeline.ModeConvert})
	if !errors.Is(err, services.ErrLocked) {
		t.Fatalf("expected ErrLocked, got %v", err)
	}
	if services.ExitCode(err) != 3 {
		t.Fatalf("exit code = %d", services.ExitCode(err))
	}
}

func TestUnknownModeIsConfigError(t *testing.T) {
	r, _ := newRunner(testsupport.NewConfig(t))
	if _, err := r.Run(context.Background(), pipeline.Options{Mode: "deploy"}); !errors.Is(err, services.ErrConfig) {
		t.Fatalf("expected ErrConfig, got %v", err)
	}
}
