package reclaim_test

import (
	"context"
	"path/filepath"
	"reflect"
	"testing"

	"metapipe/internal/assets"
	"metapipe/internal/fingerprint"
	"metapipe/internal/reclaim"
	"metapipe/internal/testsupport"
)

func selection(t *testing.T, list ...assets.Asset) assets.Selection {
	t.Helper()
	return assets.NewSelection("/src", list)
}

func loadStore(t *testing.T, dir string, entries map[string]string) *fingerprint.Store {
	t.Helper()
	store, err := fingerprint.Load(dir, "files-hash.json", nil)
	if err != nil {
		t.Fatalf("load store: %v", err)
	}
	for key, fp := range entries {
		store.Update(key, fp)
	}
	return store
}

func TestDeletedSourceRemovesAllOutputsAndEntry(t *testing.T) {
	storage := t.TempDir()
	testsupport.WriteTree(t, storage, map[string]string{
		"sfx/jump.mp3": "x", "sfx/jump.ogg": "x", "sfx/jump.m4a": "x",
		"sfx/land.mp3": "x", "sfx/land.ogg": "x", "sfx/land.m4a": "x",
		"gone/old.mp3": "x",
	})
	store := loadStore(t, storage, map[string]string{"sfx/jump.wav": "a", "sfx/land.wav": "b", "gone/old.wav": "c"})
	sel := selection(t, assets.NewAsset("/src", "sfx/land.wav", assets.Sound))

	report, err := reclaim.Run(context.Background(), storage, sel, store, reclaim.Options{}, nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	want := []string{"gone/old.mp3", "sfx/jump.m4a", "sfx/jump.mp3", "sfx/jump.ogg"}
	if !reflect.DeepEqual(report.Removed, want) {
		t.Fatalf("removed = %v, want %v", report.Removed, want)
	}
	if got := testsupport.ListTree(t, storage); !reflect.DeepEqual(got, []string{"sfx/land.m4a", "sfx/land.mp3", "sfx/land.ogg"}) {
		t.Fatalf("storage tree = %v", got)
	}
	if !reflect.DeepEqual(store.Keys(), []string{"sfx/land.wav"}) {
		t.Fatalf("store keys = %v", store.Keys())
	}
	if !reflect.DeepEqual(report.PrunedDirs, []string{"gone"}) {
		t.Fatalf("pruned dirs = %v", report.PrunedDirs)
	}
}

func TestKindSwitchKeepsSharedOutputs(t *testing.T) {
	storage := t.TempDir()
	testsupport.WriteTree(t, storage, map[string]string{
		"foo.png": "img", "foo.webp": "img", "foo.avif": "img",
	})
	store := loadStore(t, storage, map[string]string{"foo.png": "old"})
	sel := selection(t, assets.NewAsset("/src", "foo.gif", assets.Animation))

	report, err := reclaim.Run(context.Background(), storage, sel, store, reclaim.Options{}, nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !reflect.DeepEqual(report.Removed, []string{"foo.png"}) {
		t.Fatalf("removed = %v", report.Removed)
	}
	if got := testsupport.ListTree(t, storage); !reflect.DeepEqual(got, []string{"foo.avif", "foo.webp"}) {
		t.Fatalf("storage tree = %v", got)
	}
	if _, ok := store.Lookup("foo.png"); ok {
		t.Fatal("image fingerprint should be pruned")
	}
}

func TestUnknownSuffixesAreLeftAlone(t *testing.T) {
	storage := t.TempDir()
	testsupport.WriteTree(t, storage, map[string]string{
		"files-hash.json": "{}",
		"notes.txt":       "keep",
		".metapipe.lock":  "",
	})
	store := loadStore(t, storage, nil)

	report, err := reclaim.Run(context.Background(), storage, selection(t), store, reclaim.Options{}, nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(report.Removed) != 0 || report.Ignored != 3 {
		t.Fatalf("unexpected report %+v", report)
	}
}

func TestPartialEncodeLeftoversAreReclaimed(t *testing.T) {
	storage := t.TempDir()
	testsupport.WriteTree(t, storage, map[string]string{
		"sfx/jump.mp3":          "x",
		"sfx/.jump.partial.mp3": "half",
	})
	sel := selection(t, assets.NewAsset("/src", "sfx/jump.wav", assets.Sound))
	report, err := reclaim.Run(context.Background(), storage, sel, loadStore(t, storage, nil), reclaim.Options{}, nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !reflect.DeepEqual(report.Removed, []string{"sfx/.jump.partial.mp3"}) {
		t.Fatalf("removed = %v", report.Removed)
	}
}

func TestInterruptedAtomicWritesAreReclaimed(t *testing.T) {
	storage := t.TempDir()
	testsupport.WriteTree(t, storage, map[string]string{
		"hero.avif":           "x",
		".hero.4188.tmp.avif": "half",
		".hero.avif.51.tmp":   "unknown suffix",
	})
	sel := selection(t, assets.NewAsset("/src", "hero.png", assets.Image))
	report, err := reclaim.Run(context.Background(), storage, sel, loadStore(t, storage, nil), reclaim.Options{}, nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !reflect.DeepEqual(report.Removed, []string{".hero.4188.tmp.avif"}) {
		t.Fatalf("removed = %v", report.Removed)
	}
}

func TestDryRunTouchesNothing(t *testing.T) {
	storage := t.TempDir()
	testsupport.WriteTree(t, storage, map[string]string{"old/c.mp3": "x"})
	store := loadStore(t, storage, map[string]string{"old/c.wav": "fp"})

	report, err := reclaim.Run(context.Background(), storage, selection(t), store, reclaim.Options{DryRun: true}, nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !reflect.DeepEqual(report.Removed, []string{"old/c.mp3"}) || !reflect.DeepEqual(report.PrunedKeys, []string{"old/c.wav"}) {
		t.Fatalf("unexpected report %+v", report)
	}
	if !testsupport.Exists(t, filepath.Join(storage, "old", "c.mp3")) {
		t.Fatal("dry run removed a file")
	}
	if store.Len() != 1 {
		t.Fatal("dry run pruned the store")
	}
}

func TestMissingStorageIsEmpty(t *testing.T) {
	storage := filepath.Join(t.TempDir(), "absent")
	store := loadStore(t, t.TempDir(), nil)
	report, err := reclaim.Run(context.Background(), storage, selection(t), store, reclaim.Options{}, nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(report.Removed) != 0 {
		t.Fatalf("unexpected removals %v", report.Removed)
	}
}
