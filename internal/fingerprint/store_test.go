package fingerprint

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"sync"
	"testing"

	"metapipe/internal/services"
)

func TestLoadCreatesDirAndStartsEmpty(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "resourceCache")
	s, err := Load(dir, "files-hash.json", nil)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if s.Len() != 0 {
		t.Fatalf("expected empty store, got %d entries", s.Len())
	}
	if info, err := os.Stat(dir); err != nil || !info.IsDir() {
		t.Fatalf("storage dir not created: %v", err)
	}
	if _, err := os.Stat(s.Path()); !os.IsNotExist(err) {
		t.Fatalf("store file should not exist before Persist: %v", err)
	}
}

func TestLoadFailsWhenStorageDirCannotBeCreated(t *testing.T) {
	base := t.TempDir()
	blocker := filepath.Join(base, "file")
	if err := os.WriteFile(blocker, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	_, err := Load(filepath.Join(blocker, "cache"), "files-hash.json", nil)
	if !errors.Is(err, services.ErrIO) {
		t.Fatalf("expected ErrIO, got %v", err)
	}
}

func TestPersistRoundTrip(t *testing.T) {
	dir := t.TempDir()
	s, err := Load(dir, "files-hash.json", nil)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	s.Update("sfx/jump.wav", "aaa")
	s.Update("images/hero.png", "bbb")
	if !s.Dirty() {
		t.Fatal("expected dirty store after update")
	}
	if err := s.Persist(); err != nil {
		t.Fatalf("Persist: %v", err)
	}
	if s.Dirty() {
		t.Fatal("store should be clean after persist")
	}

	raw, err := os.ReadFile(filepath.Join(dir, "files-hash.json"))
	if err != nil {
		t.Fatal(err)
	}
	want := "{\n  \"images/hero.png\": \"bbb\",\n  \"sfx/jump.wav\": \"aaa\"\n}\n"
	if string(raw) != want {
		t.Fatalf("persisted form = %q, want %q", raw, want)
	}

	reloaded, err := Load(dir, "files-hash.json", nil)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if !reflect.DeepEqual(reloaded.Keys(), s.Keys()) {
		t.Fatalf("reloaded keys %v, want %v", reloaded.Keys(), s.Keys())
	}
	if fp, _ := reloaded.Lookup("sfx/jump.wav"); fp != "aaa" {
		t.Fatalf("reloaded fingerprint = %q", fp)
	}
}

func TestUnpersistedChangesDoNotReachDisk(t *testing.T) {
	dir := t.TempDir()
	s, err := Load(dir, "files-hash.json", nil)
	if err != nil {
		t.Fatal(err)
	}
	s.Update("a.png", "1")
	if err := s.Persist(); err != nil {
		t.Fatal(err)
	}

	s.Update("a.png", "2")
	s.Update("b.png", "3")

	next, err := Load(dir, "files-hash.json", nil)
	if err != nil {
		t.Fatal(err)
	}
	if fp, _ := next.Lookup("a.png"); fp != "1" {
		t.Fatalf("next run should read the old store, got %q", fp)
	}
	if _, ok := next.Lookup("b.png"); ok {
		t.Fatal("unpersisted key leaked to disk")
	}
}

func TestMalformedStoreStartsEmpty(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "files-hash.json"), []byte("{not json"), 0o644); err != nil {
		t.Fatal(err)
	}
	s, err := Load(dir, "files-hash.json", nil)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if s.Len() != 0 || !s.Dirty() {
		t.Fatalf("expected empty dirty store, len=%d dirty=%v", s.Len(), s.Dirty())
	}
}

func TestRemovePruneAndReset(t *testing.T) {
	s, err := Load(t.TempDir(), "files-hash.json", nil)
	if err != nil {
		t.Fatal(err)
	}
	for _, key := range []string{"a.png", "b.wav", "c.wav", "d.gif"} {
		s.Update(key, "fp-"+key)
	}
	if !s.Remove("a.png") || s.Remove("a.png") {
		t.Fatal("Remove should report presence exactly once")
	}

	removed := s.Prune(func(key string) bool { return key == "b.wav" })
	if !reflect.DeepEqual(removed, []string{"c.wav", "d.gif"}) {
		t.Fatalf("Prune removed %v", removed)
	}
	if !reflect.DeepEqual(s.Keys(), []string{"b.wav"}) {
		t.Fatalf("keys after prune = %v", s.Keys())
	}
	if !s.Matches("b.wav", "fp-b.wav") || s.Matches("b.wav", "other") {
		t.Fatal("Matches returned the wrong answer")
	}

	s.Reset()
	if s.Len() != 0 {
		t.Fatalf("Reset left %d entries", s.Len())
	}
}

func TestConcurrentUpdatesOnDisjointKeys(t *testing.T) {
	s, err := Load(t.TempDir(), "files-hash.json", nil)
	if err != nil {
		t.Fatal(err)
	}
	var wg sync.WaitGroup
	for i := 0; i < 64; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			key := filepath.ToSlash(filepath.Join("sfx", string(rune('a'+i%26)), "track"+string(rune('A'+i/26))+".wav"))
			s.Update(key, "fp")
		}(i)
	}
	wg.Wait()
	if s.Len() != 64 {
		t.Fatalf("expected 64 entries, got %d", s.Len())
	}
}

func TestFingerprintMissingFile(t *testing.T) {
	_, err := Fingerprint(filepath.Join(t.TempDir(), "gone.wav"))
	if !errors.Is(err, services.ErrIO) {
		t.Fatalf("expected ErrIO, got %v", err)
	}
}
