// Package fingerprint persists the mapping from canonical asset key to the
// content digest seen at its last successful conversion.
package fingerprint

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"metapipe/internal/fileutil"
	"metapipe/internal/logging"
	"metapipe/internal/services"
)

// Store provides concurrency-safe access to the fingerprint map. Each asset
// owns its key, so concurrent orchestrators never contend on an entry.
type Store struct {
	path    string
	logger  *slog.Logger
	mu      sync.RWMutex
	entries map[string]string
	dirty   bool
}

// Load opens the store persisted at storageDir/name, creating storageDir when
// absent. A missing file yields an empty store. An unreadable or malformed
// file is reported and the store starts empty, which forces reconversion.
func Load(storageDir, name string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = logging.NewNop()
	}
	logger = logging.NewComponentLogger(logger, "fingerprint")

	if err := os.MkdirAll(storageDir, 0o755); err != nil {
		return nil, services.Wrap(services.ErrIO, "fingerprint", "create storage dir", storageDir, err)
	}

	s := &Store{
		path:    filepath.Join(storageDir, name),
		logger:  logger,
		entries: make(map[string]string),
	}
	if err := s.load(); err != nil {
		if errors.Is(err, services.ErrIO) {
			return nil, err
		}
		logging.WarnWithContext(logger, "fingerprint store unreadable",
			"fingerprint_store_corrupt",
			logging.String("path", s.path),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "the store will be rewritten at the end of this run"),
			logging.String(logging.FieldImpact, "every asset is reconverted"))
		s.entries = make(map[string]string)
		s.dirty = true
	}
	return s, nil
}

// Fingerprint streams the file at path and returns its content digest.
func Fingerprint(path string) (string, error) {
	sum, err := fileutil.HashFile(path)
	if err != nil {
		return "", services.Wrap(services.ErrIO, "fingerprint", "hash", path, err)
	}
	return sum, nil
}

// Path returns the persisted file location.
func (s *Store) Path() string { return s.path }

// Lookup returns the stored fingerprint for key.
func (s *Store) Lookup(key string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	fp, ok := s.entries[key]
	return fp, ok
}

// Matches reports whether key is stored with exactly fp.
func (s *Store) Matches(key, fp string) bool {
	stored, ok := s.Lookup(key)
	return ok && stored == fp
}

// Update records fp for key.
func (s *Store) Update(key, fp string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.entries[key] == fp {
		return
	}
	s.entries[key] = fp
	s.dirty = true
}

// Remove deletes key and reports whether it was present.
func (s *Store) Remove(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.entries[key]; !ok {
		return false
	}
	delete(s.entries, key)
	s.dirty = true
	return true
}

// Prune removes every key for which keep returns false and returns the
// removed keys sorted.
func (s *Store) Prune(keep func(key string) bool) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var removed []string
	for key := range s.entries {
		if keep(key) {
			continue
		}
		delete(s.entries, key)
		removed = append(removed, key)
	}
	if len(removed) > 0 {
		s.dirty = true
	}
	sort.Strings(removed)
	return removed
}

// Keys returns every stored key sorted.
func (s *Store) Keys() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	keys := make([]string, 0, len(s.entries))
	for key := range s.entries {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

// Len returns the number of stored keys.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// Reset drops every entry. The change reaches disk on the next Persist.
func (s *Store) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = make(map[string]string)
	s.dirty = true
}

// Persist writes the full mapping atomically. Call it only once the run's
// conversion and reclamation have settled.
func (s *Store) Persist() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := json.MarshalIndent(s.entries, "", "  ")
	if err != nil {
		return services.Wrap(services.ErrIO, "fingerprint", "marshal", s.path, err)
	}
	data = append(data, '\n')
	if err := fileutil.WriteFileAtomic(s.path, data, 0o644); err != nil {
		return services.Wrap(services.ErrIO, "fingerprint", "persist", s.path, err)
	}
	s.dirty = false

	s.logger.Debug("fingerprint store persisted",
		logging.Int("entry_count", len(s.entries)),
		logging.String("path", s.path))
	return nil
}

// Dirty reports whether the in-memory mapping differs from the last load or persist.
func (s *Store) Dirty() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.dirty
}

func (s *Store) load() error {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return services.Wrap(services.ErrIO, "fingerprint", "read", s.path, err)
	}
	if len(strings.TrimSpace(string(data))) == 0 {
		return nil
	}

	var entries map[string]string
	if err := json.Unmarshal(data, &entries); err != nil {
		return fmt.Errorf("parse fingerprint store: %w", err)
	}
	for key, fp := range entries {
		if strings.TrimSpace(key) == "" || strings.TrimSpace(fp) == "" {
			continue
		}
		s.entries[key] = fp
	}

	s.logger.Debug("fingerprint store loaded",
		logging.Int("entry_count", len(s.entries)),
		logging.String("path", s.path))
	return nil
}
