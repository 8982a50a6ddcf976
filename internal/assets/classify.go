package assets

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"golang.org/x/text/unicode/norm"

	"metapipe/internal/services"
)

// Options tunes classification.
type Options struct {
	// Exclude holds glob patterns or directory prefixes relative to the root.
	// A pattern matches the whole key, the file name, or any parent directory.
	Exclude []string
	// Skip names root-relative keys that are never assets, such as a manifest
	// written into the source tree.
	Skip []string
}

// Selection is the classified source tree of one run.
type Selection struct {
	Root      string
	byKind    map[Kind][]Asset
	byKey     map[string]Asset
	byBase    map[string][]Asset
	conflicts []Conflict
}

// Conflict records an asset left out because an earlier key already
// produces one of its outputs, e.g. hero.jpg next to hero.png.
type Conflict struct {
	Kept    Asset
	Dropped Asset
	// Suffix is the first shared output suffix.
	Suffix string
}

// Conflicts returns the assets dropped for output collisions, sorted by the
// dropped key.
func (s Selection) Conflicts() []Conflict {
	return append([]Conflict(nil), s.conflicts...)
}

// Assets returns the assets of kind k sorted by key.
func (s Selection) Assets(k Kind) []Asset {
	return append([]Asset(nil), s.byKind[k]...)
}

// All returns every selected asset sorted by kind then key.
func (s Selection) All() []Asset {
	out := make([]Asset, 0, len(s.byKey))
	for _, kind := range Kinds() {
		out = append(out, s.byKind[kind]...)
	}
	return out
}

// Len is the number of selected assets.
func (s Selection) Len() int { return len(s.byKey) }

// Count is the number of selected assets of kind k.
func (s Selection) Count(k Kind) int { return len(s.byKind[k]) }

// Has reports whether key is a selected asset.
func (s Selection) Has(key string) bool {
	_, ok := s.byKey[key]
	return ok
}

// Get returns the asset stored under key.
func (s Selection) Get(key string) (Asset, bool) {
	a, ok := s.byKey[key]
	return a, ok
}

// Owns reports whether a selected asset of kind k has basename base.
func (s Selection) Owns(base string, k Kind) bool {
	for _, a := range s.byBase[base] {
		if a.Kind == k {
			return true
		}
	}
	return false
}

// Keys returns every selected key.
func (s Selection) Keys() []string {
	keys := make([]string, 0, len(s.byKey))
	for key := range s.byKey {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

// NewSelection groups assets into a Selection. When two assets would write
// the same storage file, the one with the lexically smaller key is kept and
// the other is recorded as a Conflict.
func NewSelection(root string, list []Asset) Selection {
	sel := Selection{
		Root:   root,
		byKind: make(map[Kind][]Asset),
		byKey:  make(map[string]Asset, len(list)),
		byBase: make(map[string][]Asset),
	}
	sorted := append([]Asset(nil), list...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Key < sorted[j].Key })

next:
	for _, a := range sorted {
		if _, dup := sel.byKey[a.Key]; dup {
			continue
		}
		for _, other := range sel.byBase[a.Base] {
			if suffix, clash := sharedOutput(a.Kind, other.Kind); clash {
				sel.conflicts = append(sel.conflicts, Conflict{Kept: other, Dropped: a, Suffix: suffix})
				continue next
			}
		}
		sel.byKey[a.Key] = a
		sel.byBase[a.Base] = append(sel.byBase[a.Base], a)
		sel.byKind[a.Kind] = append(sel.byKind[a.Kind], a)
	}
	return sel
}

func sharedOutput(a, b Kind) (string, bool) {
	for _, f := range a.Outputs() {
		if b.Produces(f.Suffix) {
			return f.Suffix, true
		}
	}
	return "", false
}

// Classify walks root and partitions regular files into kind buckets by
// extension. Unknown extensions and excluded paths are dropped. Symlinks,
// special files, and unreadable entries fail the walk with ErrIO.
func Classify(root string, opts Options) (Selection, error) {
	root = filepath.Clean(root)
	info, err := os.Stat(root)
	if err != nil {
		return Selection{}, services.Wrap(services.ErrIO, "classify", "stat root", root, err)
	}
	if !info.IsDir() {
		return Selection{}, services.Wrap(services.ErrIO, "classify", "stat root", root+" is not a directory", nil)
	}

	skip := make(map[string]struct{}, len(opts.Skip))
	for _, key := range opts.Skip {
		skip[CanonicalKey(key)] = struct{}{}
	}

	var found []Asset
	walkErr := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return services.Wrap(services.ErrIO, "classify", "walk", p, err)
		}
		if p == root {
			return nil
		}
		rel, err := filepath.Rel(root, p)
		if err != nil {
			return services.Wrap(services.ErrIO, "classify", "relative path", p, err)
		}
		key := CanonicalKey(rel)

		if MatchPatterns(key, opts.Exclude) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		mode := d.Type()
		switch {
		case mode&fs.ModeSymlink != 0:
			return services.Wrap(services.ErrIO, "classify", "symlink", key, errors.New("symlinked entries are not supported"))
		case d.IsDir():
			return nil
		case !mode.IsRegular():
			return services.Wrap(services.ErrIO, "classify", "special file", key, fmt.Errorf("unsupported file mode %s", mode))
		}

		if _, ok := skip[key]; ok {
			return nil
		}
		kind, ok := KindForExtension(path.Ext(key))
		if !ok {
			return nil
		}
		found = append(found, newAsset(root, filepath.ToSlash(rel), key, kind))
		return nil
	})
	if walkErr != nil {
		return Selection{}, walkErr
	}
	return NewSelection(root, found), nil
}

// CanonicalKey converts a root-relative path into the store key form.
func CanonicalKey(rel string) string {
	key := filepath.ToSlash(filepath.Clean(rel))
	key = strings.TrimPrefix(key, "./")
	return norm.NFC.String(key)
}

// MatchPatterns reports whether key matches any of patterns. A pattern
// matches the whole key, the file name, or any parent directory prefix.
func MatchPatterns(key string, patterns []string) bool {
	if len(patterns) == 0 {
		return false
	}
	name := path.Base(key)
	for _, pattern := range patterns {
		pattern = strings.TrimSuffix(pattern, "/")
		if pattern == "" {
			continue
		}
		if key == pattern || strings.HasPrefix(key, pattern+"/") {
			return true
		}
		if ok, _ := path.Match(pattern, key); ok {
			return true
		}
		if ok, _ := path.Match(pattern, name); ok {
			return true
		}
	}
	return false
}
