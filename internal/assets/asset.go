package assets

import (
	"path"
	"path/filepath"
)

// Asset identifies one discovered source file. It is re-derived every run.
type Asset struct {
	Kind Kind
	// Key is the canonical fingerprint store key, e.g. "sfx/jump.wav".
	Key string
	// Rel is the root-relative, slash-separated name as found on disk. It
	// differs from Key only in Unicode normalization.
	Rel string
	// Path is the absolute source path.
	Path string
	// Base is Key without its extension, e.g. "sfx/jump".
	Base string
}

// NewAsset builds an Asset from a canonical key below root, assuming the file
// is stored under that exact name.
func NewAsset(root, key string, kind Kind) Asset {
	return newAsset(root, key, key, kind)
}

func newAsset(root, rel, key string, kind Kind) Asset {
	return Asset{
		Kind: kind,
		Key:  key,
		Rel:  rel,
		Path: filepath.Join(root, filepath.FromSlash(rel)),
		Base: BaseOf(key),
	}
}

// BaseOf strips the extension from a canonical key.
func BaseOf(key string) string {
	return key[:len(key)-len(path.Ext(key))]
}

// OutputPath is where format f of the asset lives below root.
func (a Asset) OutputPath(root string, f Format) string {
	return filepath.Join(root, filepath.FromSlash(a.Base+f.Suffix))
}

// OutputPaths maps every output format of the asset's kind to its path below root.
func (a Asset) OutputPaths(root string) map[Format]string {
	outputs := a.Kind.Outputs()
	paths := make(map[Format]string, len(outputs))
	for _, f := range outputs {
		paths[f] = a.OutputPath(root, f)
	}
	return paths
}
