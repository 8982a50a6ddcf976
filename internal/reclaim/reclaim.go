// Package reclaim deletes cached outputs whose source asset no longer exists
// or no longer maps to that output, and drops the matching fingerprint
// entries.
package reclaim

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"path"
	"path/filepath"
	"sort"

	"metapipe/internal/assets"
	"metapipe/internal/fileutil"
	"metapipe/internal/fingerprint"
	"metapipe/internal/logging"
	"metapipe/internal/services"
)

// Options tunes a reclamation pass.
type Options struct {
	// DryRun reports what would be removed without touching disk or the store.
	DryRun bool
	// LogRemovals promotes per-file removal lines to info.
	LogRemovals bool
}

// Report summarizes a reclamation pass. Paths are storage-relative and
// slash-separated.
type Report struct {
	Removed    []string
	Kept       int
	Ignored    int
	PrunedKeys []string
	PrunedDirs []string
	DryRun     bool
}

// Run walks storageDir and removes every output file that no selected asset
// would produce. A file is kept when any kind owning its suffix has a selected
// asset with the same basename, so a basename that switched kind keeps the
// outputs both kinds share. Files with unknown suffixes are left alone.
//
// Removal failures do not stop the walk; the first one is returned once
// every file has been considered.
func Run(ctx context.Context, storageDir string, sel assets.Selection, store *fingerprint.Store, opts Options, logger *slog.Logger) (Report, error) {
	if logger == nil {
		logger = logging.NewNop()
	}
	logger = logging.WithContext(ctx, logging.NewComponentLogger(logger, "reclaim"))
	report := Report{DryRun: opts.DryRun}

	var firstErr error
	walkErr := filepath.WalkDir(storageDir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			if p == storageDir && errors.Is(err, fs.ErrNotExist) {
				return fs.SkipAll
			}
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.IsDir() || !d.Type().IsRegular() {
			return nil
		}
		rel, err := filepath.Rel(storageDir, p)
		if err != nil {
			return err
		}
		key := assets.CanonicalKey(rel)
		owners := assets.OutputOwners(path.Ext(key))
		if len(owners) == 0 {
			report.Ignored++
			return nil
		}
		if stillValid(sel, assets.BaseOf(key), owners) {
			report.Kept++
			return nil
		}

		report.Removed = append(report.Removed, key)
		if opts.DryRun {
			logging.Toggled(logger, opts.LogRemovals, "stale output would be removed",
				logging.String(logging.FieldAsset, key))
			return nil
		}
		if _, err := fileutil.RemoveIfExists(p); err != nil {
			wrapped := services.Wrap(services.ErrIO, "reclaim", "remove stale output", key, err)
			logging.WarnWithContext(logger, "stale output removal failed", "reclaim_remove_failed",
				logging.Error(err),
				logging.String(logging.FieldAsset, key),
				logging.String(logging.FieldImpact, "orphaned file remains in the storage tree"))
			if firstErr == nil {
				firstErr = wrapped
			}
			return nil
		}
		logging.Toggled(logger, opts.LogRemovals, "stale output removed",
			logging.String(logging.FieldAsset, key))
		return nil
	})
	if walkErr != nil {
		return report, services.Wrap(services.ErrIO, "reclaim", "walk storage", storageDir, walkErr)
	}

	if opts.DryRun {
		for _, key := range store.Keys() {
			if !sel.Has(key) {
				report.PrunedKeys = append(report.PrunedKeys, key)
			}
		}
	} else {
		report.PrunedKeys = store.Prune(sel.Has)
		dirs, err := fileutil.PruneEmptyDirs(storageDir)
		if err != nil && firstErr == nil {
			firstErr = services.Wrap(services.ErrIO, "reclaim", "prune directories", storageDir, err)
		}
		for _, dir := range dirs {
			if rel, relErr := filepath.Rel(storageDir, dir); relErr == nil {
				report.PrunedDirs = append(report.PrunedDirs, filepath.ToSlash(rel))
			}
		}
	}
	sort.Strings(report.Removed)
	sort.Strings(report.PrunedDirs)

	if len(report.Removed) > 0 || len(report.PrunedKeys) > 0 {
		logger.Info("stale outputs reclaimed",
			logging.Int("removed", len(report.Removed)),
			logging.Int("kept", report.Kept),
			logging.Int("pruned_keys", len(report.PrunedKeys)),
			logging.Bool("dry_run", opts.DryRun))
	}
	return report, firstErr
}

func stillValid(sel assets.Selection, base string, owners []assets.Kind) bool {
	for _, kind := range owners {
		if sel.Owns(base, kind) {
			return true
		}
	}
	return false
}
