// Package transfer moves converted outputs into the distribution tree and
// removes the uncompressed originals the bundler copied there.
package transfer

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"

	"metapipe/internal/assets"
	"metapipe/internal/fileutil"
	"metapipe/internal/logging"
	"metapipe/internal/services"
)

// Options tunes a transfer.
type Options struct {
	StorageDir  string
	OutDir      string
	MaxParallel int
	LogCopies   bool
}

// Report lists what a transfer did. Paths are out-dir relative.
type Report struct {
	Copied  []string
	Removed []string
}

// Run copies every output of every selected asset from storage into the out
// dir at the asset's relative location, then deletes the original source from
// the out dir unless that path is itself one of the copied outputs. Every
// asset is attempted; the first failure is returned.
func Run(ctx context.Context, sel assets.Selection, opts Options, logger *slog.Logger) (Report, error) {
	if logger == nil {
		logger = logging.NewNop()
	}
	logger = logging.WithContext(ctx, logging.NewComponentLogger(logger, "transfer"))
	limit := opts.MaxParallel
	if limit == 0 {
		limit = -1
	}

	var (
		mu     sync.Mutex
		report Report
		g      errgroup.Group
	)
	g.SetLimit(limit)
	for _, asset := range sel.All() {
		g.Go(func() error {
			copied, removed, err := transferAsset(ctx, asset, opts)
			mu.Lock()
			report.Copied = append(report.Copied, copied...)
			if removed != "" {
				report.Removed = append(report.Removed, removed)
			}
			mu.Unlock()
			if err != nil {
				logging.ErrorWithContext(logger, "asset transfer failed", "transfer_failed",
					logging.String(logging.FieldAsset, asset.Key),
					logging.Error(err),
					logging.String(logging.FieldErrorHint, "re-run the build; conversion outputs are cached"))
				return err
			}
			logging.Toggled(logger, opts.LogCopies, "asset transferred",
				logging.String(logging.FieldAsset, asset.Key),
				logging.Int("outputs", len(copied)))
			return nil
		})
	}
	err := g.Wait()
	sort.Strings(report.Copied)
	sort.Strings(report.Removed)
	logger.Info("outputs transferred",
		logging.Int("copied", len(report.Copied)),
		logging.Int("originals_removed", len(report.Removed)))
	return report, err
}

func transferAsset(ctx context.Context, asset assets.Asset, opts Options) ([]string, string, error) {
	var (
		copied []string
		dsts   []string
	)
	for _, f := range asset.Kind.Outputs() {
		if err := ctx.Err(); err != nil {
			return copied, "", err
		}
		rel := asset.Base + f.Suffix
		dst := asset.OutputPath(opts.OutDir, f)
		if err := fileutil.CopyFile(asset.OutputPath(opts.StorageDir, f), dst); err != nil {
			return copied, "", services.Wrap(services.ErrIO, "transfer", "copy output", rel, err)
		}
		copied = append(copied, rel)
		dsts = append(dsts, dst)
	}

	original := filepath.Join(opts.OutDir, filepath.FromSlash(asset.Rel))
	info, err := os.Stat(original)
	if errors.Is(err, fs.ErrNotExist) {
		return copied, "", nil
	}
	if err != nil {
		return copied, "", services.Wrap(services.ErrIO, "transfer", "stat original", asset.Key, err)
	}
	// Hero.PNG and its Hero.png output are one file on case-insensitive
	// file systems.
	for _, dst := range dsts {
		if dstInfo, err := os.Stat(dst); err == nil && os.SameFile(info, dstInfo) {
			return copied, "", nil
		}
	}
	removed, err := fileutil.RemoveIfExists(original)
	if err != nil {
		return copied, "", services.Wrap(services.ErrIO, "transfer", "remove original", asset.Key, err)
	}
	if removed {
		return copied, asset.Key, nil
	}
	return copied, "", nil
}

// Seed mirrors every regular file of src into dst, skipping files for which
// skip returns true. Standalone builds use it to stand in for a bundler's
// public-directory copy.
func Seed(src, dst string, skip func(key string) bool) (int, error) {
	count := 0
	err := filepath.WalkDir(src, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		if !d.Type().IsRegular() {
			return errors.New("not a regular file: " + p)
		}
		rel, err := filepath.Rel(src, p)
		if err != nil {
			return err
		}
		if skip != nil && skip(assets.CanonicalKey(rel)) {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		if err := fileutil.CopyFileMode(p, filepath.Join(dst, rel), info.Mode().Perm()); err != nil {
			return err
		}
		count++
		return nil
	})
	if err != nil {
		return count, services.Wrap(services.ErrIO, "transfer", "seed out dir", dst, err)
	}
	return count, nil
}

// Clean removes dst entirely so a build starts from an empty tree.
func Clean(dst string) error {
	if err := os.RemoveAll(dst); err != nil {
		return services.Wrap(services.ErrIO, "transfer", "clean out dir", dst, err)
	}
	return nil
}
