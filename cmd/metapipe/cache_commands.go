package main

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strconv"

	"github.com/spf13/cobra"

	"metapipe/internal/assets"
	"metapipe/internal/fingerprint"
	"metapipe/internal/pipeline"
	"metapipe/internal/reclaim"
	"metapipe/internal/services"
)

func newCacheCommand(ctx *commandContext) *cobra.Command {
	cacheCmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect and manage the storage cache",
	}

	cacheCmd.AddCommand(newCacheListCommand(ctx))
	cacheCmd.AddCommand(newCacheReclaimCommand(ctx))
	cacheCmd.AddCommand(newCacheClearCommand(ctx))

	return cacheCmd
}

func newCacheListCommand(ctx *commandContext) *cobra.Command {
	var kindName string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List fingerprinted assets and their cached outputs",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig(cmd)
			if err != nil {
				return err
			}
			var only assets.Kind
			if kindName != "" {
				if only, err = assets.ParseKind(kindName); err != nil {
					return services.Wrap(services.ErrConfig, "cache", "list", "--kind", err)
				}
			}
			logger, err := ctx.ensureLogger()
			if err != nil {
				return err
			}
			store, err := fingerprint.Load(cfg.Paths.StorageDir, cfg.Names.HashStore, logger)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			keys := store.Keys()
			if only != 0 {
				keys = slices.DeleteFunc(keys, func(key string) bool {
					kind, ok := assets.KindForExtension(filepath.Ext(key))
					return !ok || kind != only
				})
			}
			if len(keys) == 0 {
				fmt.Fprintln(out, "Cache is empty")
				return nil
			}

			rows := make([][]string, 0, len(keys))
			var totalBytes int64
			for _, key := range keys {
				fp, _ := store.Lookup(key)
				kind, ok := assets.KindForExtension(filepath.Ext(key))
				if !ok {
					rows = append(rows, []string{key, "unknown", shortDigest(fp), "-", "-"})
					continue
				}
				asset := assets.NewAsset(cfg.Paths.PublicDir, key, kind)
				present := 0
				var size int64
				for _, path := range asset.OutputPaths(cfg.Paths.StorageDir) {
					if info, err := os.Stat(path); err == nil {
						present++
						size += info.Size()
					}
				}
				totalBytes += size
				rows = append(rows, []string{
					key,
					kind.String(),
					shortDigest(fp),
					fmt.Sprintf("%d/%d", present, len(kind.Outputs())),
					humanBytes(size),
				})
			}
			fmt.Fprintln(out, tableSpec{
				headers: []string{"Asset", "Kind", "Fingerprint", "Outputs", "Size"},
				rows:    rows,
				footer:  []string{strconv.Itoa(len(keys)) + " assets", "", "", "", humanBytes(totalBytes)},
				aligns:  []columnAlignment{alignLeft, alignLeft, alignLeft, alignRight, alignRight},
			}.render())
			return nil
		},
	}
	cmd.Flags().StringVar(&kindName, "kind", "", "Only list assets of this kind (image, sound, animation, video)")
	return cmd
}

func newCacheReclaimCommand(ctx *commandContext) *cobra.Command {
	var dryRun bool
	cmd := &cobra.Command{
		Use:   "reclaim",
		Short: "Remove cached outputs whose source asset is gone",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig(cmd)
			if err != nil {
				return err
			}
			logger, err := ctx.ensureLogger()
			if err != nil {
				return err
			}
			lock, err := pipeline.AcquireLock(cfg.Paths.StorageDir)
			if err != nil {
				return err
			}
			defer func() { _ = lock.Release() }()

			sel, err := assets.Classify(cfg.Paths.PublicDir, assets.Options{
				Exclude: cfg.Build.Exclude,
				Skip:    []string{cfg.Names.Manifest},
			})
			if err != nil {
				return err
			}
			store, err := fingerprint.Load(cfg.Paths.StorageDir, cfg.Names.HashStore, logger)
			if err != nil {
				return err
			}
			report, err := reclaim.Run(cmd.Context(), cfg.Paths.StorageDir, sel, store,
				reclaim.Options{DryRun: dryRun, LogRemovals: cfg.Logging.FileChange}, logger)
			if err != nil {
				return err
			}
			if !dryRun {
				if err := store.Persist(); err != nil {
					return err
				}
			}

			out := cmd.OutOrStdout()
			verb := "Removed"
			if dryRun {
				verb = "Would remove"
			}
			for _, key := range report.Removed {
				fmt.Fprintf(out, "%s %s\n", verb, key)
			}
			fmt.Fprintf(out, "%s %d stale outputs, %d fingerprint entries (%d outputs kept)\n",
				verb, len(report.Removed), len(report.PrunedKeys), report.Kept)
			return nil
		},
	}
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Report what would be removed without deleting")
	return cmd
}

func newCacheClearCommand(ctx *commandContext) *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Delete every cached output and the fingerprint store",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig(cmd)
			if err != nil {
				return err
			}
			if !yes {
				return services.Wrap(services.ErrConfig, "cache", "clear",
					fmt.Sprintf("refusing to clear %s without --yes", cfg.Paths.StorageDir), nil)
			}
			lock, err := pipeline.AcquireLock(cfg.Paths.StorageDir)
			if err != nil {
				return err
			}
			defer func() { _ = lock.Release() }()

			removed, freed, err := clearStorage(cfg.Paths.StorageDir)
			if err != nil {
				return services.Wrap(services.ErrIO, "cache", "clear", cfg.Paths.StorageDir, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Cleared %d files (%s) from %s\n", removed, humanBytes(freed), cfg.Paths.StorageDir)
			return nil
		},
	}
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "Confirm deletion")
	return cmd
}

// clearStorage removes everything below dir except the lock file.
func clearStorage(dir string) (int, int64, error) {
	var files int
	var bytes int64
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || d.Name() == pipeline.LockFileName {
			return nil
		}
		if info, err := d.Info(); err == nil {
			bytes += info.Size()
		}
		files++
		return nil
	})
	if err != nil {
		return 0, 0, err
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0, 0, err
	}
	for _, entry := range entries {
		if entry.Name() == pipeline.LockFileName {
			continue
		}
		if err := os.RemoveAll(filepath.Join(dir, entry.Name())); err != nil {
			return 0, 0, err
		}
	}
	return files, bytes, nil
}

func shortDigest(fp string) string {
	if len(fp) > 12 {
		return fp[:12]
	}
	return fp
}

func humanBytes(v int64) string {
	const unit = 1024
	if v < unit {
		return fmt.Sprintf("%d B", v)
	}
	div := int64(unit)
	exp := 0
	for n := v / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	value := float64(v) / float64(div)
	return fmt.Sprintf("%.1f %ciB", value, "KMGTPEZY"[exp])
}
