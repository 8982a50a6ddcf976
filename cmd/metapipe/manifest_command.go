package main

import (
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"

	"github.com/spf13/cobra"

	"metapipe/internal/assets"
	"metapipe/internal/convert"
	"metapipe/internal/manifest"
	"metapipe/internal/media/ffprobe"
	"metapipe/internal/services"
)

func newManifestCommand(ctx *commandContext) *cobra.Command {
	manifestCmd := &cobra.Command{
		Use:   "manifest",
		Short: "Inspect the build manifest",
	}
	manifestCmd.AddCommand(newManifestCheckCommand(ctx))
	return manifestCmd
}

func newManifestCheckCommand(ctx *commandContext) *cobra.Command {
	var prod bool
	cmd := &cobra.Command{
		Use:   "check",
		Short: "Compare the manifest on disk with the one a run would write",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig(cmd)
			if err != nil {
				return err
			}
			logger, err := ctx.ensureLogger()
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("prod") {
				cfg.Build.Prod = prod
			}

			sel, err := assets.Classify(cfg.Paths.PublicDir, assets.Options{
				Exclude: cfg.Build.Exclude,
				Skip:    []string{cfg.Names.Manifest},
			})
			if err != nil {
				return err
			}
			prober := ffprobe.Client{Binary: cfg.FFprobeBinary()}
			durations, err := convert.Durations(cmd.Context(), prober, sel.Assets(assets.Sound), cfg.Build.MaxParallel, logger)
			if err != nil {
				return err
			}
			expected := manifest.Build(cfg.Build.Prod, cfg.Build.GameVersion, durations)

			path := filepath.Join(cfg.ManifestDir(), cfg.Names.Manifest)
			current, err := manifest.Read(path)
			if err != nil {
				if errors.Is(err, fs.ErrNotExist) {
					return services.Wrap(services.ErrConfig, "manifest", "check", path+" does not exist", nil)
				}
				return err
			}
			diff, err := manifest.Diff(current, expected, path, "expected")
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if diff == "" {
				fmt.Fprintf(out, "Manifest %s is up to date\n", path)
				return nil
			}
			fmt.Fprint(out, diff)
			return services.Wrap(services.ErrConfig, "manifest", "check", path+" is out of date", nil)
		},
	}
	cmd.Flags().BoolVar(&prod, "prod", false, "Check the production manifest")
	return cmd
}
