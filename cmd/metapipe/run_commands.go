package main

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"metapipe/internal/assets"
	"metapipe/internal/config"
	"metapipe/internal/convert"
	"metapipe/internal/media/imagecodec"
	"metapipe/internal/pipeline"
	"metapipe/internal/preflight"
	"metapipe/internal/services"
)

func newRunCommands(ctx *commandContext) []*cobra.Command {
	build := &cobra.Command{
		Use:   "build",
		Short: "Convert assets, write the production manifest, and fill the out dir",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPipeline(cmd, ctx, pipeline.ModeBuild)
		},
	}
	convertCmd := &cobra.Command{
		Use:   "convert",
		Short: "Reclaim stale outputs and convert changed assets into the storage cache",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPipeline(cmd, ctx, pipeline.ModeConvert)
		},
	}
	dev := &cobra.Command{
		Use:   "dev",
		Short: "Write a development manifest advertising source formats",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPipeline(cmd, ctx, pipeline.ModeDev)
		},
	}
	hash := &cobra.Command{
		Use:   "hash",
		Short: "Record current fingerprints without converting",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPipeline(cmd, ctx, pipeline.ModeHash)
		},
	}
	return []*cobra.Command{build, convertCmd, dev, hash}
}

func runPipeline(cmd *cobra.Command, ctx *commandContext, mode pipeline.Mode) error {
	cfg, err := ctx.ensureConfig(cmd)
	if err != nil {
		return err
	}
	logger, err := ctx.ensureLogger()
	if err != nil {
		return err
	}
	if mode == pipeline.ModeBuild {
		cfg.Build.Prod = true
	}
	if failed := preflight.Failed(preflight.RunAll(cfg)); len(failed) > 0 {
		details := make([]string, 0, len(failed))
		for _, r := range failed {
			details = append(details, r.Name+": "+r.Detail)
		}
		return services.Wrap(services.ErrIO, "preflight", "check directories", strings.Join(details, "; "), nil)
	}

	opts := pipeline.Options{Mode: mode, SeedOutDir: mode == pipeline.ModeBuild}
	var progress *progressObserver
	if mode == pipeline.ModeBuild || mode == pipeline.ModeConvert {
		if sel, err := assets.Classify(cfg.Paths.PublicDir, assets.Options{Exclude: cfg.Build.Exclude}); err == nil {
			progress = newProgressObserver(cmd.ErrOrStderr(), sel.Len(), ctx.flags.noProgress)
		}
	}
	defer imagecodec.Shutdown()
	if progress != nil {
		opts.Observer = progress
	}

	runner := pipeline.New(cfg, pipeline.NewDeps(cfg, logger), logger)
	state, runErr := runner.Run(cmd.Context(), opts)
	progress.finish()
	if state != nil {
		printSummary(cmd.OutOrStdout(), cfg, state)
	}
	return runErr
}

func printSummary(w io.Writer, cfg *config.Config, state *pipeline.State) {
	fmt.Fprintf(w, "Run %s (%s) finished in %s\n", state.RunID, state.Mode, state.Elapsed.Round(time.Millisecond))

	switch state.Mode {
	case pipeline.ModeHash:
		fmt.Fprintf(w, "Fingerprints recorded: %d\n", state.Hashed)
	case pipeline.ModeDev, pipeline.ModeBundle:
		fmt.Fprintf(w, "Sound tracks probed: %d\n", len(state.Durations))
	default:
		rows := make([][]string, 0, len(assets.Kinds()))
		var total [3]int
		for _, kind := range assets.Kinds() {
			counts := [3]int{}
			for _, out := range state.Convert.Outcomes {
				if out.Kind != kind {
					continue
				}
				switch out.Status {
				case convert.StatusConverted:
					counts[0]++
				case convert.StatusSkipped:
					counts[1]++
				case convert.StatusFailed:
					counts[2]++
				}
			}
			for i := range counts {
				total[i] += counts[i]
			}
			rows = append(rows, []string{kind.String(), strconv.Itoa(counts[0]), strconv.Itoa(counts[1]), strconv.Itoa(counts[2])})
		}
		fmt.Fprintln(w, tableSpec{
			headers: []string{"Kind", "Converted", "Cached", "Failed"},
			rows:    rows,
			footer:  []string{"Total", strconv.Itoa(total[0]), strconv.Itoa(total[1]), strconv.Itoa(total[2])},
			aligns:  []columnAlignment{alignLeft, alignRight, alignRight, alignRight},
		}.render())
		if n := len(state.Reclaim.Removed); n > 0 {
			fmt.Fprintf(w, "Stale outputs reclaimed: %d\n", n)
		}
		for _, failure := range state.Convert.Failures() {
			fmt.Fprintf(w, "FAILED %s: %v\n", failure.Key, failure.Err)
		}
		for _, out := range state.Convert.Sorted() {
			for _, warning := range out.Warnings {
				fmt.Fprintf(w, "WARN %s: %s\n", out.Key, warning)
			}
		}
	}
	if state.ManifestPath != "" {
		fmt.Fprintf(w, "Manifest: %s\n", state.ManifestPath)
	}
	if state.Mode == pipeline.ModeBuild && len(state.Transfer.Copied) > 0 {
		fmt.Fprintf(w, "Transferred %d outputs into %s\n", len(state.Transfer.Copied), cfg.Paths.OutDir)
	}
}
