package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"metapipe/internal/logs"
	"metapipe/internal/services"
)

func newLogsCommand(ctx *commandContext) *cobra.Command {
	var (
		lines  int
		follow bool
		runID  string
	)
	cmd := &cobra.Command{
		Use:   "logs",
		Short: "Show the tail of the metapipe log file",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig(cmd)
			if err != nil {
				return err
			}
			path := strings.TrimSpace(cfg.Logging.File)
			if path == "" {
				return services.Wrap(services.ErrConfig, "logs", "resolve", "logging.file is not configured", nil)
			}
			keep := logs.RunFilter(runID)
			tail, offset, err := logs.Last(path, lines, keep)
			if err != nil {
				return services.Wrap(services.ErrIO, "logs", "read", path, err)
			}
			out := cmd.OutOrStdout()
			for _, line := range tail {
				fmt.Fprintln(out, line)
			}
			if !follow {
				return nil
			}
			return logs.Follow(cmd.Context(), path, offset, 0, keep, func(line string) {
				fmt.Fprintln(out, line)
			})
		},
	}
	cmd.Flags().IntVarP(&lines, "lines", "n", 50, "Number of trailing lines to show")
	cmd.Flags().BoolVarP(&follow, "follow", "f", false, "Keep printing new lines until interrupted")
	cmd.Flags().StringVar(&runID, "run", "", "Only show lines from this run ID")
	return cmd
}
