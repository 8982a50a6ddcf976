package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"metapipe/internal/preflight"
	"metapipe/internal/services"
)

func newDoctorCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Check directories and external tools",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig(cmd)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if ctx.configSeen {
				fmt.Fprintf(out, "Config: %s\n", ctx.configPath)
			} else {
				fmt.Fprintf(out, "Config: defaults (no file at %s)\n", ctx.configPath)
			}

			failures := 0
			dirRows := [][]string{}
			for _, r := range preflight.RunAll(cfg) {
				if !r.Passed {
					failures++
				}
				dirRows = append(dirRows, []string{r.Name, yesNo(r.Passed), r.Detail})
			}
			fmt.Fprintln(out, tableSpec{
				title:   "Directories",
				headers: []string{"Check", "OK", "Detail"},
				rows:    dirRows,
			}.render())

			toolRows := [][]string{}
			for _, s := range preflight.CheckSystemDeps(cmd.Context(), cfg) {
				if !s.Available && !s.Optional {
					failures++
				}
				detail := s.Detail
				if detail == "" {
					detail = s.Description
				}
				command := s.Command
				if s.Path != "" {
					command = s.Path
				}
				toolRows = append(toolRows, []string{s.Name, command, yesNo(s.Available), detail})
			}
			fmt.Fprintln(out, tableSpec{
				title:   "Tools",
				headers: []string{"Tool", "Command", "OK", "Detail"},
				rows:    toolRows,
			}.render())

			if failures > 0 {
				return services.Wrap(services.ErrConfig, "doctor", "check", fmt.Sprintf("%d checks failed", failures), nil)
			}
			fmt.Fprintln(out, "All checks passed")
			return nil
		},
	}
}
