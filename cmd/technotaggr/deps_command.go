package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"technotaggr/internal/preflight"
)

func newDepsCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "deps",
		Short: "Check external tools, directories and the model bundle",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			r := newReport(cmd.OutOrStdout())

			r.heading("Dependencies")
			missing := r.dependencies(preflight.CheckSystemDeps(cfg))
			r.blank()
			r.heading("Environment")
			failed := r.preflight(preflight.RunAll(cfg))

			if missing > 0 || failed > 0 {
				return fmt.Errorf("%d missing dependencies, %d failed checks", missing, failed)
			}
			return nil
		},
	}
}
