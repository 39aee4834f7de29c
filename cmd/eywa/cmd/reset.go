package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ShankarKakumani/eywa/internal/engine"
	"github.com/ShankarKakumani/eywa/internal/output"
)

func newResetCmd() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Drop every store and the job queue",
		Long: `Remove all documents, indexes and job history from the data
directory. Requires --force.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !force {
				return fmt.Errorf("reset removes all data; re-run with --force to confirm")
			}
			return withEngine(cmd, func(ctx context.Context, e *engine.Engine) error {
				if err := e.Reset(ctx); err != nil {
					return err
				}
				output.New(cmd.OutOrStdout()).Success("data directory reset")
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Confirm the reset")
	return cmd
}
