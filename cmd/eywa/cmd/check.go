package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ShankarKakumani/eywa/internal/engine"
	"github.com/ShankarKakumani/eywa/internal/output"
)

func newCheckCmd() *cobra.Command {
	var repair bool

	cmd := &cobra.Command{
		Use:   "check",
		Short: "Check index consistency against the content store",
		Long: `Scan the lexical and vector indexes for entries that disagree
with the content store. Interrupted commits leave orphaned index
entries; --repair removes them. Missing index entries are reported
and fixed by re-ingesting the affected documents.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withEngine(cmd, func(ctx context.Context, e *engine.Engine) error {
				result, err := e.CheckConsistency(ctx)
				if err != nil {
					return err
				}

				out := output.New(cmd.OutOrStdout())
				if len(result.Inconsistencies) == 0 {
					out.Successf("consistent: %d chunks checked in %s", result.Checked, result.Duration)
					return nil
				}

				for _, issue := range result.Inconsistencies {
					out.Warningf("%s: %s", issue.Type, issue.ChunkID)
				}

				if !repair {
					return fmt.Errorf("%d inconsistencies found; re-run with --repair to remove orphans", len(result.Inconsistencies))
				}

				if err := e.RepairConsistency(ctx, result.Inconsistencies); err != nil {
					return err
				}
				out.Successf("repaired %d inconsistencies", len(result.Inconsistencies))
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&repair, "repair", false, "Remove orphaned index entries")
	return cmd
}
