package cmd

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/ShankarKakumani/eywa/internal/engine"
	"github.com/ShankarKakumani/eywa/internal/output"
)

func newDeleteCmd() *cobra.Command {
	var bySource bool

	cmd := &cobra.Command{
		Use:   "delete <doc-id>",
		Short: "Delete a document, or a whole source with --source",
		Long: `Delete a document and its chunks from every store.

With --source the argument is a source ID and every document belonging
to it is removed.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd, func(ctx context.Context, e *engine.Engine) error {
				out := output.New(cmd.OutOrStdout())
				if bySource {
					n, err := e.DeleteSource(ctx, args[0])
					if err != nil {
						return err
					}
					out.Successf("deleted source %s (%d document(s))", args[0], n)
					return nil
				}
				if err := e.Delete(ctx, args[0]); err != nil {
					return err
				}
				out.Successf("deleted %s", args[0])
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&bySource, "source", false, "Treat the argument as a source ID")
	return cmd
}
