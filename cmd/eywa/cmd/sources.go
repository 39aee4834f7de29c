package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/ShankarKakumani/eywa/internal/engine"
)

func newSourcesCmd() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "sources",
		Short: "Show per-source and overall statistics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withEngine(cmd, func(ctx context.Context, e *engine.Engine) error {
				stats, err := e.Stats(ctx)
				if err != nil {
					return err
				}

				if jsonOutput {
					enc := json.NewEncoder(cmd.OutOrStdout())
					enc.SetIndent("", "  ")
					return enc.Encode(stats)
				}

				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "documents: %d  chunks: %d  vectors: %d  lexical: %d\n\n",
					stats.Documents, stats.Chunks, stats.Vectors, stats.LexicalDocs)

				w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
				fmt.Fprintln(w, "SOURCE\tDOCUMENTS\tCHUNKS")
				for _, s := range stats.Sources {
					fmt.Fprintf(w, "%s\t%d\t%d\n", s.SourceID, s.DocumentCount, s.ChunkCount)
				}
				return w.Flush()
			})
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	return cmd
}
