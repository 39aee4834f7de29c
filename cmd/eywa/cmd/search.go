package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ShankarKakumani/eywa/internal/engine"
	"github.com/ShankarKakumani/eywa/internal/search"
)

type searchOptions struct {
	topK       int
	source     string
	minScore   float64
	jsonOutput bool
}

func newSearchCmd() *cobra.Command {
	var opts searchOptions

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search the knowledge base",
		Long: `Run hybrid retrieval over the knowledge base.

Vector and keyword candidates are fused and reranked; the top results
come back with their document, source and position.

Examples:
  eywa search "raft leader election"
  eywa search "token bucket" --source notes --top-k 3
  eywa search "compaction strategy" --json`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			query := strings.Join(args, " ")
			return withEngine(cmd, func(ctx context.Context, e *engine.Engine) error {
				return runSearch(ctx, cmd, e, query, opts)
			})
		},
	}

	cmd.Flags().IntVarP(&opts.topK, "top-k", "k", 0, "Number of results (default 5)")
	cmd.Flags().StringVarP(&opts.source, "source", "s", "", "Restrict results to one source")
	cmd.Flags().Float64Var(&opts.minScore, "min-score", 0, "Drop results below this fused score")
	cmd.Flags().BoolVar(&opts.jsonOutput, "json", false, "Output results as JSON")

	return cmd
}

func runSearch(ctx context.Context, cmd *cobra.Command, e *engine.Engine, query string, opts searchOptions) error {
	results, err := e.Search(ctx, query, search.Options{
		TopK:     opts.topK,
		SourceID: opts.source,
		MinScore: opts.minScore,
	})
	if err != nil {
		return err
	}

	if opts.jsonOutput {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(results)
	}

	w := cmd.OutOrStdout()
	if len(results) == 0 {
		fmt.Fprintln(w, "no results")
		return nil
	}

	for i, r := range results {
		title := r.Title
		if title == "" {
			title = r.DocID
		}
		fmt.Fprintf(w, "%d. %s (%s) score=%.3f\n", i+1, title, r.SourceID, r.Score)
		if len(r.HeaderTrail) > 0 {
			fmt.Fprintf(w, "   %s\n", strings.Join(r.HeaderTrail, " > "))
		}
		fmt.Fprintf(w, "   %s\n\n", excerpt(r.Text, 200))
	}
	return nil
}

// excerpt returns the first n runes of text with newlines collapsed.
func excerpt(text string, n int) string {
	text = strings.Join(strings.Fields(text), " ")
	runes := []rune(text)
	if len(runes) <= n {
		return text
	}
	return string(runes[:n]) + "…"
}
