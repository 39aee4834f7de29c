package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/ShankarKakumani/eywa/internal/engine"
	"github.com/ShankarKakumani/eywa/internal/job"
)

func newJobsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "jobs",
		Short: "Inspect ingestion jobs",
	}
	cmd.AddCommand(newJobsListCmd())
	cmd.AddCommand(newJobsShowCmd())
	return cmd
}

func newJobsListCmd() *cobra.Command {
	var limit int
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List ingestion jobs, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withEngine(cmd, func(ctx context.Context, e *engine.Engine) error {
				jobs, err := e.Jobs(ctx, limit)
				if err != nil {
					return err
				}

				if jsonOutput {
					enc := json.NewEncoder(cmd.OutOrStdout())
					enc.SetIndent("", "  ")
					return enc.Encode(jobs)
				}

				w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintln(w, "ID\tSOURCE\tSTATE\tTOTAL\tCOMPLETED\tFAILED\tCREATED")
				for _, jb := range jobs {
					fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%d\t%d\t%s\n",
						jb.ID, jb.SourceID, jb.State, jb.TotalDocs, jb.CompletedDocs, jb.FailedDocs,
						jb.CreatedAt.Format("2006-01-02 15:04:05"))
				}
				return w.Flush()
			})
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Maximum jobs to list")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	return cmd
}

func newJobsShowCmd() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "show <job-id>",
		Short: "Show one job with per-document statuses",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd, func(ctx context.Context, e *engine.Engine) error {
				jb, err := e.Job(ctx, args[0])
				if err != nil {
					return err
				}
				statuses, err := e.JobDocuments(ctx, args[0])
				if err != nil {
					return err
				}

				if jsonOutput {
					enc := json.NewEncoder(cmd.OutOrStdout())
					enc.SetIndent("", "  ")
					return enc.Encode(struct {
						Job       *job.Job              `json:"job"`
						Documents []*job.DocumentStatus `json:"documents"`
					}{jb, statuses})
				}

				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "job %s: %s (%d total, %d completed, %d failed)\n",
					jb.ID, jb.State, jb.TotalDocs, jb.CompletedDocs, jb.FailedDocs)
				if jb.SourceID != "" {
					fmt.Fprintf(out, "source: %s\n", jb.SourceID)
				}
				if jb.CurrentDoc != "" {
					fmt.Fprintf(out, "processing: %s\n", jb.CurrentDoc)
				}
				if jb.Error != "" {
					fmt.Fprintf(out, "error: %s\n", jb.Error)
				}

				w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
				fmt.Fprintln(w, "DOCUMENT\tTITLE\tSTATE\tERROR")
				for _, st := range statuses {
					fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", st.DocID, st.Title, st.State, st.Error)
				}
				return w.Flush()
			})
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	return cmd
}
