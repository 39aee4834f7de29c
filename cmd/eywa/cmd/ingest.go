package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/ShankarKakumani/eywa/internal/engine"
	"github.com/ShankarKakumani/eywa/internal/ingest"
	"github.com/ShankarKakumani/eywa/internal/job"
	"github.com/ShankarKakumani/eywa/internal/output"
)

type ingestOptions struct {
	source     string
	format     string
	jsonOutput bool
}

func newIngestCmd() *cobra.Command {
	var opts ingestOptions

	cmd := &cobra.Command{
		Use:   "ingest <files...>",
		Short: "Ingest documents into the knowledge base",
		Long: `Ingest one or more files as documents.

Each file becomes one document; its path is the document ID. The job
runs asynchronously through the pipeline and this command waits for it
to finish, reporting per-document outcomes.

Examples:
  eywa ingest notes/*.md --source notes
  eywa ingest README.md --format markdown`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd, func(ctx context.Context, e *engine.Engine) error {
				return runIngest(ctx, cmd, e, args, opts)
			})
		},
	}

	cmd.Flags().StringVarP(&opts.source, "source", "s", "default", "Source the documents belong to")
	cmd.Flags().StringVarP(&opts.format, "format", "f", "", "Document format: markdown, text (default: detect)")
	cmd.Flags().BoolVar(&opts.jsonOutput, "json", false, "Output the final job as JSON")

	return cmd
}

func runIngest(ctx context.Context, cmd *cobra.Command, e *engine.Engine, paths []string, opts ingestOptions) error {
	docs := make([]ingest.Document, 0, len(paths))
	for _, path := range paths {
		content, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", path, err)
		}
		abs, err := filepath.Abs(path)
		if err != nil {
			abs = filepath.Clean(path)
		}
		docs = append(docs, ingest.Document{
			ID:       abs,
			SourceID: opts.source,
			Title:    strings.TrimSuffix(filepath.Base(path), filepath.Ext(path)),
			Format:   opts.format,
			Content:  string(content),
		})
	}

	jb, err := e.Ingest(ctx, docs)
	if err != nil {
		return err
	}

	out := output.New(cmd.OutOrStdout())

	var final *job.Job
	if opts.jsonOutput {
		final, err = e.WaitJob(ctx, jb.ID)
	} else {
		out.Statusf("⏳", "job %s: ingesting %d document(s)", jb.ID, jb.TotalDocs)
		final, err = waitWithProgress(ctx, e, out, jb.ID)
	}
	if err != nil {
		return err
	}

	if opts.jsonOutput {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(final)
	}

	if final.State == job.StateDone {
		out.Successf("job %s done: %d completed, %d failed", final.ID, final.CompletedDocs, final.FailedDocs)
	} else {
		out.Errorf("job %s failed: %s", final.ID, final.Error)
	}

	if final.FailedDocs > 0 {
		statuses, stErr := e.JobDocuments(ctx, final.ID)
		if stErr == nil {
			for _, st := range statuses {
				if st.State == job.StateFailed {
					out.Warningf("%s: %s", st.DocID, st.Error)
				}
			}
		}
	}

	if final.State != job.StateDone {
		return fmt.Errorf("job %s failed", final.ID)
	}
	return nil
}

// waitWithProgress polls the job and renders a progress bar until it
// reaches a terminal state.
func waitWithProgress(ctx context.Context, e *engine.Engine, out *output.Writer, jobID string) (*job.Job, error) {
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		jb, err := e.Job(ctx, jobID)
		if err != nil {
			return nil, err
		}

		processed := jb.CompletedDocs + jb.FailedDocs
		out.Progress(processed, jb.TotalDocs, "ingesting")

		if jb.State == job.StateDone || jb.State == job.StateFailed {
			if processed < jb.TotalDocs {
				out.ProgressDone()
			}
			return jb, nil
		}

		select {
		case <-ctx.Done():
			out.ProgressDone()
			return jb, ctx.Err()
		case <-ticker.C:
		}
	}
}
