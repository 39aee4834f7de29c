// Package cmd provides the CLI commands for eywa.
package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/ShankarKakumani/eywa/internal/config"
	"github.com/ShankarKakumani/eywa/internal/engine"
	"github.com/ShankarKakumani/eywa/internal/logging"
	"github.com/ShankarKakumani/eywa/internal/profiling"
	"github.com/ShankarKakumani/eywa/pkg/version"
)

var (
	dataDirFlag string
	debugMode   bool

	profileCPU string
	profileMem string
	profiler   = profiling.NewProfiler()
	cpuCleanup func()
)

// NewRootCmd creates the root command for the eywa CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "eywa",
		Short: "Local-first knowledge base with hybrid retrieval",
		Long: `Eywa ingests documents into a local knowledge base and answers
queries with hybrid retrieval: vector similarity and BM25 keyword
search fused together, then reranked.

Everything runs locally inside a single data directory.`,
		Version:       version.Version,
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	cmd.SetVersionTemplate("eywa version {{.Version}}\n")

	cmd.PersistentFlags().StringVar(&dataDirFlag, "data-dir", "", "Data directory (default ~/.eywa)")
	cmd.PersistentFlags().BoolVar(&debugMode, "debug", false, "Enable debug logging")
	cmd.PersistentFlags().StringVar(&profileCPU, "profile-cpu", "", "Write CPU profile to file")
	cmd.PersistentFlags().StringVar(&profileMem, "profile-mem", "", "Write memory profile to file")

	cmd.PersistentPreRunE = startProfiling
	cmd.PersistentPostRunE = stopProfiling

	cmd.AddCommand(newIngestCmd())
	cmd.AddCommand(newSearchCmd())
	cmd.AddCommand(newJobsCmd())
	cmd.AddCommand(newSourcesCmd())
	cmd.AddCommand(newDeleteCmd())
	cmd.AddCommand(newCheckCmd())
	cmd.AddCommand(newResetCmd())
	cmd.AddCommand(newConfigCmd())
	cmd.AddCommand(newVersionCmd())

	return cmd
}

// Execute runs the root command.
func Execute() error {
	return NewRootCmd().ExecuteContext(context.Background())
}

func startProfiling(_ *cobra.Command, _ []string) error {
	if profileCPU == "" {
		return nil
	}
	cleanup, err := profiler.StartCPU(profileCPU)
	if err != nil {
		return err
	}
	cpuCleanup = cleanup
	return nil
}

func stopProfiling(_ *cobra.Command, _ []string) error {
	if cpuCleanup != nil {
		cpuCleanup()
		cpuCleanup = nil
	}
	if profileMem != "" {
		return profiler.WriteHeap(profileMem)
	}
	return nil
}

// withEngine loads config, sets up logging, opens the engine, runs fn,
// and closes the engine afterwards.
func withEngine(cmd *cobra.Command, fn func(ctx context.Context, e *engine.Engine) error) error {
	cfg, err := config.Load(dataDirFlag)
	if err != nil {
		return err
	}

	logCfg := logging.Config{
		Level:     cfg.Logging.Level,
		FilePath:  logging.PathUnder(cfg.Storage.DataDir),
		MaxSizeMB: cfg.Logging.MaxSizeMB,
		MaxFiles:  cfg.Logging.MaxFiles,
	}
	if debugMode {
		logCfg.Level = "debug"
		logCfg.WriteToStderr = true
	}
	logger, cleanup, err := logging.Setup(logCfg)
	if err != nil {
		logger = slog.Default()
		cleanup = func() {}
	}
	defer cleanup()

	e, err := engine.Open(cfg, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return err
	}
	defer func() {
		if closeErr := e.Close(); closeErr != nil {
			logger.Warn("engine close failed", slog.String("error", closeErr.Error()))
		}
	}()

	return fn(cmd.Context(), e)
}
