// Package cli provides the command-line interface for memgen.
package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/raphaelgruber/memgen-go/internal/config"
	"github.com/raphaelgruber/memgen-go/internal/generation"
	"github.com/raphaelgruber/memgen-go/internal/llm"
	"github.com/raphaelgruber/memgen-go/internal/lock"
	"github.com/raphaelgruber/memgen-go/internal/metrics"
	"github.com/raphaelgruber/memgen-go/internal/service"
	"github.com/raphaelgruber/memgen-go/internal/store"
)

var (
	// Version is set at build time.
	Version = "0.1.0"

	// Global flags
	verbose bool

	// Global config, logger and storage gateway
	cfg        config.Config
	logger     *slog.Logger
	logCleanup func() error
	gateway    store.Gateway

	// Set when the surrealdb backend is active, for Close on exit.
	surrealStore *store.SurrealStore

	// Lazy-initialized LLM model, shared across services.
	model *llm.Model

	configCache = service.NewConfigCache()
	collector   = metrics.NewCollector()
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "memgen",
	Short: "Artifact generation orchestrator",
	Long: `Memgen runs LLM extraction pipelines over per-scope input and manages
the resulting artifacts through a staged lifecycle (pending, current,
archived).

Runs are exclusively tracked per scope: triggers that arrive while a run
is active are coalesced into a re-run instead of being dropped or run
concurrently. Batch mode processes many scopes with persisted progress
and cooperative cancellation.`,
	Version: Version,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// Skip setup for version and help commands
		if cmd.Name() == "version" || cmd.Name() == "help" {
			return nil
		}

		cfg = config.Load()
		if verbose {
			cfg.LogLevel = slog.LevelDebug
		}
		logger, logCleanup = config.SetupLogger(cfg.LogFile, cfg.LogLevel)

		ctx := context.Background()
		switch cfg.StoreBackend {
		case config.BackendFile:
			fs, err := store.NewFileStore(cfg.StatePath, logger)
			if err != nil {
				return fmt.Errorf("open state file: %w", err)
			}
			gateway = fs

		case config.BackendSurreal:
			ss, err := store.NewSurrealStore(ctx, store.SurrealConfig{
				URL:       cfg.SurrealDBURL,
				Namespace: cfg.SurrealDBNamespace,
				Database:  cfg.SurrealDBDatabase,
				Username:  cfg.SurrealDBUser,
				Password:  cfg.SurrealDBPass,
				AuthLevel: cfg.SurrealDBAuthLevel,
			}, logger)
			if err != nil {
				return fmt.Errorf("connect to database: %w", err)
			}
			surrealStore = ss
			gateway = ss

		default:
			return fmt.Errorf("unknown store backend: %s", cfg.StoreBackend)
		}

		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if surrealStore != nil {
			if err := surrealStore.Close(context.Background()); err != nil {
				fmt.Fprintf(os.Stderr, "Warning: failed to close database: %v\n", err)
			}
		}
		if logCleanup != nil {
			_ = logCleanup()
		}
	},
}

// getService resolves a service name to its wired generation service,
// lazily initializing the LLM model.
func getService(name, inputPath string) (generation.Service, error) {
	if model == nil {
		m, err := llm.NewModel(cfg)
		if err != nil {
			return nil, fmt.Errorf("init model: %w", err)
		}
		model = m
	}

	input := service.FileInput{Path: inputPath}
	switch name {
	case "profile":
		return service.NewProfileService(gateway, model, input, cfg.ExtractorConfigPath, configCache), nil
	case "feedback":
		return service.NewFeedbackService(gateway, model, input, cfg.ExtractorConfigPath), nil
	default:
		return nil, fmt.Errorf("unknown service: %s (want profile or feedback)", name)
	}
}

// newOrchestrator wires an orchestrator for a service using the active
// gateway and config.
func newOrchestrator(svc generation.Service) *generation.Orchestrator {
	locks := lock.NewCoordinator(gateway, cfg.StaleAfter, logger)
	return generation.New(svc, locks, generation.Options{
		Workers:          cfg.Workers,
		ExtractorTimeout: cfg.ExtractorTimeout,
		Metrics:          collector,
		Logger:           logger,
	})
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
}
