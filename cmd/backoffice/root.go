package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/coopfund/backoffice/internal/app/runtime"
	"github.com/coopfund/backoffice/internal/cli"
	"github.com/coopfund/backoffice/internal/config"
	"github.com/coopfund/backoffice/pkg/logger"
)

var version = "dev"

func rootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "backoffice",
		Short:         "Cooperative loan back office",
		Long:          `Manages cooperatives, loan programs, checklists, amortization schedules and the local/cloud database sync.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringP("config", "c", "", "Path to the YAML config (default config/backoffice.yaml)")
	cmd.PersistentFlags().Bool("json", false, "Output in JSON format")

	cmd.AddCommand(serveCmd())
	cmd.AddCommand(migrateCmd())
	cmd.AddCommand(syncCmd())
	cmd.AddCommand(jobCmd())
	cmd.AddCommand(userCmd())
	return cmd
}

// env is what every subcommand needs once flags are parsed.
type env struct {
	cfg *config.Config
	log *logger.Logger
	out *cli.Printer
}

func loadEnv(cmd *cobra.Command) (*env, error) {
	path, _ := cmd.Flags().GetString("config")
	jsonOutput, _ := cmd.Flags().GetBool("json")

	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	log := logger.New(logger.LoggingConfig{
		Level:      cfg.Logging.Level,
		Format:     cfg.Logging.Format,
		Output:     cfg.Logging.Output,
		FilePrefix: cfg.Logging.FilePrefix,
		Dir:        cfg.Logging.Dir,
	})
	return &env{cfg: cfg, log: log, out: cli.NewPrinter(cmd.OutOrStdout(), jsonOutput)}, nil
}

// openNode builds the application without the HTTP server. Callers release it
// with Shutdown.
func openNode(ctx context.Context, e *env) (*runtime.Application, error) {
	node, err := runtime.NewApplication(ctx, e.cfg, e.log, runtime.WithoutHTTP())
	if err != nil {
		return nil, fmt.Errorf("initialise: %w", err)
	}
	return node, nil
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}
