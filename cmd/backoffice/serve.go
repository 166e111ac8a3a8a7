package main

import (
	"context"
	"time"

	"github.com/spf13/cobra"

	"github.com/coopfund/backoffice/internal/app/runtime"
)

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the job scheduler",
		Args:  cobra.NoArgs,
		RunE:  runServe,
	}
}

func runServe(cmd *cobra.Command, _ []string) error {
	e, err := loadEnv(cmd)
	if err != nil {
		return err
	}
	ctx, stop := signalContext()
	defer stop()

	node, err := runtime.NewApplication(ctx, e.cfg, e.log)
	if err != nil {
		return err
	}
	e.log.WithField("addr", runtime.ListenAddr(e.cfg.Server)).
		WithField("sync", e.cfg.Sync.Enabled).
		WithField("version", version).
		Info("backoffice starting")

	runErr := node.Run(ctx)

	e.log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()
	if err := node.Shutdown(shutdownCtx); err != nil {
		e.log.WithError(err).Warn("shutdown incomplete")
	}
	return runErr
}
