package main

import (
	"context"
	"errors"
	"time"

	"github.com/spf13/cobra"

	"github.com/coopfund/backoffice/internal/cli"
)

func syncCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Run one local/cloud database sync pass",
		Long: `Run one sync pass between the local and cloud databases.

Rows move in foreign-key order, newest updated_at wins, and the pass aborts
without changes if either side is unreachable.`,
		Args: cobra.NoArgs,
		RunE: runSync,
	}
}

func runSync(cmd *cobra.Command, _ []string) error {
	e, err := loadEnv(cmd)
	if err != nil {
		return err
	}
	if !e.cfg.Sync.Enabled {
		return errors.New("sync is disabled; set sync.enabled or SYNC_ENABLED")
	}
	ctx, stop := signalContext()
	defer stop()

	node, err := openNode(ctx, e)
	if err != nil {
		return err
	}
	defer node.Shutdown(context.Background())

	spinner := cli.NewSpinner(cmd.ErrOrStderr(), "syncing")
	spinner.Start()
	started := time.Now()
	result, err := node.App().Sync.Run(ctx)
	spinner.Stop()
	if err != nil {
		e.out.Error(err.Error())
		return err
	}
	return e.out.SyncReport(result, time.Since(started))
}
