package main

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/coopfund/backoffice/internal/cli"
)

func jobCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "job",
		Short: "Inspect and run batch jobs",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List scheduled jobs",
		Args:  cobra.NoArgs,
		RunE:  runJobList,
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "run <name>",
		Short: "Run a job now under its lock",
		Long: `Run a job immediately. Names: archive, notifications, delinquency and,
when sync is enabled, sync. A job already running elsewhere is skipped.`,
		Args: cobra.ExactArgs(1),
		RunE: runJob,
	})
	return cmd
}

func runJobList(cmd *cobra.Command, _ []string) error {
	e, err := loadEnv(cmd)
	if err != nil {
		return err
	}
	node, err := openNode(cmd.Context(), e)
	if err != nil {
		return err
	}
	defer node.Shutdown(context.Background())

	jobs := node.App().Scheduler.Jobs()
	return e.out.Result(jobs, func(w io.Writer) {
		tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "NAME\tSPEC")
		for _, j := range jobs {
			spec := j.Spec
			if spec == "" {
				spec = "(manual)"
			}
			fmt.Fprintf(tw, "%s\t%s\n", j.Name, spec)
		}
		tw.Flush()
	})
}

func runJob(cmd *cobra.Command, args []string) error {
	e, err := loadEnv(cmd)
	if err != nil {
		return err
	}
	ctx, stop := signalContext()
	defer stop()

	node, err := openNode(ctx, e)
	if err != nil {
		return err
	}
	defer node.Shutdown(context.Background())

	started := time.Now()
	if err := node.App().RunJob(ctx, args[0]); err != nil {
		return fmt.Errorf("job %s: %w", args[0], err)
	}
	e.out.Success(fmt.Sprintf("job %s completed in %s", args[0], cli.FormatDuration(time.Since(started))))
	return nil
}
