package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Poll the queue until interrupted",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		e, err := setup(ctx)
		if err != nil {
			return err
		}
		defer e.Close()

		w, err := e.worker(ctx)
		if err != nil {
			return err
		}
		return w.Run(ctx)
	},
}

var onceCmd = &cobra.Command{
	Use:   "once",
	Short: "Recover stale claims and drain the queue once, for cron",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		e, err := setup(ctx)
		if err != nil {
			return err
		}
		defer e.Close()

		w, err := e.worker(ctx)
		if err != nil {
			return err
		}
		stats, err := w.RunOnce(ctx)
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), stats)
	},
}

var recoverCmd = &cobra.Command{
	Use:   "recover",
	Short: "Requeue in-progress jobs whose claim went stale",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		e, err := setup(ctx)
		if err != nil {
			return err
		}
		defer e.Close()

		jobs, err := e.queue.RecoverStale(ctx)
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), map[string]any{"recovered": len(jobs), "jobs": jobs})
	},
}
