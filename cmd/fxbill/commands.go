package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/platinummonkey/fxbill/pkg/billing"
	"github.com/platinummonkey/fxbill/pkg/observability"
	"github.com/platinummonkey/fxbill/pkg/scheduler"
)

func quoteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "quote",
		Short: "Print the current rate and local price",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app) error {
				quote, err := a.service.Quote(ctx)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), quote)
			})
		},
	}
}

func issueCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "issue [customer-id] [period]",
		Short: "Issue a period for a customer, defaulting to the current period",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			regenerate, _ := cmd.Flags().GetBool("regenerate")

			return withApp(cmd, func(ctx context.Context, a *app) error {
				period := periodArg(args, a.service)
				op := a.service.Generate
				if regenerate {
					op = a.service.Regenerate
				}

				result, err := op(ctx, args[0], period)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), result)
			})
		},
	}

	cmd.Flags().BoolP("regenerate", "r", false, "Renew the payment link of an issued period")

	return cmd
}

func overviewCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "overview [customer-id] [period]",
		Short: "Print the billing overview of a customer period",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app) error {
				overview, err := a.service.Overview(ctx, args[0], periodArg(args, a.service))
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), overview)
			})
		},
	}
}

func scheduleCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "schedule",
		Short: "Run the issuing job on its cron schedule",
		RunE: func(cmd *cobra.Command, args []string) error {
			runOnce, _ := cmd.Flags().GetBool("run-once")

			return withApp(cmd, func(ctx context.Context, a *app) error {
				sched, err := scheduler.New(a.cfg.Scheduler, a.store, a.service, a.logger, a.metrics)
				if err != nil {
					return err
				}

				if runOnce {
					summary, err := sched.RunOnce(ctx)
					if perr := printJSON(cmd.OutOrStdout(), summary); perr != nil {
						return perr
					}
					return err
				}

				sched.Start()
				a.logger.WithField("schedule", a.cfg.Scheduler.Schedule).Info("Billing scheduler running")

				sigCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
				defer stop()
				<-sigCtx.Done()

				stopCtx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout)
				defer cancel()
				return sched.Stop(stopCtx)
			})
		},
	}

	cmd.Flags().Bool("run-once", false, "Run the job once, print the summary and exit")

	return cmd
}

// withApp builds the shared components, runs fn and releases them
func withApp(cmd *cobra.Command, fn func(ctx context.Context, a *app) error) error {
	ctx := cmd.Context()

	a, err := newApp(ctx)
	if err != nil {
		return err
	}

	closeCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	defer a.close(closeCtx)

	ctx = observability.WithLogger(ctx, a.logger)
	return fn(ctx, a)
}

func periodArg(args []string, svc *billing.Service) string {
	if len(args) > 1 {
		return args[1]
	}
	return billing.CurrentPeriod(time.Now(), svc.Location())
}

func printJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("failed to encode output: %w", err)
	}
	return nil
}
