package main

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/kitsuneprints/storefront-backend/internal/cron"
	"github.com/kitsuneprints/storefront-backend/pkg/metrics"
)

var sweepBuilders = map[string]func(cron.SweepJobParams) (cron.Job, error){
	"reminders": cron.NewPaymentReminderJob,
	"expiry":    cron.NewOrderExpiryJob,
}

func sweepCmd(open opener) *cobra.Command {
	var batchSize int
	cmd := &cobra.Command{
		Use:       "sweep reminders|expiry",
		Short:     "Run one pass of an order sweep outside the cron schedule",
		Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		ValidArgs: []string{"reminders", "expiry"},
		RunE: func(cmd *cobra.Command, args []string) error {
			build := sweepBuilders[args[0]]

			rt, err := open(cmd.Context())
			if err != nil {
				return err
			}
			defer rt.Close()

			job, err := build(cron.SweepJobParams{
				Logger:      rt.logg,
				Orders:      rt.svcs.Orders,
				Metrics:     metrics.NewCronJobMetrics(prometheus.NewRegistry()),
				RemindAfter: rt.cfg.Scheduler.ReminderAfter,
				ExpireAfter: rt.cfg.Scheduler.ExpireAfter,
				BatchSize:   batchSize,
			})
			if err != nil {
				return err
			}
			if err := job.Run(cmd.Context()); err != nil {
				return fmt.Errorf("%s: %w", job.Name(), err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s sweep finished\n", job.Name())
			return nil
		},
	}
	cmd.Flags().IntVar(&batchSize, "batch-size", 0, "candidates per pass (0 uses the default)")
	return cmd
}
