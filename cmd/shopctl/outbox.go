package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/kitsuneprints/storefront-backend/pkg/enums"
	"github.com/kitsuneprints/storefront-backend/pkg/outbox"
)

func outboxCmd(open opener) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "outbox",
		Short: "Inspect and replay dead-lettered domain events",
	}
	cmd.AddCommand(outboxDLQCmd(open), outboxRequeueCmd(open))
	return cmd
}

func outboxDLQCmd(open opener) *cobra.Command {
	var (
		reason    string
		eventType string
		limit     int
	)
	cmd := &cobra.Command{
		Use:   "dlq",
		Short: "List dead-lettered events, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			filter := outbox.DLQFilter{Limit: limit}
			var err error
			if filter.Reason, err = enums.ParseOutboxDLQErrorReason(reason); err != nil {
				return err
			}
			if eventType != "" {
				if filter.EventType, err = enums.ParseOutboxEventType(eventType); err != nil {
					return err
				}
			}

			rt, err := open(cmd.Context())
			if err != nil {
				return err
			}
			defer rt.Close()

			rows, err := outbox.NewDLQRepository(rt.db.DB()).List(cmd.Context(), filter)
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "EVENT\tTYPE\tREASON\tATTEMPTS\tFAILED AT\tERROR")
			for _, row := range rows {
				msg := ""
				if row.ErrorMessage != nil {
					msg = *row.ErrorMessage
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\t%s\n",
					row.EventID, row.EventType, row.ErrorReason, row.AttemptCount, row.FailedAt.Format("2006-01-02 15:04:05"), msg)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().StringVar(&reason, "reason", "", "max_attempts or non_retryable")
	cmd.Flags().StringVar(&eventType, "type", "", "event type, e.g. order.created")
	cmd.Flags().IntVar(&limit, "limit", 50, "rows to show")
	return cmd
}

func outboxRequeueCmd(open opener) *cobra.Command {
	return &cobra.Command{
		Use:   "requeue <eventId>",
		Short: "Return a dead-lettered event to the publisher",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			eventID, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid event id %q: %w", args[0], err)
			}
			rt, err := open(cmd.Context())
			if err != nil {
				return err
			}
			defer rt.Close()

			if err := outbox.NewDLQRepository(rt.db.DB()).Requeue(cmd.Context(), eventID); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "event %s requeued\n", eventID)
			return nil
		},
	}
}
