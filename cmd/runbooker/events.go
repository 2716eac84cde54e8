package main

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/mohammad-safakhou/runbooker/internal/queue/streams"
	"github.com/mohammad-safakhou/runbooker/internal/runtime"
)

func eventsCMD(load loader) *cobra.Command {
	var group string
	cmd := &cobra.Command{
		Use:   "events",
		Short: "Inspect the runbooker event stream",
	}
	cmd.PersistentFlags().StringVar(&group, "group", "runbooker-cli", "consumer group")

	tail := &cobra.Command{
		Use:   "tail",
		Short: "Follow the event stream and print each validated event",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			ctx, cancel := runtime.SignalContext(cmd.Context(), "runbooker")
			defer cancel()
			rdb, err := openRedis(ctx, cfg.Storage.Redis)
			if err != nil {
				return err
			}
			defer rdb.Close()

			reg, err := streams.NewRegistry()
			if err != nil {
				return err
			}
			host, _ := os.Hostname()
			consumer := streams.NewConsumer(rdb, reg, cfg.Events.Stream, group, fmt.Sprintf("%s-%d", host, os.Getpid()))
			if err := consumer.EnsureGroup(ctx); err != nil {
				return err
			}
			return consumer.Tail(ctx, func(m streams.Message) error {
				fmt.Printf("%s %s %s %v\n",
					m.Envelope.OccurredAt.Format(time.RFC3339), headColor(m.Envelope.EventType), m.ID, m.Event)
				return nil
			})
		},
	}

	lag := &cobra.Command{
		Use:   "lag",
		Short: "Report consumer group lag",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			rdb, err := openRedis(ctx, cfg.Storage.Redis)
			if err != nil {
				return err
			}
			defer rdb.Close()
			report, err := streams.Lag(ctx, rdb, cfg.Events.Stream, group)
			if errors.Is(err, streams.ErrGroupNotFound) {
				fmt.Printf("no consumer group %q on %s yet; run `runbooker events tail --group %s` first\n", group, cfg.Events.Stream, group)
				return nil
			}
			if err != nil {
				return err
			}
			fmt.Println(report)
			return nil
		},
	}
	cmd.AddCommand(tail, lag)
	return cmd
}
