package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mohammad-safakhou/runbooker/internal/runtime"
	"github.com/mohammad-safakhou/runbooker/internal/synth"
	"github.com/mohammad-safakhou/runbooker/models"
)

func synthesizeCMD(load loader) *cobra.Command {
	var all, stale, printMD bool
	cmd := &cobra.Command{
		Use:   "synthesize [TOPIC]",
		Short: "Build or refresh the runbook for a topic",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if (len(args) == 1) == (all || stale) || (all && stale) {
				return fmt.Errorf("give exactly one of TOPIC, --all or --stale")
			}
			cfg, err := load()
			if err != nil {
				return err
			}
			ctx, cancel := runtime.SignalContext(cmd.Context(), "runbooker")
			defer cancel()

			a, err := buildApp(ctx, cfg, appOptions{inference: true, events: true})
			if err != nil {
				return err
			}
			defer a.Close()

			var topics []models.Topic
			switch {
			case all:
				topics = models.Taxonomy
			case stale:
				if topics, err = a.svc.StaleTopics(ctx); err != nil {
					return err
				}
			default:
				t, err := models.ParseTopic(args[0])
				if err != nil {
					return err
				}
				topics = []models.Topic{t}
			}

			var failed int
			for _, t := range topics {
				rb, err := a.svc.Synthesize(ctx, t)
				switch {
				case errors.Is(err, synth.ErrNoTickets):
					if len(topics) == 1 {
						return err
					}
					continue
				case err != nil:
					failed++
					fmt.Printf("%s %s: %v\n", failColor("x"), t, err)
					continue
				}
				fmt.Printf("%s %-16s %q outcome=%s tickets=%d model=%s\n",
					okColor("ok"), t, rb.Title, rb.Outcome, rb.TicketsUsed, rb.Model)
				if printMD {
					fmt.Println(rb.Markdown)
				}
			}
			if failed > 0 {
				return fmt.Errorf("%d topic(s) failed", failed)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&all, "all", false, "synthesize every topic that has tickets")
	cmd.Flags().BoolVar(&stale, "stale", false, "synthesize only topics whose runbook is missing or older than its tickets")
	cmd.Flags().BoolVar(&printMD, "print", false, "print the rendered markdown")
	return cmd
}
