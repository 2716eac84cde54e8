package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mohammad-safakhou/runbooker/internal/runtime"
)

func classifyCMD(load loader) *cobra.Command {
	var onlyUnclassified bool
	cmd := &cobra.Command{
		Use:   "classify",
		Short: "Relabel stored tickets",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			ctx, cancel := runtime.SignalContext(cmd.Context(), "runbooker")
			defer cancel()

			a, err := buildApp(ctx, cfg, appOptions{inference: true})
			if err != nil {
				return err
			}
			defer a.Close()
			rep, err := a.svc.Reclassify(ctx, onlyUnclassified)
			if err != nil {
				return err
			}
			fmt.Println(headColor("reclassify"))
			fmt.Printf("  scanned: %d\n  changed: %s\n", rep.Scanned, okColor(rep.Changed))
			printTopics(rep.Topics)
			return nil
		},
	}
	cmd.Flags().BoolVar(&onlyUnclassified, "only-unclassified", false, "leave tickets that already carry a topic alone")
	return cmd
}
