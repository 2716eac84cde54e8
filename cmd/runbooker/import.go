package main

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/spf13/cobra"

	"github.com/mohammad-safakhou/runbooker/internal/pipeline"
	"github.com/mohammad-safakhou/runbooker/internal/runtime"
	"github.com/mohammad-safakhou/runbooker/models"
)

func importCMD(load loader) *cobra.Command {
	var (
		encoding  string
		rulesOnly bool
	)
	cmd := &cobra.Command{
		Use:   "import FILE",
		Short: "Import a ticket CSV export, reconcile it and classify the touched tickets",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			raw, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			ctx, cancel := runtime.SignalContext(cmd.Context(), "runbooker")
			defer cancel()

			a, err := buildApp(ctx, cfg, appOptions{inference: !rulesOnly, events: true})
			if err != nil {
				return err
			}
			defer a.Close()
			rep, err := a.svc.Import(ctx, raw, filepath.Base(args[0]), encoding)
			if err != nil {
				return err
			}
			printImport(rep)
			return nil
		},
	}
	cmd.Flags().StringVar(&encoding, "encoding", "", "declared file encoding (default: detect)")
	cmd.Flags().BoolVar(&rulesOnly, "rules-only", false, "classify with keyword rules only, without the model fallback")
	return cmd
}

func printImport(rep pipeline.ImportReport) {
	fmt.Println(headColor("import " + rep.BatchID))
	fmt.Printf("  encoding:   %s\n", rep.Encoding)
	fmt.Printf("  inserted:   %s\n", okColor(rep.Inserted))
	fmt.Printf("  updated:    %s\n", okColor(rep.Updated))
	if rep.Skipped > 0 {
		fmt.Printf("  skipped:    %s\n", warnColor(rep.Skipped))
	} else {
		fmt.Printf("  skipped:    0\n")
	}
	fmt.Printf("  classified: %d\n", rep.Classified)
	printTopics(rep.Topics)
}

func printTopics(tally map[models.Topic]int) {
	topics := make([]string, 0, len(tally))
	for t := range tally {
		topics = append(topics, string(t))
	}
	sort.Strings(topics)
	for _, t := range topics {
		fmt.Printf("    %-16s %d\n", t, tally[models.Topic(t)])
	}
}
