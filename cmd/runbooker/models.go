package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mohammad-safakhou/runbooker/config"
	"github.com/mohammad-safakhou/runbooker/internal/inference"
	"github.com/mohammad-safakhou/runbooker/internal/runtime"
)

func modelsCMD(load loader) *cobra.Command {
	return &cobra.Command{
		Use:   "models",
		Short: "Start the local runtime, list its inventory and show the selected model",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			if cfg.Inference.Backend == config.BackendOpenAI {
				fmt.Printf("%s openai model %s\n", headColor("backend"), cfg.OpenAI.Model)
				return nil
			}
			ctx, cancel := runtime.SignalContext(cmd.Context(), "runbooker")
			defer cancel()

			mgr := inference.NewManager(cfg.Inference)
			startErr := mgr.Start(ctx)
			inv, err := mgr.Models(ctx)
			if err != nil {
				if startErr != nil {
					return startErr
				}
				return err
			}
			fmt.Println(headColor("inventory"))
			for _, m := range inv {
				fmt.Printf("  %-32s %6.2f GiB  %s\n", m.Name, float64(m.Size)/(1<<30), m.Details.ParameterSize)
			}
			st := mgr.Status()
			fmt.Println(headColor("selection"))
			fmt.Printf("  state:       %s\n", st.State)
			if st.Model != "" {
				fmt.Printf("  model:       %s\n", okColor(st.Model))
			} else {
				fmt.Printf("  model:       %s\n", failColor("none"))
			}
			fmt.Printf("  allocatable: %.2f GiB\n", st.AllocatableGiB)
			fmt.Printf("  verified:    %t\n", st.Verified)
			if st.Reason != "" {
				fmt.Printf("  reason:      %s\n", st.Reason)
			}
			if st.LastError != "" {
				fmt.Printf("  last error:  %s\n", warnColor(st.LastError))
			}
			return startErr
		},
	}
}
