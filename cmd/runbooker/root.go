package main

import (
	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/mohammad-safakhou/runbooker/config"
)

// version can be overridden at build time with -ldflags "-X main.version=..."
var version = "dev"

var (
	okColor   = color.New(color.FgGreen).SprintFunc()
	warnColor = color.New(color.FgYellow).SprintFunc()
	failColor = color.New(color.FgRed).SprintFunc()
	headColor = color.New(color.FgCyan, color.Bold).SprintFunc()
)

func newRootCmd() *cobra.Command {
	var cfgPath string
	root := &cobra.Command{
		Use:           "runbooker",
		Short:         "Classify incident tickets and synthesize runbooks per topic",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "config file (default searches ./config and .)")

	load := func() (*config.Config, error) { return config.LoadConfig(cfgPath) }
	root.AddCommand(
		serveCMD(load),
		migrateCMD(load),
		importCMD(load),
		classifyCMD(load),
		synthesizeCMD(load),
		modelsCMD(load),
		eventsCMD(load),
	)
	return root
}

type loader func() (*config.Config, error)
