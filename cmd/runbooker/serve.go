package main

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/spf13/cobra"

	"github.com/mohammad-safakhou/runbooker/config"
	"github.com/mohammad-safakhou/runbooker/internal/runtime"
	"github.com/mohammad-safakhou/runbooker/internal/server"
)

func serveCMD(load loader) *cobra.Command {
	var addr string
	var migrate bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the runbook refresh scheduler",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			if addr != "" {
				cfg.Server.Address = addr
			}
			ctx, cancel := runtime.SignalContext(cmd.Context(), "runbooker")
			defer cancel()
			return serve(ctx, cfg, migrate)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides server.address)")
	cmd.Flags().BoolVar(&migrate, "migrate", true, "apply embedded migrations before serving")
	return cmd
}

func serve(ctx context.Context, cfg *config.Config, migrate bool) error {
	logger := log.New(log.Writer(), "[SERVE] ", log.LstdFlags)
	fmt.Println(headColor("runbooker " + version))

	tel, err := runtime.SetupTelemetry(ctx, cfg.Telemetry, runtime.TelemetryOptions{ServiceVersion: version})
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tel.Shutdown(shutdownCtx); err != nil {
			logger.Printf("telemetry shutdown: %v", err)
		}
	}()

	if migrate && cfg.Storage.Driver == "postgres" {
		if err := server.Migrate("", cfg.Storage.Postgres.DSN(), "up", 0); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}

	a, err := buildApp(ctx, cfg, appOptions{inference: true, search: true, events: true})
	if err != nil {
		return err
	}
	defer a.Close()
	if err := a.warmIndex(ctx); err != nil {
		logger.Printf("search index warm-up failed: %v", err)
	}

	if cfg.Scheduler.RefreshCron != "" {
		sched := &server.Scheduler{
			Pipeline: a.svc,
			Cron:     cfg.Scheduler.RefreshCron,
			LockTTL:  cfg.Scheduler.LockTTL,
		}
		if a.rdb != nil {
			sched.Rdb = a.rdb
		}
		go sched.Run(ctx)
		logger.Printf("runbook refresh scheduled: %s", cfg.Scheduler.RefreshCron)
	}

	srv := server.New(server.Deps{
		Config:   cfg.Server,
		Pipeline: a.svc,
		Store:    a.store,
		Index:    a.index,
		Runtime:  a.runtime,
		Metrics:  tel.Handler(),
	})
	return srv.Run(ctx, cfg.Server.Address)
}
