package main

import (
	"context"
	"fmt"
	"log"

	"github.com/redis/go-redis/v9"

	"github.com/mohammad-safakhou/runbooker/config"
	"github.com/mohammad-safakhou/runbooker/internal/classifier"
	"github.com/mohammad-safakhou/runbooker/internal/inference"
	"github.com/mohammad-safakhou/runbooker/internal/ingest"
	"github.com/mohammad-safakhou/runbooker/internal/pipeline"
	"github.com/mohammad-safakhou/runbooker/internal/queue/streams"
	"github.com/mohammad-safakhou/runbooker/internal/search"
	"github.com/mohammad-safakhou/runbooker/internal/server"
	"github.com/mohammad-safakhou/runbooker/internal/store"
	"github.com/mohammad-safakhou/runbooker/internal/synth"
)

// appStore is everything the commands need from persistence. Both the
// postgres store and the in-memory store satisfy it.
type appStore interface {
	ingest.Store
	synth.Store
	pipeline.Store
	server.ReadStore
}

type appOptions struct {
	inference bool
	search    bool
	events    bool

	managerOpts []inference.ManagerOption
}

type app struct {
	cfg     *config.Config
	store   appStore
	runtime inference.Runtime
	manager *inference.Manager
	rdb     *redis.Client
	index   *search.Index
	svc     *pipeline.Service
	closers []func() error
	logger  *log.Logger
}

func openStore(ctx context.Context, cfg *config.Config) (appStore, func() error, error) {
	if cfg.Storage.Driver == "memory" {
		return store.NewMemory(), func() error { return nil }, nil
	}
	st, err := store.NewWithDSN(ctx, cfg.Storage.Postgres.DSN())
	if err != nil {
		return nil, nil, fmt.Errorf("connect postgres: %w", err)
	}
	return st, st.Close, nil
}

func openRedis(ctx context.Context, cfg config.RedisConfig) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:        fmt.Sprintf("%s:%s", cfg.Host, cfg.Port),
		Password:    cfg.Password,
		DB:          cfg.DB,
		DialTimeout: cfg.Timeout,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis connection failed (%s:%s): %w", cfg.Host, cfg.Port, err)
	}
	return rdb, nil
}

// openRuntime builds the configured generator. A local runtime that cannot be
// started is fatal unless inference.allow_degraded is set, in which case the
// manager is still returned and every call fails as unavailable.
func openRuntime(ctx context.Context, cfg *config.Config, logger *log.Logger, opts ...inference.ManagerOption) (inference.Runtime, *inference.Manager, error) {
	if cfg.Inference.Backend == config.BackendOpenAI {
		gen, err := inference.NewOpenAIGenerator(cfg.OpenAI, cfg.Inference.Temperature, nil)
		if err != nil {
			return nil, nil, err
		}
		return gen, nil, nil
	}
	mgr := inference.NewManager(cfg.Inference, opts...)
	if err := mgr.Start(ctx); err != nil {
		if !cfg.Inference.AllowDegraded {
			return nil, nil, fmt.Errorf("inference runtime: %w", err)
		}
		logger.Printf("inference runtime not ready, continuing with rules only: %v", err)
	}
	return mgr, mgr, nil
}

func buildApp(ctx context.Context, cfg *config.Config, opts appOptions) (*app, error) {
	a := &app{cfg: cfg, logger: log.New(log.Writer(), "[APP] ", log.LstdFlags)}
	st, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		return nil, err
	}
	a.store = st
	a.closers = append(a.closers, closeStore)

	if cfg.Storage.Redis.Enabled() {
		rdb, err := openRedis(ctx, cfg.Storage.Redis)
		if err != nil {
			a.Close()
			return nil, err
		}
		a.rdb = rdb
		a.closers = append(a.closers, rdb.Close)
	}

	var gen inference.Generator
	if opts.inference {
		rt, mgr, err := openRuntime(ctx, cfg, a.logger, opts.managerOpts...)
		if err != nil {
			a.Close()
			return nil, err
		}
		a.runtime, a.manager, gen = rt, mgr, rt
	}

	clOpts := []classifier.Option{}
	if a.rdb != nil && cfg.Classifier.CacheTTL > 0 {
		clOpts = append(clOpts, classifier.WithCache(classifier.NewRedisCache(a.rdb, cfg.Classifier.CacheTTL, nil)))
	}
	pipeOpts := []pipeline.Option{}
	if opts.search && cfg.Search.Enabled {
		idx, err := search.Open(cfg.Search.Path)
		if err != nil {
			a.Close()
			return nil, err
		}
		a.index = idx
		a.closers = append(a.closers, idx.Close)
		pipeOpts = append(pipeOpts, pipeline.WithIndexer(idx))
	}
	if opts.events && cfg.Events.Enabled && a.rdb != nil {
		reg, err := streams.NewRegistry()
		if err != nil {
			a.Close()
			return nil, err
		}
		emitter := streams.NewStreamEmitter(streams.NewPublisher(a.rdb, reg, cfg.Events.Stream, cfg.Events.MaxLen))
		pipeOpts = append(pipeOpts, pipeline.WithEmitter(emitter))
	}

	a.svc = pipeline.New(st,
		ingest.NewImporter(st, cfg.Ingest),
		classifier.New(gen, cfg.Classifier, clOpts...),
		synth.NewEngine(st, gen, cfg.Synthesis),
		pipeOpts...,
	)
	return a, nil
}

// warmIndex loads every classified ticket into a fresh in-memory index.
func (a *app) warmIndex(ctx context.Context) error {
	if a.index == nil || a.cfg.Search.Path != "" {
		return nil
	}
	counts, err := a.store.TopicCounts(ctx)
	if err != nil {
		return err
	}
	for _, c := range counts {
		tickets, err := a.store.ListTicketsByTopic(ctx, c.Topic, 0)
		if err != nil {
			return err
		}
		if err := a.index.IndexTickets(tickets); err != nil {
			return err
		}
	}
	return nil
}

func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.logger.Printf("close: %v", err)
		}
	}
}
