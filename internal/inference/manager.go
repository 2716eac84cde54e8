// Package inference manages the local text-generation runtime: keeping it
// reachable, choosing a model that fits in memory, and exposing one call
// contract to the classifier and the synthesis engine.
package inference

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/mohammad-safakhou/runbooker/config"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	otelmetric "go.opentelemetry.io/otel/metric"
)

var (
	// ErrUnavailable wraps every failed generation call. Callers substitute a
	// fallback value instead of failing.
	ErrUnavailable = errors.New("inference unavailable")
	// ErrStartup marks a runtime that could not be made reachable.
	ErrStartup = errors.New("inference runtime failed to start")
)

// State is the availability of the runtime.
type State string

const (
	StateUnknown  State = "unknown"
	StateChecking State = "checking"
	StateStarting State = "starting"
	StateRunning  State = "running"
	StateFailed   State = "failed"
)

// StartResult is the outcome of the bounded startup loop.
type StartResult int

const (
	Ready StartResult = iota
	Unreachable
	StartFailed
)

func (r StartResult) String() string {
	switch r {
	case Ready:
		return "ready"
	case Unreachable:
		return "unreachable"
	case StartFailed:
		return "start_failed"
	default:
		return "unknown"
	}
}

// StartError is returned by Start when the runtime never became reachable.
type StartError struct {
	Result StartResult
	Err    error
}

func (e *StartError) Error() string {
	return fmt.Sprintf("%v (%s): %v", ErrStartup, e.Result, e.Err)
}

func (e *StartError) Unwrap() []error { return []error{ErrStartup, e.Err} }

// Options tune a single generation call.
type Options struct {
	System      string
	Temperature *float64
	MaxTokens   int
}

type Option func(*Options)

func WithSystem(system string) Option { return func(o *Options) { o.System = system } }

func WithTemperature(t float64) Option { return func(o *Options) { o.Temperature = &t } }

func WithMaxTokens(n int) Option { return func(o *Options) { o.MaxTokens = n } }

// Generator is the call contract consumed by the classifier and synthesis.
// Implementations must be safe for concurrent use.
type Generator interface {
	Generate(ctx context.Context, prompt string, opts ...Option) (string, error)
}

// Runtime is a Generator that can also report its health.
type Runtime interface {
	Generator
	Status() Status
}

// Status is a point-in-time view for health reporting.
type Status struct {
	Backend        string  `json:"backend"`
	State          State   `json:"state"`
	Model          string  `json:"model,omitempty"`
	AllocatableGiB float64 `json:"allocatable_gib"`
	Verified       bool    `json:"verified"`
	Reason         string  `json:"reason,omitempty"`
	LastError      string  `json:"last_error,omitempty"`
}

// Manager owns the runtime lifecycle. Create one per process and pass it to
// consumers as a Generator.
type Manager struct {
	cfg      config.InferenceConfig
	client   *Client
	launcher Launcher
	memory   MemoryProbe
	logger   *log.Logger
	sleep    func(context.Context, time.Duration) error
	calls    otelmetric.Int64Counter

	mu        sync.RWMutex
	state     State
	selection Selection
	lastErr   string
}

type ManagerOption func(*Manager)

func WithLogger(l *log.Logger) ManagerOption { return func(m *Manager) { m.logger = l } }

func WithLauncher(l Launcher) ManagerOption { return func(m *Manager) { m.launcher = l } }

func WithMemoryProbe(p MemoryProbe) ManagerOption { return func(m *Manager) { m.memory = p } }

func WithMeter(meter otelmetric.Meter) ManagerOption {
	return func(m *Manager) {
		if c, err := meter.Int64Counter("inference_calls_total"); err == nil {
			m.calls = c
		}
	}
}

// NewManager builds a manager for cfg. Nothing is contacted until Start.
func NewManager(cfg config.InferenceConfig, opts ...ManagerOption) *Manager {
	cfg = cfg.Normalize()
	m := &Manager{
		cfg:    cfg,
		client: NewClient(cfg.Host, cfg.KeepAlive),
		memory: HostMemory{},
		logger: log.New(log.Writer(), "[INFERENCE] ", log.LstdFlags),
		sleep:  sleepCtx,
		state:  StateUnknown,
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.launcher == nil {
		m.launcher = ExecLauncher{Logger: m.logger}
	}
	if m.calls == nil {
		WithMeter(otel.Meter("runbooker/inference"))(m)
	}
	return m
}

// Start makes the runtime reachable, selects a model and warms it up. It
// blocks for at most start_attempts*start_delay plus request timeouts. Only
// reachability is fatal; selection and warm-up problems leave the manager
// running in a degraded state.
func (m *Manager) Start(ctx context.Context) error {
	result, err := m.ensureRunning(ctx)
	if result != Ready {
		m.setState(StateFailed, err)
		return &StartError{Result: result, Err: err}
	}
	m.setState(StateRunning, nil)

	sel, err := m.SelectModel(ctx)
	if errors.Is(err, ErrNoModels) && m.cfg.PullModel != "" {
		m.logger.Printf("no models installed, pulling %s", m.cfg.PullModel)
		if perr := m.client.Pull(ctx, m.cfg.PullModel); perr != nil {
			m.logger.Printf("pull %s failed: %v", m.cfg.PullModel, perr)
		} else {
			sel, err = m.SelectModel(ctx)
		}
	}
	if err != nil {
		m.logger.Printf("model selection failed, generation disabled: %v", err)
		m.setState(StateRunning, err)
		return nil
	}

	m.mu.Lock()
	m.selection = sel
	m.mu.Unlock()
	m.logger.Printf("selected model %s (%s, allocatable %.1f GiB, requires %.1f GiB)",
		sel.Model, sel.Reason, sel.AllocatableGiB, sel.RequiredGiB)

	if m.cfg.Warmup {
		if _, err := m.Generate(ctx, "ok", WithMaxTokens(1)); err != nil {
			m.logger.Printf("warm-up failed: %v", err)
		}
	}
	return nil
}

// ensureRunning probes, launches when needed, and polls a bounded number of times.
func (m *Manager) ensureRunning(ctx context.Context) (StartResult, error) {
	m.setState(StateChecking, nil)
	if err := m.probe(ctx); err == nil {
		return Ready, nil
	}

	m.setState(StateStarting, nil)
	if err := m.launcher.Launch(ctx, m.cfg.StartCommand); err != nil {
		return StartFailed, fmt.Errorf("launch %v: %w", m.cfg.StartCommand, err)
	}

	var lastErr error
	for attempt := 1; attempt <= m.cfg.StartAttempts; attempt++ {
		if err := m.sleep(ctx, m.cfg.StartDelay); err != nil {
			return Unreachable, err
		}
		if lastErr = m.probe(ctx); lastErr == nil {
			m.logger.Printf("runtime reachable after %d attempt(s)", attempt)
			return Ready, nil
		}
	}
	return Unreachable, fmt.Errorf("not reachable after %d attempts: %w", m.cfg.StartAttempts, lastErr)
}

func (m *Manager) probe(ctx context.Context) error {
	pctx, cancel := withTimeout(ctx, m.cfg.ProbeTimeout)
	defer cancel()
	_, err := m.client.Tags(pctx)
	return err
}

// Generate sends an already-redacted prompt to the selected model. Every
// failure wraps ErrUnavailable.
func (m *Manager) Generate(ctx context.Context, prompt string, opts ...Option) (string, error) {
	model := m.Model()
	if model == "" {
		m.record(ctx, "no_model")
		return "", fmt.Errorf("%w: no model selected", ErrUnavailable)
	}
	o := Options{}
	if m.cfg.Temperature > 0 {
		t := m.cfg.Temperature
		o.Temperature = &t
	}
	for _, opt := range opts {
		opt(&o)
	}
	gctx, cancel := withTimeout(ctx, m.cfg.GenerateTimeout)
	defer cancel()
	text, err := m.client.Generate(gctx, model, prompt, o)
	if err != nil {
		m.record(ctx, "error")
		m.logger.Printf("generate via %s failed: %v", model, err)
		return "", fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	m.record(ctx, "ok")
	return text, nil
}

// Model returns the selected model name, empty before selection.
func (m *Manager) Model() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.selection.Model
}

// Selection returns the recorded selection.
func (m *Manager) Selection() Selection {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.selection
}

func (m *Manager) Status() Status {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return Status{
		Backend:        config.BackendOllama,
		State:          m.state,
		Model:          m.selection.Model,
		AllocatableGiB: m.selection.AllocatableGiB,
		Verified:       m.selection.Verified,
		Reason:         m.selection.Reason,
		LastError:      m.lastErr,
	}
}

// Models lists the runtime inventory.
func (m *Manager) Models(ctx context.Context) ([]ModelInfo, error) {
	return m.client.Tags(ctx)
}

func (m *Manager) setState(s State, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state = s
	if err != nil {
		m.lastErr = err.Error()
	} else if s == StateRunning {
		m.lastErr = ""
	}
}

func (m *Manager) record(ctx context.Context, outcome string) {
	m.calls.Add(ctx, 1, otelmetric.WithAttributes(attribute.String("outcome", outcome)))
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
