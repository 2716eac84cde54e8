package config

import (
	"fmt"
	"strings"
	"time"
)

const (
	BackendOllama = "ollama"
	BackendOpenAI = "openai"
)

// InferenceConfig controls the local runtime lifecycle and model selection.
type InferenceConfig struct {
	Backend         string        `mapstructure:"backend"`
	Host            string        `mapstructure:"host"`
	StartCommand    []string      `mapstructure:"start_command"`
	StartAttempts   int           `mapstructure:"start_attempts"`
	StartDelay      time.Duration `mapstructure:"start_delay"`
	ProbeTimeout    time.Duration `mapstructure:"probe_timeout"`
	VerifyTimeout   time.Duration `mapstructure:"verify_timeout"`
	GenerateTimeout time.Duration `mapstructure:"generate_timeout"`
	SafetyMargin    float64       `mapstructure:"safety_margin"`
	DiskMultiplier  float64       `mapstructure:"disk_multiplier"`
	Tiers           []Tier        `mapstructure:"tiers"`
	Warmup          bool          `mapstructure:"warmup"`
	PullModel       string        `mapstructure:"pull_model"`
	KeepAlive       string        `mapstructure:"keep_alive"`
	Temperature     float64       `mapstructure:"temperature"`
	// AllowDegraded keeps commands running on rules alone when the runtime
	// cannot be started. Off by default: startup failure is fatal.
	AllowDegraded bool `mapstructure:"allow_degraded"`
}

// Tier is the memory requirement of one parameter-count class. Tiers are a
// list rather than a map because viper splits keys such as "0.5b" on dots.
type Tier struct {
	Class string  `mapstructure:"class"`
	GiB   float64 `mapstructure:"gib"`
}

// DefaultTiers is the memory requirement in GiB per parameter-count class.
func DefaultTiers() []Tier {
	return []Tier{
		{Class: "0.5b", GiB: 1.0},
		{Class: "1b", GiB: 1.5},
		{Class: "1.2b", GiB: 1.5},
		{Class: "2b", GiB: 2.8},
		{Class: "3b", GiB: 4.0},
		{Class: "4b", GiB: 5.5},
		{Class: "7b", GiB: 8.0},
		{Class: "8b", GiB: 10.0},
		{Class: "12b", GiB: 14.0},
		{Class: "13b", GiB: 15.0},
		{Class: "30b", GiB: 32.0},
	}
}

// TierTable indexes the configured tiers by class.
func (c InferenceConfig) TierTable() map[string]float64 {
	table := make(map[string]float64, len(c.Tiers))
	for _, tier := range c.Tiers {
		table[tier.Class] = tier.GiB
	}
	return table
}

// Normalize lower-cases tier keys and fills unset tunables.
func (c InferenceConfig) Normalize() InferenceConfig {
	cfg := c
	cfg.Backend = strings.ToLower(strings.TrimSpace(cfg.Backend))
	if cfg.Backend == "" {
		cfg.Backend = BackendOllama
	}
	cfg.Host = strings.TrimRight(strings.TrimSpace(cfg.Host), "/")
	if cfg.StartAttempts <= 0 {
		cfg.StartAttempts = 10
	}
	if cfg.StartDelay <= 0 {
		cfg.StartDelay = 2 * time.Second
	}
	if cfg.ProbeTimeout <= 0 {
		cfg.ProbeTimeout = 3 * time.Second
	}
	if cfg.VerifyTimeout <= 0 {
		cfg.VerifyTimeout = 60 * time.Second
	}
	if cfg.GenerateTimeout <= 0 {
		cfg.GenerateTimeout = 120 * time.Second
	}
	if cfg.SafetyMargin < 0 {
		cfg.SafetyMargin = 0
	}
	if cfg.SafetyMargin > 0.9 {
		cfg.SafetyMargin = 0.9
	}
	if cfg.DiskMultiplier < 1 {
		cfg.DiskMultiplier = 1.5
	}
	if len(cfg.Tiers) == 0 {
		cfg.Tiers = DefaultTiers()
	}
	tiers := make([]Tier, 0, len(cfg.Tiers))
	for _, tier := range cfg.Tiers {
		tier.Class = strings.ToLower(strings.TrimSpace(tier.Class))
		if tier.Class == "" {
			continue
		}
		tiers = append(tiers, tier)
	}
	cfg.Tiers = tiers
	return cfg
}

// Validate ensures the inference configuration is usable.
func (c InferenceConfig) Validate() error {
	switch c.Backend {
	case BackendOllama:
		if c.Host == "" {
			return fmt.Errorf("inference.host required for the ollama backend")
		}
	case BackendOpenAI:
	default:
		return fmt.Errorf("inference.backend must be %s or %s, got %q", BackendOllama, BackendOpenAI, c.Backend)
	}
	for _, tier := range c.Tiers {
		if tier.GiB <= 0 {
			return fmt.Errorf("inference tier %s must be positive", tier.Class)
		}
	}
	return nil
}
