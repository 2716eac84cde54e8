package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the runbook service
type Config struct {
	General    GeneralConfig    `mapstructure:"general"`
	Server     ServerConfig     `mapstructure:"server"`
	Inference  InferenceConfig  `mapstructure:"inference"`
	OpenAI     OpenAIConfig     `mapstructure:"openai"`
	Classifier ClassifierConfig `mapstructure:"classifier"`
	Ingest     IngestConfig     `mapstructure:"ingest"`
	Synthesis  SynthesisConfig  `mapstructure:"synthesis"`
	Storage    StorageConfig    `mapstructure:"storage"`
	Search     SearchConfig     `mapstructure:"search"`
	Events     EventsConfig     `mapstructure:"events"`
	Scheduler  SchedulerConfig  `mapstructure:"scheduler"`
	Telemetry  TelemetryConfig  `mapstructure:"telemetry"`
}

// GeneralConfig contains general application settings
type GeneralConfig struct {
	LogLevel       string        `mapstructure:"log_level"`
	DefaultTimeout time.Duration `mapstructure:"default_timeout"`
}

// ServerConfig contains HTTP server and auth settings
type ServerConfig struct {
	Address           string `mapstructure:"address"`
	JWTSecret         string `mapstructure:"jwt_secret"`
	AdminUser         string `mapstructure:"admin_user"`
	AdminPasswordHash string `mapstructure:"admin_password_hash"` // bcrypt
	AuthEnabled       bool   `mapstructure:"auth_enabled"`
	MaxUploadBytes    int64  `mapstructure:"max_upload_bytes"`
}

func (s ServerConfig) Validate() error {
	if strings.TrimSpace(s.Address) == "" {
		return fmt.Errorf("server.address required")
	}
	if s.AuthEnabled {
		if strings.TrimSpace(s.JWTSecret) == "" {
			return fmt.Errorf("server.jwt_secret required when auth is enabled")
		}
		if strings.TrimSpace(s.AdminUser) == "" || strings.TrimSpace(s.AdminPasswordHash) == "" {
			return fmt.Errorf("server.admin_user and server.admin_password_hash required when auth is enabled")
		}
	}
	if s.MaxUploadBytes <= 0 {
		return fmt.Errorf("server.max_upload_bytes must be > 0")
	}
	return nil
}

// OpenAIConfig configures the hosted chat-completions backend.
type OpenAIConfig struct {
	APIKey  string        `mapstructure:"api_key"`
	BaseURL string        `mapstructure:"base_url"`
	Model   string        `mapstructure:"model"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// ClassifierConfig tunes the rule pass and the model fallback.
type ClassifierConfig struct {
	MinWords int           `mapstructure:"min_words"`
	MinHits  int           `mapstructure:"min_hits"`
	CacheTTL time.Duration `mapstructure:"cache_ttl"` // zero disables the redis verdict cache
}

func (c ClassifierConfig) Validate() error {
	if c.MinWords < 1 {
		return fmt.Errorf("classifier.min_words must be >= 1")
	}
	if c.MinHits < 1 {
		return fmt.Errorf("classifier.min_hits must be >= 1")
	}
	return nil
}

// IngestConfig controls timestamp parsing of exports.
type IngestConfig struct {
	DateFormats  []string `mapstructure:"date_formats"`
	LenientDates bool     `mapstructure:"lenient_dates"`
}

// SynthesisConfig bounds how much evidence a runbook is built from.
type SynthesisConfig struct {
	MaxTickets   int `mapstructure:"max_tickets"`
	BatchSize    int `mapstructure:"batch_size"`
	SummaryChars int `mapstructure:"summary_chars"`
}

func (s SynthesisConfig) Validate() error {
	if s.MaxTickets <= 0 || s.BatchSize <= 0 {
		return fmt.Errorf("synthesis.max_tickets and synthesis.batch_size must be > 0")
	}
	if s.SummaryChars <= 0 {
		return fmt.Errorf("synthesis.summary_chars must be > 0")
	}
	return nil
}

// StorageConfig contains storage and persistence settings
type StorageConfig struct {
	Driver   string         `mapstructure:"driver"` // postgres | memory
	Redis    RedisConfig    `mapstructure:"redis"`
	Postgres PostgresConfig `mapstructure:"postgres"`
}

func (s StorageConfig) Validate() error {
	switch s.Driver {
	case "memory":
		return nil
	case "postgres":
		return s.Postgres.Validate()
	default:
		return fmt.Errorf("storage.driver must be postgres or memory, got %q", s.Driver)
	}
}

// RedisConfig contains Redis connection settings
type RedisConfig struct {
	Host     string        `mapstructure:"host"`
	Port     string        `mapstructure:"port"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

// Enabled reports whether a redis endpoint was configured.
func (r RedisConfig) Enabled() bool {
	return strings.TrimSpace(r.Host) != ""
}

func (r RedisConfig) Validate() error {
	if strings.TrimSpace(r.Host) == "" {
		return fmt.Errorf("storage.redis.host required")
	}
	if strings.TrimSpace(r.Port) == "" {
		return fmt.Errorf("storage.redis.port required")
	}
	return nil
}

// PostgresConfig contains Postgres connection settings
type PostgresConfig struct {
	URL      string        `mapstructure:"url"`
	Host     string        `mapstructure:"host"`
	Port     string        `mapstructure:"port"`
	User     string        `mapstructure:"user"`
	Password string        `mapstructure:"password"`
	DBName   string        `mapstructure:"dbname"`
	SSLMode  string        `mapstructure:"sslmode"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

func (p PostgresConfig) Validate() error {
	if strings.TrimSpace(p.URL) != "" {
		return nil
	}
	if strings.TrimSpace(p.Host) == "" {
		return fmt.Errorf("storage.postgres.host required when url is not provided")
	}
	if strings.TrimSpace(p.Port) == "" {
		return fmt.Errorf("storage.postgres.port required when url is not provided")
	}
	if strings.TrimSpace(p.DBName) == "" {
		return fmt.Errorf("storage.postgres.dbname required when url is not provided")
	}
	return nil
}

// DSN renders a lib/pq connection string.
func (p PostgresConfig) DSN() string {
	if strings.TrimSpace(p.URL) != "" {
		return p.URL
	}
	sslMode := p.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s", p.User, p.Password, p.Host, p.Port, p.DBName, sslMode)
}

// SearchConfig controls the bleve ticket index.
type SearchConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"` // empty keeps the index in memory
}

// EventsConfig controls the redis stream publisher.
type EventsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Stream  string `mapstructure:"stream"`
	MaxLen  int64  `mapstructure:"max_len"`
}

// SchedulerConfig drives the optional runbook refresh loop.
type SchedulerConfig struct {
	RefreshCron string        `mapstructure:"refresh_cron"`
	LockTTL     time.Duration `mapstructure:"lock_ttl"`
}

// TelemetryConfig contains telemetry and monitoring settings
type TelemetryConfig struct {
	Enabled      bool   `mapstructure:"enabled"`
	ServiceName  string `mapstructure:"service_name"`
	OTLPEndpoint string `mapstructure:"otlp_endpoint"` // empty keeps metrics on /metrics only
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("general.log_level", "info")
	v.SetDefault("general.default_timeout", 30*time.Second)

	v.SetDefault("server.address", ":8080")
	v.SetDefault("server.auth_enabled", false)
	v.SetDefault("server.admin_user", "admin")
	v.SetDefault("server.max_upload_bytes", int64(100<<20))

	v.SetDefault("inference.backend", BackendOllama)
	v.SetDefault("inference.host", "http://127.0.0.1:11434")
	v.SetDefault("inference.start_command", []string{"ollama", "serve"})
	v.SetDefault("inference.start_attempts", 10)
	v.SetDefault("inference.start_delay", 2*time.Second)
	v.SetDefault("inference.probe_timeout", 3*time.Second)
	v.SetDefault("inference.verify_timeout", 60*time.Second)
	v.SetDefault("inference.generate_timeout", 120*time.Second)
	v.SetDefault("inference.safety_margin", 0.10)
	v.SetDefault("inference.disk_multiplier", 1.5)
	v.SetDefault("inference.warmup", true)
	v.SetDefault("inference.keep_alive", "30m")
	v.SetDefault("inference.temperature", 0.2)
	v.SetDefault("inference.allow_degraded", false)

	v.SetDefault("openai.model", "gpt-4o-mini")
	v.SetDefault("openai.timeout", 60*time.Second)

	v.SetDefault("classifier.min_words", 3)
	v.SetDefault("classifier.min_hits", 1)
	v.SetDefault("classifier.cache_ttl", 0)

	v.SetDefault("ingest.date_formats", DefaultDateFormats)
	v.SetDefault("ingest.lenient_dates", true)

	v.SetDefault("synthesis.max_tickets", 200)
	v.SetDefault("synthesis.batch_size", 25)
	v.SetDefault("synthesis.summary_chars", 2000)

	v.SetDefault("storage.driver", "postgres")
	v.SetDefault("storage.postgres.sslmode", "disable")
	v.SetDefault("storage.redis.port", "6379")
	v.SetDefault("storage.redis.timeout", 5*time.Second)

	v.SetDefault("events.enabled", false)
	v.SetDefault("events.stream", "runbooker.events")
	v.SetDefault("events.max_len", 10000)

	v.SetDefault("scheduler.refresh_cron", "")
	v.SetDefault("scheduler.lock_ttl", 10*time.Minute)

	v.SetDefault("telemetry.enabled", true)
	v.SetDefault("telemetry.service_name", "runbooker")
}

// DefaultDateFormats is the ordered list of accepted ticket timestamp layouts.
var DefaultDateFormats = []string{
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02T15:04:05Z07:00",
	"2006-01-02T15:04:05",
	"01/02/2006 15:04:05",
	"01/02/2006 15:04",
	"02-01-2006 15:04:05",
	"2006-01-02",
	"01/02/2006",
}

// LoadConfig reads configuration from path, or from the usual search
// locations when path is empty. A missing file is not an error: defaults and
// RUNBOOKER_* environment variables still apply.
func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("json")
	setDefaults(v)

	if path == "" {
		v.AddConfigPath("./config")
		v.AddConfigPath(".")
		exe, _ := os.Executable()
		exeDir := filepath.Dir(exe)
		v.AddConfigPath(exeDir)
		v.AddConfigPath(filepath.Join(exeDir, ".."))
		v.AddConfigPath(filepath.Join(exeDir, "..", "config"))
	} else {
		v.SetConfigFile(path)
	}

	v.SetEnvPrefix("RUNBOOKER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	cfg.Inference = cfg.Inference.Normalize()

	for _, validate := range []func() error{
		cfg.Server.Validate,
		cfg.Inference.Validate,
		cfg.Classifier.Validate,
		cfg.Synthesis.Validate,
		cfg.Storage.Validate,
	} {
		if err := validate(); err != nil {
			return nil, err
		}
	}
	if cfg.Events.Enabled || cfg.Scheduler.RefreshCron != "" {
		if err := cfg.Storage.Redis.Validate(); err != nil {
			return nil, err
		}
	}
	return &cfg, nil
}
