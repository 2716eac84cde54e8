package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadConfigDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(path, []byte(`{"storage":{"driver":"memory"}}`), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Inference.Backend != BackendOllama {
		t.Fatalf("expected ollama backend, got %q", cfg.Inference.Backend)
	}
	if cfg.Inference.SafetyMargin != 0.10 || cfg.Inference.DiskMultiplier != 1.5 {
		t.Fatalf("unexpected memory defaults: %+v", cfg.Inference)
	}
	if got := cfg.Inference.TierTable()["7b"]; got != 8.0 {
		t.Fatalf("expected 7b tier of 8 GiB, got %v", got)
	}
	if cfg.Classifier.MinWords != 3 || cfg.Classifier.MinHits != 1 {
		t.Fatalf("unexpected classifier defaults: %+v", cfg.Classifier)
	}
	if cfg.Synthesis.MaxTickets != 200 || cfg.Synthesis.BatchSize != 25 {
		t.Fatalf("unexpected synthesis defaults: %+v", cfg.Synthesis)
	}
	if cfg.Server.MaxUploadBytes != 100<<20 {
		t.Fatalf("unexpected upload limit %d", cfg.Server.MaxUploadBytes)
	}
	if len(cfg.Ingest.DateFormats) == 0 {
		t.Fatalf("expected default date formats")
	}
}

func TestLoadConfigEnvOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(path, []byte(`{"storage":{"driver":"memory"}}`), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("RUNBOOKER_INFERENCE_HOST", "http://gpu-box:11434/")
	t.Setenv("RUNBOOKER_SYNTHESIS_BATCH_SIZE", "10")
	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Inference.Host != "http://gpu-box:11434" {
		t.Fatalf("expected trimmed env host, got %q", cfg.Inference.Host)
	}
	if cfg.Synthesis.BatchSize != 10 {
		t.Fatalf("expected batch size 10, got %d", cfg.Synthesis.BatchSize)
	}
}

func TestLoadConfigRejectsUnknownDriver(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(path, []byte(`{"storage":{"driver":"sqlite"}}`), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, err := LoadConfig(path); err == nil {
		t.Fatalf("expected validation error")
	}
}

func TestInferenceNormalize(t *testing.T) {
	cfg := InferenceConfig{
		Backend:      " OLLAMA ",
		Host:         "http://localhost:11434/",
		SafetyMargin: 2,
		Tiers:        []Tier{{Class: " 7B ", GiB: 9}},
	}.Normalize()
	if cfg.Backend != BackendOllama {
		t.Fatalf("backend not normalised: %q", cfg.Backend)
	}
	if cfg.SafetyMargin != 0.9 {
		t.Fatalf("expected safety margin clamp, got %v", cfg.SafetyMargin)
	}
	if cfg.TierTable()["7b"] != 9 {
		t.Fatalf("tier key not normalised: %+v", cfg.Tiers)
	}
	if cfg.StartDelay != 2*time.Second || cfg.StartAttempts != 10 {
		t.Fatalf("start defaults missing: %+v", cfg)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
}

func TestServerValidateRequiresSecretWithAuth(t *testing.T) {
	s := ServerConfig{Address: ":8080", AuthEnabled: true, MaxUploadBytes: 1}
	if err := s.Validate(); err == nil {
		t.Fatalf("expected error without jwt secret")
	}
}
