package inference

import (
	"context"
	"errors"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/mohammad-safakhou/runbooker/config"
)

func TestOpenAIGeneratorReturnsFirstChoice(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"id":"1","object":"chat.completion","choices":[{"index":0,"message":{"role":"assistant","content":"phishing"},"finish_reason":"stop"}]}`)
	}))
	defer srv.Close()

	g, err := NewOpenAIGenerator(config.OpenAIConfig{APIKey: "k", BaseURL: srv.URL + "/v1", Model: "gpt-4o-mini"}, 0.2, log.New(io.Discard, "", 0))
	if err != nil {
		t.Fatalf("NewOpenAIGenerator: %v", err)
	}
	got, err := g.Generate(context.Background(), "classify", WithSystem("one label"))
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if got != "phishing" {
		t.Fatalf("unexpected %q", got)
	}
}

func TestOpenAIGeneratorWrapsFailures(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":{"message":"rate limited"}}`, http.StatusTooManyRequests)
	}))
	defer srv.Close()

	g, err := NewOpenAIGenerator(config.OpenAIConfig{APIKey: "k", BaseURL: srv.URL + "/v1", Model: "m"}, 0, log.New(io.Discard, "", 0))
	if err != nil {
		t.Fatalf("NewOpenAIGenerator: %v", err)
	}
	if _, err := g.Generate(context.Background(), "x"); !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
}

func TestOpenAIGeneratorRequiresKey(t *testing.T) {
	if _, err := NewOpenAIGenerator(config.OpenAIConfig{}, 0, nil); !errors.Is(err, ErrStartup) {
		t.Fatalf("expected ErrStartup, got %v", err)
	}
}
