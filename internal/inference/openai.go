package inference

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/mohammad-safakhou/runbooker/config"
	openai "github.com/sashabaranov/go-openai"
)

// OpenAIGenerator serves the Generator contract from a hosted
// chat-completions endpoint instead of the local runtime.
type OpenAIGenerator struct {
	client      *openai.Client
	cfg         config.OpenAIConfig
	temperature float64
	logger      *log.Logger
}

func NewOpenAIGenerator(cfg config.OpenAIConfig, temperature float64, logger *log.Logger) (*OpenAIGenerator, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("%w: openai.api_key is required for the openai backend", ErrStartup)
	}
	oc := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		oc.BaseURL = cfg.BaseURL
	}
	if logger == nil {
		logger = log.New(log.Writer(), "[INFERENCE] ", log.LstdFlags)
	}
	return &OpenAIGenerator{
		client:      openai.NewClientWithConfig(oc),
		cfg:         cfg,
		temperature: temperature,
		logger:      logger,
	}, nil
}

func (g *OpenAIGenerator) Generate(ctx context.Context, prompt string, opts ...Option) (string, error) {
	o := Options{}
	for _, opt := range opts {
		opt(&o)
	}
	var messages []openai.ChatCompletionMessage
	if o.System != "" {
		messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: o.System})
	}
	messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: prompt})

	req := openai.ChatCompletionRequest{
		Model:       g.cfg.Model,
		Messages:    messages,
		Temperature: float32(g.temperature),
		MaxTokens:   o.MaxTokens,
	}
	if o.Temperature != nil {
		req.Temperature = float32(*o.Temperature)
	}

	gctx, cancel := withTimeout(ctx, g.cfg.Timeout)
	defer cancel()
	resp, err := g.client.CreateChatCompletion(gctx, req)
	if err != nil {
		g.logger.Printf("chat completion failed: %v", err)
		return "", fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("%w: %v", ErrUnavailable, errors.New("no choices returned"))
	}
	return resp.Choices[0].Message.Content, nil
}

func (g *OpenAIGenerator) Status() Status {
	return Status{
		Backend:  config.BackendOpenAI,
		State:    StateRunning,
		Model:    g.cfg.Model,
		Verified: true,
		Reason:   "hosted",
	}
}

func (g *OpenAIGenerator) Model() string { return g.cfg.Model }
