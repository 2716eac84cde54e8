package streams

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// XAdder is the slice of the redis client the publisher needs.
type XAdder interface {
	XAdd(ctx context.Context, a *redis.XAddArgs) *redis.StringCmd
}

// Publisher appends schema-checked events to one stream, trimming it to
// roughly maxLen entries when maxLen is positive.
type Publisher struct {
	client   XAdder
	registry *Registry
	stream   string
	maxLen   int64
}

func NewPublisher(client XAdder, registry *Registry, stream string, maxLen int64) *Publisher {
	return &Publisher{client: client, registry: registry, stream: stream, maxLen: maxLen}
}

// Stream is the stream events are written to.
func (p *Publisher) Stream() string { return p.stream }

// Publish wraps payload in a v1 envelope and returns the stream entry id.
// Payloads that fail their schema never reach redis.
func (p *Publisher) Publish(ctx context.Context, eventType string, payload interface{}) (string, error) {
	if p.stream == "" {
		return "", errors.New("stream name is required")
	}
	env, err := newEnvelope(eventType, payload)
	if err != nil {
		return "", err
	}
	if p.registry != nil {
		if err := p.registry.Validate(env); err != nil {
			return "", err
		}
	}
	raw, err := json.Marshal(env)
	if err != nil {
		return "", fmt.Errorf("marshal envelope: %w", err)
	}
	args := &redis.XAddArgs{
		Stream: p.stream,
		Values: map[string]interface{}{envelopeField: raw},
	}
	if p.maxLen > 0 {
		args.MaxLen = p.maxLen
		args.Approx = true
	}
	id, err := p.client.XAdd(ctx, args).Result()
	if err != nil {
		return "", fmt.Errorf("xadd %s: %w", p.stream, err)
	}
	return id, nil
}
