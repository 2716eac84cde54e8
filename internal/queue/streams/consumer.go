package streams

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// GroupClient is the slice of the redis client a Consumer needs.
type GroupClient interface {
	LagSource
	XGroupCreateMkStream(ctx context.Context, stream, group, start string) *redis.StatusCmd
	XReadGroup(ctx context.Context, a *redis.XReadGroupArgs) *redis.XStreamSliceCmd
	XAck(ctx context.Context, stream, group string, ids ...string) *redis.IntCmd
}

// Consumer reads runbooker events from one stream as a member of a
// consumer group.
type Consumer struct {
	client   GroupClient
	registry *Registry
	stream   string
	group    string
	name     string
	logger   *log.Logger
}

// ConsumerOption configures a single read.
type ConsumerOption func(*redis.XReadGroupArgs)

// WithBlock sets how long a read waits for new entries.
func WithBlock(d time.Duration) ConsumerOption {
	return func(args *redis.XReadGroupArgs) {
		if d > 0 {
			args.Block = d
		}
	}
}

// WithCount caps the entries returned by one read.
func WithCount(n int64) ConsumerOption {
	return func(args *redis.XReadGroupArgs) {
		if n > 0 {
			args.Count = n
		}
	}
}

func NewConsumer(client GroupClient, registry *Registry, stream, group, name string) *Consumer {
	return &Consumer{
		client:   client,
		registry: registry,
		stream:   stream,
		group:    group,
		name:     name,
		logger:   log.New(log.Writer(), "[EVENTS] ", log.LstdFlags),
	}
}

// Message is a decoded stream entry. Event is *TicketsImported or
// *RunbookSynthesized.
type Message struct {
	ID       string
	Envelope Envelope
	Event    interface{}
}

// EnsureGroup creates the group, and the stream with it, when missing.
func (c *Consumer) EnsureGroup(ctx context.Context) error {
	if c.stream == "" || c.group == "" {
		return errors.New("stream and group are required")
	}
	if err := c.client.XGroupCreateMkStream(ctx, c.stream, c.group, "0").Err(); err != nil {
		if strings.Contains(err.Error(), "BUSYGROUP") {
			return nil
		}
		return fmt.Errorf("xgroup create %s: %w", c.stream, err)
	}
	return nil
}

// Read returns new entries for this consumer. Entries that fail to decode
// or validate are acknowledged and left out.
func (c *Consumer) Read(ctx context.Context, opts ...ConsumerOption) ([]Message, error) {
	if c.group == "" || c.name == "" {
		return nil, errors.New("consumer group and name are required")
	}
	args := &redis.XReadGroupArgs{
		Group:    c.group,
		Consumer: c.name,
		Streams:  []string{c.stream, ">"},
	}
	for _, opt := range opts {
		opt(args)
	}
	res, err := c.client.XReadGroup(ctx, args).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("xreadgroup %s: %w", c.stream, err)
	}
	var out []Message
	for _, st := range res {
		for _, entry := range st.Messages {
			msg, err := c.decode(entry)
			if err != nil {
				c.logger.Printf("dropping %s from %s: %v", entry.ID, c.stream, err)
				recordConsume(ctx, msg.Envelope.EventType, false)
				if ackErr := c.Ack(ctx, entry.ID); ackErr != nil {
					c.logger.Printf("ack dropped %s: %v", entry.ID, ackErr)
				}
				continue
			}
			recordConsume(ctx, msg.Envelope.EventType, true)
			out = append(out, msg)
		}
	}
	return out, nil
}

// Ack marks ids as processed.
func (c *Consumer) Ack(ctx context.Context, ids ...string) error {
	if len(ids) == 0 {
		return nil
	}
	if err := c.client.XAck(ctx, c.stream, c.group, ids...).Err(); err != nil {
		return fmt.Errorf("xack %s: %w", c.stream, err)
	}
	return nil
}

// Tail reads until ctx ends, acknowledging each message fn accepts.
func (c *Consumer) Tail(ctx context.Context, fn func(Message) error) error {
	for {
		msgs, err := c.Read(ctx, WithBlock(5*time.Second), WithCount(50))
		if ctx.Err() != nil {
			return nil
		}
		if err != nil {
			return err
		}
		for _, m := range msgs {
			if err := fn(m); err != nil {
				c.logger.Printf("handler failed for %s: %v", m.ID, err)
				continue
			}
			if err := c.Ack(ctx, m.ID); err != nil {
				return err
			}
		}
	}
}

// Lag reports this consumer's group on its stream.
func (c *Consumer) Lag(ctx context.Context) (LagReport, error) {
	return Lag(ctx, c.client, c.stream, c.group)
}

// decode returns the partially filled Message alongside any error so the
// caller can label the drop with the event type when it is known.
func (c *Consumer) decode(entry redis.XMessage) (Message, error) {
	msg := Message{ID: entry.ID}
	env, err := decodeEntry(entry.Values)
	if err != nil {
		return msg, err
	}
	msg.Envelope = env
	if c.registry != nil {
		if err := c.registry.Validate(env); err != nil {
			return msg, err
		}
	}
	ev, err := env.Event()
	if err != nil {
		return msg, err
	}
	msg.Event = ev
	return msg, nil
}
