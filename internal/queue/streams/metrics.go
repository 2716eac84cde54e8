package streams

import (
	"context"
	"log"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	otelmetric "go.opentelemetry.io/otel/metric"
)

var (
	streamMetricsOnce sync.Once
	eventsPublished   otelmetric.Int64Counter
	eventsConsumed    otelmetric.Int64Counter
)

func initStreamMetrics() {
	meter := otel.Meter("runbooker/queue/streams")
	var err error
	eventsPublished, err = meter.Int64Counter(
		"events_published_total",
		otelmetric.WithDescription("Pipeline events appended to Redis Streams"),
	)
	if err != nil {
		log.Printf("queue streams metrics init: events_published_total: %v", err)
	}
	eventsConsumed, err = meter.Int64Counter(
		"events_consumed_total",
		otelmetric.WithDescription("Pipeline events read back from Redis Streams"),
	)
	if err != nil {
		log.Printf("queue streams metrics init: events_consumed_total: %v", err)
	}
}

func recordPublish(ctx context.Context, eventType string, err error) {
	streamMetricsOnce.Do(initStreamMetrics)
	if eventsPublished == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	eventsPublished.Add(contextOrBackground(ctx), 1, otelmetric.WithAttributes(
		attribute.String("event_type", eventType),
		attribute.String("result", result),
	))
}

func recordConsume(ctx context.Context, eventType string, valid bool) {
	streamMetricsOnce.Do(initStreamMetrics)
	if eventsConsumed == nil {
		return
	}
	eventsConsumed.Add(contextOrBackground(ctx), 1, otelmetric.WithAttributes(
		attribute.String("event_type", eventType),
		attribute.Bool("valid", valid),
	))
}

func contextOrBackground(ctx context.Context) context.Context {
	if ctx == nil {
		return context.Background()
	}
	return ctx
}
