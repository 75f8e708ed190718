package kafkax

import (
	"context"
	"testing"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

func TestSplitBrokers(t *testing.T) {
	assert.Equal(t, []string{"kafka-1:9092", "kafka-2:9092"}, SplitBrokers(" kafka-1:9092,, kafka-2:9092 "))
	assert.Nil(t, SplitBrokers(""))
}

func TestExtractEventMetaFallsBackToKeyAndTopic(t *testing.T) {
	meta := ExtractEventMeta(kafka.Message{Topic: "availability.changed.v1", Key: []byte("prod-1")})
	assert.Equal(t, "prod-1", meta.EventID)
	assert.Equal(t, "availability.changed.v1", meta.EventType)

	meta = ExtractEventMeta(kafka.Message{
		Topic:   "availability.changed.v1",
		Headers: []kafka.Header{{Key: "event_id", Value: []byte("evt-9")}, {Key: "event_type", Value: []byte("custom")}},
	})
	assert.Equal(t, "evt-9", meta.EventID)
	assert.Equal(t, "custom", meta.EventType)
}

func TestTraceHeadersRoundTrip(t *testing.T) {
	otel.SetTextMapPropagator(propagation.TraceContext{})

	traceID, _ := trace.TraceIDFromHex("4bf92f3577b34da6a3ce929d0e0e4736")
	spanID, _ := trace.SpanIDFromHex("00f067aa0ba902b7")
	sc := trace.NewSpanContext(trace.SpanContextConfig{TraceID: traceID, SpanID: spanID, TraceFlags: trace.FlagsSampled})
	ctx := trace.ContextWithSpanContext(context.Background(), sc)

	headers := InjectTraceHeaders(ctx, []kafka.Header{{Key: "event_id", Value: []byte("evt-1")}})
	assert.NotEmpty(t, HeaderValue(headers, "traceparent"))

	out := ExtractTraceContext(context.Background(), kafka.Message{Headers: headers})
	assert.Equal(t, traceID, trace.SpanContextFromContext(out).TraceID())
}

func TestEventMetaHeaders(t *testing.T) {
	meta := EventMeta{EventID: "evt-1", EventType: "availability.quote.resolved.v1"}
	headers := meta.Headers()
	assert.Len(t, headers, 2)
	assert.Equal(t, "evt-1", HeaderValue(headers, HeaderEventID))
	assert.Empty(t, HeaderValue(headers, HeaderAggregateType))

	meta.AggregateType = "availability_quote"
	assert.Equal(t, meta, ExtractEventMeta(kafka.Message{Topic: "other", Headers: meta.Headers()}))
}

func TestReadyCheckWithoutBrokers(t *testing.T) {
	assert.EqualError(t, ReadyCheck(" , ")(context.Background()), "kafka brokers not configured")
}
