package services

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"github.com/MuhammadKhaledD/Bookify-sub002/internal/logging"
	"github.com/MuhammadKhaledD/Bookify-sub002/internal/models"
	"github.com/MuhammadKhaledD/Bookify-sub002/internal/repositories"
)

var tracer = otel.Tracer("github.com/MuhammadKhaledD/Bookify-sub002/internal/services")

func startSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return tracer.Start(ctx, name, trace.WithAttributes(attrs...))
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

func itemAttrs(ref models.ItemRef, quantity int) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String("item.type", string(ref.Type)),
		attribute.Int64("item.id", ref.ID),
		attribute.Int("item.quantity", quantity),
	}
}

// emitEvent stores a domain event in the outbox of the current
// transaction. The trace context travels in the headers.
func emitEvent(ctx context.Context, tx repositories.Tx, aggregateType string, aggregateID int64, eventType string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to encode %s event: %w", eventType, err)
	}

	headers := map[string]string{}
	otel.GetTextMapPropagator().Inject(ctx, propagation.MapCarrier(headers))
	if id := logging.RequestID(ctx); id != "" {
		headers["request_id"] = id
	}

	event := &models.OutboxEvent{
		AggregateType: aggregateType,
		AggregateID:   strconv.FormatInt(aggregateID, 10),
		EventType:     eventType,
		Payload:       body,
		Headers:       headers,
	}

	if err := tx.Outbox().Append(ctx, event); err != nil {
		return fmt.Errorf("failed to store %s event: %w", eventType, err)
	}

	return nil
}
