// Package outbox relays events stored in the outbox table to Kafka.
// Events are written by the services in the same transaction as the state
// change they describe; the relay delivers them at least once.
package outbox

import (
	"context"
	"fmt"
	"strconv"

	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/propagation"
	"go.uber.org/zap"

	"github.com/MuhammadKhaledD/Bookify-sub002/internal/logging"
	"github.com/MuhammadKhaledD/Bookify-sub002/internal/models"
)

var tracer = otel.Tracer("github.com/MuhammadKhaledD/Bookify-sub002/internal/outbox")

// Producer is the part of *kafka.Writer the dispatcher needs
type Producer interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

// Dispatcher turns outbox events into Kafka messages keyed by aggregate
type Dispatcher struct {
	logger   *zap.Logger
	producer Producer
	topic    string
}

// NewDispatcher creates a new dispatcher. An empty topic leaves the topic
// to the producer.
func NewDispatcher(logger *zap.Logger, producer Producer, topic string) *Dispatcher {
	return &Dispatcher{logger: logger, producer: producer, topic: topic}
}

// NewKafkaWriter builds the producer used in production
func NewKafkaWriter(brokers []string, topic string) *kafka.Writer {
	return &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireAll,
		AllowAutoTopicCreation: true,
	}
}

// Dispatch publishes one event. The trace context stored with the event
// becomes the parent of the dispatch span.
func (d *Dispatcher) Dispatch(ctx context.Context, event models.OutboxEvent) error {
	ctx = otel.GetTextMapPropagator().Extract(ctx, propagation.MapCarrier(event.Headers))
	ctx, span := tracer.Start(ctx, "outbox.dispatch")
	defer span.End()
	span.SetAttributes(
		attribute.Int64("outbox.event_id", event.ID),
		attribute.String("outbox.event_type", event.EventType),
	)

	headers := make([]kafka.Header, 0, len(event.Headers)+3)
	for k, v := range event.Headers {
		headers = append(headers, kafka.Header{Key: k, Value: []byte(v)})
	}
	headers = append(headers,
		kafka.Header{Key: "event_id", Value: []byte(strconv.FormatInt(event.ID, 10))},
		kafka.Header{Key: "event_type", Value: []byte(event.EventType)},
		kafka.Header{Key: "aggregate_type", Value: []byte(event.AggregateType)},
	)

	msg := kafka.Message{
		Topic:   d.topic,
		Key:     []byte(event.AggregateType + ":" + event.AggregateID),
		Value:   event.Payload,
		Headers: headers,
		Time:    event.CreatedAt,
	}

	if err := d.producer.WriteMessages(ctx, msg); err != nil {
		span.RecordError(err)
		logging.Error(ctx, d.logger, "outbox dispatch failed",
			zap.Int64("event_id", event.ID), zap.String("event_type", event.EventType), zap.Error(err))
		return fmt.Errorf("failed to publish event %d: %w", event.ID, err)
	}

	logging.Debug(ctx, d.logger, "outbox event dispatched",
		zap.Int64("event_id", event.ID), zap.String("event_type", event.EventType))

	return nil
}
