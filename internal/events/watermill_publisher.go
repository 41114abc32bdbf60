package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-kafka/v2/pkg/kafka"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
)

// Config selects the broker. An empty Brokers list keeps events in process.
type Config struct {
	Brokers     []string
	TopicPrefix string
}

// WatermillPublisher wraps events in the envelope and publishes them on a
// topic named after the event type.
type WatermillPublisher struct {
	publisher   message.Publisher
	topicPrefix string
	logger      *slog.Logger
}

func NewWatermillPublisher(publisher message.Publisher, topicPrefix string, logger *slog.Logger) *WatermillPublisher {
	return &WatermillPublisher{
		publisher:   publisher,
		topicPrefix: topicPrefix,
		logger:      logger,
	}
}

// NewPublisher builds a Kafka publisher when brokers are configured and a
// gochannel publisher otherwise. The gochannel is also returned so callers can subscribe in process.
func NewPublisher(cfg Config, logger *slog.Logger) (*WatermillPublisher, *gochannel.GoChannel, error) {
	wmLogger := watermill.NewSlogLogger(logger)

	if len(cfg.Brokers) == 0 {
		channel := gochannel.NewGoChannel(gochannel.Config{OutputChannelBuffer: 256}, wmLogger)
		logger.Info("Event publisher using in-process channel")
		return NewWatermillPublisher(channel, cfg.TopicPrefix, logger), channel, nil
	}

	pub, err := kafka.NewPublisher(kafka.PublisherConfig{
		Brokers:   cfg.Brokers,
		Marshaler: kafka.DefaultMarshaler{},
	}, wmLogger)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create kafka publisher: %w", err)
	}
	logger.Info("Event publisher using kafka", "brokers", strings.Join(cfg.Brokers, ","))
	return NewWatermillPublisher(pub, cfg.TopicPrefix, logger), nil, nil
}

// Topic returns the topic an event type is published on.
func (p *WatermillPublisher) Topic(eventType string) string {
	return p.topicPrefix + eventType
}

func (p *WatermillPublisher) Publish(ctx context.Context, eventType string, data interface{}) error {
	event := Event{
		ID:        watermill.NewUUID(),
		Type:      eventType,
		Source:    EventSource,
		Version:   EventVersion,
		Timestamp: time.Now().UTC(),
		Data:      data,
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	msg := message.NewMessage(event.ID, payload)
	msg.SetContext(ctx)
	msg.Metadata.Set("event_type", eventType)

	if err := p.publisher.Publish(p.Topic(eventType), msg); err != nil {
		return fmt.Errorf("failed to publish %s: %w", eventType, err)
	}

	p.logger.DebugContext(ctx, "Event published", "event_id", event.ID, "event_type", eventType)
	return nil
}

func (p *WatermillPublisher) Close() error {
	return p.publisher.Close()
}

// Emit publishes and logs failures. Events are emitted after the durable write,
// so a broker outage must not fail the operation that produced them.
func Emit(ctx context.Context, publisher EventPublisher, logger *slog.Logger, eventType string, data interface{}) {
	if publisher == nil {
		return
	}
	if err := publisher.Publish(ctx, eventType, data); err != nil {
		logger.ErrorContext(ctx, "Failed to publish event", "event_type", eventType, "error", err)
	}
}
