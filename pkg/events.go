package pkg

import (
	"log/slog"

	"github.com/SAP-F-2025/assessment-engine/internal/config"
	"github.com/SAP-F-2025/assessment-engine/internal/events"
)

// NewEventPublisher selects kafka when brokers are configured, the in-process channel otherwise.
func NewEventPublisher(cfg *config.Config, logger *slog.Logger) (events.EventPublisher, error) {
	publisher, _, err := events.NewPublisher(events.Config{
		Brokers:     cfg.Events.KafkaBrokers,
		TopicPrefix: cfg.Events.TopicPrefix,
	}, logger)
	if err != nil {
		return nil, err
	}
	return publisher, nil
}
