// Package events keeps cached answers fresh by consuming data change
// notifications from Kafka.
package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/hostpilotpro/captain-cortex/internal/metrics"
)

// DataChange announces that a tenant record was written.
type DataChange struct {
	Entity         string `json:"entity"`
	OrganizationID string `json:"organizationId"`
	EntityID       string `json:"entityId,omitempty"`
	Action         string `json:"action"`
}

// entityLabels bounds the entity label of InvalidationEvents; anything else
// is counted as "other".
var entityLabels = map[string]bool{
	"property":     true,
	"utility_bill": true,
	"task":         true,
	"booking":      true,
	"finance":      true,
	"unknown":      true,
}

func entityLabel(entity string) string {
	if entityLabels[entity] {
		return entity
	}
	return "other"
}

type MessageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type Invalidator interface {
	InvalidateOrganization(organizationID string) int
}

type Config struct {
	Brokers []string
	Topic   string
	GroupID string
}

// NewReader opens a consumer group reader for the data change topic.
func NewReader(cfg Config) (*kafka.Reader, error) {
	if len(cfg.Brokers) == 0 {
		return nil, errors.New("events: at least one broker is required")
	}
	if cfg.Topic == "" {
		return nil, errors.New("events: topic is required")
	}
	return kafka.NewReader(kafka.ReaderConfig{
		Brokers:        cfg.Brokers,
		Topic:          cfg.Topic,
		GroupID:        cfg.GroupID,
		MinBytes:       1,
		MaxBytes:       1 << 20,
		CommitInterval: 0,
		StartOffset:    kafka.LastOffset,
	}), nil
}

type Consumer struct {
	reader      MessageReader
	invalidator Invalidator
	retryDelay  time.Duration
	logger      *zap.Logger
}

func NewConsumer(reader MessageReader, invalidator Invalidator, logger *zap.Logger) *Consumer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Consumer{
		reader:      reader,
		invalidator: invalidator,
		retryDelay:  time.Second,
		logger:      logger,
	}
}

// Run consumes until ctx is cancelled. Malformed messages are committed and
// skipped so one bad producer cannot stall the group.
func (c *Consumer) Run(ctx context.Context) error {
	c.logger.Info("Data change consumer started")
	defer c.logger.Info("Data change consumer stopped")

	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			c.logger.Warn("Failed to fetch data change", zap.Error(err))
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(c.retryDelay):
			}
			continue
		}

		c.Handle(msg)

		if err := c.reader.CommitMessages(ctx, msg); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			c.logger.Warn("Failed to commit data change",
				zap.Int64("offset", msg.Offset),
				zap.Error(err),
			)
		}
	}
}

// Handle applies one message and returns the number of answers dropped.
func (c *Consumer) Handle(msg kafka.Message) int {
	change, err := decode(msg.Value)
	if err != nil {
		metrics.InvalidationEvents.WithLabelValues("unknown", "invalid").Inc()
		c.logger.Warn("Skipping malformed data change",
			zap.Int64("offset", msg.Offset),
			zap.Error(err),
		)
		return 0
	}

	removed := c.invalidator.InvalidateOrganization(change.OrganizationID)
	metrics.InvalidationEvents.WithLabelValues(entityLabel(change.Entity), "applied").Inc()
	c.logger.Info("Answers invalidated",
		zap.String("entity", change.Entity),
		zap.String("action", change.Action),
		zap.String("organization_id", change.OrganizationID),
		zap.Int("removed", removed),
	)
	return removed
}

func decode(value []byte) (DataChange, error) {
	var change DataChange
	if err := json.Unmarshal(value, &change); err != nil {
		return change, fmt.Errorf("failed to decode data change: %w", err)
	}
	if change.OrganizationID == "" {
		return change, errors.New("data change has no organizationId")
	}
	if change.Entity == "" {
		change.Entity = "unknown"
	}
	return change, nil
}
