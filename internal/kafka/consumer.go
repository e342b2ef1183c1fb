package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"ms-storefront/internal/logger"
	"ms-storefront/internal/models"

	"github.com/segmentio/kafka-go"
)

type Consumer struct {
	reader *kafka.Reader
	logger *logger.Logger
}

// NewConsumer reads every topic in topics as member of groupID. Give each instance its
// own group to have every instance see every event.
func NewConsumer(brokers []string, topics []string, groupID string, log *logger.Logger) *Consumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:     brokers,
		GroupID:     groupID,
		GroupTopics: topics,
		StartOffset: kafka.LastOffset,
		MinBytes:    1,
		MaxBytes:    10e6, // 10MB
	})
	return &Consumer{reader: reader, logger: log}
}

// DecodeEvent turns a message back into the event the producer wrote.
func DecodeEvent(msg kafka.Message) (models.OrderEvent, error) {
	var event models.OrderEvent
	if err := json.Unmarshal(msg.Value, &event); err != nil {
		return event, err
	}
	if event.Type == "" || event.OrderNumber == "" {
		return event, fmt.Errorf("message on %s is not an order event", msg.Topic)
	}
	return event, nil
}

// Start blocks, handing each event to handler until ctx is cancelled.
func (c *Consumer) Start(ctx context.Context, handler func(event models.OrderEvent)) {
	c.logger.Info("KAFKA", "🔄 Kafka consumer started")

	for {
		msg, err := c.reader.ReadMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || ctx.Err() != nil {
				c.logger.Info("KAFKA", "Kafka consumer stopped")
				return
			}
			c.logger.Error("KAFKA", fmt.Sprintf("❌ Error reading message: %v", err))
			continue
		}

		event, err := DecodeEvent(msg)
		if err != nil {
			c.logger.Warn("KAFKA", fmt.Sprintf("⚠️ Failed to decode message: %v", err))
			continue
		}

		c.logger.LogKafka("RECEIVE", msg.Topic, fmt.Sprintf("%s %s", event.Type, event.OrderNumber))
		handler(event)
	}
}

// Close gracefully shuts down the Kafka reader
func (c *Consumer) Close() error {
	return c.reader.Close()
}
