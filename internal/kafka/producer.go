package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"ms-storefront/internal/config"
	"ms-storefront/internal/logger"
	"ms-storefront/internal/models"

	"github.com/segmentio/kafka-go"
)

// Producer publishes order lifecycle events, one topic per event type.
type Producer struct {
	Writer *kafka.Writer
	Topics map[string]string
	Logger *logger.Logger
}

func NewProducer(brokers []string, topics config.TopicConfig, log *logger.Logger) *Producer {
	writer := &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireOne,
		WriteTimeout:           5 * time.Second,
		AllowAutoTopicCreation: true,
	}
	return &Producer{Writer: writer, Topics: TopicsByEvent(topics), Logger: log}
}

// TopicsByEvent maps event types to their configured topics.
func TopicsByEvent(topics config.TopicConfig) map[string]string {
	return map[string]string{
		models.EventOrderCreated:   topics.OrderCreated,
		models.EventOrderPaid:      topics.OrderPaid,
		models.EventOrderFailed:    topics.OrderFailed,
		models.EventOrderCancelled: topics.OrderCancelled,
		models.EventOrderStatus:    topics.OrderStatus,
	}
}

// Message builds the Kafka message for event. Keyed by order number so one order's
// events stay ordered within a partition.
func (p *Producer) Message(event models.OrderEvent) (kafka.Message, error) {
	topic, ok := p.Topics[event.Type]
	if !ok || topic == "" {
		return kafka.Message{}, fmt.Errorf("no topic configured for event %s", event.Type)
	}
	value, err := json.Marshal(event)
	if err != nil {
		return kafka.Message{}, err
	}
	return kafka.Message{
		Topic: topic,
		Key:   []byte(event.OrderNumber),
		Value: value,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(event.Type)},
		},
	}, nil
}

// Publish streams event to Kafka. Failures are logged; order state is already committed.
func (p *Producer) Publish(ctx context.Context, event models.OrderEvent) {
	msg, err := p.Message(event)
	if err != nil {
		p.Logger.Error("KAFKA", fmt.Sprintf("Failed to build %s message for %s: %v", event.Type, event.OrderNumber, err))
		return
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()

	if err := p.Writer.WriteMessages(ctx, msg); err != nil {
		p.Logger.Error("KAFKA", fmt.Sprintf("Failed to publish %s for %s: %v", event.Type, event.OrderNumber, err))
		return
	}
	p.Logger.LogKafka("PUBLISH", msg.Topic, event.OrderNumber)
}

func (p *Producer) Close() error {
	return p.Writer.Close()
}
