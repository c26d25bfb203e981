package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/confluentinc/confluent-kafka-go/v2/kafka"
	log "github.com/sirupsen/logrus"
)

// Producer is the subset of *kafka.Producer used here.
type Producer interface {
	Produce(msg *kafka.Message, deliveryChan chan kafka.Event) error
	Flush(timeoutMs int) int
	Close()
}

// KafkaPublisher produces events to a single topic and waits for delivery.
type KafkaPublisher struct {
	producer Producer
	topic    string
}

// NewKafkaPublisher connects a producer to bootstrapServers.
func NewKafkaPublisher(bootstrapServers, topic string) (*KafkaPublisher, error) {
	configMap := &kafka.ConfigMap{
		"bootstrap.servers":  bootstrapServers,
		"acks":               "all",
		"enable.idempotence": true,
	}
	log.WithField("kafka_servers", bootstrapServers).Info("Connecting Kafka producer")
	p, err := kafka.NewProducer(configMap)
	if err != nil {
		return nil, fmt.Errorf("create kafka producer: %w", err)
	}
	return NewKafkaPublisherWithProducer(p, topic), nil
}

func NewKafkaPublisherWithProducer(p Producer, topic string) *KafkaPublisher {
	return &KafkaPublisher{producer: p, topic: topic}
}

func (k *KafkaPublisher) Publish(ctx context.Context, ev PurchaseEvent) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal purchase event: %w", err)
	}

	delivery := make(chan kafka.Event, 1)
	msg := &kafka.Message{
		TopicPartition: kafka.TopicPartition{Topic: &k.topic, Partition: kafka.PartitionAny},
		Key:            []byte(ev.PaymentID),
		Value:          payload,
		Headers:        []kafka.Header{{Key: "event_type", Value: []byte(ev.Type)}},
	}
	if err := k.producer.Produce(msg, delivery); err != nil {
		return fmt.Errorf("produce purchase event: %w", err)
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case e := <-delivery:
		m, ok := e.(*kafka.Message)
		if !ok {
			return fmt.Errorf("unexpected delivery event %T", e)
		}
		if m.TopicPartition.Error != nil {
			return fmt.Errorf("deliver purchase event: %w", m.TopicPartition.Error)
		}
		return nil
	}
}

// Close flushes outstanding messages and closes the producer.
func (k *KafkaPublisher) Close() {
	if remaining := k.producer.Flush(5000); remaining > 0 {
		log.WithField("remaining", remaining).Warn("Kafka producer closed with undelivered messages")
	}
	k.producer.Close()
}
