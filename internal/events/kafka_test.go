package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/confluentinc/confluent-kafka-go/v2/kafka"
	"github.com/shopspring/decimal"
)

type fakeProducer struct {
	sent       []*kafka.Message
	deliverErr error
	produceErr error
	closed     bool
}

func (f *fakeProducer) Produce(msg *kafka.Message, deliveryChan chan kafka.Event) error {
	if f.produceErr != nil {
		return f.produceErr
	}
	f.sent = append(f.sent, msg)
	out := *msg
	out.TopicPartition.Error = f.deliverErr
	deliveryChan <- &out
	return nil
}

func (f *fakeProducer) Flush(timeoutMs int) int { return 0 }
func (f *fakeProducer) Close()                  { f.closed = true }

func TestKafkaPublisher_Publish(t *testing.T) {
	fp := &fakeProducer{}
	p := NewKafkaPublisherWithProducer(fp, "esim_purchases")

	ev := PurchaseEvent{
		Type:          TypePurchaseCompleted,
		PaymentID:     "pi_1",
		CustomerEmail: "a@b.com",
		PackageID:     "42",
		AmountPaid:    decimal.RequireFromString("19.99"),
		Currency:      "usd",
		OccurredAt:    time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
	}
	if err := p.Publish(context.Background(), ev); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(fp.sent) != 1 {
		t.Fatalf("expected 1 message, got %d", len(fp.sent))
	}
	msg := fp.sent[0]
	if string(msg.Key) != "pi_1" || *msg.TopicPartition.Topic != "esim_purchases" {
		t.Fatalf("unexpected key/topic: %s %s", msg.Key, *msg.TopicPartition.Topic)
	}
	var got map[string]interface{}
	if err := json.Unmarshal(msg.Value, &got); err != nil {
		t.Fatalf("payload not json: %v", err)
	}
	if got["amount_paid"] != "19.99" || got["type"] != TypePurchaseCompleted {
		t.Fatalf("unexpected payload: %v", got)
	}

	p.Close()
	if !fp.closed {
		t.Fatalf("expected producer closed")
	}
}

func TestKafkaPublisher_DeliveryError(t *testing.T) {
	fp := &fakeProducer{deliverErr: errors.New("broker down")}
	p := NewKafkaPublisherWithProducer(fp, "t")

	if err := p.Publish(context.Background(), PurchaseEvent{PaymentID: "pi_1"}); err == nil {
		t.Fatal("expected delivery error")
	}
}

func TestKafkaPublisher_ProduceError(t *testing.T) {
	fp := &fakeProducer{produceErr: errors.New("queue full")}
	p := NewKafkaPublisherWithProducer(fp, "t")

	if err := p.Publish(context.Background(), PurchaseEvent{PaymentID: "pi_1"}); err == nil {
		t.Fatal("expected produce error")
	}
}
