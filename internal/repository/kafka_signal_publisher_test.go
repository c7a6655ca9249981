package repository

import (
	"context"
	"encoding/json"
	"testing"

	pkgkafka "Pivot/pkg/kafka"

	"github.com/segmentio/kafka-go"
)

type memWriter struct{ msgs []kafka.Message }

func (w *memWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *memWriter) Close() error { return nil }

func TestKafkaSignalPublisher(t *testing.T) {
	w := &memWriter{}
	prod, err := pkgkafka.NewProducer(pkgkafka.WithWriter(w))
	if err != nil {
		t.Fatalf("producer: %v", err)
	}
	pub := NewKafkaSignalPublisher(prod, "pivot.signals")
	defer pub.Close()

	if err := pub.PublishSignal(context.Background(), sampleWatchlist().SignalLog[0]); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if len(w.msgs) != 1 {
		t.Fatalf("messages = %d", len(w.msgs))
	}
	m := w.msgs[0]
	if m.Topic != "pivot.signals" || string(m.Key) != "AAPL" {
		t.Fatalf("unexpected message %+v", m)
	}
	var ev map[string]interface{}
	if err := json.Unmarshal(m.Value, &ev); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if ev["triggeredAt"] != "2024-10-01T14:30:00Z" || ev["price"] != 187.5 {
		t.Fatalf("event = %v", ev)
	}
}
