package repository

import (
	"context"
	"time"

	"Pivot/internal/domain/models"
	drepo "Pivot/internal/domain/repository"
	pkgkafka "Pivot/pkg/kafka"
)

// KafkaSignalPublisher implements SignalPublisher for Kafka.
type KafkaSignalPublisher struct {
	producer *pkgkafka.Producer
	topic    string
}

// NewKafkaSignalPublisher creates a publisher writing to topic, keyed by symbol.
func NewKafkaSignalPublisher(producer *pkgkafka.Producer, topic string) *KafkaSignalPublisher {
	return &KafkaSignalPublisher{producer: producer, topic: topic}
}

var _ drepo.SignalPublisher = (*KafkaSignalPublisher)(nil)

type signalEvent struct {
	ID          string   `json:"id"`
	Symbol      string   `json:"symbol"`
	Name        string   `json:"name"`
	Price       float64  `json:"price"`
	TriggeredAt string   `json:"triggeredAt"` // RFC 3339
	Conditions  []string `json:"conditions"`
}

func (p *KafkaSignalPublisher) PublishSignal(ctx context.Context, e models.SignalLogEntry) error {
	return p.producer.Publish(ctx, p.topic, []byte(e.Symbol), signalEvent{
		ID:          e.ID,
		Symbol:      e.Symbol,
		Name:        e.Name,
		Price:       e.Price,
		TriggeredAt: e.TriggeredAt.UTC().Format(time.RFC3339),
		Conditions:  e.Conditions,
	})
}

func (p *KafkaSignalPublisher) Close() error {
	if p.producer != nil {
		return p.producer.Close()
	}
	return nil
}
