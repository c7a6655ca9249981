package kafka

import (
	"context"
	"errors"
	"testing"

	"github.com/segmentio/kafka-go"
)

type captureWriter struct {
	msgs   []kafka.Message
	err    error
	closed bool
}

func (w *captureWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	w.msgs = append(w.msgs, msgs...)
	return w.err
}

func (w *captureWriter) Close() error {
	w.closed = true
	return nil
}

func TestNewProducerRequiresBrokers(t *testing.T) {
	if _, err := NewProducer(); err == nil {
		t.Fatalf("expected error without brokers")
	}
}

func TestPublishEncodesJSON(t *testing.T) {
	w := &captureWriter{}
	p, err := NewProducer(WithWriter(w))
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if err := p.Publish(context.Background(), "signals", []byte("AAPL"), map[string]string{"symbol": "AAPL"}); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if len(w.msgs) != 1 {
		t.Fatalf("got %d messages", len(w.msgs))
	}
	m := w.msgs[0]
	if m.Topic != "signals" || string(m.Key) != "AAPL" || string(m.Value) != `{"symbol":"AAPL"}` {
		t.Fatalf("unexpected message %+v", m)
	}
	if err := p.Close(); err != nil || !w.closed {
		t.Fatalf("close: %v", err)
	}
}

func TestPublishRawAndErrors(t *testing.T) {
	boom := errors.New("leader not available")
	w := &captureWriter{err: boom}
	p, _ := NewProducer(WithWriter(w))

	err := p.Publish(context.Background(), "signals", nil, "raw")
	if !errors.Is(err, boom) {
		t.Fatalf("expected wrapped writer error, got %v", err)
	}
	if string(w.msgs[0].Value) != "raw" {
		t.Fatalf("strings must be sent as-is")
	}
	if _, err := encode(func() {}); err == nil {
		t.Fatalf("expected marshal error")
	}
}
