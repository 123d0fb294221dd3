package audit

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/twmb/franz-go/pkg/kgo"
)

// KafkaMirror publishes each durably-stored audit event to a Kafka topic for
// SIEM and analytics fan-out. It is strictly best-effort: the durable store
// is the system of record, and a mirror failure is logged, never propagated
// to the action that produced the event.
type KafkaMirror struct {
	client *kgo.Client
	topic  string
	logger *slog.Logger
}

func NewKafkaMirror(brokers []string, topic string, logger *slog.Logger) (*KafkaMirror, error) {
	client, err := kgo.NewClient(
		kgo.SeedBrokers(brokers...),
		kgo.DefaultProduceTopic(topic),
	)
	if err != nil {
		return nil, err
	}
	return &KafkaMirror{client: client, topic: topic, logger: logger}, nil
}

// Publish produces the event asynchronously. The record key is the memorial
// ID when present so per-memorial ordering survives partitioning.
func (m *KafkaMirror) Publish(ctx context.Context, event Event) {
	payload, err := json.Marshal(event)
	if err != nil {
		m.logger.ErrorContext(ctx, "audit mirror marshal failed",
			"event_id", event.ID,
			"error", err,
		)
		return
	}
	var key []byte
	if event.MemorialID != nil {
		key = []byte(event.MemorialID.String())
	}
	record := &kgo.Record{Topic: m.topic, Key: key, Value: payload}
	m.client.Produce(ctx, record, func(_ *kgo.Record, err error) {
		if err != nil {
			m.logger.Error("audit mirror publish failed",
				"event_id", event.ID,
				"error", err,
			)
		}
	})
}

// Close flushes buffered records and releases the client.
func (m *KafkaMirror) Close() {
	m.client.Close()
}
