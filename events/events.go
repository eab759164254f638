/*
Package events publishes settlement events for downstream consumers
(reconciliation jobs, analytics, notification fan-out).

PURPOSE:
  Every journal entry that reaches a terminal status can be announced
  on a topic. Publishing is strictly fire-and-forget: a broker outage
  must never fail or delay a settle unit, so callers publish after the
  unit commits and log (not propagate) errors.

IMPLEMENTATIONS:
  - KafkaPublisher: segmentio/kafka-go writer
  - NopPublisher:   default when no broker is configured; also used in
                    tests
*/
package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/geovend/wallet-engine/ledger"
)

// EntrySettled is the event body for a journal entry reaching a
// terminal status.
type EntrySettled struct {
	EntryID    ledger.EntryID   `json:"entry_id"`
	AccountID  ledger.AccountID `json:"account_id"`
	Kind       ledger.Kind      `json:"kind"`
	Amount     int64            `json:"amount"`
	Status     ledger.Status    `json:"status"`
	Ambiguous  bool             `json:"ambiguous,omitempty"`
	OccurredAt time.Time        `json:"occurred_at"`
}

// Publisher announces settled entries.
type Publisher interface {
	PublishSettled(ctx context.Context, ev EntrySettled) error
}

// =============================================================================
// KAFKA
// =============================================================================

// KafkaPublisher writes settled-entry events to a Kafka topic.
type KafkaPublisher struct {
	writer *kafka.Writer
}

// NewKafkaPublisher creates a publisher for the given brokers and
// topic.
func NewKafkaPublisher(brokers []string, topic string) *KafkaPublisher {
	return &KafkaPublisher{
		writer: &kafka.Writer{
			Addr:     kafka.TCP(brokers...),
			Topic:    topic,
			Balancer: &kafka.LeastBytes{},
		},
	}
}

// PublishSettled writes one event, keyed by account so per-account
// ordering survives partitioning.
func (p *KafkaPublisher) PublishSettled(ctx context.Context, ev EntrySettled) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(ev.AccountID),
		Value: data,
	})
}

// Close flushes and closes the underlying writer.
func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

// =============================================================================
// NOP
// =============================================================================

// NopPublisher drops events. Used when no broker is configured.
type NopPublisher struct{}

func (NopPublisher) PublishSettled(context.Context, EntrySettled) error { return nil }
