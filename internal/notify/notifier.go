// Package notify publishes order lifecycle events for downstream push/SMS
// delivery. Publishing is fire-and-forget: failures are logged and retried
// a few times, never surfaced to the caller, and never performed while an
// order lock is held.
package notify

import (
	"context"
	"encoding/json"
	"time"

	"github.com/IBM/sarama"
	"github.com/google/uuid"
	"github.com/sethvargo/go-retry"
	"go.uber.org/zap"

	"github.com/jshmir7070-sys/helpme-core/internal/logger"
)

const (
	EventOrderOpened      = "order.opened"
	EventOrderMatching    = "order.matching"
	EventOrderScheduled   = "order.scheduled"
	EventOrderInProgress  = "order.in_progress"
	EventOrderCancelled   = "order.cancelled"
	EventHelperApplied    = "helper.applied"
	EventHelperAssigned   = "helper.assigned"
	EventHelperRemoved    = "helper.removed"
	EventClosingSubmitted = "closing.submitted"
	EventClosingApproved  = "closing.approved"
	EventBalancePaid      = "balance.paid"
	EventSettlementPaid   = "settlement.paid"
)

type Event struct {
	ID          string         `json:"id"`
	Type        string         `json:"type"`
	OrderNumber string         `json:"order_number"`
	At          time.Time      `json:"at"`
	Payload     map[string]any `json:"payload,omitempty"`
}

func NewEvent(eventType, orderNumber string, payload map[string]any) Event {
	return Event{
		ID:          uuid.NewString(),
		Type:        eventType,
		OrderNumber: orderNumber,
		At:          time.Now().UTC(),
		Payload:     payload,
	}
}

type Notifier interface {
	Notify(ctx context.Context, e Event)
}

// Nop drops every event. Used when no brokers are configured.
type Nop struct{}

func (Nop) Notify(context.Context, Event) {}

type Kafka struct {
	producer sarama.SyncProducer
	topic    string
}

func NewKafka(brokers []string, topic string) (*Kafka, error) {
	cfg := sarama.NewConfig()
	cfg.Producer.RequiredAcks = sarama.WaitForAll
	cfg.Producer.Return.Successes = true
	producer, err := sarama.NewSyncProducer(brokers, cfg)
	if err != nil {
		return nil, err
	}
	return &Kafka{producer: producer, topic: topic}, nil
}

func (k *Kafka) Notify(ctx context.Context, e Event) {
	data, err := json.Marshal(e)
	if err != nil {
		logger.Log.Error("marshal notification", zap.Error(err), zap.String("type", e.Type))
		return
	}

	backoff := retry.WithMaxRetries(3, retry.NewExponential(100*time.Millisecond))
	err = retry.Do(ctx, backoff, func(ctx context.Context) error {
		_, _, err := k.producer.SendMessage(&sarama.ProducerMessage{
			Topic: k.topic,
			// keyed by order number so per-order event order survives partitioning
			Key:   sarama.StringEncoder(e.OrderNumber),
			Value: sarama.ByteEncoder(data),
		})
		if err != nil {
			return retry.RetryableError(err)
		}
		return nil
	})
	if err != nil {
		logger.Log.Error("send notification",
			zap.Error(err),
			zap.String("type", e.Type),
			zap.String("order", e.OrderNumber),
		)
	}
}

func (k *Kafka) Close() error {
	return k.producer.Close()
}
