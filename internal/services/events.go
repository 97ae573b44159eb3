package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/example/floradispatch/internal/config"
)

// Change event kinds.
const (
	EventOrderCreated    = "order.created"
	EventOrderUpdated    = "order.updated"
	EventOrderAssigned   = "order.assigned"
	EventOrderUnassigned = "order.unassigned"
	EventOrderStatus     = "order.status_changed"
)

// ChangeEvent notifies that an order record changed. It carries no order
// state; consumers reload the record.
type ChangeEvent struct {
	OrderID   uuid.UUID   `json:"order_id"`
	Source    OrderSource `json:"source"`
	Kind      string      `json:"kind"`
	StoreID   *uuid.UUID  `json:"store_id,omitempty"`
	UpdatedAt time.Time   `json:"updated_at"`
}

func (e ChangeEvent) Ref() OrderRef {
	return OrderRef{Source: e.Source, ID: e.OrderID}
}

// EventPublisher emits change events after a commit.
type EventPublisher interface {
	Publish(ctx context.Context, event ChangeEvent) error
}

// ChangeSource yields change events one at a time. ack marks the event handled.
type ChangeSource interface {
	Next(ctx context.Context) (event ChangeEvent, ack func(context.Context) error, err error)
	Close() error
}

// ErrBusFull is returned when the in-process bus cannot take more events.
var ErrBusFull = errors.New("event bus full")

// LocalBus is an in-process ChangeSource and EventPublisher.
type LocalBus struct {
	events chan ChangeEvent
}

func NewLocalBus(buffer int) *LocalBus {
	if buffer <= 0 {
		buffer = 256
	}
	return &LocalBus{events: make(chan ChangeEvent, buffer)}
}

// Publish never blocks; a dropped event is recovered by the reconcile sweep.
func (b *LocalBus) Publish(_ context.Context, event ChangeEvent) error {
	select {
	case b.events <- event:
		return nil
	default:
		return ErrBusFull
	}
}

func (b *LocalBus) Next(ctx context.Context) (ChangeEvent, func(context.Context) error, error) {
	select {
	case <-ctx.Done():
		return ChangeEvent{}, nil, ctx.Err()
	case event := <-b.events:
		return event, func(context.Context) error { return nil }, nil
	}
}

func (b *LocalBus) Close() error { return nil }

// KafkaChangeSource reads change events from a consumer group.
type KafkaChangeSource struct {
	reader *kafka.Reader
}

func NewKafkaChangeSource(cfg config.KafkaConfig) *KafkaChangeSource {
	return &KafkaChangeSource{reader: kafka.NewReader(kafka.ReaderConfig{
		Brokers:  cfg.Brokers,
		GroupID:  cfg.ConsumerGroup,
		Topic:    cfg.ChangeTopic,
		MinBytes: 1,
		MaxBytes: 10e6,
		MaxWait:  time.Second,
	})}
}

// Next fetches without committing; the returned ack commits the offset.
// Undecodable messages come back with a non-nil ack so the caller can skip them.
func (s *KafkaChangeSource) Next(ctx context.Context) (ChangeEvent, func(context.Context) error, error) {
	msg, err := s.reader.FetchMessage(ctx)
	if err != nil {
		return ChangeEvent{}, nil, err
	}
	ack := func(ctx context.Context) error { return s.reader.CommitMessages(ctx, msg) }

	var event ChangeEvent
	if err := json.Unmarshal(msg.Value, &event); err != nil {
		return ChangeEvent{}, ack, fmt.Errorf("decode change event at offset %d: %w", msg.Offset, err)
	}
	if event.UpdatedAt.IsZero() {
		event.UpdatedAt = msg.Time
	}
	return event, ack, nil
}

func (s *KafkaChangeSource) Close() error {
	return s.reader.Close()
}

// KafkaPublisher writes change events keyed by order id.
type KafkaPublisher struct {
	writer *kafka.Writer
}

func NewKafkaPublisher(cfg config.KafkaConfig, topic string) *KafkaPublisher {
	return &KafkaPublisher{writer: &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		BatchTimeout: 50 * time.Millisecond,
		RequiredAcks: kafka.RequireOne,
	}}
}

func (p *KafkaPublisher) Publish(ctx context.Context, event ChangeEvent) error {
	value, err := json.Marshal(event)
	if err != nil {
		return err
	}
	return p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(event.OrderID.String()),
		Value: value,
		Time:  event.UpdatedAt,
		Headers: []kafka.Header{
			{Key: "kind", Value: []byte(event.Kind)},
			{Key: "source", Value: []byte(event.Source)},
		},
	})
}

func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

// FanOut publishes to every publisher and logs individual failures.
type FanOut struct {
	publishers []EventPublisher
	logger     *zap.Logger
}

func NewFanOut(logger *zap.Logger, publishers ...EventPublisher) *FanOut {
	return &FanOut{publishers: publishers, logger: logger}
}

func (f *FanOut) Publish(ctx context.Context, event ChangeEvent) error {
	var errs []error
	for _, p := range f.publishers {
		if err := p.Publish(ctx, event); err != nil {
			f.logger.Warn("publish change event failed",
				zap.String("order", event.Ref().String()),
				zap.String("kind", event.Kind),
				zap.Error(err),
			)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

type discardPublisher struct{}

func (discardPublisher) Publish(context.Context, ChangeEvent) error { return nil }
