// Package events publishes position lifecycle events to Kafka so downstream
// consumers (alerting, analytics) can react to settlements and price moves
// without polling the API.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/snapbet/decision-engine/internal/model"
)

// Event types published to the positions topic.
const (
	EventPositionOpened  = "POSITION_OPENED"
	EventPositionClosed  = "POSITION_CLOSED"
	EventPositionSettled = "POSITION_SETTLED"
	EventPriceMove       = "PRICE_MOVE"
)

// PositionEvent is the wire format for all position events. Messages are
// keyed by ticker so one market's events stay ordered within a partition.
type PositionEvent struct {
	EventType string                 `json:"event_type"`
	Ticker    string                 `json:"ticker"`
	Position  *model.TrackedPosition `json:"position,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
}

// Producer publishes position events to Kafka.
type Producer struct {
	writer *kafka.Writer
	topic  string
}

// NewProducer creates a Kafka producer for the given brokers and topic.
func NewProducer(brokers []string, topic string) *Producer {
	writer := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.LeastBytes{},
		BatchTimeout: 10 * time.Millisecond,
	}

	return &Producer{
		writer: writer,
		topic:  topic,
	}
}

// PublishOpened publishes a position opened event.
func (p *Producer) PublishOpened(ctx context.Context, pos *model.TrackedPosition) error {
	return p.publish(ctx, EventPositionOpened, pos)
}

// PublishClosed publishes a position closed (user delete) event.
func (p *Producer) PublishClosed(ctx context.Context, pos *model.TrackedPosition) error {
	return p.publish(ctx, EventPositionClosed, pos)
}

// PublishSettled publishes a settlement event with the final P&L.
func (p *Producer) PublishSettled(ctx context.Context, pos *model.TrackedPosition) error {
	return p.publish(ctx, EventPositionSettled, pos)
}

// PublishPriceMove publishes a mark-to-market update for an active position.
func (p *Producer) PublishPriceMove(ctx context.Context, pos *model.TrackedPosition) error {
	return p.publish(ctx, EventPriceMove, pos)
}

func (p *Producer) publish(ctx context.Context, eventType string, pos *model.TrackedPosition) error {
	// Nil producer means Kafka is disabled; events are dropped silently.
	if p == nil {
		return nil
	}

	event := PositionEvent{
		EventType: eventType,
		Ticker:    pos.Ticker,
		Position:  pos,
		Timestamp: time.Now().UTC(),
	}
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal %s event: %w", eventType, err)
	}

	msg := kafka.Message{
		Key:   []byte(pos.Ticker),
		Value: data,
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("write %s event: %w", eventType, err)
	}
	return nil
}

// Close flushes and closes the underlying writer.
func (p *Producer) Close() error {
	if p == nil {
		return nil
	}
	return p.writer.Close()
}
