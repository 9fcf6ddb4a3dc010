// Package events publishes post change events to Kafka.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/DeafMist/campus-feed/backend/internal/models"
)

// MessageWriter is the subset of *kafka.Writer the publisher uses.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Publisher writes one message per event, keyed by site and post id so
// versions of a post land on the same partition.
type Publisher struct {
	w MessageWriter
}

// NewWriter returns a kafka writer for topic.
func NewWriter(brokers []string, topic string) *kafka.Writer {
	return &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		MaxAttempts:  3,
		BatchTimeout: 50 * time.Millisecond,
		RequiredAcks: kafka.RequireOne,
	}
}

func NewPublisher(w MessageWriter) *Publisher {
	return &Publisher{w: w}
}

// Notify publishes events in a single batch.
func (p *Publisher) Notify(ctx context.Context, events []models.PostEvent) error {
	if len(events) == 0 {
		return nil
	}
	msgs := make([]kafka.Message, 0, len(events))
	for _, evt := range events {
		value, err := json.Marshal(evt)
		if err != nil {
			return fmt.Errorf("encode event %s: %w", evt.ID, err)
		}
		msgs = append(msgs, kafka.Message{
			Key:   []byte(evt.Key()),
			Value: value,
			Time:  evt.OccurredAt,
			Headers: []kafka.Header{
				{Key: "event_type", Value: []byte(evt.Type)},
				{Key: "event_id", Value: []byte(evt.ID)},
			},
		})
	}
	if err := p.w.WriteMessages(ctx, msgs...); err != nil {
		return fmt.Errorf("write events: %w", err)
	}
	return nil
}

func (p *Publisher) Close() error {
	return p.w.Close()
}

// Decode parses a message produced by Notify.
func Decode(msg kafka.Message) (models.PostEvent, error) {
	var evt models.PostEvent
	if err := json.Unmarshal(msg.Value, &evt); err != nil {
		return models.PostEvent{}, fmt.Errorf("decode event: %w", err)
	}
	if evt.Site == "" || evt.Post.ID == "" {
		return models.PostEvent{}, fmt.Errorf("decode event: missing site or post id")
	}
	return evt, nil
}
