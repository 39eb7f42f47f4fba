// Package event publishes identity lifecycle events. Publishing is
// best-effort: a broker outage is logged and never fails the request that
// produced the event.
package event

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/crestvale/identity/pkg/slogx"
)

// TopicUserRegistered carries one message per completed registration.
const TopicUserRegistered = "identity.user.registered"

// UserRegistered is the payload published after a successful registration.
type UserRegistered struct {
	UserID       string    `json:"userId"`
	Email        string    `json:"email"`
	Role         string    `json:"role"`
	Degraded     []string  `json:"degraded,omitempty"`
	RegisteredAt time.Time `json:"registeredAt"`
}

// Producer writes identity events to Kafka. A nil Producer is valid and
// drops all events, which is how deployments without brokers run.
type Producer struct {
	writer *kafka.Writer
}

func NewProducer(brokers []string) *Producer {
	if len(brokers) == 0 {
		return nil
	}
	return &Producer{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        TopicUserRegistered,
			Balancer:     &kafka.LeastBytes{},
			RequiredAcks: kafka.RequireOne,
			WriteTimeout: 5 * time.Second,
			Async:        false,
		},
	}
}

// PublishUserRegistered emits the registration event keyed by user id.
// Failures are logged and swallowed.
func (p *Producer) PublishUserRegistered(ctx context.Context, ev UserRegistered) {
	if p == nil {
		return
	}

	payload, err := json.Marshal(ev)
	if err != nil {
		slogx.FromContext(ctx).Error("failed to encode registration event",
			slog.String("user_id", ev.UserID), slog.Any("error", err))
		return
	}

	err = p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(ev.UserID),
		Value: payload,
	})
	if err != nil {
		slogx.FromContext(ctx).Error("failed to publish registration event",
			slog.String("user_id", ev.UserID), slog.Any("error", err))
	}
}

func (p *Producer) Close() error {
	if p == nil {
		return nil
	}
	return p.writer.Close()
}
