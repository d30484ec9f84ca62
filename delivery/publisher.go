//go:generate go run go.uber.org/mock/mockgen -source=publisher.go -destination=../mocks/mock_publisher.go -package=mocks

// Package delivery converts persisted messages into broker events.
//
// Publishing is strictly decoupled from persistence: by the time the
// publisher runs, the message is already durable. A publish failure is
// logged and swallowed, never surfaced to the sender; the message stays
// retrievable through history even when the broadcast is lost.
package delivery

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"yappify/contract"
	"yappify/domain"
	"yappify/domain/event"
)

// Topic carries every delivery event. Events are keyed by chat id, which
// is what gives per-chat ordering through the broker.
const Topic = "chat.events"

type IPublisher interface {
	PublishMessage(ctx context.Context, msg *domain.Message, chat *domain.Chat, senderName string)
}

type Publisher struct {
	log     *slog.Logger
	broker  contract.Broker
	timeout time.Duration
}

func NewPublisher(log *slog.Logger, broker contract.Broker, timeout time.Duration) *Publisher {
	return &Publisher{log: log, broker: broker, timeout: timeout}
}

// PublishMessage emits exactly one DeliveryEvent for a saved message.
// The publish call is bounded by the configured timeout so a slow broker
// degrades to "persisted, not broadcast" instead of stalling the sender.
func (p *Publisher) PublishMessage(ctx context.Context, msg *domain.Message, chat *domain.Chat, senderName string) {
	evt := event.FromMessage(msg, chat, senderName)
	data, err := json.Marshal(evt)
	if err != nil {
		p.log.Error("Delivery event marshal failed", "messageId", msg.ID, "error", err)
		return
	}

	publishCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	if err := p.broker.Publish(publishCtx, Topic, evt.ChatID, data); err != nil {
		// Message already committed; history remains authoritative.
		p.log.Error("Delivery publish failed, message not broadcast",
			"messageId", msg.ID, "chatId", evt.ChatID, "error", err)
		return
	}
	p.log.Debug("Delivery event published", "messageId", msg.ID, "chatId", evt.ChatID)
}
