// Package event defines the transient payloads that travel through the
// delivery broker. Events are never persisted; they exist only so that a
// saved message can reach live connections on every server instance.
package event

import (
	"time"

	"yappify/domain"
)

// DeliveryEvent describes one sent message to the fan-out pipeline.
// Consumers resolve the member list fresh at delivery time, so the event
// carries identity and content but not membership.
type DeliveryEvent struct {
	MessageID  string    `json:"messageId"`
	ChatID     string    `json:"chatId"`
	SenderID   string    `json:"senderId"`
	SenderName string    `json:"senderName"`
	Content    string    `json:"content"`
	Timestamp  time.Time `json:"timestamp"`
	IsGroup    bool      `json:"isGroup"`
}

// FromMessage builds the delivery payload for a persisted message.
func FromMessage(msg *domain.Message, chat *domain.Chat, senderName string) DeliveryEvent {
	return DeliveryEvent{
		MessageID:  msg.ID,
		ChatID:     msg.ChatID,
		SenderID:   msg.SenderID,
		SenderName: senderName,
		Content:    msg.Content,
		Timestamp:  msg.CreatedAt,
		IsGroup:    chat.IsGroup,
	}
}
