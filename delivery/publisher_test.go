package delivery

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"testing"
	"time"

	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"

	"yappify/contract"
	"yappify/domain"
	"yappify/domain/event"
)

// capturingBroker records publishes; an armed failure makes Publish err.
type capturingBroker struct {
	topics   []string
	keys     []string
	payloads [][]byte
	failing  bool
}

func (b *capturingBroker) Publish(_ context.Context, topic, key string, payload []byte) error {
	if b.failing {
		return fmt.Errorf("broker down")
	}
	b.topics = append(b.topics, topic)
	b.keys = append(b.keys, key)
	b.payloads = append(b.payloads, payload)
	return nil
}

func (b *capturingBroker) Subscribe(context.Context, string, string, contract.BrokerHandler) (contract.Subscription, error) {
	return nil, fmt.Errorf("not implemented")
}

func TestPublisher_PublishMessage(t *testing.T) {
	req := require.New(t)
	b := &capturingBroker{}
	p := NewPublisher(logs.GetLoggerFromLevel(slog.LevelError), b, time.Second)

	chat := domain.NewGroupChat("team", []string{"bob"}, "alice")
	msg := domain.NewMessage(chat.ID, "alice", "hello")

	p.PublishMessage(context.Background(), msg, chat, "Alice")

	req.Len(b.payloads, 1)
	req.Equal(Topic, b.topics[0])
	// Keyed by chat id: per-chat ordering through the broker.
	req.Equal(chat.ID, b.keys[0])

	var evt event.DeliveryEvent
	req.NoError(json.Unmarshal(b.payloads[0], &evt))
	req.Equal(msg.ID, evt.MessageID)
	req.Equal("Alice", evt.SenderName)
	req.Equal("hello", evt.Content)
	req.True(evt.IsGroup)
}

func TestPublisher_BrokerFailureSwallowed(t *testing.T) {
	b := &capturingBroker{failing: true}
	p := NewPublisher(logs.GetLoggerFromLevel(slog.LevelError), b, time.Second)

	chat := domain.NewDirectChat("alice", "bob")
	msg := domain.NewMessage(chat.ID, "alice", "hello")

	// No error surfaces; the message stays durable on the write path.
	p.PublishMessage(context.Background(), msg, chat, "Alice")
}
