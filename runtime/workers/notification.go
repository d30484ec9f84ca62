package workers

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"

	"yappify/contract"
	"yappify/delivery"
	"yappify/domain/event"
)

// NotificationGroup is shared by all processes: exactly one instance
// handles each event, which is what a notification path wants.
const NotificationGroup = "notifications"

var _ contract.Worker = (*NotificationConsumer)(nil)

// NotificationConsumer is the second, independent subscription on the
// delivery topic. It never touches the fan-out path or its state; the
// two consumers only share the event stream.
//
// For now it tracks per-chat delivery counts, the hook where push or
// email notifications would attach.
type NotificationConsumer struct {
	log     *slog.Logger
	broker  contract.Broker
	counter *DeliveryCounter
}

func NewNotificationConsumer(log *slog.Logger, broker contract.Broker, counter *DeliveryCounter) *NotificationConsumer {
	return &NotificationConsumer{log: log, broker: broker, counter: counter}
}

func (w *NotificationConsumer) Run(ctx context.Context) error {
	sub, err := w.broker.Subscribe(ctx, delivery.Topic, NotificationGroup, w.handle)
	if err != nil {
		return err
	}
	defer sub.Stop()

	w.log.Info("Notification consumer started", "group", NotificationGroup)
	<-ctx.Done()
	return nil
}

func (w *NotificationConsumer) handle(_ context.Context, payload []byte) error {
	var evt event.DeliveryEvent
	if err := json.Unmarshal(payload, &evt); err != nil {
		w.log.Warn("Discarding undecodable delivery event", "error", err)
		return nil
	}
	w.counter.Increment(evt.ChatID)
	w.log.Debug("Notification processed", "chatId", evt.ChatID, "messageId", evt.MessageID)
	return nil
}

// DeliveryCounter counts processed events per chat. Duplicates from the
// at-least-once broker inflate counts slightly, which is acceptable for
// a notification signal.
type DeliveryCounter struct {
	mu      sync.Mutex
	perChat map[string]int
}

func NewDeliveryCounter() *DeliveryCounter {
	return &DeliveryCounter{perChat: make(map[string]int)}
}

func (c *DeliveryCounter) Increment(chatID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.perChat[chatID]++
}

func (c *DeliveryCounter) ForChat(chatID string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.perChat[chatID]
}

func (c *DeliveryCounter) Total() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	total := 0
	for _, n := range c.perChat {
		total += n
	}
	return total
}
