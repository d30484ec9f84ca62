package workers

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"log/slog"
	"sync"
	"time"

	"github.com/samber/lo"

	"yappify/contract"
	"yappify/delivery"
	"yappify/domain"
	"yappify/domain/event"
	"yappify/errors"
	"yappify/repositories"
)

var _ contract.Worker = (*FanoutConsumer)(nil)

// FanoutConsumer subscribes to the delivery topic under a per-process
// consumer group and pushes each event to every chat member except the
// sender through the session registry.
//
// Membership is resolved fresh per event, never trusted from the event
// itself. Offline members are silently skipped; the message remains
// retrievable through history. One member's slow or failing push never
// affects the others or the next event.
type FanoutConsumer struct {
	log         *slog.Logger
	broker      contract.Broker
	chats       repositories.IChatRepository
	registry    contract.IRegistry
	group       string
	pushTimeout time.Duration
}

func NewFanoutConsumer(log *slog.Logger,
	broker contract.Broker,
	chats repositories.IChatRepository,
	registry contract.IRegistry,
	group string,
	pushTimeout time.Duration) *FanoutConsumer {
	return &FanoutConsumer{
		log:         log,
		broker:      broker,
		chats:       chats,
		registry:    registry,
		group:       group,
		pushTimeout: pushTimeout,
	}
}

func (w *FanoutConsumer) Run(ctx context.Context) error {
	sub, err := w.broker.Subscribe(ctx, delivery.Topic, w.group, w.handle)
	if err != nil {
		return err
	}
	defer sub.Stop()

	w.log.Info("Fan-out consumer started", "group", w.group)
	<-ctx.Done()
	return nil
}

// handle processes one delivery event. Only a store outage is returned
// (so the broker redelivers); everything else is settled here.
func (w *FanoutConsumer) handle(ctx context.Context, payload []byte) error {
	var evt event.DeliveryEvent
	if err := json.Unmarshal(payload, &evt); err != nil {
		w.log.Warn("Discarding undecodable delivery event", "error", err)
		return nil
	}

	chat, err := w.chats.FindChat(evt.ChatID)
	if err != nil {
		if stderrors.Is(err, errors.ErrNotFound) {
			// Chat deleted between send and delivery.
			w.log.Debug("Chat gone, dropping delivery event", "chatId", evt.ChatID)
			return nil
		}
		return err
	}

	w.fanout(ctx, chat, evt, payload)
	return nil
}

// fanout pushes to each recipient on its own goroutine and waits at most
// pushTimeout for the batch, so a stuck connection cannot stall the
// consumer loop processing the next event.
func (w *FanoutConsumer) fanout(ctx context.Context, chat *domain.Chat, evt event.DeliveryEvent, payload []byte) {
	recipients := lo.Without(chat.Members, evt.SenderID)

	var wg sync.WaitGroup
	for _, userID := range recipients {
		wg.Add(1)
		go func(userID string) {
			defer wg.Done()
			if !w.registry.Push(userID, payload) {
				w.log.Debug("Member offline, skipped", "userId", userID, "messageId", evt.MessageID)
			}
		}(userID)
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(w.pushTimeout):
		w.log.Warn("Fan-out timed out, slow connections skipped",
			"messageId", evt.MessageID, "chatId", evt.ChatID)
	case <-ctx.Done():
	}
}
