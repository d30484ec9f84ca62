package broker

import (
	"context"
	"log/slog"
	"sync"

	"yappify/contract"
)

const memoryBufferSize = 256

var _ contract.Broker = (*MemoryBroker)(nil)

// MemoryBroker is an in-process Broker used by tests and single-node
// setups. Each (topic, group) subscription drains its own buffered
// channel on a dedicated goroutine, which preserves publish order per
// subscription, a superset of the per-key ordering the contract asks
// for. There is no durability and no redelivery.
type MemoryBroker struct {
	log *slog.Logger

	mu     sync.Mutex
	groups map[string]map[string][]*memorySubscription // topic -> group -> members
	rr     map[string]int                              // topic/group -> round-robin cursor
}

func NewMemoryBroker(log *slog.Logger) *MemoryBroker {
	return &MemoryBroker{
		log:    log,
		groups: make(map[string]map[string][]*memorySubscription),
		rr:     make(map[string]int),
	}
}

func (b *MemoryBroker) Publish(_ context.Context, topic, key string, payload []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	_ = key // ordering holds per subscription, which covers per-key
	for group, members := range b.groups[topic] {
		if len(members) == 0 {
			continue
		}
		cursor := b.rr[topic+"/"+group] % len(members)
		b.rr[topic+"/"+group] = cursor + 1
		sub := members[cursor]
		select {
		case sub.events <- payload:
		default:
			b.log.Warn("Memory broker buffer full, event dropped", "topic", topic, "group", group)
		}
	}
	return nil
}

func (b *MemoryBroker) Subscribe(ctx context.Context, topic, group string, handler contract.BrokerHandler) (contract.Subscription, error) {
	subCtx, cancel := context.WithCancel(ctx)
	sub := &memorySubscription{
		events: make(chan []byte, memoryBufferSize),
		cancel: cancel,
	}

	b.mu.Lock()
	if b.groups[topic] == nil {
		b.groups[topic] = make(map[string][]*memorySubscription)
	}
	b.groups[topic][group] = append(b.groups[topic][group], sub)
	b.mu.Unlock()

	go func() {
		for {
			select {
			case <-subCtx.Done():
				return
			case payload := <-sub.events:
				if err := handler(subCtx, payload); err != nil {
					b.log.Warn("Handler failed, event lost", "topic", topic, "group", group, "error", err)
				}
			}
		}
	}()

	return &memoryUnsubscriber{broker: b, topic: topic, group: group, sub: sub}, nil
}

type memorySubscription struct {
	events chan []byte
	cancel context.CancelFunc
}

type memoryUnsubscriber struct {
	broker *MemoryBroker
	topic  string
	group  string
	sub    *memorySubscription
}

func (u *memoryUnsubscriber) Stop() {
	u.sub.cancel()
	u.broker.mu.Lock()
	defer u.broker.mu.Unlock()
	members := u.broker.groups[u.topic][u.group]
	for i, member := range members {
		if member == u.sub {
			u.broker.groups[u.topic][u.group] = append(members[:i], members[i+1:]...)
			break
		}
	}
}
