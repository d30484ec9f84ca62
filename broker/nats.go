// Package broker provides the publish/subscribe transport between the
// synchronous write path and the fan-out consumers.
//
// The production implementation rides on NATS JetStream: one stream per
// topic, events published on per-key subjects so order is preserved per
// key, and one durable consumer per named group so that distinct groups
// each see every event. Delivery is at least once; handlers must
// tolerate duplicates.
package broker

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"yappify/contract"
)

const streamMaxAge = 24 * time.Hour

var _ contract.Broker = (*NatsBroker)(nil)

type NatsBroker struct {
	log *slog.Logger
	nc  *nats.Conn
	js  jetstream.JetStream

	mu      sync.Mutex
	streams map[string]struct{}
}

func NewNatsBroker(log *slog.Logger, url string) (*NatsBroker, error) {
	nc, err := nats.Connect(url)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}
	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("create jetstream context: %w", err)
	}
	return &NatsBroker{log: log, nc: nc, js: js, streams: make(map[string]struct{})}, nil
}

func (b *NatsBroker) Close() {
	if b.nc != nil {
		b.nc.Close()
	}
}

// Publish writes the payload on subject "<topic>.<key>". JetStream keeps
// per-subject order inside the stream, which yields the per-key ordering
// guarantee of the Broker contract.
func (b *NatsBroker) Publish(ctx context.Context, topic, key string, payload []byte) error {
	if err := b.ensureStream(ctx, topic); err != nil {
		return err
	}
	subject := topic + "." + subjectToken(key)
	if _, err := b.js.Publish(ctx, subject, payload); err != nil {
		return fmt.Errorf("publish to %s: %w", subject, err)
	}
	return nil
}

// Subscribe binds the handler under a durable consumer named after the
// group. Every group holds its own cursor on the stream, so two groups
// both receive every event while instances sharing a group split them.
func (b *NatsBroker) Subscribe(ctx context.Context, topic, group string, handler contract.BrokerHandler) (contract.Subscription, error) {
	if err := b.ensureStream(ctx, topic); err != nil {
		return nil, err
	}
	cons, err := b.js.CreateOrUpdateConsumer(ctx, streamName(topic), jetstream.ConsumerConfig{
		Durable:       durableName(group),
		FilterSubject: topic + ".>",
		DeliverPolicy: jetstream.DeliverNewPolicy,
		AckPolicy:     jetstream.AckExplicitPolicy,
	})
	if err != nil {
		return nil, fmt.Errorf("create consumer for group %q: %w", group, err)
	}

	consumeCtx, err := cons.Consume(func(jsMsg jetstream.Msg) {
		if err := handler(ctx, jsMsg.Data()); err != nil {
			b.log.Warn("Handler failed, event will be redelivered",
				"subject", jsMsg.Subject(), "group", group, "error", err)
			_ = jsMsg.Nak()
			return
		}
		_ = jsMsg.Ack()
	})
	if err != nil {
		return nil, fmt.Errorf("consume for group %q: %w", group, err)
	}
	return natsSubscription{consumeCtx}, nil
}

// ensureStream creates the topic's stream on first use.
func (b *NatsBroker) ensureStream(ctx context.Context, topic string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.streams[topic]; ok {
		return nil
	}
	name := streamName(topic)
	if _, err := b.js.Stream(ctx, name); err != nil {
		b.log.Info("Creating stream", "name", name, "topic", topic)
		_, err = b.js.CreateStream(ctx, jetstream.StreamConfig{
			Name:     name,
			Subjects: []string{topic + ".>"},
			MaxAge:   streamMaxAge,
			Storage:  jetstream.FileStorage,
		})
		if err != nil {
			return fmt.Errorf("create stream %q: %w", name, err)
		}
	}
	b.streams[topic] = struct{}{}
	return nil
}

type natsSubscription struct {
	consumeCtx jetstream.ConsumeContext
}

func (s natsSubscription) Stop() {
	s.consumeCtx.Stop()
}

func streamName(topic string) string {
	return strings.ToUpper(strings.ReplaceAll(topic, ".", "-"))
}

// durableName strips characters JetStream forbids in durable names.
func durableName(group string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_', r == '-':
			return r
		default:
			return '_'
		}
	}, group)
}

// subjectToken keeps keys safe to embed as a single subject token.
func subjectToken(key string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case '.', ' ', '*', '>':
			return '_'
		default:
			return r
		}
	}, key)
}
