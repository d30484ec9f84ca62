package workers

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"

	"yappify/broker"
	"yappify/domain"
	"yappify/domain/event"
	"yappify/repositories"
	"yappify/runtime"
)

type stubConn struct {
	mu       sync.Mutex
	received [][]byte
	failing  bool
}

func (c *stubConn) Send(payload []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failing {
		return fmt.Errorf("connection reset")
	}
	c.received = append(c.received, payload)
	return nil
}

func (c *stubConn) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.received)
}

type fanoutFixture struct {
	log      *slog.Logger
	bus      *broker.MemoryBroker
	chats    *repositories.ChatRepository
	registry *runtime.Registry
}

func newFanoutFixture(t *testing.T) *fanoutFixture {
	t.Helper()
	opts := badger.DefaultOptions(t.TempDir()).WithLoggingLevel(badger.ERROR)
	db, err := badger.Open(opts)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	log := logs.GetLoggerFromLevel(slog.LevelError)
	return &fanoutFixture{
		log:      log,
		bus:      broker.NewMemoryBroker(log),
		chats:    repositories.NewChatRepository(db),
		registry: runtime.NewRegistry(log),
	}
}

func (f *fanoutFixture) start(t *testing.T, ctx context.Context) {
	t.Helper()
	consumer := NewFanoutConsumer(f.log, f.bus, f.chats, f.registry, "fanout-test", time.Second)
	go func() { _ = consumer.Run(ctx) }()
	// Give the subscription a beat to attach before publishing.
	time.Sleep(20 * time.Millisecond)
}

func (f *fanoutFixture) publish(t *testing.T, ctx context.Context, chat *domain.Chat, senderID, content string) {
	t.Helper()
	msg := domain.NewMessage(chat.ID, senderID, content)
	payload, err := json.Marshal(event.FromMessage(msg, chat, "sender"))
	require.NoError(t, err)
	require.NoError(t, f.bus.Publish(ctx, "chat.events", chat.ID, payload))
}

func TestFanoutConsumer_SkipsSender(t *testing.T) {
	req := require.New(t)
	f := newFanoutFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	chat := domain.NewGroupChat("team", []string{"alice", "bob"}, "carol")
	req.NoError(f.chats.CreateChat(chat))

	alice := &stubConn{}
	bob := &stubConn{}
	carol := &stubConn{}
	f.registry.Register("alice", alice)
	f.registry.Register("bob", bob)
	f.registry.Register("carol", carol)

	f.start(t, ctx)
	f.publish(t, ctx, chat, "alice", "hi all")

	req.Eventually(func() bool {
		return bob.count() == 1 && carol.count() == 1
	}, time.Second, 10*time.Millisecond)
	req.Equal(0, alice.count())

	var evt event.DeliveryEvent
	req.NoError(json.Unmarshal(bob.received[0], &evt))
	req.Equal("hi all", evt.Content)
	req.Equal("alice", evt.SenderID)
}

func TestFanoutConsumer_OfflineMembersSkipped(t *testing.T) {
	req := require.New(t)
	f := newFanoutFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	chat := domain.NewGroupChat("team", []string{"alice", "bob"}, "carol")
	req.NoError(f.chats.CreateChat(chat))

	// Only bob is online.
	bob := &stubConn{}
	f.registry.Register("bob", bob)

	f.start(t, ctx)
	f.publish(t, ctx, chat, "alice", "anyone there")

	req.Eventually(func() bool {
		return bob.count() == 1
	}, time.Second, 10*time.Millisecond)
}

func TestFanoutConsumer_FailingConnectionIsolated(t *testing.T) {
	req := require.New(t)
	f := newFanoutFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	chat := domain.NewGroupChat("team", []string{"alice", "bob"}, "carol")
	req.NoError(f.chats.CreateChat(chat))

	bob := &stubConn{}
	carol := &stubConn{failing: true}
	f.registry.Register("bob", bob)
	f.registry.Register("carol", carol)

	f.start(t, ctx)
	f.publish(t, ctx, chat, "alice", "first")
	f.publish(t, ctx, chat, "alice", "second")

	// Carol's broken connection never blocks bob's deliveries.
	req.Eventually(func() bool {
		return bob.count() == 2
	}, time.Second, 10*time.Millisecond)
	req.Equal(0, carol.count())
}

func TestFanoutConsumer_UnknownChatDropped(t *testing.T) {
	req := require.New(t)
	f := newFanoutFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	bob := &stubConn{}
	f.registry.Register("bob", bob)

	f.start(t, ctx)

	ghost := domain.NewGroupChat("gone", []string{"alice", "bob"}, "carol")
	f.publish(t, ctx, ghost, "alice", "into the void")

	// A live chat published right after still gets through, proving the
	// consumer did not stall on the dropped event.
	chat := domain.NewGroupChat("team", []string{"alice", "bob"}, "carol")
	req.NoError(f.chats.CreateChat(chat))
	f.publish(t, ctx, chat, "alice", "still alive")

	req.Eventually(func() bool {
		return bob.count() == 1
	}, time.Second, 10*time.Millisecond)
}
