package services

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"

	"yappify/domain"
	"yappify/repositories"
)

// stack bundles the services over one throwaway badger instance.
type stack struct {
	users    *repositories.UserRepository
	chats    *repositories.ChatRepository
	messages *repositories.MessageRepository

	chatService    *ChatService
	messageService *MessageService
	publisher      *recordingPublisher
}

func newStack(t *testing.T) *stack {
	t.Helper()
	opts := badger.DefaultOptions(t.TempDir()).WithLoggingLevel(badger.ERROR)
	db, err := badger.Open(opts)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	log := logs.GetLoggerFromLevel(slog.LevelError)
	users := repositories.NewUserRepository(db)
	chats := repositories.NewChatRepository(db)
	messages := repositories.NewMessageRepository(db)
	publisher := &recordingPublisher{}

	return &stack{
		users:          users,
		chats:          chats,
		messages:       messages,
		chatService:    NewChatService(log, users, chats, messages),
		messageService: NewMessageService(log, users, chats, messages, publisher),
		publisher:      publisher,
	}
}

func (s *stack) seedUser(t *testing.T, name string) string {
	t.Helper()
	user := &domain.User{
		ID:        uuid.NewString(),
		Name:      name,
		Email:     name + "@example.com",
		CreatedAt: time.Now().UTC(),
	}
	require.NoError(t, s.users.CreateUser(user))
	return user.ID
}

// recordingPublisher captures publish calls instead of touching a broker.
type recordingPublisher struct {
	published []publishedEvent
}

type publishedEvent struct {
	MessageID  string
	ChatID     string
	SenderName string
}

func (p *recordingPublisher) PublishMessage(_ context.Context, msg *domain.Message, chat *domain.Chat, senderName string) {
	p.published = append(p.published, publishedEvent{
		MessageID:  msg.ID,
		ChatID:     chat.ID,
		SenderName: senderName,
	})
}
