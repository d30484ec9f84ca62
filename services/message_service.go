//go:generate go run go.uber.org/mock/mockgen -source=message_service.go -destination=../mocks/mock_message_service.go -package=mocks
package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"yappify/delivery"
	"yappify/domain"
	"yappify/errors"
	"yappify/repositories"
)

type IMessageService interface {
	Send(ctx context.Context, senderID, chatID, content string) (*domain.Message, error)
	Edit(messageID, userID, newContent string) (*domain.Message, error)
	Delete(messageID, userID string) error
	MarkRead(messageID, userID string) error
	UnreadCount(chatID, userID string) (int, error)
	ListMessages(chatID, userID string, page, size int) ([]domain.Message, error)
}

// MessageService drives the message state machine:
// Sent -> Edited* -> Deleted. The synchronous path ends once the message
// is durable; broadcasting is handed to the publisher and never blocks
// or fails a send.
type MessageService struct {
	log       *slog.Logger
	users     repositories.IUserRepository
	chats     repositories.IChatRepository
	messages  repositories.IMessageRepository
	publisher delivery.IPublisher
}

func NewMessageService(log *slog.Logger,
	users repositories.IUserRepository,
	chats repositories.IChatRepository,
	messages repositories.IMessageRepository,
	publisher delivery.IPublisher) *MessageService {
	return &MessageService{log: log, users: users, chats: chats, messages: messages, publisher: publisher}
}

// Send persists a message and its chat's latest-message pointer
// atomically, then emits exactly one delivery event.
func (s *MessageService) Send(ctx context.Context, senderID, chatID, content string) (*domain.Message, error) {
	if domain.EmptyContent(content) {
		return nil, fmt.Errorf("%w: message content cannot be empty", errors.ErrInvalidArgument)
	}
	sender, err := s.users.FindUser(senderID)
	if err != nil {
		return nil, fmt.Errorf("sender %s: %w", senderID, err)
	}
	chat, err := s.chats.FindChat(chatID)
	if err != nil {
		return nil, fmt.Errorf("chat %s: %w", chatID, err)
	}
	if !chat.HasMember(senderID) {
		return nil, fmt.Errorf("%w: sender is not a member of this chat", errors.ErrForbidden)
	}

	msg := domain.NewMessage(chatID, senderID, content)
	if err := s.messages.StoreMessage(msg); err != nil {
		return nil, err
	}

	s.publisher.PublishMessage(ctx, msg, chat, sender.Name)
	s.log.Debug("Message sent", "messageId", msg.ID, "chatId", chatID)
	return msg, nil
}

// Edit rewrites content in place while the edit window is open.
// Edits are not re-broadcast; clients re-fetch history.
func (s *MessageService) Edit(messageID, userID, newContent string) (*domain.Message, error) {
	if domain.EmptyContent(newContent) {
		return nil, fmt.Errorf("%w: message content cannot be empty", errors.ErrInvalidArgument)
	}
	return s.messages.UpdateMessage(messageID, func(msg *domain.Message) error {
		if msg.SenderID != userID {
			return fmt.Errorf("%w: only the sender may edit a message", errors.ErrForbidden)
		}
		now := time.Now().UTC()
		if !msg.WithinEditWindow(now) {
			return fmt.Errorf("%w: edit window of %s has expired", errors.ErrInvalidArgument, domain.EditWindow)
		}
		msg.ApplyEdit(newContent, now)
		return nil
	})
}

// Delete removes a message; allowed for its sender, or for the group
// admin in group chats. Deleting the chat's latest message repoints the
// latest index to the next most recent remaining message.
func (s *MessageService) Delete(messageID, userID string) error {
	msg, err := s.messages.FindMessage(messageID)
	if err != nil {
		return fmt.Errorf("message %s: %w", messageID, err)
	}
	chat, err := s.chats.FindChat(msg.ChatID)
	if err != nil {
		return fmt.Errorf("chat %s: %w", msg.ChatID, err)
	}
	if msg.SenderID != userID && !chat.IsAdmin(userID) {
		return fmt.Errorf("%w: only the sender or the group admin may delete a message", errors.ErrForbidden)
	}
	if err := s.messages.DeleteMessage(messageID); err != nil {
		return err
	}
	s.log.Debug("Message deleted", "messageId", messageID, "by", userID)
	return nil
}

// MarkRead grows the message's reader set. Marking twice is a no-op.
func (s *MessageService) MarkRead(messageID, userID string) error {
	msg, err := s.messages.FindMessage(messageID)
	if err != nil {
		return fmt.Errorf("message %s: %w", messageID, err)
	}
	chat, err := s.chats.FindChat(msg.ChatID)
	if err != nil {
		return fmt.Errorf("chat %s: %w", msg.ChatID, err)
	}
	if !chat.HasMember(userID) {
		return fmt.Errorf("%w: not a member of this chat", errors.ErrForbidden)
	}
	_, err = s.messages.UpdateMessage(messageID, func(msg *domain.Message) error {
		msg.MarkRead(userID)
		return nil
	})
	return err
}

func (s *MessageService) UnreadCount(chatID, userID string) (int, error) {
	chat, err := s.chats.FindChat(chatID)
	if err != nil {
		return 0, fmt.Errorf("chat %s: %w", chatID, err)
	}
	if !chat.HasMember(userID) {
		return 0, fmt.Errorf("%w: not a member of this chat", errors.ErrForbidden)
	}
	return s.messages.CountUnread(chatID, userID)
}

// ListMessages pages through history, newest first. Offset pagination
// over a live stream is best effort under concurrent inserts.
func (s *MessageService) ListMessages(chatID, userID string, page, size int) ([]domain.Message, error) {
	if page < 0 || size <= 0 {
		return nil, fmt.Errorf("%w: page must be >= 0 and size > 0", errors.ErrInvalidArgument)
	}
	chat, err := s.chats.FindChat(chatID)
	if err != nil {
		return nil, fmt.Errorf("chat %s: %w", chatID, err)
	}
	if !chat.HasMember(userID) {
		return nil, fmt.Errorf("%w: not a member of this chat", errors.ErrForbidden)
	}
	return s.messages.ListMessages(chatID, page, size)
}
