//go:generate go run go.uber.org/mock/mockgen -source=message.go -destination=../mocks/mock_message_repository.go -package=mocks
package repositories

import (
	"encoding/json"
	stderrors "errors"
	"fmt"

	"github.com/dgraph-io/badger/v4"

	"yappify/domain"
)

type IMessageRepository interface {
	StoreMessage(msg *domain.Message) error
	FindMessage(id string) (*domain.Message, error)
	UpdateMessage(id string, mutate func(msg *domain.Message) error) (*domain.Message, error)
	DeleteMessage(id string) error
	ListMessages(chatID string, page, size int) ([]domain.Message, error)
	LatestMessage(chatID string) (*domain.Message, error)
	CountUnread(chatID, userID string) (int, error)
	DeleteChatMessages(chatID string) error
}

type MessageRepository struct {
	db *badger.DB
}

func NewMessageRepository(db *badger.DB) *MessageRepository {
	return &MessageRepository{db: db}
}

// StoreMessage persists the message, its by-id index and the owning chat's
// latest-message pointer in one transaction. A reader can therefore never
// observe a latest pointer referring to a message that is not yet durable,
// and the pointer never moves backwards in creation time.
func (m *MessageRepository) StoreMessage(msg *domain.Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}
	primary := messageKey(msg.ChatID, msg.CreatedAt, msg.ID)
	return storeErr(update(m.db, func(txn *badger.Txn) error {
		if err := txn.Set(primary, data); err != nil {
			return err
		}
		if err := txn.Set(messageIDKey(msg.ID), primary); err != nil {
			return err
		}
		advances, err := latestAdvances(txn, msg)
		if err != nil {
			return err
		}
		if !advances {
			return nil
		}
		return txn.Set(latestKey(msg.ChatID), []byte(msg.ID))
	}))
}

// latestAdvances reports whether msg is at least as recent as the chat's
// current latest message. The pointer is read in the same transaction, so
// two racing sends conflict and retry instead of clobbering each other.
func latestAdvances(txn *badger.Txn, msg *domain.Message) (bool, error) {
	item, err := txn.Get(latestKey(msg.ChatID))
	if stderrors.Is(err, badger.ErrKeyNotFound) {
		return true, nil
	}
	if err != nil {
		return false, err
	}
	var currentID string
	if err := item.Value(func(val []byte) error {
		currentID = string(val)
		return nil
	}); err != nil {
		return false, err
	}
	var current domain.Message
	if err := getMessage(txn, currentID, &current); err != nil {
		if stderrors.Is(err, badger.ErrKeyNotFound) {
			return true, nil
		}
		return false, err
	}
	return !msg.CreatedAt.Before(current.CreatedAt), nil
}

func (m *MessageRepository) FindMessage(id string) (*domain.Message, error) {
	var msg domain.Message
	err := m.db.View(func(txn *badger.Txn) error {
		return getMessage(txn, id, &msg)
	})
	if err != nil {
		return nil, storeErr(err)
	}
	return &msg, nil
}

// UpdateMessage mutates a message in place (edit, readBy growth) under
// conflict-retried read-modify-write.
func (m *MessageRepository) UpdateMessage(id string, mutate func(msg *domain.Message) error) (*domain.Message, error) {
	var updated *domain.Message
	err := update(m.db, func(txn *badger.Txn) error {
		var msg domain.Message
		if err := getMessage(txn, id, &msg); err != nil {
			return err
		}
		if err := mutate(&msg); err != nil {
			return err
		}
		data, err := json.Marshal(&msg)
		if err != nil {
			return fmt.Errorf("marshal message: %w", err)
		}
		updated = &msg
		return txn.Set(messageKey(msg.ChatID, msg.CreatedAt, msg.ID), data)
	})
	if err != nil {
		return nil, storeErr(err)
	}
	return updated, nil
}

// DeleteMessage removes the message and, when it was the chat's latest,
// repoints the latest index at the most recent remaining message, or
// clears it when none remain. All in one transaction.
func (m *MessageRepository) DeleteMessage(id string) error {
	return storeErr(update(m.db, func(txn *badger.Txn) error {
		var msg domain.Message
		if err := getMessage(txn, id, &msg); err != nil {
			return err
		}
		if err := txn.Delete(messageKey(msg.ChatID, msg.CreatedAt, msg.ID)); err != nil {
			return err
		}
		if err := txn.Delete(messageIDKey(id)); err != nil {
			return err
		}

		latest := latestKey(msg.ChatID)
		item, err := txn.Get(latest)
		if stderrors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		var latestID string
		if err := item.Value(func(val []byte) error {
			latestID = string(val)
			return nil
		}); err != nil {
			return err
		}
		if latestID != id {
			return nil
		}

		nextID, ok, err := newestMessageID(txn, msg.ChatID)
		if err != nil {
			return err
		}
		if !ok {
			return txn.Delete(latest)
		}
		return txn.Set(latest, []byte(nextID))
	}))
}

// ListMessages returns one page ordered by creation time descending.
// Offset pagination over a live stream: pages may shift under concurrent
// inserts, which is accepted.
func (m *MessageRepository) ListMessages(chatID string, page, size int) ([]domain.Message, error) {
	var messages []domain.Message
	err := m.db.View(func(txn *badger.Txn) error {
		options := badger.DefaultIteratorOptions
		options.Reverse = true
		it := txn.NewIterator(options)
		defer it.Close()

		prefix := messagePrefix(chatID)
		skip := page * size
		// Reverse iteration starts past the newest possible timestamp.
		seekKey := append(append([]byte{}, prefix...), []byte("9999999999999999999")...)
		for it.Seek(seekKey); it.ValidForPrefix(prefix); it.Next() {
			if skip > 0 {
				skip--
				continue
			}
			if len(messages) == size {
				break
			}
			err := it.Item().Value(func(val []byte) error {
				var msg domain.Message
				if err := json.Unmarshal(val, &msg); err != nil {
					return err
				}
				messages = append(messages, msg)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, storeErr(err)
	}
	return messages, nil
}

// LatestMessage resolves the chat's latest-message pointer.
// Returns nil without error when the chat has no messages.
func (m *MessageRepository) LatestMessage(chatID string) (*domain.Message, error) {
	var msg *domain.Message
	err := m.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(latestKey(chatID))
		if stderrors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		var id string
		if err := item.Value(func(val []byte) error {
			id = string(val)
			return nil
		}); err != nil {
			return err
		}
		var found domain.Message
		if err := getMessage(txn, id, &found); err != nil {
			return err
		}
		msg = &found
		return nil
	})
	if err != nil {
		return nil, storeErr(err)
	}
	return msg, nil
}

// CountUnread counts messages in the chat whose reader set lacks the
// user. Unread is defined purely by ReadBy; the user's own messages
// count until marked read.
func (m *MessageRepository) CountUnread(chatID, userID string) (int, error) {
	count := 0
	err := m.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		prefix := messagePrefix(chatID)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			err := it.Item().Value(func(val []byte) error {
				var msg domain.Message
				if err := json.Unmarshal(val, &msg); err != nil {
					return err
				}
				if !msg.ReadByUser(userID) {
					count++
				}
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return 0, storeErr(err)
	}
	return count, nil
}

// DeleteChatMessages drops every message of a chat, their by-id indexes
// and the latest pointer. Used when a chat is deleted.
func (m *MessageRepository) DeleteChatMessages(chatID string) error {
	return storeErr(update(m.db, func(txn *badger.Txn) error {
		options := badger.DefaultIteratorOptions
		options.PrefetchValues = true
		it := txn.NewIterator(options)
		defer it.Close()

		prefix := messagePrefix(chatID)
		var primaries [][]byte
		var ids []string
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			primaries = append(primaries, it.Item().KeyCopy(nil))
			err := it.Item().Value(func(val []byte) error {
				var msg domain.Message
				if err := json.Unmarshal(val, &msg); err != nil {
					return err
				}
				ids = append(ids, msg.ID)
				return nil
			})
			if err != nil {
				return err
			}
		}
		for _, key := range primaries {
			if err := txn.Delete(key); err != nil {
				return err
			}
		}
		for _, id := range ids {
			if err := txn.Delete(messageIDKey(id)); err != nil {
				return err
			}
		}
		return txn.Delete(latestKey(chatID))
	}))
}

// newestMessageID finds the most recently created message of a chat by
// reverse prefix scan, relying on the padded-timestamp key order.
func newestMessageID(txn *badger.Txn, chatID string) (string, bool, error) {
	options := badger.DefaultIteratorOptions
	options.Reverse = true
	it := txn.NewIterator(options)
	defer it.Close()

	prefix := messagePrefix(chatID)
	seekKey := append(append([]byte{}, prefix...), []byte("9999999999999999999")...)
	it.Seek(seekKey)
	if !it.ValidForPrefix(prefix) {
		return "", false, nil
	}
	var id string
	err := it.Item().Value(func(val []byte) error {
		var msg domain.Message
		if err := json.Unmarshal(val, &msg); err != nil {
			return err
		}
		id = msg.ID
		return nil
	})
	if err != nil {
		return "", false, err
	}
	return id, true, nil
}

func getMessage(txn *badger.Txn, id string, out *domain.Message) error {
	item, err := txn.Get(messageIDKey(id))
	if err != nil {
		return err
	}
	var primary []byte
	if err := item.Value(func(val []byte) error {
		primary = append([]byte{}, val...)
		return nil
	}); err != nil {
		return err
	}
	return getJSON(txn, primary, out)
}
