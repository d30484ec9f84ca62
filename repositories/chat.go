//go:generate go run go.uber.org/mock/mockgen -source=chat.go -destination=../mocks/mock_chat_repository.go -package=mocks
package repositories

import (
	"encoding/json"
	stderrors "errors"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/samber/lo"

	"yappify/domain"
)

type IChatRepository interface {
	CreateDirectChat(chat *domain.Chat) (*domain.Chat, error)
	CreateChat(chat *domain.Chat) error
	FindChat(id string) (*domain.Chat, error)
	FindDirectChat(userA, userB string) (*domain.Chat, error)
	FindChatsForUser(userID string) ([]domain.Chat, error)
	UpdateChat(id string, mutate func(chat *domain.Chat) error) (*domain.Chat, error)
	DeleteChat(id string) error
}

type ChatRepository struct {
	db *badger.DB
}

func NewChatRepository(db *badger.DB) *ChatRepository {
	return &ChatRepository{db: db}
}

// CreateDirectChat persists a direct chat unless one already exists for the
// pair. The pair index is checked and claimed in the same transaction as
// the chat write, so it acts as a uniqueness constraint: of two racing
// creations, exactly one commits and the other returns the winner's chat.
func (c *ChatRepository) CreateDirectChat(chat *domain.Chat) (*domain.Chat, error) {
	pair := pairKey(chat.Members[0], chat.Members[1])
	var existing *domain.Chat
	err := update(c.db, func(txn *badger.Txn) error {
		existing = nil
		item, err := txn.Get(pair)
		switch {
		case err == nil:
			var existingID string
			if err := item.Value(func(val []byte) error {
				existingID = string(val)
				return nil
			}); err != nil {
				return err
			}
			found := &domain.Chat{}
			if err := getJSON(txn, chatKey(existingID), found); err != nil {
				return err
			}
			existing = found
			return nil
		case !stderrors.Is(err, badger.ErrKeyNotFound):
			return err
		}
		if err := txn.Set(pair, []byte(chat.ID)); err != nil {
			return err
		}
		return writeChat(txn, chat)
	})
	if err != nil {
		return nil, storeErr(err)
	}
	if existing != nil {
		return existing, nil
	}
	return chat, nil
}

// CreateChat persists a group chat together with its membership index.
func (c *ChatRepository) CreateChat(chat *domain.Chat) error {
	return storeErr(update(c.db, func(txn *badger.Txn) error {
		return writeChat(txn, chat)
	}))
}

func (c *ChatRepository) FindChat(id string) (*domain.Chat, error) {
	var chat domain.Chat
	err := c.db.View(func(txn *badger.Txn) error {
		return getJSON(txn, chatKey(id), &chat)
	})
	if err != nil {
		return nil, storeErr(err)
	}
	return &chat, nil
}

func (c *ChatRepository) FindDirectChat(userA, userB string) (*domain.Chat, error) {
	var id string
	err := c.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(pairKey(userA, userB))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			id = string(val)
			return nil
		})
	})
	if err != nil {
		return nil, storeErr(err)
	}
	return c.FindChat(id)
}

func (c *ChatRepository) FindChatsForUser(userID string) ([]domain.Chat, error) {
	var chatIDs []string
	err := c.db.View(func(txn *badger.Txn) error {
		options := badger.DefaultIteratorOptions
		options.PrefetchValues = true
		it := txn.NewIterator(options)
		defer it.Close()
		prefix := memberPrefix(userID)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			if err := it.Item().Value(func(val []byte) error {
				chatIDs = append(chatIDs, string(val))
				return nil
			}); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, storeErr(err)
	}
	chats := make([]domain.Chat, 0, len(chatIDs))
	for _, id := range chatIDs {
		chat, err := c.FindChat(id)
		if err != nil {
			return nil, err
		}
		chats = append(chats, *chat)
	}
	return chats, nil
}

// UpdateChat applies mutate to the current chat state inside a single
// transaction. The membership index is reconciled against the member list
// diff, and conflicting concurrent updates are retried on fresh state, so
// two racing membership changes settle to one-after-the-other.
//
// A mutation that empties the member set deletes the chat instead of
// saving it: an empty chat is never persisted. Callers detect this from
// the returned chat's empty member list and cascade message cleanup.
func (c *ChatRepository) UpdateChat(id string, mutate func(chat *domain.Chat) error) (*domain.Chat, error) {
	var updated *domain.Chat
	err := update(c.db, func(txn *badger.Txn) error {
		var chat domain.Chat
		if err := getJSON(txn, chatKey(id), &chat); err != nil {
			return err
		}
		before := append([]string(nil), chat.Members...)
		if err := mutate(&chat); err != nil {
			return err
		}
		chat.UpdatedAt = time.Now().UTC()
		for _, removed := range lo.Without(before, chat.Members...) {
			if err := txn.Delete(memberKey(removed, id)); err != nil {
				return err
			}
		}
		updated = &chat
		if len(chat.Members) == 0 {
			if !chat.IsGroup && len(before) == 2 {
				if err := txn.Delete(pairKey(before[0], before[1])); err != nil {
					return err
				}
			}
			return txn.Delete(chatKey(id))
		}
		for _, added := range lo.Without(chat.Members, before...) {
			if err := txn.Set(memberKey(added, id), []byte(id)); err != nil {
				return err
			}
		}
		data, err := json.Marshal(&chat)
		if err != nil {
			return fmt.Errorf("marshal chat: %w", err)
		}
		return txn.Set(chatKey(id), data)
	})
	if err != nil {
		return nil, storeErr(err)
	}
	return updated, nil
}

// DeleteChat removes the chat record and all its indexes. Message cleanup
// belongs to the message repository and is cascaded by the caller.
func (c *ChatRepository) DeleteChat(id string) error {
	return storeErr(update(c.db, func(txn *badger.Txn) error {
		var chat domain.Chat
		if err := getJSON(txn, chatKey(id), &chat); err != nil {
			return err
		}
		for _, member := range chat.Members {
			if err := txn.Delete(memberKey(member, id)); err != nil {
				return err
			}
		}
		if !chat.IsGroup && len(chat.Members) == 2 {
			if err := txn.Delete(pairKey(chat.Members[0], chat.Members[1])); err != nil {
				return err
			}
		}
		return txn.Delete(chatKey(id))
	}))
}

func writeChat(txn *badger.Txn, chat *domain.Chat) error {
	data, err := json.Marshal(chat)
	if err != nil {
		return fmt.Errorf("marshal chat: %w", err)
	}
	for _, member := range chat.Members {
		if err := txn.Set(memberKey(member, chat.ID), []byte(chat.ID)); err != nil {
			return err
		}
	}
	return txn.Set(chatKey(chat.ID), data)
}
