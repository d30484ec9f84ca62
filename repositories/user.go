//go:generate go run go.uber.org/mock/mockgen -source=user.go -destination=../mocks/mock_user_repository.go -package=mocks
package repositories

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/dgraph-io/badger/v4"

	"yappify/domain"
	"yappify/errors"
)

type IUserRepository interface {
	CreateUser(user *domain.User) error
	FindUser(id string) (*domain.User, error)
	FindUserByEmail(email string) (*domain.User, error)
	SearchUsers(query, excludeID string) ([]domain.User, error)
	SaveUser(user *domain.User) error
	DeleteUser(id string) error
}

type UserRepository struct {
	db *badger.DB
}

func NewUserRepository(db *badger.DB) *UserRepository {
	return &UserRepository{db: db}
}

// CreateUser persists a user and claims its email inside one transaction,
// so two concurrent registrations of the same address cannot both commit.
func (u *UserRepository) CreateUser(user *domain.User) error {
	data, err := json.Marshal(user)
	if err != nil {
		return fmt.Errorf("marshal user: %w", err)
	}
	return storeErr(update(u.db, func(txn *badger.Txn) error {
		emailKey := userEmailKey(user.Email)
		if _, err := txn.Get(emailKey); err == nil {
			return errors.ErrAlreadyExists
		}
		if err := txn.Set(emailKey, []byte(user.ID)); err != nil {
			return err
		}
		return txn.Set(userKey(user.ID), data)
	}))
}

func (u *UserRepository) FindUser(id string) (*domain.User, error) {
	var user domain.User
	err := u.db.View(func(txn *badger.Txn) error {
		return getJSON(txn, userKey(id), &user)
	})
	if err != nil {
		return nil, storeErr(err)
	}
	return &user, nil
}

func (u *UserRepository) FindUserByEmail(email string) (*domain.User, error) {
	var id string
	err := u.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(userEmailKey(email))
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
	return u.FindUser(id)
}

// SearchUsers scans all users for a name or email substring, excluding the
// caller. The user set is small enough that a full scan beats maintaining
// a search index for this.
func (u *UserRepository) SearchUsers(query, excludeID string) ([]domain.User, error) {
	needle := strings.ToLower(query)
	var found []domain.User
	err := u.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		prefix := []byte("user:")
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			err := it.Item().Value(func(val []byte) error {
				var user domain.User
				if err := json.Unmarshal(val, &user); err != nil {
					return err
				}
				if user.ID == excludeID {
					return nil
				}
				if strings.Contains(strings.ToLower(user.Name), needle) ||
					strings.Contains(strings.ToLower(user.Email), needle) {
					found = append(found, user)
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
		return nil, storeErr(err)
	}
	return found, nil
}

func (u *UserRepository) SaveUser(user *domain.User) error {
	data, err := json.Marshal(user)
	if err != nil {
		return fmt.Errorf("marshal user: %w", err)
	}
	return storeErr(update(u.db, func(txn *badger.Txn) error {
		return txn.Set(userKey(user.ID), data)
	}))
}

func (u *UserRepository) DeleteUser(id string) error {
	return storeErr(update(u.db, func(txn *badger.Txn) error {
		var user domain.User
		if err := getJSON(txn, userKey(id), &user); err != nil {
			return err
		}
		if err := txn.Delete(userEmailKey(user.Email)); err != nil {
			return err
		}
		return txn.Delete(userKey(id))
	}))
}

func getJSON(txn *badger.Txn, key []byte, out any) error {
	item, err := txn.Get(key)
	if err != nil {
		return err
	}
	return item.Value(func(val []byte) error {
		return json.Unmarshal(val, out)
	})
}
