package repositories

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"yappify/domain"
	"yappify/errors"
)

func TestChatRepository_DirectChatDedup(t *testing.T) {
	req := require.New(t)
	repo := NewChatRepository(testDB(t))

	first, err := repo.CreateDirectChat(domain.NewDirectChat("alice", "bob"))
	req.NoError(err)

	// Same pair, reversed order, still resolves to the winner.
	second, err := repo.CreateDirectChat(domain.NewDirectChat("bob", "alice"))
	req.NoError(err)
	req.Equal(first.ID, second.ID)

	found, err := repo.FindDirectChat("bob", "alice")
	req.NoError(err)
	req.Equal(first.ID, found.ID)
}

func TestChatRepository_DirectChatDedupConcurrent(t *testing.T) {
	req := require.New(t)
	repo := NewChatRepository(testDB(t))

	const racers = 10
	ids := make([]string, racers)
	var wg sync.WaitGroup
	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			chat, err := repo.CreateDirectChat(domain.NewDirectChat("alice", "bob"))
			require.NoError(t, err)
			ids[i] = chat.ID
		}(i)
	}
	wg.Wait()

	for _, id := range ids {
		req.Equal(ids[0], id)
	}
}

func TestChatRepository_DirectChatStoreFailure(t *testing.T) {
	req := require.New(t)
	db := testDB(t)
	repo := NewChatRepository(db)
	req.NoError(db.Close())

	// A store failure must surface, not be mistaken for an absent pair.
	_, err := repo.CreateDirectChat(domain.NewDirectChat("alice", "bob"))
	req.ErrorIs(err, errors.ErrUnavailable)
}

func TestChatRepository_FindChatsForUser(t *testing.T) {
	req := require.New(t)
	repo := NewChatRepository(testDB(t))

	direct, err := repo.CreateDirectChat(domain.NewDirectChat("alice", "bob"))
	req.NoError(err)
	group := domain.NewGroupChat("team", []string{"alice", "carol"}, "dave")
	req.NoError(repo.CreateChat(group))

	chats, err := repo.FindChatsForUser("alice")
	req.NoError(err)
	req.Len(chats, 2)

	chats, err = repo.FindChatsForUser("carol")
	req.NoError(err)
	req.Len(chats, 1)
	req.Equal(group.ID, chats[0].ID)

	chats, err = repo.FindChatsForUser("nobody")
	req.NoError(err)
	req.Empty(chats)

	_ = direct
}

func TestChatRepository_UpdateReconcilesMemberIndex(t *testing.T) {
	req := require.New(t)
	repo := NewChatRepository(testDB(t))

	group := domain.NewGroupChat("team", []string{"alice", "bob"}, "carol")
	req.NoError(repo.CreateChat(group))

	_, err := repo.UpdateChat(group.ID, func(chat *domain.Chat) error {
		chat.RemoveMember("bob")
		chat.Members = append(chat.Members, "dave")
		return nil
	})
	req.NoError(err)

	chats, err := repo.FindChatsForUser("bob")
	req.NoError(err)
	req.Empty(chats)

	chats, err = repo.FindChatsForUser("dave")
	req.NoError(err)
	req.Len(chats, 1)
}

func TestChatRepository_UpdateToEmptyDeletesChat(t *testing.T) {
	req := require.New(t)
	repo := NewChatRepository(testDB(t))

	group := domain.NewGroupChat("team", []string{"alice"}, "bob")
	req.NoError(repo.CreateChat(group))

	updated, err := repo.UpdateChat(group.ID, func(chat *domain.Chat) error {
		chat.Members = nil
		return nil
	})
	req.NoError(err)
	req.Empty(updated.Members)

	_, err = repo.FindChat(group.ID)
	req.ErrorIs(err, errors.ErrNotFound)

	chats, err := repo.FindChatsForUser("alice")
	req.NoError(err)
	req.Empty(chats)
}

func TestChatRepository_DeleteChatFreesPair(t *testing.T) {
	req := require.New(t)
	repo := NewChatRepository(testDB(t))

	first, err := repo.CreateDirectChat(domain.NewDirectChat("alice", "bob"))
	req.NoError(err)
	req.NoError(repo.DeleteChat(first.ID))

	_, err = repo.FindDirectChat("alice", "bob")
	req.ErrorIs(err, errors.ErrNotFound)

	// The pair is free again, a new chat can be created.
	second, err := repo.CreateDirectChat(domain.NewDirectChat("alice", "bob"))
	req.NoError(err)
	req.NotEqual(first.ID, second.ID)
}

func TestChatRepository_UpdateMissingChat(t *testing.T) {
	req := require.New(t)
	repo := NewChatRepository(testDB(t))

	_, err := repo.UpdateChat("missing", func(chat *domain.Chat) error {
		return nil
	})
	req.ErrorIs(err, errors.ErrNotFound)
}
