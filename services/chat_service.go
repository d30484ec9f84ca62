//go:generate go run go.uber.org/mock/mockgen -source=chat_service.go -destination=../mocks/mock_chat_service.go -package=mocks
package services

import (
	stderrors "errors"
	"fmt"
	"hash/fnv"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/samber/lo"

	"yappify/domain"
	"yappify/errors"
	"yappify/repositories"
)

// pairStripes sizes the mutex pool serializing direct-chat creation.
const pairStripes = 64

type IChatService interface {
	AccessOrCreateDirectChat(userA, userB string) (*domain.Chat, error)
	FetchChats(userID string) ([]ChatSummary, error)
	GetChat(chatID, userID string) (*domain.Chat, error)
	CreateGroup(name string, memberIDs []string, creatorID string) (*domain.Chat, error)
	RenameGroup(chatID, newName, adminID string) (*domain.Chat, error)
	AddMember(chatID, userID, adminID string) (*domain.Chat, error)
	RemoveMember(chatID, userID, adminID string) (*domain.Chat, error)
	TransferAdmin(chatID, currentAdminID, newAdminID string) (*domain.Chat, error)
	LeaveGroup(chatID, userID string) error
	DeleteGroup(chatID, adminID string) error
}

// ChatSummary pairs a chat with its resolved latest message for listings.
type ChatSummary struct {
	Chat          domain.Chat
	LatestMessage *domain.Message
}

// ChatService enforces membership invariants: direct chats stay unique per
// pair, groups always carry an admin drawn from current members, and no
// chat is ever left with an empty member set.
type ChatService struct {
	log       *slog.Logger
	users     repositories.IUserRepository
	chats     repositories.IChatRepository
	messages  repositories.IMessageRepository
	pairLocks [pairStripes]sync.Mutex
}

func NewChatService(log *slog.Logger,
	users repositories.IUserRepository,
	chats repositories.IChatRepository,
	messages repositories.IMessageRepository) *ChatService {
	return &ChatService{log: log, users: users, chats: chats, messages: messages}
}

// AccessOrCreateDirectChat returns the one-to-one chat for the pair,
// creating it on first access. Creation is serialized per unordered pair:
// a striped lock covers racing callers in this process and the store's
// pair index covers racing processes, so (A,B) and (B,A) always resolve
// to the same chat.
func (s *ChatService) AccessOrCreateDirectChat(userA, userB string) (*domain.Chat, error) {
	if userA == userB {
		return nil, fmt.Errorf("%w: cannot open a direct chat with yourself", errors.ErrInvalidArgument)
	}
	if _, err := s.users.FindUser(userA); err != nil {
		return nil, fmt.Errorf("user %s: %w", userA, err)
	}
	if _, err := s.users.FindUser(userB); err != nil {
		return nil, fmt.Errorf("user %s: %w", userB, err)
	}

	lock := s.pairLock(userA, userB)
	lock.Lock()
	defer lock.Unlock()

	chat, err := s.chats.FindDirectChat(userA, userB)
	if err == nil {
		return chat, nil
	}
	if !stderrors.Is(err, errors.ErrNotFound) {
		return nil, err
	}

	created, err := s.chats.CreateDirectChat(domain.NewDirectChat(userA, userB))
	if err != nil {
		return nil, err
	}
	s.log.Info("Direct chat opened", "chatId", created.ID)
	return created, nil
}

// FetchChats lists every chat of the user, most recently active first.
func (s *ChatService) FetchChats(userID string) ([]ChatSummary, error) {
	if _, err := s.users.FindUser(userID); err != nil {
		return nil, fmt.Errorf("user %s: %w", userID, err)
	}
	chats, err := s.chats.FindChatsForUser(userID)
	if err != nil {
		return nil, err
	}
	summaries := make([]ChatSummary, 0, len(chats))
	for _, chat := range chats {
		latest, err := s.messages.LatestMessage(chat.ID)
		if err != nil {
			return nil, err
		}
		summaries = append(summaries, ChatSummary{Chat: chat, LatestMessage: latest})
	}
	sort.SliceStable(summaries, func(i, j int) bool {
		return lastActivity(summaries[i]).After(lastActivity(summaries[j]))
	})
	return summaries, nil
}

func (s *ChatService) GetChat(chatID, userID string) (*domain.Chat, error) {
	chat, err := s.chats.FindChat(chatID)
	if err != nil {
		return nil, fmt.Errorf("chat %s: %w", chatID, err)
	}
	if !chat.HasMember(userID) {
		return nil, fmt.Errorf("%w: not a member of this chat", errors.ErrForbidden)
	}
	return chat, nil
}

// CreateGroup builds a group around the creator, who always joins and
// becomes admin. At least two other members are required.
func (s *ChatService) CreateGroup(name string, memberIDs []string, creatorID string) (*domain.Chat, error) {
	if name == "" {
		return nil, fmt.Errorf("%w: group name is required", errors.ErrInvalidArgument)
	}
	members := lo.Uniq(lo.Without(memberIDs, creatorID))
	if len(members) < 2 {
		return nil, fmt.Errorf("%w: a group needs at least 2 members besides the creator", errors.ErrInvalidArgument)
	}
	if _, err := s.users.FindUser(creatorID); err != nil {
		return nil, fmt.Errorf("creator %s: %w", creatorID, err)
	}
	for _, id := range members {
		if _, err := s.users.FindUser(id); err != nil {
			return nil, fmt.Errorf("member %s: %w", id, err)
		}
	}

	chat := domain.NewGroupChat(name, members, creatorID)
	if err := s.chats.CreateChat(chat); err != nil {
		return nil, err
	}
	s.log.Info("Group created", "chatId", chat.ID, "members", len(chat.Members))
	return chat, nil
}

func (s *ChatService) RenameGroup(chatID, newName, adminID string) (*domain.Chat, error) {
	if newName == "" {
		return nil, fmt.Errorf("%w: group name is required", errors.ErrInvalidArgument)
	}
	return s.chats.UpdateChat(chatID, func(chat *domain.Chat) error {
		if err := requireGroupAdmin(chat, adminID); err != nil {
			return err
		}
		chat.Name = newName
		return nil
	})
}

func (s *ChatService) AddMember(chatID, userID, adminID string) (*domain.Chat, error) {
	if _, err := s.users.FindUser(userID); err != nil {
		return nil, fmt.Errorf("user %s: %w", userID, err)
	}
	return s.chats.UpdateChat(chatID, func(chat *domain.Chat) error {
		if err := requireGroupAdmin(chat, adminID); err != nil {
			return err
		}
		if chat.HasMember(userID) {
			return fmt.Errorf("%w: user is already a member", errors.ErrAlreadyExists)
		}
		chat.Members = append(chat.Members, userID)
		return nil
	})
}

func (s *ChatService) RemoveMember(chatID, userID, adminID string) (*domain.Chat, error) {
	if _, err := s.users.FindUser(userID); err != nil {
		return nil, fmt.Errorf("user %s: %w", userID, err)
	}
	return s.chats.UpdateChat(chatID, func(chat *domain.Chat) error {
		if err := requireGroupAdmin(chat, adminID); err != nil {
			return err
		}
		if userID == chat.Admin {
			return fmt.Errorf("%w: admin cannot be removed, transfer admin rights first", errors.ErrInvalidArgument)
		}
		if !chat.HasMember(userID) {
			return fmt.Errorf("%w: user is not a member", errors.ErrInvalidArgument)
		}
		if len(chat.Members) <= 1 {
			return fmt.Errorf("%w: cannot remove the last member, delete the group instead", errors.ErrInvalidArgument)
		}
		chat.RemoveMember(userID)
		return nil
	})
}

func (s *ChatService) TransferAdmin(chatID, currentAdminID, newAdminID string) (*domain.Chat, error) {
	if _, err := s.users.FindUser(newAdminID); err != nil {
		return nil, fmt.Errorf("user %s: %w", newAdminID, err)
	}
	return s.chats.UpdateChat(chatID, func(chat *domain.Chat) error {
		if err := requireGroupAdmin(chat, currentAdminID); err != nil {
			return err
		}
		if !chat.HasMember(newAdminID) {
			return fmt.Errorf("%w: new admin must be a member of the group", errors.ErrInvalidArgument)
		}
		chat.Admin = newAdminID
		return nil
	})
}

// LeaveGroup removes the caller. A leaving admin hands the role to the
// first remaining member in join order. The last member leaving deletes
// the chat and cascades message deletion.
func (s *ChatService) LeaveGroup(chatID, userID string) error {
	updated, err := s.chats.UpdateChat(chatID, func(chat *domain.Chat) error {
		if !chat.IsGroup {
			return fmt.Errorf("%w: cannot leave a one-to-one chat", errors.ErrInvalidArgument)
		}
		if !chat.HasMember(userID) {
			return fmt.Errorf("%w: not a member of this group", errors.ErrInvalidArgument)
		}
		wasAdmin := chat.Admin == userID
		chat.RemoveMember(userID)
		if wasAdmin && len(chat.Members) > 0 {
			chat.Admin = chat.Members[0]
		}
		return nil
	})
	if err != nil {
		return err
	}
	if len(updated.Members) == 0 {
		s.log.Info("Last member left, group deleted", "chatId", chatID)
		return s.messages.DeleteChatMessages(chatID)
	}
	return nil
}

func (s *ChatService) DeleteGroup(chatID, adminID string) error {
	chat, err := s.chats.FindChat(chatID)
	if err != nil {
		return fmt.Errorf("chat %s: %w", chatID, err)
	}
	if err := requireGroupAdmin(chat, adminID); err != nil {
		return err
	}
	if err := s.chats.DeleteChat(chatID); err != nil {
		return err
	}
	s.log.Info("Group deleted by admin", "chatId", chatID)
	return s.messages.DeleteChatMessages(chatID)
}

func (s *ChatService) pairLock(userA, userB string) *sync.Mutex {
	first, second := domain.PairKey(userA, userB)
	h := fnv.New32a()
	_, _ = h.Write([]byte(first + ":" + second))
	return &s.pairLocks[h.Sum32()%pairStripes]
}

func requireGroupAdmin(chat *domain.Chat, adminID string) error {
	if !chat.IsGroup {
		return fmt.Errorf("%w: not a group chat", errors.ErrInvalidArgument)
	}
	if !chat.IsAdmin(adminID) {
		return fmt.Errorf("%w: only the group admin may do this", errors.ErrForbidden)
	}
	return nil
}

func lastActivity(s ChatSummary) time.Time {
	if s.LatestMessage != nil {
		return s.LatestMessage.CreatedAt
	}
	return s.Chat.UpdatedAt
}
