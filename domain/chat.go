package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"
)

// Chat is either a two-member direct conversation or a group with a single
// admin. Members holds user IDs in join order; the order is load-bearing:
// when an admin leaves, the first remaining member inherits the role.
type Chat struct {
	ID        string
	Name      string
	IsGroup   bool
	Members   []string
	Admin     string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// NewDirectChat builds an adminless two-member chat.
func NewDirectChat(userA, userB string) *Chat {
	now := time.Now().UTC()
	return &Chat{
		ID:        uuid.NewString(),
		Name:      "sender",
		IsGroup:   false,
		Members:   []string{userA, userB},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// NewGroupChat builds a group chat. The creator is appended last and
// becomes admin, mirroring the join order of the invited members.
func NewGroupChat(name string, memberIDs []string, creatorID string) *Chat {
	now := time.Now().UTC()
	members := make([]string, 0, len(memberIDs)+1)
	members = append(members, memberIDs...)
	if !lo.Contains(members, creatorID) {
		members = append(members, creatorID)
	}
	return &Chat{
		ID:        uuid.NewString(),
		Name:      name,
		IsGroup:   true,
		Members:   members,
		Admin:     creatorID,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func (c *Chat) HasMember(userID string) bool {
	return lo.Contains(c.Members, userID)
}

func (c *Chat) IsAdmin(userID string) bool {
	return c.IsGroup && c.Admin != "" && c.Admin == userID
}

// RemoveMember drops a member while preserving join order.
// Reports whether the member was present.
func (c *Chat) RemoveMember(userID string) bool {
	before := len(c.Members)
	c.Members = lo.Without(c.Members, userID)
	return len(c.Members) != before
}

// PairKey returns the unordered pair of user IDs in a stable order.
// Both (A,B) and (B,A) map to the same key, which backs direct-chat dedup.
func PairKey(userA, userB string) (string, string) {
	if userB < userA {
		return userB, userA
	}
	return userA, userB
}
