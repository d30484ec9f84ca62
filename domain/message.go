// This file defines Message entities and their lifecycle rules.
// A message moves Sent -> Edited* -> Deleted; Deleted is terminal.
package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"
)

// EditWindow is how long after creation the sender may still edit content.
// Edits are allowed while elapsed <= EditWindow and rejected past it.
const EditWindow = 15 * time.Minute

type Message struct {
	ID        string
	ChatID    string
	SenderID  string
	Content   string
	CreatedAt time.Time
	Edited    bool
	EditedAt  *time.Time
	ReadBy    []string
}

func NewMessage(chatID, senderID, content string) *Message {
	return &Message{
		ID:        uuid.NewString(),
		ChatID:    chatID,
		SenderID:  senderID,
		Content:   content,
		CreatedAt: time.Now().UTC(),
	}
}

// EmptyContent reports whether content is empty or whitespace only.
func EmptyContent(content string) bool {
	return strings.TrimSpace(content) == ""
}

func (m *Message) WithinEditWindow(now time.Time) bool {
	return now.Sub(m.CreatedAt) <= EditWindow
}

// ApplyEdit overwrites content and stamps the edit marker.
func (m *Message) ApplyEdit(content string, now time.Time) {
	m.Content = content
	m.Edited = true
	m.EditedAt = &now
}

func (m *Message) ReadByUser(userID string) bool {
	return lo.Contains(m.ReadBy, userID)
}

// MarkRead grows the reader set. Idempotent: re-adding an existing reader
// is a no-op and reports false.
func (m *Message) MarkRead(userID string) bool {
	if m.ReadByUser(userID) {
		return false
	}
	m.ReadBy = append(m.ReadBy, userID)
	return true
}
