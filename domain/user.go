// Package domain contains core concepts of the chat system.
// This file defines User identities referenced by chats and messages.
// No runtime, network, or UI logic should be added here.
package domain

import "time"

// DefaultAvatar is assigned at registration when no picture is provided.
const DefaultAvatar = "https://icon-library.com/images/anonymous-avatar-icon/anonymous-avatar-icon-25.jpg"

// User is immutable once created except for its profile fields.
// Chats and messages reference users by ID only, never by embedding.
type User struct {
	ID           string
	Name         string
	Email        string
	PasswordHash string
	Avatar       string
	CreatedAt    time.Time
}
