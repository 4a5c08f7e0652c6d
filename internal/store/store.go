// Package store defines the persistence interface for the messaging service
// and provides SQLite and PostgreSQL implementations.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"
)

// ErrUserNotFound is returned when an operation references a user that
// does not exist, such as sending a message to an unknown receiver.
var ErrUserNotFound = errors.New("user not found")

// Store is the persistence interface for the messaging service.
type Store interface {
	// Users
	CreateUser(ctx context.Context, user *User) error
	GetUser(ctx context.Context, username string) (*User, error)
	GetUserByID(ctx context.Context, id string) (*User, error)
	GetUserByExternalID(ctx context.Context, externalID string) (*User, error)
	ListUsers(ctx context.Context) ([]User, error)

	// Messages
	CreateMessage(ctx context.Context, senderID, receiverID, content string) (*Message, error)
	ListConversation(ctx context.Context, userA, userB string, limit int) ([]Message, error)
	ListMessagesForUser(ctx context.Context, userID string, limit, offset int) ([]Message, error)
	MarkMessagesRead(ctx context.Context, senderID, receiverID string) (int64, error)
	UnreadCounts(ctx context.Context, receiverID string) ([]UnreadCount, error)

	// Audit
	LogAuditEvent(ctx context.Context, event *AuditEvent) error
	ListAuditEvents(ctx context.Context, limit, offset int) ([]AuditEvent, error)

	// Health
	Ping(ctx context.Context) error

	// Lifecycle
	Close() error
}

// User represents a registered account.
type User struct {
	ID           string    `json:"id"`
	ExternalID   string    `json:"external_id,omitempty"` // external auth subject or empty
	Username     string    `json:"username"`
	PasswordHash string    `json:"-"`
	Role         string    `json:"role"` // "admin" or "user"
	CreatedAt    time.Time `json:"created_at"`
}

// Message represents a stored direct message.
type Message struct {
	ID             string    `json:"id"`
	SenderID       string    `json:"sender_id"`
	SenderUsername string    `json:"sender_username,omitempty"`
	ReceiverID     string    `json:"receiver_id"`
	Content        string    `json:"content"`
	IsRead         bool      `json:"is_read"`
	CreatedAt      time.Time `json:"created_at"`
}

// UnreadCount reports how many unread messages a user has from one sender.
type UnreadCount struct {
	SenderID       string `json:"sender_id"`
	SenderUsername string `json:"sender_username,omitempty"`
	Count          int64  `json:"count"`
}

// AuditEvent is a log entry for audit purposes.
type AuditEvent struct {
	ID        string          `json:"id"`
	Action    string          `json:"action"`
	UserID    string          `json:"user_id,omitempty"`
	PeerID    string          `json:"peer_id,omitempty"`
	Detail    json.RawMessage `json:"detail,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}
