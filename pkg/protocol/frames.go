// Package protocol defines the wire frames exchanged between the Courier
// server and chat clients over WebSocket.
//
// All frames are JSON-encoded and carry a "type" field that determines the
// remaining structure. Error frames are the one exception: they carry only
// an "error" field.
package protocol

import "time"

// Inbound frame types (client → server).
const (
	TypeMessage      = "message"
	TypeReadMessages = "read_messages"
	TypeTyping       = "typing"
)

// Outbound frame types (server → client).
const (
	TypeNewMessage   = "new_message"
	TypeMessagesRead = "messages_read"
	TypeUserTyping   = "user_typing"
)

// FrameHead is decoded first to dispatch on the frame type.
type FrameHead struct {
	Type string `json:"type"`
}

// --- Inbound frames ---

// SendMessage asks the server to deliver a direct message.
type SendMessage struct {
	Type       string `json:"type"`
	ReceiverID string `json:"receiver_id"`
	Content    string `json:"content"`
}

// ReadMessages marks every unread message from SenderID to the caller as read.
type ReadMessages struct {
	Type     string `json:"type"`
	SenderID string `json:"sender_id"`
}

// Typing signals that the caller started or stopped typing to ReceiverID.
// Best-effort: never persisted, silently dropped if the receiver is offline.
type Typing struct {
	Type       string `json:"type"`
	ReceiverID string `json:"receiver_id"`
	IsTyping   bool   `json:"is_typing"`
}

// --- Outbound frames ---

// WireMessage is a persisted message as it appears on the wire. The id and
// created_at fields are assigned by the store before any delivery is
// attempted, so every copy a client sees refers to durable state.
type WireMessage struct {
	ID             string    `json:"id"`
	SenderID       string    `json:"sender_id"`
	SenderUsername string    `json:"sender_username,omitempty"`
	ReceiverID     string    `json:"receiver_id"`
	Content        string    `json:"content"`
	CreatedAt      time.Time `json:"created_at"`
	IsRead         bool      `json:"is_read"`
}

// NewMessage carries a freshly persisted message. It is delivered to every
// live session of both the receiver and the sender; the sender-side copy
// doubles as the send acknowledgment.
type NewMessage struct {
	Type    string      `json:"type"`
	Message WireMessage `json:"message"`
}

// MessagesRead notifies the original sender that the receiver read their
// messages. Count is the number of messages that transitioned to read.
type MessagesRead struct {
	Type       string `json:"type"`
	SenderID   string `json:"sender_id"`
	ReceiverID string `json:"receiver_id"`
	Count      int64  `json:"count"`
}

// UserTyping relays a typing indicator to the receiver's live sessions.
type UserTyping struct {
	Type       string `json:"type"`
	SenderID   string `json:"sender_id"`
	ReceiverID string `json:"receiver_id"`
	IsTyping   bool   `json:"is_typing"`
}

// ErrorFrame reports a frame-level failure back to the offending session
// without closing the connection.
type ErrorFrame struct {
	Error string `json:"error"`
}
