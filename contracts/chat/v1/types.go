// Package v1 defines the Gold Coast chat wire protocol.
//
// Frames are flat UTF-8 JSON objects with a mandatory "type" field.
// This package is intentionally stable and dependency-light so server
// and clients share one authoritative definition of the wire shapes.
package v1

import (
	"encoding/json"
	"time"
)

// Inbound frame types (client -> server).
const (
	// TypeAuth associates the socket with a user identity and loads the
	// user's conversation memberships.
	TypeAuth = "auth"
	// TypeJoinConversation subscribes the authenticated user to one
	// additional conversation.
	TypeJoinConversation = "join_conversation"
	// TypeSendMessage persists a message and fans it out to the
	// conversation's connected participants.
	TypeSendMessage = "send_message"
	// TypeMarkRead records the user's last-read position for a
	// conversation. It has no acknowledgement frame.
	TypeMarkRead = "mark_read"
)

// Outbound frame types (server -> client).
const (
	// TypeAuthSuccess acknowledges a successful auth frame.
	TypeAuthSuccess = "auth_success"
	// TypeError reports a command-level failure (the connection stays open).
	TypeError = "error"
	// TypeNewMessage carries a newly persisted message to every
	// connected participant of its conversation.
	TypeNewMessage = "new_message"
)

// KnownInboundType reports whether t is a command the server dispatches.
func KnownInboundType(t string) bool {
	switch t {
	case TypeAuth, TypeJoinConversation, TypeSendMessage, TypeMarkRead:
		return true
	}
	return false
}

// Frame is the inbound command shape. All fields beyond Type are
// optional at the wire level; each command validates the ones it needs.
type Frame struct {
	Type           string `json:"type"`
	UserID         string `json:"userId,omitempty"`
	ConversationID string `json:"conversationId,omitempty"`
	SenderName     string `json:"senderName,omitempty"`
	Content        string `json:"content,omitempty"`
	MessageType    string `json:"messageType,omitempty"`
}

// Message is the canonical persisted chat message as it appears on the
// wire. Identity and CreatedAt are server-assigned; SenderName is
// denormalized at write time and never re-resolved.
type Message struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversationId"`
	SenderID       string    `json:"senderId"`
	SenderName     string    `json:"senderName"`
	Content        string    `json:"content"`
	MessageType    string    `json:"messageType"`
	CreatedAt      time.Time `json:"createdAt"`
}

// AuthSuccess acknowledges an auth frame.
type AuthSuccess struct {
	Type string `json:"type"`
}

// Error reports a command failure without closing the connection.
type Error struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// NewMessage wraps a persisted message for broadcast.
type NewMessage struct {
	Type    string  `json:"type"`
	Message Message `json:"message"`
}

// NewAuthSuccess builds an auth_success frame.
func NewAuthSuccess() AuthSuccess { return AuthSuccess{Type: TypeAuthSuccess} }

// NewError builds an error frame.
func NewError(msg string) Error { return Error{Type: TypeError, Message: msg} }

// WrapMessage builds a new_message frame around a persisted record.
func WrapMessage(m Message) NewMessage { return NewMessage{Type: TypeNewMessage, Message: m} }

// Marshal is a convenience for producer-defined direct notifications:
// any JSON-marshalable value may be pushed over the direct channel as
// long as it carries its own "type" field.
func Marshal(v any) (json.RawMessage, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return json.RawMessage(b), nil
}
