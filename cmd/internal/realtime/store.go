package realtime

import (
	"context"

	v1 "github.com/guy4carbs/goldcoastfinancial-sub000/contracts/chat/v1"
)

// ChatStore is the message persistence gateway consumed by the fan-out
// layer.
//
// Requirements:
//   - CreateMessage assigns identity and creation timestamp server-side;
//     client-supplied values are never trusted for those fields.
//   - Creation order as assigned here is the authoritative display
//     order; the fan-out layer does not reorder or deduplicate.
//   - ConversationsByUser reflects durable membership at call time.
type ChatStore interface {
	CreateMessage(ctx context.Context, in CreateMessageInput) (v1.Message, error)
	ConversationsByUser(ctx context.Context, userID string) ([]string, error)
	UpdateLastRead(ctx context.Context, userID, conversationID string) error
	Close() error
}

// CreateMessageInput describes a message append request. MessageType
// defaults to "text" when empty.
type CreateMessageInput struct {
	ConversationID string
	SenderID       string
	SenderName     string
	Content        string
	MessageType    string
}

const defaultMessageType = "text"

func normalizeMessageType(t string) string {
	if t == "" {
		return defaultMessageType
	}
	return t
}
