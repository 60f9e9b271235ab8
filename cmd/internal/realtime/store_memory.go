package realtime

import (
	"context"
	"errors"
	"sync"
	"time"

	v1 "github.com/guy4carbs/goldcoastfinancial-sub000/contracts/chat/v1"
)

const memMaxMessagesPerConversation = 10_000

// InMemoryChatStore is a dev/test fallback when the database is not
// configured. Messages are ordered by insertion, matching the
// persistence-order contract.
type InMemoryChatStore struct {
	mu          sync.Mutex
	messages    map[string][]v1.Message       // conversation id -> ordered messages
	memberships map[string]map[string]membrec // user id -> conversation id -> membership
}

type membrec struct {
	role       string
	lastReadAt time.Time
}

// NewInMemoryChatStore constructs an empty in-memory ChatStore.
func NewInMemoryChatStore() *InMemoryChatStore {
	return &InMemoryChatStore{
		messages:    make(map[string][]v1.Message),
		memberships: make(map[string]map[string]membrec),
	}
}

// Close closes the store (noop for in-memory).
func (s *InMemoryChatStore) Close() error { return nil }

// AddMembership seeds a participant membership. Dev/test helper; the
// fan-out layer itself treats membership as read-only.
func (s *InMemoryChatStore) AddMembership(userID, conversationID, role string) {
	if userID == "" || conversationID == "" {
		return
	}
	if role == "" {
		role = "member"
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	m := s.memberships[userID]
	if m == nil {
		m = make(map[string]membrec)
		s.memberships[userID] = m
	}
	m[conversationID] = membrec{role: role}
}

// CreateMessage durably appends a message and returns the canonical
// stored record with server-assigned identity and timestamp.
func (s *InMemoryChatStore) CreateMessage(ctx context.Context, in CreateMessageInput) (v1.Message, error) {
	if in.ConversationID == "" || in.SenderID == "" {
		return v1.Message{}, errors.New("realtime: invalid message input")
	}
	if err := ctx.Err(); err != nil {
		return v1.Message{}, err
	}

	now := time.Now().UTC()
	id, err := NewMessageID(now)
	if err != nil {
		return v1.Message{}, err
	}

	msg := v1.Message{
		ID:             id,
		ConversationID: in.ConversationID,
		SenderID:       in.SenderID,
		SenderName:     in.SenderName,
		Content:        in.Content,
		MessageType:    normalizeMessageType(in.MessageType),
		CreatedAt:      now,
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	msgs := append(s.messages[in.ConversationID], msg)
	// Bound memory to avoid unbounded growth in dev.
	if len(msgs) > memMaxMessagesPerConversation {
		msgs = msgs[len(msgs)-memMaxMessagesPerConversation:]
	}
	s.messages[in.ConversationID] = msgs

	return msg, nil
}

// ConversationsByUser returns the conversation ids userID participates in.
func (s *InMemoryChatStore) ConversationsByUser(ctx context.Context, userID string) ([]string, error) {
	if userID == "" {
		return nil, errors.New("realtime: missing user id")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	m := s.memberships[userID]
	out := make([]string, 0, len(m))
	for convID := range m {
		out = append(out, convID)
	}
	return out, nil
}

// UpdateLastRead records userID's last-read position for a conversation.
// The write goes through to persistence only; it is not reflected back
// into any in-memory connection entry.
func (s *InMemoryChatStore) UpdateLastRead(ctx context.Context, userID, conversationID string) error {
	if userID == "" || conversationID == "" {
		return errors.New("realtime: invalid last-read input")
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	m := s.memberships[userID]
	rec, ok := m[conversationID]
	if !ok {
		return nil
	}
	rec.lastReadAt = time.Now().UTC()
	m[conversationID] = rec
	return nil
}
