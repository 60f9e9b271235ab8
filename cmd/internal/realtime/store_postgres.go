// Package realtime contains the Gold Coast chat fan-out service: the
// websocket gateway, connection registry, broadcast router, and message
// persistence gateway.
package realtime

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	v1 "github.com/guy4carbs/goldcoastfinancial-sub000/contracts/chat/v1"
)

// PostgresChatStore is a ChatStore backed by PostgreSQL.
//
// Ownership model:
// - PostgresChatStore does NOT own the pgx pool. The caller must close
//   the pool. Close() is therefore a no-op.
type PostgresChatStore struct {
	pool   *pgxpool.Pool
	schema string
}

// ChatStoreOption configures PostgresChatStore behavior.
type ChatStoreOption func(*PostgresChatStore) error

// WithChatSchema sets the DB schema used by this store (default: "gcf").
// The schema name is validated and safely quoted in queries.
func WithChatSchema(schema string) ChatStoreOption {
	return func(s *PostgresChatStore) error {
		schema = strings.TrimSpace(schema)
		if schema == "" {
			return errors.New("realtime: empty schema")
		}
		if !isValidPGIdent(schema) {
			return errors.New("realtime: invalid schema identifier")
		}
		s.schema = schema
		return nil
	}
}

// NewPostgresChatStore constructs a Postgres-backed ChatStore.
func NewPostgresChatStore(pool *pgxpool.Pool, opts ...ChatStoreOption) (*PostgresChatStore, error) {
	st := &PostgresChatStore{
		pool:   pool,
		schema: "gcf",
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(st); err != nil {
			return nil, err
		}
	}
	if st.pool == nil {
		return nil, errors.New("realtime: nil pool")
	}
	return st, nil
}

// Close is a no-op because the pool is owned by the caller.
func (s *PostgresChatStore) Close() error { return nil }

// CreateMessage appends one message. Identity is a ULID minted here;
// the creation timestamp comes from the database clock so persisted
// order and timestamps agree.
func (s *PostgresChatStore) CreateMessage(ctx context.Context, in CreateMessageInput) (v1.Message, error) {
	if s == nil || s.pool == nil {
		return v1.Message{}, errors.New("realtime: nil store")
	}
	if in.ConversationID == "" || in.SenderID == "" {
		return v1.Message{}, errors.New("realtime: invalid message input")
	}
	if err := ctx.Err(); err != nil {
		return v1.Message{}, err
	}

	id, err := NewMessageID(time.Now().UTC())
	if err != nil {
		return v1.Message{}, err
	}

	messages := pgIdent(s.schema, "chat_messages")

	msg := v1.Message{
		ID:             id,
		ConversationID: in.ConversationID,
		SenderID:       in.SenderID,
		SenderName:     in.SenderName,
		Content:        in.Content,
		MessageType:    normalizeMessageType(in.MessageType),
	}

	if err := s.pool.QueryRow(ctx,
		`INSERT INTO `+messages+` (id, conversation_id, sender_id, sender_name, content, message_type)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 RETURNING created_at`,
		msg.ID, msg.ConversationID, msg.SenderID, msg.SenderName, msg.Content, msg.MessageType,
	).Scan(&msg.CreatedAt); err != nil {
		return v1.Message{}, fmt.Errorf("insert message: %w", err)
	}

	return msg, nil
}

// ConversationsByUser returns the conversation ids userID participates in.
func (s *PostgresChatStore) ConversationsByUser(ctx context.Context, userID string) ([]string, error) {
	if s == nil || s.pool == nil {
		return nil, errors.New("realtime: nil store")
	}
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, errors.New("realtime: missing user id")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	participants := pgIdent(s.schema, "chat_participants")

	rows, err := s.pool.Query(ctx,
		`SELECT conversation_id FROM `+participants+` WHERE user_id = $1`,
		userID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// UpdateLastRead sets the participant's last-read timestamp to the
// database clock. Missing membership rows are left untouched.
func (s *PostgresChatStore) UpdateLastRead(ctx context.Context, userID, conversationID string) error {
	if s == nil || s.pool == nil {
		return errors.New("realtime: nil store")
	}
	if userID == "" || conversationID == "" {
		return errors.New("realtime: invalid last-read input")
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	participants := pgIdent(s.schema, "chat_participants")

	if _, err := s.pool.Exec(ctx,
		`UPDATE `+participants+`
		    SET last_read_at = now()
		  WHERE user_id = $1 AND conversation_id = $2`,
		userID, conversationID,
	); err != nil {
		return fmt.Errorf("update last read: %w", err)
	}
	return nil
}

var pgIdentRE = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

func isValidPGIdent(s string) bool {
	return pgIdentRE.MatchString(s)
}

func pgIdent(schema, table string) string {
	// pgx.Identifier safely quotes identifiers, preventing SQL injection.
	return pgx.Identifier{schema, table}.Sanitize()
}
