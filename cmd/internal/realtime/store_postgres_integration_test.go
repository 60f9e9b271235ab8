package realtime

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Integration tests are enabled when GCF_DATABASE_URL is set.
// This keeps local "go test ./..." fast & deterministic without requiring Postgres.

func TestPostgresChatStore_CreateMessage_AssignsIdentityAndTimestamp(t *testing.T) {
	t.Parallel()

	pool := mustOpenTestPool(t)
	defer pool.Close()

	schema := mustCreateTestSchema(t, pool)
	t.Cleanup(func() { mustDropSchema(t, pool, schema) })
	mustApplyChatSchema(t, pool, schema)

	store, err := NewPostgresChatStore(pool, WithChatSchema(schema))
	if err != nil {
		t.Fatalf("new store: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	convID := "it-conv-" + randomHex(t, 8)

	first, err := store.CreateMessage(ctx, CreateMessageInput{
		ConversationID: convID,
		SenderID:       "user-a",
		SenderName:     "User A",
		Content:        "hello",
	})
	if err != nil {
		t.Fatalf("create first: %v", err)
	}
	if strings.TrimSpace(first.ID) == "" {
		t.Fatalf("expected server-assigned message id")
	}
	if first.CreatedAt.IsZero() {
		t.Fatalf("expected DB-assigned created_at")
	}
	if first.MessageType != "text" {
		t.Fatalf("empty messageType not defaulted, got %q", first.MessageType)
	}

	second, err := store.CreateMessage(ctx, CreateMessageInput{
		ConversationID: convID,
		SenderID:       "user-a",
		SenderName:     "User A",
		Content:        "again",
		MessageType:    "system",
	})
	if err != nil {
		t.Fatalf("create second: %v", err)
	}
	if second.ID == first.ID {
		t.Fatalf("message ids must be unique")
	}
	if second.CreatedAt.Before(first.CreatedAt) {
		t.Fatalf("created_at regressed: first=%v second=%v", first.CreatedAt, second.CreatedAt)
	}
}

func TestPostgresChatStore_ConversationsByUser(t *testing.T) {
	t.Parallel()

	pool := mustOpenTestPool(t)
	defer pool.Close()

	schema := mustCreateTestSchema(t, pool)
	t.Cleanup(func() { mustDropSchema(t, pool, schema) })
	mustApplyChatSchema(t, pool, schema)

	store, err := NewPostgresChatStore(pool, WithChatSchema(schema))
	if err != nil {
		t.Fatalf("new store: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	userID := "it-user-" + randomHex(t, 8)
	want := []string{"conv-1", "conv-2"}

	participants := pgIdent(schema, "chat_participants")
	for _, conv := range want {
		if _, err := pool.Exec(ctx,
			`INSERT INTO `+participants+` (user_id, conversation_id, role) VALUES ($1, $2, 'member')`,
			userID, conv,
		); err != nil {
			t.Fatalf("seed participant: %v", err)
		}
	}

	got, err := store.ConversationsByUser(ctx, userID)
	if err != nil {
		t.Fatalf("ConversationsByUser: %v", err)
	}
	sort.Strings(got)
	if len(got) != len(want) || got[0] != want[0] || got[1] != want[1] {
		t.Fatalf("conversations = %v, want %v", got, want)
	}

	none, err := store.ConversationsByUser(ctx, "it-nobody-"+randomHex(t, 8))
	if err != nil {
		t.Fatalf("ConversationsByUser (absent): %v", err)
	}
	if len(none) != 0 {
		t.Fatalf("absent user has conversations: %v", none)
	}
}

func TestPostgresChatStore_UpdateLastRead(t *testing.T) {
	t.Parallel()

	pool := mustOpenTestPool(t)
	defer pool.Close()

	schema := mustCreateTestSchema(t, pool)
	t.Cleanup(func() { mustDropSchema(t, pool, schema) })
	mustApplyChatSchema(t, pool, schema)

	store, err := NewPostgresChatStore(pool, WithChatSchema(schema))
	if err != nil {
		t.Fatalf("new store: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	userID := "it-user-" + randomHex(t, 8)
	participants := pgIdent(schema, "chat_participants")

	if _, err := pool.Exec(ctx,
		`INSERT INTO `+participants+` (user_id, conversation_id, role) VALUES ($1, 'conv-1', 'member')`,
		userID,
	); err != nil {
		t.Fatalf("seed participant: %v", err)
	}

	if err := store.UpdateLastRead(ctx, userID, "conv-1"); err != nil {
		t.Fatalf("UpdateLastRead: %v", err)
	}

	var lastRead *time.Time
	if err := pool.QueryRow(ctx,
		`SELECT last_read_at FROM `+participants+` WHERE user_id = $1 AND conversation_id = 'conv-1'`,
		userID,
	).Scan(&lastRead); err != nil {
		t.Fatalf("read back: %v", err)
	}
	if lastRead == nil || lastRead.IsZero() {
		t.Fatalf("last_read_at not set")
	}

	// Missing membership rows are left untouched, not an error.
	if err := store.UpdateLastRead(ctx, userID, "conv-absent"); err != nil {
		t.Fatalf("UpdateLastRead (absent membership): %v", err)
	}
}

func mustOpenTestPool(t *testing.T) *pgxpool.Pool {
	t.Helper()

	raw := strings.TrimSpace(os.Getenv("GCF_DATABASE_URL"))
	if raw == "" {
		t.Skip("integration test skipped: GCF_DATABASE_URL is not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	cfg, err := pgxpool.ParseConfig(raw)
	if err != nil {
		t.Fatalf("parse GCF_DATABASE_URL: %v", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		t.Fatalf("connect postgres: %v", err)
	}

	pingCtx, pingCancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer pingCancel()

	c, err := pool.Acquire(pingCtx)
	if err != nil {
		pool.Close()
		t.Fatalf("acquire: %v", err)
	}
	c.Release()

	return pool
}

func mustCreateTestSchema(t *testing.T, pool *pgxpool.Pool) string {
	t.Helper()

	schema := "gcf_it_" + strings.ToLower(randomHex(t, 8))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if _, err := pool.Exec(ctx, `CREATE SCHEMA `+pgx.Identifier{schema}.Sanitize()); err != nil {
		t.Fatalf("create schema: %v", err)
	}
	return schema
}

func mustDropSchema(t *testing.T, pool *pgxpool.Pool, schema string) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_, _ = pool.Exec(ctx, `DROP SCHEMA IF EXISTS `+pgx.Identifier{schema}.Sanitize()+` CASCADE`)
}

func mustApplyChatSchema(t *testing.T, pool *pgxpool.Pool, schema string) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 12*time.Second)
	defer cancel()

	messages := pgIdent(schema, "chat_messages")
	participants := pgIdent(schema, "chat_participants")

	// Minimal schema required by PostgresChatStore.
	schemaSQL := fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
  id              TEXT PRIMARY KEY,
  conversation_id TEXT NOT NULL,
  sender_id       TEXT NOT NULL,
  sender_name     TEXT NOT NULL DEFAULT '',
  content         TEXT NOT NULL,
  message_type    TEXT NOT NULL DEFAULT 'text',
  created_at      TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_chat_messages_conversation_created
  ON %s (conversation_id, created_at ASC);

CREATE TABLE IF NOT EXISTS %s (
  user_id         TEXT NOT NULL,
  conversation_id TEXT NOT NULL,
  role            TEXT NOT NULL DEFAULT 'member',
  last_read_at    TIMESTAMPTZ,

  PRIMARY KEY (user_id, conversation_id)
);
`, messages, messages, participants)

	if _, err := pool.Exec(ctx, schemaSQL); err != nil {
		t.Fatalf("apply schema: %v", err)
	}
}

func randomHex(t *testing.T, n int) string {
	t.Helper()

	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		t.Fatalf("rand: %v", err)
	}
	return hex.EncodeToString(b)
}
