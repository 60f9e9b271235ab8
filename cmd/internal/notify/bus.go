// Package notify routes server-internal user notifications onto the
// realtime direct channel. Producers publish without knowing whether
// the target user is connected; delivery is best-effort by contract.
package notify

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"
)

// DirectSender is the realtime side of the bus: push a payload to one
// specific user if currently connected, silent no-op otherwise.
type DirectSender interface {
	Notify(userID string, payload any)
}

// Notification is the producer-defined payload. Type is mandatory on
// the wire; everything else rides in Data.
type Notification struct {
	Type      string          `json:"type"`
	UserID    string          `json:"userId"`
	Title     string          `json:"title,omitempty"`
	Body      string          `json:"body,omitempty"`
	Data      json.RawMessage `json:"data,omitempty"`
	CreatedAt time.Time       `json:"createdAt"`
}

// Bus publishes notifications for a single user.
type Bus interface {
	Publish(ctx context.Context, n Notification) error
	Close() error
}

// LocalBus delivers in-process, straight onto the direct channel.
// It is the default when no broker is configured.
type LocalBus struct {
	log    *slog.Logger
	sender DirectSender
}

// NewLocalBus constructs an in-process Bus over the given sender.
func NewLocalBus(log *slog.Logger, sender DirectSender) *LocalBus {
	return &LocalBus{log: log, sender: sender}
}

// Publish pushes the notification to the user's live socket, if any.
func (b *LocalBus) Publish(ctx context.Context, n Notification) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if n.UserID == "" {
		return nil
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now().UTC()
	}

	b.sender.Notify(n.UserID, n)
	return nil
}

// Close is a no-op for the in-process bus.
func (b *LocalBus) Close() error { return nil }
