package notify

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
	"testing"
	"time"
)

// recordingSender captures direct-channel pushes.
type recordingSender struct {
	mu     sync.Mutex
	pushed []Notification
}

func (s *recordingSender) Notify(userID string, payload any) {
	n, ok := payload.(Notification)
	if !ok {
		return
	}
	s.mu.Lock()
	s.pushed = append(s.pushed, n)
	s.mu.Unlock()
}

func (s *recordingSender) snapshot() []Notification {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Notification(nil), s.pushed...)
}

func TestLocalBus_PublishDeliversToSender(t *testing.T) {
	t.Parallel()

	sender := &recordingSender{}
	bus := NewLocalBus(slog.New(slog.NewTextHandler(io.Discard, nil)), sender)

	err := bus.Publish(context.Background(), Notification{
		Type:   "level_up",
		UserID: "agent-1",
		Title:  "Level up",
	})
	if err != nil {
		t.Fatalf("Publish: %v", err)
	}

	got := sender.snapshot()
	if len(got) != 1 {
		t.Fatalf("pushed = %d notifications, want 1", len(got))
	}
	if got[0].Type != "level_up" || got[0].UserID != "agent-1" {
		t.Fatalf("pushed = %+v", got[0])
	}
	if got[0].CreatedAt.IsZero() {
		t.Fatalf("CreatedAt not stamped")
	}
}

func TestLocalBus_EmptyUserIsNoop(t *testing.T) {
	t.Parallel()

	sender := &recordingSender{}
	bus := NewLocalBus(slog.New(slog.NewTextHandler(io.Discard, nil)), sender)

	if err := bus.Publish(context.Background(), Notification{Type: "level_up"}); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if got := sender.snapshot(); len(got) != 0 {
		t.Fatalf("pushed = %+v, want none", got)
	}
}

func TestLocalBus_CanceledContext(t *testing.T) {
	t.Parallel()

	sender := &recordingSender{}
	bus := NewLocalBus(slog.New(slog.NewTextHandler(io.Discard, nil)), sender)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := bus.Publish(ctx, Notification{Type: "level_up", UserID: "agent-1"}); err == nil {
		t.Fatalf("expected context error")
	}
	if got := sender.snapshot(); len(got) != 0 {
		t.Fatalf("pushed after cancel = %+v", got)
	}
}

// NATS round-trip is enabled when GCF_NATS_URL is set.
func TestNATSBus_PublishRoundTrip(t *testing.T) {
	url := strings.TrimSpace(os.Getenv("GCF_NATS_URL"))
	if url == "" {
		t.Skip("integration test skipped: GCF_NATS_URL is not set")
	}

	sender := &recordingSender{}
	log := slog.New(slog.NewTextHandler(io.Discard, nil))

	bus, err := NewNATSBus(log, url, sender)
	if err != nil {
		t.Fatalf("NewNATSBus: %v", err)
	}
	defer func() { _ = bus.Close() }()

	err = bus.Publish(context.Background(), Notification{
		Type:   "achievement_unlocked",
		UserID: "agent-1",
		Body:   "streak_7",
	})
	if err != nil {
		t.Fatalf("Publish: %v", err)
	}

	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if got := sender.snapshot(); len(got) == 1 {
			if got[0].UserID != "agent-1" || got[0].Body != "streak_7" {
				t.Fatalf("delivered = %+v", got[0])
			}
			return
		}
		time.Sleep(50 * time.Millisecond)
	}
	t.Fatalf("notification not delivered within deadline")
}
