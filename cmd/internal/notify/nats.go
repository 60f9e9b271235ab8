package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
)

const (
	// SubjectPrefix is the subject family for user notifications.
	// Per-user subjects keep fan-in cheap: notify.user.<id>.
	SubjectPrefix = "notify.user."

	natsConnectWait = time.Second
	natsMaxReconn   = 10
)

// NATSBus publishes notifications over core NATS. Core pub/sub is
// at-most-once, which matches the fan-out layer's best-effort delivery
// contract: an offline user simply misses the push and sees the event
// on the next ordinary read.
type NATSBus struct {
	log *slog.Logger
	nc  *nats.Conn
	sub *nats.Subscription
}

// NewNATSBus connects to the broker and starts the subscriber that
// bridges notification subjects back into the direct channel. Every
// server instance subscribes, so whichever instance holds the user's
// socket delivers.
func NewNATSBus(log *slog.Logger, url string, sender DirectSender) (*NATSBus, error) {
	nc, err := nats.Connect(url,
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(natsMaxReconn),
		nats.ReconnectWait(natsConnectWait),
	)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}

	b := &NATSBus{log: log, nc: nc}

	sub, err := nc.Subscribe(SubjectPrefix+">", func(msg *nats.Msg) {
		var n Notification
		if err := json.Unmarshal(msg.Data, &n); err != nil {
			log.Error("notify.decode.fail", "subject", msg.Subject, "err", err)
			return
		}
		if n.UserID == "" {
			return
		}
		sender.Notify(n.UserID, n)
	})
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("nats subscribe: %w", err)
	}
	b.sub = sub

	log.Info("notify.nats.connected", "url", url)
	return b, nil
}

// Publish sends the notification to the user's subject.
func (b *NATSBus) Publish(ctx context.Context, n Notification) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if n.UserID == "" {
		return nil
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now().UTC()
	}

	data, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}
	return b.nc.Publish(SubjectPrefix+n.UserID, data)
}

// Close drains the subscription and closes the connection.
func (b *NATSBus) Close() error {
	if b.sub != nil {
		_ = b.sub.Unsubscribe()
	}
	if b.nc != nil {
		b.nc.Close()
	}
	return nil
}
