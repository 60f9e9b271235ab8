package realtime

import (
	"encoding/json"
	"log/slog"

	v1 "github.com/guy4carbs/goldcoastfinancial-sub000/contracts/chat/v1"
)

// Broadcaster is the fan-out side of the registry: it pushes persisted
// events to every currently connected interested party.
//
// Delivery is at-most-once and best-effort by contract: a participant
// who is offline at broadcast time never receives the payload over this
// channel (they see it on the next full fetch through the ordinary read
// path). There is no queueing, no retry, and no delivery guarantee.
type Broadcaster struct {
	log      *slog.Logger
	registry *Registry
	metrics  *Metrics
}

// NewBroadcaster constructs a Broadcaster over the given registry.
func NewBroadcaster(log *slog.Logger, registry *Registry, metrics *Metrics) *Broadcaster {
	return &Broadcaster{log: log, registry: registry, metrics: metrics}
}

// Broadcast serializes v and pushes it to every registry entry
// subscribed to conversationID whose socket is still open. Closed or
// backpressured sockets are silently skipped; one copy per recipient.
func (b *Broadcaster) Broadcast(conversationID string, v any) {
	payload, err := v1.Marshal(v)
	if err != nil {
		b.log.Error("broadcast.marshal.fail", "conversation_id", conversationID, "err", err)
		return
	}

	for _, c := range b.registry.SubscribedTo(conversationID) {
		b.push(c, payload)
	}
}

// Notify pushes a producer-defined payload to the single live client for
// userID, if present and open. Silent no-op when the user is offline.
// This path is used for events outside any conversation, decoupling
// server-side producers from the chat-specific broadcast path.
func (b *Broadcaster) Notify(userID string, v any) {
	c, ok := b.registry.Lookup(userID)
	if !ok {
		return
	}

	payload, err := v1.Marshal(v)
	if err != nil {
		b.log.Error("notify.marshal.fail", "user_id", userID, "err", err)
		return
	}
	b.push(c, payload)
}

// push enqueues without blocking. Drop rather than stall the whole
// fan-out when one recipient's queue is full.
func (b *Broadcaster) push(c *Client, payload json.RawMessage) {
	if c == nil || c.Closed() {
		b.metrics.BroadcastDropped()
		return
	}

	select {
	case c.Send <- payload:
		b.metrics.BroadcastDelivered()
	default:
		b.metrics.BroadcastDropped()
	}
}
