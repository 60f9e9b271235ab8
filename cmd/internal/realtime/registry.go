package realtime

import (
	"log/slog"
	"sync"
)

// Registry holds the live mapping from user identity to its active
// socket and the set of conversations that user is subscribed to.
//
// Concurrency guarantees:
// - All operations are safe under concurrent connection handlers.
// - At most one entry exists per user identity; Register replaces.
// - SubscribedTo recomputes its result on each call (no cached index);
//   membership sets are small and fan-out frequency is low relative to
//   message volume in this domain.
type Registry struct {
	log *slog.Logger

	mu      sync.RWMutex
	entries map[string]*registryEntry
}

type registryEntry struct {
	client *Client
	convs  map[string]struct{}
}

// NewRegistry constructs an empty Registry.
func NewRegistry(log *slog.Logger) *Registry {
	return &Registry{
		log:     log,
		entries: make(map[string]*registryEntry),
	}
}

// Register associates userID with client and the given conversation set,
// replacing any existing entry for userID. Overwriting is the defined
// behavior for duplicate logins: the latest connection wins. The
// displaced client, if any, is returned so the caller can close it; it
// never receives further broadcasts through this registry.
func (r *Registry) Register(userID string, client *Client, conversationIDs []string) *Client {
	if userID == "" || client == nil {
		return nil
	}

	convs := make(map[string]struct{}, len(conversationIDs))
	for _, id := range conversationIDs {
		if id != "" {
			convs[id] = struct{}{}
		}
	}

	r.mu.Lock()
	prev := r.entries[userID]
	r.entries[userID] = &registryEntry{client: client, convs: convs}
	r.mu.Unlock()

	r.log.Info("registry.register", "user_id", userID, "session_id", client.SessionID, "conversations", len(convs))

	if prev != nil && prev.client != client {
		return prev.client
	}
	return nil
}

// AddConversation adds conversationID to userID's subscription set.
// It is a no-op when userID has no entry (the command arrived before or
// without authentication).
func (r *Registry) AddConversation(userID, conversationID string) {
	if userID == "" || conversationID == "" {
		return
	}

	r.mu.Lock()
	if e, ok := r.entries[userID]; ok {
		e.convs[conversationID] = struct{}{}
	}
	r.mu.Unlock()
}

// Deregister removes the entry for userID. Idempotent: removing an
// absent entry is a no-op.
func (r *Registry) Deregister(userID string) {
	if userID == "" {
		return
	}

	r.mu.Lock()
	delete(r.entries, userID)
	r.mu.Unlock()

	r.log.Info("registry.deregister", "user_id", userID)
}

// DeregisterClient removes the entry for userID only when it still
// points at this exact client. A newer login for the same user must not
// be deregistered by an older socket's close event. It reports whether
// an entry was removed.
func (r *Registry) DeregisterClient(userID string, client *Client) bool {
	if userID == "" || client == nil {
		return false
	}

	r.mu.Lock()
	e, ok := r.entries[userID]
	if ok && e.client == client {
		delete(r.entries, userID)
	} else {
		ok = false
	}
	r.mu.Unlock()

	if ok {
		r.log.Info("registry.deregister", "user_id", userID, "session_id", client.SessionID)
	}
	return ok
}

// SubscribedTo returns a snapshot of the clients whose conversation set
// contains conversationID.
func (r *Registry) SubscribedTo(conversationID string) []*Client {
	if conversationID == "" {
		return nil
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*Client
	for _, e := range r.entries {
		if _, ok := e.convs[conversationID]; ok {
			out = append(out, e.client)
		}
	}
	return out
}

// Lookup returns the single live client for userID, if any.
func (r *Registry) Lookup(userID string) (*Client, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.entries[userID]
	if !ok {
		return nil, false
	}
	return e.client, true
}

// Len reports the number of live entries. Used by metrics.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}
