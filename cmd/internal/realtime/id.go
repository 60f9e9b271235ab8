package realtime

import (
	"crypto/rand"
	"time"

	"github.com/oklog/ulid/v2"
)

// NewMessageID returns a ULID used as a message id.
// ULIDs are lexicographically sortable, which keeps message ids aligned
// with persistence-assigned creation order in logs and queries.
func NewMessageID(now time.Time) (string, error) {
	return newULID(now)
}

// NewSessionID returns a ULID used as a websocket session id.
func NewSessionID(now time.Time) (string, error) {
	return newULID(now)
}

func newULID(now time.Time) (string, error) {
	if now.IsZero() {
		now = time.Now().UTC()
	}

	id, err := ulid.New(ulid.Timestamp(now), rand.Reader)
	if err != nil {
		return "", err
	}
	return id.String(), nil
}
