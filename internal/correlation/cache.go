// Package correlation implements the short-TTL identifier map that ties an
// asynchronous binary-gateway error response back to the (token, user) pair
// that caused it. Entries are written once per token per send, consumed at
// most once by the response listener, and otherwise expire on their own.
package correlation

import (
	"context"
	"fmt"
	"time"
)

// Entry is the value stored against one message identifier.
type Entry struct {
	Token  string `json:"token"`   // platform-native hex form
	UserID string `json:"user_id"` // owning user URN
}

// Cache is the correlation store. It only needs to survive the round-trip
// time to the upstream gateway's error channel, not process restarts.
type Cache interface {
	Put(ctx context.Context, identifier uint32, entry Entry, ttl time.Duration) error
	// Get reports whether the identifier is known; an expired or unknown
	// identifier is (Entry{}, false, nil), not an error.
	Get(ctx context.Context, identifier uint32) (Entry, bool, error)
	Delete(ctx context.Context, identifier uint32) error
}

// Key is the cache key for one message identifier. The format appears in
// operator-facing log lines, so it is part of the observability contract.
func Key(identifier uint32) string {
	return fmt.Sprintf("apns:%d", identifier)
}
