package apns

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/tinywideclouds/go-push-dispatch/internal/correlation"
	"github.com/tinywideclouds/go-push-dispatch/internal/reconcile"
	"github.com/tinywideclouds/go-push-dispatch/pkg/push"
)

// statusReasons is the closed table of binary-interface status codes.
var statusReasons = map[uint8]string{
	0:   "No errors encountered",
	1:   "Processing error",
	2:   "Missing device token",
	3:   "Missing topic",
	4:   "Missing payload",
	5:   "Invalid token size",
	6:   "Invalid topic size",
	7:   "Invalid payload size",
	8:   "Invalid token",
	10:  "Shutdown",
	255: "Unknown error",
}

// statusUnregistered is the only status requiring a store mutation: the
// device token is no longer valid for the app.
const statusUnregistered = 8

// Listener resolves asynchronous gateway error responses back to the
// device that caused them. It runs on the connection's read-loop
// goroutine, arbitrarily later than the originating send.
type Listener struct {
	cache  correlation.Cache
	store  push.TokenStore
	logger *slog.Logger
}

func NewListener(cache correlation.Cache, store push.TokenStore, logger *slog.Logger) *Listener {
	return &Listener{
		cache:  cache,
		store:  store,
		logger: logger.With("component", "APNSListener"),
	}
}

// HandleError processes one (identifier, status) error response. A missing
// identifier is benign: the entry may simply have expired, and success is
// silent in this protocol anyway.
func (l *Listener) HandleError(ctx context.Context, identifier uint32, status uint8) {
	entry, ok, err := l.cache.Get(ctx, identifier)
	if err != nil {
		l.logger.Error("APNS: Correlation cache lookup failed", "identifier", identifier, "err", err)
		return
	}
	if !ok {
		// "doesn't not exist" [sic]: downstream log tooling matches on this
		// exact text, so the double negative stays.
		l.logger.Warn(fmt.Sprintf("APNs key, %s, doesn't not exist.", correlation.Key(identifier)))
		return
	}

	// Single consumption: a duplicate response for the same identifier
	// lands in the miss path above.
	if err := l.cache.Delete(ctx, identifier); err != nil {
		l.logger.Error("APNS: Correlation cache delete failed", "identifier", identifier, "err", err)
	}

	b64Token, err := push.HexToBase64(entry.Token)
	if err != nil {
		l.logger.Error("APNS: Correlation entry holds malformed token", "identifier", identifier, "err", err)
		return
	}

	reason, known := statusReasons[status]
	if !known {
		reason = "Unknown status"
	}
	l.logger.Warn(fmt.Sprintf("APNS: Failed to deliver APNS notification to %s, reason: %s", b64Token, reason))

	if status != statusUnregistered {
		return
	}

	_, err = reconcile.Apply(ctx, l.store, push.Outcome{
		Kind:      push.OutcomePermanentFailure,
		TokenKind: push.KindAPNS,
		UserID:    entry.UserID,
		Token:     b64Token,
	})
	if err != nil {
		l.logger.Error("APNS: Failed to remove unregistered token", "token", b64Token, "err", err)
		return
	}
	l.logger.Warn(fmt.Sprintf("APNS: Removing token %s from database due to above failure", b64Token))
}
