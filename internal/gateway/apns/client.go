// Package apns implements the Apple binary push gateway client: frame
// building with per-message correlation identifiers, the asynchronous
// error-response listener, and the feedback sweeper.
package apns

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"time"

	"github.com/sideshow/apns2/payload"
	urn "github.com/tinywideclouds/go-platform/pkg/net/v1"

	"github.com/tinywideclouds/go-push-dispatch/internal/correlation"
)

const (
	// notificationExpiry is how long the gateway may hold an undelivered
	// notification before discarding it.
	notificationExpiry = 24 * time.Hour

	// defaultEntryTTL bounds a correlation entry's life when no TTL is
	// configured. It only has to outlive the round trip to the gateway's
	// error channel, so minutes are plenty; the exact value is tuning,
	// not correctness.
	defaultEntryTTL = 15 * time.Minute

	sendPriority = 10
)

// Client builds and submits binary push batches. The send path is
// fire-and-forget: outcomes, when the gateway reports any, arrive later on
// the Listener.
type Client struct {
	cache    correlation.Cache
	conn     GatewayConnection // primary
	fallback GatewayConnection // secondary, used when primary is unset
	logger   *slog.Logger

	// newIdentifier draws the per-message correlation id. Identifiers come
	// from the full uint32 space; collision probability within one TTL
	// window is treated as negligible rather than handled.
	newIdentifier func() uint32
	entryTTL      time.Duration
}

// NewClient builds a client writing correlation entries with the given
// TTL; a non-positive TTL falls back to defaultEntryTTL.
func NewClient(cache correlation.Cache, conn, fallback GatewayConnection, entryTTL time.Duration, logger *slog.Logger) *Client {
	if entryTTL <= 0 {
		entryTTL = defaultEntryTTL
	}
	return &Client{
		cache:         cache,
		conn:          conn,
		fallback:      fallback,
		logger:        logger.With("component", "APNSClient"),
		newIdentifier: rand.Uint32,
		entryTTL:      entryTTL,
	}
}

// Message is one built batch, ready for submission to the gateway.
type Message struct {
	user  urn.URN
	frame *Frame
}

// Send builds a frame for the user's tokens (platform-native hex form) and
// submits it. Nothing is reported back to the caller: delivery is best
// effort and failures surface through the Listener or the logs.
func (c *Client) Send(ctx context.Context, user urn.URN, tokens []string, alert string) {
	msg, err := c.NewMessage(ctx, user, tokens, alert)
	if err != nil {
		c.logger.Error("APNS: Failed to build message", "user", user.String(), "err", err)
		return
	}
	if msg.frame.Len() == 0 {
		return
	}
	c.push(msg)
}

// NewMessage assigns each token a fresh random identifier, registers the
// identifier in the correlation cache, and appends the notification to the
// outgoing frame. Tokens whose correlation entry cannot be written are
// skipped: an uncorrelatable notification could never be reconciled.
func (c *Client) NewMessage(ctx context.Context, user urn.URN, tokens []string, alert string) (*Message, error) {
	body, err := json.Marshal(payload.NewPayload().Alert(alert))
	if err != nil {
		return nil, fmt.Errorf("marshal alert payload: %w", err)
	}

	expiry := uint32(time.Now().Add(notificationExpiry).Unix())
	msg := &Message{user: user, frame: &Frame{}}
	for _, token := range tokens {
		identifier := c.newIdentifier()
		entry := correlation.Entry{Token: token, UserID: user.String()}
		if err := c.cache.Put(ctx, identifier, entry, c.entryTTL); err != nil {
			c.logger.Error("APNS: Failed to register correlation entry", "identifier", identifier, "err", err)
			continue
		}
		if err := msg.frame.AddItem(token, body, identifier, expiry, sendPriority); err != nil {
			c.logger.Error("APNS: Failed to add notification to frame", "token", token, "err", err)
		}
	}
	return msg, nil
}

// push submits the frame. If the primary connection is unset fall back to
// the secondary; if both are unset this is a configuration absence, logged
// and skipped without failing the caller.
func (c *Client) push(msg *Message) {
	conn := c.conn
	if conn == nil {
		conn = c.fallback
	}
	if conn == nil {
		c.logger.Error("Attempting to send an APNS push notification, but no connection was configured")
		return
	}
	if err := conn.SendNotificationMultiple(msg.frame); err != nil {
		c.logger.Error("APNS: Failed to submit frame to gateway", "user", msg.user.String(), "err", err)
	}
}
