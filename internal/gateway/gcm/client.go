// Package gcm implements the Google JSON push gateway client: one
// synchronous batch send per call, reconciling the three-way result
// (success / canonical / errors) into token store mutations.
package gcm

import (
	"context"
	"fmt"
	"log/slog"

	urn "github.com/tinywideclouds/go-platform/pkg/net/v1"

	"github.com/tinywideclouds/go-push-dispatch/internal/reconcile"
	"github.com/tinywideclouds/go-push-dispatch/pkg/push"
)

// reasonNotRegistered is the only error reason treated as a permanent
// failure on this channel.
const reasonNotRegistered = "NotRegistered"

type Client struct {
	gateway push.JSONGateway // nil means no API credential configured
	store   push.TokenStore
	logger  *slog.Logger
}

func NewClient(gateway push.JSONGateway, store push.TokenStore, logger *slog.Logger) *Client {
	return &Client{
		gateway: gateway,
		store:   store,
		logger:  logger.With("component", "GCMClient"),
	}
}

// Send pushes the payload to every GCM registration the user has. Nothing
// is reported back to the caller: configuration absence and delivery
// failures are logged, and permanent failures repair the store in place.
func (c *Client) Send(ctx context.Context, user urn.URN, data map[string]string) {
	if c.gateway == nil {
		c.logger.Error("Attempting to send a GCM push notification, but no API key was configured")
		return
	}

	devices, err := c.store.TokensFor(ctx, user, push.KindGCM)
	if err != nil {
		c.logger.Error("GCM: Token lookup failed", "user", user.String(), "err", err)
		return
	}
	if len(devices) == 0 {
		return
	}
	tokens := make([]string, 0, len(devices))
	for _, d := range devices {
		tokens = append(tokens, d.Token)
	}

	res, err := c.gateway.Send(ctx, tokens, data)
	if err != nil {
		// Transient: retry is the caller's business, out of band.
		c.logger.Warn(fmt.Sprintf("GCM: Send failed: %v", err))
		return
	}
	if res == nil {
		return
	}

	// The three maps are independent; processing one must not affect the
	// classification of another in the same response.
	c.processSuccess(res.Success)
	c.processCanonical(ctx, res.Canonical)
	c.processErrors(ctx, res.Errors)
}

func (c *Client) processSuccess(success map[string]int) {
	for token, index := range success {
		c.logger.Info(fmt.Sprintf("GCM: Sent %s as %d", token, index))
	}
}

func (c *Client) processCanonical(ctx context.Context, canonical map[string]string) {
	for oldToken, newToken := range canonical {
		if oldToken == newToken {
			c.logger.Warn(fmt.Sprintf("GCM: Got canonical ref but it already matches our ID %s!", oldToken))
			continue
		}
		action, err := reconcile.Apply(ctx, c.store, push.Outcome{
			Kind:      push.OutcomeCanonicalRemap,
			TokenKind: push.KindGCM,
			Token:     oldToken,
			NewToken:  newToken,
		})
		if err != nil {
			c.logger.Error("GCM: Canonical remap failed", "old", oldToken, "new", newToken, "err", err)
			continue
		}
		switch action {
		case reconcile.ActionReplaced:
			c.logger.Warn(fmt.Sprintf("GCM: Got canonical ref %s replacing %s but new ID not registered! Updating.", newToken, oldToken))
		case reconcile.ActionDroppedOld:
			c.logger.Info(fmt.Sprintf("GCM: Got canonical ref %s, dropping %s", newToken, oldToken))
		}
	}
}

func (c *Client) processErrors(ctx context.Context, errMap map[string][]string) {
	for reason, tokens := range errMap {
		for _, token := range tokens {
			if reason != reasonNotRegistered {
				c.logger.Warn(fmt.Sprintf("GCM: Delivery to %s failed: %s", token, reason))
				continue
			}
			c.logger.Info(fmt.Sprintf("GCM: Removing %s", token))
			_, err := reconcile.Apply(ctx, c.store, push.Outcome{
				Kind:      push.OutcomePermanentFailure,
				TokenKind: push.KindGCM,
				Token:     token,
			})
			if err != nil {
				c.logger.Error("GCM: Failed to remove unregistered token", "token", token, "err", err)
			}
		}
	}
}
