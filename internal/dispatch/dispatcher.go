// Package dispatch is the single entry point surrounding code calls to
// notify a user: it looks up the user's live tokens per platform and
// delegates to the matching gateway client. Push delivery is best effort;
// no failure here ever propagates to the enclosing operation.
package dispatch

import (
	"context"
	"log/slog"

	"github.com/google/uuid"
	urn "github.com/tinywideclouds/go-platform/pkg/net/v1"

	"github.com/tinywideclouds/go-push-dispatch/pkg/push"
)

// AppleClient sends one binary push batch; tokens are platform-native hex.
type AppleClient interface {
	Send(ctx context.Context, user urn.URN, tokens []string, alert string)
}

// AndroidClient sends one JSON push batch; it fetches the user's tokens
// itself.
type AndroidClient interface {
	Send(ctx context.Context, user urn.URN, data map[string]string)
}

// FeedbackSweeper drains the binary gateway's stale-token reports once.
type FeedbackSweeper interface {
	Run(ctx context.Context) error
}

type Dispatcher struct {
	store   push.TokenStore
	apple   AppleClient
	android AndroidClient
	sweeper FeedbackSweeper
	logger  *slog.Logger
}

func New(store push.TokenStore, apple AppleClient, android AndroidClient, sweeper FeedbackSweeper, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{
		store:   store,
		apple:   apple,
		android: android,
		sweeper: sweeper,
		logger:  logger.With("component", "Dispatcher"),
	}
}

// SendApplePushNotification delivers an alert to every APNs device the
// user has registered.
func (d *Dispatcher) SendApplePushNotification(ctx context.Context, user urn.URN, alert string) {
	log := d.logger.With("dispatch_id", uuid.NewString(), "user", user.String())

	devices, err := d.store.TokensFor(ctx, user, push.KindAPNS)
	if err != nil {
		log.Error("APNS: Token lookup failed", "err", err)
		return
	}
	if len(devices) == 0 {
		return
	}

	// The store holds the normalized form; the wire wants hex.
	tokens := make([]string, 0, len(devices))
	for _, device := range devices {
		hexToken, err := push.Base64ToHex(device.Token)
		if err != nil {
			log.Warn("APNS: Skipping malformed stored token", "err", err)
			continue
		}
		tokens = append(tokens, hexToken)
	}
	if len(tokens) == 0 {
		return
	}

	d.apple.Send(ctx, user, tokens, alert)
	log.Info("APNS: Dispatched", "tokens", len(tokens))
}

// SendAndroidPushNotification delivers a data payload to every GCM device
// the user has registered.
func (d *Dispatcher) SendAndroidPushNotification(ctx context.Context, user urn.URN, data map[string]string) {
	log := d.logger.With("dispatch_id", uuid.NewString(), "user", user.String())
	d.android.Send(ctx, user, data)
	log.Info("GCM: Dispatched")
}

// RunFeedbackSweep asks the binary gateway for its stale-token feedback
// and prunes the store accordingly.
func (d *Dispatcher) RunFeedbackSweep(ctx context.Context) error {
	return d.sweeper.Run(ctx)
}
