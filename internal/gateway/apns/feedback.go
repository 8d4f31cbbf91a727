package apns

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/tinywideclouds/go-push-dispatch/pkg/push"
)

// Sweeper prunes tokens the platform has reported stale. It is invoked by
// an external scheduler; each run drains the feedback channel once.
type Sweeper struct {
	feedback FeedbackConnection
	store    push.TokenStore
	logger   *slog.Logger
}

func NewSweeper(feedback FeedbackConnection, store push.TokenStore, logger *slog.Logger) *Sweeper {
	return &Sweeper{
		feedback: feedback,
		store:    store,
		logger:   logger.With("component", "APNSSweeper"),
	}
}

// Run consumes one batch of (token, reportedAt) pairs. A report only
// invalidates registrations whose last-updated timestamp is strictly older
// than the report: a newer timestamp means the device re-registered after
// the staleness was observed upstream, so the token is kept. The token
// value is the selector, regardless of which user holds it.
func (s *Sweeper) Run(ctx context.Context) error {
	if s.feedback == nil {
		s.logger.Error("Attempting to run the APNS feedback sweep, but no feedback connection was configured")
		return nil
	}
	items, err := s.feedback.Items(ctx)
	if err != nil {
		return fmt.Errorf("apns feedback fetch: %w", err)
	}

	for _, item := range items {
		b64Token, err := push.HexToBase64(item.Token)
		if err != nil {
			s.logger.Warn("APNS: Feedback service reported malformed token", "err", err)
			continue
		}
		matches, err := s.store.FindAllMatching(ctx, b64Token, push.KindAPNS)
		if err != nil {
			s.logger.Error("APNS: Token lookup failed during feedback sweep", "token", b64Token, "err", err)
			continue
		}
		for _, rec := range matches {
			if !rec.LastUpdated.Before(item.ReportedAt) {
				continue
			}
			if err := s.store.Remove(ctx, rec.User, rec.Token, rec.Kind); err != nil {
				s.logger.Error("APNS: Failed to remove stale token", "token", b64Token, "err", err)
				continue
			}
			s.logger.Info(fmt.Sprintf("APNS: Found token %s reported stale by feedback service, removing", b64Token))
		}
	}
	return nil
}
