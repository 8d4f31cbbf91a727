// Package push contains the domain model and contracts for the push
// notification dispatch subsystem: device tokens, the token store, the
// upstream gateway capabilities, and the normalized delivery outcome.
package push

import (
	"context"
	"time"

	urn "github.com/tinywideclouds/go-platform/pkg/net/v1"
)

// Kind identifies the upstream platform a device token belongs to.
type Kind string

const (
	// KindAPNS tokens are delivered through the Apple binary push gateway.
	KindAPNS Kind = "apns"
	// KindGCM tokens are delivered through the Google JSON push gateway.
	KindGCM Kind = "gcm"
)

// DeviceToken is one registered device/app pairing. The Token field holds
// the normalized (base64) form; the platform-native hex form only appears
// at the send boundary.
type DeviceToken struct {
	Token       string
	Kind        Kind
	User        urn.URN
	AppID       string // required for APNs, empty for GCM
	LastUpdated time.Time
}

// TokenStore is the durable mapping of (user, token, kind) registrations.
//
// All removals are idempotent: deleting a registration that is already gone
// is a no-op, because the response listener, the feedback sweeper and the
// JSON error map can each trigger the same logical removal within
// overlapping time windows.
type TokenStore interface {
	// Register adds or refreshes a registration (upsert on (user, token, kind)).
	Register(ctx context.Context, t DeviceToken) error

	// TokensFor returns all live registrations for a user on one platform,
	// oldest first. An empty slice means no devices.
	TokensFor(ctx context.Context, user urn.URN, kind Kind) ([]DeviceToken, error)

	// Remove deletes one registration selected by (user, token, kind).
	Remove(ctx context.Context, user urn.URN, token string, kind Kind) error

	// FindAllMatching returns every registration holding the given token,
	// regardless of owning user.
	FindAllMatching(ctx context.Context, token string, kind Kind) ([]DeviceToken, error)

	// RemoveAllMatching deletes every registration holding the given token,
	// regardless of owning user.
	RemoveAllMatching(ctx context.Context, token string, kind Kind) error

	// Replace atomically rebinds every registration of oldToken to newToken,
	// preserving the owning user and app id.
	Replace(ctx context.Context, oldToken, newToken string, kind Kind) error
}

// FeedbackItem is one (token, timestamp) pair reported by the binary
// gateway's feedback channel. Token is in platform-native hex form.
type FeedbackItem struct {
	Token      string
	ReportedAt time.Time
}

// Result is the structured response of one JSON gateway batch send. All
// three maps are optional and independently present; they must be processed
// independently of each other.
type Result struct {
	// Success maps a delivered token to its index in the batch.
	Success map[string]int
	// Canonical maps an old token to the replacement id reported upstream.
	Canonical map[string]string
	// Errors maps an upstream reason string to the tokens it applies to.
	Errors map[string][]string
}

// JSONGateway is the upstream JSON push capability: a single synchronous
// round trip per batch, no internal retry.
type JSONGateway interface {
	Send(ctx context.Context, tokens []string, data map[string]string) (*Result, error)
}

// OutcomeKind classifies one per-token delivery outcome after the two
// incompatible upstream result shapes have been normalized.
type OutcomeKind int

const (
	OutcomeDelivered OutcomeKind = iota
	OutcomeCanonicalRemap
	OutcomePermanentFailure
	OutcomeTransientFailure
)

// Outcome is the normalized per-token delivery outcome shared by both
// gateway clients. UserID (a URN string) scopes the outcome to a single
// registration; when empty the token value alone is the selector.
type Outcome struct {
	Kind      OutcomeKind
	TokenKind Kind
	UserID    string
	Token     string
	// NewToken is the replacement id for OutcomeCanonicalRemap.
	NewToken string
}
