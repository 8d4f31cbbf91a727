// Package reconcile applies normalized delivery outcomes to the token
// store. Both gateway clients and the response listener funnel their
// upstream-specific results through here so the store mutation policy is
// written once.
package reconcile

import (
	"context"
	"fmt"

	urn "github.com/tinywideclouds/go-platform/pkg/net/v1"

	"github.com/tinywideclouds/go-push-dispatch/pkg/push"
)

// Action reports which store mutation an outcome produced, so callers can
// log the branch taken in their own vocabulary.
type Action int

const (
	ActionNone Action = iota
	// ActionRemoved: a permanent failure deleted the registration(s).
	ActionRemoved
	// ActionReplaced: a canonical remap rebound the old token to a
	// previously unseen id.
	ActionReplaced
	// ActionDroppedOld: a canonical remap pointed at an id that is already
	// registered, so only the old token was deleted.
	ActionDroppedOld
)

// Apply mutates the store for one outcome. All removal paths are
// idempotent; applying the same outcome twice leaves the store unchanged.
func Apply(ctx context.Context, store push.TokenStore, o push.Outcome) (Action, error) {
	switch o.Kind {
	case push.OutcomeDelivered, push.OutcomeTransientFailure:
		return ActionNone, nil

	case push.OutcomePermanentFailure:
		if o.UserID != "" {
			user, err := urn.Parse(o.UserID)
			if err != nil {
				return ActionNone, fmt.Errorf("parse outcome user %q: %w", o.UserID, err)
			}
			if err := store.Remove(ctx, user, o.Token, o.TokenKind); err != nil {
				return ActionNone, err
			}
			return ActionRemoved, nil
		}
		if err := store.RemoveAllMatching(ctx, o.Token, o.TokenKind); err != nil {
			return ActionNone, err
		}
		return ActionRemoved, nil

	case push.OutcomeCanonicalRemap:
		if o.Token == o.NewToken {
			return ActionNone, nil
		}
		existing, err := store.FindAllMatching(ctx, o.NewToken, o.TokenKind)
		if err != nil {
			return ActionNone, err
		}
		if len(existing) == 0 {
			// The replacement id is not registered; repair the store to
			// match upstream truth.
			if err := store.Replace(ctx, o.Token, o.NewToken, o.TokenKind); err != nil {
				return ActionNone, err
			}
			return ActionReplaced, nil
		}
		if err := store.RemoveAllMatching(ctx, o.Token, o.TokenKind); err != nil {
			return ActionNone, err
		}
		return ActionDroppedOld, nil
	}

	return ActionNone, fmt.Errorf("unknown outcome kind %d", o.Kind)
}
