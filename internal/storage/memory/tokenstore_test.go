package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	urn "github.com/tinywideclouds/go-platform/pkg/net/v1"

	"github.com/tinywideclouds/go-push-dispatch/pkg/push"
)

func mustURN(t *testing.T, s string) urn.URN {
	t.Helper()
	u, err := urn.Parse(s)
	require.NoError(t, err)
	return u
}

func TestStore(t *testing.T) {
	ctx := context.Background()

	t.Run("Register and list by user and platform", func(t *testing.T) {
		store := NewStore()
		hamlet := mustURN(t, "urn:sm:user:hamlet")
		othello := mustURN(t, "urn:sm:user:othello")

		require.NoError(t, store.Register(ctx, push.DeviceToken{Token: "qqo=", Kind: push.KindAPNS, User: hamlet}))
		require.NoError(t, store.Register(ctx, push.DeviceToken{Token: "ERE=", Kind: push.KindGCM, User: hamlet}))
		require.NoError(t, store.Register(ctx, push.DeviceToken{Token: "IiI=", Kind: push.KindGCM, User: othello}))

		apns, err := store.TokensFor(ctx, hamlet, push.KindAPNS)
		require.NoError(t, err)
		require.Len(t, apns, 1)
		assert.Equal(t, "qqo=", apns[0].Token)

		gcm, err := store.TokensFor(ctx, hamlet, push.KindGCM)
		require.NoError(t, err)
		require.Len(t, gcm, 1)
		assert.Equal(t, "ERE=", gcm[0].Token)
	})

	t.Run("Re-registering the same token is an upsert", func(t *testing.T) {
		store := NewStore()
		hamlet := mustURN(t, "urn:sm:user:hamlet")

		require.NoError(t, store.Register(ctx, push.DeviceToken{Token: "qqo=", Kind: push.KindAPNS, User: hamlet, AppID: "org.example.app"}))
		require.NoError(t, store.Register(ctx, push.DeviceToken{Token: "qqo=", Kind: push.KindAPNS, User: hamlet, AppID: "org.example.other"}))

		tokens, err := store.TokensFor(ctx, hamlet, push.KindAPNS)
		require.NoError(t, err)
		require.Len(t, tokens, 1)
		assert.Equal(t, "org.example.other", tokens[0].AppID)
		assert.False(t, tokens[0].LastUpdated.IsZero())
	})

	t.Run("Remove is idempotent", func(t *testing.T) {
		store := NewStore()
		hamlet := mustURN(t, "urn:sm:user:hamlet")

		require.NoError(t, store.Register(ctx, push.DeviceToken{Token: "qqo=", Kind: push.KindAPNS, User: hamlet}))
		require.NoError(t, store.Remove(ctx, hamlet, "qqo=", push.KindAPNS))
		require.NoError(t, store.Remove(ctx, hamlet, "qqo=", push.KindAPNS))

		tokens, err := store.TokensFor(ctx, hamlet, push.KindAPNS)
		require.NoError(t, err)
		assert.Empty(t, tokens)
	})

	t.Run("FindAllMatching spans users", func(t *testing.T) {
		store := NewStore()
		hamlet := mustURN(t, "urn:sm:user:hamlet")
		othello := mustURN(t, "urn:sm:user:othello")

		require.NoError(t, store.Register(ctx, push.DeviceToken{Token: "ERE=", Kind: push.KindGCM, User: hamlet}))
		require.NoError(t, store.Register(ctx, push.DeviceToken{Token: "ERE=", Kind: push.KindGCM, User: othello}))
		require.NoError(t, store.Register(ctx, push.DeviceToken{Token: "ERE=", Kind: push.KindAPNS, User: hamlet}))

		matches, err := store.FindAllMatching(ctx, "ERE=", push.KindGCM)
		require.NoError(t, err)
		assert.Len(t, matches, 2)
	})

	t.Run("RemoveAllMatching only touches the given platform", func(t *testing.T) {
		store := NewStore()
		hamlet := mustURN(t, "urn:sm:user:hamlet")

		require.NoError(t, store.Register(ctx, push.DeviceToken{Token: "ERE=", Kind: push.KindGCM, User: hamlet}))
		require.NoError(t, store.Register(ctx, push.DeviceToken{Token: "ERE=", Kind: push.KindAPNS, User: hamlet}))
		require.NoError(t, store.RemoveAllMatching(ctx, "ERE=", push.KindGCM))

		gcm, err := store.TokensFor(ctx, hamlet, push.KindGCM)
		require.NoError(t, err)
		assert.Empty(t, gcm)

		apns, err := store.TokensFor(ctx, hamlet, push.KindAPNS)
		require.NoError(t, err)
		assert.Len(t, apns, 1)
	})

	t.Run("Replace rebinds every holder of the old token", func(t *testing.T) {
		store := NewStore()
		hamlet := mustURN(t, "urn:sm:user:hamlet")
		othello := mustURN(t, "urn:sm:user:othello")

		require.NoError(t, store.Register(ctx, push.DeviceToken{Token: "ERE=", Kind: push.KindGCM, User: hamlet}))
		require.NoError(t, store.Register(ctx, push.DeviceToken{Token: "ERE=", Kind: push.KindGCM, User: othello}))
		require.NoError(t, store.Replace(ctx, "ERE=", "IiI=", push.KindGCM))

		old, err := store.FindAllMatching(ctx, "ERE=", push.KindGCM)
		require.NoError(t, err)
		assert.Empty(t, old)

		replaced, err := store.FindAllMatching(ctx, "IiI=", push.KindGCM)
		require.NoError(t, err)
		assert.Len(t, replaced, 2)
	})

	t.Run("Replace merges when the user already holds the new token", func(t *testing.T) {
		store := NewStore()
		hamlet := mustURN(t, "urn:sm:user:hamlet")

		require.NoError(t, store.Register(ctx, push.DeviceToken{Token: "ERE=", Kind: push.KindGCM, User: hamlet}))
		require.NoError(t, store.Register(ctx, push.DeviceToken{Token: "IiI=", Kind: push.KindGCM, User: hamlet}))
		require.NoError(t, store.Replace(ctx, "ERE=", "IiI=", push.KindGCM))

		tokens, err := store.TokensFor(ctx, hamlet, push.KindGCM)
		require.NoError(t, err)
		assert.Len(t, tokens, 1)
	})

	t.Run("LastUpdated is preserved when supplied", func(t *testing.T) {
		store := NewStore()
		hamlet := mustURN(t, "urn:sm:user:hamlet")
		then := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

		require.NoError(t, store.Register(ctx, push.DeviceToken{Token: "qqo=", Kind: push.KindAPNS, User: hamlet, LastUpdated: then}))

		tokens, err := store.TokensFor(ctx, hamlet, push.KindAPNS)
		require.NoError(t, err)
		require.Len(t, tokens, 1)
		assert.True(t, then.Equal(tokens[0].LastUpdated))
	})
}
