package apns

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	urn "github.com/tinywideclouds/go-platform/pkg/net/v1"

	"github.com/tinywideclouds/go-push-dispatch/internal/correlation"
	"github.com/tinywideclouds/go-push-dispatch/internal/logtest"
	"github.com/tinywideclouds/go-push-dispatch/internal/storage/memory"
	"github.com/tinywideclouds/go-push-dispatch/pkg/push"
)

func TestListenerHandleError(t *testing.T) {
	ctx := context.Background()
	hamlet, err := urn.Parse("urn:sm:user:hamlet")
	require.NoError(t, err)

	put := func(t *testing.T, cache correlation.Cache, id uint32) {
		t.Helper()
		entry := correlation.Entry{Token: "aaaa", UserID: "urn:sm:user:hamlet"}
		require.NoError(t, cache.Put(ctx, id, entry, time.Minute))
	}

	t.Run("Unknown identifier warns and moves on", func(t *testing.T) {
		cache := correlation.NewMemoryCache()
		store := memory.NewStore()
		handler := logtest.NewHandler()

		listener := NewListener(cache, store, handler.Logger())
		listener.HandleError(ctx, 100, 1)

		warnings := handler.Messages(slog.LevelWarn)
		require.Len(t, warnings, 1)
		assert.Equal(t, "APNs key, apns:100, doesn't not exist.", warnings[0])
	})

	t.Run("Non-fatal status warns without touching the store", func(t *testing.T) {
		cache := correlation.NewMemoryCache()
		store := memory.NewStore()
		require.NoError(t, store.Register(ctx, push.DeviceToken{Token: "qqo=", Kind: push.KindAPNS, User: hamlet}))
		put(t, cache, 100)

		handler := logtest.NewHandler()
		listener := NewListener(cache, store, handler.Logger())
		listener.HandleError(ctx, 100, 1)

		warnings := handler.Messages(slog.LevelWarn)
		require.Len(t, warnings, 1)
		assert.Equal(t, "APNS: Failed to deliver APNS notification to qqo=, reason: Processing error", warnings[0])

		tokens, err := store.TokensFor(ctx, hamlet, push.KindAPNS)
		require.NoError(t, err)
		assert.Len(t, tokens, 1)
	})

	t.Run("Unregistered status removes the token", func(t *testing.T) {
		cache := correlation.NewMemoryCache()
		store := memory.NewStore()
		require.NoError(t, store.Register(ctx, push.DeviceToken{Token: "qqo=", Kind: push.KindAPNS, User: hamlet}))
		put(t, cache, 100)

		handler := logtest.NewHandler()
		listener := NewListener(cache, store, handler.Logger())
		listener.HandleError(ctx, 100, 8)

		warnings := handler.Messages(slog.LevelWarn)
		require.Len(t, warnings, 2)
		assert.Equal(t, "APNS: Failed to deliver APNS notification to qqo=, reason: Invalid token", warnings[0])
		assert.Equal(t, "APNS: Removing token qqo= from database due to above failure", warnings[1])

		tokens, err := store.TokensFor(ctx, hamlet, push.KindAPNS)
		require.NoError(t, err)
		assert.Empty(t, tokens)
	})

	t.Run("Each entry is consumed exactly once", func(t *testing.T) {
		cache := correlation.NewMemoryCache()
		store := memory.NewStore()
		put(t, cache, 100)

		handler := logtest.NewHandler()
		listener := NewListener(cache, store, handler.Logger())
		listener.HandleError(ctx, 100, 1)
		listener.HandleError(ctx, 100, 1)

		warnings := handler.Messages(slog.LevelWarn)
		require.Len(t, warnings, 2)
		assert.Equal(t, "APNs key, apns:100, doesn't not exist.", warnings[1])
	})

	t.Run("Unknown status code still reports a reason", func(t *testing.T) {
		cache := correlation.NewMemoryCache()
		store := memory.NewStore()
		put(t, cache, 100)

		handler := logtest.NewHandler()
		listener := NewListener(cache, store, handler.Logger())
		listener.HandleError(ctx, 100, 42)

		warnings := handler.Messages(slog.LevelWarn)
		require.Len(t, warnings, 1)
		assert.Equal(t, "APNS: Failed to deliver APNS notification to qqo=, reason: Unknown status", warnings[0])
	})
}
