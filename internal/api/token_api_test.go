package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tinywideclouds/go-microservice-base/pkg/middleware"
	urn "github.com/tinywideclouds/go-platform/pkg/net/v1"

	"github.com/tinywideclouds/go-push-dispatch/internal/api"
	"github.com/tinywideclouds/go-push-dispatch/internal/storage/memory"
	"github.com/tinywideclouds/go-push-dispatch/pkg/push"
)

func setupAPI() (*api.TokenAPI, *memory.Store) {
	store := memory.NewStore()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return api.NewTokenAPI(store, "org.example.default", logger), store
}

// Helper to inject UserID into context (simulating Auth Middleware)
func withUser(req *http.Request, userID string) *http.Request {
	ctx := middleware.ContextWithUserID(req.Context(), userID)
	return req.WithContext(ctx)
}

func postJSON(t *testing.T, userID string, payload any) *http.Request {
	t.Helper()
	body, err := json.Marshal(payload)
	require.NoError(t, err)
	req := httptest.NewRequest("POST", "/api/v1/register/apns", bytes.NewReader(body))
	if userID == "" {
		return req
	}
	return withUser(req, userID)
}


func TestRegister(t *testing.T) {
	ctx := context.Background()
	targetURN, _ := urn.Parse("urn:sm:user:hamlet")

	t.Run("Success", func(t *testing.T) {
		apiHandler, store := setupAPI()
		req := postJSON(t, targetURN.String(), map[string]string{"token": "qqo=", "app_id": "org.example.app"})
		w := httptest.NewRecorder()

		apiHandler.RegisterAPNS(w, req)

		assert.Equal(t, http.StatusNoContent, w.Code)
		tokens, err := store.TokensFor(ctx, targetURN, push.KindAPNS)
		require.NoError(t, err)
		require.Len(t, tokens, 1)
		assert.Equal(t, "qqo=", tokens[0].Token)
		assert.Equal(t, "org.example.app", tokens[0].AppID)
	})

	t.Run("APNs registration without app_id gets the configured default", func(t *testing.T) {
		apiHandler, store := setupAPI()
		w := httptest.NewRecorder()

		apiHandler.RegisterAPNS(w, postJSON(t, targetURN.String(), map[string]string{"token": "qqo="}))

		assert.Equal(t, http.StatusNoContent, w.Code)
		tokens, err := store.TokensFor(ctx, targetURN, push.KindAPNS)
		require.NoError(t, err)
		require.Len(t, tokens, 1)
		assert.Equal(t, "org.example.default", tokens[0].AppID)
	})

	t.Run("GCM registration ignores the APNs default app id", func(t *testing.T) {
		apiHandler, store := setupAPI()
		w := httptest.NewRecorder()

		apiHandler.RegisterGCM(w, postJSON(t, targetURN.String(), map[string]string{"token": "ERE="}))

		assert.Equal(t, http.StatusNoContent, w.Code)
		tokens, err := store.TokensFor(ctx, targetURN, push.KindGCM)
		require.NoError(t, err)
		require.Len(t, tokens, 1)
		assert.Empty(t, tokens[0].AppID)
	})

	t.Run("Re-registering is an upsert, not a conflict", func(t *testing.T) {
		apiHandler, store := setupAPI()
		for range 2 {
			w := httptest.NewRecorder()
			apiHandler.RegisterGCM(w, postJSON(t, targetURN.String(), map[string]string{"token": "ERE="}))
			assert.Equal(t, http.StatusNoContent, w.Code)
		}

		tokens, err := store.TokensFor(ctx, targetURN, push.KindGCM)
		require.NoError(t, err)
		assert.Len(t, tokens, 1)
	})

	t.Run("Rejects Empty Token", func(t *testing.T) {
		apiHandler, _ := setupAPI()
		w := httptest.NewRecorder()

		apiHandler.RegisterAPNS(w, postJSON(t, targetURN.String(), map[string]string{"token": ""}))

		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Contains(t, w.Body.String(), "Empty or invalid length token")
	})

	t.Run("Rejects Oversized Token", func(t *testing.T) {
		apiHandler, _ := setupAPI()
		w := httptest.NewRecorder()

		oversized := strings.Repeat("a", 5000)
		apiHandler.RegisterAPNS(w, postJSON(t, targetURN.String(), map[string]string{"token": oversized}))

		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Contains(t, w.Body.String(), "Empty or invalid length token")
	})

	t.Run("Rejects Malformed JSON", func(t *testing.T) {
		apiHandler, _ := setupAPI()
		req := withUser(httptest.NewRequest("POST", "/api/v1/register/apns", bytes.NewReader([]byte("{"))), targetURN.String())
		w := httptest.NewRecorder()

		apiHandler.RegisterAPNS(w, req)

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("Rejects Missing User", func(t *testing.T) {
		apiHandler, _ := setupAPI()
		w := httptest.NewRecorder()

		apiHandler.RegisterAPNS(w, postJSON(t, "", map[string]string{"token": "qqo="}))

		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})
}

func TestUnregister(t *testing.T) {
	ctx := context.Background()
	targetURN, _ := urn.Parse("urn:sm:user:hamlet")

	t.Run("Success", func(t *testing.T) {
		apiHandler, store := setupAPI()
		require.NoError(t, store.Register(ctx, push.DeviceToken{Token: "ERE=", Kind: push.KindGCM, User: targetURN}))

		w := httptest.NewRecorder()
		apiHandler.UnregisterGCM(w, postJSON(t, targetURN.String(), map[string]string{"token": "ERE="}))

		assert.Equal(t, http.StatusNoContent, w.Code)
		tokens, err := store.TokensFor(ctx, targetURN, push.KindGCM)
		require.NoError(t, err)
		assert.Empty(t, tokens)
	})

	t.Run("Rejects Unknown Token", func(t *testing.T) {
		apiHandler, _ := setupAPI()
		w := httptest.NewRecorder()

		apiHandler.UnregisterGCM(w, postJSON(t, targetURN.String(), map[string]string{"token": "ERE="}))

		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Contains(t, w.Body.String(), "Token does not exist")
	})

	t.Run("Platforms are independent namespaces", func(t *testing.T) {
		apiHandler, store := setupAPI()
		require.NoError(t, store.Register(ctx, push.DeviceToken{Token: "ERE=", Kind: push.KindAPNS, User: targetURN}))

		w := httptest.NewRecorder()
		apiHandler.UnregisterGCM(w, postJSON(t, targetURN.String(), map[string]string{"token": "ERE="}))

		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Contains(t, w.Body.String(), "Token does not exist")
	})
}
