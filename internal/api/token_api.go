package api

import (
	"encoding/json"
	"net/http"

	"log/slog"

	"github.com/tinywideclouds/go-microservice-base/pkg/middleware"
	"github.com/tinywideclouds/go-microservice-base/pkg/response"
	urn "github.com/tinywideclouds/go-platform/pkg/net/v1"

	"github.com/tinywideclouds/go-push-dispatch/pkg/push"
)

// maxTokenLength bounds tokens at the registration boundary. The dispatch
// core assumes anything past this API is already valid.
const maxTokenLength = 4096

const (
	errInvalidToken  = "Empty or invalid length token"
	errTokenNotFound = "Token does not exist"
)

type TokenAPI struct {
	Store push.TokenStore
	// DefaultAppID is the bundle id applied to APNs registrations whose
	// request body omits app_id.
	DefaultAppID string
	Logger       *slog.Logger
}

func NewTokenAPI(store push.TokenStore, defaultAppID string, logger *slog.Logger) *TokenAPI {
	return &TokenAPI{
		Store:        store,
		DefaultAppID: defaultAppID,
		Logger:       logger,
	}
}

type tokenRequest struct {
	Token string `json:"token"`
	// AppID is the iOS bundle id; required for APNs, ignored for GCM.
	AppID string `json:"app_id,omitempty"`
}

// --- APNs (binary push) ---

func (api *TokenAPI) RegisterAPNS(w http.ResponseWriter, r *http.Request) {
	api.register(w, r, push.KindAPNS)
}

func (api *TokenAPI) UnregisterAPNS(w http.ResponseWriter, r *http.Request) {
	api.unregister(w, r, push.KindAPNS)
}

// --- GCM (JSON push) ---

func (api *TokenAPI) RegisterGCM(w http.ResponseWriter, r *http.Request) {
	api.register(w, r, push.KindGCM)
}

func (api *TokenAPI) UnregisterGCM(w http.ResponseWriter, r *http.Request) {
	api.unregister(w, r, push.KindGCM)
}

// register upserts the registration: pushing the same token twice is
// success, not a conflict.
func (api *TokenAPI) register(w http.ResponseWriter, r *http.Request, kind push.Kind) {
	ctx := r.Context()
	user, ok := api.userFrom(w, r)
	if !ok {
		return
	}

	var req tokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.WriteJSONError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if !validTokenLength(req.Token) {
		response.WriteJSONError(w, http.StatusBadRequest, errInvalidToken)
		return
	}
	if kind == push.KindAPNS && req.AppID == "" {
		req.AppID = api.DefaultAppID
	}

	err := api.Store.Register(ctx, push.DeviceToken{
		Token: req.Token,
		Kind:  kind,
		User:  user,
		AppID: req.AppID,
	})
	if err != nil {
		api.Logger.Error("failed to register token", "kind", kind, "err", err)
		response.WriteJSONError(w, http.StatusInternalServerError, "storage failed")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (api *TokenAPI) unregister(w http.ResponseWriter, r *http.Request, kind push.Kind) {
	ctx := r.Context()
	user, ok := api.userFrom(w, r)
	if !ok {
		return
	}

	var req tokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.WriteJSONError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if !validTokenLength(req.Token) {
		response.WriteJSONError(w, http.StatusBadRequest, errInvalidToken)
		return
	}

	// Unlike the dispatch core's idempotent removals, the user-facing
	// boundary reports an unknown token.
	registered, err := api.Store.TokensFor(ctx, user, kind)
	if err != nil {
		api.Logger.Error("failed to look up tokens", "kind", kind, "err", err)
		response.WriteJSONError(w, http.StatusInternalServerError, "storage failed")
		return
	}
	found := false
	for _, device := range registered {
		if device.Token == req.Token {
			found = true
			break
		}
	}
	if !found {
		response.WriteJSONError(w, http.StatusBadRequest, errTokenNotFound)
		return
	}

	if err := api.Store.Remove(ctx, user, req.Token, kind); err != nil {
		api.Logger.Error("failed to unregister token", "kind", kind, "err", err)
		response.WriteJSONError(w, http.StatusInternalServerError, "storage failed")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (api *TokenAPI) userFrom(w http.ResponseWriter, r *http.Request) (urn.URN, bool) {
	var zero urn.URN
	userID, ok := middleware.GetUserHandleFromContext(r.Context())
	if !ok {
		response.WriteJSONError(w, http.StatusUnauthorized, "unauthorized")
		return zero, false
	}
	user, err := urn.Parse(userID)
	if err != nil {
		response.WriteJSONError(w, http.StatusUnauthorized, "unauthorized")
		return zero, false
	}
	return user, true
}

func validTokenLength(token string) bool {
	return token != "" && len(token) <= maxTokenLength
}
