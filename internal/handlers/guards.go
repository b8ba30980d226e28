package handlers

import (
	"context"
	"errors"
	"mime"
	"modpod/internal/models"
	"modpod/internal/storage"
	"net/http"
	"strings"
)

// Guard inspects a request before the handler runs. It either returns the (possibly enriched)
// request and true, or writes a terminal response and returns false.
type Guard func(w http.ResponseWriter, r *http.Request) (*http.Request, bool)

// Chain runs guards in order and calls h only if every guard lets the request through.
func Chain(h http.HandlerFunc, guards ...Guard) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		for _, g := range guards {
			var ok bool
			if r, ok = g(w, r); !ok {
				return
			}
		}
		h(w, r)
	}
}

type apiKeyCtxKey struct{}

func withAPIKey(ctx context.Context, key models.APIKey) context.Context {
	return context.WithValue(ctx, apiKeyCtxKey{}, key)
}

// APIKeyFrom returns the key attached by RequireKey.
func APIKeyFrom(ctx context.Context) (models.APIKey, bool) {
	key, ok := ctx.Value(apiKeyCtxKey{}).(models.APIKey)
	return key, ok
}

// RequireKey resolves the Authorization header to an API key.
func RequireKey(keys KeyStore) Guard {
	return func(w http.ResponseWriter, r *http.Request) (*http.Request, bool) {
		op := "internal/handlers/guards.go RequireKey"

		auth := r.Header.Get("Authorization")
		if auth == "" {
			writeError(w, r, http.StatusForbidden, "No authorization passed")
			return r, false
		}

		key, err := keys.GetKey(r.Context(), auth)
		if errors.Is(err, storage.ErrNotFound) {
			writeError(w, r, http.StatusForbidden, "Invalid authorization passed")
			return r, false
		}
		if err != nil {
			writeInternal(w, r, op, err)
			return r, false
		}

		return r.WithContext(withAPIKey(r.Context(), key)), true
	}
}

// RequireAdmin must run after RequireKey.
func RequireAdmin(w http.ResponseWriter, r *http.Request) (*http.Request, bool) {
	key, ok := APIKeyFrom(r.Context())
	if !ok || !key.IsAdmin {
		writeError(w, r, http.StatusForbidden, "You are not an administrator")
		return r, false
	}
	return r, true
}

func RequireJSON(w http.ResponseWriter, r *http.Request) (*http.Request, bool) {
	ct := r.Header.Get("Content-Type")
	if strings.TrimSpace(ct) == "" {
		writeError(w, r, http.StatusBadRequest, "Set a content type of JSON to interact with the API")
		return r, false
	}

	mediaType, _, err := mime.ParseMediaType(ct)
	if err != nil || mediaType != "application/json" {
		writeError(w, r, http.StatusBadRequest, "Invalid content type")
		return r, false
	}
	return r, true
}
