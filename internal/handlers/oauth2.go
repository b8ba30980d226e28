package handlers

import (
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"modpod/internal/audit"
	"modpod/internal/logging"
	"modpod/internal/storage"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/securecookie"
)

const (
	stateCookieName = "modpod_oauth2_state"
	stateTTL        = 10 * time.Minute
)

const notApprovedMessage = "While you have authenticated with Discord, your account has not yet been approved by the administrator." +
	" Please get in touch with the Modcast tech team to approve your access to the application."

type OAuth2Handler struct {
	auth     Authenticator
	keys     KeyStore
	audit    Auditor
	cookies  *securecookie.SecureCookie
	frontend string
}

// NewOAuth2Handler signs the login state cookie with secret.
func NewOAuth2Handler(auth Authenticator, keys KeyStore, auditor Auditor, secret []byte, adminFrontend string) *OAuth2Handler {
	cookies := securecookie.New(secret, nil)
	cookies.MaxAge(int(stateTTL.Seconds()))
	return &OAuth2Handler{auth: auth, keys: keys, audit: auditor, cookies: cookies, frontend: adminFrontend}
}

// HandleAuthorize redirects to the Discord consent screen with a fresh anti-forgery state.
func (h *OAuth2Handler) HandleAuthorize(w http.ResponseWriter, r *http.Request) {
	op := "internal/handlers/oauth2.go HandleAuthorize"

	raw := securecookie.GenerateRandomKey(32)
	if raw == nil {
		logging.Ctx(r.Context()).Error().Str("op", op).Msg("failed to generate oauth2 state")
		writeText(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	state := hex.EncodeToString(raw)

	encoded, err := h.cookies.Encode(stateCookieName, state)
	if err != nil {
		logging.Ctx(r.Context()).Error().Err(err).Str("op", op).Msg("failed to sign oauth2 state")
		writeText(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     stateCookieName,
		Value:    encoded,
		Path:     "/oauth2",
		MaxAge:   int(stateTTL.Seconds()),
		HttpOnly: true,
		Secure:   isHTTPS(r),
		SameSite: http.SameSiteLaxMode,
	})
	http.Redirect(w, r, h.auth.AuthCodeURL(state), http.StatusTemporaryRedirect)
}

// HandleCallback finishes the login and hands the user's API key to the admin frontend.
func (h *OAuth2Handler) HandleCallback(w http.ResponseWriter, r *http.Request) {
	op := "internal/handlers/oauth2.go HandleCallback"

	if !h.stateMatches(r) {
		writeText(w, http.StatusBadRequest, "Invalid OAuth2 state returned")
		return
	}
	http.SetCookie(w, &http.Cookie{Name: stateCookieName, Path: "/oauth2", MaxAge: -1, HttpOnly: true})

	code := r.URL.Query().Get("code")
	if code == "" {
		writeText(w, http.StatusBadRequest, "Code not found")
		return
	}

	user, err := h.auth.Authenticate(r.Context(), code)
	if err != nil {
		logging.Ctx(r.Context()).Error().Err(err).Str("op", op).Msg("discord authentication failed")
		writeText(w, http.StatusBadGateway, "Failed to authenticate with Discord")
		return
	}

	id, err := strconv.ParseInt(user.ID, 10, 64)
	if err != nil {
		logging.Ctx(r.Context()).Error().Err(err).Str("op", op).Str("discord_id", user.ID).Msg("unexpected discord user id")
		writeText(w, http.StatusBadGateway, "Failed to authenticate with Discord")
		return
	}

	key, err := h.keys.GetKeyByCreator(r.Context(), id)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		logging.Ctx(r.Context()).Warn().Int64("discord_id", id).Msg("login from unapproved user")
		h.audit.Notify(audit.Entry{
			Title:  "Failed authentication",
			Body:   "Authentication from " + mention(id),
			Colour: audit.ColourError,
		})
		writeText(w, http.StatusForbidden, notApprovedMessage)
	case err != nil:
		logging.Ctx(r.Context()).Error().Err(err).Str("op", op).Msg("failed to look up api key")
		writeText(w, http.StatusInternalServerError, "Internal server error")
	default:
		logging.Ctx(r.Context()).Info().Int64("discord_id", id).Msg("login succeeded")
		h.audit.Notify(audit.Entry{
			Title:  "Successful authentication",
			Body:   "Authentication from " + mention(id),
			Colour: audit.ColourSuccess,
		})
		http.Redirect(w, r, h.frontend+"#/authorize/"+key.Key, http.StatusTemporaryRedirect)
	}
}

func (h *OAuth2Handler) stateMatches(r *http.Request) bool {
	returned := r.URL.Query().Get("state")
	if returned == "" {
		return false
	}

	cookie, err := r.Cookie(stateCookieName)
	if err != nil {
		return false
	}

	var expected string
	if err := h.cookies.Decode(stateCookieName, cookie.Value, &expected); err != nil {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(expected), []byte(returned)) == 1
}

func isHTTPS(r *http.Request) bool {
	return r.TLS != nil || r.Header.Get("X-Forwarded-Proto") == "https"
}
