package handlers

import (
	"errors"
	"modpod/internal/discord"
	"modpod/internal/logging"
	"modpod/internal/models"
	"modpod/internal/storage"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
)

type UserHandler struct {
	users UserDirectory
}

func NewUserHandler(users UserDirectory) *UserHandler {
	return &UserHandler{users: users}
}

// HandleMe describes the API key used to make the request.
func (h *UserHandler) HandleMe(w http.ResponseWriter, r *http.Request) {
	key, _ := APIKeyFrom(r.Context())
	writeJSON(w, r, http.StatusOK, key)
}

// HandleGet proxies a Discord user lookup.
func (h *UserHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	op := "internal/handlers/users.go HandleGet"

	id, err := strconv.ParseInt(chi.URLParam(r, "user_id"), 10, 64)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "Invalid user id")
		return
	}

	user, err := h.users.GetUser(r.Context(), id)
	var rl *discord.RateLimitError
	switch {
	case err == nil:
		writeJSON(w, r, http.StatusOK, user)
	case errors.Is(err, discord.ErrUnknownUser):
		writeError(w, r, http.StatusNotFound, "Unknown User")
	case errors.As(err, &rl):
		writeRateLimited(w, r, rl.RetryAfter)
	default:
		logging.Ctx(r.Context()).Error().Err(err).Str("op", op).Int64("user_id", id).Msg("discord lookup failed")
		writeError(w, r, http.StatusBadGateway, "Unable to reach Discord")
	}
}

type AdminHandler struct {
	keys  KeyStore
	users UserDirectory
}

func NewAdminHandler(keys KeyStore, users UserDirectory) *AdminHandler {
	return &AdminHandler{keys: keys, users: users}
}

// HandleListUsers lists keys bound to Discord users, admins first.
func (h *AdminHandler) HandleListUsers(w http.ResponseWriter, r *http.Request) {
	op := "internal/handlers/users.go HandleListUsers"

	keys, err := h.keys.ListUserKeys(r.Context())
	if err != nil {
		writeInternal(w, r, op, err)
		return
	}
	if keys == nil {
		keys = []models.APIKey{}
	}
	writeJSON(w, r, http.StatusOK, keys)
}

// HandleListTokens lists service tokens, which have no Discord user.
func (h *AdminHandler) HandleListTokens(w http.ResponseWriter, r *http.Request) {
	op := "internal/handlers/users.go HandleListTokens"

	keys, err := h.keys.ListServiceTokens(r.Context())
	if err != nil {
		writeInternal(w, r, op, err)
		return
	}
	if keys == nil {
		keys = []models.APIKey{}
	}
	writeJSON(w, r, http.StatusOK, keys)
}

type createUserRequest struct {
	Creator *snowflake `json:"creator" validate:"required"`
	IsAdmin *bool      `json:"is_admin" validate:"required"`
}

// HandleCreateUser issues an API key to a Discord user that has none yet.
func (h *AdminHandler) HandleCreateUser(w http.ResponseWriter, r *http.Request) {
	op := "internal/handlers/users.go HandleCreateUser"

	var req createUserRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, "Invalid JSON body")
		return
	}
	if msg := validateRequest(req); msg != "" {
		writeError(w, r, http.StatusBadRequest, msg)
		return
	}

	creator, err := req.Creator.Int64()
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "Invalid user specified")
		return
	}
	if !confirmUser(w, r, op, h.users, creator, "Invalid user specified, upstream returned 404", http.StatusNotFound) {
		return
	}

	secret, err := storage.GenerateKey()
	if err != nil {
		writeInternal(w, r, op, err)
		return
	}

	if err := h.keys.CreateKey(r.Context(), models.APIKey{Key: secret, IsAdmin: *req.IsAdmin, Creator: &creator}); err != nil {
		if errors.Is(err, storage.ErrDuplicate) {
			writeError(w, r, http.StatusBadRequest, "Users can only have one API key per Discord ID")
			return
		}
		writeInternal(w, r, op, err)
		return
	}

	logging.Ctx(r.Context()).Info().Int64("creator", creator).Bool("is_admin", *req.IsAdmin).Msg("api key issued")
	writeJSON(w, r, http.StatusOK, map[string]string{
		"status":  "success",
		"new_key": secret,
	})
}
