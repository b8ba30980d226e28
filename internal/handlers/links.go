package handlers

import (
	"errors"
	"modpod/internal/audit"
	"modpod/internal/discord"
	"modpod/internal/logging"
	"modpod/internal/models"
	"modpod/internal/storage"
	"net/http"
	"strconv"
)

const noNotes = "*No notes*"

type LinkHandler struct {
	links LinkStore
	users UserDirectory
	audit Auditor
}

func NewLinkHandler(links LinkStore, users UserDirectory, auditor Auditor) *LinkHandler {
	return &LinkHandler{links: links, users: users, audit: auditor}
}

// HandleList returns every short URL by clicks, or only the caller's with ?mine.
func (h *LinkHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	op := "internal/handlers/links.go HandleList"
	key, _ := APIKeyFrom(r.Context())

	links, err := h.links.ListLinks(r.Context())
	if err != nil {
		writeInternal(w, r, op, err)
		return
	}

	mine := r.URL.Query().Get("mine") != ""
	response := make([]models.ShortURL, 0, len(links))
	for _, l := range links {
		if mine && l.Creator != key.CreatorID() {
			continue
		}
		response = append(response, l)
	}

	writeJSON(w, r, http.StatusOK, response)
}

type createLinkRequest struct {
	ShortCode string     `json:"short_code" validate:"notblank,notreserved"`
	LongURL   string     `json:"long_url" validate:"notblank"`
	Notes     *string    `json:"notes"`
	Creator   *snowflake `json:"creator"`
}

func (h *LinkHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	op := "internal/handlers/links.go HandleCreate"
	key, _ := APIKeyFrom(r.Context())

	var req createLinkRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, "Invalid JSON body")
		return
	}
	if msg := validateRequest(req); msg != "" {
		writeError(w, r, http.StatusBadRequest, msg)
		return
	}

	link := models.ShortURL{
		ShortCode: req.ShortCode,
		LongURL:   req.LongURL,
		Creator:   key.CreatorID(),
	}
	if req.Notes != nil {
		link.Notes = *req.Notes
	}
	if key.IsAdmin && req.Creator != nil && *req.Creator != "" {
		creator, err := req.Creator.Int64()
		if err != nil {
			writeError(w, r, http.StatusBadRequest, "User does not exist")
			return
		}
		if creator != 0 {
			link.Creator = creator
		}
	}

	if err := h.links.CreateLink(r.Context(), &link); err != nil {
		if errors.Is(err, storage.ErrDuplicate) {
			writeError(w, r, http.StatusBadRequest, "Short code already exists")
			return
		}
		writeInternal(w, r, op, err)
		return
	}

	logging.Ctx(r.Context()).Info().Str("short_code", link.ShortCode).Int64("creator", link.Creator).Msg("short url created")
	h.audit.Notify(audit.Entry{
		Title: "New short URL",
		Body:  "Created by " + mention(key.CreatorID()),
		Newline: []audit.Field{
			{Name: "Short code", Value: link.ShortCode},
			{Name: "Long URL", Value: link.LongURL},
			{Name: "Notes", Value: notesOrPlaceholder(link.Notes)},
		},
		Colour: audit.ColourSuccess,
	})

	writeSuccess(w, r)
}

type deleteLinkRequest struct {
	ShortCode *string `json:"short_code" validate:"required"`
}

func (h *LinkHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	op := "internal/handlers/links.go HandleDelete"
	key, _ := APIKeyFrom(r.Context())

	var req deleteLinkRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, "Invalid JSON body")
		return
	}
	if msg := validateRequest(req); msg != "" {
		writeError(w, r, http.StatusBadRequest, msg)
		return
	}

	link, ok := h.lookup(w, r, op, *req.ShortCode)
	if !ok {
		return
	}
	if !canModify(key, link) {
		writeError(w, r, http.StatusForbidden, "You are not an administrator and you do not own this short URL")
		return
	}

	if err := h.links.DeleteLink(r.Context(), link.ShortCode); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			writeError(w, r, http.StatusNotFound, "Short URL not found")
			return
		}
		writeInternal(w, r, op, err)
		return
	}

	logging.Ctx(r.Context()).Info().Str("short_code", link.ShortCode).Msg("short url deleted")
	h.audit.Notify(audit.Entry{
		Title: "Short URL deleted",
		Body:  "Deleted by " + mention(key.CreatorID()),
		Newline: []audit.Field{
			{Name: "Short code", Value: link.ShortCode},
			{Name: "Long URL", Value: link.LongURL},
			{Name: "Original creator", Value: mention(link.Creator)},
			{Name: "Notes", Value: notesOrPlaceholder(link.Notes)},
		},
		Colour: audit.ColourError,
	})

	writeSuccess(w, r)
}

type updateLinkRequest struct {
	OldShortCode *string    `json:"old_short_code" validate:"required"`
	ShortCode    *string    `json:"short_code" validate:"omitnil,notblank,notreserved"`
	LongURL      *string    `json:"long_url" validate:"omitnil,notblank"`
	Notes        *string    `json:"notes"`
	Creator      *snowflake `json:"creator"`
}

// HandleUpdate edits a short URL. Admins may also transfer it to another Discord user.
func (h *LinkHandler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	op := "internal/handlers/links.go HandleUpdate"
	key, _ := APIKeyFrom(r.Context())

	var req updateLinkRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, "Invalid JSON body")
		return
	}
	if req.OldShortCode == nil {
		writeError(w, r, http.StatusBadRequest, "Missing property old_short_code")
		return
	}

	current, ok := h.lookup(w, r, op, *req.OldShortCode)
	if !ok {
		return
	}
	if msg := validateRequest(req); msg != "" {
		writeError(w, r, http.StatusBadRequest, msg)
		return
	}
	if !canModify(key, current) {
		writeError(w, r, http.StatusForbidden, "You are not an administrator and you do not own this short URL")
		return
	}

	updated := current
	if req.ShortCode != nil {
		updated.ShortCode = *req.ShortCode
	}
	if req.LongURL != nil {
		updated.LongURL = *req.LongURL
	}
	if req.Notes != nil {
		updated.Notes = *req.Notes
	}

	entry := audit.Entry{
		Title: "Short URL updated",
		Body:  "Updated by " + mention(key.CreatorID()),
		Newline: []audit.Field{
			{Name: "Short code", Value: current.ShortCode},
			{Name: "Long URL", Value: current.LongURL},
			{Name: "Original creator", Value: mention(current.Creator)},
			{Name: "Notes", Value: notesOrPlaceholder(updated.Notes)},
		},
		Colour: audit.ColourBlurple,
	}

	if key.IsAdmin && req.Creator != nil {
		creator, err := req.Creator.Int64()
		if err != nil {
			writeError(w, r, http.StatusBadRequest, "User does not exist")
			return
		}
		if creator != current.Creator {
			if !confirmUser(w, r, op, h.users, creator, "User does not exist", http.StatusBadRequest) {
				return
			}
			updated.Creator = creator
			entry = audit.Entry{
				Title: "Short URL transferred",
				Body:  "Transferred by " + mention(key.CreatorID()),
				Inline: []audit.Field{
					{Name: "Original creator", Value: mention(current.Creator)},
					{Name: "New creator", Value: mention(creator)},
				},
				Colour: audit.ColourBlurple,
			}
		}
	}

	if err := h.links.UpdateLink(r.Context(), current.ShortCode, updated); err != nil {
		switch {
		case errors.Is(err, storage.ErrDuplicate):
			writeError(w, r, http.StatusBadRequest, "New short URL already exists")
		case errors.Is(err, storage.ErrNotFound):
			writeError(w, r, http.StatusNotFound, "Short URL not found")
		default:
			writeInternal(w, r, op, err)
		}
		return
	}

	logging.Ctx(r.Context()).Info().Str("old_short_code", current.ShortCode).Str("short_code", updated.ShortCode).Msg("short url updated")
	h.audit.Notify(entry)
	writeSuccess(w, r)
}

func (h *LinkHandler) lookup(w http.ResponseWriter, r *http.Request, op, shortCode string) (models.ShortURL, bool) {
	link, err := h.links.GetLink(r.Context(), shortCode)
	if errors.Is(err, storage.ErrNotFound) {
		writeError(w, r, http.StatusNotFound, "Short URL not found")
		return models.ShortURL{}, false
	}
	if err != nil {
		writeInternal(w, r, op, err)
		return models.ShortURL{}, false
	}
	return link, true
}

// confirmUser checks id against Discord, writing the error response when it cannot be confirmed.
func confirmUser(w http.ResponseWriter, r *http.Request, op string, users UserDirectory, id int64, unknownMsg string, unknownStatus int) bool {
	_, err := users.GetUser(r.Context(), id)
	var rl *discord.RateLimitError
	switch {
	case err == nil:
		return true
	case errors.Is(err, discord.ErrUnknownUser):
		writeError(w, r, unknownStatus, unknownMsg)
	case errors.As(err, &rl):
		writeRateLimited(w, r, rl.RetryAfter)
	default:
		logging.Ctx(r.Context()).Error().Err(err).Str("op", op).Msg("discord lookup failed")
		writeError(w, r, http.StatusBadGateway, "Unable to reach Discord")
	}
	return false
}

func canModify(key models.APIKey, link models.ShortURL) bool {
	return key.IsAdmin || (key.Creator != nil && *key.Creator == link.Creator)
}

func mention(id int64) string {
	return "<@" + strconv.FormatInt(id, 10) + ">"
}

func notesOrPlaceholder(notes string) string {
	if notes == "" {
		return noNotes
	}
	return notes
}
