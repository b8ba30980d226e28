package handlers

import (
	"errors"
	"io"
	"modpod/internal/logging"
	"modpod/internal/metrics"
	"modpod/internal/models"
	"modpod/internal/storage"
	"modpod/internal/usecases"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

type CalendarHandler struct {
	events EventStore
	keys   KeyStore
	loc    *time.Location
	ical   usecases.ICalOptions
	now    func() time.Time
}

// NewCalendarHandler decides "today" in loc when expanding recurring events.
func NewCalendarHandler(events EventStore, keys KeyStore, loc *time.Location, ical usecases.ICalOptions) *CalendarHandler {
	if loc == nil {
		loc = time.UTC
	}
	return &CalendarHandler{events: events, keys: keys, loc: loc, ical: ical, now: time.Now}
}

// HandleList returns upcoming occurrences of every event, soonest first.
func (h *CalendarHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	op := "internal/handlers/calendar.go HandleList"

	limit := usecases.MaxOccurrences
	if raw := r.URL.Query().Get("limit"); raw != "" {
		l, err := strconv.Atoi(raw)
		if err != nil {
			writeError(w, r, http.StatusBadRequest, "limit must be an integer")
			return
		}
		limit = l
	}

	events, err := h.events.ListEvents(r.Context())
	if err != nil {
		writeInternal(w, r, op, err)
		return
	}

	today := models.DateOf(h.now(), h.loc)
	occurrences := usecases.ExpandOccurrences(events, today, limit)
	metrics.CalendarOccurrences.Observe(float64(len(occurrences)))

	writeJSON(w, r, http.StatusOK, occurrences)
}

type createEventRequest struct {
	Title               *string `json:"title" validate:"required"`
	FirstDate           *string `json:"first_date" validate:"required"`
	RepeatConfiguration *string `json:"repeat_configuration" validate:"required"`
}

func (h *CalendarHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	op := "internal/handlers/calendar.go HandleCreate"
	key, _ := APIKeyFrom(r.Context())

	var req createEventRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, "Invalid JSON body")
		return
	}
	if msg := validateRequest(req); msg != "" {
		writeError(w, r, http.StatusBadRequest, msg)
		return
	}

	firstDate, err := models.ParseDate(*req.FirstDate)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "Invalid first_date, expected YYYY-MM-DD")
		return
	}

	ev, err := models.NewCalendarEvent(uuid.NewString(), *req.Title, firstDate, *req.RepeatConfiguration, key.CreatorID())
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "Invalid repeat_configuration, expected once, weekly, fortnightly or monthly")
		return
	}

	if err := h.events.CreateEvent(r.Context(), ev); err != nil {
		writeInternal(w, r, op, err)
		return
	}

	logging.Ctx(r.Context()).Info().Str("event_id", ev.ID).Str("repeat", string(ev.RepeatConfiguration)).Msg("calendar event created")
	writeJSON(w, r, http.StatusOK, map[string]string{
		"status": "okay",
		"id":     ev.ID,
	})
}

// HandleDelete removes an event definition. Only its creator or an admin may do so.
func (h *CalendarHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	op := "internal/handlers/calendar.go HandleDelete"
	key, _ := APIKeyFrom(r.Context())
	id := chi.URLParam(r, "id")

	ev, err := h.events.GetEvent(r.Context(), id)
	if errors.Is(err, storage.ErrNotFound) {
		writeError(w, r, http.StatusNotFound, "Event not found")
		return
	}
	if err != nil {
		writeInternal(w, r, op, err)
		return
	}

	if !key.IsAdmin && (key.Creator == nil || *key.Creator != ev.Creator) {
		writeError(w, r, http.StatusForbidden, "You are not an administrator and you did not create this event")
		return
	}

	if err := h.events.DeleteEvent(r.Context(), id); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			writeError(w, r, http.StatusNotFound, "Event not found")
			return
		}
		writeInternal(w, r, op, err)
		return
	}

	logging.Ctx(r.Context()).Info().Str("event_id", id).Msg("calendar event deleted")
	writeSuccess(w, r)
}

// HandleICal serves the whole calendar as an iCalendar feed. Calendar apps cannot send
// headers, so the API key travels in the token query parameter.
func (h *CalendarHandler) HandleICal(w http.ResponseWriter, r *http.Request) {
	op := "internal/handlers/calendar.go HandleICal"

	token := r.URL.Query().Get("token")
	if token == "" {
		writeText(w, http.StatusForbidden, "Invalid token passed")
		return
	}
	if _, err := h.keys.GetKey(r.Context(), token); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			writeText(w, http.StatusForbidden, "Invalid token passed")
			return
		}
		logging.Ctx(r.Context()).Error().Err(err).Str("op", op).Msg("failed to check ical token")
		writeText(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	events, err := h.events.ListEvents(r.Context())
	if err != nil {
		logging.Ctx(r.Context()).Error().Err(err).Str("op", op).Msg("failed to list events")
		writeText(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	w.Header().Set("Content-Type", "text/calendar")
	w.WriteHeader(http.StatusOK)
	_, _ = io.WriteString(w, usecases.GenerateICal(events, h.ical))
}
