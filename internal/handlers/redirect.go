package handlers

import (
	"errors"
	"modpod/internal/crawler"
	"modpod/internal/logging"
	"modpod/internal/metrics"
	"modpod/internal/storage"
	"net/http"

	"github.com/go-chi/chi/v5"
)

type RedirectHandler struct {
	links    LinkStore
	crawlers crawler.Detector
	index    string
}

func NewRedirectHandler(links LinkStore, crawlers crawler.Detector, indexRedirect string) *RedirectHandler {
	return &RedirectHandler{links: links, crawlers: crawlers, index: indexRedirect}
}

func (h *RedirectHandler) HandleIndex(w http.ResponseWriter, r *http.Request) {
	http.Redirect(w, r, h.index, http.StatusMovedPermanently)
}

// HandleRedirect sends the client to the long URL, counting the click unless it came from a crawler.
func (h *RedirectHandler) HandleRedirect(w http.ResponseWriter, r *http.Request) {
	op := "internal/handlers/redirect.go HandleRedirect"
	code := chi.URLParam(r, "short_code")

	link, err := h.links.GetLink(r.Context(), code)
	if errors.Is(err, storage.ErrNotFound) {
		writeText(w, http.StatusNotFound, "Short code not found")
		return
	}
	if err != nil {
		logging.Ctx(r.Context()).Error().Err(err).Str("op", op).Str("short_code", code).Msg("failed to load short url")
		writeText(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	isCrawler := h.crawlers.IsCrawler(r.UserAgent())
	metrics.RecordRedirect(isCrawler)
	if !isCrawler {
		// A lost click should not block the redirect.
		if err := h.links.IncrementClicks(r.Context(), link.ShortCode); err != nil {
			logging.Ctx(r.Context()).Warn().Err(err).Str("op", op).Str("short_code", code).Msg("failed to count click")
		}
	}

	http.Redirect(w, r, link.LongURL, http.StatusTemporaryRedirect)
}
