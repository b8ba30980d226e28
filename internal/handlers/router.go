package handlers

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type RouterConfig struct {
	CORSOrigins []string
	// RateLimitRequests per minute per client IP on /api. Zero disables limiting.
	RateLimitRequests int
}

type Handlers struct {
	Links     *LinkHandler
	Redirects *RedirectHandler
	Calendar  *CalendarHandler
	Users     *UserHandler
	Admin     *AdminHandler
	OAuth2    *OAuth2Handler
	Health    *HealthHandler
}

func NewRouter(cfg RouterConfig, keys KeyStore, h Handlers) http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(requestLogger)
	r.Use(chimiddleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: cfg.CORSOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Authorization", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/", h.Redirects.HandleIndex)
	r.Get("/healthz", h.Health.HandleHealth)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/oauth2", func(r chi.Router) {
		r.Get("/authorize", h.OAuth2.HandleAuthorize)
		r.Get("/callback", h.OAuth2.HandleCallback)
	})

	r.Route("/api", func(r chi.Router) {
		if cfg.RateLimitRequests > 0 {
			r.Use(httprate.Limit(cfg.RateLimitRequests, time.Minute,
				httprate.WithKeyFuncs(httprate.KeyByIP),
				httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
					writeError(w, r, http.StatusTooManyRequests, "Too many requests")
				}),
			))
		}

		auth := RequireKey(keys)

		r.Get("/link", Chain(h.Links.HandleList, auth))
		r.Post("/link", Chain(h.Links.HandleCreate, auth, RequireJSON))
		r.Delete("/link", Chain(h.Links.HandleDelete, auth, RequireJSON))
		r.Patch("/link", Chain(h.Links.HandleUpdate, auth, RequireJSON))

		for _, p := range []string{"/calendar", "/calendar/"} {
			r.Get(p, Chain(h.Calendar.HandleList, auth))
			r.Post(p, Chain(h.Calendar.HandleCreate, auth, RequireJSON))
		}
		r.Get("/calendar/ical", h.Calendar.HandleICal)
		r.Get("/calendar/ical/", h.Calendar.HandleICal)
		r.Delete("/calendar/{id}", Chain(h.Calendar.HandleDelete, auth))

		r.Get("/admin/users", Chain(h.Admin.HandleListUsers, auth, RequireAdmin))
		r.Post("/admin/users", Chain(h.Admin.HandleCreateUser, auth, RequireAdmin, RequireJSON))
		r.Get("/admin/tokens", Chain(h.Admin.HandleListTokens, auth, RequireAdmin))

		r.Get("/users/me", Chain(h.Users.HandleMe, auth))
		r.Get("/users/{user_id:[0-9]+}", Chain(h.Users.HandleGet, auth))
	})

	r.Get("/{short_code}", h.Redirects.HandleRedirect)

	return r
}
