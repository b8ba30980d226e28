package main

import (
	"context"
	"errors"
	"modpod/internal/audit"
	"modpod/internal/config"
	"modpod/internal/crawler"
	"modpod/internal/discord"
	"modpod/internal/handlers"
	"modpod/internal/logging"
	"modpod/internal/storage"
	"modpod/internal/usecases"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.Fatal().Err(err).Msg("unable to load config")
	}
	logging.Init(logging.Config{Level: cfg.LogLevel, Format: cfg.LogFormat})

	if err := cfg.Validate(); err != nil {
		logging.Fatal().Err(err).Msg("invalid config")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		logging.Fatal().Err(err).Msg("unable to connect to db")
	}
	defer pool.Close()

	if err := pool.Ping(ctx); err != nil {
		logging.Fatal().Err(err).Msg("unable to ping db")
	}
	if err := storage.EnsureSchema(ctx, pool); err != nil {
		logging.Fatal().Err(err).Msg("unable to create schema")
	}
	logging.Info().Msg("connected to db successfully")

	links := storage.NewLinkStorage(pool)
	keys := storage.NewKeyStorage(pool)
	events := storage.NewEventStorage(pool)

	discordClient := discord.NewClient(discord.Config{
		BaseURL:      cfg.DiscordAPIBase,
		BotToken:     cfg.BotToken,
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		RedirectURL:  cfg.OAuth2RedirectURI,
		UserCacheTTL: cfg.UserCacheTTL,
	})

	notifier := audit.NewNotifier(audit.Config{WebhookURL: cfg.AuditLogWebhook})
	if cfg.AuditLogWebhook == "" {
		logging.Warn().Msg("AUDIT_LOG_WEBHOOK not set, audit log disabled")
	}

	icalOpts := usecases.ICalOptions{LegacyMonthlyRule: cfg.ICalLegacyMonthlyRule}
	router := handlers.NewRouter(handlers.RouterConfig{
		CORSOrigins:       cfg.CORSOrigins,
		RateLimitRequests: cfg.RateLimitRequests,
	}, keys, handlers.Handlers{
		Links:     handlers.NewLinkHandler(links, discordClient, notifier),
		Redirects: handlers.NewRedirectHandler(links, crawler.New(), cfg.IndexRedirect),
		Calendar:  handlers.NewCalendarHandler(events, keys, cfg.Location(), icalOpts),
		Users:     handlers.NewUserHandler(discordClient),
		Admin:     handlers.NewAdminHandler(keys, discordClient),
		OAuth2:    handlers.NewOAuth2Handler(discordClient, keys, notifier, []byte(cfg.SecretKey), cfg.AdminFrontend),
		Health:    handlers.NewHealthHandler(pool),
	})

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       2 * time.Minute,
	}

	go func() {
		logging.Info().Str("addr", cfg.ListenAddr).Msg("listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logging.Fatal().Err(err).Msg("fail listen and serve")
		}
	}()

	<-ctx.Done()
	logging.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logging.Error().Err(err).Msg("http shutdown did not complete")
	}
	if err := notifier.Close(shutdownCtx); err != nil {
		logging.Error().Err(err).Msg("audit queue not drained")
	}
}
