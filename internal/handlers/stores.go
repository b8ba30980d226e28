package handlers

import (
	"context"
	"modpod/internal/audit"
	"modpod/internal/discord"
	"modpod/internal/models"
)

type LinkStore interface {
	ListLinks(ctx context.Context) ([]models.ShortURL, error)
	GetLink(ctx context.Context, shortCode string) (models.ShortURL, error)
	CreateLink(ctx context.Context, link *models.ShortURL) error
	UpdateLink(ctx context.Context, oldCode string, link models.ShortURL) error
	DeleteLink(ctx context.Context, shortCode string) error
	IncrementClicks(ctx context.Context, shortCode string) error
}

type KeyStore interface {
	GetKey(ctx context.Context, key string) (models.APIKey, error)
	GetKeyByCreator(ctx context.Context, creator int64) (models.APIKey, error)
	ListUserKeys(ctx context.Context) ([]models.APIKey, error)
	ListServiceTokens(ctx context.Context) ([]models.APIKey, error)
	CreateKey(ctx context.Context, key models.APIKey) error
}

type EventStore interface {
	ListEvents(ctx context.Context) ([]models.CalendarEvent, error)
	GetEvent(ctx context.Context, id string) (models.CalendarEvent, error)
	CreateEvent(ctx context.Context, ev models.CalendarEvent) error
	DeleteEvent(ctx context.Context, id string) error
}

// UserDirectory resolves Discord users by snowflake.
type UserDirectory interface {
	GetUser(ctx context.Context, id int64) (discord.User, error)
}

// Authenticator drives the Discord OAuth2 login.
type Authenticator interface {
	AuthCodeURL(state string) string
	Authenticate(ctx context.Context, code string) (discord.User, error)
}

type Auditor interface {
	Notify(e audit.Entry)
}
