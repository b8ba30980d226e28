// Package discord talks to the Discord REST API: bot-authenticated user lookups
// and the OAuth2 authorization code flow used to log users into the admin portal.
package discord

import (
	"context"
	"errors"
	"fmt"
	"io"
	"modpod/internal/cache"
	"modpod/internal/logging"
	"modpod/internal/metrics"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/goccy/go-json"
	gobreaker "github.com/sony/gobreaker/v2"
	"golang.org/x/oauth2"
)

const DefaultBaseURL = "https://discord.com/api/v7"

var (
	ErrUnknownUser = errors.New("discord: unknown user")
	ErrUnavailable = errors.New("discord: upstream unavailable")
)

// RateLimitError is returned while Discord's users bucket is exhausted.
type RateLimitError struct {
	RetryAfter float64 // seconds
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("discord: rate limited, retry after %.3fs", e.RetryAfter)
}

type User struct {
	ID            string  `json:"id"`
	Username      string  `json:"username"`
	Discriminator string  `json:"discriminator,omitempty"`
	GlobalName    *string `json:"global_name,omitempty"`
	Avatar        *string `json:"avatar"`
	Bot           bool    `json:"bot,omitempty"`
}

type Config struct {
	BaseURL      string
	BotToken     string
	ClientID     string
	ClientSecret string
	RedirectURL  string

	UserCacheTTL  time.Duration
	UserCacheSize int
	HTTPClient    *http.Client
}

type Client struct {
	baseURL  string
	botToken string
	http     *http.Client
	oauth    *oauth2.Config

	users   *cache.TTL[int64, User]
	limits  *rateLimiter
	breaker *gobreaker.CircuitBreaker[User]
}

func NewClient(cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.UserCacheTTL <= 0 {
		cfg.UserCacheTTL = time.Hour
	}
	if cfg.UserCacheSize <= 0 {
		cfg.UserCacheSize = 1000
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: 15 * time.Second}
	}

	c := &Client{
		baseURL:  cfg.BaseURL,
		botToken: cfg.BotToken,
		http:     cfg.HTTPClient,
		oauth: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Scopes:       []string{"identify"},
			Endpoint: oauth2.Endpoint{
				AuthURL:   cfg.BaseURL + "/oauth2/authorize",
				TokenURL:  cfg.BaseURL + "/oauth2/token",
				AuthStyle: oauth2.AuthStyleInParams,
			},
		},
		users:  cache.NewTTL[int64, User](cfg.UserCacheTTL, cfg.UserCacheSize),
		limits: &rateLimiter{now: time.Now},
	}

	c.breaker = gobreaker.NewCircuitBreaker[User](gobreaker.Settings{
		Name:    "discord",
		Timeout: 30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		// Unknown users and rate limits are answers, not outages.
		IsSuccessful: func(err error) bool {
			var rl *RateLimitError
			return err == nil || errors.Is(err, ErrUnknownUser) || errors.As(err, &rl)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logging.Warn().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).Msg("circuit breaker state changed")
		},
	})

	return c
}

// GetUser returns a Discord user by snowflake, serving repeated lookups from the cache.
func (c *Client) GetUser(ctx context.Context, id int64) (User, error) {
	if u, ok := c.users.Get(id); ok {
		return u, nil
	}

	if err := c.limits.check(); err != nil {
		metrics.DiscordRequests.WithLabelValues("users", "ratelimited").Inc()
		return User{}, err
	}

	u, err := c.breaker.Execute(func() (User, error) {
		return c.fetchUser(ctx, id)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return User{}, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	if err != nil {
		return User{}, err
	}

	c.users.Set(id, u)
	return u, nil
}

func (c *Client) fetchUser(ctx context.Context, id int64) (User, error) {
	op := "internal/discord/client.go fetchUser"

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/users/"+strconv.FormatInt(id, 10), nil)
	if err != nil {
		return User{}, fmt.Errorf("%s: create request: %w", op, err)
	}
	req.Header.Set("Authorization", "Bot "+c.botToken)

	resp, err := c.http.Do(req)
	if err != nil {
		metrics.DiscordRequests.WithLabelValues("users", "error").Inc()
		return User{}, fmt.Errorf("%s: request failed: %w", op, err)
	}
	defer resp.Body.Close()

	c.limits.update(resp.Header)

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		metrics.DiscordRequests.WithLabelValues("users", "ratelimited").Inc()
		return User{}, &RateLimitError{RetryAfter: retryAfter(resp)}
	case resp.StatusCode == http.StatusNotFound:
		metrics.DiscordRequests.WithLabelValues("users", "not_found").Inc()
		return User{}, ErrUnknownUser
	case resp.StatusCode != http.StatusOK:
		metrics.DiscordRequests.WithLabelValues("users", "error").Inc()
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return User{}, fmt.Errorf("%s: http %d: %s", op, resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var u User
	if err := json.NewDecoder(resp.Body).Decode(&u); err != nil {
		return User{}, fmt.Errorf("%s: decode: %w", op, err)
	}
	metrics.DiscordRequests.WithLabelValues("users", "ok").Inc()
	return u, nil
}

// AuthCodeURL is the Discord consent URL for the given anti-forgery state.
func (c *Client) AuthCodeURL(state string) string {
	return c.oauth.AuthCodeURL(state, oauth2.SetAuthURLParam("prompt", "none"))
}

// Exchange trades an authorization code for a user access token.
func (c *Client) Exchange(ctx context.Context, code string) (*oauth2.Token, error) {
	ctx = context.WithValue(ctx, oauth2.HTTPClient, c.http)
	tok, err := c.oauth.Exchange(ctx, code)
	if err != nil {
		metrics.DiscordRequests.WithLabelValues("oauth2_token", "error").Inc()
		return nil, fmt.Errorf("internal/discord/client.go Exchange: unable to exchange code: %w", err)
	}
	metrics.DiscordRequests.WithLabelValues("oauth2_token", "ok").Inc()
	return tok, nil
}

// CurrentUser returns the user that owns tok.
func (c *Client) CurrentUser(ctx context.Context, tok *oauth2.Token) (User, error) {
	op := "internal/discord/client.go CurrentUser"
	ctx = context.WithValue(ctx, oauth2.HTTPClient, c.http)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/users/@me", nil)
	if err != nil {
		return User{}, fmt.Errorf("%s: create request: %w", op, err)
	}

	resp, err := c.oauth.Client(ctx, tok).Do(req)
	if err != nil {
		return User{}, fmt.Errorf("%s: users/@me: %w", op, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		metrics.DiscordRequests.WithLabelValues("users_me", "error").Inc()
		return User{}, fmt.Errorf("%s: users/@me http %d", op, resp.StatusCode)
	}

	var u User
	if err := json.NewDecoder(resp.Body).Decode(&u); err != nil {
		return User{}, fmt.Errorf("%s: decode: %w", op, err)
	}
	metrics.DiscordRequests.WithLabelValues("users_me", "ok").Inc()
	return u, nil
}

// Authenticate runs Exchange then CurrentUser.
func (c *Client) Authenticate(ctx context.Context, code string) (User, error) {
	tok, err := c.Exchange(ctx, code)
	if err != nil {
		return User{}, err
	}
	return c.CurrentUser(ctx, tok)
}

func retryAfter(resp *http.Response) float64 {
	var body struct {
		RetryAfter float64 `json:"retry_after"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err == nil && body.RetryAfter > 0 {
		return body.RetryAfter
	}
	if v, err := strconv.ParseFloat(resp.Header.Get("Retry-After"), 64); err == nil {
		return v
	}
	if v, err := strconv.ParseFloat(resp.Header.Get("X-RateLimit-Reset-After"), 64); err == nil {
		return v
	}
	return 1
}

// rateLimiter mirrors Discord's users bucket from response headers.
type rateLimiter struct {
	mu        sync.Mutex
	known     bool
	remaining int
	resetAt   time.Time
	now       func() time.Time
}

func (r *rateLimiter) check() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	if r.known && r.remaining <= 0 && now.Before(r.resetAt) {
		return &RateLimitError{RetryAfter: r.resetAt.Sub(now).Seconds()}
	}
	return nil
}

func (r *rateLimiter) update(h http.Header) {
	remaining, errRemaining := strconv.Atoi(h.Get("X-RateLimit-Remaining"))
	resetAfter, errReset := strconv.ParseFloat(h.Get("X-RateLimit-Reset-After"), 64)
	if errRemaining != nil || errReset != nil {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.known = true
	r.remaining = remaining
	r.resetAt = r.now().Add(time.Duration(resetAfter * float64(time.Second)))
}
