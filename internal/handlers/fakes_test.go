package handlers

import (
	"bytes"
	"context"
	"errors"
	"modpod/internal/audit"
	"modpod/internal/discord"
	"modpod/internal/models"
	"modpod/internal/storage"
	"modpod/internal/usecases"
	"net/http"
	"net/http/httptest"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/goccy/go-json"
)

const (
	adminKey   = "admin-key"
	userKey    = "user-key"
	serviceKey = "service-key"

	adminID int64 = 1
	userID  int64 = 2
)

var errBoom = errors.New("boom")

type fakeLinks struct {
	mu    sync.Mutex
	links map[string]models.ShortURL
	err   error
}

func newFakeLinks(links ...models.ShortURL) *fakeLinks {
	f := &fakeLinks{links: map[string]models.ShortURL{}}
	for _, l := range links {
		f.links[l.ShortCode] = l
	}
	return f
}

func (f *fakeLinks) ListLinks(ctx context.Context) ([]models.ShortURL, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	out := make([]models.ShortURL, 0, len(f.links))
	for _, l := range f.links {
		out = append(out, l)
	}
	slices.SortFunc(out, func(a, b models.ShortURL) int {
		if a.Clicks != b.Clicks {
			return b.Clicks - a.Clicks
		}
		return strings.Compare(a.ShortCode, b.ShortCode)
	})
	return out, nil
}

func (f *fakeLinks) GetLink(ctx context.Context, code string) (models.ShortURL, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return models.ShortURL{}, f.err
	}
	l, ok := f.links[code]
	if !ok {
		return models.ShortURL{}, storage.ErrNotFound
	}
	return l, nil
}

func (f *fakeLinks) CreateLink(ctx context.Context, link *models.ShortURL) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.links[link.ShortCode]; ok {
		return storage.ErrDuplicate
	}
	if link.CreationDate.IsZero() {
		link.CreationDate = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	}
	f.links[link.ShortCode] = *link
	return nil
}

func (f *fakeLinks) UpdateLink(ctx context.Context, oldCode string, link models.ShortURL) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.links[oldCode]; !ok {
		return storage.ErrNotFound
	}
	if _, ok := f.links[link.ShortCode]; ok && link.ShortCode != oldCode {
		return storage.ErrDuplicate
	}
	delete(f.links, oldCode)
	f.links[link.ShortCode] = link
	return nil
}

func (f *fakeLinks) DeleteLink(ctx context.Context, code string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.links[code]; !ok {
		return storage.ErrNotFound
	}
	delete(f.links, code)
	return nil
}

func (f *fakeLinks) IncrementClicks(ctx context.Context, code string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	l, ok := f.links[code]
	if !ok {
		return storage.ErrNotFound
	}
	l.Clicks++
	f.links[code] = l
	return nil
}

func (f *fakeLinks) get(code string) (models.ShortURL, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	l, ok := f.links[code]
	return l, ok
}

type fakeKeys struct {
	mu   sync.Mutex
	keys []models.APIKey
	err  error
}

func ptr[T any](v T) *T { return &v }

func newFakeKeys() *fakeKeys {
	return &fakeKeys{keys: []models.APIKey{
		{Key: adminKey, IsAdmin: true, Creator: ptr(adminID)},
		{Key: userKey, Creator: ptr(userID)},
		{Key: serviceKey},
	}}
}

func (f *fakeKeys) GetKey(ctx context.Context, key string) (models.APIKey, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return models.APIKey{}, f.err
	}
	for _, k := range f.keys {
		if k.Key == key {
			return k, nil
		}
	}
	return models.APIKey{}, storage.ErrNotFound
}

func (f *fakeKeys) GetKeyByCreator(ctx context.Context, creator int64) (models.APIKey, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, k := range f.keys {
		if k.Creator != nil && *k.Creator == creator {
			return k, nil
		}
	}
	return models.APIKey{}, storage.ErrNotFound
}

func (f *fakeKeys) ListUserKeys(ctx context.Context) ([]models.APIKey, error) {
	return f.filter(func(k models.APIKey) bool { return k.Creator != nil }), nil
}

func (f *fakeKeys) ListServiceTokens(ctx context.Context) ([]models.APIKey, error) {
	return f.filter(func(k models.APIKey) bool { return k.Creator == nil }), nil
}

func (f *fakeKeys) filter(keep func(models.APIKey) bool) []models.APIKey {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.APIKey
	for _, k := range f.keys {
		if keep(k) {
			out = append(out, k)
		}
	}
	return out
}

func (f *fakeKeys) CreateKey(ctx context.Context, key models.APIKey) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, k := range f.keys {
		if k.Key == key.Key || (k.Creator != nil && key.Creator != nil && *k.Creator == *key.Creator) {
			return storage.ErrDuplicate
		}
	}
	f.keys = append(f.keys, key)
	return nil
}

type fakeEvents struct {
	mu     sync.Mutex
	events []models.CalendarEvent
}

func (f *fakeEvents) ListEvents(ctx context.Context) ([]models.CalendarEvent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := slices.Clone(f.events)
	slices.SortStableFunc(out, func(a, b models.CalendarEvent) int { return a.FirstDate.Compare(b.FirstDate) })
	return out, nil
}

func (f *fakeEvents) GetEvent(ctx context.Context, id string) (models.CalendarEvent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, ev := range f.events {
		if ev.ID == id {
			return ev, nil
		}
	}
	return models.CalendarEvent{}, storage.ErrNotFound
}

func (f *fakeEvents) CreateEvent(ctx context.Context, ev models.CalendarEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, ev)
	return nil
}

func (f *fakeEvents) DeleteEvent(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, ev := range f.events {
		if ev.ID == id {
			f.events = slices.Delete(f.events, i, i+1)
			return nil
		}
	}
	return storage.ErrNotFound
}

type fakeDiscord struct {
	users    map[int64]discord.User
	err      error
	state    string
	authUser discord.User
	authErr  error
}

func (f *fakeDiscord) GetUser(ctx context.Context, id int64) (discord.User, error) {
	if f.err != nil {
		return discord.User{}, f.err
	}
	u, ok := f.users[id]
	if !ok {
		return discord.User{}, discord.ErrUnknownUser
	}
	return u, nil
}

func (f *fakeDiscord) AuthCodeURL(state string) string {
	f.state = state
	return "https://discord.test/oauth2/authorize?state=" + state
}

func (f *fakeDiscord) Authenticate(ctx context.Context, code string) (discord.User, error) {
	return f.authUser, f.authErr
}

type fakeAuditor struct {
	mu      sync.Mutex
	entries []audit.Entry
}

func (f *fakeAuditor) Notify(e audit.Entry) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entries = append(f.entries, e)
}

func (f *fakeAuditor) all() []audit.Entry {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.entries)
}

type fakePinger struct{ err error }

func (f fakePinger) Ping(ctx context.Context) error { return f.err }

type crawlerFunc func(string) bool

func (f crawlerFunc) IsCrawler(ua string) bool { return f(ua) }

const testSecret = "0123456789abcdef0123456789abcdef"

type testEnv struct {
	links    *fakeLinks
	keys     *fakeKeys
	events   *fakeEvents
	discord  *fakeDiscord
	audit    *fakeAuditor
	calendar *CalendarHandler
	router   http.Handler
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	env := &testEnv{
		links:  newFakeLinks(),
		keys:   newFakeKeys(),
		events: &fakeEvents{},
		discord: &fakeDiscord{users: map[int64]discord.User{
			adminID: {ID: "1", Username: "admin"},
			userID:  {ID: "2", Username: "user"},
			3:       {ID: "3", Username: "newcomer"},
		}},
		audit: &fakeAuditor{},
	}

	env.calendar = NewCalendarHandler(env.events, env.keys, time.UTC, usecases.ICalOptions{})
	env.calendar.now = func() time.Time { return time.Date(2024, 3, 10, 15, 0, 0, 0, time.UTC) }

	crawlers := crawlerFunc(func(ua string) bool { return strings.Contains(ua, "bot") })

	env.router = NewRouter(RouterConfig{CORSOrigins: []string{"https://admin.modpod.test"}}, env.keys, Handlers{
		Links:     NewLinkHandler(env.links, env.discord, env.audit),
		Redirects: NewRedirectHandler(env.links, crawlers, "https://modcast.test"),
		Calendar:  env.calendar,
		Users:     NewUserHandler(env.discord),
		Admin:     NewAdminHandler(env.keys, env.discord),
		OAuth2:    NewOAuth2Handler(env.discord, env.keys, env.audit, []byte(testSecret), "https://admin.modpod.test"),
		Health:    NewHealthHandler(fakePinger{}),
	})
	return env
}

// do sends a request through the router. A non-nil body is encoded as JSON with a JSON content type.
func (env *testEnv) do(t *testing.T, method, target, key string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, target, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if key != "" {
		req.Header.Set("Authorization", key)
	}
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rec.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
	return v
}

func assertError(t *testing.T, rec *httptest.ResponseRecorder, status int, message string) {
	t.Helper()
	if rec.Code != status {
		t.Fatalf("status = %d, want %d (body %s)", rec.Code, status, rec.Body.String())
	}
	body := decodeBody[map[string]any](t, rec)
	if body["status"] != "error" || body["message"] != message {
		t.Errorf("body = %v, want error %q", body, message)
	}
}
