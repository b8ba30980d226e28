package handlers

import (
	"errors"
	"modpod/internal/audit"
	"modpod/internal/discord"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func authorize(t *testing.T, env *testEnv) (*http.Cookie, string) {
	t.Helper()
	rec := env.do(t, http.MethodGet, "/oauth2/authorize", "", nil)
	if rec.Code != http.StatusTemporaryRedirect {
		t.Fatalf("authorize status = %d", rec.Code)
	}
	if !strings.HasPrefix(rec.Header().Get("Location"), "https://discord.test/oauth2/authorize?state=") {
		t.Fatalf("location = %q", rec.Header().Get("Location"))
	}

	cookies := rec.Result().Cookies()
	if len(cookies) != 1 || cookies[0].Name != stateCookieName || !cookies[0].HttpOnly {
		t.Fatalf("cookies = %v", cookies)
	}
	if len(env.discord.state) != 64 {
		t.Fatalf("state = %q", env.discord.state)
	}
	return cookies[0], env.discord.state
}

func callback(env *testEnv, cookie *http.Cookie, query string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/oauth2/callback?"+query, nil)
	if cookie != nil {
		req.AddCookie(cookie)
	}
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)
	return rec
}

func TestOAuth2LoginApprovedUser(t *testing.T) {
	env := newTestEnv(t)
	env.discord.authUser = discord.User{ID: "2", Username: "user"}

	cookie, state := authorize(t, env)
	rec := callback(env, cookie, "code=abc&state="+state)

	if rec.Code != http.StatusTemporaryRedirect {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	if loc := rec.Header().Get("Location"); loc != "https://admin.modpod.test#/authorize/"+userKey {
		t.Errorf("location = %q", loc)
	}

	entries := env.audit.all()
	if len(entries) != 1 || entries[0].Title != "Successful authentication" || entries[0].Colour != audit.ColourSuccess {
		t.Errorf("audit = %+v", entries)
	}
}

func TestOAuth2LoginUnapprovedUser(t *testing.T) {
	env := newTestEnv(t)
	env.discord.authUser = discord.User{ID: "3", Username: "newcomer"}

	cookie, state := authorize(t, env)
	rec := callback(env, cookie, "code=abc&state="+state)

	if rec.Code != http.StatusForbidden || rec.Body.String() != notApprovedMessage {
		t.Errorf("status = %d, body = %q", rec.Code, rec.Body.String())
	}
	entries := env.audit.all()
	if len(entries) != 1 || entries[0].Title != "Failed authentication" || entries[0].Body != "Authentication from <@3>" {
		t.Errorf("audit = %+v", entries)
	}
}

func TestOAuth2CallbackRejectsBadState(t *testing.T) {
	env := newTestEnv(t)
	cookie, state := authorize(t, env)

	tampered := *cookie
	tampered.Value = strings.ToUpper(cookie.Value)

	tests := []struct {
		name   string
		cookie *http.Cookie
		query  string
	}{
		{"no cookie", nil, "code=abc&state=" + state},
		{"no state", cookie, "code=abc"},
		{"wrong state", cookie, "code=abc&state=deadbeef"},
		{"tampered cookie", &tampered, "code=abc&state=" + state},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := callback(env, tt.cookie, tt.query)
			if rec.Code != http.StatusBadRequest || rec.Body.String() != "Invalid OAuth2 state returned" {
				t.Errorf("status = %d, body = %q", rec.Code, rec.Body.String())
			}
		})
	}
}

func TestOAuth2CallbackErrors(t *testing.T) {
	env := newTestEnv(t)
	cookie, state := authorize(t, env)

	if rec := callback(env, cookie, "state="+state); rec.Code != http.StatusBadRequest || rec.Body.String() != "Code not found" {
		t.Errorf("missing code: status = %d, body = %q", rec.Code, rec.Body.String())
	}

	env.discord.authErr = errors.New("invalid_grant")
	if rec := callback(env, cookie, "code=abc&state="+state); rec.Code != http.StatusBadGateway {
		t.Errorf("exchange failure status = %d", rec.Code)
	}
}
