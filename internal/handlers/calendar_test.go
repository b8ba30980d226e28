package handlers

import (
	"modpod/internal/models"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
)

func seedEvents(t *testing.T, env *testEnv) {
	t.Helper()
	for _, s := range []struct {
		id, title, first, repeat string
		creator                  int64
	}{
		{"past", "Old episode", "2024-03-01", "once", userID},
		{"weekly", "Weekly show", "2024-03-04", "weekly", userID},
		{"special", "Special", "2024-03-12", "once", adminID},
	} {
		d, err := models.ParseDate(s.first)
		if err != nil {
			t.Fatal(err)
		}
		ev, err := models.NewCalendarEvent(s.id, s.title, d, s.repeat, s.creator)
		if err != nil {
			t.Fatal(err)
		}
		env.events.events = append(env.events.events, ev)
	}
}

func TestListCalendar(t *testing.T) {
	env := newTestEnv(t)
	seedEvents(t, env)

	rec := env.do(t, http.MethodGet, "/api/calendar/?limit=3", userKey, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}

	got := decodeBody[[]map[string]string](t, rec)
	want := []struct{ id, date string }{
		{"weekly", "2024-03-11"},
		{"special", "2024-03-12"},
		{"weekly", "2024-03-18"},
	}
	if len(got) != len(want) {
		t.Fatalf("got %d occurrences: %v", len(got), got)
	}
	for i, w := range want {
		if got[i]["id"] != w.id || got[i]["date"] != w.date {
			t.Errorf("occurrence %d = %v, want %s on %s", i, got[i], w.id, w.date)
		}
	}
	if got[0]["first_date"] != "2024-03-04" || got[0]["repeat_configuration"] != "weekly" || got[0]["creator"] != "2" {
		t.Errorf("fields = %v", got[0])
	}
}

func TestListCalendarLimits(t *testing.T) {
	env := newTestEnv(t)
	seedEvents(t, env)

	for _, path := range []string{"/api/calendar", "/api/calendar/?limit=500"} {
		got := decodeBody[[]map[string]string](t, env.do(t, http.MethodGet, path, userKey, nil))
		if len(got) != 50 {
			t.Errorf("%s returned %d, want 50", path, len(got))
		}
	}

	assertError(t, env.do(t, http.MethodGet, "/api/calendar/?limit=ten", userKey, nil), http.StatusBadRequest, "limit must be an integer")
}

func TestListCalendarUsesConfiguredZone(t *testing.T) {
	env := newTestEnv(t)
	seedEvents(t, env)

	// 23:30 UTC on the 11th is already the 12th in Auckland.
	env.calendar.now = func() time.Time { return time.Date(2024, 3, 11, 23, 30, 0, 0, time.UTC) }
	loc, err := time.LoadLocation("Pacific/Auckland")
	if err != nil {
		t.Skip("tzdata unavailable")
	}
	env.calendar.loc = loc

	got := decodeBody[[]map[string]string](t, env.do(t, http.MethodGet, "/api/calendar/?limit=1", userKey, nil))
	if len(got) != 1 || got[0]["date"] != "2024-03-12" {
		t.Errorf("got %v, want the special on 2024-03-12", got)
	}
}

func TestCreateCalendarEvent(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/api/calendar/", userKey, map[string]string{
		"title":                "Live recording",
		"first_date":           "2024-04-01",
		"repeat_configuration": "monthly",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	body := decodeBody[map[string]string](t, rec)
	if body["status"] != "okay" {
		t.Errorf("body = %v", body)
	}
	if _, err := uuid.Parse(body["id"]); err != nil {
		t.Errorf("id %q is not a uuid: %v", body["id"], err)
	}

	ev, err := env.events.GetEvent(t.Context(), body["id"])
	if err != nil {
		t.Fatalf("stored event: %v", err)
	}
	if ev.Creator != userID || ev.RepeatConfiguration != models.RepeatMonthly || models.FormatDate(ev.FirstDate) != "2024-04-01" {
		t.Errorf("event = %+v", ev)
	}
}

func TestCreateCalendarEventValidation(t *testing.T) {
	env := newTestEnv(t)

	tests := []struct {
		name    string
		body    map[string]string
		message string
	}{
		{"no title", map[string]string{"first_date": "2024-04-01", "repeat_configuration": "once"}, "Missing property title"},
		{"no date", map[string]string{"title": "x", "repeat_configuration": "once"}, "Missing property first_date"},
		{"no repeat", map[string]string{"title": "x", "first_date": "2024-04-01"}, "Missing property repeat_configuration"},
		{"bad date", map[string]string{"title": "x", "first_date": "01/04/2024", "repeat_configuration": "once"}, "Invalid first_date, expected YYYY-MM-DD"},
		{"bad repeat", map[string]string{"title": "x", "first_date": "2024-04-01", "repeat_configuration": "daily"}, "Invalid repeat_configuration, expected once, weekly, fortnightly or monthly"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assertError(t, env.do(t, http.MethodPost, "/api/calendar/", userKey, tt.body), http.StatusBadRequest, tt.message)
		})
	}
	if len(env.events.events) != 0 {
		t.Errorf("stored %d events", len(env.events.events))
	}
}

func TestDeleteCalendarEvent(t *testing.T) {
	env := newTestEnv(t)
	seedEvents(t, env)

	assertError(t, env.do(t, http.MethodDelete, "/api/calendar/missing", userKey, nil), http.StatusNotFound, "Event not found")
	assertError(t, env.do(t, http.MethodDelete, "/api/calendar/special", userKey, nil), http.StatusForbidden,
		"You are not an administrator and you did not create this event")

	if rec := env.do(t, http.MethodDelete, "/api/calendar/weekly", userKey, nil); rec.Code != http.StatusOK {
		t.Errorf("creator delete status = %d", rec.Code)
	}
	if rec := env.do(t, http.MethodDelete, "/api/calendar/past", adminKey, nil); rec.Code != http.StatusOK {
		t.Errorf("admin delete status = %d", rec.Code)
	}
	if len(env.events.events) != 1 || env.events.events[0].ID != "special" {
		t.Errorf("remaining = %+v", env.events.events)
	}
}

func TestICalFeed(t *testing.T) {
	env := newTestEnv(t)
	seedEvents(t, env)

	for _, target := range []string{"/api/calendar/ical", "/api/calendar/ical?token=wrong"} {
		rec := env.do(t, http.MethodGet, target, "", nil)
		if rec.Code != http.StatusForbidden || rec.Body.String() != "Invalid token passed" {
			t.Errorf("%s: status = %d, body = %q", target, rec.Code, rec.Body.String())
		}
	}

	rec := env.do(t, http.MethodGet, "/api/calendar/ical?token="+serviceKey, "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "text/calendar" {
		t.Errorf("content type = %q", ct)
	}
	body := rec.Body.String()
	for _, want := range []string{"BEGIN:VCALENDAR", "UID:weekly", "SUMMARY:Weekly show", "RRULE:FREQ=WEEKLY"} {
		if !strings.Contains(body, want) {
			t.Errorf("feed missing %q", want)
		}
	}
}
