package handlers

import (
	"net/http"
	"strings"
	"testing"
	"time"

	"bus-timetable-portal/internal/models"
)

func TestBuildCalendar(t *testing.T) {
	route := &models.Route{
		ID:          "6-50224-dus",
		LineNumber:  "6",
		Direction:   models.DirectionOutbound,
		StationName: "Saturn",
	}
	now := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)

	out := buildCalendar(route, []string{"7:05", "bogus", "8:10"}, now)

	if !strings.Contains(out, "BEGIN:VCALENDAR") {
		t.Fatal("output is not an iCal document")
	}
	if got := strings.Count(out, "BEGIN:VEVENT"); got != 2 {
		t.Errorf("event count = %d, want 2 (malformed entry skipped)", got)
	}
	if !strings.Contains(out, "SUMMARY:Bus 6 at Saturn") {
		t.Error("missing departure summary")
	}
	if !strings.Contains(out, "RRULE:FREQ=DAILY") {
		t.Error("events should recur daily")
	}
	if !strings.Contains(out, "UID:6-50224-dus-0@bus-timetable-portal") {
		t.Error("event uid should be derived from the route id")
	}
}

func TestGetRouteCalendarEndpoint(t *testing.T) {
	ts := newTestServer(t, 100)
	route := ts.cachedRoute(t, []string{"7:05", "7:20"})

	w := ts.do(t, http.MethodGet, "/api/routes/"+route.ID+"/calendar.ics", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200, body %s", w.Code, w.Body.String())
	}
	if ct := w.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/calendar") {
		t.Errorf("content type = %q", ct)
	}
	if cd := w.Header().Get("Content-Disposition"); !strings.Contains(cd, route.ID+".ics") {
		t.Errorf("content disposition = %q", cd)
	}
	if got := strings.Count(w.Body.String(), "BEGIN:VEVENT"); got != 2 {
		t.Errorf("event count = %d, want 2", got)
	}
}

func TestGetRouteCalendarUnknownRoute(t *testing.T) {
	ts := newTestServer(t, 100)

	w := ts.do(t, http.MethodGet, "/api/routes/ghost/calendar.ics", "")
	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", w.Code)
	}
}
