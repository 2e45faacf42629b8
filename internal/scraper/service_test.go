package scraper

import (
	"errors"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"bus-timetable-portal/internal/browser"
	"bus-timetable-portal/internal/models"
	"bus-timetable-portal/internal/registry"
)

const stationURL = "https://www.ratbv.ro/afisaje/6-dus/50224.html"

func newServiceForTest(t *testing.T, rec *sessionRecorder) (*Service, *registry.Registry) {
	t.Helper()
	reg := registry.New(filepath.Join(t.TempDir(), "routes.json"))
	return NewService(rec.factory, reg, Config{}), reg
}

func timetableSession() *fakeSession {
	return &fakeSession{html: map[string]string{selTimetableBox: timetableHTML}}
}

func sampleRoute() models.Route {
	return models.Route{
		ID:          "6-50224-dus",
		LineNumber:  "6",
		Direction:   models.DirectionOutbound,
		StationSlug: "50224",
		StationName: "Saturn",
		SourceURL:   stationURL,
	}
}

func TestFetchTimetableServedFromCache(t *testing.T) {
	rec := &sessionRecorder{build: timetableSession}
	svc, reg := newServiceForTest(t, rec)

	base := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return base }

	route := sampleRoute()
	route.AttachSnapshot([]string{"7:05", "7:20"}, base.Add(-2*time.Minute))
	if err := reg.Create(route); err != nil {
		t.Fatalf("seed failed: %v", err)
	}

	result, err := svc.FetchTimetable(&route)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.ServedFromCache {
		t.Error("a fresh snapshot should be served from cache")
	}
	if result.Age != 2*time.Minute {
		t.Errorf("age = %s, want 2m", result.Age)
	}
	if want := []string{"7:05", "7:20"}; !reflect.DeepEqual(result.Times, want) {
		t.Errorf("times = %v, want %v", result.Times, want)
	}
	if rec.opened != 0 {
		t.Errorf("cache hit must not open a browser session, opened %d", rec.opened)
	}
}

func TestFetchTimetableScrapesWhenStale(t *testing.T) {
	rec := &sessionRecorder{build: timetableSession}
	svc, reg := newServiceForTest(t, rec)

	base := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return base }

	route := sampleRoute()
	route.AttachSnapshot([]string{"6:40"}, base.Add(-10*time.Minute))
	if err := reg.Create(route); err != nil {
		t.Fatalf("seed failed: %v", err)
	}

	result, err := svc.FetchTimetable(&route)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.ServedFromCache {
		t.Error("a stale snapshot must trigger a scrape")
	}
	want := []string{"7:05", "7:20", "8:10"}
	if !reflect.DeepEqual(result.Times, want) {
		t.Errorf("times = %v, want %v", result.Times, want)
	}

	if rec.opened != 1 {
		t.Fatalf("expected exactly one session, opened %d", rec.opened)
	}
	sess := rec.sessions[0]
	if sess.closeCount != 1 {
		t.Errorf("session close count = %d, want 1", sess.closeCount)
	}
	if len(sess.visited) != 1 || sess.visited[0] != stationURL {
		t.Errorf("visited = %v, want only the station page", sess.visited)
	}

	stored, err := reg.FindByID(route.ID)
	if err != nil {
		t.Fatalf("lookup failed: %v", err)
	}
	if stored.Cache == nil {
		t.Fatal("scrape result was not persisted")
	}
	if !reflect.DeepEqual(stored.Cache.BusTimes, want) {
		t.Errorf("persisted times = %v, want %v", stored.Cache.BusTimes, want)
	}
	if !stored.Cache.CapturedAt.Equal(base) {
		t.Errorf("persisted capture time = %s, want %s", stored.Cache.CapturedAt, base)
	}
}

func TestFetchTimetableExactTTLIsStale(t *testing.T) {
	rec := &sessionRecorder{build: timetableSession}
	svc, reg := newServiceForTest(t, rec)

	base := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return base }

	route := sampleRoute()
	route.AttachSnapshot([]string{"6:40"}, base.Add(-svc.cacheTTL))
	if err := reg.Create(route); err != nil {
		t.Fatalf("seed failed: %v", err)
	}

	result, err := svc.FetchTimetable(&route)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.ServedFromCache {
		t.Error("a snapshot exactly at the TTL boundary counts as stale")
	}
	if rec.opened != 1 {
		t.Errorf("expected a scrape at the boundary, opened %d sessions", rec.opened)
	}
}

func TestFetchTimetableFailureKeepsStaleSnapshot(t *testing.T) {
	rec := &sessionRecorder{build: func() *fakeSession {
		return &fakeSession{navErr: map[string]error{
			stationURL: &browser.ScrapeError{Stage: "navigate", Target: stationURL, Err: errors.New("timeout")},
		}}
	}}
	svc, reg := newServiceForTest(t, rec)

	base := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return base }

	captured := base.Add(-10 * time.Minute)
	route := sampleRoute()
	route.AttachSnapshot([]string{"6:40"}, captured)
	if err := reg.Create(route); err != nil {
		t.Fatalf("seed failed: %v", err)
	}

	_, err := svc.FetchTimetable(&route)
	var scrapeErr *browser.ScrapeError
	if !errors.As(err, &scrapeErr) {
		t.Fatalf("expected a scrape error, got %v", err)
	}

	if rec.sessions[0].closeCount != 1 {
		t.Error("session must be closed on the failure path")
	}

	stored, lookupErr := reg.FindByID(route.ID)
	if lookupErr != nil {
		t.Fatalf("lookup failed: %v", lookupErr)
	}
	if stored.Cache == nil || !reflect.DeepEqual(stored.Cache.BusTimes, []string{"6:40"}) {
		t.Errorf("stale snapshot must survive a failed scrape, got %+v", stored.Cache)
	}
	if !stored.Cache.CapturedAt.Equal(captured) {
		t.Errorf("capture time changed on a failed scrape: %s", stored.Cache.CapturedAt)
	}
}

func TestFetchTimetableNilRoute(t *testing.T) {
	rec := &sessionRecorder{build: timetableSession}
	svc, _ := newServiceForTest(t, rec)

	_, err := svc.FetchTimetable(nil)
	if !errors.Is(err, ErrInvalidRequest) {
		t.Fatalf("expected ErrInvalidRequest, got %v", err)
	}
	if rec.opened != 0 {
		t.Errorf("invalid input must not open a session, opened %d", rec.opened)
	}
}

func TestRefreshRouteIgnoresFreshness(t *testing.T) {
	rec := &sessionRecorder{build: timetableSession}
	svc, reg := newServiceForTest(t, rec)

	base := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return base }

	route := sampleRoute()
	route.AttachSnapshot([]string{"6:40"}, base.Add(-time.Minute))
	if err := reg.Create(route); err != nil {
		t.Fatalf("seed failed: %v", err)
	}

	result, err := svc.RefreshRoute(&route)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.ServedFromCache {
		t.Error("refresh must bypass the cache")
	}
	if rec.opened != 1 {
		t.Errorf("refresh should scrape exactly once, opened %d", rec.opened)
	}

	stored, err := reg.FindByID(route.ID)
	if err != nil {
		t.Fatalf("lookup failed: %v", err)
	}
	if !reflect.DeepEqual(stored.Cache.BusTimes, []string{"7:05", "7:20", "8:10"}) {
		t.Errorf("refresh result not persisted: %v", stored.Cache.BusTimes)
	}
}

func TestInvalidateCache(t *testing.T) {
	rec := &sessionRecorder{build: timetableSession}
	svc, reg := newServiceForTest(t, rec)

	route := sampleRoute()
	route.AttachSnapshot([]string{"7:05"}, time.Now())
	if err := reg.Create(route); err != nil {
		t.Fatalf("seed failed: %v", err)
	}

	if err := svc.InvalidateCache(route.ID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	stored, err := reg.FindByID(route.ID)
	if err != nil {
		t.Fatalf("lookup failed: %v", err)
	}
	if stored.Cache != nil {
		t.Error("snapshot should be cleared and the cleared record persisted")
	}

	if err := svc.InvalidateCache("no-such-route"); !errors.Is(err, registry.ErrRouteNotFound) {
		t.Errorf("expected ErrRouteNotFound for unknown id, got %v", err)
	}
}

func TestFetchLineTopologyBlankURL(t *testing.T) {
	rec := &sessionRecorder{build: timetableSession}
	svc, _ := newServiceForTest(t, rec)

	_, err := svc.FetchLineTopology("  ")
	if !errors.Is(err, ErrInvalidRequest) {
		t.Fatalf("expected ErrInvalidRequest, got %v", err)
	}
	if rec.opened != 0 {
		t.Errorf("invalid input must not open a session, opened %d", rec.opened)
	}
}

func TestFetchDirectionTopologyValidation(t *testing.T) {
	rec := &sessionRecorder{build: timetableSession}
	svc, _ := newServiceForTest(t, rec)

	if _, err := svc.FetchDirectionTopology("", models.DirectionOutbound); !errors.Is(err, ErrInvalidRequest) {
		t.Errorf("blank line: expected ErrInvalidRequest, got %v", err)
	}
	if _, err := svc.FetchDirectionTopology("6", models.Direction("sideways")); !errors.Is(err, ErrInvalidRequest) {
		t.Errorf("bad direction: expected ErrInvalidRequest, got %v", err)
	}
	if rec.opened != 0 {
		t.Errorf("invalid input must not open a session, opened %d", rec.opened)
	}
}

func TestFetchDirectionTopologyInboundFallback(t *testing.T) {
	inboundURL := BuildMasterURL(defaultBaseURL, "6", models.DirectionInbound)
	rec := &sessionRecorder{build: func() *fakeSession {
		sess := topologySession()
		sess.navErr = map[string]error{
			inboundURL: &browser.ScrapeError{Stage: "navigate", Target: inboundURL, Err: errors.New("not found")},
		}
		return sess
	}}
	svc, _ := newServiceForTest(t, rec)

	topo, err := svc.FetchDirectionTopology("6", models.DirectionInbound)
	if err != nil {
		t.Fatalf("fallback should succeed, got %v", err)
	}
	if topo.Direction != models.DirectionInbound {
		t.Errorf("direction = %q, want intors", topo.Direction)
	}
	if !topo.Approximated {
		t.Error("fallback topology must be flagged approximated")
	}

	var names []string
	for _, st := range topo.Stations {
		names = append(names, st.Name)
	}
	wantNames := []string{"Livada Postei", "Sala Sporturilor", "Saturn"}
	if !reflect.DeepEqual(names, wantNames) {
		t.Errorf("fallback stations should reverse the outbound order, got %v", names)
	}

	if rec.opened != 2 {
		t.Fatalf("expected one failed and one fallback session, opened %d", rec.opened)
	}
	for i, sess := range rec.sessions {
		if sess.closeCount != 1 {
			t.Errorf("session %d close count = %d, want 1", i, sess.closeCount)
		}
	}
}

func TestFetchDirectionTopologyOutboundDoesNotFallBack(t *testing.T) {
	outboundURL := BuildMasterURL(defaultBaseURL, "6", models.DirectionOutbound)
	rec := &sessionRecorder{build: func() *fakeSession {
		sess := topologySession()
		sess.navErr = map[string]error{
			outboundURL: &browser.ScrapeError{Stage: "navigate", Target: outboundURL, Err: errors.New("not found")},
		}
		return sess
	}}
	svc, _ := newServiceForTest(t, rec)

	_, err := svc.FetchDirectionTopology("6", models.DirectionOutbound)
	if err == nil {
		t.Fatal("expected the outbound failure to propagate")
	}
	if rec.opened != 1 {
		t.Errorf("outbound failures must not retry, opened %d sessions", rec.opened)
	}
}
