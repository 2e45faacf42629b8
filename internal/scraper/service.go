package scraper

import (
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"bus-timetable-portal/internal/browser"
	"bus-timetable-portal/internal/models"
	"bus-timetable-portal/internal/registry"
)

const (
	defaultBaseURL  = "https://www.ratbv.ro/afisaje"
	defaultCacheTTL = 5 * time.Minute
)

// Config tunes the orchestrator; zero values fall back to the defaults.
type Config struct {
	BaseURL  string
	CacheTTL time.Duration
}

// Service drives scrape operations end to end. Every operation opens its
// own browser session and releases it before returning, success or not.
// There is deliberately no deduplication: two simultaneous fetches of the
// same stale route each run a session, and the later registry write wins.
type Service struct {
	sessions browser.Factory
	registry *registry.Registry
	baseURL  string
	cacheTTL time.Duration

	// now is the clock used for snapshot staleness; swapped in tests.
	now func() time.Time
}

func NewService(sessions browser.Factory, reg *registry.Registry, cfg Config) *Service {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if cfg.CacheTTL == 0 {
		cfg.CacheTTL = defaultCacheTTL
	}
	return &Service{
		sessions: sessions,
		registry: reg,
		baseURL:  strings.TrimRight(cfg.BaseURL, "/"),
		cacheTTL: cfg.CacheTTL,
		now:      time.Now,
	}
}

// CacheTTL exposes the effective snapshot lifetime.
func (s *Service) CacheTTL() time.Duration {
	return s.cacheTTL
}

// Now reads the service clock; handlers use it so displayed values agree
// with the staleness decisions.
func (s *Service) Now() time.Time {
	return s.now()
}

// BaseURL exposes the configured master URL prefix.
func (s *Service) BaseURL() string {
	return s.baseURL
}

// FetchLineTopology scrapes the line name and ordered station list behind
// one direction-specific master URL.
func (s *Service) FetchLineTopology(masterURL string) (*models.LineTopology, error) {
	if strings.TrimSpace(masterURL) == "" {
		return nil, fmt.Errorf("%w: master url is required", ErrInvalidRequest)
	}

	sess, err := s.sessions()
	if err != nil {
		return nil, err
	}
	defer sess.Close()

	return extractLineTopology(sess, masterURL)
}

// FetchDirectionTopology builds the master URL for a line and direction and
// scrapes it. When the inbound page cannot be scraped, the outbound stop
// sequence is reversed as an approximation and flagged as such; the original
// error still wins if the outbound page is broken too.
func (s *Service) FetchDirectionTopology(line string, direction models.Direction) (*models.LineTopology, error) {
	line = strings.TrimSpace(line)
	if line == "" {
		return nil, fmt.Errorf("%w: line number is required", ErrInvalidRequest)
	}
	if !direction.Valid() {
		return nil, fmt.Errorf("%w: direction %q", ErrInvalidRequest, direction)
	}

	topo, err := s.FetchLineTopology(BuildMasterURL(s.baseURL, line, direction))
	if err == nil || direction != models.DirectionInbound {
		return topo, err
	}
	var scrapeErr *browser.ScrapeError
	if !errors.As(err, &scrapeErr) {
		return nil, err
	}

	log.Printf("[Topology] Inbound page for line %s unavailable (%v), approximating from outbound", line, err)
	outbound, fallbackErr := s.FetchLineTopology(BuildMasterURL(s.baseURL, line, models.DirectionOutbound))
	if fallbackErr != nil {
		return nil, err
	}
	reversed := outbound.Reversed()
	return &reversed, nil
}

// TimetableResult is what the display path consumes.
type TimetableResult struct {
	Times           []string
	ServedFromCache bool
	Age             time.Duration
}

// FetchTimetable serves the route's arrival times, from the snapshot while
// it is fresh, otherwise from a new scrape persisted through the registry.
// A failed scrape leaves any stale snapshot in place.
func (s *Service) FetchTimetable(route *models.Route) (*TimetableResult, error) {
	if route == nil {
		return nil, fmt.Errorf("%w: route is required", ErrInvalidRequest)
	}

	now := s.now()
	if route.Cache.IsFresh(now, s.cacheTTL) {
		age := route.Cache.Age(now)
		log.Printf("[Timetable] Route %s served from cache (age %s)", route.ID, age.Round(time.Second))
		return &TimetableResult{
			Times:           route.Cache.BusTimes,
			ServedFromCache: true,
			Age:             age,
		}, nil
	}
	return s.scrapeAndStore(route)
}

// RefreshRoute re-scrapes unconditionally; the scheduler's warm-up path.
func (s *Service) RefreshRoute(route *models.Route) (*TimetableResult, error) {
	if route == nil {
		return nil, fmt.Errorf("%w: route is required", ErrInvalidRequest)
	}
	return s.scrapeAndStore(route)
}

func (s *Service) scrapeAndStore(route *models.Route) (*TimetableResult, error) {
	sess, err := s.sessions()
	if err != nil {
		return nil, err
	}
	defer sess.Close()

	times, err := extractTimetable(sess, route.SourceURL)
	if err != nil {
		return nil, err
	}

	route.AttachSnapshot(times, s.now())
	if err := s.registry.Update(*route); err != nil {
		return nil, fmt.Errorf("failed to persist snapshot for route %s: %w", route.ID, err)
	}
	return &TimetableResult{Times: times, ServedFromCache: false}, nil
}

// InvalidateCache clears the identified route's snapshot and persists the
// cleared record.
func (s *Service) InvalidateCache(routeID string) error {
	route, err := s.registry.FindByID(routeID)
	if err != nil {
		return err
	}
	route.ClearCache()
	if err := s.registry.Update(*route); err != nil {
		return err
	}
	log.Printf("[Timetable] Cache invalidated for route %s", routeID)
	return nil
}
