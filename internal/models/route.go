package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// Direction is the travel direction of a route as the upstream site names it.
type Direction string

const (
	DirectionOutbound Direction = "dus"
	DirectionInbound  Direction = "intors"
)

// ParseDirection validates a raw direction value from config, URL or request body.
func ParseDirection(s string) (Direction, error) {
	switch Direction(s) {
	case DirectionOutbound, DirectionInbound:
		return Direction(s), nil
	}
	return "", fmt.Errorf("unknown direction %q (want %q or %q)", s, DirectionOutbound, DirectionInbound)
}

// Opposite returns the other direction of the same line.
func (d Direction) Opposite() Direction {
	if d == DirectionOutbound {
		return DirectionInbound
	}
	return DirectionOutbound
}

func (d Direction) Valid() bool {
	return d == DirectionOutbound || d == DirectionInbound
}

// CacheSnapshot is one captured timetable for a route. Staleness is decided
// against a caller-supplied clock reading so the policy stays deterministic
// under test.
type CacheSnapshot struct {
	BusTimes   []string
	CapturedAt time.Time
}

// IsFresh reports whether the snapshot is younger than ttl at the given time.
// A nil snapshot is never fresh.
func (s *CacheSnapshot) IsFresh(now time.Time, ttl time.Duration) bool {
	if s == nil {
		return false
	}
	return now.Sub(s.CapturedAt) < ttl
}

// Age returns how old the snapshot is at the given time.
func (s *CacheSnapshot) Age(now time.Time) time.Duration {
	if s == nil {
		return 0
	}
	return now.Sub(s.CapturedAt)
}

// Route is one registered line+direction+station combination. The attached
// CacheSnapshot persists inline with the route record in the registry file.
type Route struct {
	// Identity
	ID          string
	LineNumber  string
	Direction   Direction
	StationSlug string

	// Display metadata
	StationName  string
	SourceURL    string
	FirstStation string
	LastStation  string

	// Cached timetable, nil when never scraped or invalidated
	Cache *CacheSnapshot
}

// AttachSnapshot replaces the cached timetable with a fresh capture.
func (r *Route) AttachSnapshot(times []string, now time.Time) {
	r.Cache = &CacheSnapshot{BusTimes: times, CapturedAt: now}
}

// ClearCache drops the cached timetable so the next fetch scrapes again.
func (r *Route) ClearCache() {
	r.Cache = nil
}

// routeJSON is the persisted wire shape: cache fields sit inline on the
// route object and are absent entirely when there is no snapshot.
type routeJSON struct {
	ID             string     `json:"id"`
	LineNumber     string     `json:"lineNumber"`
	Direction      Direction  `json:"direction"`
	StationSlug    string     `json:"stationSlug"`
	StationName    string     `json:"stationName"`
	SourceURL      string     `json:"sourceUrl"`
	FirstStation   string     `json:"firstStation,omitempty"`
	LastStation    string     `json:"lastStation,omitempty"`
	CachedBusTimes []string   `json:"cachedBusTimes,omitempty"`
	CacheTimestamp *time.Time `json:"cacheTimestamp,omitempty"`
}

func (r Route) MarshalJSON() ([]byte, error) {
	out := routeJSON{
		ID:           r.ID,
		LineNumber:   r.LineNumber,
		Direction:    r.Direction,
		StationSlug:  r.StationSlug,
		StationName:  r.StationName,
		SourceURL:    r.SourceURL,
		FirstStation: r.FirstStation,
		LastStation:  r.LastStation,
	}
	if r.Cache != nil {
		out.CachedBusTimes = r.Cache.BusTimes
		ts := r.Cache.CapturedAt
		out.CacheTimestamp = &ts
	}
	return json.Marshal(out)
}

func (r *Route) UnmarshalJSON(data []byte) error {
	var in routeJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	*r = Route{
		ID:           in.ID,
		LineNumber:   in.LineNumber,
		Direction:    in.Direction,
		StationSlug:  in.StationSlug,
		StationName:  in.StationName,
		SourceURL:    in.SourceURL,
		FirstStation: in.FirstStation,
		LastStation:  in.LastStation,
	}
	// The timestamp decides snapshot presence; a record may legitimately
	// carry an empty times list (station with no listed departures).
	if in.CacheTimestamp != nil {
		r.Cache = &CacheSnapshot{BusTimes: in.CachedBusTimes, CapturedAt: *in.CacheTimestamp}
	}
	return nil
}
