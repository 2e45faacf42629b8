package ratelimit

import (
	"sync"
	"time"
)

// ScrapeLimiter bounds how often HTTP callers may trigger browser work.
// One sliding hour window holds every accepted request; the minute count is
// derived from the same slice. This throttles the dashboard, it does not
// deduplicate scrapes: concurrent stale fetches still each run a session.
type ScrapeLimiter struct {
	perMinute int
	perHour   int
	enabled   bool

	window []time.Time
	mu     sync.Mutex
}

func NewScrapeLimiter(perMinute, perHour int, enabled bool) *ScrapeLimiter {
	return &ScrapeLimiter{
		perMinute: perMinute,
		perHour:   perHour,
		enabled:   enabled,
	}
}

// Allow records and admits the request unless a window is full.
func (l *ScrapeLimiter) Allow() bool {
	if !l.enabled {
		return true
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	l.trim(now)

	if l.perMinute > 0 && l.countSince(now.Add(-time.Minute)) >= l.perMinute {
		return false
	}
	if l.perHour > 0 && len(l.window) >= l.perHour {
		return false
	}

	l.window = append(l.window, now)
	return true
}

// trim drops stamps older than the hour window.
func (l *ScrapeLimiter) trim(now time.Time) {
	cutoff := now.Add(-time.Hour)
	kept := l.window[:0]
	for _, t := range l.window {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	l.window = kept
}

func (l *ScrapeLimiter) countSince(cutoff time.Time) int {
	n := 0
	for _, t := range l.window {
		if t.After(cutoff) {
			n++
		}
	}
	return n
}

// Stats is the counters snapshot served on the stats endpoint.
type Stats struct {
	Enabled         bool `json:"enabled"`
	LastMinute      int  `json:"lastMinute"`
	LastHour        int  `json:"lastHour"`
	PerMinute       int  `json:"perMinute"`
	PerHour         int  `json:"perHour"`
	RemainingMinute int  `json:"remainingMinute"`
	RemainingHour   int  `json:"remainingHour"`
}

func (l *ScrapeLimiter) GetStats() Stats {
	if !l.enabled {
		return Stats{Enabled: false}
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	l.trim(now)
	lastMinute := l.countSince(now.Add(-time.Minute))

	return Stats{
		Enabled:         true,
		LastMinute:      lastMinute,
		LastHour:        len(l.window),
		PerMinute:       l.perMinute,
		PerHour:         l.perHour,
		RemainingMinute: max(0, l.perMinute-lastMinute),
		RemainingHour:   max(0, l.perHour-len(l.window)),
	}
}

// Reset clears all tracked requests, reopening both windows. Exposed on the
// admin surface for operators who hit the limit during route setup.
func (l *ScrapeLimiter) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.window = nil
}
