package cleanup

import (
	"log"
	"time"

	"bus-timetable-portal/internal/registry"
)

// Service clears long-expired cache snapshots out of the registry file.
// A stale snapshot already behaves like an absent one on the display path,
// so dropping it only changes the file, never the served data.
type Service struct {
	registry *registry.Registry
}

func NewService(reg *registry.Registry) *Service {
	return &Service{registry: reg}
}

// Config holds configuration for a cleanup run.
type Config struct {
	Retention time.Duration // snapshots older than this are dropped
	DryRun    bool          // log what would be cleared without writing
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{
		Retention: 24 * time.Hour,
		DryRun:    false,
	}
}

// Result summarizes one cleanup run.
type Result struct {
	TargetCount   int       `json:"targetCount"`
	ClearedCount  int       `json:"clearedCount"`
	DryRun        bool      `json:"dryRun"`
	ExecutedAt    time.Time `json:"executedAt"`
	ClearedRoutes []string  `json:"clearedRoutes,omitempty"`
}

// ClearExpiredSnapshots walks the whole collection once and rewrites it once
// with the expired snapshots removed.
func (s *Service) ClearExpiredSnapshots(cfg Config) (*Result, error) {
	if cfg.Retention <= 0 {
		cfg.Retention = DefaultConfig().Retention
	}

	now := time.Now()
	result := &Result{DryRun: cfg.DryRun, ExecutedAt: now}

	routes, err := s.registry.LoadRoutes()
	if err != nil {
		return nil, err
	}

	for i := range routes {
		snap := routes[i].Cache
		if snap == nil || snap.Age(now) <= cfg.Retention {
			continue
		}
		result.TargetCount++
		if cfg.DryRun {
			log.Printf("[Cleanup] [DRY-RUN] Would clear snapshot of route %s (age %s)",
				routes[i].ID, snap.Age(now).Round(time.Minute))
			result.ClearedRoutes = append(result.ClearedRoutes, routes[i].ID)
			continue
		}
		routes[i].ClearCache()
		result.ClearedRoutes = append(result.ClearedRoutes, routes[i].ID)
		result.ClearedCount++
	}

	if result.TargetCount == 0 {
		log.Printf("[Cleanup] No snapshots older than %s", cfg.Retention)
		return result, nil
	}

	if !cfg.DryRun {
		if err := s.registry.SaveRoutes(routes); err != nil {
			return nil, err
		}
	}

	log.Printf("[Cleanup] Cleared %d/%d expired snapshots (retention %s, dry-run: %v)",
		result.ClearedCount, result.TargetCount, cfg.Retention, cfg.DryRun)
	return result, nil
}
