package scheduler

import (
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"bus-timetable-portal/internal/cleanup"
	"bus-timetable-portal/internal/config"
	"bus-timetable-portal/internal/registry"
	"bus-timetable-portal/internal/scraper"
)

// Scheduler re-scrapes every registered route once a day so the morning
// traffic starts from warm snapshots, then clears long-expired ones.
type Scheduler struct {
	cron      *cron.Cron
	service   *scraper.Service
	registry  *registry.Registry
	cleanup   *cleanup.Service
	config    *config.Config
	isRunning bool

	// refreshMu keeps a manual trigger from overlapping the cron run.
	refreshMu sync.Mutex
}

func NewScheduler(svc *scraper.Service, reg *registry.Registry, cfg *config.Config) *Scheduler {
	return &Scheduler{
		cron:     cron.New(),
		service:  svc,
		registry: reg,
		cleanup:  cleanup.NewService(reg),
		config:   cfg,
	}
}

// Start registers the daily job and starts the cron loop.
func (s *Scheduler) Start() error {
	if !s.config.Scraper.DailyRefreshEnabled {
		log.Println("Scheduler: Daily refresh is disabled in configuration")
		return nil
	}

	cronSpec := s.parseDailyRunTime(s.config.Scraper.DailyRefreshTime)

	_, err := s.cron.AddFunc(cronSpec, func() {
		log.Println("Scheduler: Starting daily refresh job...")
		if err := s.runRefresh(); err != nil {
			log.Printf("Scheduler: Daily refresh failed: %v", err)
		} else {
			log.Println("Scheduler: Daily refresh completed")
		}
	})
	if err != nil {
		return err
	}

	s.cron.Start()
	s.isRunning = true
	log.Printf("Scheduler: Started with daily refresh at %s (cron: %s)", s.config.Scraper.DailyRefreshTime, cronSpec)
	return nil
}

// Stop stops the cron loop. A refresh already in flight finishes.
func (s *Scheduler) Stop() {
	if s.isRunning {
		s.cron.Stop()
		s.isRunning = false
		log.Println("Scheduler: Stopped")
	}
}

// RunNow triggers the refresh job outside its schedule.
func (s *Scheduler) RunNow() error {
	log.Println("Scheduler: Manual trigger - starting refresh job...")
	return s.runRefresh()
}

func (s *Scheduler) runRefresh() error {
	if !s.refreshMu.TryLock() {
		return fmt.Errorf("refresh already running")
	}
	defer s.refreshMu.Unlock()

	routes, err := s.registry.LoadRoutes()
	if err != nil {
		return err
	}
	log.Printf("Scheduler: Found %d routes to refresh", len(routes))

	delay := s.config.Scraper.GetRequestDelay()
	successCount := 0
	errorCount := 0

	for i := range routes {
		route := routes[i]
		log.Printf("Scheduler: [%d/%d] Refreshing route %s", i+1, len(routes), route.ID)

		if _, err := s.service.RefreshRoute(&route); err != nil {
			log.Printf("Scheduler: Failed to refresh route %s: %v", route.ID, err)
			errorCount++
		} else {
			successCount++
		}

		// Polite pacing between scrapes; the upstream is a small site.
		if i < len(routes)-1 && delay > 0 {
			time.Sleep(delay)
		}
	}

	if _, err := s.cleanup.ClearExpiredSnapshots(cleanup.Config{
		Retention: s.config.Cleanup.GetRetention(),
	}); err != nil {
		log.Printf("Scheduler: Snapshot cleanup failed: %v", err)
	}

	log.Printf("Scheduler: Refresh completed. Success: %d, Errors: %d", successCount, errorCount)
	return nil
}

// parseDailyRunTime converts "HH:MM" to a cron specification.
// Example: "05:30" -> "30 5 * * *".
func (s *Scheduler) parseDailyRunTime(timeStr string) string {
	var hour, minute int
	n, _ := fmt.Sscanf(timeStr, "%d:%d", &hour, &minute)
	if n == 2 && hour >= 0 && hour <= 23 && minute >= 0 && minute <= 59 {
		return fmt.Sprintf("%d %d * * *", minute, hour)
	}

	log.Printf("Scheduler: Failed to parse time '%s', using default 05:30", timeStr)
	return "30 5 * * *"
}
