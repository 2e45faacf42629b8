package handlers

import (
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"bus-timetable-portal/internal/cleanup"
	"bus-timetable-portal/internal/config"
	"bus-timetable-portal/internal/ratelimit"
	"bus-timetable-portal/internal/registry"
)

// AdminHandler serves the maintenance endpoints: snapshot hygiene, limiter
// reset and registry export.
type AdminHandler struct {
	registry       *registry.Registry
	cleanupService *cleanup.Service
	limiter        *ratelimit.ScrapeLimiter
	config         *config.Config
}

func NewAdminHandler(reg *registry.Registry, limiter *ratelimit.ScrapeLimiter, cfg *config.Config) *AdminHandler {
	return &AdminHandler{
		registry:       reg,
		cleanupService: cleanup.NewService(reg),
		limiter:        limiter,
		config:         cfg,
	}
}

// cacheEntry is one row of the snapshot overview.
type cacheEntry struct {
	RouteID     string `json:"routeId"`
	StationName string `json:"stationName"`
	Cached      bool   `json:"cached"`
	AgeMillis   int64  `json:"ageMillis,omitempty"`
	TimeCount   int    `json:"timeCount,omitempty"`
}

// GetCacheOverview reports the snapshot state of every registered route.
func (h *AdminHandler) GetCacheOverview(c *gin.Context) {
	routes, err := h.registry.LoadRoutes()
	if err != nil {
		renderError(c, err)
		return
	}

	now := time.Now()
	entries := make([]cacheEntry, 0, len(routes))
	cachedCount := 0
	for _, route := range routes {
		entry := cacheEntry{RouteID: route.ID, StationName: route.StationName}
		if route.Cache != nil {
			entry.Cached = true
			entry.AgeMillis = route.Cache.Age(now).Milliseconds()
			entry.TimeCount = len(route.Cache.BusTimes)
			cachedCount++
		}
		entries = append(entries, entry)
	}

	c.JSON(http.StatusOK, gin.H{
		"routes":      entries,
		"count":       len(entries),
		"cachedCount": cachedCount,
	})
}

// RunCleanup executes the snapshot sweep outside its schedule.
func (h *AdminHandler) RunCleanup(c *gin.Context) {
	var req struct {
		RetentionHours int  `json:"retentionHours"`
		DryRun         bool `json:"dryRun"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	cfg := cleanup.DefaultConfig()
	if req.RetentionHours > 0 {
		cfg.Retention = time.Duration(req.RetentionHours) * time.Hour
	} else if h.config != nil {
		cfg.Retention = h.config.Cleanup.GetRetention()
	}
	cfg.DryRun = req.DryRun

	log.Printf("[Admin] Running snapshot cleanup (retention %s, dry-run: %v)", cfg.Retention, cfg.DryRun)

	result, err := h.cleanupService.ClearExpiredSnapshots(cfg)
	if err != nil {
		renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// ResetRateLimiter clears the limiter windows after an operator mistake
// locked the dashboard out.
func (h *AdminHandler) ResetRateLimiter(c *gin.Context) {
	h.limiter.Reset()
	log.Println("[Admin] Rate limiter reset")
	c.JSON(http.StatusOK, gin.H{"message": "rate limiter reset"})
}

// ExportRegistry downloads the whole route collection, snapshots included.
func (h *AdminHandler) ExportRegistry(c *gin.Context) {
	routes, err := h.registry.LoadRoutes()
	if err != nil {
		renderError(c, err)
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=routes-export-%s.json", time.Now().Format("20060102")))
	c.JSON(http.StatusOK, gin.H{
		"routes":     routes,
		"count":      len(routes),
		"exportedAt": time.Now(),
	})
}
