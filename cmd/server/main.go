package main

import (
	"fmt"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	"bus-timetable-portal/internal/browser"
	"bus-timetable-portal/internal/config"
	"bus-timetable-portal/internal/handlers"
	"bus-timetable-portal/internal/ratelimit"
	"bus-timetable-portal/internal/registry"
	"bus-timetable-portal/internal/scheduler"
	"bus-timetable-portal/internal/scraper"
)

var (
	appConfig     *config.Config
	routeStore    *registry.Registry
	scrapeService *scraper.Service
	appScheduler  *scheduler.Scheduler
	rateLimiter   *ratelimit.ScrapeLimiter
)

func main() {
	// .env is optional; deployments usually set the environment directly.
	if err := godotenv.Load(); err == nil {
		log.Println("Loaded environment from .env")
	}

	configPath := getEnv("CONFIG_PATH", "config/portal.yaml")
	var err error
	appConfig, err = config.LoadConfig(configPath)
	if err != nil {
		log.Fatalf("Failed to load config from %s: %v", configPath, err)
	}
	log.Printf("Loaded configuration from %s", configPath)

	// Route registry (flat JSON file)
	routeStore = registry.New(appConfig.Registry.Path)
	count, err := routeStore.Count()
	if err != nil {
		log.Fatalf("Failed to read route registry %s: %v", appConfig.Registry.Path, err)
	}
	log.Printf("Route registry at %s: %d routes", appConfig.Registry.Path, count)

	// Browser sessions and the scrape orchestrator
	sessions := browser.NewFactory(browser.Config{
		ExecPath:    appConfig.Scraper.ChromePath,
		NavTimeout:  appConfig.Scraper.GetNavTimeout(),
		ElementWait: appConfig.Scraper.GetElementWait(),
		UserAgent:   appConfig.UserAgent,
	})
	scrapeService = scraper.NewService(sessions, routeStore, scraper.Config{
		BaseURL:  appConfig.Scraper.BaseURL,
		CacheTTL: appConfig.Cache.GetTTL(),
	})
	log.Printf("Scraper initialized: base %s, cache TTL %s",
		appConfig.Scraper.BaseURL, appConfig.Cache.GetTTL())

	// Rate limiter for scrape-triggering endpoints
	rateLimiter = ratelimit.NewScrapeLimiter(
		appConfig.RateLimit.RequestsPerMinute,
		appConfig.RateLimit.RequestsPerHour,
		appConfig.RateLimit.Enabled,
	)
	log.Printf("Rate limiter initialized: %d req/min, %d req/hour (enabled: %v)",
		appConfig.RateLimit.RequestsPerMinute,
		appConfig.RateLimit.RequestsPerHour,
		appConfig.RateLimit.Enabled,
	)

	// Daily warm-up refresh
	appScheduler = scheduler.NewScheduler(scrapeService, routeStore, appConfig)
	if err := appScheduler.Start(); err != nil {
		log.Printf("Warning: Failed to start scheduler: %v", err)
	}
	defer appScheduler.Stop()

	// Setup Gin router
	r := gin.Default()

	// CORS configuration
	r.Use(cors.New(cors.Config{
		AllowOrigins:     appConfig.Server.CORSOrigins,
		AllowMethods:     []string{"GET", "POST", "DELETE"},
		AllowHeaders:     []string{"Origin", "Content-Type"},
		AllowCredentials: true,
	}))

	h := handlers.NewRouteHandler(routeStore, scrapeService, appScheduler, rateLimiter)
	adminHandler := handlers.NewAdminHandler(routeStore, rateLimiter, appConfig)

	// Routes
	r.GET("/health", healthCheck)

	api := r.Group("/api")
	{
		api.GET("/routes", h.ListRoutes)
		api.POST("/routes", h.CreateRoute)
		api.DELETE("/routes/:id", h.DeleteRoute)
		api.POST("/routes/:id/invalidate", h.InvalidateCache)

		// Endpoints that may start a browser sit behind the limiter
		api.GET("/routes/:id/times", h.RateLimitMiddleware(), h.GetRouteTimes)
		api.GET("/routes/:id/calendar.ics", h.RateLimitMiddleware(), h.GetRouteCalendar)
		api.GET("/timetable", h.RateLimitMiddleware(), h.GetTimetableByKey)
		api.POST("/topology", h.RateLimitMiddleware(), h.GetTopology)

		api.GET("/scraper/stats", h.GetStats)
		api.POST("/refresh/run", h.TriggerRefresh)

		admin := api.Group("/admin")
		{
			admin.GET("/cache", adminHandler.GetCacheOverview)
			admin.POST("/cleanup", adminHandler.RunCleanup)
			admin.POST("/ratelimit/reset", adminHandler.ResetRateLimiter)
			admin.GET("/registry/export", adminHandler.ExportRegistry)
		}
	}

	addr := fmt.Sprintf(":%d", appConfig.Server.Port)
	log.Printf("Server starting on %s", addr)
	if err := r.Run(addr); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}

func healthCheck(c *gin.Context) {
	count, err := routeStore.Count()
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status": "degraded",
			"error":  err.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
		"routes": count,
		"time":   time.Now(),
	})
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
