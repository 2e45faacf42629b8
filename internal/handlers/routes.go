package handlers

import (
	"errors"
	"log"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"bus-timetable-portal/internal/browser"
	"bus-timetable-portal/internal/models"
	"bus-timetable-portal/internal/ratelimit"
	"bus-timetable-portal/internal/registry"
	"bus-timetable-portal/internal/scheduler"
	"bus-timetable-portal/internal/scraper"
)

// RouteHandler serves the operator dashboard API.
type RouteHandler struct {
	registry  *registry.Registry
	service   *scraper.Service
	scheduler *scheduler.Scheduler
	limiter   *ratelimit.ScrapeLimiter
}

func NewRouteHandler(reg *registry.Registry, svc *scraper.Service, sched *scheduler.Scheduler, limiter *ratelimit.ScrapeLimiter) *RouteHandler {
	return &RouteHandler{
		registry:  reg,
		service:   svc,
		scheduler: sched,
		limiter:   limiter,
	}
}

// RateLimitMiddleware guards the endpoints that may start a browser.
func (h *RouteHandler) RateLimitMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !h.limiter.Allow() {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error": "rate limit exceeded, try again later",
			})
			return
		}
		c.Next()
	}
}

// renderError maps the core error kinds onto HTTP statuses.
func renderError(c *gin.Context, err error) {
	var scrapeErr *browser.ScrapeError
	switch {
	case errors.Is(err, registry.ErrRouteNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, registry.ErrDuplicateRouteID):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, scraper.ErrInvalidRequest):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.As(err, &scrapeErr):
		c.JSON(http.StatusBadGateway, gin.H{
			"error":  "schedule data unavailable",
			"detail": scrapeErr.Error(),
		})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}

// ListRoutes returns every registered route, cache fields included.
func (h *RouteHandler) ListRoutes(c *gin.Context) {
	routes, err := h.registry.LoadRoutes()
	if err != nil {
		renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"routes": routes,
		"count":  len(routes),
	})
}

type createRouteRequest struct {
	LineNumber   string `json:"lineNumber" binding:"required"`
	Direction    string `json:"direction" binding:"required"`
	StationName  string `json:"stationName" binding:"required"`
	SourceURL    string `json:"sourceUrl" binding:"required"`
	StationSlug  string `json:"stationSlug"`
	FirstStation string `json:"firstStation"`
	LastStation  string `json:"lastStation"`
}

// CreateRoute registers a route from an operator's topology selection or
// manual entry. The slug and id are derived server-side so every client
// produces the same key for the same station.
func (h *RouteHandler) CreateRoute(c *gin.Context) {
	var req createRouteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	direction, err := models.ParseDirection(req.Direction)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	slug := strings.TrimSpace(req.StationSlug)
	if slug == "" {
		slug = scraper.StationSlugFromLink(req.SourceURL, req.StationName)
	}

	route := models.Route{
		ID:           scraper.RouteID(req.LineNumber, slug, direction),
		LineNumber:   strings.ToLower(strings.TrimSpace(req.LineNumber)),
		Direction:    direction,
		StationSlug:  slug,
		StationName:  strings.TrimSpace(req.StationName),
		SourceURL:    req.SourceURL,
		FirstStation: req.FirstStation,
		LastStation:  req.LastStation,
	}

	if err := h.registry.Create(route); err != nil {
		renderError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"route": route})
}

// DeleteRoute removes a registered route.
func (h *RouteHandler) DeleteRoute(c *gin.Context) {
	id := c.Param("id")
	if err := h.registry.Delete(id); err != nil {
		renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "route deleted", "routeId": id})
}

// GetRouteTimes serves a route's timetable by id, cache-first.
func (h *RouteHandler) GetRouteTimes(c *gin.Context) {
	route, err := h.registry.FindByID(c.Param("id"))
	if err != nil {
		renderError(c, err)
		return
	}
	h.respondTimes(c, route)
}

// GetTimetableByKey is the display path: lookup by line+direction+station.
func (h *RouteHandler) GetTimetableByKey(c *gin.Context) {
	line := strings.ToLower(strings.TrimSpace(c.Query("line")))
	station := strings.TrimSpace(c.Query("station"))
	direction, err := models.ParseDirection(c.Query("direction"))
	if err != nil || line == "" || station == "" {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "line, direction and station query parameters are required",
		})
		return
	}

	route, err := h.registry.FindByKey(line, direction, station)
	if err != nil {
		renderError(c, err)
		return
	}
	h.respondTimes(c, route)
}

func (h *RouteHandler) respondTimes(c *gin.Context, route *models.Route) {
	result, err := h.service.FetchTimetable(route)
	if err != nil {
		renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"routeId":         route.ID,
		"stationName":     route.StationName,
		"times":           result.Times,
		"servedFromCache": result.ServedFromCache,
		"ageMillis":       result.Age.Milliseconds(),
		"nextIndex":       models.NextDepartureIndex(result.Times, h.service.Now()),
	})
}

// InvalidateCache clears a route's snapshot so the next fetch scrapes.
func (h *RouteHandler) InvalidateCache(c *gin.Context) {
	id := c.Param("id")
	if err := h.service.InvalidateCache(id); err != nil {
		renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "cache invalidated", "routeId": id})
}

type topologyRequest struct {
	MasterURL  string `json:"masterUrl"`
	LineNumber string `json:"lineNumber"`
	Direction  string `json:"direction"`
}

// GetTopology scrapes a line's station list, either from an explicit master
// URL or from a line+direction pair (which enables the inbound fallback).
func (h *RouteHandler) GetTopology(c *gin.Context) {
	var req topologyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var (
		topo *models.LineTopology
		err  error
	)
	if req.MasterURL != "" {
		topo, err = h.service.FetchLineTopology(req.MasterURL)
	} else {
		var direction models.Direction
		direction, err = models.ParseDirection(req.Direction)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		topo, err = h.service.FetchDirectionTopology(req.LineNumber, direction)
	}
	if err != nil {
		renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"topology": topo})
}

// GetStats reports limiter counters and registry size.
func (h *RouteHandler) GetStats(c *gin.Context) {
	count, err := h.registry.Count()
	if err != nil {
		renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"rateLimit":  h.limiter.GetStats(),
		"routeCount": count,
		"cacheTtlMs": h.service.CacheTTL().Milliseconds(),
		"sourceBase": h.service.BaseURL(),
	})
}

// TriggerRefresh starts the warm-up sweep outside its schedule.
func (h *RouteHandler) TriggerRefresh(c *gin.Context) {
	log.Println("[Handlers] Manual refresh trigger requested")

	// Run in goroutine to avoid blocking the request.
	go func() {
		if err := h.scheduler.RunNow(); err != nil {
			log.Printf("[Handlers] Manual refresh failed: %v", err)
		}
	}()

	c.JSON(http.StatusAccepted, gin.H{
		"message": "refresh job started",
		"status":  "running",
	})
}
