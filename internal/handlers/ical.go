package handlers

import (
	"fmt"
	"net/http"
	"time"

	ics "github.com/arran4/golang-ical"
	"github.com/gin-gonic/gin"

	"bus-timetable-portal/internal/models"
)

// GetRouteCalendar exports a route's timetable as an iCal feed of
// daily-recurring one-minute events, one per departure. Calendar apps can
// subscribe to the URL directly.
func (h *RouteHandler) GetRouteCalendar(c *gin.Context) {
	route, err := h.registry.FindByID(c.Param("id"))
	if err != nil {
		renderError(c, err)
		return
	}

	result, err := h.service.FetchTimetable(route)
	if err != nil {
		renderError(c, err)
		return
	}

	c.Header("Content-Type", "text/calendar; charset=utf-8")
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%s.ics", route.ID))
	c.String(http.StatusOK, buildCalendar(route, result.Times, h.service.Now()))
}

func buildCalendar(route *models.Route, times []string, now time.Time) string {
	cal := ics.NewCalendar()
	cal.SetMethod(ics.MethodPublish)

	summary := fmt.Sprintf("Bus %s at %s", route.LineNumber, route.StationName)
	description := fmt.Sprintf("Line %s (%s), stop %s", route.LineNumber, route.Direction, route.StationName)

	for i, raw := range times {
		entry, err := models.ParseTimeEntry(raw)
		if err != nil {
			continue
		}
		start := time.Date(now.Year(), now.Month(), now.Day(), entry.Hour, entry.Minute, 0, 0, time.Local)

		event := cal.AddEvent(fmt.Sprintf("%s-%d@bus-timetable-portal", route.ID, i))
		event.SetDtStampTime(now)
		event.SetStartAt(start)
		event.SetEndAt(start.Add(time.Minute))
		event.SetSummary(summary)
		event.SetDescription(description)
		event.SetProperty(ics.ComponentPropertyRrule, "FREQ=DAILY")
	}

	return cal.Serialize()
}
