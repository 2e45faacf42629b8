package scraper

import (
	"log"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"bus-timetable-portal/internal/browser"
)

// The schedule is an hour-by-minutes grid: one hour label per row and one
// minute-group wrapper per hour, aligned by position.
const (
	selTimetableBox = `div#tabele`
	selHourLabel    = `div.web_class_hours`
	selMinuteGroup  = `div.web_class_minutes`
	selMinuteCell   = `div.web_min`
)

// extractTimetable navigates to a station's timetable page and flattens the
// hour/minute grid into "H:MM" strings in page order.
func extractTimetable(sess browser.Session, stationURL string) ([]string, error) {
	log.Printf("[Timetable] Scraping %s", stationURL)

	if err := sess.Navigate(stationURL); err != nil {
		return nil, err
	}

	html, err := sess.HTML(selTimetableBox)
	if err != nil {
		return nil, err
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, &browser.ScrapeError{Stage: "parse-timetable", Target: stationURL, Err: err}
	}

	hours, groups := collectGrid(doc)
	times := flattenGrid(hours, groups)
	log.Printf("[Timetable] %s: %d departures (%d hour rows)", stationURL, len(times), len(hours))
	return times, nil
}

// collectGrid gathers the hour labels and, separately, the minute lists of
// each wrapper, both in document order.
func collectGrid(doc *goquery.Document) (hours []string, minuteGroups [][]string) {
	doc.Find(selHourLabel).Each(func(_ int, s *goquery.Selection) {
		hours = append(hours, strings.TrimSpace(s.Text()))
	})
	doc.Find(selMinuteGroup).Each(func(_ int, s *goquery.Selection) {
		var minutes []string
		s.Find(selMinuteCell).Each(func(_ int, c *goquery.Selection) {
			minutes = append(minutes, strings.TrimSpace(c.Text()))
		})
		minuteGroups = append(minuteGroups, minutes)
	})
	return hours, minuteGroups
}

// flattenGrid pairs hour i with minute group i and emits "{hour}:{minute}"
// per cell, hours verbatim (the site does not zero-pad). Hours with no
// positional counterpart are skipped; blank cells are dropped. Entries past
// midnight keep their page position, there is no day-rollover re-sort.
func flattenGrid(hours []string, minuteGroups [][]string) []string {
	times := []string{}
	for i, hour := range hours {
		if i >= len(minuteGroups) {
			break
		}
		if hour == "" {
			continue
		}
		for _, minute := range minuteGroups[i] {
			if minute == "" {
				continue
			}
			times = append(times, hour+":"+minute)
		}
	}
	return times
}
