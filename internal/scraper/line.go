package scraper

import (
	"log"
	"net/url"

	"bus-timetable-portal/internal/browser"
	"bus-timetable-portal/internal/models"
)

// The master page is a frameset: the banner frame carries the line's
// display name, a second frame lists the stations for the direction.
const (
	lineNameFrameIndex    = 1
	stationListFrameIndex = 2
)

const (
	selLineNameLabel = `span#LabelTraseu`

	// The three marker classes cover the active, intermediate and terminal
	// stations; together, in document order, they are the stop sequence.
	selStationEntries = `a.linkStatieCurenta, a.linkStatie, a.linkStatieUltima`

	selStationNameBold = `b`
)

// extractLineTopology reads the line name and the ordered station list for
// one direction-specific master URL, all within the given session.
func extractLineTopology(sess browser.Session, masterURL string) (*models.LineTopology, error) {
	line, direction, err := LineFromMasterURL(masterURL)
	if err != nil {
		return nil, err
	}

	log.Printf("[Topology] Scraping line %s (%s) from %s", line, direction, masterURL)

	if err := sess.Navigate(masterURL); err != nil {
		return nil, err
	}

	if err := sess.SwitchFrame(lineNameFrameIndex); err != nil {
		return nil, err
	}
	label, err := sess.FindElement(selLineNameLabel)
	if err != nil {
		return nil, err
	}
	lineName, err := label.Text()
	if err != nil {
		return nil, err
	}

	sess.SwitchToDefault()
	if err := sess.SwitchFrame(stationListFrameIndex); err != nil {
		return nil, err
	}
	entries, err := sess.FindElements(selStationEntries)
	if err != nil {
		return nil, err
	}

	stations := make([]models.Station, 0, len(entries))
	for i, entry := range entries {
		name, err := stationName(entry)
		if err != nil {
			return nil, err
		}
		href, ok := entry.Attr("href")
		if !ok || href == "" {
			log.Printf("[Topology] Warning: station entry %d (%q) has no link, skipping", i, name)
			continue
		}
		timetableURL := resolveURL(masterURL, href)
		stations = append(stations, models.Station{
			Name:         name,
			Slug:         StationSlugFromLink(timetableURL, name),
			TimetableURL: timetableURL,
		})
	}

	log.Printf("[Topology] Line %s (%s): %q, %d stations", line, direction, lineName, len(stations))
	return &models.LineTopology{
		LineName:   lineName,
		LineNumber: line,
		Direction:  direction,
		Stations:   stations,
	}, nil
}

// stationName reads the entry's bold text; entries without a bold child
// fall back to their own text.
func stationName(entry browser.Element) (string, error) {
	bolds, err := entry.Find(selStationNameBold)
	if err != nil {
		return "", err
	}
	if len(bolds) > 0 {
		return bolds[0].Text()
	}
	return entry.Text()
}

// resolveURL absolutizes a station href against the page it came from.
// Unparseable inputs pass through untouched.
func resolveURL(pageURL, href string) string {
	base, err := url.Parse(pageURL)
	if err != nil {
		return href
	}
	ref, err := url.Parse(href)
	if err != nil {
		return href
	}
	return base.ResolveReference(ref).String()
}
