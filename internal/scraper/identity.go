package scraper

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"bus-timetable-portal/internal/models"
)

// ErrInvalidRequest marks malformed operator input: a blank or unparseable
// master URL, an unknown direction value, missing fields on route creation.
var ErrInvalidRequest = errors.New("invalid request")

var (
	// Master URLs end in a "{line}-{direction}" directory:
	// https://www.ratbv.ro/afisaje/23b-dus/
	masterURLPattern = regexp.MustCompile(`([^/]+)-(dus|intors)/*$`)

	// Per-station links end in a short token filename, usually the site's
	// numeric stop code: .../afisaje/23b-dus/50224.html
	stationLinkPattern = regexp.MustCompile(`/([A-Za-z0-9]+)\.html$`)

	whitespaceRun = regexp.MustCompile(`\s+`)
)

// LineFromMasterURL pulls the line token and direction out of a master URL.
func LineFromMasterURL(masterURL string) (string, models.Direction, error) {
	m := masterURLPattern.FindStringSubmatch(strings.TrimSpace(masterURL))
	if m == nil {
		return "", "", fmt.Errorf("%w: master url %q has no line-direction segment", ErrInvalidRequest, masterURL)
	}
	return strings.ToLower(m[1]), models.Direction(m[2]), nil
}

// BuildMasterURL composes the direction-specific master URL for a line.
func BuildMasterURL(baseURL, line string, direction models.Direction) string {
	return fmt.Sprintf("%s/%s-%s/", strings.TrimRight(baseURL, "/"), strings.ToLower(line), direction)
}

// SlugifyStationName derives a URL-safe slug from a display name: lowercase,
// periods stripped, whitespace runs collapsed to single hyphens.
// "Sala Sporturilor" -> "sala-sporturilor".
func SlugifyStationName(name string) string {
	slug := strings.ToLower(strings.TrimSpace(name))
	slug = strings.ReplaceAll(slug, ".", "")
	slug = whitespaceRun.ReplaceAllString(slug, "-")
	return slug
}

// StationSlugFromLink prefers the token from the station's timetable link
// filename; when the link does not match the site pattern it falls back to
// the name-derived slug.
func StationSlugFromLink(link, stationName string) string {
	if m := stationLinkPattern.FindStringSubmatch(link); m != nil {
		return strings.ToLower(m[1])
	}
	return SlugifyStationName(stationName)
}

// RouteID composes the stable registry key for a line+station+direction.
func RouteID(line, stationSlug string, direction models.Direction) string {
	return fmt.Sprintf("%s-%s-%s", strings.ToLower(line), stationSlug, direction)
}
