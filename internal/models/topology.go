package models

// Station is one stop on a line, in the order the site lists it.
type Station struct {
	Name         string `json:"name"`
	Slug         string `json:"slug"`
	TimetableURL string `json:"timetableUrl"`
}

// LineTopology is the scraped shape of one line in one direction: display
// name plus the physical stop sequence.
type LineTopology struct {
	LineName   string    `json:"lineName"`
	LineNumber string    `json:"lineNumber"`
	Direction  Direction `json:"direction"`
	Stations   []Station `json:"stations"`

	// Approximated marks a topology synthesized by reversing the opposite
	// direction because the requested one could not be scraped.
	Approximated bool `json:"approximated,omitempty"`
}

// Reversed returns the same stop sequence walked backwards, retagged for the
// opposite direction and marked approximated. Used as the inbound fallback
// when the site has no page for that direction.
func (t LineTopology) Reversed() LineTopology {
	stations := make([]Station, len(t.Stations))
	for i, s := range t.Stations {
		stations[len(t.Stations)-1-i] = s
	}
	return LineTopology{
		LineName:     t.LineName,
		LineNumber:   t.LineNumber,
		Direction:    t.Direction.Opposite(),
		Stations:     stations,
		Approximated: true,
	}
}

// Endpoints returns the first and last station names, empty when unknown.
func (t LineTopology) Endpoints() (first, last string) {
	if len(t.Stations) == 0 {
		return "", ""
	}
	return t.Stations[0].Name, t.Stations[len(t.Stations)-1].Name
}
