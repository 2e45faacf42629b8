package scraper

import (
	"fmt"

	"bus-timetable-portal/internal/browser"
)

// fakeElement is a canned browser.Element.
type fakeElement struct {
	text     string
	attrs    map[string]string
	children map[string][]browser.Element
}

func (e *fakeElement) Text() (string, error) { return e.text, nil }

func (e *fakeElement) Attr(name string) (string, bool) {
	v, ok := e.attrs[name]
	return v, ok
}

func (e *fakeElement) Find(selector string) ([]browser.Element, error) {
	return e.children[selector], nil
}

// fakeSession serves canned lookups and records what the extractors did.
type fakeSession struct {
	single   map[string]browser.Element
	elements map[string][]browser.Element
	html     map[string]string
	frames   int
	navErr   map[string]error

	visited       []string
	frameSwitches []int
	closeCount    int
}

func (s *fakeSession) Navigate(url string) error {
	if err := s.navErr[url]; err != nil {
		return err
	}
	s.visited = append(s.visited, url)
	return nil
}

func (s *fakeSession) SwitchFrame(index int) error {
	if index >= s.frames {
		return &browser.ScrapeError{
			Stage:  "switch-frame",
			Target: fmt.Sprintf("index %d", index),
			Err:    browser.ErrElementNotFound,
		}
	}
	s.frameSwitches = append(s.frameSwitches, index)
	return nil
}

func (s *fakeSession) SwitchToDefault() {}

func (s *fakeSession) FindElement(selector string) (browser.Element, error) {
	if el, ok := s.single[selector]; ok {
		return el, nil
	}
	return nil, &browser.ScrapeError{Stage: "find", Target: selector, Err: browser.ErrElementNotFound}
}

func (s *fakeSession) FindElements(selector string) ([]browser.Element, error) {
	return s.elements[selector], nil
}

func (s *fakeSession) HTML(selector string) (string, error) {
	if html, ok := s.html[selector]; ok {
		return html, nil
	}
	return "", &browser.ScrapeError{Stage: "find", Target: selector, Err: browser.ErrElementNotFound}
}

func (s *fakeSession) Close() { s.closeCount++ }

// sessionRecorder is a browser.Factory that hands out fresh fake sessions
// and keeps them for inspection.
type sessionRecorder struct {
	build    func() *fakeSession
	err      error
	opened   int
	sessions []*fakeSession
}

func (r *sessionRecorder) factory() (browser.Session, error) {
	if r.err != nil {
		return nil, r.err
	}
	r.opened++
	sess := r.build()
	r.sessions = append(r.sessions, sess)
	return sess, nil
}

// stationEntry builds a station list anchor with a bold name child.
func stationEntry(name, href string) *fakeElement {
	attrs := map[string]string{}
	if href != "" {
		attrs["href"] = href
	}
	return &fakeElement{
		attrs: attrs,
		children: map[string][]browser.Element{
			selStationNameBold: {&fakeElement{text: name}},
		},
	}
}
