package browser

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/chromedp"
)

const (
	defaultExecPath    = "/usr/bin/google-chrome"
	defaultNavTimeout  = 30 * time.Second
	defaultElementWait = 5 * time.Second
	pollInterval       = 100 * time.Millisecond

	defaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/122.0.0.0 Safari/537.36"
)

// ErrElementNotFound is wrapped by ScrapeError when a lookup exhausts its
// implicit wait without a match.
var ErrElementNotFound = errors.New("element not found")

// ScrapeError is the single failure kind the driver surfaces: any browser,
// navigation or lookup problem wraps into one with the stage and the url or
// selector it happened on.
type ScrapeError struct {
	Stage  string
	Target string
	Err    error
}

func (e *ScrapeError) Error() string {
	return fmt.Sprintf("scrape failed at %s %q: %v", e.Stage, e.Target, e.Err)
}

func (e *ScrapeError) Unwrap() error {
	return e.Err
}

// Config holds the per-session browser settings. Zero values fall back to
// the defaults above; the headless flags themselves are fixed.
type Config struct {
	ExecPath    string
	NavTimeout  time.Duration
	ElementWait time.Duration
	UserAgent   string
}

// Element is a handle to one node in the current document context.
type Element interface {
	// Text returns the rendered text content, trimmed.
	Text() (string, error)
	// Attr returns the value of an attribute and whether it is present.
	Attr(name string) (string, bool)
	// Find matches descendants of this element, in document order.
	Find(selector string) ([]Element, error)
}

// Session is one headless browser lifetime. Extractors depend on this
// interface only, never on chromedp directly, so tests can substitute a
// canned implementation.
type Session interface {
	Navigate(url string) error
	// SwitchFrame enters the index-th frame/iframe of the top document.
	SwitchFrame(index int) error
	// SwitchToDefault returns lookups to the top-level document.
	SwitchToDefault()
	// FindElement waits up to the element wait for the first match.
	FindElement(selector string) (Element, error)
	// FindElements returns all current matches in document order. An empty
	// result is a valid answer, not an error; the call still grants the
	// implicit wait so late-loading frames settle first.
	FindElements(selector string) ([]Element, error)
	// HTML returns the outer HTML of the first match in the current frame.
	HTML(selector string) (string, error)
	// Close tears the browser down. Safe to call more than once and on
	// every exit path; no browser process survives its session.
	Close()
}

// Factory opens a fresh session per scrape operation.
type Factory func() (Session, error)

// NewFactory binds a config into a session factory for the orchestrator.
func NewFactory(cfg Config) Factory {
	return func() (Session, error) {
		return OpenSession(cfg)
	}
}

type chromeSession struct {
	ctx           context.Context
	allocCancel   context.CancelFunc
	ctxCancel     context.CancelFunc
	timeoutCancel context.CancelFunc

	elementWait time.Duration
	frame       *cdp.Node
	closed      bool
}

// OpenSession launches a headless Chrome and verifies it is reachable.
// Callers must Close the session; a defer right after OpenSession keeps the
// browser from outliving a failed scrape.
func OpenSession(cfg Config) (Session, error) {
	if cfg.ExecPath == "" {
		cfg.ExecPath = defaultExecPath
	}
	if cfg.NavTimeout == 0 {
		cfg.NavTimeout = defaultNavTimeout
	}
	if cfg.ElementWait == 0 {
		cfg.ElementWait = defaultElementWait
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = defaultUserAgent
	}

	// Chrome execution options for systemd/Docker compatibility
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.ExecPath(cfg.ExecPath),
		chromedp.Flag("headless", true),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("disable-setuid-sandbox", true),
		chromedp.Flag("disable-software-rasterizer", true),
		chromedp.UserAgent(cfg.UserAgent),
	)

	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), opts...)
	browserCtx, ctxCancel := chromedp.NewContext(allocCtx)
	ctx, timeoutCancel := context.WithTimeout(browserCtx, cfg.NavTimeout)

	s := &chromeSession{
		ctx:           ctx,
		allocCancel:   allocCancel,
		ctxCancel:     ctxCancel,
		timeoutCancel: timeoutCancel,
		elementWait:   cfg.ElementWait,
	}

	// Run with no actions forces the browser to start now, so a missing or
	// broken Chrome binary fails here instead of mid-extraction.
	if err := chromedp.Run(ctx); err != nil {
		s.Close()
		return nil, &ScrapeError{Stage: "launch", Target: cfg.ExecPath, Err: err}
	}
	return s, nil
}

func (s *chromeSession) Navigate(url string) error {
	log.Printf("[Browser] Navigating to %s", url)
	// Navigation resets any frame context from the previous page.
	s.frame = nil

	// Frameset pages carry no <body>, so wait on either.
	err := chromedp.Run(s.ctx,
		chromedp.Navigate(url),
		chromedp.WaitReady(`body, frameset`, chromedp.ByQuery),
	)
	if err != nil {
		return &ScrapeError{Stage: "navigate", Target: url, Err: err}
	}
	return nil
}

func (s *chromeSession) SwitchFrame(index int) error {
	var frames []*cdp.Node
	err := chromedp.Run(s.ctx,
		chromedp.Nodes(`frame, iframe`, &frames, chromedp.ByQueryAll, chromedp.AtLeast(0)),
	)
	if err != nil {
		return &ScrapeError{Stage: "switch-frame", Target: fmt.Sprintf("index %d", index), Err: err}
	}
	if index < 0 || index >= len(frames) {
		return &ScrapeError{
			Stage:  "switch-frame",
			Target: fmt.Sprintf("index %d", index),
			Err:    fmt.Errorf("page has %d frames: %w", len(frames), ErrElementNotFound),
		}
	}
	s.frame = frames[index]
	return nil
}

func (s *chromeSession) SwitchToDefault() {
	s.frame = nil
}

// queryAll runs one selector pass in the current frame context. AtLeast(0)
// keeps chromedp from blocking when nothing matches; waiting is handled by
// the callers' poll loops.
func (s *chromeSession) queryAll(selector string) ([]*cdp.Node, error) {
	opts := []chromedp.QueryOption{chromedp.ByQueryAll, chromedp.AtLeast(0)}
	if s.frame != nil {
		opts = append(opts, chromedp.FromNode(s.frame))
	}
	var nodes []*cdp.Node
	if err := chromedp.Run(s.ctx, chromedp.Nodes(selector, &nodes, opts...)); err != nil {
		return nil, &ScrapeError{Stage: "query", Target: selector, Err: err}
	}
	return nodes, nil
}

func (s *chromeSession) FindElement(selector string) (Element, error) {
	deadline := time.Now().Add(s.elementWait)
	for {
		nodes, err := s.queryAll(selector)
		if err != nil {
			return nil, err
		}
		if len(nodes) > 0 {
			return &chromeElement{session: s, node: nodes[0]}, nil
		}
		if time.Now().After(deadline) {
			return nil, &ScrapeError{Stage: "find", Target: selector, Err: ErrElementNotFound}
		}
		time.Sleep(pollInterval)
	}
}

func (s *chromeSession) FindElements(selector string) ([]Element, error) {
	deadline := time.Now().Add(s.elementWait)
	for {
		nodes, err := s.queryAll(selector)
		if err != nil {
			return nil, err
		}
		if len(nodes) > 0 || time.Now().After(deadline) {
			elements := make([]Element, len(nodes))
			for i, n := range nodes {
				elements[i] = &chromeElement{session: s, node: n}
			}
			return elements, nil
		}
		time.Sleep(pollInterval)
	}
}

func (s *chromeSession) HTML(selector string) (string, error) {
	el, err := s.FindElement(selector)
	if err != nil {
		return "", err
	}
	node := el.(*chromeElement).node
	var html string
	err = chromedp.Run(s.ctx,
		chromedp.OuterHTML([]cdp.NodeID{node.NodeID}, &html, chromedp.ByNodeID),
	)
	if err != nil {
		return "", &ScrapeError{Stage: "read-html", Target: selector, Err: err}
	}
	return html, nil
}

func (s *chromeSession) Close() {
	if s.closed {
		return
	}
	s.closed = true
	s.timeoutCancel()
	s.ctxCancel()
	s.allocCancel()
}

type chromeElement struct {
	session *chromeSession
	node    *cdp.Node
}

func (e *chromeElement) Text() (string, error) {
	var text string
	err := chromedp.Run(e.session.ctx,
		chromedp.Text([]cdp.NodeID{e.node.NodeID}, &text, chromedp.ByNodeID),
	)
	if err != nil {
		return "", &ScrapeError{Stage: "read-text", Target: e.node.NodeName, Err: err}
	}
	return strings.TrimSpace(text), nil
}

func (e *chromeElement) Attr(name string) (string, bool) {
	attrs := e.node.Attributes
	for i := 0; i+1 < len(attrs); i += 2 {
		if attrs[i] == name {
			return attrs[i+1], true
		}
	}
	return "", false
}

func (e *chromeElement) Find(selector string) ([]Element, error) {
	var nodes []*cdp.Node
	err := chromedp.Run(e.session.ctx,
		chromedp.Nodes(selector, &nodes, chromedp.ByQueryAll, chromedp.AtLeast(0), chromedp.FromNode(e.node)),
	)
	if err != nil {
		return nil, &ScrapeError{Stage: "query", Target: selector, Err: err}
	}
	elements := make([]Element, len(nodes))
	for i, n := range nodes {
		elements[i] = &chromeElement{session: e.session, node: n}
	}
	return elements, nil
}
