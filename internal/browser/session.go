// Package browser owns a single externally controlled browser process and
// page, and exposes the narrow automation surface the login flow needs:
// navigation, form filling, DOM polling, and cookie reads.
package browser

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/launcher/flags"
	"github.com/go-rod/rod/lib/proto"

	"credkeeper/internal/config"
	"credkeeper/internal/logging"
)

var (
	// ErrBrowserUnavailable means no compatible browser executable was found.
	ErrBrowserUnavailable = errors.New("no compatible browser executable found")

	// ErrLaunchFailure means the browser process failed to start.
	ErrLaunchFailure = errors.New("browser process failed to start")

	// ErrNotStarted means an operation ran before Start.
	ErrNotStarted = errors.New("browser session not started")
)

// Cookie is one browser cookie by name and value.
type Cookie struct {
	Name  string
	Value string
}

// Session drives one browser page. Not safe for concurrent use; the flow
// state machine is the single caller.
type Session struct {
	cfg *config.BrowserConfig

	mu      sync.Mutex
	browser *rod.Browser
	page    *rod.Page
	closed  bool
}

// NewSession creates an unstarted session.
func NewSession(cfg *config.BrowserConfig) *Session {
	if cfg == nil {
		cfg = config.DefaultBrowserConfig()
	}
	return &Session{cfg: cfg}
}

// Start discovers and launches an automation-capable browser, or attaches to
// cfg.DebuggerURL when set. Returns ErrBrowserUnavailable when no executable
// is discoverable and ErrLaunchFailure on process-start errors.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.browser != nil {
		return nil
	}

	controlURL := s.cfg.DebuggerURL
	if controlURL == "" {
		bin := s.cfg.Bin
		if bin == "" {
			found, ok := launcher.LookPath()
			if !ok {
				return ErrBrowserUnavailable
			}
			bin = found
		}

		launch := launcher.New().Bin(bin).Headless(s.cfg.Headless)
		for _, rawFlag := range s.cfg.Launch {
			flagStr := strings.TrimLeft(rawFlag, "-")
			name, val, hasVal := strings.Cut(flagStr, "=")
			if hasVal {
				launch = launch.Set(flags.Flag(name), val)
			} else {
				launch = launch.Set(flags.Flag(name))
			}
		}

		u, err := launch.Launch()
		if err != nil {
			// Retry without custom flags before giving up.
			fallback := launcher.New().Bin(bin).Headless(s.cfg.Headless)
			alt, altErr := fallback.Launch()
			if altErr != nil {
				return fmt.Errorf("%w: %v (fallback: %v)", ErrLaunchFailure, err, altErr)
			}
			u = alt
		}
		controlURL = u
	}

	b := rod.New().ControlURL(controlURL).Context(ctx)
	if err := b.Connect(); err != nil {
		return fmt.Errorf("%w: connect: %v", ErrLaunchFailure, err)
	}

	page, err := b.Page(proto.TargetCreateTarget{URL: "about:blank"})
	if err != nil {
		_ = b.Close()
		return fmt.Errorf("%w: create page: %v", ErrLaunchFailure, err)
	}

	if err := (proto.EmulationSetDeviceMetricsOverride{
		Width:             s.cfg.GetViewportWidth(),
		Height:            s.cfg.GetViewportHeight(),
		DeviceScaleFactor: 1.0,
		Mobile:            false,
	}).Call(page); err != nil {
		logging.BrowserWarn("failed to set viewport: %v", err)
	}

	s.browser = b
	s.page = page
	logging.Browser("browser session started (headless=%v)", s.cfg.Headless)
	return nil
}

// Navigate loads a URL, bounded by the config navigation timeout.
func (s *Session) Navigate(ctx context.Context, target string) error {
	page, err := s.currentPage()
	if err != nil {
		return err
	}
	return page.Context(ctx).Timeout(s.cfg.NavigationTimeout()).Navigate(target)
}

// CurrentURL returns the page's location, or empty when unavailable.
func (s *Session) CurrentURL() string {
	page, err := s.currentPage()
	if err != nil {
		return ""
	}
	info, err := page.Info()
	if err != nil {
		return ""
	}
	return info.URL
}

// CurrentHost returns the page's hostname, or empty.
func (s *Session) CurrentHost() string {
	u, err := url.Parse(s.CurrentURL())
	if err != nil {
		return ""
	}
	return u.Hostname()
}

// WaitForHost polls until the page's hostname contains want, bounded by
// timeout. Poll cadence is 500ms.
func (s *Session) WaitForHost(ctx context.Context, want string, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	for {
		if strings.Contains(s.CurrentHost(), want) {
			return nil
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("timed out waiting for host %q (at %q)", want, s.CurrentHost())
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// FillFirst tries each selector in priority order and types text into the
// first match. Returns the selector that matched.
func (s *Session) FillFirst(ctx context.Context, selectors []string, text string) (string, error) {
	page, err := s.currentPage()
	if err != nil {
		return "", err
	}

	for _, sel := range selectors {
		el, err := page.Context(ctx).Timeout(2 * time.Second).Element(sel)
		if err != nil {
			continue
		}
		if err := el.Input(text); err != nil {
			continue
		}
		logging.BrowserDebug("filled element %q", sel)
		return sel, nil
	}
	return "", fmt.Errorf("no element matched any of %d selectors", len(selectors))
}

// ClickFirst tries each selector in priority order and clicks the first
// match. Returns the selector that matched.
func (s *Session) ClickFirst(ctx context.Context, selectors []string) (string, error) {
	page, err := s.currentPage()
	if err != nil {
		return "", err
	}

	for _, sel := range selectors {
		el, err := page.Context(ctx).Timeout(2 * time.Second).Element(sel)
		if err != nil {
			continue
		}
		if err := el.Click(proto.InputMouseButtonLeft, 1); err != nil {
			continue
		}
		logging.BrowserDebug("clicked element %q", sel)
		return sel, nil
	}
	return "", fmt.Errorf("no element matched any of %d selectors", len(selectors))
}

// Evaluate runs a boolean JS predicate in the page. The predicate source must
// be a zero-argument arrow/function expression returning a truthy value.
func (s *Session) Evaluate(ctx context.Context, predicate string) (bool, error) {
	page, err := s.currentPage()
	if err != nil {
		return false, err
	}

	res, err := page.Context(ctx).Evaluate(&rod.EvalOptions{
		JS:           predicate,
		ByValue:      true,
		AwaitPromise: true,
	})
	if err != nil || res == nil {
		return false, err
	}
	return res.Value.Bool(), nil
}

// Cookies returns all cookies visible to the automation session, including
// HTTP-only ones.
func (s *Session) Cookies(ctx context.Context) ([]Cookie, error) {
	page, err := s.currentPage()
	if err != nil {
		return nil, err
	}

	res, err := proto.NetworkGetCookies{}.Call(page.Context(ctx))
	if err != nil {
		return nil, fmt.Errorf("get cookies: %w", err)
	}

	cookies := make([]Cookie, 0, len(res.Cookies))
	for _, c := range res.Cookies {
		cookies = append(cookies, Cookie{Name: c.Name, Value: c.Value})
	}
	return cookies, nil
}

// Close tears down the page and the browser process. Safe to call more than
// once; the flow's cleanup path relies on that.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true

	var err error
	if s.page != nil {
		_ = s.page.Close()
		s.page = nil
	}
	if s.browser != nil {
		err = s.browser.Close()
		s.browser = nil
	}
	logging.Browser("browser session closed")
	return err
}

func (s *Session) currentPage() (*rod.Page, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.page == nil {
		return nil, ErrNotStarted
	}
	return s.page, nil
}
