package config

import "time"

// BrowserConfig holds browser automation configuration.
type BrowserConfig struct {
	// Bin is an explicit browser executable. Empty means auto-discover.
	Bin string `json:"bin,omitempty"`

	// DebuggerURL attaches to an already-running browser instead of launching.
	DebuggerURL string `json:"debugger_url,omitempty"`

	// Extra launch flags, e.g. "--disable-gpu" or "--proxy-server=host:port".
	Launch []string `json:"launch,omitempty"`

	Headless       bool `json:"headless"`
	ViewportWidth  int  `json:"viewport_width,omitempty"`
	ViewportHeight int  `json:"viewport_height,omitempty"`

	NavigationTimeoutMs int `json:"navigation_timeout_ms,omitempty"`
}

// DefaultBrowserConfig returns sensible defaults. Visible by default: the
// login flow needs an operator in front of the page for verification steps.
func DefaultBrowserConfig() *BrowserConfig {
	return &BrowserConfig{
		Headless:            false,
		ViewportWidth:       1280,
		ViewportHeight:      900,
		NavigationTimeoutMs: 30000,
	}
}

// NavigationTimeout returns the navigation timeout.
func (c *BrowserConfig) NavigationTimeout() time.Duration {
	if c.NavigationTimeoutMs == 0 {
		return 30 * time.Second
	}
	return time.Duration(c.NavigationTimeoutMs) * time.Millisecond
}

// GetViewportWidth returns viewport width.
func (c *BrowserConfig) GetViewportWidth() int {
	if c.ViewportWidth == 0 {
		return 1280
	}
	return c.ViewportWidth
}

// GetViewportHeight returns viewport height.
func (c *BrowserConfig) GetViewportHeight() int {
	if c.ViewportHeight == 0 {
		return 900
	}
	return c.ViewportHeight
}
