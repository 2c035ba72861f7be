package flow

import (
	"context"
	"time"

	"credkeeper/internal/browser"
)

// Page is the automation capability the login flow needs from a browser
// backend. *browser.Session satisfies it; tests substitute a scripted
// fake so the state machine runs without a real browser.
type Page interface {
	Start(ctx context.Context) error
	Navigate(ctx context.Context, target string) error
	CurrentURL() string
	CurrentHost() string
	WaitForHost(ctx context.Context, want string, timeout time.Duration) error
	FillFirst(ctx context.Context, selectors []string, text string) (string, error)
	ClickFirst(ctx context.Context, selectors []string) (string, error)
	Evaluate(ctx context.Context, predicate string) (bool, error)
	Cookies(ctx context.Context) ([]browser.Cookie, error)
	Close() error
}

var _ Page = (*browser.Session)(nil)
