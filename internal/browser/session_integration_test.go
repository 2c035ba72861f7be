//go:build integration

package browser_test

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"credkeeper/internal/browser"
	"credkeeper/internal/config"
)

func TestSession_NavigateFillAndCookies_Integration(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.SetCookie(w, &http.Cookie{Name: "sessionToken", Value: "it-test", HttpOnly: true})
		fmt.Fprintln(w, `<html><body><input id="email-input" type="email"></body></html>`)
	}))
	defer ts.Close()

	cfg := config.DefaultBrowserConfig()
	cfg.Headless = true
	cfg.NavigationTimeoutMs = 10000

	sess := browser.NewSession(cfg)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	defer func() {
		require.NoError(t, sess.Close())
	}()

	require.NoError(t, sess.Start(ctx))
	require.NoError(t, sess.Navigate(ctx, ts.URL))

	sel, err := sess.FillFirst(ctx, []string{"#missing", "#email-input"}, "op@example.com")
	require.NoError(t, err)
	require.Equal(t, "#email-input", sel)

	ok, err := sess.Evaluate(ctx, `() => document.querySelector('#email-input').value === 'op@example.com'`)
	require.NoError(t, err)
	require.True(t, ok)

	cookies, err := sess.Cookies(ctx)
	require.NoError(t, err)
	found := false
	for _, c := range cookies {
		if c.Name == "sessionToken" && c.Value == "it-test" {
			found = true
		}
	}
	require.True(t, found, "HTTP-only cookie must be visible to the automation session")

	// Close twice: cleanup path may run after a normal close.
	require.NoError(t, sess.Close())
}
