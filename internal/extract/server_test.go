package extract

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"credkeeper/internal/config"
)

func startTestServer(t *testing.T, cfg *config.ExtractConfig) *Server {
	t.Helper()
	if cfg == nil {
		cfg = &config.ExtractConfig{Port: -1, TimeoutMins: 1}
	}
	srv := NewServer(cfg)
	require.NoError(t, srv.Start())
	t.Cleanup(srv.Close)
	return srv
}

func postJSON(t *testing.T, url string, body interface{}) map[string]interface{} {
	t.Helper()
	raw, err := json.Marshal(body)
	require.NoError(t, err)
	resp, err := http.Post(url, "application/json", bytes.NewReader(raw))
	require.NoError(t, err)
	defer resp.Body.Close()

	var parsed map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&parsed))
	return parsed
}

func TestValidPasteResolvesWait(t *testing.T) {
	srv := startTestServer(t, nil)

	credential := "sessionToken=abcdefghijklmnop1234"
	res := postJSON(t, srv.URL()+"/extract-session", submitRequest{Cookies: credential})
	require.Equal(t, true, res["success"])

	got, err := srv.Wait(context.Background())
	require.NoError(t, err)
	require.Equal(t, credential, got)
}

func TestInvalidPasteLeavesListenerAlive(t *testing.T) {
	srv := startTestServer(t, nil)

	// No session-token marker: rejected, acquisition stays pending.
	res := postJSON(t, srv.URL()+"/extract-session", submitRequest{Cookies: "csrf=zzz; theme=dark"})
	require.Equal(t, false, res["success"])

	// Too short even with the marker.
	res = postJSON(t, srv.URL()+"/extract-session", submitRequest{Cookies: "sessionToken=x"})
	require.Equal(t, false, res["success"])

	// The listener is still serving and accepts a correct retry.
	credential := "sessionToken=retry-after-reject-0001"
	res = postJSON(t, srv.URL()+"/extract-session", submitRequest{Cookies: credential})
	require.Equal(t, true, res["success"])

	got, err := srv.Wait(context.Background())
	require.NoError(t, err)
	require.Equal(t, credential, got)
}

func TestAPIExtractRecoversSessionCookie(t *testing.T) {
	var gotCookieHeader string
	identity := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotCookieHeader = r.Header.Get("Cookie")
		http.SetCookie(w, &http.Cookie{Name: "sessionToken", Value: "fresh-session-value-42", HttpOnly: true})
		http.SetCookie(w, &http.Cookie{Name: "userIdToken", Value: "uid-77"})
		w.WriteHeader(http.StatusOK)
	}))
	defer identity.Close()

	cfg := &config.ExtractConfig{Port: -1, TimeoutMins: 1, IdentityEndpoint: identity.URL}
	srv := startTestServer(t, cfg)

	res := postJSON(t, srv.URL()+"/api-extract", apiExtractRequest{Action: "identity", Cookies: "stale=1"})
	require.Equal(t, true, res["success"])
	require.Equal(t, "sessionToken=fresh-session-value-42; userIdToken=uid-77", res["sessionCookie"])
	require.Equal(t, "stale=1", gotCookieHeader)

	got, err := srv.Wait(context.Background())
	require.NoError(t, err)
	require.Equal(t, "sessionToken=fresh-session-value-42; userIdToken=uid-77", got)
}

func TestAPIExtractWithoutSessionCookieFails(t *testing.T) {
	identity := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer identity.Close()

	cfg := &config.ExtractConfig{Port: -1, TimeoutMins: 1, IdentityEndpoint: identity.URL}
	srv := startTestServer(t, cfg)

	res := postJSON(t, srv.URL()+"/api-extract", apiExtractRequest{Action: "identity"})
	require.Equal(t, false, res["success"])
}

func TestWaitTimesOut(t *testing.T) {
	srv := startTestServer(t, nil)
	srv.timeout = 50 * time.Millisecond

	_, err := srv.Wait(context.Background())
	require.ErrorIs(t, err, ErrExtractionTimeout)
}

func TestWaitHonorsContextCancellation(t *testing.T) {
	srv := startTestServer(t, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := srv.Wait(ctx)
	require.ErrorIs(t, err, context.Canceled)
}

func TestPreflightAndOperatorPage(t *testing.T) {
	srv := startTestServer(t, nil)

	req, err := http.NewRequest(http.MethodOptions, srv.URL()+"/extract-session", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusNoContent, resp.StatusCode)
	require.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))

	resp, err = http.Get(srv.URL() + "/")
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Contains(t, resp.Header.Get("Content-Type"), "text/html")
}

func TestResolveIsSingleUse(t *testing.T) {
	srv := startTestServer(t, nil)

	require.True(t, srv.resolve("sessionToken=first-credential-000"))
	require.False(t, srv.resolve("sessionToken=second-credential-000"))

	got, err := srv.Wait(context.Background())
	require.NoError(t, err)
	require.Equal(t, "sessionToken=first-credential-000", got)
}
