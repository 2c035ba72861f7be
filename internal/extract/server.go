// Package extract implements the fallback credential acquisition
// channel: a short-lived local HTTP listener serving an operator page.
// The operator pastes a credential, or triggers an identity-endpoint
// request that recovers the session cookie server-side. Whichever path
// succeeds first resolves the pending acquisition exactly once; the
// listener then shuts down.
package extract

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"credkeeper/internal/config"
	"credkeeper/internal/flow"
	"credkeeper/internal/logging"
)

// ErrExtractionTimeout signals that no credential arrived within the
// configured window and the listener has been torn down.
var ErrExtractionTimeout = errors.New("extraction window elapsed without a credential")

type submitRequest struct {
	Cookies string `json:"cookies"`
}

type submitResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

type apiExtractRequest struct {
	Action  string `json:"action"`
	Cookies string `json:"cookies"`
}

type apiExtractResponse struct {
	Success       bool   `json:"success"`
	Message       string `json:"message"`
	SessionCookie string `json:"sessionCookie,omitempty"`
}

// Server is a single-use local extraction listener. Construct with
// NewServer, call Start, then Wait for the credential. A Server must
// not be reused after Wait returns.
type Server struct {
	cfg     *config.ExtractConfig
	client  *http.Client
	timeout time.Duration

	mu       sync.Mutex
	resolved bool
	credChan chan string

	listener net.Listener
	httpSrv  *http.Server
}

func NewServer(cfg *config.ExtractConfig) *Server {
	return &Server{
		cfg:      cfg,
		client:   &http.Client{Timeout: 15 * time.Second},
		timeout:  cfg.Timeout(),
		credChan: make(chan string, 1),
	}
}

// Start binds the listener and begins serving the operator page. The
// port is taken; a second extraction server cannot start while one is
// live, which is the point.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", fmt.Sprintf("127.0.0.1:%d", s.cfg.GetPort()))
	if err != nil {
		return fmt.Errorf("extraction listener: %w", err)
	}
	s.listener = ln

	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleIndex)
	mux.HandleFunc("/extract-session", s.handleExtractSession)
	mux.HandleFunc("/api-extract", s.handleAPIExtract)

	s.httpSrv = &http.Server{Handler: mux}
	go func() {
		if err := s.httpSrv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logging.ExtractError("listener stopped: %v", err)
		}
	}()

	logging.Extract("extraction server listening on %s", s.URL())
	return nil
}

// URL is the address the operator should open. Valid after Start.
func (s *Server) URL() string {
	if s.listener == nil {
		return ""
	}
	return "http://" + s.listener.Addr().String()
}

// Wait blocks until a credential is posted, the extraction window
// elapses, or ctx is cancelled. The listener is torn down before Wait
// returns, on every path.
func (s *Server) Wait(ctx context.Context) (string, error) {
	defer s.Close()

	timer := time.NewTimer(s.timeout)
	defer timer.Stop()

	select {
	case cred := <-s.credChan:
		logging.Extract("credential received (%s)", logging.Redact(cred))
		return cred, nil
	case <-timer.C:
		logging.ExtractError("no credential within %s", s.timeout)
		return "", ErrExtractionTimeout
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// Close tears the listener down. Safe to call more than once.
func (s *Server) Close() {
	if s.httpSrv == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_ = s.httpSrv.Shutdown(ctx)
}

// resolve delivers the credential exactly once. Later successful posts
// are acknowledged but discarded.
func (s *Server) resolve(credential string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.resolved {
		return false
	}
	s.resolved = true
	s.credChan <- credential
	return true
}

func writeCORS(w http.ResponseWriter) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	writeCORS(w)
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	fmt.Fprint(w, operatorPage)
}

// handleExtractSession accepts a manually pasted credential. A body
// without the session-token marker is rejected with success=false and
// the acquisition stays pending so the operator can try again.
func (s *Server) handleExtractSession(w http.ResponseWriter, r *http.Request) {
	writeCORS(w)
	switch r.Method {
	case http.MethodOptions:
		w.WriteHeader(http.StatusNoContent)
		return
	case http.MethodPost:
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var req submitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, submitResponse{Success: false, Message: "invalid request body"})
		return
	}

	credential := strings.TrimSpace(req.Cookies)
	if !flow.ValidCredential(credential) {
		logging.Extract("rejected paste without session token marker")
		writeJSON(w, submitResponse{
			Success: false,
			Message: fmt.Sprintf("cookie string must contain %q and be at least %d characters", flow.SessionTokenCookie+"=", flow.MinCredentialLength),
		})
		return
	}

	s.resolve(credential)
	writeJSON(w, submitResponse{Success: true, Message: "credential accepted"})
}

// handleAPIExtract replays the operator's cookies against the identity
// endpoint and recovers the session token from the response Set-Cookie
// headers. This works even when the token is HTTP-only in the
// operator's browser, because the server reads the raw response.
func (s *Server) handleAPIExtract(w http.ResponseWriter, r *http.Request) {
	writeCORS(w)
	switch r.Method {
	case http.MethodOptions:
		w.WriteHeader(http.StatusNoContent)
		return
	case http.MethodPost:
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var req apiExtractRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, apiExtractResponse{Success: false, Message: "invalid request body"})
		return
	}

	outReq, err := http.NewRequestWithContext(r.Context(), http.MethodGet, s.cfg.IdentityEndpoint, nil)
	if err != nil {
		writeJSON(w, apiExtractResponse{Success: false, Message: "identity endpoint misconfigured"})
		return
	}
	if cookies := strings.TrimSpace(req.Cookies); cookies != "" {
		outReq.Header.Set("Cookie", cookies)
	}

	resp, err := s.client.Do(outReq)
	if err != nil {
		logging.ExtractError("identity endpoint request failed: %v", err)
		writeJSON(w, apiExtractResponse{Success: false, Message: "identity endpoint unreachable"})
		return
	}
	defer resp.Body.Close()

	credential, ok := credentialFromSetCookie(resp.Cookies())
	if !ok {
		writeJSON(w, apiExtractResponse{Success: false, Message: "identity endpoint did not return a session cookie"})
		return
	}

	s.resolve(credential)
	writeJSON(w, apiExtractResponse{Success: true, Message: "session cookie recovered", SessionCookie: credential})
}

// credentialFromSetCookie assembles a credential from response cookies,
// session token leading.
func credentialFromSetCookie(cookies []*http.Cookie) (string, bool) {
	var session, userID string
	for _, c := range cookies {
		switch c.Name {
		case flow.SessionTokenCookie:
			session = c.Value
		case flow.UserIDTokenCookie:
			userID = c.Value
		}
	}
	if session == "" {
		return "", false
	}
	credential := flow.SessionTokenCookie + "=" + session
	if userID != "" {
		credential += "; " + flow.UserIDTokenCookie + "=" + userID
	}
	return credential, true
}
