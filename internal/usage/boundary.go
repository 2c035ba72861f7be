// Package usage is the consuming side of the credential boundary: it
// holds the credential the store publishes, authorizes its own usage
// polls with it, and reports server-side invalidation back so the
// lifecycle monitor can start recovery.
package usage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"credkeeper/internal/logging"
	"credkeeper/internal/store"
)

// DefaultEndpoint is the service's usage endpoint.
const DefaultEndpoint = "https://www.codeassist.app/api/usage"

const usageFileName = "usage.json"

var (
	// ErrNoCredential means no account credential has been published yet.
	ErrNoCredential = errors.New("no credential available for usage fetch")

	// ErrSessionInvalidated means the service rejected the credential.
	// This is a signal, not a store mutation; recovery is routed through
	// the invalidation callback.
	ErrSessionInvalidated = errors.New("session invalidated by service")
)

// InvalidatedFunc is called (on the fetch goroutine) when the service
// rejects the current credential.
type InvalidatedFunc func()

// Boundary implements store.CredentialSink and polls the usage
// endpoint with whatever credential is currently published.
type Boundary struct {
	endpoint string
	client   *http.Client
	filePath string

	mu            sync.Mutex
	credential    string
	data          usageData
	onInvalidated InvalidatedFunc
}

var _ store.CredentialSink = (*Boundary)(nil)

// NewBoundary creates the usage boundary persisting under stateDir.
// An empty endpoint selects DefaultEndpoint.
func NewBoundary(stateDir, endpoint string) (*Boundary, error) {
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	if err := os.MkdirAll(stateDir, 0o755); err != nil {
		return nil, fmt.Errorf("create state directory: %w", err)
	}

	b := &Boundary{
		endpoint: endpoint,
		client:   &http.Client{Timeout: 15 * time.Second},
		filePath: filepath.Join(stateDir, usageFileName),
		data: usageData{
			Version:   "1",
			ByAccount: make(map[string]AccountTotals),
		},
	}
	if err := b.load(); err != nil {
		logging.UsageWarn("usage data unreadable, starting fresh: %v", err)
	}
	return b, nil
}

func (b *Boundary) load() error {
	raw, err := os.ReadFile(b.filePath)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}
	if err := json.Unmarshal(raw, &b.data); err != nil {
		return err
	}
	if b.data.ByAccount == nil {
		b.data.ByAccount = make(map[string]AccountTotals)
	}
	return nil
}

func (b *Boundary) saveLocked() error {
	raw, err := json.MarshalIndent(b.data, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(b.filePath, raw, 0o600)
}

// SetOnInvalidated registers the recovery callback.
func (b *Boundary) SetOnInvalidated(fn InvalidatedFunc) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.onInvalidated = fn
}

// SetCredential publishes a credential for subsequent fetches.
func (b *Boundary) SetCredential(credential string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.credential = credential
	logging.Usage("credential published (%s)", logging.Redact(credential))
}

// ClearCredential drops the published credential.
func (b *Boundary) ClearCredential() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.credential = ""
	logging.Usage("credential cleared")
}

// HasCredential reports whether a credential is currently published.
func (b *Boundary) HasCredential() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.credential != ""
}

// FetchSnapshot polls the usage endpoint with the published credential
// and returns the service's figures. A 401/403 answer fires the
// invalidation callback and returns ErrSessionInvalidated.
func (b *Boundary) FetchSnapshot(ctx context.Context, accountID string) (store.UsageSnapshot, error) {
	b.mu.Lock()
	credential := b.credential
	b.mu.Unlock()
	return b.fetchWith(ctx, accountID, credential, true)
}

// FetchSnapshotWith polls with an explicit credential instead of the
// published one, for surveying non-current accounts. A rejection here
// says nothing about the current session, so the invalidation callback
// does not fire.
func (b *Boundary) FetchSnapshotWith(ctx context.Context, accountID, credential string) (store.UsageSnapshot, error) {
	return b.fetchWith(ctx, accountID, credential, false)
}

func (b *Boundary) fetchWith(ctx context.Context, accountID, credential string, isCurrent bool) (store.UsageSnapshot, error) {
	b.mu.Lock()
	callback := b.onInvalidated
	b.mu.Unlock()

	if credential == "" {
		return store.UsageSnapshot{}, ErrNoCredential
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, b.endpoint, nil)
	if err != nil {
		return store.UsageSnapshot{}, fmt.Errorf("build usage request: %w", err)
	}
	req.Header.Set("Cookie", credential)

	resp, err := b.client.Do(req)
	if err != nil {
		return store.UsageSnapshot{}, fmt.Errorf("usage fetch: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusUnauthorized, http.StatusForbidden:
		if isCurrent {
			b.recordInvalidation()
			if callback != nil {
				callback()
			}
		}
		return store.UsageSnapshot{}, ErrSessionInvalidated
	case http.StatusOK:
	default:
		return store.UsageSnapshot{}, fmt.Errorf("usage endpoint returned %s", resp.Status)
	}

	var payload usageResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return store.UsageSnapshot{}, fmt.Errorf("decode usage payload: %w", err)
	}

	now := time.Now()
	b.record(accountID, payload, now)

	return store.UsageSnapshot{
		Requests:  payload.Requests,
		Limit:     payload.Limit,
		FetchedAt: now,
	}, nil
}

func (b *Boundary) record(accountID string, payload usageResponse, now time.Time) {
	b.mu.Lock()
	defer b.mu.Unlock()

	totals := b.data.ByAccount[accountID]
	totals.Fetches++
	totals.LastRequests = payload.Requests
	totals.LastLimit = payload.Limit
	totals.LastFetched = now.UnixMilli()
	b.data.ByAccount[accountID] = totals
	b.data.Total.Fetches++

	if err := b.saveLocked(); err != nil {
		logging.UsageWarn("persist usage data: %v", err)
	}
}

func (b *Boundary) recordInvalidation() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.data.Total.Invalidations++
	if err := b.saveLocked(); err != nil {
		logging.UsageWarn("persist usage data: %v", err)
	}
	logging.UsageWarn("usage fetch rejected, session reported invalid")
}

// Totals returns a copy of the accumulated counters.
func (b *Boundary) Totals() (Totals, map[string]AccountTotals) {
	b.mu.Lock()
	defer b.mu.Unlock()
	byAccount := make(map[string]AccountTotals, len(b.data.ByAccount))
	for id, totals := range b.data.ByAccount {
		byAccount[id] = totals
	}
	return b.data.Total, byAccount
}
