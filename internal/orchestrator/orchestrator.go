// Package orchestrator is the composition root: it owns the wiring
// between the account store, the expiry monitor, the usage boundary,
// and the two credential acquisition channels, and it enforces the
// one-flow-at-a-time rule.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"credkeeper/internal/config"
	"credkeeper/internal/lifecycle"
	"credkeeper/internal/logging"
	"credkeeper/internal/store"
	"credkeeper/internal/usage"
)

// ErrFlowActive means an acquisition is already running. Starting a
// second one is a caller error, not a queued request.
var ErrFlowActive = errors.New("another acquisition flow is already active")

// Acquired is one credential obtained through a channel, with whatever
// identity metadata the channel could recover.
type Acquired struct {
	Credential string
	Email      string
}

// AcquisitionChannel is one way of obtaining a credential. The two
// implementations are the automated login flow and the manual
// extraction server; they share no state, only this contract.
type AcquisitionChannel interface {
	Acquire(ctx context.Context) (Acquired, error)
}

// Orchestrator wires the subsystem together. Store mutations funnel
// through here so they stay serialized.
type Orchestrator struct {
	cfg      *config.UserConfig
	accounts *store.AccountManager
	records  *lifecycle.RecordStore
	boundary *usage.Boundary

	mu         sync.Mutex
	flowActive bool
	monitor    *lifecycle.Monitor
}

// New wires the store to the usage boundary. The lifecycle monitor is
// attached separately because its handler usually lives in the CLI.
func New(cfg *config.UserConfig, accounts *store.AccountManager, records *lifecycle.RecordStore, boundary *usage.Boundary) *Orchestrator {
	o := &Orchestrator{
		cfg:      cfg,
		accounts: accounts,
		records:  records,
		boundary: boundary,
	}
	accounts.SetSink(boundary)
	boundary.SetOnInvalidated(o.onInvalidated)
	return o
}

// AttachMonitor hooks up the lifecycle monitor so invalidation signals
// from the usage layer reach it.
func (o *Orchestrator) AttachMonitor(m *lifecycle.Monitor) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.monitor = m
}

func (o *Orchestrator) onInvalidated() {
	o.mu.Lock()
	m := o.monitor
	o.mu.Unlock()
	if m != nil {
		m.NotifyInvalidated(context.Background())
	} else if err := o.records.Invalidate(); err != nil {
		logging.LifecycleWarn("persist invalidation: %v", err)
	}
}

// Accounts exposes the store for read-side CLI commands.
func (o *Orchestrator) Accounts() *store.AccountManager { return o.accounts }

// Records exposes the expiry record store for status display.
func (o *Orchestrator) Records() *lifecycle.RecordStore { return o.records }

// Boundary exposes the usage layer for explicit usage polls.
func (o *Orchestrator) Boundary() *usage.Boundary { return o.boundary }

// AcquireAndCommit runs one acquisition channel under the exclusive
// flow lock and commits the result. name labels a newly created
// account; it is ignored when the credential refreshes an existing one.
func (o *Orchestrator) AcquireAndCommit(ctx context.Context, channel AcquisitionChannel, name string) (*store.Account, error) {
	o.mu.Lock()
	if o.flowActive {
		o.mu.Unlock()
		return nil, ErrFlowActive
	}
	o.flowActive = true
	o.mu.Unlock()
	defer func() {
		o.mu.Lock()
		o.flowActive = false
		o.mu.Unlock()
	}()

	acquired, err := channel.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	return o.CommitCredential(acquired, name)
}

// FlowActive reports whether an acquisition is currently running.
func (o *Orchestrator) FlowActive() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.flowActive
}

// CommitCredential lands an acquired credential in the store and stamps
// a fresh expiry record. An email matching an existing account updates
// that account in place; anything else becomes a new account. The
// committed account always ends up current, which also publishes the
// credential to the usage boundary.
func (o *Orchestrator) CommitCredential(acquired Acquired, name string) (*store.Account, error) {
	if acquired.Credential == "" {
		return nil, errors.New("refusing to commit an empty credential")
	}

	var acc *store.Account
	if existing := o.accounts.FindByEmail(acquired.Email); existing != nil {
		if err := o.accounts.UpdateCredential(existing.ID, acquired.Credential); err != nil {
			return nil, fmt.Errorf("refresh account %s: %w", existing.Name, err)
		}
		acc = existing
	} else {
		if name == "" {
			name = acquired.Email
		}
		if name == "" {
			name = fmt.Sprintf("Account %d", o.accounts.Len()+1)
		}
		created, err := o.accounts.AddAccount(name, acquired.Email, acquired.Credential)
		if err != nil {
			return nil, err
		}
		acc = created
	}

	if err := o.accounts.SwitchTo(acc.ID); err != nil {
		return nil, fmt.Errorf("switch to committed account %s: %w", acc.ID, err)
	}

	rec := lifecycle.NewExpiryRecord(acquired.Credential, time.Now(), o.cfg.Lifecycle.TTL())
	if err := o.records.Replace(rec); err != nil {
		return nil, fmt.Errorf("stamp expiry record: %w", err)
	}

	logging.Boot("credential committed for account %s, expires %s", acc.Name, rec.ExpiresAt.Format(time.RFC3339))
	return acc, nil
}

// Logout removes an account; removing the last one also drops the
// expiry record so the monitor stops tracking a credential that no
// longer exists.
func (o *Orchestrator) Logout(accountID string) error {
	if err := o.accounts.Remove(accountID); err != nil {
		return err
	}
	if o.accounts.Len() == 0 {
		if err := o.records.Clear(); err != nil {
			return fmt.Errorf("clear expiry record: %w", err)
		}
	}
	return nil
}

// RefreshAllUsage polls the usage endpoint for every account that
// holds a credential, in parallel, and stores the snapshots. Returns
// how many accounts were refreshed; per-account failures are logged
// and skipped rather than failing the survey.
func (o *Orchestrator) RefreshAllUsage(ctx context.Context) (int, error) {
	accounts := o.accounts.List()

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(4)

	var refreshed atomic.Int64
	for _, acc := range accounts {
		if acc.Credential == "" {
			continue
		}
		acc := acc
		g.Go(func() error {
			snap, err := o.boundary.FetchSnapshotWith(ctx, acc.ID, acc.Credential)
			if err != nil {
				logging.UsageWarn("usage poll for account %s failed: %v", acc.Name, err)
				return nil
			}
			o.accounts.UpdateUsage(acc.ID, snap)
			refreshed.Add(1)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return int(refreshed.Load()), err
	}
	return int(refreshed.Load()), nil
}

// RefreshCurrent is the monitor's RefreshFunc: it re-runs the given
// channel and commits against the current account's identity.
func (o *Orchestrator) RefreshCurrent(channel AcquisitionChannel) lifecycle.RefreshFunc {
	return func(ctx context.Context) error {
		current := o.accounts.Current()
		name := ""
		if current != nil {
			name = current.Name
		}
		_, err := o.AcquireAndCommit(ctx, channel, name)
		return err
	}
}
