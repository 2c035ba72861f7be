package lifecycle

import (
	"context"
	"sync"
	"time"

	"credkeeper/internal/config"
	"credkeeper/internal/logging"
)

// Decision is the operator's answer to a lifecycle prompt.
type Decision int

const (
	// DecisionNone means no action; wait for the next periodic tick.
	DecisionNone Decision = iota

	// DecisionRefresh runs a credential refresh now.
	DecisionRefresh

	// DecisionRemindLater re-arms a one-shot re-check after the remind
	// delay instead of waiting for the next tick.
	DecisionRemindLater

	// DecisionIgnore clears the record: the credential is treated as
	// absent from then on.
	DecisionIgnore
)

// Handler owns the user-facing side of lifecycle events. The monitor
// decides when to prompt; the handler decides what to ask and returns
// the operator's choice. Handlers may block on operator input.
type Handler interface {
	// HandleFirstRun fires once, when no lifecycle state has ever been
	// persisted. Refresh here means "start initial acquisition".
	HandleFirstRun(ctx context.Context) Decision

	// HandleNearExpiry fires when the credential is inside the warning
	// window but not yet expired.
	HandleNearExpiry(ctx context.Context, rec ExpiryRecord, remaining time.Duration) Decision

	// HandleExpired fires when the credential's TTL has elapsed.
	HandleExpired(ctx context.Context, rec ExpiryRecord) Decision

	// HandleInvalidated fires when the consuming layer reported the
	// session dead server-side.
	HandleInvalidated(ctx context.Context, rec ExpiryRecord) Decision
}

// RefreshFunc runs one end-to-end credential refresh. On success the
// caller is expected to have replaced the expiry record already (the
// orchestrator commits before returning); the monitor only needs the
// error to know whether to keep nagging.
type RefreshFunc func(ctx context.Context) error

// Monitor periodically classifies the current credential and routes
// the resulting prompt through its Handler. One Monitor per process.
type Monitor struct {
	store   *RecordStore
	cfg     *config.LifecycleConfig
	handler Handler
	refresh RefreshFunc

	mu         sync.Mutex
	refreshing bool
	remindCh   chan struct{}
	remind     *time.Timer

	stopOnce sync.Once
	stopCh   chan struct{}
	doneCh   chan struct{}
}

func NewMonitor(store *RecordStore, cfg *config.LifecycleConfig, handler Handler, refresh RefreshFunc) *Monitor {
	return &Monitor{
		store:    store,
		cfg:      cfg,
		handler:  handler,
		refresh:  refresh,
		remindCh: make(chan struct{}, 1),
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
}

// Start evaluates once immediately, then ticks at the configured
// interval until Stop or ctx cancellation.
func (m *Monitor) Start(ctx context.Context) {
	go m.run(ctx)
}

func (m *Monitor) run(ctx context.Context) {
	defer close(m.doneCh)

	logging.Lifecycle("monitor started, interval %s", m.cfg.CheckInterval())
	m.Evaluate(ctx, time.Now())

	ticker := time.NewTicker(m.cfg.CheckInterval())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-m.stopCh:
			return
		case <-ticker.C:
			m.Evaluate(ctx, time.Now())
		case <-m.remindCh:
			logging.Lifecycle("remind timer fired")
			m.Evaluate(ctx, time.Now())
		}
	}
}

// Stop halts the periodic loop and any pending remind timer. Blocks
// until the loop goroutine exits.
func (m *Monitor) Stop() {
	m.stopOnce.Do(func() {
		m.mu.Lock()
		if m.remind != nil {
			m.remind.Stop()
		}
		m.mu.Unlock()
		close(m.stopCh)
		<-m.doneCh
	})
}

// NotifyInvalidated is the entry point for the usage layer's
// session-invalidated signal. The record survives with its validity
// flag down, and the recovery prompt fires immediately.
func (m *Monitor) NotifyInvalidated(ctx context.Context) {
	if err := m.store.Invalidate(); err != nil {
		logging.LifecycleWarn("persist invalidation: %v", err)
	}
	m.Evaluate(ctx, time.Now())
}

// Evaluate performs one classification pass. Exposed so ticks, remind
// timers, invalidation signals, and tests all share one code path.
// A refresh already in progress suppresses the pass entirely so the
// operator is not prompted twice about the same credential.
func (m *Monitor) Evaluate(ctx context.Context, now time.Time) {
	m.mu.Lock()
	if m.refreshing {
		m.mu.Unlock()
		logging.LifecycleDebug("refresh in progress, skipping evaluation")
		return
	}
	m.mu.Unlock()

	rec := m.store.Record()
	phase := Classify(rec, m.store.Initialized(), now, m.cfg.WarningWindow())
	logging.LifecycleDebug("evaluation: phase=%s", phase)

	var decision Decision
	switch phase {
	case PhaseFirstRun:
		decision = m.handler.HandleFirstRun(ctx)
		if err := m.store.MarkInitialized(); err != nil {
			logging.LifecycleWarn("persist initialization: %v", err)
		}
	case PhaseNearExpiry:
		decision = m.handler.HandleNearExpiry(ctx, *rec, rec.ExpiresAt.Sub(now))
	case PhaseExpired:
		decision = m.handler.HandleExpired(ctx, *rec)
	case PhaseInvalidated:
		decision = m.handler.HandleInvalidated(ctx, *rec)
	default:
		return
	}

	m.apply(ctx, decision)
}

func (m *Monitor) apply(ctx context.Context, decision Decision) {
	switch decision {
	case DecisionRefresh:
		m.runRefresh(ctx)
	case DecisionRemindLater:
		m.armRemind()
	case DecisionIgnore:
		if err := m.store.Clear(); err != nil {
			logging.LifecycleWarn("clear record: %v", err)
		}
	}
}

// runRefresh executes the refresh with prompts suppressed. A failed
// refresh keeps the existing record so the next tick re-prompts.
func (m *Monitor) runRefresh(ctx context.Context) {
	m.mu.Lock()
	m.refreshing = true
	m.mu.Unlock()
	defer func() {
		m.mu.Lock()
		m.refreshing = false
		m.mu.Unlock()
	}()

	if err := m.refresh(ctx); err != nil {
		logging.LifecycleWarn("refresh failed, keeping existing record: %v", err)
	}
}

func (m *Monitor) armRemind() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.remind != nil {
		m.remind.Stop()
	}
	delay := m.cfg.RemindDelay()
	m.remind = time.AfterFunc(delay, func() {
		select {
		case m.remindCh <- struct{}{}:
		default:
		}
	})
	logging.Lifecycle("remind re-check armed for %s from now", delay)
}
