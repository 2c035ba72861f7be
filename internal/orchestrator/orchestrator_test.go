package orchestrator

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"credkeeper/internal/config"
	"credkeeper/internal/lifecycle"
	"credkeeper/internal/store"
	"credkeeper/internal/usage"
)

type stubChannel struct {
	acquired Acquired
	err      error
	started  chan struct{}
	release  chan struct{}
}

func (c *stubChannel) Acquire(ctx context.Context) (Acquired, error) {
	if c.started != nil {
		close(c.started)
	}
	if c.release != nil {
		select {
		case <-c.release:
		case <-ctx.Done():
			return Acquired{}, ctx.Err()
		}
	}
	return c.acquired, c.err
}

func newTestOrchestrator(t *testing.T) *Orchestrator {
	t.Helper()
	dir := t.TempDir()

	accounts, err := store.NewAccountManager(dir)
	require.NoError(t, err)
	records, err := lifecycle.NewRecordStore(dir)
	require.NoError(t, err)
	boundary, err := usage.NewBoundary(dir, "http://127.0.0.1:0")
	require.NoError(t, err)

	return New(config.DefaultUserConfig(), accounts, records, boundary)
}

func TestCommitCreatesAccountAndStampsExpiry(t *testing.T) {
	o := newTestOrchestrator(t)

	before := time.Now()
	acc, err := o.CommitCredential(Acquired{Credential: "sessionToken=fresh-commit-001", Email: "w@x.com"}, "Work")
	require.NoError(t, err)

	require.Equal(t, "Work", acc.Name)
	require.True(t, o.Accounts().Current().IsCurrent)
	require.Equal(t, acc.ID, o.Accounts().Current().ID)
	require.True(t, o.Boundary().HasCredential())

	rec := o.Records().Record()
	require.NotNil(t, rec)
	require.Equal(t, "sessionToken=fresh-commit-001", rec.Credential)
	require.True(t, rec.IsValid)
	require.Equal(t, rec.IssuedAt.Add(20*time.Hour), rec.ExpiresAt)
	require.False(t, rec.IssuedAt.Before(before.Truncate(time.Second)))
}

func TestCommitRefreshesExistingAccountByEmail(t *testing.T) {
	o := newTestOrchestrator(t)

	first, err := o.CommitCredential(Acquired{Credential: "sessionToken=original-cred-01", Email: "w@x.com"}, "Work")
	require.NoError(t, err)

	refreshed, err := o.CommitCredential(Acquired{Credential: "sessionToken=refreshed-cred-1", Email: "w@x.com"}, "ignored")
	require.NoError(t, err)

	require.Equal(t, first.ID, refreshed.ID)
	require.Equal(t, 1, o.Accounts().Len())
	require.Equal(t, "sessionToken=refreshed-cred-1", o.Accounts().Current().Credential)
	require.Equal(t, "sessionToken=refreshed-cred-1", o.Records().Record().Credential)
}

func TestCommitRejectsEmptyCredential(t *testing.T) {
	o := newTestOrchestrator(t)
	_, err := o.CommitCredential(Acquired{Email: "w@x.com"}, "Work")
	require.Error(t, err)
	require.Equal(t, 0, o.Accounts().Len())
}

func TestSecondFlowRejectedWhileFirstActive(t *testing.T) {
	o := newTestOrchestrator(t)

	blocking := &stubChannel{
		acquired: Acquired{Credential: "sessionToken=slow-channel-001", Email: "a@x.com"},
		started:  make(chan struct{}),
		release:  make(chan struct{}),
	}

	done := make(chan error, 1)
	go func() {
		_, err := o.AcquireAndCommit(context.Background(), blocking, "First")
		done <- err
	}()

	<-blocking.started
	require.True(t, o.FlowActive())

	_, err := o.AcquireAndCommit(context.Background(), &stubChannel{}, "Second")
	require.ErrorIs(t, err, ErrFlowActive)

	close(blocking.release)
	require.NoError(t, <-done)
	require.False(t, o.FlowActive())
}

func TestFailedAcquisitionReleasesLock(t *testing.T) {
	o := newTestOrchestrator(t)

	_, err := o.AcquireAndCommit(context.Background(), &stubChannel{err: errors.New("flow failed")}, "X")
	require.Error(t, err)
	require.False(t, o.FlowActive())
	require.Equal(t, 0, o.Accounts().Len())

	// The lock is free for the next attempt.
	_, err = o.AcquireAndCommit(context.Background(), &stubChannel{
		acquired: Acquired{Credential: "sessionToken=second-try-0001", Email: "a@x.com"},
	}, "Retry")
	require.NoError(t, err)
}

func TestLogoutLastAccountDropsExpiryRecord(t *testing.T) {
	o := newTestOrchestrator(t)

	acc, err := o.CommitCredential(Acquired{Credential: "sessionToken=logout-test-001", Email: "w@x.com"}, "Work")
	require.NoError(t, err)
	require.NotNil(t, o.Records().Record())

	require.NoError(t, o.Logout(acc.ID))
	require.Nil(t, o.Records().Record())
	require.False(t, o.Boundary().HasCredential())
}

func TestLogoutUnknownAccount(t *testing.T) {
	o := newTestOrchestrator(t)
	require.ErrorIs(t, o.Logout("nope"), store.ErrAccountNotFound)
}

func TestInvalidationWithoutMonitorFlagsRecord(t *testing.T) {
	o := newTestOrchestrator(t)

	_, err := o.CommitCredential(Acquired{Credential: "sessionToken=invalidate-me-01", Email: "w@x.com"}, "Work")
	require.NoError(t, err)

	o.onInvalidated()
	rec := o.Records().Record()
	require.NotNil(t, rec)
	require.False(t, rec.IsValid)
}
