package store

import (
	"context"
	"os"
	"testing"
	"time"
)

func TestWatcherReloadsOnExternalWrite(t *testing.T) {
	dir := t.TempDir()

	manager, err := NewAccountManager(dir)
	if err != nil {
		t.Fatalf("NewAccountManager: %v", err)
	}
	if _, err := manager.AddAccount("Work", "w@x.com", "sessionToken=watcher-test-001"); err != nil {
		t.Fatalf("AddAccount: %v", err)
	}

	// A second manager simulates another process editing the same file.
	other, err := NewAccountManager(dir)
	if err != nil {
		t.Fatalf("second NewAccountManager: %v", err)
	}

	reloaded := make(chan struct{}, 1)
	w, err := NewWatcher(manager, func() {
		select {
		case reloaded <- struct{}{}:
		default:
		}
	})
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := w.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer w.Stop()

	if _, err := other.AddAccount("Home", "h@x.com", "sessionToken=watcher-test-002"); err != nil {
		t.Fatalf("external AddAccount: %v", err)
	}

	select {
	case <-reloaded:
	case <-time.After(5 * time.Second):
		t.Fatal("reload callback never fired after external write")
	}

	if manager.Len() != 2 {
		t.Fatalf("manager sees %d accounts after reload, want 2", manager.Len())
	}
}

func TestWatcherStopIsIdempotent(t *testing.T) {
	dir := t.TempDir()
	manager, err := NewAccountManager(dir)
	if err != nil {
		t.Fatalf("NewAccountManager: %v", err)
	}

	w, err := NewWatcher(manager, nil)
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}
	if err := w.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	w.Stop()
	w.Stop()

	// The backing file must still be readable after shutdown.
	if _, err := os.Stat(manager.FilePath()); err != nil {
		t.Fatalf("backing file missing: %v", err)
	}
}
