package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"credkeeper/internal/flow"
	"credkeeper/internal/lifecycle"
	"credkeeper/internal/orchestrator"
	"credkeeper/internal/store"
)

var monitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "Run the credential lifecycle monitor in the foreground",
	Long: `Checks the current credential's age every 30 minutes and prompts when
it nears or passes its assumed 20-hour lifetime. Choosing "refresh now"
runs the full login flow in place.

The account file is watched for external edits, so changes made by
another process are picked up without restarting.`,
	RunE: runMonitor,
}

func runMonitor(cmd *cobra.Command, args []string) error {
	cfg := loadConfig()
	o, err := buildOrchestrator(cfg)
	if err != nil {
		return err
	}

	ctx, cancel := signalContext()
	defer cancel()

	prompter := newTerminalPrompter()
	refreshChannel := &orchestrator.FlowChannel{
		Cfg:      cfg,
		Prompter: prompter,
		Params:   currentAccountParams(o),
	}

	handler := &monitorHandler{prompter: prompter}
	monitor := lifecycle.NewMonitor(o.Records(), cfg.Lifecycle, handler, o.RefreshCurrent(refreshChannel))
	o.AttachMonitor(monitor)

	watcher, err := store.NewWatcher(o.Accounts(), func() {
		fmt.Println("account store changed on disk, reloaded")
	})
	if err != nil {
		return fmt.Errorf("watch account store: %w", err)
	}
	if err := watcher.Start(ctx); err != nil {
		return fmt.Errorf("watch account store: %w", err)
	}
	defer watcher.Stop()

	fmt.Printf("Monitoring credential lifecycle (checks every %s, Ctrl-C to stop)...\n", cfg.Lifecycle.CheckInterval())
	monitor.Start(ctx)
	defer monitor.Stop()

	<-ctx.Done()
	return nil
}

// currentAccountParams seeds the refresh flow with the current
// account's email so a refresh lands on the same identity.
func currentAccountParams(o *orchestrator.Orchestrator) flow.Params {
	if current := o.Accounts().Current(); current != nil {
		return flow.Params{Email: current.Email}
	}
	return flow.Params{}
}

// monitorHandler maps lifecycle events to terminal prompts.
type monitorHandler struct {
	prompter *terminalPrompter
}

func (h *monitorHandler) HandleFirstRun(ctx context.Context) lifecycle.Decision {
	ok, err := h.prompter.Confirm("No credential has ever been set up on this machine. Start the login flow now?")
	if err != nil || !ok {
		return lifecycle.DecisionNone
	}
	return lifecycle.DecisionRefresh
}

func (h *monitorHandler) HandleNearExpiry(ctx context.Context, rec lifecycle.ExpiryRecord, remaining time.Duration) lifecycle.Decision {
	choice, err := h.prompter.Choose(
		fmt.Sprintf("Your credential expires in %s.", remaining.Round(time.Minute)),
		[]string{"Refresh now", "Remind me in an hour", "Dismiss until next check"},
	)
	if err != nil {
		return lifecycle.DecisionNone
	}
	switch choice {
	case 0:
		return lifecycle.DecisionRefresh
	case 1:
		return lifecycle.DecisionRemindLater
	default:
		return lifecycle.DecisionNone
	}
}

func (h *monitorHandler) HandleExpired(ctx context.Context, rec lifecycle.ExpiryRecord) lifecycle.Decision {
	choice, err := h.prompter.Choose(
		"Your credential has expired.",
		[]string{"Refresh now", "Remind me later", "Ignore (forget this credential)"},
	)
	if err != nil {
		return lifecycle.DecisionNone
	}
	switch choice {
	case 0:
		return lifecycle.DecisionRefresh
	case 1:
		return lifecycle.DecisionRemindLater
	default:
		return lifecycle.DecisionIgnore
	}
}

func (h *monitorHandler) HandleInvalidated(ctx context.Context, rec lifecycle.ExpiryRecord) lifecycle.Decision {
	ok, err := h.prompter.Confirm("The service rejected your credential (session invalidated). Re-run the login flow now?")
	if err != nil || !ok {
		return lifecycle.DecisionNone
	}
	return lifecycle.DecisionRefresh
}
