package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"credkeeper/internal/lifecycle"
	"credkeeper/internal/usage"
)

var statusUsage bool

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the current account and credential health",
	RunE:  runStatus,
}

func init() {
	statusCmd.Flags().BoolVar(&statusUsage, "usage", false, "Also poll the service for live usage figures")
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg := loadConfig()
	o, err := buildOrchestrator(cfg)
	if err != nil {
		return err
	}

	current := o.Accounts().Current()
	if current == nil {
		fmt.Printf("Accounts: %d stored, none current.\n", o.Accounts().Len())
	} else {
		fmt.Printf("Current account: %s <%s>\n", current.Name, current.Email)
		if snap := current.Usage; snap != nil {
			fmt.Printf("Last known usage: %d/%d requests (fetched %s)\n",
				snap.Requests, snap.Limit, snap.FetchedAt.Format(time.RFC3339))
		}
	}

	now := time.Now()
	rec := o.Records().Record()
	phase := lifecycle.Classify(rec, o.Records().Initialized(), now, cfg.Lifecycle.WarningWindow())
	switch phase {
	case lifecycle.PhaseFirstRun:
		fmt.Println("Credential: never acquired. Run 'credkeeper login' to get started.")
	case lifecycle.PhaseAbsent:
		fmt.Println("Credential: none on file.")
	case lifecycle.PhaseValid:
		fmt.Printf("Credential: valid, expires in %s (%s).\n",
			rec.ExpiresAt.Sub(now).Round(time.Minute), rec.ExpiresAt.Format(time.RFC3339))
	case lifecycle.PhaseNearExpiry:
		fmt.Printf("Credential: expiring in %s. Consider 'credkeeper login' soon.\n",
			rec.ExpiresAt.Sub(now).Round(time.Minute))
	case lifecycle.PhaseExpired:
		fmt.Printf("Credential: expired %s ago. Run 'credkeeper login'.\n",
			now.Sub(rec.ExpiresAt).Round(time.Minute))
	case lifecycle.PhaseInvalidated:
		fmt.Println("Credential: invalidated by the service. Run 'credkeeper login'.")
	}

	if statusUsage && current != nil {
		snap, err := o.Boundary().FetchSnapshot(cmd.Context(), current.ID)
		switch {
		case err == nil:
			o.Accounts().UpdateUsage(current.ID, snap)
			fmt.Printf("Live usage: %d/%d requests.\n", snap.Requests, snap.Limit)
		case errors.Is(err, usage.ErrSessionInvalidated):
			fmt.Println("Live usage: session rejected by the service; credential marked invalid.")
		case errors.Is(err, usage.ErrNoCredential):
			fmt.Println("Live usage: no credential to poll with.")
		default:
			fmt.Printf("Live usage: fetch failed: %v\n", err)
		}
	}
	return nil
}
