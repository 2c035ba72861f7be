package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"credkeeper/internal/extract"
	"credkeeper/internal/logging"
	"credkeeper/internal/orchestrator"
)

var extractName string

var extractCmd = &cobra.Command{
	Use:   "extract",
	Short: "Acquire a credential through the local extraction page",
	Long: `Starts a short-lived local web page where you can paste the session
cookies from an already signed-in browser, or trigger an extraction
against the service's identity endpoint.

The listener is single-use: it shuts down as soon as one credential
arrives, or after 5 minutes with nothing.`,
	RunE: runExtract,
}

func init() {
	extractCmd.Flags().StringVar(&extractName, "name", "", "Display name for the new account")
}

func runExtract(cmd *cobra.Command, args []string) error {
	cfg := loadConfig()

	o, err := buildOrchestrator(cfg)
	if err != nil {
		return err
	}

	ctx, cancel := signalContext()
	defer cancel()

	channel := &orchestrator.ExtractChannel{
		Cfg: cfg.Extract,
		Announce: func(url string) {
			fmt.Printf("Open %s in your signed-in browser and follow the instructions.\n", url)
			fmt.Println("Waiting for a credential (Ctrl-C to cancel)...")
		},
	}

	acc, err := o.AcquireAndCommit(ctx, channel, extractName)
	if err != nil {
		if errors.Is(err, extract.ErrExtractionTimeout) {
			return errors.New("no credential arrived within the extraction window; re-run 'credkeeper extract' when you are ready")
		}
		return err
	}

	fmt.Printf("Credential stored. Account %q is now current (%s).\n", acc.Name, logging.Redact(acc.Credential))
	return nil
}
