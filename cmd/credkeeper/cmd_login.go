package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"credkeeper/internal/config"
	"credkeeper/internal/flow"
	"credkeeper/internal/logging"
	"credkeeper/internal/orchestrator"
)

var (
	loginEmail    string
	loginRegister bool
	loginName     string
	loginCaptcha  string
	loginIdentity string
)

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Acquire a credential through the browser login flow",
	Long: `Opens a browser, walks the service's login flow, and stores the
extracted session credential as an account.

The flow is operator-assisted: you supply the emailed verification code,
and challenge checkpoints wait for you depending on --captcha:

  manual       confirm once when you are done
  smart        poll the page until the checkpoint clears (default)
  interactive  proceed / re-check / cancel loop

Examples:
  credkeeper login --email dev@example.com
  credkeeper login --register --email new@example.com --captcha manual
  credkeeper login --identity provider`,
	RunE: runLogin,
}

func init() {
	loginCmd.Flags().StringVar(&loginEmail, "email", "", "Email address for the email identity path")
	loginCmd.Flags().BoolVar(&loginRegister, "register", false, "Run the fresh-registration flow instead of sign-in")
	loginCmd.Flags().StringVar(&loginName, "name", "", "Display name for the new account (default: email)")
	loginCmd.Flags().StringVar(&loginCaptcha, "captcha", "", "Checkpoint strategy: manual, smart, or interactive")
	loginCmd.Flags().StringVar(&loginIdentity, "identity", "", "Identity path: email or provider")
}

func runLogin(cmd *cobra.Command, args []string) error {
	cfg := loadConfig()
	applyLoginFlags(cfg)

	o, err := buildOrchestrator(cfg)
	if err != nil {
		return err
	}

	ctx, cancel := signalContext()
	defer cancel()

	channel := &orchestrator.FlowChannel{
		Cfg:      cfg,
		Prompter: newTerminalPrompter(),
		Params: flow.Params{
			Email:        loginEmail,
			Registration: loginRegister,
		},
	}

	acc, err := o.AcquireAndCommit(ctx, channel, loginName)
	if err != nil {
		return loginErrorWithRemediation(err)
	}

	fmt.Printf("Signed in. Account %q is now current (%s).\n", acc.Name, logging.Redact(acc.Credential))
	return nil
}

func applyLoginFlags(cfg *config.UserConfig) {
	switch loginCaptcha {
	case "manual":
		cfg.Flow.CaptchaMode = config.CaptchaManualPause
	case "smart":
		cfg.Flow.CaptchaMode = config.CaptchaSmartWait
	case "interactive":
		cfg.Flow.CaptchaMode = config.CaptchaInteractive
	}
	switch loginIdentity {
	case "email":
		cfg.Flow.IdentityMethod = config.IdentityEmail
	case "provider":
		cfg.Flow.IdentityMethod = config.IdentityProvider
	}
}

// loginErrorWithRemediation turns flow failures into actionable
// messages instead of bare error strings.
func loginErrorWithRemediation(err error) error {
	var fe *flow.Error
	if !errors.As(err, &fe) {
		return err
	}
	switch fe.Code {
	case flow.CodeBrowserUnavailable:
		return fmt.Errorf("%s\n\nInstall Chrome or Chromium, or point browser.bin in the config at an existing binary. As a fallback, run 'credkeeper extract'", fe.Message)
	case flow.CodeCaptchaTimeout:
		return fmt.Errorf("%s\n\nRetry with --captcha manual to confirm the checkpoint yourself", fe.Message)
	case flow.CodeNoCredentialFound:
		return fmt.Errorf("%s\n\nRun 'credkeeper extract' and copy the cookies from your signed-in browser", fe.Message)
	case flow.CodeCancelled:
		return errors.New("login cancelled")
	default:
		return fmt.Errorf("%s\n\nRe-run with --verbose for details, or fall back to 'credkeeper extract'", fe.Message)
	}
}
