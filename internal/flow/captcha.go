package flow

import (
	"context"
	"time"

	"credkeeper/internal/config"
	"credkeeper/internal/logging"
)

// JavaScript predicates evaluated inside the page. Each returns a bare
// boolean; Evaluate wraps them in a function body.
const (
	// captchaWidgetPresentJS detects a human-verification widget on the
	// current page. Covers the common embedded-iframe vendors plus a
	// generic data attribute.
	captchaWidgetPresentJS = `() => {
		const sel = 'iframe[src*="captcha"], iframe[src*="challenge"], iframe[src*="turnstile"], div[class*="captcha"], [data-captcha]';
		return document.querySelector(sel) !== null;
	}`

	// captchaSolvedJS reports whether the checkpoint has been passed:
	// either the widget produced a response token or the widget left the
	// page entirely.
	captchaSolvedJS = `() => {
		const token = document.querySelector('textarea[name*="captcha-response"], input[name*="captcha-response"], input[name="cf-turnstile-response"]');
		if (token && token.value && token.value.length > 0) return true;
		const sel = 'iframe[src*="captcha"], iframe[src*="challenge"], iframe[src*="turnstile"], div[class*="captcha"], [data-captcha]';
		return document.querySelector(sel) === null;
	}`

	// submitEnabledJS is a secondary completion signal: forms commonly
	// keep the submit button disabled until verification clears.
	submitEnabledJS = `() => {
		const btn = document.querySelector('button[type="submit"], input[type="submit"]');
		return btn !== null && !btn.disabled;
	}`
)

// CaptchaStrategy resolves a human-verification checkpoint. Resolve
// returns nil once the flow may proceed past the checkpoint, a
// *Error with CodeCaptchaTimeout or CodeCancelled otherwise.
type CaptchaStrategy interface {
	Resolve(ctx context.Context, page Page) error
}

// NewCaptchaStrategy builds the configured strategy. Unrecognized modes
// fall back to SmartWait, which needs no operator at all in the common
// no-widget case.
func NewCaptchaStrategy(mode config.CaptchaMode, cfg *config.FlowConfig, prompter Prompter) CaptchaStrategy {
	switch mode {
	case config.CaptchaManualPause:
		return &manualPauseStrategy{prompter: prompter}
	case config.CaptchaInteractive:
		return &interactiveStrategy{prompter: prompter}
	default:
		return &smartWaitStrategy{cfg: cfg}
	}
}

// widgetPresent is shared by all strategies: when no widget is on the
// page there is nothing to resolve and the checkpoint is skipped.
func widgetPresent(ctx context.Context, page Page) bool {
	present, err := page.Evaluate(ctx, captchaWidgetPresentJS)
	if err != nil {
		// Evaluation failure means we cannot rule the widget out.
		logging.FlowWarn("captcha presence probe failed: %v", err)
		return true
	}
	return present
}

// manualPauseStrategy blocks on a single operator confirmation.
type manualPauseStrategy struct {
	prompter Prompter
}

func (s *manualPauseStrategy) Resolve(ctx context.Context, page Page) error {
	if !widgetPresent(ctx, page) {
		logging.Flow("no verification widget present, skipping checkpoint")
		return nil
	}
	ok, err := s.prompter.Confirm("Complete the verification challenge in the browser window, then confirm to continue")
	if err != nil {
		return failure(CodeCancelled, "operator prompt aborted", err)
	}
	if !ok {
		return failure(CodeCancelled, "operator declined to continue past verification", nil)
	}
	return nil
}

// smartWaitStrategy polls the solved predicate until it flips or the
// configured timeout elapses. No operator interaction.
type smartWaitStrategy struct {
	cfg *config.FlowConfig
}

func (s *smartWaitStrategy) Resolve(ctx context.Context, page Page) error {
	if !widgetPresent(ctx, page) {
		logging.Flow("no verification widget present, skipping checkpoint")
		return nil
	}

	deadline := time.Now().Add(s.cfg.CaptchaTimeout())
	ticker := time.NewTicker(s.cfg.CaptchaPollInterval())
	defer ticker.Stop()

	for {
		// Either signal alone clears the checkpoint: a response token (or
		// the widget leaving the page) and an enabled submit control are
		// independent indicators of the same thing.
		if solved, err := page.Evaluate(ctx, captchaSolvedJS); err == nil && solved {
			logging.Flow("verification checkpoint cleared")
			return nil
		}
		if enabled, err := page.Evaluate(ctx, submitEnabledJS); err == nil && enabled {
			logging.Flow("verification checkpoint cleared: submit control re-enabled")
			return nil
		}
		if time.Now().After(deadline) {
			return failure(CodeCaptchaTimeout, "verification challenge not completed in time", nil)
		}
		select {
		case <-ctx.Done():
			return failure(CodeCancelled, "wait for verification interrupted", ctx.Err())
		case <-ticker.C:
		}
	}
}

// interactiveStrategy keeps the operator in a proceed / re-check /
// cancel loop. There is no upper bound on iterations; the operator owns
// the loop and cancel is always one choice away.
type interactiveStrategy struct {
	prompter Prompter
}

func (s *interactiveStrategy) Resolve(ctx context.Context, page Page) error {
	if !widgetPresent(ctx, page) {
		logging.Flow("no verification widget present, skipping checkpoint")
		return nil
	}

	options := []string{
		"Proceed (challenge is complete)",
		"Re-check the page",
		"Cancel the login flow",
	}
	for {
		if ctx.Err() != nil {
			return failure(CodeCancelled, "wait for verification interrupted", ctx.Err())
		}
		choice, err := s.prompter.Choose("A verification challenge is blocking the login", options)
		if err != nil {
			return failure(CodeCancelled, "operator prompt aborted", err)
		}
		switch choice {
		case 0:
			return nil
		case 1:
			solved, err := page.Evaluate(ctx, captchaSolvedJS)
			if err == nil && solved {
				logging.Flow("re-check: verification checkpoint cleared")
				return nil
			}
			logging.Flow("re-check: challenge still present")
		default:
			return failure(CodeCancelled, "operator cancelled at verification checkpoint", nil)
		}
	}
}
