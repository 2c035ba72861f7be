// Package flow drives the browser-based login state machine that ends
// with an extracted session credential. The flow is operator-assisted:
// verification codes and challenge checkpoints need a human, so the
// machine alternates between automation steps and Prompter calls.
package flow

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"credkeeper/internal/browser"
	"credkeeper/internal/config"
	"credkeeper/internal/logging"
)

// State names the login flow's position. Transitions only move forward;
// a failed transition ends the flow through Cleanup.
type State string

const (
	StateInit                State = "init"
	StateBrowserReady        State = "browser_ready"
	StateAtProviderLogin     State = "at_provider_login"
	StateCredentialsEntered  State = "credentials_entered"
	StateVerificationPending State = "verification_pending"
	StateProviderRedirect    State = "provider_redirect"
	StateReturnedToApp       State = "returned_to_app"
	StateCredentialExtracted State = "credential_extracted"
	StateCleanup             State = "cleanup"
)

// Outcome is the terminal result of a flow run.
type Outcome string

const (
	OutcomeSuccess   Outcome = "success"
	OutcomeFailure   Outcome = "failure"
	OutcomeCancelled Outcome = "cancelled"
)

// Params configures a single flow run.
type Params struct {
	// Email seeds the email identity path. When empty and the email
	// path is selected, the operator is prompted for it.
	Email string

	// Registration navigates to the sign-up page instead of sign-in.
	Registration bool
}

// Result is what a completed flow run produced.
type Result struct {
	Outcome    Outcome
	Credential string
	Email      string
	Err        *Error
}

// Prioritized selector lists. Exact IDs first, attribute heuristics
// after, so a site-specific match always wins over a generic one.
var (
	emailInputSelectors = []string{
		"#email-input",
		"input[type='email']",
		"input[name='email']",
		"input[autocomplete='email']",
	}
	submitSelectors = []string{
		"#submit-button",
		"button[type='submit']",
		"input[type='submit']",
	}
	codeInputSelectors = []string{
		"#verification-code",
		"input[name='code']",
		"input[autocomplete='one-time-code']",
		"input[inputmode='numeric']",
	}
	providerButtonSelectors = []string{
		"#provider-login",
		"button[data-provider]",
		"a[href*='oauth']",
		"a[href*='accounts.google']",
	}
)

const codeInputPresentJS = `() => {
	const sel = "#verification-code, input[name='code'], input[autocomplete='one-time-code'], input[inputmode='numeric']";
	return document.querySelector(sel) !== null;
}`

var verificationCodeRe = regexp.MustCompile(`^\d{6}$`)

// Manager runs one login flow over a Page backend. A Manager is
// single-use; construct a fresh one per attempt.
type Manager struct {
	cfg      *config.FlowConfig
	page     Page
	prompter Prompter
	captcha  CaptchaStrategy
	flowID   string
	state    State
}

// New builds a flow manager. The captcha strategy comes from the
// config's CaptchaMode.
func New(cfg *config.FlowConfig, page Page, prompter Prompter) *Manager {
	return &Manager{
		cfg:      cfg,
		page:     page,
		prompter: prompter,
		captcha:  NewCaptchaStrategy(cfg.CaptchaMode, cfg, prompter),
		flowID:   uuid.NewString()[:8],
		state:    StateInit,
	}
}

// State reports the machine's current position. Primarily for status
// display while a flow is live.
func (m *Manager) State() State { return m.state }

// Run executes the flow to a terminal Result. The browser session is
// always closed before Run returns, whatever path the flow took. Run
// never returns a raw automation error: failures are folded into
// Result.Err with a stable code.
func (m *Manager) Run(ctx context.Context, params Params) *Result {
	defer func() {
		m.transition(StateCleanup)
		if err := m.page.Close(); err != nil {
			logging.FlowWarn("[%s] browser close: %v", m.flowID, err)
		}
	}()

	logging.Flow("[%s] login flow starting (registration=%v)", m.flowID, params.Registration)

	if res := m.startBrowser(ctx); res != nil {
		return res
	}
	if res := m.reachLogin(ctx, params); res != nil {
		return res
	}

	var email string
	var res *Result
	switch m.cfg.IdentityMethod {
	case config.IdentityProvider:
		res = m.providerPath(ctx)
	default:
		email, res = m.emailPath(ctx, params)
	}
	if res != nil {
		return res
	}

	return m.extractCredential(ctx, email)
}

func (m *Manager) transition(next State) {
	logging.FlowDebug("[%s] %s -> %s", m.flowID, m.state, next)
	m.state = next
}

func (m *Manager) cancelled(err error) *Result {
	return &Result{
		Outcome: OutcomeCancelled,
		Err:     failure(CodeCancelled, "login flow cancelled", err),
	}
}

func (m *Manager) failed(code FailureCode, message string, err error) *Result {
	fe := failure(code, message, err)
	logging.FlowError("[%s] %v", m.flowID, fe)
	return &Result{Outcome: OutcomeFailure, Err: fe}
}

func (m *Manager) checkCtx(ctx context.Context) *Result {
	if ctx.Err() != nil {
		return m.cancelled(ctx.Err())
	}
	return nil
}

// startBrowser moves Init -> BrowserReady.
func (m *Manager) startBrowser(ctx context.Context) *Result {
	if res := m.checkCtx(ctx); res != nil {
		return res
	}
	if err := m.page.Start(ctx); err != nil {
		if errors.Is(err, browser.ErrBrowserUnavailable) {
			return m.failed(CodeBrowserUnavailable, "no usable browser found on this machine", err)
		}
		return m.failed(CodeLaunchFailure, "browser failed to start", err)
	}
	m.transition(StateBrowserReady)
	return nil
}

// reachLogin navigates to the entry page and waits for the login host.
// A redirect that never lands on the login host is non-fatal: the
// operator may already be mid-session or the site may serve login on
// the app domain, so the flow continues from wherever the page is.
func (m *Manager) reachLogin(ctx context.Context, params Params) *Result {
	if res := m.checkCtx(ctx); res != nil {
		return res
	}

	target := m.cfg.EntryURL
	if params.Registration {
		target = strings.TrimSuffix(target, "/") + "/signup"
	}
	if err := m.page.Navigate(ctx, target); err != nil {
		return m.failed(CodeLaunchFailure, "could not open the sign-in page", err)
	}
	if err := m.page.WaitForHost(ctx, m.cfg.LoginHost, m.cfg.LoginRedirectWait()); err != nil {
		if ctx.Err() != nil {
			return m.cancelled(ctx.Err())
		}
		logging.FlowWarn("[%s] login host not reached within %s, continuing on %q",
			m.flowID, m.cfg.LoginRedirectWait(), m.page.CurrentHost())
	}
	m.transition(StateAtProviderLogin)
	return nil
}

// emailPath handles email + verification code identity. Returns the
// email actually used so the account record can carry it.
func (m *Manager) emailPath(ctx context.Context, params Params) (string, *Result) {
	if res := m.checkCtx(ctx); res != nil {
		return "", res
	}

	email := strings.TrimSpace(params.Email)
	if email == "" {
		entered, err := m.prompter.Input("Email address for this account")
		if err != nil {
			return "", m.cancelled(err)
		}
		email = strings.TrimSpace(entered)
	}
	if email == "" {
		return "", m.failed(CodeCancelled, "no email address provided", nil)
	}

	if sel, err := m.page.FillFirst(ctx, emailInputSelectors, email); err != nil {
		logging.FlowWarn("[%s] email field not found: %v", m.flowID, err)
		ok, perr := m.prompter.Confirm("Could not locate the email field. Enter the email in the browser yourself, then confirm")
		if perr != nil || !ok {
			return "", m.cancelled(perr)
		}
	} else {
		logging.FlowDebug("[%s] filled email via %q", m.flowID, sel)
	}

	// The checkpoint sits between typing the email and submitting it.
	if err := m.captcha.Resolve(ctx, m.page); err != nil {
		return "", m.resultFromError(err)
	}

	if _, err := m.page.ClickFirst(ctx, submitSelectors); err != nil {
		logging.FlowWarn("[%s] submit control not found: %v", m.flowID, err)
		ok, perr := m.prompter.Confirm("Could not locate the submit button. Submit the form yourself, then confirm")
		if perr != nil || !ok {
			return "", m.cancelled(perr)
		}
	}
	m.transition(StateCredentialsEntered)

	if res := m.awaitVerificationPage(ctx); res != nil {
		return "", res
	}
	if res := m.enterVerificationCode(ctx); res != nil {
		return "", res
	}

	if err := m.page.WaitForHost(ctx, m.cfg.AppHost, m.cfg.LoginRedirectWait()); err != nil {
		if ctx.Err() != nil {
			return "", m.cancelled(ctx.Err())
		}
		logging.FlowWarn("[%s] app host not reached after code entry, continuing on %q",
			m.flowID, m.page.CurrentHost())
	}
	m.transition(StateReturnedToApp)
	return email, nil
}

// awaitVerificationPage polls for a code input to appear. Absence after
// the bound is non-fatal: the code prompt proceeds regardless, since
// the operator reads the code from their inbox either way.
func (m *Manager) awaitVerificationPage(ctx context.Context) *Result {
	deadline := time.Now().Add(m.cfg.VerificationWait())
	for time.Now().Before(deadline) {
		if ctx.Err() != nil {
			return m.cancelled(ctx.Err())
		}
		present, err := m.page.Evaluate(ctx, codeInputPresentJS)
		if err == nil && present {
			m.transition(StateVerificationPending)
			return nil
		}
		select {
		case <-ctx.Done():
			return m.cancelled(ctx.Err())
		case <-time.After(500 * time.Millisecond):
		}
	}
	logging.FlowWarn("[%s] verification-code input did not appear within %s", m.flowID, m.cfg.VerificationWait())
	m.transition(StateVerificationPending)
	return nil
}

// enterVerificationCode prompts until the operator supplies six digits
// or gives up with an empty line.
func (m *Manager) enterVerificationCode(ctx context.Context) *Result {
	for {
		if ctx.Err() != nil {
			return m.cancelled(ctx.Err())
		}
		code, err := m.prompter.Input("6-digit verification code (empty to cancel)")
		if err != nil {
			return m.cancelled(err)
		}
		code = strings.TrimSpace(code)
		if code == "" {
			return m.cancelled(nil)
		}
		if !verificationCodeRe.MatchString(code) {
			logging.FlowDebug("[%s] rejected malformed verification code", m.flowID)
			continue
		}

		if _, err := m.page.FillFirst(ctx, codeInputSelectors, code); err != nil {
			logging.FlowWarn("[%s] code field not found: %v", m.flowID, err)
			ok, perr := m.prompter.Confirm("Could not locate the code field. Enter the code in the browser yourself, then confirm")
			if perr != nil || !ok {
				return m.cancelled(perr)
			}
			return nil
		}
		if _, err := m.page.ClickFirst(ctx, submitSelectors); err != nil {
			logging.FlowDebug("[%s] no submit control after code entry, relying on auto-submit", m.flowID)
		}
		return nil
	}
}

// providerPath hands identity to a third-party provider: click the
// affordance, wait out the round trip, and confirm with the operator if
// the automatic return detection does not fire.
func (m *Manager) providerPath(ctx context.Context) *Result {
	if res := m.checkCtx(ctx); res != nil {
		return res
	}

	if sel, err := m.page.ClickFirst(ctx, providerButtonSelectors); err != nil {
		logging.FlowWarn("[%s] provider button not found: %v", m.flowID, err)
		ok, perr := m.prompter.Confirm("Could not locate the provider sign-in button. Click it yourself, then confirm")
		if perr != nil || !ok {
			return m.cancelled(perr)
		}
	} else {
		logging.FlowDebug("[%s] clicked provider affordance %q", m.flowID, sel)
	}

	if err := m.page.WaitForHost(ctx, m.cfg.ProviderHost, m.cfg.ProviderWait()); err != nil {
		if ctx.Err() != nil {
			return m.cancelled(ctx.Err())
		}
		logging.FlowWarn("[%s] provider host not observed, login may be cached", m.flowID)
	}
	m.transition(StateProviderRedirect)

	if err := m.page.WaitForHost(ctx, m.cfg.AppHost, m.cfg.ReturnWait()); err != nil {
		if ctx.Err() != nil {
			return m.cancelled(ctx.Err())
		}
		ok, perr := m.prompter.Confirm("Did the provider sign-in complete and return to the application?")
		if perr != nil {
			return m.cancelled(perr)
		}
		if !ok {
			return m.failed(CodeCancelled, "provider sign-in did not complete", nil)
		}
	}
	m.transition(StateReturnedToApp)
	return nil
}

// extractCredential reads the cookie jar and assembles the credential.
// When the expected cookies are absent the operator can still paste a
// value copied from devtools; only a refusal ends in NoCredentialFound.
func (m *Manager) extractCredential(ctx context.Context, email string) *Result {
	if res := m.checkCtx(ctx); res != nil {
		return res
	}

	cookies, err := m.page.Cookies(ctx)
	if err != nil {
		logging.FlowWarn("[%s] cookie read failed: %v", m.flowID, err)
	}
	if credential, ok := BuildCredential(cookies); ok {
		m.transition(StateCredentialExtracted)
		logging.Flow("[%s] credential extracted (%s)", m.flowID, logging.Redact(credential))
		return &Result{Outcome: OutcomeSuccess, Credential: credential, Email: email}
	}

	logging.FlowWarn("[%s] expected session cookies not present", m.flowID)
	pasted, perr := m.prompter.Input("Session cookies were not found automatically. Paste the credential manually (empty to give up)")
	if perr == nil {
		pasted = strings.TrimSpace(pasted)
		if ValidCredential(pasted) {
			m.transition(StateCredentialExtracted)
			logging.Flow("[%s] credential supplied manually (%s)", m.flowID, logging.Redact(pasted))
			return &Result{Outcome: OutcomeSuccess, Credential: pasted, Email: email}
		}
	}
	return m.failed(CodeNoCredentialFound, "no session credential could be extracted", nil)
}

// resultFromError folds a strategy error into a terminal Result.
func (m *Manager) resultFromError(err error) *Result {
	if fe, ok := err.(*Error); ok {
		if fe.Code == CodeCancelled {
			return &Result{Outcome: OutcomeCancelled, Err: fe}
		}
		logging.FlowError("[%s] %v", m.flowID, fe)
		return &Result{Outcome: OutcomeFailure, Err: fe}
	}
	return m.failed(CodeInternal, "login flow failed", err)
}
