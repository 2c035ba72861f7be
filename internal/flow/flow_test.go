package flow

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"credkeeper/internal/browser"
	"credkeeper/internal/config"
)

// fakePage scripts the automation surface so the state machine runs
// without a browser.
type fakePage struct {
	startErr error
	host     string
	// missHosts lists hosts WaitForHost should time out on instead of
	// reaching.
	missHosts map[string]bool

	widgetPresent bool
	widgetSolved  bool
	codePresent   bool
	submitEnabled bool
	evalCalls     int

	cookies  []browser.Cookie
	fills    []string
	clicks   []string
	fillErr  error
	clickErr error
	closed   int
}

func newFakePage() *fakePage {
	return &fakePage{submitEnabled: true, codePresent: true}
}

func (p *fakePage) Start(ctx context.Context) error { return p.startErr }

func (p *fakePage) Navigate(ctx context.Context, target string) error {
	p.host = "www.codeassist.app"
	return nil
}

func (p *fakePage) CurrentURL() string  { return "https://" + p.host + "/" }
func (p *fakePage) CurrentHost() string { return p.host }

func (p *fakePage) WaitForHost(ctx context.Context, want string, timeout time.Duration) error {
	if p.missHosts[want] {
		return fmt.Errorf("host %q not reached within %s", want, timeout)
	}
	p.host = want
	return nil
}

func (p *fakePage) FillFirst(ctx context.Context, selectors []string, text string) (string, error) {
	if p.fillErr != nil {
		return "", p.fillErr
	}
	p.fills = append(p.fills, text)
	return selectors[0], nil
}

func (p *fakePage) ClickFirst(ctx context.Context, selectors []string) (string, error) {
	if p.clickErr != nil {
		return "", p.clickErr
	}
	p.clicks = append(p.clicks, selectors[0])
	return selectors[0], nil
}

func (p *fakePage) Evaluate(ctx context.Context, predicate string) (bool, error) {
	p.evalCalls++
	switch {
	case strings.Contains(predicate, "captcha-response"):
		return p.widgetSolved, nil
	case strings.Contains(predicate, "one-time-code"):
		return p.codePresent, nil
	case strings.Contains(predicate, "disabled"):
		return p.submitEnabled, nil
	case strings.Contains(predicate, "data-captcha"):
		return p.widgetPresent, nil
	}
	return false, fmt.Errorf("unexpected predicate: %s", predicate)
}

func (p *fakePage) Cookies(ctx context.Context) ([]browser.Cookie, error) {
	return p.cookies, nil
}

func (p *fakePage) Close() error {
	p.closed++
	return nil
}

// scriptPrompter replays canned operator answers.
type scriptPrompter struct {
	confirms []bool
	choices  []int
	inputs   []string
}

func (s *scriptPrompter) Confirm(string) (bool, error) {
	if len(s.confirms) == 0 {
		return true, nil
	}
	v := s.confirms[0]
	s.confirms = s.confirms[1:]
	return v, nil
}

func (s *scriptPrompter) Choose(string, []string) (int, error) {
	if len(s.choices) == 0 {
		return 0, nil
	}
	v := s.choices[0]
	s.choices = s.choices[1:]
	return v, nil
}

func (s *scriptPrompter) Input(string) (string, error) {
	if len(s.inputs) == 0 {
		return "", nil
	}
	v := s.inputs[0]
	s.inputs = s.inputs[1:]
	return v, nil
}

func testFlowConfig() *config.FlowConfig {
	cfg := config.DefaultFlowConfig()
	cfg.LoginRedirectWaitMs = 50
	cfg.VerificationWaitMs = 50
	cfg.ProviderWaitMs = 50
	cfg.ReturnWaitMs = 50
	cfg.CaptchaPollIntervalMs = 5
	cfg.CaptchaTimeoutMs = 50
	return cfg
}

func TestEmailPathExtractsCredential(t *testing.T) {
	cfg := testFlowConfig()
	page := newFakePage()
	page.cookies = []browser.Cookie{
		{Name: "other", Value: "x"},
		{Name: SessionTokenCookie, Value: "tok-abc123"},
		{Name: UserIDTokenCookie, Value: "id-xyz789"},
	}
	prompter := &scriptPrompter{inputs: []string{"123456"}}

	m := New(cfg, page, prompter)
	res := m.Run(context.Background(), Params{Email: "dev@example.com"})

	require.Equal(t, OutcomeSuccess, res.Outcome)
	require.Equal(t, "sessionToken=tok-abc123; userIdToken=id-xyz789", res.Credential)
	require.Equal(t, "dev@example.com", res.Email)
	require.Equal(t, StateCleanup, m.State())
	require.Equal(t, 1, page.closed)
	require.Contains(t, page.fills, "dev@example.com")
	require.Contains(t, page.fills, "123456")
}

func TestBrowserUnavailableFailsWithCode(t *testing.T) {
	page := newFakePage()
	page.startErr = browser.ErrBrowserUnavailable

	m := New(testFlowConfig(), page, &scriptPrompter{})
	res := m.Run(context.Background(), Params{Email: "dev@example.com"})

	require.Equal(t, OutcomeFailure, res.Outcome)
	require.NotNil(t, res.Err)
	require.Equal(t, CodeBrowserUnavailable, res.Err.Code)
	// Cleanup runs even when the browser never started.
	require.Equal(t, 1, page.closed)
}

func TestCancelledContextEndsFlow(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	page := newFakePage()
	m := New(testFlowConfig(), page, &scriptPrompter{})
	res := m.Run(ctx, Params{Email: "dev@example.com"})

	require.Equal(t, OutcomeCancelled, res.Outcome)
	require.Equal(t, 1, page.closed)
}

func TestMissingCookiesAllowsManualPaste(t *testing.T) {
	page := newFakePage()
	page.cookies = nil
	manual := "sessionToken=manually-copied-value-1234"
	prompter := &scriptPrompter{inputs: []string{"123456", manual}}

	m := New(testFlowConfig(), page, prompter)
	res := m.Run(context.Background(), Params{Email: "dev@example.com"})

	require.Equal(t, OutcomeSuccess, res.Outcome)
	require.Equal(t, manual, res.Credential)
}

func TestMissingCookiesAndNoPasteFails(t *testing.T) {
	page := newFakePage()
	page.cookies = []browser.Cookie{{Name: "unrelated", Value: "x"}}
	prompter := &scriptPrompter{inputs: []string{"123456", ""}}

	m := New(testFlowConfig(), page, prompter)
	res := m.Run(context.Background(), Params{Email: "dev@example.com"})

	require.Equal(t, OutcomeFailure, res.Outcome)
	require.Equal(t, CodeNoCredentialFound, res.Err.Code)
}

func TestMalformedVerificationCodeReprompts(t *testing.T) {
	page := newFakePage()
	page.cookies = []browser.Cookie{{Name: SessionTokenCookie, Value: "tok-abc123"}}
	prompter := &scriptPrompter{inputs: []string{"abc", "12345", "123456"}}

	m := New(testFlowConfig(), page, prompter)
	res := m.Run(context.Background(), Params{Email: "dev@example.com"})

	require.Equal(t, OutcomeSuccess, res.Outcome)
	require.Contains(t, page.fills, "123456")
	require.NotContains(t, page.fills, "abc")
	require.NotContains(t, page.fills, "12345")
}

func TestEmptyVerificationCodeCancels(t *testing.T) {
	page := newFakePage()
	prompter := &scriptPrompter{inputs: []string{""}}

	m := New(testFlowConfig(), page, prompter)
	res := m.Run(context.Background(), Params{Email: "dev@example.com"})

	require.Equal(t, OutcomeCancelled, res.Outcome)
}

func TestProviderPathExtractsCredential(t *testing.T) {
	cfg := testFlowConfig()
	cfg.IdentityMethod = config.IdentityProvider

	page := newFakePage()
	page.cookies = []browser.Cookie{{Name: SessionTokenCookie, Value: "tok-provider-1"}}

	m := New(cfg, page, &scriptPrompter{})
	res := m.Run(context.Background(), Params{})

	require.Equal(t, OutcomeSuccess, res.Outcome)
	require.Equal(t, "sessionToken=tok-provider-1", res.Credential)
	require.NotEmpty(t, page.clicks)
}

func TestCaptchaTimeoutFailsEmailPath(t *testing.T) {
	cfg := testFlowConfig()
	cfg.CaptchaMode = config.CaptchaSmartWait

	page := newFakePage()
	page.widgetPresent = true
	page.widgetSolved = false
	page.submitEnabled = false

	m := New(cfg, page, &scriptPrompter{})
	res := m.Run(context.Background(), Params{Email: "dev@example.com"})

	require.Equal(t, OutcomeFailure, res.Outcome)
	require.Equal(t, CodeCaptchaTimeout, res.Err.Code)
	require.Equal(t, 1, page.closed)
}

func TestBuildCredential(t *testing.T) {
	cases := []struct {
		name    string
		cookies []browser.Cookie
		want    string
		ok      bool
	}{
		{
			name: "both cookies",
			cookies: []browser.Cookie{
				{Name: UserIDTokenCookie, Value: "b"},
				{Name: SessionTokenCookie, Value: "a"},
			},
			want: "sessionToken=a; userIdToken=b",
			ok:   true,
		},
		{
			name:    "session only",
			cookies: []browser.Cookie{{Name: SessionTokenCookie, Value: "a"}},
			want:    "sessionToken=a",
			ok:      true,
		},
		{
			name:    "neither",
			cookies: []browser.Cookie{{Name: "theme", Value: "dark"}},
			ok:      false,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, ok := BuildCredential(tc.cookies)
			require.Equal(t, tc.ok, ok)
			require.Equal(t, tc.want, got)
		})
	}
}

func TestValidCredential(t *testing.T) {
	require.True(t, ValidCredential("sessionToken=abcdefghijklmnop"))
	require.False(t, ValidCredential("sessionToken=x"))
	require.False(t, ValidCredential("userIdToken=abcdefghijklmnopqrstuv"))
	require.False(t, ValidCredential(""))
}
