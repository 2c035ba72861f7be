package config

import "time"

// CaptchaMode selects how the login flow waits past a human-verification checkpoint.
type CaptchaMode string

const (
	CaptchaManualPause CaptchaMode = "manual"      // operator confirms completion
	CaptchaSmartWait   CaptchaMode = "smart"       // poll a completion predicate
	CaptchaInteractive CaptchaMode = "interactive" // proceed / re-check / cancel loop
)

// IdentityMethod selects the login path inside the flow.
type IdentityMethod string

const (
	IdentityEmail    IdentityMethod = "email"    // email + verification code
	IdentityProvider IdentityMethod = "provider" // third-party identity provider redirect
)

// FlowConfig holds login flow configuration.
type FlowConfig struct {
	// EntryURL is the application page automation navigates to first.
	EntryURL string `json:"entry_url,omitempty"`

	// LoginHost is the login subdomain the entry page redirects to.
	LoginHost string `json:"login_host,omitempty"`

	// ProviderHost is the identity provider's domain for the provider path.
	ProviderHost string `json:"provider_host,omitempty"`

	// AppHost is the application domain the flow returns to after login.
	AppHost string `json:"app_host,omitempty"`

	CaptchaMode    CaptchaMode    `json:"captcha_mode,omitempty"`
	IdentityMethod IdentityMethod `json:"identity_method,omitempty"`

	LoginRedirectWaitMs    int `json:"login_redirect_wait_ms,omitempty"`
	VerificationWaitMs     int `json:"verification_wait_ms,omitempty"`
	ProviderWaitMs         int `json:"provider_wait_ms,omitempty"`
	ReturnWaitMs           int `json:"return_wait_ms,omitempty"`
	CaptchaPollIntervalMs  int `json:"captcha_poll_interval_ms,omitempty"`
	CaptchaTimeoutMs       int `json:"captcha_timeout_ms,omitempty"`
}

// DefaultFlowConfig returns sensible defaults.
func DefaultFlowConfig() *FlowConfig {
	return &FlowConfig{
		EntryURL:              "https://www.codeassist.app/",
		LoginHost:             "auth.codeassist.app",
		ProviderHost:          "accounts.google.com",
		AppHost:               "www.codeassist.app",
		CaptchaMode:           CaptchaSmartWait,
		IdentityMethod:        IdentityEmail,
		LoginRedirectWaitMs:   15000,
		VerificationWaitMs:    30000,
		ProviderWaitMs:        15000,
		ReturnWaitMs:          30000,
		CaptchaPollIntervalMs: 1000,
		CaptchaTimeoutMs:      120000,
	}
}

// LoginRedirectWait bounds the wait for the entry page to reach the login subdomain.
func (c *FlowConfig) LoginRedirectWait() time.Duration {
	return msOrDefault(c.LoginRedirectWaitMs, 15*time.Second)
}

// VerificationWait bounds the wait for the verification-code page.
func (c *FlowConfig) VerificationWait() time.Duration {
	return msOrDefault(c.VerificationWaitMs, 30*time.Second)
}

// ProviderWait bounds the wait for the identity provider's domain.
func (c *FlowConfig) ProviderWait() time.Duration {
	return msOrDefault(c.ProviderWaitMs, 15*time.Second)
}

// ReturnWait bounds the wait for return to the application domain.
func (c *FlowConfig) ReturnWait() time.Duration {
	return msOrDefault(c.ReturnWaitMs, 30*time.Second)
}

// CaptchaPollInterval is the SmartWait polling cadence.
func (c *FlowConfig) CaptchaPollInterval() time.Duration {
	return msOrDefault(c.CaptchaPollIntervalMs, time.Second)
}

// CaptchaTimeout bounds the SmartWait strategy.
func (c *FlowConfig) CaptchaTimeout() time.Duration {
	return msOrDefault(c.CaptchaTimeoutMs, 120*time.Second)
}

func msOrDefault(ms int, def time.Duration) time.Duration {
	if ms <= 0 {
		return def
	}
	return time.Duration(ms) * time.Millisecond
}
