package config

import "time"

// ExtractConfig holds fallback extraction server configuration.
type ExtractConfig struct {
	// Port for the local listener. The operator page and posted credentials
	// arrive here, so the port must be stable enough to put in instructions.
	Port int `json:"port,omitempty"`

	// IdentityEndpoint is the application endpoint whose Set-Cookie response
	// carries the session token for the api-extract action.
	IdentityEndpoint string `json:"identity_endpoint,omitempty"`

	TimeoutMins int `json:"timeout_mins,omitempty"`
}

// DefaultExtractConfig returns sensible defaults.
func DefaultExtractConfig() *ExtractConfig {
	return &ExtractConfig{
		Port:             3000,
		IdentityEndpoint: "https://www.codeassist.app/api/auth/me",
		TimeoutMins:      5,
	}
}

// GetPort returns the listener port. A negative value selects an
// ephemeral port, which only makes sense when the caller reads the
// bound address back.
func (c *ExtractConfig) GetPort() int {
	if c.Port == 0 {
		return 3000
	}
	if c.Port < 0 {
		return 0
	}
	return c.Port
}

// Timeout is the hard bound on a pending extraction.
func (c *ExtractConfig) Timeout() time.Duration {
	if c.TimeoutMins <= 0 {
		return 5 * time.Minute
	}
	return time.Duration(c.TimeoutMins) * time.Minute
}
