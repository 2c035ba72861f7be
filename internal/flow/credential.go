package flow

import (
	"strings"

	"credkeeper/internal/browser"
)

const (
	// SessionTokenCookie is the primary HTTP-only session cookie.
	SessionTokenCookie = "sessionToken"

	// UserIDTokenCookie is the secondary identity cookie, present on
	// some deployments alongside the session token.
	UserIDTokenCookie = "userIdToken"

	// MinCredentialLength guards against truncated or junk pastes.
	MinCredentialLength = 20
)

// BuildCredential assembles the stored credential string from the
// browser's cookie jar. The session token always leads so consumers can
// detect it with a prefix scan. Returns ok=false when neither cookie of
// interest is present.
func BuildCredential(cookies []browser.Cookie) (credential string, ok bool) {
	var session, userID string
	for _, c := range cookies {
		switch c.Name {
		case SessionTokenCookie:
			session = c.Value
		case UserIDTokenCookie:
			userID = c.Value
		}
	}

	var parts []string
	if session != "" {
		parts = append(parts, SessionTokenCookie+"="+session)
	}
	if userID != "" {
		parts = append(parts, UserIDTokenCookie+"="+userID)
	}
	if len(parts) == 0 {
		return "", false
	}
	return strings.Join(parts, "; "), true
}

// ValidCredential reports whether a credential string looks like a real
// extracted session. Used for operator pastes and HTTP submissions,
// where a partial copy is the common failure mode.
func ValidCredential(credential string) bool {
	return len(credential) >= MinCredentialLength &&
		strings.Contains(credential, SessionTokenCookie+"=")
}
