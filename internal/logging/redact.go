package logging

// Redact shortens a credential or token for safe logging.
// Secrets must never appear in full in any log file.
func Redact(secret string) string {
	if secret == "" {
		return "<empty>"
	}
	if len(secret) <= 12 {
		return "****"
	}
	return secret[:6] + "..." + secret[len(secret)-4:]
}
