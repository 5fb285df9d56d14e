package logging

import (
	"log/slog"
	"strings"
)

// RedactedValue is the canonical placeholder used for sensitive fields in logs.
const RedactedValue = "[REDACTED]"

var sensitiveFragments = []string{"secret", "password", "passphrase", "authorization", "token", "dsn"}

// allowlisted keys are never masked even when they contain a sensitive
// fragment; token addresses are public identifiers.
var redactionAllowlist = map[string]struct{}{
	"token":     {},
	"tokens":    {},
	"token_id":  {},
	"component": {},
}

// IsSensitive reports whether values logged under key should be masked.
func IsSensitive(key string) bool {
	normalized := strings.ToLower(strings.TrimSpace(key))
	if _, ok := redactionAllowlist[normalized]; ok {
		return false
	}
	for _, fragment := range sensitiveFragments {
		if strings.Contains(normalized, fragment) {
			return true
		}
	}
	return false
}

// MaskField returns a slog.Attr that redacts the supplied value. Empty values
// pass through unchanged to avoid introducing noise in logs.
func MaskField(key, value string) slog.Attr {
	if strings.TrimSpace(value) == "" {
		return slog.String(key, value)
	}
	return slog.String(key, RedactedValue)
}
