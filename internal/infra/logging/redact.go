package logging

import (
	"log/slog"
	"strings"
)

// RedactedValue replaces the value of sensitive attributes.
const RedactedValue = "[REDACTED]"

//nolint:gochecknoglobals
var sensitiveKeys = []string{
	"password",
	"token",
	"secret",
	"authorization",
}

// IsSensitiveKey reports whether an attribute key names a credential.
// Matching is case-insensitive on substrings, so "newPassword" and
// "refreshToken" are both sensitive.
func IsSensitiveKey(key string) bool {
	key = strings.ToLower(key)

	for _, s := range sensitiveKeys {
		if strings.Contains(key, s) {
			return true
		}
	}

	return false
}

// Redact masks the value of a sensitive attribute. Groups are left to the
// handler, which calls Redact for each member.
func Redact(a slog.Attr) slog.Attr {
	if a.Value.Kind() == slog.KindGroup {
		return a
	}

	if IsSensitiveKey(a.Key) {
		return slog.String(a.Key, RedactedValue)
	}

	return a
}

func replaceAttr(_ []string, a slog.Attr) slog.Attr {
	return Redact(a)
}
