package logging

import (
	"log/slog"
	"regexp"
)

var emailPattern = regexp.MustCompile(`[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}`)

const redactedEmail = "[REDACTED_EMAIL]"

// RedactPII masks email addresses in s.
func RedactPII(s string) (string, bool) {
	out := emailPattern.ReplaceAllString(s, redactedEmail)
	return out, out != s
}

// redactAttr is a slog ReplaceAttr hook masking PII in string values,
// including error strings that echo user input.
func redactAttr(_ []string, a slog.Attr) slog.Attr {
	switch a.Value.Kind() {
	case slog.KindString:
		if out, changed := RedactPII(a.Value.String()); changed {
			return slog.String(a.Key, out)
		}
	case slog.KindAny:
		if err, ok := a.Value.Any().(error); ok {
			if out, changed := RedactPII(err.Error()); changed {
				return slog.String(a.Key, out)
			}
		}
	}
	return a
}
