// Package redact provides helpers for stripping sensitive values from log
// output and structured data before it leaves the process boundary.
//
// # Threat model
//
// Secrets (API keys, bearer tokens, etc.) must never appear in:
//   - Log lines
//   - Audit payloads stored in SQLite (except the encrypted blob)
//
// Redaction is best-effort: String/Map operate on known sensitive values or
// key names the caller supplies; Freeform additionally pattern-matches
// common secret shapes (bearer tokens, API keys, JWTs) in text whose
// structure is not known ahead of time, such as a backend error string. It
// is NOT a substitute for keeping secrets out of log call-sites in the
// first place.
package redact

import (
	"regexp"
	"strings"
)

const placeholder = "[REDACTED]"

// freeformPatterns catches common secret shapes in unstructured text (error
// messages, log lines) where there is no key/value structure to redact by
// name. Narrower than a general PII scrubber: this package only cares about
// credential-shaped values, not emails/SSNs/phone numbers.
type freeformPattern struct {
	regex       *regexp.Regexp
	replacement string
}

var freeformPatterns = []freeformPattern{
	{regexp.MustCompile(`(?i)(bearer\s+)[a-zA-Z0-9_.-]{16,}`), "$1" + placeholder},
	{regexp.MustCompile(`(?i)(api[_-]?key|secret[_-]?key|auth[_-]?token)([:\s=]+)["']?[a-zA-Z0-9_.-]{16,}["']?`), "$1$2" + placeholder},
	{regexp.MustCompile(`eyJ[a-zA-Z0-9_-]+\.eyJ[a-zA-Z0-9_-]+\.[a-zA-Z0-9_-]+`), placeholder},
}

// Freeform redacts credential-shaped substrings (bearer tokens, API keys,
// JWTs) out of s without requiring the caller to know the exact secret
// value in advance.
func Freeform(s string) string {
	for _, p := range freeformPatterns {
		s = p.regex.ReplaceAllString(s, p.replacement)
	}
	return s
}

// String replaces every occurrence of each sensitive value in s with
// [REDACTED].  Values shorter than 4 characters are skipped to avoid
// spurious redaction of common substrings.
//
// Example:
//
//	safe := redact.String(logLine, apiKey, matrixToken)
func String(s string, sensitiveValues ...string) string {
	for _, v := range sensitiveValues {
		if len(v) < 4 {
			continue
		}
		s = strings.ReplaceAll(s, v, placeholder)
	}
	return s
}

// Map returns a shallow copy of m with values replaced by [REDACTED] for
// every key whose name suggests it contains a secret (password, token, key,
// secret, credential, auth).  Non-string values are left unchanged.
func Map(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		if isSensitiveKey(k) {
			if str, ok := v.(string); ok && str != "" {
				out[k] = placeholder
				continue
			}
		}
		out[k] = v
	}
	return out
}

// isSensitiveKey returns true when the key name suggests it holds a secret.
func isSensitiveKey(key string) bool {
	lower := strings.ToLower(key)
	for _, word := range []string{"password", "passwd", "token", "secret", "key", "credential", "auth", "apikey"} {
		if strings.Contains(lower, word) {
			return true
		}
	}
	return false
}
