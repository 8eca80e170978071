// Package sanitize normalizes external text and frames it with boundary
// markers so a language model can distinguish untrusted data from
// instructions. Neither operation ever fails: invariant-violating input is
// made safe rather than rejected.
package sanitize

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// DefaultMaxLength bounds sanitize output when the caller doesn't override it.
const DefaultMaxLength = 10_000

var markerFragment = regexp.MustCompile(`(?i)<<<\s*external_[a-z0-9]+_(start|end)\s*>>>`)

// Sanitize strips null bytes and control characters (keeping newline, tab,
// carriage return), canonically composes the result (NFC), and truncates to
// at most maxLength code points. maxLength <= 0 means DefaultMaxLength.
func Sanitize(text string, maxLength int) string {
	if maxLength <= 0 {
		maxLength = DefaultMaxLength
	}
	var b strings.Builder
	b.Grow(len(text))
	for _, r := range text {
		if r == 0 {
			continue
		}
		if r == '\n' || r == '\t' || r == '\r' {
			b.WriteRune(r)
			continue
		}
		if unicode.IsControl(r) {
			continue
		}
		b.WriteRune(r)
	}
	composed := norm.NFC.String(b.String())
	return truncate(composed, maxLength)
}

func truncate(text string, maxLength int) string {
	count := 0
	for i, r := range text {
		_ = r
		if count == maxLength {
			return text[:i]
		}
		count++
	}
	return text
}

// WrapExternalContent sanitizes text and frames it with
// <<<EXTERNAL_{TAG}_START>>> / <<<EXTERNAL_{TAG}_END>>> markers, where TAG is
// the uppercased, alphanumeric-filtered form of sourceTag. Any marker-shaped
// fragment already present in the payload (any case, any tag) is stripped
// before framing so untrusted content can never forge a nested marker pair.
func WrapExternalContent(text, sourceTag string) string {
	clean := Sanitize(text, DefaultMaxLength)
	for {
		stripped := markerFragment.ReplaceAllString(clean, "")
		if stripped == clean {
			break
		}
		clean = stripped
	}
	tag := normalizeTag(sourceTag)
	start := "<<<EXTERNAL_" + tag + "_START>>>"
	end := "<<<EXTERNAL_" + tag + "_END>>>"
	return start + "\n" + clean + "\n" + end
}

func normalizeTag(tag string) string {
	var b strings.Builder
	for _, r := range strings.ToUpper(tag) {
		if (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	if b.Len() == 0 {
		return "SOURCE"
	}
	return b.String()
}
