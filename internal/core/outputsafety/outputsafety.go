// Package outputsafety implements the post-generation filter: model-identity
// leakage, persona break, banned-vocabulary substitution, and blocked
// content, applied in that order.
//
// Styled after internal/gitai/policy.Engine's ordered-rule-evaluation shape,
// generalized from MCP tool gating to text pattern gating.
package outputsafety

import (
	"fmt"
	"regexp"
)

// Verdict is the output safety filter's outcome.
type Verdict struct {
	Blocked       bool
	Reason        string
	RewrittenText string
}

// IdentityTraits configures the identity-specific sub-filters.
type IdentityTraits struct {
	DisplayName     string
	BannedVocabulary map[string]string // banned word -> replacement ("" elides it)
}

// Filter implements the four-stage output safety contract.
type Filter struct {
	identity string
	traits   IdentityTraits

	personaBreak []*regexp.Regexp
}

var modelIdentityPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\bI am an AI\b`),
	regexp.MustCompile(`(?i)\bI'm an AI\b`),
	regexp.MustCompile(`(?i)\bas an AI\b`),
	regexp.MustCompile(`(?i)\bas a language model\b`),
	regexp.MustCompile(`(?i)\bas a large language model\b`),
	regexp.MustCompile(`(?i)\bI am a language model\b`),
	regexp.MustCompile(`(?i)\bI don't have (personal )?(feelings|experiences|a body)\b`),
	regexp.MustCompile(`(?i)\btrained by (openai|anthropic|google|meta)\b`),
	regexp.MustCompile(`(?i)\bmy training data\b`),
	regexp.MustCompile(`(?i)\bmy system prompt\b`),
	regexp.MustCompile(`(?i)\bI (was|am) (created|developed|built) by\b`),
	regexp.MustCompile(`(?i)\bunderlying (model|language model)\b`),
	regexp.MustCompile(`(?i)\bI do not have (consciousness|personal opinions)\b`),
	regexp.MustCompile(`(?i)\bgpt-\d`),
}

var blockedContentPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\bhow to (make|build|construct) a (bomb|explosive|weapon)\b`),
	regexp.MustCompile(`(?i)\bstep[- ]by[- ]step (guide|instructions) to (kill|harm|poison)\b`),
	regexp.MustCompile(`(?i)\ball .* (race|ethnic group|religion) (are|is) (inferior|subhuman)\b`),
	regexp.MustCompile(`(?i)\bincite(ment)? (violence|riot) against\b`),
}

// New constructs a Filter for identity with the given traits. Empty identity
// strings and empty display names are guarded before pattern construction so
// they never produce an always-matching or empty persona-break pattern.
func New(identity string, traits IdentityTraits) *Filter {
	f := &Filter{identity: identity, traits: traits}
	if traits.DisplayName != "" {
		name := regexp.QuoteMeta(traits.DisplayName)
		f.personaBreak = []*regexp.Regexp{
			regexp.MustCompile(`(?i)I'm not ` + name),
			regexp.MustCompile(`(?i)I am not ` + name),
			regexp.MustCompile(`(?i)stepping out of my role`),
			regexp.MustCompile(`(?i)breaking character`),
			regexp.MustCompile(`(?i)out of character`),
		}
	} else {
		f.personaBreak = []*regexp.Regexp{
			regexp.MustCompile(`(?i)stepping out of my role`),
			regexp.MustCompile(`(?i)breaking character`),
			regexp.MustCompile(`(?i)out of character`),
		}
	}
	return f
}

// Check runs the four sub-filters over text, in order.
func (f *Filter) Check(text string) Verdict {
	for _, p := range modelIdentityPatterns {
		if p.MatchString(text) {
			return Verdict{Blocked: true, Reason: "model_identity_leakage"}
		}
	}
	for _, p := range f.personaBreak {
		if p.MatchString(text) {
			return Verdict{Blocked: true, Reason: "persona_break"}
		}
	}

	rewritten := f.substituteBannedVocabulary(text)

	for _, p := range blockedContentPatterns {
		if p.MatchString(rewritten) {
			return Verdict{Blocked: true, Reason: "blocked_content"}
		}
	}

	return Verdict{Blocked: false, RewrittenText: rewritten}
}

func (f *Filter) substituteBannedVocabulary(text string) string {
	if len(f.traits.BannedVocabulary) == 0 {
		return text
	}
	out := text
	for banned, replacement := range f.traits.BannedVocabulary {
		if banned == "" {
			continue
		}
		re := regexp.MustCompile(`(?i)\b` + regexp.QuoteMeta(banned) + `\b`)
		out = re.ReplaceAllString(out, replacement)
	}
	return out
}

// Reason formats a human-readable version of a Verdict's block reason.
func Reason(v Verdict) string {
	if !v.Blocked {
		return ""
	}
	return fmt.Sprintf("output safety: %s", v.Reason)
}
