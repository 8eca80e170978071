package identity

import "testing"

const validPersonaYAML = `
voice: warm and concise
traits:
  curiosity: 0.8
  formality: 0.2
interests: [astronomy, tea]
vocabulary:
  preferred: [delightful]
  banned: [synergy]
signature_phrases: ["ah, interesting!"]
few_shot:
  - prompt: "hi"
    response: "hello there"
`

func TestParsePersona_Valid(t *testing.T) {
	p, err := ParsePersona([]byte(validPersonaYAML))
	if err != nil {
		t.Fatalf("ParsePersona: %v", err)
	}
	if p.Voice() != "warm and concise" {
		t.Fatalf("unexpected voice: %q", p.Voice())
	}
	v, ok := p.Trait("curiosity")
	if !ok || v != 0.8 {
		t.Fatalf("unexpected curiosity trait: %v ok=%v", v, ok)
	}
	if len(p.FewShotExamples()) != 1 {
		t.Fatalf("expected one few-shot example, got %d", len(p.FewShotExamples()))
	}
}

func TestParsePersona_RejectsOutOfRangeTrait(t *testing.T) {
	y := "traits:\n  curiosity: 1.5\n"
	if _, err := ParsePersona([]byte(y)); err == nil {
		t.Fatal("expected error for out-of-range trait")
	}
}

func TestSystemPromptFragmentIncludesDisplayName(t *testing.T) {
	p, err := ParsePersona([]byte(validPersonaYAML))
	if err != nil {
		t.Fatalf("ParsePersona: %v", err)
	}
	frag := p.SystemPromptFragment("Aiko")
	if frag == "" {
		t.Fatal("expected a non-empty system prompt fragment")
	}
}
