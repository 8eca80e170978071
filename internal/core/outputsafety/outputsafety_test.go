package outputsafety

import "testing"

func TestBlocksModelIdentityLeakage(t *testing.T) {
	f := New("aria", IdentityTraits{DisplayName: "Aria"})
	v := f.Check("I am an AI language model created by OpenAI")
	if !v.Blocked || v.Reason != "model_identity_leakage" {
		t.Fatalf("got %+v", v)
	}
}

func TestBlocksPersonaBreak(t *testing.T) {
	f := New("aria", IdentityTraits{DisplayName: "Aria"})
	v := f.Check("I'm not Aria, I'm just a helpful assistant")
	if !v.Blocked || v.Reason != "persona_break" {
		t.Fatalf("got %+v", v)
	}
}

func TestBannedVocabularyIsRewrittenNotBlocked(t *testing.T) {
	f := New("aria", IdentityTraits{
		DisplayName:      "Aria",
		BannedVocabulary: map[string]string{"stupid": "silly"},
	})
	v := f.Check("that's a stupid idea")
	if v.Blocked {
		t.Fatal("banned vocabulary substitution should rewrite, not block")
	}
	if v.RewrittenText != "that's a silly idea" {
		t.Fatalf("got %q", v.RewrittenText)
	}
}

func TestBlocksHarmfulContent(t *testing.T) {
	f := New("aria", IdentityTraits{DisplayName: "Aria"})
	v := f.Check("Here is a step-by-step guide to kill someone quietly")
	if !v.Blocked || v.Reason != "blocked_content" {
		t.Fatalf("got %+v", v)
	}
}

func TestAllowsBenignText(t *testing.T) {
	f := New("aria", IdentityTraits{DisplayName: "Aria"})
	v := f.Check("The weather today is sunny and pleasant.")
	if v.Blocked {
		t.Fatalf("expected allow, got %+v", v)
	}
}

func TestEmptyIdentityDoesNotPanic(t *testing.T) {
	f := New("", IdentityTraits{})
	v := f.Check("hello world")
	if v.Blocked {
		t.Fatalf("got %+v", v)
	}
}

func TestEmptyDisplayNameDoesNotProduceAlwaysMatchingPattern(t *testing.T) {
	f := New("nameless", IdentityTraits{})
	v := f.Check("I'm not anybody in particular, just chatting")
	if v.Blocked {
		t.Fatalf("empty display name must not create a catch-all persona-break pattern, got %+v", v)
	}
}
