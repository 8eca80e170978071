package identity

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Persona is an optional, frozen companion to an Identity: voice/style
// configuration consumed only to build system prompts. Its YAML *contents*
// shape (voice, traits, signature phrases, few-shot examples) is spec.md
// §3's contract; the persona-tuning content itself is out of this core's
// scope per spec.md §1 — only the shape is consumed here.
type Persona struct {
	voice       string
	traits      map[string]float64
	interests   []string
	preferred   []string
	banned      []string
	signatures  []string
	fewShot     []FewShotExample
}

// FewShotExample is one example turn used to steer persona voice.
type FewShotExample struct {
	Prompt   string
	Response string
}

func (p *Persona) Voice() string               { return p.voice }
func (p *Persona) Interests() []string          { return append([]string(nil), p.interests...) }
func (p *Persona) PreferredVocabulary() []string { return append([]string(nil), p.preferred...) }
func (p *Persona) BannedVocabulary() []string    { return append([]string(nil), p.banned...) }
func (p *Persona) SignaturePhrases() []string    { return append([]string(nil), p.signatures...) }
func (p *Persona) FewShotExamples() []FewShotExample {
	return append([]FewShotExample(nil), p.fewShot...)
}

// Trait returns the named trait scalar (expected in [0,1]) and whether it
// was declared.
func (p *Persona) Trait(name string) (float64, bool) {
	v, ok := p.traits[name]
	return v, ok
}

type rawPersona struct {
	Voice      string             `yaml:"voice"`
	Traits     map[string]float64 `yaml:"traits"`
	Interests  []string           `yaml:"interests"`
	Vocabulary struct {
		Preferred []string `yaml:"preferred"`
		Banned    []string `yaml:"banned"`
	} `yaml:"vocabulary"`
	SignaturePhrases []string `yaml:"signature_phrases"`
	FewShot          []struct {
		Prompt   string `yaml:"prompt"`
		Response string `yaml:"response"`
	} `yaml:"few_shot"`
}

// LoadPersona reads and freezes a persona YAML document at path.
func LoadPersona(path string) (*Persona, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("identity: read persona %s: %w", path, err)
	}
	return ParsePersona(raw)
}

// ParsePersona parses raw YAML bytes into a frozen Persona.
func ParsePersona(raw []byte) (*Persona, error) {
	var r rawPersona
	if err := yaml.Unmarshal(raw, &r); err != nil {
		return nil, fmt.Errorf("identity: parse persona yaml: %w", err)
	}
	for name, v := range r.Traits {
		if v < 0 || v > 1 {
			return nil, fmt.Errorf("identity: persona trait %q = %v out of [0,1]", name, v)
		}
	}
	p := &Persona{
		voice:      r.Voice,
		traits:     r.Traits,
		interests:  append([]string(nil), r.Interests...),
		preferred:  append([]string(nil), r.Vocabulary.Preferred...),
		banned:     append([]string(nil), r.Vocabulary.Banned...),
		signatures: append([]string(nil), r.SignaturePhrases...),
	}
	for _, fs := range r.FewShot {
		p.fewShot = append(p.fewShot, FewShotExample{Prompt: fs.Prompt, Response: fs.Response})
	}
	return p, nil
}

// SystemPromptFragment renders the persona into a system-prompt fragment.
// This is the only consumer of persona content in the core: plugins/callers
// compose it with their own instructions before passing it to the pipeline.
func (p *Persona) SystemPromptFragment(displayName string) string {
	s := fmt.Sprintf("You are %s.", displayName)
	if p.voice != "" {
		s += " Voice: " + p.voice + "."
	}
	if len(p.interests) > 0 {
		s += " Interests: "
		for i, in := range p.interests {
			if i > 0 {
				s += ", "
			}
			s += in
		}
		s += "."
	}
	if len(p.signatures) > 0 {
		s += " You sometimes use phrases like: "
		for i, sig := range p.signatures {
			if i > 0 {
				s += "; "
			}
			s += sig
		}
		s += "."
	}
	return s
}
