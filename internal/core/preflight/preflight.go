// Package preflight implements the multi-layer prompt-injection / jailbreak
// detector: pattern matching, an AI-classifier fallback, and per-user
// suspicion state with exponential decay and temporary bans.
//
// The Verdict/first-match-wins shape is grounded on the teacher's
// internal/gitai/policy.Engine (Decision enum, ordered rule evaluation,
// default-deny posture); Unicode-confusable folding uses
// golang.org/x/text/width the way the pack's width-normalization helpers do.
package preflight

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"regexp"
	"strings"
	"sync"
	"time"

	"golang.org/x/text/width"
)

// Verdict is the preflight detector's outcome.
type Verdict string

const (
	Allow      Verdict = "ALLOW"
	Block      Verdict = "BLOCK"
	Suspicious Verdict = "SUSPICIOUS"
)

// ThreatKind enumerates the detector's known attack categories.
type ThreatKind string

const (
	Jailbreak       ThreatKind = "JAILBREAK"
	PersonaHijack   ThreatKind = "PERSONA_HIJACK"
	PromptInjection ThreatKind = "PROMPT_INJECTION"
	MultiMessage    ThreatKind = "MULTI_MESSAGE"
	Extraction      ThreatKind = "EXTRACTION"
)

// Result carries the verdict and supporting detail.
type Result struct {
	Verdict    Verdict
	ThreatKind ThreatKind
	Confidence float64
	Deflection string
}

// Classifier is the AI-analysis fallback invoked for SUSPICIOUS input.
// It returns a confidence in [0,1] and, if classified as a threat, the kind.
type Classifier interface {
	Classify(text string) (confidence float64, kind ThreatKind, err error)
}

// Config configures a Checker.
type Config struct {
	AdminUserIDs      map[string]bool
	Deflection        string // identity-specific; falls back to a generic refusal if empty
	CacheTTL          time.Duration
	SuspicionDecay    time.Duration // half-life of the per-user suspicion score
	EscalationLimit   int           // suspicion hits (counted since the last ban, not reset by allowed messages) before a temporary ban
	BanDuration       time.Duration
	Classifier        Classifier
	ClassifyThreshold float64 // default 0.7
}

func (c Config) withDefaults() Config {
	if c.CacheTTL <= 0 {
		c.CacheTTL = time.Hour
	}
	if c.SuspicionDecay <= 0 {
		c.SuspicionDecay = 10 * time.Minute
	}
	if c.EscalationLimit <= 0 {
		c.EscalationLimit = 3
	}
	if c.BanDuration <= 0 {
		c.BanDuration = 15 * time.Minute
	}
	if c.ClassifyThreshold <= 0 {
		c.ClassifyThreshold = 0.7
	}
	return c
}

type userState struct {
	score       float64
	lastUpdated time.Time
	escalations int
	blockUntil  time.Time
}

type cacheEntry struct {
	result   Result
	expireAt time.Time
}

// Checker implements the layered preflight contract.
type Checker struct {
	cfg Config

	mu    sync.Mutex
	users map[string]*userState
	cache map[string]cacheEntry
}

// New constructs a Checker.
func New(cfg Config) *Checker {
	cfg = cfg.withDefaults()
	return &Checker{
		cfg:   cfg,
		users: make(map[string]*userState),
		cache: make(map[string]cacheEntry),
	}
}

type namedPattern struct {
	re   *regexp.Regexp
	kind ThreatKind
}

// instantBlockPatterns is the ~17-entry "instant-block" whitelist: jailbreak
// phrasings, persona-hijack demands, known extraction patterns.
var instantBlockPatterns = []namedPattern{
	{regexp.MustCompile(`(?i)ignore (all|any|the) (previous|prior|above) instructions`), Jailbreak},
	{regexp.MustCompile(`(?i)disregard (all|any|the) (previous|prior|above) (instructions|rules|prompts)`), Jailbreak},
	{regexp.MustCompile(`(?i)\bDAN\b.*\bmode\b`), Jailbreak},
	{regexp.MustCompile(`(?i)do anything now`), Jailbreak},
	{regexp.MustCompile(`(?i)jailbreak`), Jailbreak},
	{regexp.MustCompile(`(?i)you are no longer (bound|restricted|limited) by`), Jailbreak},
	{regexp.MustCompile(`(?i)pretend (you are|to be) (an? )?(unrestricted|unfiltered|uncensored)`), Jailbreak},
	{regexp.MustCompile(`(?i)act as (an? )?(unrestricted|unfiltered|uncensored|evil)`), PersonaHijack},
	{regexp.MustCompile(`(?i)stop (being|acting as) .*and (be|become|act as)`), PersonaHijack},
	{regexp.MustCompile(`(?i)drop (your|the) (persona|character|role)`), PersonaHijack},
	{regexp.MustCompile(`(?i)new (system )?prompt:`), PromptInjection},
	{regexp.MustCompile(`(?i)\[\[?\s*system\s*\]\]?`), PromptInjection},
	{regexp.MustCompile(`(?i)end of (user|system) (message|prompt)`), PromptInjection},
	{regexp.MustCompile(`(?i)repeat (your|the) (system prompt|instructions) (verbatim|exactly|word for word)`), Extraction},
	{regexp.MustCompile(`(?i)what (is|are) your (system prompt|instructions)`), Extraction},
	{regexp.MustCompile(`(?i)print (your|the) (initial|original) (prompt|instructions)`), Extraction},
	{regexp.MustCompile(`(?i)reveal (your|the) (hidden|secret) (prompt|instructions)`), Extraction},
}

// suspiciousPatterns is the ~8-entry "suspicious" whitelist: weaker signals
// that warrant AI-classifier escalation rather than an instant block.
var suspiciousPatterns = []namedPattern{
	{regexp.MustCompile(`(?i)hypothetically`), Jailbreak},
	{regexp.MustCompile(`(?i)for (educational|research) purposes only`), Jailbreak},
	{regexp.MustCompile(`(?i)in a fictional (world|story|scenario)`), PersonaHijack},
	{regexp.MustCompile(`(?i)roleplay as`), PersonaHijack},
	{regexp.MustCompile(`(?i)what model (are|were) you`), Extraction},
	{regexp.MustCompile(`(?i)who (made|trained|created) you`), Extraction},
	{regexp.MustCompile(`(?i)previous message`), MultiMessage},
	{regexp.MustCompile(`(?i)continuing from (before|earlier)`), MultiMessage},
}

var cyrillicGreekFold = strings.NewReplacer(
	"а", "a", "е", "e", "о", "o", "р", "p", "с", "c", "у", "y", "х", "x", "і", "i",
	"Α", "A", "Β", "B", "Ε", "E", "Ζ", "Z", "Η", "H", "Ι", "I", "Κ", "K", "Μ", "M",
	"Ν", "N", "Ο", "O", "Ρ", "P", "Τ", "T", "Υ", "Y", "Χ", "X",
)

// compact folds common Unicode lookalikes (Cyrillic/Greek) to Latin and
// collapses runs of whitespace to a single space, so patterns written with
// ordinary spaces still match text whose whitespace has been mangled.
func compact(text string) string {
	folded := cyrillicGreekFold.Replace(width.Fold.String(text))
	fields := strings.Fields(folded)
	return strings.Join(fields, " ")
}

func matchAny(patterns []namedPattern, original, compacted string) (ThreatKind, bool) {
	for _, p := range patterns {
		if p.re.MatchString(original) || p.re.MatchString(compacted) {
			return p.kind, true
		}
	}
	return "", false
}

// Check runs the layered detection pipeline for text on behalf of userID.
func (c *Checker) Check(text, userID string) Result {
	if c.cfg.AdminUserIDs[userID] {
		return Result{Verdict: Allow}
	}

	if banned, ok := c.checkBan(userID); ok {
		return banned
	}

	cacheKey := userID + "\x00" + text
	if cached, ok := c.cacheGet(cacheKey); ok {
		return cached
	}

	compacted := compact(text)
	if kind, hit := matchAny(instantBlockPatterns, text, compacted); hit {
		result := Result{Verdict: Block, ThreatKind: kind, Confidence: 1.0, Deflection: c.deflection()}
		c.cacheSet(cacheKey, result)
		return result
	}

	suspiciousKind, suspicious := matchAny(suspiciousPatterns, text, compacted)
	if !suspicious {
		result := Result{Verdict: Allow}
		c.cacheSet(cacheKey, result)
		return result
	}

	result := c.classify(text, suspiciousKind)
	c.recordSuspicion(userID, result.Verdict == Block)
	c.cacheSet(cacheKey, result)
	return result
}

func (c *Checker) classify(text string, fallbackKind ThreatKind) Result {
	if c.cfg.Classifier == nil {
		return Result{Verdict: Suspicious, ThreatKind: fallbackKind, Confidence: 0.5}
	}
	confidence, kind, err := c.cfg.Classifier.Classify(text)
	if err != nil {
		return Result{Verdict: Suspicious, ThreatKind: fallbackKind, Confidence: 0.5}
	}
	if kind == "" {
		kind = fallbackKind
	}
	if confidence >= c.cfg.ClassifyThreshold {
		return Result{Verdict: Block, ThreatKind: kind, Confidence: confidence, Deflection: c.deflection()}
	}
	return Result{Verdict: Suspicious, ThreatKind: kind, Confidence: confidence}
}

func (c *Checker) deflection() string {
	if c.cfg.Deflection != "" {
		return c.cfg.Deflection
	}
	return "I can't help with that request."
}

func (c *Checker) checkBan(userID string) (Result, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	st, ok := c.users[userID]
	if !ok {
		return Result{}, false
	}
	if time.Now().Before(st.blockUntil) {
		return Result{Verdict: Block, ThreatKind: Jailbreak, Confidence: 1.0, Deflection: c.deflection()}, true
	}
	return Result{}, false
}

func (c *Checker) recordSuspicion(userID string, isBlock bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	st, ok := c.users[userID]
	if !ok {
		st = &userState{lastUpdated: now}
		c.users[userID] = st
	}

	elapsed := now.Sub(st.lastUpdated)
	if elapsed > 0 && c.cfg.SuspicionDecay > 0 {
		st.score *= math.Pow(0.5, float64(elapsed)/float64(c.cfg.SuspicionDecay))
	}
	st.lastUpdated = now

	increment := 0.3
	if isBlock {
		increment = 0.5
	}
	st.score += increment
	st.escalations++

	if st.escalations >= c.cfg.EscalationLimit {
		st.blockUntil = now.Add(c.cfg.BanDuration)
		st.escalations = 0
	}
}

func (c *Checker) cacheGet(key string) (Result, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.cache[key]
	if !ok {
		return Result{}, false
	}
	if time.Now().After(entry.expireAt) {
		delete(c.cache, key)
		return Result{}, false
	}
	return entry.result, true
}

func (c *Checker) cacheSet(key string, result Result) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cache[key] = cacheEntry{result: result, expireAt: time.Now().Add(c.cfg.CacheTTL)}
}

// ClassifierReplyJSON is the expected shape of a classifier's JSON reply,
// parsed with a regex fallback for non-conformant model output.
type ClassifierReplyJSON struct {
	Confidence float64    `json:"confidence"`
	Kind       ThreatKind `json:"kind"`
}

var confidenceFallback = regexp.MustCompile(`(?i)"?confidence"?\s*[:=]\s*([01](?:\.\d+)?)`)

var errNoConfidence = errors.New("preflight: classifier reply has no parseable confidence")

// ParseClassifierReply parses raw as JSON; on failure it falls back to a
// best-effort regex scrape for a confidence value.
func ParseClassifierReply(raw string) (confidence float64, kind ThreatKind, err error) {
	var reply ClassifierReplyJSON
	if jerr := json.Unmarshal([]byte(raw), &reply); jerr == nil {
		return reply.Confidence, reply.Kind, nil
	}
	if m := confidenceFallback.FindStringSubmatch(raw); m != nil {
		var c float64
		if _, serr := fmt.Sscanf(m[1], "%f", &c); serr == nil {
			return c, "", nil
		}
	}
	return 0, "", errNoConfidence
}
