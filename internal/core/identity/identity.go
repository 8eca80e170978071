// Package identity loads and validates per-identity configuration: a frozen
// Identity value object plus its optional companion Persona, parsed from a
// YAML document and schema-checked before being frozen.
//
// The Parse/Validate/frozen-config shape is grounded on the teacher's
// common/spec/gosuto package (rawConfig → Validate → frozen Config), ported
// from agent-capability fields to spec.md §3/§6's identity schema.
package identity

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/silverreef/agentcore/internal/core/coreerrors"
)

// namePattern matches spec.md §6: "^[a-z][a-z0-9_]*$", rejected at load time
// to prevent path traversal through an identity name used in filesystem paths.
var namePattern = regexp.MustCompile(`^[a-z][a-z0-9_]*$`)

// LLMSettings configures an identity's language-model usage.
type LLMSettings struct {
	Provider       string
	Model          string
	Temperature    float64
	MaxTokens      int
	TimeoutSeconds int
}

// QuietHours configures the identity's quiet-hours window.
type QuietHours struct {
	Enabled   bool
	Timezone  string
	StartHour int
	EndHour   int
}

// Schedule configures the identity's periodic task cadence.
type Schedule struct {
	HeartbeatHours   float64
	FeedPollMinutes  float64
}

// PermissionRule mirrors spec.md §6's permissions map entries.
type PermissionRule struct {
	Allowed          bool
	MaxPerHour       int
	CooldownSeconds  int
	RequiresApproval bool
}

// Security configures the identity's security substrate knobs.
type Security struct {
	EnablePreflight       bool
	EnableOutputSafety    bool
	AdminUserIDs          []string
	BlockThreshold        float64
	RateLimiterMaxTokens  int
	RateLimiterRefillRate float64
	Deflection            string
}

// Identity is a frozen, immutable-after-load configuration for one agent
// instance. Construct only via Load/Parse; there are no exported mutable
// fields, matching the teacher's frozen-config posture for gosuto.Config.
type Identity struct {
	name        string
	displayName string
	connectors  []string
	capabilities []string
	llm         LLMSettings
	quietHours  QuietHours
	schedule    Schedule
	security    Security
	permissions map[string]PermissionRule

	// version is an optimistic-detection marker for stale loads, mirroring
	// the teacher's gosuto.Config API version string.
	version string
	// rawHash is the SHA-256 hash (hex) of the original YAML bytes, for
	// audit/log correlation, mirroring the teacher's GosutoHash concept.
	rawHash string
}

func (i *Identity) Name() string                        { return i.name }
func (i *Identity) DisplayName() string                 { return i.displayName }
func (i *Identity) Connectors() []string                { return append([]string(nil), i.connectors...) }
func (i *Identity) Capabilities() []string               { return append([]string(nil), i.capabilities...) }
func (i *Identity) LLM() LLMSettings                     { return i.llm }
func (i *Identity) QuietHours() QuietHours               { return i.quietHours }
func (i *Identity) Schedule() Schedule                   { return i.schedule }
func (i *Identity) Security() Security                   { return i.security }
func (i *Identity) Version() string                      { return i.version }
func (i *Identity) RawHash() string                      { return i.rawHash }

// Permission returns the rule declared for action and whether one exists.
func (i *Identity) Permission(action string) (PermissionRule, bool) {
	r, ok := i.permissions[action]
	return r, ok
}

// Permissions returns a copy of the full action -> rule table.
func (i *Identity) Permissions() map[string]PermissionRule {
	out := make(map[string]PermissionRule, len(i.permissions))
	for k, v := range i.permissions {
		out[k] = v
	}
	return out
}

// IsAdmin reports whether userID is declared as an admin for this identity.
func (i *Identity) IsAdmin(userID string) bool {
	for _, a := range i.security.AdminUserIDs {
		if a == userID {
			return true
		}
	}
	return false
}

// rawIdentity mirrors the YAML document shape before validation and freezing.
type rawIdentity struct {
	Name         string   `yaml:"name"`
	DisplayName  string   `yaml:"display_name"`
	Connectors   []string `yaml:"connectors"`
	Capabilities []string `yaml:"capabilities"`
	Version      string   `yaml:"version"`

	LLM struct {
		Provider       string  `yaml:"provider"`
		Model          string  `yaml:"model"`
		Temperature    float64 `yaml:"temperature"`
		MaxTokens      int     `yaml:"max_tokens"`
		TimeoutSeconds int     `yaml:"timeout_seconds"`
	} `yaml:"llm"`

	QuietHours struct {
		Enabled   bool   `yaml:"enabled"`
		Timezone  string `yaml:"timezone"`
		StartHour int    `yaml:"start_hour"`
		EndHour   int    `yaml:"end_hour"`
	} `yaml:"quiet_hours"`

	Schedule struct {
		HeartbeatHours  float64 `yaml:"heartbeat_hours"`
		FeedPollMinutes float64 `yaml:"feed_poll_minutes"`
	} `yaml:"schedule"`

	Security struct {
		EnablePreflight       bool     `yaml:"enable_preflight"`
		EnableOutputSafety    bool     `yaml:"enable_output_safety"`
		AdminUserIDs          []string `yaml:"admin_user_ids"`
		BlockThreshold        float64  `yaml:"block_threshold"`
		RateLimiterMaxTokens  int      `yaml:"rate_limiter_max_tokens"`
		RateLimiterRefillRate float64  `yaml:"rate_limiter_refill_rate"`
		Deflection            string   `yaml:"deflection"`
	} `yaml:"security"`

	Permissions map[string]struct {
		Allowed          bool `yaml:"allowed"`
		MaxPerHour       int  `yaml:"max_per_hour"`
		CooldownSeconds  int  `yaml:"cooldown_seconds"`
		RequiresApproval bool `yaml:"requires_approval"`
	} `yaml:"permissions"`
}

// whitelistedConnectors is the fixed set of names the Plugin Host may
// instantiate. Declared here so Load can reject unknown connectors at
// config time rather than deferring to plugin.Load's own whitelist check.
// The plugin package keeps its own, separate constructor table and does
// not consult IsWhitelistedConnector.
var whitelistedConnectors = map[string]bool{
	"heartbeat": true,
	"echo":      true,
}

// IsWhitelistedConnector reports whether name is one of the fixed
// connector names identities are allowed to enable.
func IsWhitelistedConnector(name string) bool {
	return whitelistedConnectors[name]
}

// Load reads, schema-validates, structurally validates, and freezes the
// identity YAML at path.
func Load(path string) (*Identity, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("identity: read %s: %w: %w", path, coreerrors.ErrConfig, err)
	}
	return Parse(raw)
}

// Parse parses raw YAML bytes into a frozen Identity.
func Parse(raw []byte) (*Identity, error) {
	if err := ValidateSchema(raw); err != nil {
		return nil, fmt.Errorf("identity: schema validation: %w: %w", coreerrors.ErrConfig, err)
	}

	var r rawIdentity
	if err := yaml.Unmarshal(raw, &r); err != nil {
		return nil, fmt.Errorf("identity: parse yaml: %w: %w", coreerrors.ErrConfig, err)
	}

	if err := validateStructure(&r); err != nil {
		return nil, fmt.Errorf("%w: %w", coreerrors.ErrConfig, err)
	}

	sum := sha256.Sum256(raw)

	perms := make(map[string]PermissionRule, len(r.Permissions))
	for action, p := range r.Permissions {
		perms[action] = PermissionRule{
			Allowed:          p.Allowed,
			MaxPerHour:       p.MaxPerHour,
			CooldownSeconds:  p.CooldownSeconds,
			RequiresApproval: p.RequiresApproval,
		}
	}

	id := &Identity{
		name:         r.Name,
		displayName:  r.DisplayName,
		connectors:   append([]string(nil), r.Connectors...),
		capabilities: append([]string(nil), r.Capabilities...),
		llm: LLMSettings{
			Provider:       r.LLM.Provider,
			Model:          r.LLM.Model,
			Temperature:    r.LLM.Temperature,
			MaxTokens:      r.LLM.MaxTokens,
			TimeoutSeconds: r.LLM.TimeoutSeconds,
		},
		quietHours: QuietHours{
			Enabled:   r.QuietHours.Enabled,
			Timezone:  r.QuietHours.Timezone,
			StartHour: r.QuietHours.StartHour,
			EndHour:   r.QuietHours.EndHour,
		},
		schedule: Schedule{
			HeartbeatHours:  r.Schedule.HeartbeatHours,
			FeedPollMinutes: r.Schedule.FeedPollMinutes,
		},
		security: Security{
			EnablePreflight:       r.Security.EnablePreflight,
			EnableOutputSafety:    r.Security.EnableOutputSafety,
			AdminUserIDs:          append([]string(nil), r.Security.AdminUserIDs...),
			BlockThreshold:        r.Security.BlockThreshold,
			RateLimiterMaxTokens:  r.Security.RateLimiterMaxTokens,
			RateLimiterRefillRate: r.Security.RateLimiterRefillRate,
			Deflection:            r.Security.Deflection,
		},
		permissions: perms,
		version:     r.Version,
		rawHash:     hex.EncodeToString(sum[:]),
	}
	return id, nil
}

func validateStructure(r *rawIdentity) error {
	if !namePattern.MatchString(r.Name) {
		return fmt.Errorf("identity: invalid name %q: must match %s", r.Name, namePattern.String())
	}
	if r.DisplayName == "" {
		return fmt.Errorf("identity %s: display_name is required", r.Name)
	}
	for _, c := range r.Connectors {
		if !whitelistedConnectors[c] {
			return fmt.Errorf("identity %s: connector %q is not in the plugin whitelist", r.Name, c)
		}
	}
	if r.LLM.TimeoutSeconds < 0 {
		return fmt.Errorf("identity %s: llm.timeout_seconds must be >= 0", r.Name)
	}
	if r.QuietHours.Enabled {
		if _, err := timeLoadLocation(r.QuietHours.Timezone); err != nil {
			return fmt.Errorf("identity %s: quiet_hours.timezone: %w", r.Name, err)
		}
		if r.QuietHours.StartHour < 0 || r.QuietHours.StartHour > 23 ||
			r.QuietHours.EndHour < 0 || r.QuietHours.EndHour > 23 {
			return fmt.Errorf("identity %s: quiet_hours start/end must be in [0,23]", r.Name)
		}
	}
	return nil
}

// timeLoadLocation is a thin indirection over time.LoadLocation kept in its
// own function so validateStructure's error wrapping reads uniformly.
func timeLoadLocation(tz string) (any, error) {
	if tz == "" {
		return nil, fmt.Errorf("timezone is required when quiet_hours.enabled")
	}
	loc, err := loadLocation(tz)
	if err != nil {
		return nil, err
	}
	return loc, nil
}

var loadLocation = defaultLoadLocation

func defaultLoadLocation(name string) (*time.Location, error) {
	return time.LoadLocation(name)
}
