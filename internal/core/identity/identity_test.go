package identity

import "testing"

const validYAML = `
name: aiko
display_name: Aiko
connectors: [heartbeat, echo]
capabilities: [chat]
llm:
  provider: openai
  model: gpt-test
  temperature: 0.7
  max_tokens: 512
  timeout_seconds: 30
quiet_hours:
  enabled: true
  timezone: UTC
  start_hour: 23
  end_hour: 7
schedule:
  heartbeat_hours: 4
  feed_poll_minutes: 15
security:
  enable_preflight: true
  enable_output_safety: true
  admin_user_ids: ["u_admin"]
  block_threshold: 0.7
  rate_limiter_max_tokens: 10
  rate_limiter_refill_rate: 0.5
permissions:
  post_message:
    allowed: true
    max_per_hour: 20
    cooldown_seconds: 30
`

func TestParse_Valid(t *testing.T) {
	id, err := Parse([]byte(validYAML))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if id.Name() != "aiko" || id.DisplayName() != "Aiko" {
		t.Fatalf("unexpected name/display_name: %q/%q", id.Name(), id.DisplayName())
	}
	if !id.IsAdmin("u_admin") {
		t.Fatal("expected u_admin to be an admin")
	}
	if id.IsAdmin("someone_else") {
		t.Fatal("did not expect someone_else to be an admin")
	}
	rule, ok := id.Permission("post_message")
	if !ok || !rule.Allowed || rule.MaxPerHour != 20 {
		t.Fatalf("unexpected permission rule: %+v ok=%v", rule, ok)
	}
	if id.RawHash() == "" {
		t.Fatal("expected a non-empty raw hash")
	}
}

func TestParse_RejectsBadName(t *testing.T) {
	bad := []string{
		"name: Aiko\ndisplay_name: Aiko\n",   // uppercase
		"name: 1aiko\ndisplay_name: Aiko\n",  // leading digit
		"name: ai-ko\ndisplay_name: Aiko\n",  // hyphen
		"name: ../etc\ndisplay_name: Aiko\n", // traversal attempt
	}
	for _, y := range bad {
		if _, err := Parse([]byte(y)); err == nil {
			t.Errorf("expected error for name in %q", y)
		}
	}
}

func TestParse_RequiresDisplayName(t *testing.T) {
	if _, err := Parse([]byte("name: aiko\n")); err == nil {
		t.Fatal("expected error for missing display_name")
	}
}

func TestParse_RejectsNonWhitelistedConnector(t *testing.T) {
	y := "name: aiko\ndisplay_name: Aiko\nconnectors: [mystery_connector]\n"
	if _, err := Parse([]byte(y)); err == nil {
		t.Fatal("expected error for non-whitelisted connector")
	}
}

func TestParse_QuietHoursRequiresValidTimezone(t *testing.T) {
	y := "name: aiko\ndisplay_name: Aiko\nquiet_hours:\n  enabled: true\n  timezone: Not/AZone\n"
	if _, err := Parse([]byte(y)); err == nil {
		t.Fatal("expected error for invalid timezone")
	}
}

func TestIdentityAccessorsReturnCopies(t *testing.T) {
	id, err := Parse([]byte(validYAML))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	c := id.Connectors()
	c[0] = "mutated"
	if id.Connectors()[0] == "mutated" {
		t.Fatal("Connectors() must return a defensive copy")
	}
}
