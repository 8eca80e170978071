package permission

import "testing"

func TestDefaultDenyForUnknownAction(t *testing.T) {
	c := New(map[string]Rule{})
	if c.IsAllowed("send_message") {
		t.Fatal("expected default deny for unlisted action")
	}
}

func TestAllowedActionWithinQuota(t *testing.T) {
	c := New(map[string]Rule{"post": {Allowed: true, MaxPerHour: 2}})
	if !c.IsAllowed("post") {
		t.Fatal("expected first call allowed")
	}
	c.RecordAction("post")
	if !c.IsAllowed("post") {
		t.Fatal("expected second call allowed")
	}
	c.RecordAction("post")
	if c.IsAllowed("post") {
		t.Fatal("expected third call denied by hourly quota")
	}
}

func TestCooldownBlocksImmediateRepeat(t *testing.T) {
	c := New(map[string]Rule{"post": {Allowed: true, CooldownSeconds: 3600}})
	if !c.IsAllowed("post") {
		t.Fatal("expected first call allowed")
	}
	c.RecordAction("post")
	if c.IsAllowed("post") {
		t.Fatal("expected immediate repeat denied by cooldown")
	}
}

func TestExplicitlyDeniedAction(t *testing.T) {
	c := New(map[string]Rule{"delete": {Allowed: false}})
	if c.IsAllowed("delete") {
		t.Fatal("expected explicitly denied action to be denied")
	}
}

func TestRequiresApproval(t *testing.T) {
	c := New(map[string]Rule{"wire_transfer": {Allowed: true, RequiresApproval: true}})
	if !c.RequiresApproval("wire_transfer") {
		t.Fatal("expected wire_transfer to require approval")
	}
	if c.RequiresApproval("unknown") {
		t.Fatal("unknown action should not require approval (it's just denied)")
	}
}

func TestDenialReasonMessages(t *testing.T) {
	c := New(map[string]Rule{"post": {Allowed: true, MaxPerHour: 1}})
	c.RecordAction("post")
	if reason := c.DenialReason("post"); reason == "" {
		t.Fatal("expected non-empty denial reason after quota exceeded")
	}
	if reason := c.DenialReason("unknown"); reason == "" {
		t.Fatal("expected non-empty denial reason for unlisted action")
	}
}
