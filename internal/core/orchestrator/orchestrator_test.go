package orchestrator

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/silverreef/agentcore/internal/core/llmbackend"
)

const testIdentityYAML = `
name: aiko
display_name: Aiko
connectors: [echo]
capabilities: [chat]
llm:
  provider: openai
  model: test-model
  temperature: 0.5
  max_tokens: 100
  timeout_seconds: 5
schedule:
  heartbeat_hours: 1000
security:
  enable_preflight: true
  enable_output_safety: true
  rate_limiter_max_tokens: 10
  rate_limiter_refill_rate: 0.5
`

func writeTestIdentity(t *testing.T, root string) {
	t.Helper()
	dir := filepath.Join(root, "config", "identities")
	if err := os.MkdirAll(dir, 0o700); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "aiko.yaml"), []byte(testIdentityYAML), 0o600); err != nil {
		t.Fatalf("write identity: %v", err)
	}
}

func fakeBackendServer(t *testing.T) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"model": "test-model",
			"choices": []map[string]any{
				{"message": map[string]any{"role": "assistant", "content": "hello from aiko"}},
			},
		})
	}))
}

func TestOrchestrator_SetupAndShutdown(t *testing.T) {
	root := t.TempDir()
	writeTestIdentity(t, root)

	srv := fakeBackendServer(t)
	defer srv.Close()

	o := New(Config{
		Layout:   Layout{Root: root},
		Identity: "aiko",
		Backends: []llmbackend.Config{
			{Name: "default", Kind: llmbackend.KindOpenAI, BaseURL: srv.URL, Model: "test-model"},
		},
	})

	ctx := context.Background()
	if err := o.setup(ctx); err != nil {
		t.Fatalf("setup: %v", err)
	}

	if _, ok := o.pluginHost.Get("echo"); !ok {
		t.Fatal("expected echo plugin to be loaded")
	}

	dataDir := filepath.Join(root, "data", "aiko")
	logDir := filepath.Join(root, "logs", "aiko")
	if _, err := os.Stat(dataDir); err != nil {
		t.Fatalf("expected data dir to exist: %v", err)
	}
	if _, err := os.Stat(logDir); err != nil {
		t.Fatalf("expected log dir to exist: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dataDir, "audit.db")); err != nil {
		t.Fatalf("expected audit.db to exist: %v", err)
	}

	o.shutdown(context.Background())
}

func TestOrchestrator_RejectsUnknownIdentityAtSetup(t *testing.T) {
	root := t.TempDir()
	o := New(Config{Layout: Layout{Root: root}, Identity: "ghost"})
	if err := o.setup(context.Background()); err == nil {
		t.Fatal("expected error for a missing identity file")
	}
}

func TestOrchestrator_DataDirsAreDisjointAcrossIdentities(t *testing.T) {
	root := t.TempDir()
	writeTestIdentity(t, root)
	dir := filepath.Join(root, "config", "identities")
	second := `
name: beko
display_name: Beko
security:
  rate_limiter_max_tokens: 10
`
	if err := os.WriteFile(filepath.Join(dir, "beko.yaml"), []byte(second), 0o600); err != nil {
		t.Fatalf("write second identity: %v", err)
	}

	layout := Layout{Root: root}
	if layout.identityDataDir("aiko") == layout.identityDataDir("beko") {
		t.Fatal("expected disjoint data directories")
	}
	if layout.identityLogDir("aiko") == layout.identityLogDir("beko") {
		t.Fatal("expected disjoint log directories")
	}
}

func TestDurationFromHoursDefaultsWhenZero(t *testing.T) {
	if durationFromHours(0) != 4*time.Hour {
		t.Fatalf("expected 4h default, got %v", durationFromHours(0))
	}
	if durationFromHours(2) != 2*time.Hour {
		t.Fatalf("expected 2h, got %v", durationFromHours(2))
	}
}
