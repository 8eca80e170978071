package llmbackend

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestInvalidSchemeRejectedAtConfig(t *testing.T) {
	_, err := NewHTTPBackend(Config{Name: "bad", BaseURL: "ftp://example.com"})
	if err == nil {
		t.Fatal("expected error for non-HTTP(S) scheme")
	}
}

func TestChatRoundTrip(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"model": "test-model",
			"choices": []map[string]any{
				{"message": map[string]any{"role": "assistant", "content": "hi there"}},
			},
		})
	}))
	defer srv.Close()

	b, err := NewHTTPBackend(Config{Name: "test", BaseURL: srv.URL, Model: "test-model"})
	if err != nil {
		t.Fatalf("NewHTTPBackend: %v", err)
	}
	resp, err := b.Chat(context.Background(), ChatRequest{Messages: []Message{{Role: "user", Content: "hello"}}})
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if resp.Content != "hi there" {
		t.Fatalf("got %q", resp.Content)
	}
}

func TestChatPropagatesBackendError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"error": map[string]any{"message": "rate limited"},
		})
	}))
	defer srv.Close()

	b, _ := NewHTTPBackend(Config{Name: "test", BaseURL: srv.URL})
	_, err := b.Chat(context.Background(), ChatRequest{Messages: []Message{{Role: "user", Content: "hi"}}})
	if err == nil {
		t.Fatal("expected error from backend error payload")
	}
}

func TestRegistryDefaultIsFirstRegistered(t *testing.T) {
	reg := NewRegistry()
	if err := reg.Register(Config{Name: "a", BaseURL: "http://a.example"}); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if err := reg.Register(Config{Name: "b", BaseURL: "http://b.example"}); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if reg.DefaultBackend() != "a" {
		t.Fatalf("default = %q, want a", reg.DefaultBackend())
	}
}

func TestRouterExplicitOverride(t *testing.T) {
	reg := NewRegistry()
	_ = reg.Register(Config{Name: "a", BaseURL: "http://a.example"})
	_ = reg.Register(Config{Name: "b", BaseURL: "http://b.example"})
	r := NewRouter(reg)

	name, err := r.ResolveBackend("b", "", "")
	if err != nil || name != "b" {
		t.Fatalf("ResolveBackend() = (%q, %v), want (b, nil)", name, err)
	}
}

func TestRouterExplicitMissingIsError(t *testing.T) {
	reg := NewRegistry()
	_ = reg.Register(Config{Name: "a", BaseURL: "http://a.example"})
	r := NewRouter(reg)
	if _, err := r.ResolveBackend("missing", "", ""); err == nil {
		t.Fatal("expected error for unregistered explicit backend")
	}
}

func TestRouterLowComplexityPrefersLocal(t *testing.T) {
	reg := NewRegistry()
	_ = reg.Register(Config{Name: "cloud", Kind: KindHosted, BaseURL: "http://cloud.example", IsCloud: true})
	_ = reg.Register(Config{Name: "local", Kind: KindLocal, BaseURL: "http://local.example"})
	r := NewRouter(reg)

	name, err := r.ResolveBackend("", ComplexityLow, "")
	if err != nil || name != "local" {
		t.Fatalf("ResolveBackend() = (%q, %v), want (local, nil)", name, err)
	}
}

func TestRouterReasoningPrefersReasoningBackend(t *testing.T) {
	reg := NewRegistry()
	_ = reg.Register(Config{Name: "default", BaseURL: "http://default.example"})
	_ = reg.Register(Config{Name: "reasoner", Kind: KindHosted, BaseURL: "http://reasoner.example", IsReasoning: true})
	r := NewRouter(reg)

	name, err := r.ResolveBackend("", ComplexityReasoning, "")
	if err != nil || name != "reasoner" {
		t.Fatalf("ResolveBackend() = (%q, %v), want (reasoner, nil)", name, err)
	}
}

func TestRouterFallsBackToDefault(t *testing.T) {
	reg := NewRegistry()
	_ = reg.Register(Config{Name: "default", BaseURL: "http://default.example"})
	r := NewRouter(reg)

	name, err := r.ResolveBackend("", "", "")
	if err != nil || name != "default" {
		t.Fatalf("ResolveBackend() = (%q, %v), want (default, nil)", name, err)
	}
}
