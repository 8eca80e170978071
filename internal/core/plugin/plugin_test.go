package plugin

import (
	"context"
	"testing"
)

type fakePlugin struct {
	setupCalled, tickCalled, teardownCalled int
	failTeardown                           bool
}

func (f *fakePlugin) Setup(ctx context.Context) error {
	f.setupCalled++
	return nil
}
func (f *fakePlugin) Tick(ctx context.Context) error {
	f.tickCalled++
	return nil
}
func (f *fakePlugin) Teardown(ctx context.Context) error {
	f.teardownCalled++
	if f.failTeardown {
		return errTeardown
	}
	return nil
}

var errTeardown = &teardownErr{}

type teardownErr struct{}

func (*teardownErr) Error() string { return "teardown failed" }

func TestHost_LoadRejectsUnknownName(t *testing.T) {
	h := NewHost("aiko", t.TempDir(), t.TempDir())
	_, err := h.Load("not_in_whitelist", &Context{IdentityName: "aiko"})
	if err == nil {
		t.Fatal("expected error loading an unwhitelisted plugin name")
	}
}

func TestHost_LoadIsolatesDataAndLogDirs(t *testing.T) {
	dataRoot, logRoot := t.TempDir(), t.TempDir()
	fake := &fakePlugin{}
	Register("test_fake", func(ctx *Context) (Plugin, error) {
		if ctx.DataDir == "" || ctx.LogDir == "" {
			t.Fatal("expected non-empty data/log dirs in Context")
		}
		return fake, nil
	})

	h := NewHost("aiko", dataRoot, logRoot)
	p, err := h.Load("test_fake", &Context{IdentityName: "aiko"})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if p != fake {
		t.Fatal("expected Load to return the constructed instance")
	}
	if _, ok := h.Get("test_fake"); !ok {
		t.Fatal("expected Get to find the loaded plugin")
	}
}

func TestHost_TeardownAllRunsInReverseOrderAndCollectsErrors(t *testing.T) {
	var order []string
	first := &fakePlugin{failTeardown: true}
	second := &fakePlugin{}

	Register("test_first", func(ctx *Context) (Plugin, error) {
		return &orderedFake{fakePlugin: first, name: "first", order: &order}, nil
	})
	Register("test_second", func(ctx *Context) (Plugin, error) {
		return &orderedFake{fakePlugin: second, name: "second", order: &order}, nil
	})

	h := NewHost("aiko", t.TempDir(), t.TempDir())
	if _, err := h.Load("test_first", &Context{IdentityName: "aiko"}); err != nil {
		t.Fatalf("Load first: %v", err)
	}
	if _, err := h.Load("test_second", &Context{IdentityName: "aiko"}); err != nil {
		t.Fatalf("Load second: %v", err)
	}

	errs := h.TeardownAll(context.Background())
	if len(errs) != 1 {
		t.Fatalf("expected exactly one teardown error, got %d: %v", len(errs), errs)
	}
	if len(order) != 2 || order[0] != "second" || order[1] != "first" {
		t.Fatalf("expected reverse teardown order [second, first], got %v", order)
	}
}

type orderedFake struct {
	*fakePlugin
	name  string
	order *[]string
}

func (o *orderedFake) Teardown(ctx context.Context) error {
	*o.order = append(*o.order, o.name)
	return o.fakePlugin.Teardown(ctx)
}

func TestAvailablePluginsIncludesBuiltins(t *testing.T) {
	names := map[string]bool{}
	for _, n := range AvailablePlugins() {
		names[n] = true
	}
	if !names["heartbeat"] || !names["echo"] {
		t.Fatalf("expected heartbeat and echo in whitelist, got %v", names)
	}
}
