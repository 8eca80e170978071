package plugin

import (
	"context"
	"fmt"

	"github.com/silverreef/agentcore/internal/core/pipeline"
	"github.com/silverreef/agentcore/internal/core/sanitize"
)

// echoPlugin demonstrates the normal request path: external text arrives,
// gets wrapped via sanitize.WrapExternalContent before ever touching a
// message, and is forwarded through the safe pipeline like any ordinary
// user turn. It has no periodic behavior of its own; Tick is a no-op.
type echoPlugin struct {
	ctx *Context
}

func newEchoPlugin(ctx *Context) (Plugin, error) {
	if ctx.SafePipeline == nil {
		return nil, fmt.Errorf("echo: pipeline required")
	}
	return &echoPlugin{ctx: ctx}, nil
}

func (p *echoPlugin) Setup(ctx context.Context) error    { return nil }
func (p *echoPlugin) Tick(ctx context.Context) error     { return nil }
func (p *echoPlugin) Teardown(ctx context.Context) error { return nil }

// HandleExternalMessage is echoPlugin's connector-facing entry point: it is
// not part of the Plugin interface (connectors are out of scope per
// spec.md §1), but shows how a real connector would call into the pipeline
// using only PluginContext capabilities.
func (p *echoPlugin) HandleExternalMessage(ctx context.Context, userID, text string) (pipeline.Result, error) {
	wrapped := sanitize.WrapExternalContent(text, "msg")
	messages := []pipeline.Message{
		{Role: "system", Content: fmt.Sprintf("You are %s. Reply in character to the user's message.", p.ctx.IdentityName)},
		{Role: "user", Content: wrapped},
	}
	result := p.ctx.SafePipeline.Chat(ctx, messages, userID, "echo_reply", "", pipeline.Options{})
	return result, nil
}
