package plugin

import (
	"context"
	"fmt"

	"github.com/silverreef/agentcore/internal/core/pipeline"
)

// heartbeatPlugin ticks on the identity's configured schedule and posts a
// self-initiated message through the safe pipeline with Internal: true,
// demonstrating spec.md §4.7's heartbeat exemption (PREFLIGHT skipped,
// RATE_LIMIT and OUTPUT_SAFETY still applied).
type heartbeatPlugin struct {
	ctx *Context
}

func newHeartbeatPlugin(ctx *Context) (Plugin, error) {
	if ctx.SafePipeline == nil {
		return nil, fmt.Errorf("heartbeat: pipeline required")
	}
	return &heartbeatPlugin{ctx: ctx}, nil
}

func (p *heartbeatPlugin) Setup(ctx context.Context) error {
	if p.ctx.QuietHours != nil && p.ctx.QuietHours.IsQuietHours() {
		return nil
	}
	return nil
}

// Tick is invoked by the scheduler at the identity's heartbeat_hours
// interval. It never forwards externally-sourced text — only the
// orchestrator's own scheduler tick reaches here, satisfying SPEC_FULL.md's
// Open Question decision that Internal may only be set for scheduler-driven
// calls, never plugin-forwarded external content.
func (p *heartbeatPlugin) Tick(ctx context.Context) error {
	if p.ctx.QuietHours != nil && p.ctx.QuietHours.IsQuietHours() {
		return nil
	}
	messages := []pipeline.Message{
		{Role: "system", Content: fmt.Sprintf("You are %s. Write a brief, in-character status update.", p.ctx.IdentityName)},
	}
	result := p.ctx.SafePipeline.Chat(ctx, messages, "", "heartbeat_post", "", pipeline.Options{
		Internal: true,
	})
	if result.Blocked {
		return fmt.Errorf("heartbeat post blocked at %s: %s", result.BlockStage, result.BlockReason)
	}
	if p.ctx.EventBus != nil {
		p.ctx.EventBus.Emit("heartbeat.posted", map[string]any{
			"identity": p.ctx.IdentityName,
			"content":  result.Content,
		})
	}
	return nil
}

func (p *heartbeatPlugin) Teardown(ctx context.Context) error {
	return nil
}
