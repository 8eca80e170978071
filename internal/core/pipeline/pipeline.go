// Package pipeline implements the Safe LLM Pipeline: a fail-closed,
// six-stage ordered filter mediating every language-model interaction
// (INPUT_SANITIZE → PREFLIGHT → RATE_LIMIT → LLM_CALL → OUTPUT_SAFETY →
// AUDIT).
//
// The stage-chain composition is styled after internal/gitai/app.App's turn
// loop (policy check → LLM call → tool dispatch), restructured into the
// spec's strict fixed order and fail-closed-on-any-stage-error discipline,
// which the teacher's own loop does not need since it has no comparable
// security gate ahead of the model call.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/silverreef/agentcore/common/trace"
	"github.com/silverreef/agentcore/internal/core/audit"
	"github.com/silverreef/agentcore/internal/core/llmbackend"
	"github.com/silverreef/agentcore/internal/core/outputsafety"
	"github.com/silverreef/agentcore/internal/core/preflight"
	"github.com/silverreef/agentcore/internal/core/ratelimit"
	"github.com/silverreef/agentcore/internal/core/sanitize"
)

// Stage names a pipeline stage, used in PipelineResult.BlockStage.
type Stage string

const (
	StageSanitize     Stage = "SANITIZE"
	StagePreflight    Stage = "PREFLIGHT"
	StageRateLimit    Stage = "RATE_LIMIT"
	StageLLMCall      Stage = "LLM_CALL"
	StageOutputSafety Stage = "OUTPUT_SAFETY"
	StageAudit        Stage = "AUDIT"
)

// Message is one chat turn. Content known to be externally sourced must
// already be wrapped via sanitize.WrapExternalContent before being handed in.
type Message struct {
	Role    string
	Content string
}

// Result is the outcome of one pipeline invocation.
type Result struct {
	Content      string
	Blocked      bool
	BlockReason  string
	BlockStage   Stage
	Deflection   string
	DurationMS   int64
	StagesPassed map[Stage]bool
	// TraceID correlates this invocation's audit entry (and any log lines
	// emitted during it) with the caller. Generated per call unless ctx
	// already carries one (e.g. propagated in from an HTTP/IPC handler).
	TraceID string
}

// Options modify one Chat call's behavior.
type Options struct {
	// Internal marks a caller-initiated (not externally triggered) message —
	// e.g. a scheduled heartbeat post. PREFLIGHT is skipped, but RATE_LIMIT
	// and OUTPUT_SAFETY still apply.
	Internal bool
	// Complexity/Priority are passed through to the backend router.
	Complexity llmbackend.Complexity
	Priority   llmbackend.Priority
	Backend    string // explicit backend override
	Model      string
	Temperature float64
	TopP        float64
	MaxTokens   int
}

// Pipeline composes the sanitizer, preflight checker, rate limiter, a
// backend router, the output safety filter, and the audit log into the
// fixed six-stage chain.
type Pipeline struct {
	Preflight     *preflight.Checker
	RateLimiter   *ratelimit.Limiter
	Router        *llmbackend.Router
	OutputSafety  *outputsafety.Filter
	Audit         *audit.Log
	Identity      string
	AdminUserIDs  map[string]bool
	Logger        *slog.Logger
	// Timeout bounds one Chat invocation. Beyond it, the pipeline returns
	// blocked=true at stage LLM_CALL. Zero means DefaultTimeout.
	Timeout time.Duration
}

// DefaultTimeout is the outer budget for one pipeline invocation.
const DefaultTimeout = 90 * time.Second

func (p *Pipeline) logger() *slog.Logger {
	if p.Logger != nil {
		return p.Logger
	}
	return slog.Default()
}

// Chat runs the six-stage pipeline for one user turn and records one audit
// entry regardless of outcome.
func (p *Pipeline) Chat(ctx context.Context, messages []Message, userID, auditAction, auditDetails string, opts Options) (result Result) {
	start := time.Now()
	result.StagesPassed = make(map[Stage]bool)

	traceID := trace.FromContext(ctx)
	if traceID == "" {
		traceID = trace.GenerateID()
		ctx = trace.WithTraceID(ctx, traceID)
	}
	result.TraceID = traceID

	timeout := p.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	defer func() {
		result.DurationMS = time.Since(start).Milliseconds()
		if r := recover(); r != nil {
			result = p.failClosed(result, result.blockedStage(), fmt.Sprintf("internal error: %v", r))
		}
		p.recordAudit(ctx, auditAction, auditDetails, result)
	}()

	sanitized := func() (s []Message) {
		defer func() {
			if r := recover(); r != nil {
				s = nil
			}
		}()
		out := make([]Message, len(messages))
		for i, m := range messages {
			out[i] = Message{Role: m.Role, Content: sanitize.Sanitize(m.Content, 0)}
		}
		return out
	}()
	if sanitized == nil {
		return p.failClosed(result, StageSanitize, "sanitize stage failed")
	}
	result.StagesPassed[StageSanitize] = true

	if !opts.Internal && !p.isAdmin(userID) {
		verdict, ok := p.runPreflight(sanitized, userID)
		if !ok {
			return p.failClosed(result, StagePreflight, "preflight stage failed")
		}
		if verdict.Verdict == preflight.Block {
			result.Blocked = true
			result.BlockStage = StagePreflight
			result.BlockReason = string(verdict.ThreatKind)
			result.Deflection = verdict.Deflection
			return result
		}
	} else if p.isAdmin(userID) {
		p.logger().Debug("preflight bypassed for admin", "user_id", userID)
	}
	result.StagesPassed[StagePreflight] = true

	allowed, ok := p.runRateLimit(userID)
	if !ok {
		return p.failClosed(result, StageRateLimit, "rate limit stage failed")
	}
	if !allowed {
		result.Blocked = true
		result.BlockStage = StageRateLimit
		result.BlockReason = "rate_limit_exceeded"
		return result
	}
	result.StagesPassed[StageRateLimit] = true

	content, ok := p.runLLMCall(ctx, sanitized, opts)
	if !ok {
		result.Blocked = true
		result.BlockStage = StageLLMCall
		result.BlockReason = "backend"
		return result
	}
	result.StagesPassed[StageLLMCall] = true

	verdict, ok := p.runOutputSafety(content)
	if !ok {
		return p.failClosed(result, StageOutputSafety, "output safety stage failed")
	}
	if verdict.Blocked {
		result.Blocked = true
		result.BlockStage = StageOutputSafety
		result.BlockReason = verdict.Reason
		result.Deflection = "I can't share that."
		return result
	}
	result.StagesPassed[StageOutputSafety] = true
	result.Content = verdict.RewrittenText

	return result
}

func (r Result) blockedStage() Stage {
	for _, s := range []Stage{StageSanitize, StagePreflight, StageRateLimit, StageLLMCall, StageOutputSafety} {
		if !r.StagesPassed[s] {
			return s
		}
	}
	return StageAudit
}

func (p *Pipeline) failClosed(result Result, stage Stage, reason string) Result {
	result.Blocked = true
	result.BlockStage = stage
	result.BlockReason = reason
	return result
}

func (p *Pipeline) isAdmin(userID string) bool {
	return p.AdminUserIDs != nil && p.AdminUserIDs[userID]
}

func (p *Pipeline) runPreflight(messages []Message, userID string) (res preflight.Result, ok bool) {
	defer func() {
		if r := recover(); r != nil {
			ok = false
		}
	}()
	if p.Preflight == nil {
		return preflight.Result{Verdict: preflight.Allow}, true
	}
	text := lastUserContent(messages)
	return p.Preflight.Check(text, userID), true
}

func (p *Pipeline) runRateLimit(userID string) (allowed bool, ok bool) {
	defer func() {
		if r := recover(); r != nil {
			ok = false
		}
	}()
	if p.RateLimiter == nil {
		return true, true
	}
	return p.RateLimiter.Allow(userID), true
}

func (p *Pipeline) runLLMCall(ctx context.Context, messages []Message, opts Options) (content string, ok bool) {
	defer func() {
		if r := recover(); r != nil {
			ok = false
		}
	}()
	if p.Router == nil {
		return "", false
	}
	traceID := trace.FromContext(ctx)
	backendName, err := p.Router.ResolveBackend(opts.Backend, opts.Complexity, opts.Priority)
	if err != nil {
		p.logger().Error("resolve backend", "error", err, "trace_id", traceID)
		return "", false
	}
	backend, found := p.Router.Registry().GetClient(backendName)
	if !found {
		return "", false
	}
	wireMsgs := make([]llmbackend.Message, len(messages))
	for i, m := range messages {
		wireMsgs[i] = llmbackend.Message{Role: m.Role, Content: m.Content}
	}
	resp, err := backend.Chat(ctx, llmbackend.ChatRequest{
		Model:       opts.Model,
		Messages:    wireMsgs,
		Temperature: opts.Temperature,
		TopP:        opts.TopP,
		MaxTokens:   opts.MaxTokens,
	})
	if err != nil {
		p.logger().Error("backend chat", "error", err, "backend", backendName, "trace_id", traceID)
		return "", false
	}
	return resp.Content, true
}

func (p *Pipeline) runOutputSafety(content string) (v outputsafety.Verdict, ok bool) {
	defer func() {
		if r := recover(); r != nil {
			ok = false
		}
	}()
	if p.OutputSafety == nil {
		return outputsafety.Verdict{RewrittenText: content}, true
	}
	return p.OutputSafety.Check(content), true
}

func (p *Pipeline) recordAudit(ctx context.Context, action, details string, result Result) {
	if p.Audit == nil {
		return
	}
	defer func() {
		// Audit failures must never block an already-produced response.
		_ = recover()
	}()
	duration := result.DurationMS
	errMsg := ""
	if result.Blocked {
		errMsg = fmt.Sprintf("%s: %s", result.BlockStage, result.BlockReason)
	}
	if _, err := p.Audit.Log(ctx, audit.LogParams{
		Action:     action,
		Category:   "pipeline",
		Identity:   p.Identity,
		Details:    details,
		Success:    !result.Blocked,
		TraceID:    result.TraceID,
		DurationMS: &duration,
		Error:      errMsg,
	}); err != nil {
		p.logger().Error("audit write failed", "error", err)
	}
}

func lastUserContent(messages []Message) string {
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == "user" {
			return messages[i].Content
		}
	}
	return ""
}
