// Package coreerrors defines the error-kind taxonomy every package wraps
// its failures in, so callers use errors.Is/errors.As instead of string
// matching.
//
// Sentinel-plus-%w-wrapping is the teacher's idiom throughout (see
// internal/gitai/policy.Violation for the typed-struct variant this
// package's style mirrors); this package gives the core a single shared
// vocabulary for the error kinds that have observable consequences at the
// process boundary (CLI exit code, pipeline block_stage, restart policy).
package coreerrors

import "errors"

// Each sentinel corresponds to one error kind: wrap it with fmt.Errorf's
// %w so the original cause is preserved while callers can still
// errors.Is(err, coreerrors.ErrConfig) etc.
var (
	// ErrConfig covers malformed YAML, a missing required field, or an
	// invalid identity name. Surfaced to the user; the process exits
	// with code 1 at startup.
	ErrConfig = errors.New("configuration error")

	// ErrSecrets covers a missing master key when ciphertext already
	// exists, or a MAC failure on decrypt. Surfaced; the process exits
	// with code 1. Never auto-healed.
	ErrSecrets = errors.New("secrets error")

	// ErrBackend covers an unreachable LLM backend, a timeout, or a bad
	// status code. The pipeline returns blocked=true at stage LLM_CALL
	// with reason "backend"; restart policy may recover a crashed child.
	ErrBackend = errors.New("backend error")

	// ErrSecurityBlock covers a preflight or output-safety block. Not an
	// error to the caller: the pipeline returns blocked=true with the
	// triggering stage and an optional deflection.
	ErrSecurityBlock = errors.New("security block")

	// ErrRateLimit covers an empty token bucket. The pipeline returns
	// blocked=true with stage RATE_LIMIT; the caller may retry after
	// retry_after.
	ErrRateLimit = errors.New("rate limit exceeded")

	// ErrPermissionDenied covers an action denied by the permission
	// checker. The plugin receives false from is_allowed; no side
	// effect is performed.
	ErrPermissionDenied = errors.New("permission denied")

	// ErrAudit covers an audit write failure. Logged; never blocks the
	// request or crashes the orchestrator.
	ErrAudit = errors.New("audit write failed")

	// ErrIPCAuth covers a missing or mismatched IPC auth token. The
	// connection is closed immediately and the event recorded.
	ErrIPCAuth = errors.New("ipc authentication failed")

	// ErrChildCrash covers an orchestrator subprocess exiting with a
	// nonzero code. The supervisor applies its restart policy and
	// records a crash audit entry.
	ErrChildCrash = errors.New("child process crashed")
)
