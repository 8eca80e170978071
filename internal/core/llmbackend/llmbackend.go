// Package llmbackend defines the Backend client interface and a registry +
// router over configured backends.
//
// The single-HTTP-transport-parameterized-by-base-URL design is kept nearly
// verbatim from the teacher's internal/gitai/llm package (provider.go's
// Provider interface, openai.go's BaseURL-overridable client that serves both
// hosted OpenAI and self-hosted OpenAI-compatible servers like Ollama);
// generalized here into three named backend kinds plus a router implementing
// spec's resolve_backend precedence rules.
package llmbackend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/silverreef/agentcore/common/retry"
)

// Kind identifies a backend's transport flavor.
type Kind string

const (
	KindLocal  Kind = "local"  // local-inference HTTP backend
	KindOpenAI Kind = "openai" // OpenAI-compatible HTTP backend (self-hosted or hosted)
	KindHosted Kind = "hosted" // hosted provider, bearer-token HTTP
)

// Complexity is the declared complexity of a chat request, used for routing.
type Complexity string

const (
	ComplexityLow       Complexity = "low"
	ComplexityHigh      Complexity = "high"
	ComplexityUltra     Complexity = "ultra"
	ComplexityReasoning Complexity = "reasoning"
)

// Priority is the declared priority of a chat request, used for routing.
type Priority string

const (
	PriorityNormal Priority = "normal"
	PriorityHigh   Priority = "high"
)

// Message is a single chat turn.
type Message struct {
	Role    string
	Content string
}

// ChatRequest is the input to a backend call.
type ChatRequest struct {
	Model       string
	Messages    []Message
	Temperature float64
	TopP        float64
	MaxTokens   int
}

// ChatResponse is a backend's reply.
type ChatResponse struct {
	Content string
	Model   string
}

// Backend is the interface every LLM backend client implements. The core is
// agnostic to transport details beyond URL-scheme validation at
// configuration time and this declared type tag.
type Backend interface {
	Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error)
	HealthCheck(ctx context.Context) bool
	Close() error
}

// Config describes one configured backend.
type Config struct {
	Name        string
	Kind        Kind
	BaseURL     string
	APIKey      string
	Model       string
	Timeout     time.Duration
	IsCloud     bool // used by the router's priority=high rule
	IsReasoning bool // used by the router's complexity=reasoning rule
	// MaxRetries bounds the number of attempts for a transient transport or
	// 5xx failure (0 or negative means DefaultMaxRetries).
	MaxRetries int
}

// DefaultMaxRetries is the attempt count used when Config.MaxRetries is unset.
const DefaultMaxRetries = 3

// transientError marks an httpBackend.Chat failure as retryable: a network
// error reaching the backend, or a 5xx response. 4xx responses and
// malformed-response errors are not retried.
type transientError struct{ err error }

func (t *transientError) Error() string { return t.err.Error() }
func (t *transientError) Unwrap() error { return t.err }

func isTransient(err error) bool {
	var t *transientError
	return errors.As(err, &t)
}

// ErrInvalidScheme is returned at configuration time when BaseURL does not
// begin with http:// or https://.
var ErrInvalidScheme = errors.New("llmbackend: base URL must begin with http:// or https://")

func validateScheme(baseURL string) error {
	if !strings.HasPrefix(baseURL, "http://") && !strings.HasPrefix(baseURL, "https://") {
		return ErrInvalidScheme
	}
	return nil
}

// httpBackend implements Backend over a single HTTP transport, parameterized
// by base URL and an optional bearer token. One implementation serves all
// three Kinds: they differ only in endpoint shape and auth presence.
type httpBackend struct {
	cfg    Config
	client *http.Client
}

// NewHTTPBackend constructs a Backend for cfg. It rejects non-HTTP(S) base
// URLs at construction time rather than at first call.
func NewHTTPBackend(cfg Config) (Backend, error) {
	if err := validateScheme(cfg.BaseURL); err != nil {
		return nil, fmt.Errorf("llmbackend %q: %w", cfg.Name, err)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	return &httpBackend{cfg: cfg, client: &http.Client{Timeout: cfg.Timeout}}, nil
}

type chatRequestWire struct {
	Model       string       `json:"model"`
	Messages    []chatMsgWire `json:"messages"`
	Temperature float64      `json:"temperature,omitempty"`
	TopP        float64      `json:"top_p,omitempty"`
	MaxTokens   int          `json:"max_tokens,omitempty"`
}

type chatMsgWire struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponseWire struct {
	Choices []struct {
		Message chatMsgWire `json:"message"`
	} `json:"choices"`
	Model string `json:"model"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// Chat sends one chat-completion request, retrying transient transport
// failures and 5xx responses with exponential backoff via common/retry. A
// 4xx response or a malformed body is treated as permanent and returned
// immediately without consuming further attempts.
func (b *httpBackend) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	model := req.Model
	if model == "" {
		model = b.cfg.Model
	}

	wireMsgs := make([]chatMsgWire, 0, len(req.Messages))
	for _, m := range req.Messages {
		wireMsgs = append(wireMsgs, chatMsgWire{Role: m.Role, Content: m.Content})
	}

	body, err := json.Marshal(chatRequestWire{
		Model:       model,
		Messages:    wireMsgs,
		Temperature: req.Temperature,
		TopP:        req.TopP,
		MaxTokens:   req.MaxTokens,
	})
	if err != nil {
		return nil, fmt.Errorf("llmbackend %q: marshal request: %w", b.cfg.Name, err)
	}

	maxRetries := b.cfg.MaxRetries
	if maxRetries <= 0 {
		maxRetries = DefaultMaxRetries
	}

	var result *ChatResponse
	err = retry.Do(ctx, retry.Config{
		MaxAttempts:  maxRetries,
		InitialDelay: 250 * time.Millisecond,
		MaxDelay:     5 * time.Second,
		ShouldRetry:  isTransient,
	}, func() error {
		resp, attemptErr := b.doChat(ctx, body, model)
		if attemptErr != nil {
			return attemptErr
		}
		result = resp
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// doChat performs one HTTP attempt. Network errors and 5xx responses are
// wrapped in transientError so retry.Do's ShouldRetry classifies them as
// retryable; every other failure is permanent.
func (b *httpBackend) doChat(ctx context.Context, body []byte, model string) (*ChatResponse, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		b.cfg.BaseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("llmbackend %q: build request: %w", b.cfg.Name, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if b.cfg.APIKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+b.cfg.APIKey)
	}

	resp, err := b.client.Do(httpReq)
	if err != nil {
		return nil, &transientError{fmt.Errorf("llmbackend %q: request: %w", b.cfg.Name, err)}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &transientError{fmt.Errorf("llmbackend %q: read response: %w", b.cfg.Name, err)}
	}

	if resp.StatusCode >= 500 {
		return nil, &transientError{fmt.Errorf("llmbackend %q: status %d", b.cfg.Name, resp.StatusCode)}
	}

	var wire chatResponseWire
	if err := json.Unmarshal(raw, &wire); err != nil {
		return nil, fmt.Errorf("llmbackend %q: decode response (status %d): %w", b.cfg.Name, resp.StatusCode, err)
	}
	if wire.Error != nil {
		return nil, fmt.Errorf("llmbackend %q: backend error: %s", b.cfg.Name, wire.Error.Message)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("llmbackend %q: status %d", b.cfg.Name, resp.StatusCode)
	}
	if len(wire.Choices) == 0 {
		return nil, fmt.Errorf("llmbackend %q: empty choices", b.cfg.Name)
	}

	respModel := wire.Model
	if respModel == "" {
		respModel = model
	}
	return &ChatResponse{Content: wire.Choices[0].Message.Content, Model: respModel}, nil
}

func (b *httpBackend) HealthCheck(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, b.cfg.BaseURL+"/models", nil)
	if err != nil {
		return false
	}
	if b.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+b.cfg.APIKey)
	}
	resp, err := b.client.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode < 500
}

func (b *httpBackend) Close() error {
	b.client.CloseIdleConnections()
	return nil
}
