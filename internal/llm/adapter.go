// Package llm implements the LLM Adapter (C12): a single chat() contract
// over the donor's multi-backend agent.LLMProvider, with window trimming
// and transport retry/backoff layered on top. Generalizes
// internal/agent/providers' provider abstraction (Anthropic, OpenAI,
// Google, Bedrock, Azure, Ollama, OpenRouter, Copilot) to the narrower
// request/response shape the chat router needs.
package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/aishacrm/orchestrator-core/internal/agent"
)

// maxWindowMessages, maxMessageChars, and maxToolSummaryChars are the
// message-window policy bounding LLM cost per turn.
const (
	maxWindowMessages   = 8
	maxMessageChars     = 1500
	maxToolSummaryChars = 1200
)

// Message is one entry in a chat window.
type Message struct {
	Role    string // "user", "assistant", "tool"
	Content string
}

// ToolSchema is what the executor (C9) advertises to the model: name,
// description, and argument schema only. The adapter must never invoke a
// tool itself, so this carries no handler.
type ToolSchema struct {
	Name        string
	Description string
	Parameters  json.RawMessage
}

// ToolCallRequest is a structured tool-call request surfaced back to the
// caller for C9 to execute.
type ToolCallRequest struct {
	ID    string
	Name  string
	Input json.RawMessage
}

// ChatRequest is one chat() invocation.
type ChatRequest struct {
	Messages    []Message
	Tools       []ToolSchema
	Temperature float64
	Model       string
}

// ChatResponse is chat()'s result: either a terminal assistant message, or
// one or more tool-call requests the caller must execute and feed back as
// "tool" role messages before calling chat() again.
type ChatResponse struct {
	AssistantMessage string
	ToolCalls        []ToolCallRequest
}

// schemaOnlyTool satisfies agent.Tool for request construction purposes
// only. Providers read Name/Description/Schema to build the wire request
// and never call Execute directly — tool execution is driven by the
// caller via the returned ToolCallRequest, never by the provider or this
// adapter.
type schemaOnlyTool struct{ s ToolSchema }

func (t schemaOnlyTool) Name() string             { return t.s.Name }
func (t schemaOnlyTool) Description() string      { return t.s.Description }
func (t schemaOnlyTool) Schema() json.RawMessage   { return t.s.Parameters }
func (t schemaOnlyTool) Execute(context.Context, json.RawMessage) (*agent.ToolResult, error) {
	return nil, errors.New("llm: schema-only tool must not be executed by the provider")
}

// Adapter wraps a single agent.LLMProvider backend.
type Adapter struct {
	provider      agent.LLMProvider
	timeout       time.Duration
	maxRetries    int
	retryBaseWait time.Duration
}

// Config controls an Adapter's timeout and retry policy.
type Config struct {
	// Timeout bounds a single chat() call, matching the 60s default LLM
	// call timeout.
	Timeout time.Duration
	// MaxRetries bounds retry attempts on transient transport errors.
	MaxRetries int
	// RetryBaseWait scales linearly with attempt number between retries.
	RetryBaseWait time.Duration
}

// NewAdapter builds an Adapter over provider with cfg's retry/timeout
// policy, defaulting unset fields.
func NewAdapter(provider agent.LLMProvider, cfg Config) *Adapter {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.RetryBaseWait <= 0 {
		cfg.RetryBaseWait = time.Second
	}
	return &Adapter{
		provider:      provider,
		timeout:       cfg.Timeout,
		maxRetries:    cfg.MaxRetries,
		retryBaseWait: cfg.RetryBaseWait,
	}
}

// TrimWindow applies the message-window policy: at most the last
// maxWindowMessages messages, each truncated to maxMessageChars.
func TrimWindow(messages []Message) []Message {
	start := 0
	if len(messages) > maxWindowMessages {
		start = len(messages) - maxWindowMessages
	}
	out := make([]Message, 0, len(messages)-start)
	for _, m := range messages[start:] {
		out = append(out, Message{Role: m.Role, Content: truncateRunes(m.Content, maxMessageChars)})
	}
	return out
}

// TruncateToolSummary bounds a tool result summary before it is inlined
// into the message window.
func TruncateToolSummary(s string) string {
	return truncateRunes(s, maxToolSummaryChars)
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

// Chat runs one chat() turn: trims the window, advertises req.Tools,
// retries on transient transport errors, and surfaces either a terminal
// assistant message or structured tool-call requests. Never mutates
// conversation state and never invokes a tool.
func (a *Adapter) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	cctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	window := TrimWindow(req.Messages)
	completionMessages := make([]agent.CompletionMessage, 0, len(window))
	for _, m := range window {
		completionMessages = append(completionMessages, agent.CompletionMessage{Role: m.Role, Content: m.Content})
	}

	tools := make([]agent.Tool, 0, len(req.Tools))
	for _, t := range req.Tools {
		tools = append(tools, schemaOnlyTool{s: t})
	}

	creq := &agent.CompletionRequest{
		Model:    req.Model,
		Messages: completionMessages,
		Tools:    tools,
	}

	var lastErr error
	for attempt := 1; attempt <= a.maxRetries; attempt++ {
		resp, err := a.attempt(cctx, creq)
		if err == nil {
			return resp, nil
		}
		lastErr = err
		if !isTransient(err) || attempt == a.maxRetries {
			return nil, err
		}
		select {
		case <-cctx.Done():
			return nil, cctx.Err()
		case <-time.After(a.retryBaseWait * time.Duration(attempt)):
		}
	}
	return nil, lastErr
}

func (a *Adapter) attempt(ctx context.Context, creq *agent.CompletionRequest) (*ChatResponse, error) {
	chunks, err := a.provider.Complete(ctx, creq)
	if err != nil {
		return nil, fmt.Errorf("llm: complete: %w", err)
	}

	var text string
	var toolCalls []ToolCallRequest
	for chunk := range chunks {
		if chunk.Error != nil {
			return nil, fmt.Errorf("llm: stream: %w", chunk.Error)
		}
		if chunk.Text != "" {
			text += chunk.Text
		}
		if chunk.ToolCall != nil {
			toolCalls = append(toolCalls, ToolCallRequest{
				ID:    chunk.ToolCall.ID,
				Name:  chunk.ToolCall.Name,
				Input: chunk.ToolCall.Input,
			})
		}
		if chunk.Done {
			break
		}
	}

	return &ChatResponse{AssistantMessage: text, ToolCalls: toolCalls}, nil
}

// isTransient reports whether err looks like a transport-level failure
// worth retrying, rather than a non-retryable application error. This is
// conservative since agent.LLMProvider implementations do not currently
// tag errors: context deadline/cancellation is never retried here (the
// caller already owns the timeout), everything else is treated as
// potentially transient network/provider flakiness.
func isTransient(err error) bool {
	return !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
}
