package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/aishacrm/orchestrator-core/internal/agent"
	"github.com/aishacrm/orchestrator-core/pkg/models"
)

type fakeProvider struct {
	calls   int
	respond func(call int) (<-chan *agent.CompletionChunk, error)
}

func (p *fakeProvider) Complete(ctx context.Context, req *agent.CompletionRequest) (<-chan *agent.CompletionChunk, error) {
	p.calls++
	return p.respond(p.calls)
}

func (p *fakeProvider) Name() string            { return "fake" }
func (p *fakeProvider) Models() []agent.Model   { return nil }
func (p *fakeProvider) SupportsTools() bool     { return true }

var _ agent.LLMProvider = (*fakeProvider)(nil)

func chunkChan(chunks ...*agent.CompletionChunk) <-chan *agent.CompletionChunk {
	ch := make(chan *agent.CompletionChunk, len(chunks))
	for _, c := range chunks {
		ch <- c
	}
	close(ch)
	return ch
}

func TestAdapter_ChatReturnsAssistantMessage(t *testing.T) {
	p := &fakeProvider{respond: func(int) (<-chan *agent.CompletionChunk, error) {
		return chunkChan(
			&agent.CompletionChunk{Text: "hello "},
			&agent.CompletionChunk{Text: "world", Done: true},
		), nil
	}}
	a := NewAdapter(p, Config{})

	resp, err := a.Chat(context.Background(), ChatRequest{Messages: []Message{{Role: "user", Content: "hi"}}})
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if resp.AssistantMessage != "hello world" {
		t.Fatalf("AssistantMessage = %q, want %q", resp.AssistantMessage, "hello world")
	}
	if len(resp.ToolCalls) != 0 {
		t.Fatalf("expected no tool calls, got %d", len(resp.ToolCalls))
	}
}

func TestAdapter_ChatSurfacesToolCalls(t *testing.T) {
	call := toolCall("call-1", "leads.list", `{"limit":5}`)
	p := &fakeProvider{respond: func(int) (<-chan *agent.CompletionChunk, error) {
		return chunkChan(
			&agent.CompletionChunk{ToolCall: &call},
			&agent.CompletionChunk{Done: true},
		), nil
	}}
	a := NewAdapter(p, Config{})

	resp, err := a.Chat(context.Background(), ChatRequest{
		Messages: []Message{{Role: "user", Content: "list my leads"}},
		Tools:    []ToolSchema{{Name: "leads.list", Description: "list leads", Parameters: json.RawMessage(`{"type":"object"}`)}},
	})
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if len(resp.ToolCalls) != 1 || resp.ToolCalls[0].Name != "leads.list" {
		t.Fatalf("ToolCalls = %+v, want one leads.list call", resp.ToolCalls)
	}
}

func TestAdapter_RetriesOnTransientError(t *testing.T) {
	attempts := 0
	p := &fakeProvider{respond: func(call int) (<-chan *agent.CompletionChunk, error) {
		attempts++
		if call < 3 {
			return nil, errors.New("connection reset")
		}
		return chunkChan(&agent.CompletionChunk{Text: "ok", Done: true}), nil
	}}
	a := NewAdapter(p, Config{MaxRetries: 5, RetryBaseWait: time.Millisecond})

	resp, err := a.Chat(context.Background(), ChatRequest{Messages: []Message{{Role: "user", Content: "hi"}}})
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if resp.AssistantMessage != "ok" {
		t.Fatalf("AssistantMessage = %q, want ok", resp.AssistantMessage)
	}
	if attempts != 3 {
		t.Fatalf("attempts = %d, want 3", attempts)
	}
}

func TestAdapter_NonTransientErrorStopsImmediately(t *testing.T) {
	p := &fakeProvider{respond: func(int) (<-chan *agent.CompletionChunk, error) {
		return nil, context.Canceled
	}}
	a := NewAdapter(p, Config{MaxRetries: 5, RetryBaseWait: time.Millisecond})

	_, err := a.Chat(context.Background(), ChatRequest{Messages: []Message{{Role: "user", Content: "hi"}}})
	if err == nil {
		t.Fatal("expected an error")
	}
	if p.calls != 1 {
		t.Fatalf("calls = %d, want 1 (cancellation must not be retried)", p.calls)
	}
}

func TestTrimWindow_BoundsMessageCountAndLength(t *testing.T) {
	var messages []Message
	for i := 0; i < 20; i++ {
		messages = append(messages, Message{Role: "user", Content: fmt.Sprintf("msg-%d", i)})
	}
	trimmed := TrimWindow(messages)
	if len(trimmed) != maxWindowMessages {
		t.Fatalf("len = %d, want %d", len(trimmed), maxWindowMessages)
	}
	if trimmed[0].Content != "msg-12" {
		t.Fatalf("first retained message = %q, want msg-12 (last 8 of 20)", trimmed[0].Content)
	}

	longRunes := make([]rune, maxMessageChars+500)
	for i := range longRunes {
		longRunes[i] = 'a'
	}
	long := Message{Role: "user", Content: string(longRunes)}
	trimmedLong := TrimWindow([]Message{long})
	if len([]rune(trimmedLong[0].Content)) != maxMessageChars {
		t.Fatalf("truncated length = %d, want %d", len([]rune(trimmedLong[0].Content)), maxMessageChars)
	}
}

func toolCall(id, name, input string) models.ToolCall {
	return models.ToolCall{ID: id, Name: name, Input: json.RawMessage(input)}
}
