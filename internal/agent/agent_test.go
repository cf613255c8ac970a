package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jmnelson/ollie/internal/history"
	"github.com/jmnelson/ollie/internal/llm"
	"github.com/jmnelson/ollie/internal/permissions"
	"github.com/jmnelson/ollie/internal/tools"
)

// stubClient scripts model behavior per request. respond sees the full
// request, including whether tool schemas were offered.
type stubClient struct {
	mu      sync.Mutex
	calls   []llm.Request
	respond func(req llm.Request) (*llm.Response, error)
}

func (s *stubClient) Chat(ctx context.Context, req llm.Request) (*llm.Response, error) {
	s.mu.Lock()
	s.calls = append(s.calls, req)
	s.mu.Unlock()
	return s.respond(req)
}

func (s *stubClient) ChatStream(ctx context.Context, req llm.Request, cb llm.StreamCallback) (*llm.Response, error) {
	resp, err := s.Chat(ctx, req)
	if err == nil && cb != nil && resp.Message.Content != "" {
		cb(resp.Message.Content)
	}
	return resp, err
}

func (s *stubClient) Ping(ctx context.Context) error { return nil }

func (s *stubClient) ListModels(ctx context.Context) ([]string, error) { return nil, nil }

func (s *stubClient) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.calls)
}

func (s *stubClient) call(i int) llm.Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[i]
}

func textResponse(content string) *llm.Response {
	return &llm.Response{Message: llm.Message{Role: "assistant", Content: content}, Done: true}
}

func toolCallResponse(name string, args map[string]any) *llm.Response {
	return &llm.Response{
		Message: llm.Message{
			Role: "assistant",
			ToolCalls: []llm.ToolCall{
				{Function: llm.ToolCallFunction{Name: name, Arguments: args}},
			},
		},
		Done: true,
	}
}

// countingTool registers a tool and returns a pointer to its
// invocation counter.
func countingTool(t *testing.T, r *tools.Registry, name string, handler tools.Handler) *int {
	t.Helper()
	invocations := new(int)
	r.MustRegister(&tools.Tool{
		Name:        name,
		Description: "test tool",
		Parameters: map[string]any{
			"type":       "object",
			"properties": map[string]any{"directory": map[string]any{"type": "string"}},
		},
		Handler: func(ctx context.Context, args map[string]any) (string, error) {
			*invocations++
			if handler != nil {
				return handler(ctx, args)
			}
			return "ok", nil
		},
	})
	return invocations
}

func newTestAgent(client llm.Client, registry *tools.Registry) *Agent {
	hist := history.NewContext(100)
	hist.Append("system", DefaultSystemPrompt)
	return New(client, registry, nil, hist, Settings{
		Model:              "test-model",
		ToolsEnabled:       true,
		LLMTimeout:         2 * time.Second,
		ToolTimeout:        2 * time.Second,
		MaxToolOutputChars: 8000,
		HeadFraction:       0.6,
	}, nil)
}

func TestGreetingSkipsToolDecision(t *testing.T) {
	registry := tools.NewRegistry()
	invocations := countingTool(t, registry, "list_directory", nil)

	client := &stubClient{respond: func(req llm.Request) (*llm.Response, error) {
		if req.Tools != nil {
			t.Error("greeting turn must not offer tool schemas")
		}
		return textResponse("Hi! How can I help?"), nil
	}}

	a := newTestAgent(client, registry)
	answer := a.RunTurn(context.Background(), "Hello!", nil)

	if answer != "Hi! How can I help?" {
		t.Errorf("answer = %q", answer)
	}
	if *invocations != 0 {
		t.Errorf("registry invoked %d times, want 0", *invocations)
	}
	if client.callCount() != 1 {
		t.Errorf("model called %d times, want 1", client.callCount())
	}
}

func TestDirectAnswer(t *testing.T) {
	registry := tools.NewRegistry()
	invocations := countingTool(t, registry, "list_directory", nil)

	client := &stubClient{respond: func(req llm.Request) (*llm.Response, error) {
		return textResponse("the answer is 4"), nil
	}}

	a := newTestAgent(client, registry)
	answer := a.RunTurn(context.Background(), "what is 2+2?", nil)

	if answer != "the answer is 4" {
		t.Errorf("answer = %q", answer)
	}
	if *invocations != 0 {
		t.Errorf("registry invoked %d times, want 0", *invocations)
	}
	if client.callCount() != 1 {
		t.Errorf("model called %d times, want 1", client.callCount())
	}
	if len(client.call(0).Tools) == 0 {
		t.Error("decision call must offer tool schemas")
	}
}

func TestToolRound(t *testing.T) {
	registry := tools.NewRegistry()
	invocations := countingTool(t, registry, "list_directory", func(ctx context.Context, args map[string]any) (string, error) {
		return `["go.mod", "main.go"]`, nil
	})

	client := &stubClient{respond: func(req llm.Request) (*llm.Response, error) {
		if req.Tools != nil {
			return toolCallResponse("list_directory", map[string]any{"directory": "."}), nil
		}
		return textResponse("The directory has go.mod and main.go."), nil
	}}

	a := newTestAgent(client, registry)
	answer := a.RunTurn(context.Background(), "what files are here?", nil)

	if answer != "The directory has go.mod and main.go." {
		t.Errorf("answer = %q", answer)
	}
	if *invocations != 1 {
		t.Errorf("registry invoked %d times, want 1", *invocations)
	}
	if client.callCount() != 2 {
		t.Fatalf("model called %d times, want 2", client.callCount())
	}

	final := client.call(1)
	if final.Tools != nil {
		t.Error("final call must not offer tool schemas")
	}
	last := final.Messages[len(final.Messages)-1]
	if last.Role != "system" || !strings.Contains(last.Content, "tool result") {
		t.Errorf("final call missing synthesis instruction: %+v", last)
	}

	var sawTool bool
	for _, m := range a.History().Messages() {
		if m.Role == "tool" && m.ToolName == "list_directory" {
			sawTool = true
			if !strings.Contains(m.Content, `"ok":true`) {
				t.Errorf("tool message = %q", m.Content)
			}
		}
	}
	if !sawTool {
		t.Error("conversation missing the tool-role result message")
	}
}

func TestAtMostOneToolRound(t *testing.T) {
	registry := tools.NewRegistry()
	// The payload looks exactly like another tool call.
	invocations := countingTool(t, registry, "list_directory", func(ctx context.Context, args map[string]any) (string, error) {
		return `{"name": "list_directory", "arguments": {"directory": "/"}}`, nil
	})

	client := &stubClient{respond: func(req llm.Request) (*llm.Response, error) {
		if req.Tools != nil {
			return toolCallResponse("list_directory", map[string]any{"directory": "."}), nil
		}
		return textResponse("done"), nil
	}}

	a := newTestAgent(client, registry)
	answer := a.RunTurn(context.Background(), "list twice please", nil)

	if answer != "done" {
		t.Errorf("answer = %q", answer)
	}
	if *invocations != 1 {
		t.Errorf("registry invoked %d times, want exactly 1", *invocations)
	}
	if client.callCount() != 2 {
		t.Errorf("model called %d times, want 2", client.callCount())
	}
}

func TestModelTimeoutFallsBack(t *testing.T) {
	registry := tools.NewRegistry()
	invocations := countingTool(t, registry, "list_directory", nil)

	release := make(chan struct{})
	defer close(release)

	client := &stubClient{respond: func(req llm.Request) (*llm.Response, error) {
		if req.Tools != nil {
			<-release // never returns during the turn
			return nil, errors.New("abandoned")
		}
		return textResponse("answering from what I know"), nil
	}}

	hist := history.NewContext(100)
	hist.Append("system", DefaultSystemPrompt)
	a := New(client, registry, nil, hist, Settings{
		Model:        "test-model",
		ToolsEnabled: true,
		LLMTimeout:   50 * time.Millisecond,
		ToolTimeout:  time.Second,
	}, nil)

	answer := a.RunTurn(context.Background(), "what files are here?", nil)

	if answer != "answering from what I know" {
		t.Errorf("answer = %q", answer)
	}
	if *invocations != 0 {
		t.Errorf("registry invoked %d times, want 0", *invocations)
	}
	fallback := a.llm.(*stubClient).call(1)
	if fallback.Tools != nil {
		t.Error("fallback call must not offer tool schemas")
	}
}

func TestToolTimeoutFallsBack(t *testing.T) {
	registry := tools.NewRegistry()
	invocations := countingTool(t, registry, "list_directory", func(ctx context.Context, args map[string]any) (string, error) {
		time.Sleep(500 * time.Millisecond) // ignores cancellation
		return "too late", nil
	})

	client := &stubClient{respond: func(req llm.Request) (*llm.Response, error) {
		if req.Tools != nil {
			return toolCallResponse("list_directory", map[string]any{"directory": "."}), nil
		}
		return textResponse("sorry, that took too long to check"), nil
	}}

	hist := history.NewContext(100)
	hist.Append("system", DefaultSystemPrompt)
	a := New(client, registry, nil, hist, Settings{
		Model:        "test-model",
		ToolsEnabled: true,
		LLMTimeout:   time.Second,
		ToolTimeout:  50 * time.Millisecond,
	}, nil)

	answer := a.RunTurn(context.Background(), "what files are here?", nil)

	if answer == "" {
		t.Fatal("turn must still produce an answer")
	}
	if answer != "sorry, that took too long to check" {
		t.Errorf("answer = %q", answer)
	}
	_ = invocations // the handler may or may not have started; either is fine
}

func TestPermissionDenialFailsClosed(t *testing.T) {
	registry := tools.NewRegistry()
	handlerRan := false
	registry.MustRegister(&tools.Tool{
		Name:        "write_file",
		Description: "write a file",
		Parameters: map[string]any{
			"type":       "object",
			"properties": map[string]any{"file_path": map[string]any{"type": "string"}},
			"required":   []string{"file_path"},
		},
		Kind:   permissions.OpWrite,
		Target: func(args map[string]any) string { s, _ := args["file_path"].(string); return s },
		Handler: func(ctx context.Context, args map[string]any) (string, error) {
			handlerRan = true
			return "written", nil
		},
	})

	client := &stubClient{respond: func(req llm.Request) (*llm.Response, error) {
		if req.Tools != nil {
			return toolCallResponse("write_file", map[string]any{"file_path": "/etc/passwd"}), nil
		}
		return textResponse("I can't write there."), nil
	}}

	gate := permissions.NewGate(permissions.Policy{Mode: "moderate", Workspace: t.TempDir()})
	hist := history.NewContext(100)
	hist.Append("system", DefaultSystemPrompt)
	a := New(client, registry, gate, hist, Settings{
		Model:        "test-model",
		ToolsEnabled: true,
	}, nil)

	answer := a.RunTurn(context.Background(), "overwrite /etc/passwd", nil)

	if handlerRan {
		t.Error("handler must not run when the gate refuses")
	}
	if answer == "" {
		t.Error("turn must still produce an answer")
	}

	var sawRefusal bool
	for _, m := range a.History().Messages() {
		if m.Role == "tool" && strings.Contains(m.Content, "not permitted") {
			sawRefusal = true
		}
	}
	if !sawRefusal {
		t.Error("refusal must be fed back as a failed tool result")
	}
}

func TestUnknownToolFailsClosed(t *testing.T) {
	registry := tools.NewRegistry()
	countingTool(t, registry, "list_directory", nil)

	client := &stubClient{respond: func(req llm.Request) (*llm.Response, error) {
		if req.Tools != nil {
			return toolCallResponse("delete_everything", map[string]any{}), nil
		}
		return textResponse("no such tool"), nil
	}}

	a := newTestAgent(client, registry)
	answer := a.RunTurn(context.Background(), "do the thing", nil)

	if answer != "no such tool" {
		t.Errorf("answer = %q", answer)
	}
	var sawFailure bool
	for _, m := range a.History().Messages() {
		if m.Role == "tool" && strings.Contains(m.Content, `"ok":false`) {
			sawFailure = true
		}
	}
	if !sawFailure {
		t.Error("unknown tool must be fed back as a failed result")
	}
}

func TestInvalidArgsFailClosed(t *testing.T) {
	registry := tools.NewRegistry()
	handlerRan := false
	registry.MustRegister(&tools.Tool{
		Name: "read_file",
		Parameters: map[string]any{
			"type":       "object",
			"properties": map[string]any{"file_path": map[string]any{"type": "string"}},
			"required":   []string{"file_path"},
		},
		Handler: func(ctx context.Context, args map[string]any) (string, error) {
			handlerRan = true
			return "", nil
		},
	})

	client := &stubClient{respond: func(req llm.Request) (*llm.Response, error) {
		if req.Tools != nil {
			return toolCallResponse("read_file", map[string]any{"file_path": 42}), nil
		}
		return textResponse("bad arguments"), nil
	}}

	a := newTestAgent(client, registry)
	a.RunTurn(context.Background(), "read something", nil)

	if handlerRan {
		t.Error("handler must not run with schema-invalid arguments")
	}
}

func TestToolErrorBecomesFailedResult(t *testing.T) {
	registry := tools.NewRegistry()
	countingTool(t, registry, "list_directory", func(ctx context.Context, args map[string]any) (string, error) {
		return "", fmt.Errorf("directory not found: /nope")
	})

	client := &stubClient{respond: func(req llm.Request) (*llm.Response, error) {
		if req.Tools != nil {
			return toolCallResponse("list_directory", map[string]any{"directory": "/nope"}), nil
		}
		return textResponse("that directory does not exist"), nil
	}}

	a := newTestAgent(client, registry)
	answer := a.RunTurn(context.Background(), "list /nope", nil)

	if answer != "that directory does not exist" {
		t.Errorf("answer = %q", answer)
	}
	var sawError bool
	for _, m := range a.History().Messages() {
		if m.Role == "tool" && strings.Contains(m.Content, "directory not found") {
			sawError = true
		}
	}
	if !sawError {
		t.Error("handler error must be fed back in the tool result")
	}
}

func TestPanickingToolDoesNotKillTurn(t *testing.T) {
	registry := tools.NewRegistry()
	countingTool(t, registry, "list_directory", func(ctx context.Context, args map[string]any) (string, error) {
		panic("boom")
	})

	client := &stubClient{respond: func(req llm.Request) (*llm.Response, error) {
		if req.Tools != nil {
			return toolCallResponse("list_directory", map[string]any{"directory": "."}), nil
		}
		return textResponse("something went wrong with that tool"), nil
	}}

	a := newTestAgent(client, registry)
	answer := a.RunTurn(context.Background(), "list files", nil)
	if answer == "" {
		t.Fatal("turn must complete despite the panic")
	}
}

func TestModelErrorBecomesPlainTextAnswer(t *testing.T) {
	registry := tools.NewRegistry()
	countingTool(t, registry, "list_directory", nil)

	client := &stubClient{respond: func(req llm.Request) (*llm.Response, error) {
		return nil, errors.New("connection refused")
	}}

	a := newTestAgent(client, registry)
	answer := a.RunTurn(context.Background(), "what files are here?", nil)

	if !strings.Contains(answer, "connection refused") {
		t.Errorf("answer = %q", answer)
	}
	msgs := a.History().Messages()
	if msgs[len(msgs)-1].Role != "assistant" {
		t.Error("turn must always append an assistant message")
	}
}

func TestOversizedToolOutputTruncated(t *testing.T) {
	registry := tools.NewRegistry()
	countingTool(t, registry, "list_directory", func(ctx context.Context, args map[string]any) (string, error) {
		return strings.Repeat("a", 2000) + strings.Repeat("z", 2000), nil
	})

	client := &stubClient{respond: func(req llm.Request) (*llm.Response, error) {
		if req.Tools != nil {
			return toolCallResponse("list_directory", map[string]any{"directory": "."}), nil
		}
		return textResponse("lots of files"), nil
	}}

	hist := history.NewContext(100)
	hist.Append("system", DefaultSystemPrompt)
	a := New(client, registry, nil, hist, Settings{
		Model:              "test-model",
		ToolsEnabled:       true,
		MaxToolOutputChars: 500,
		HeadFraction:       0.6,
	}, nil)

	a.RunTurn(context.Background(), "list the big directory", nil)

	var toolMsg string
	for _, m := range a.History().Messages() {
		if m.Role == "tool" {
			toolMsg = m.Content
		}
	}
	if toolMsg == "" {
		t.Fatal("missing tool message")
	}
	if !strings.Contains(toolMsg, "omitted") || !strings.Contains(toolMsg, `"truncated":true`) {
		t.Errorf("tool message not truncated: %q", toolMsg[:120])
	}
	if !strings.Contains(toolMsg, "aaa") || !strings.Contains(toolMsg, "zzz") {
		t.Error("truncation must keep both head and tail")
	}
}

func TestStreamingTokensReachCallback(t *testing.T) {
	registry := tools.NewRegistry()
	countingTool(t, registry, "list_directory", func(ctx context.Context, args map[string]any) (string, error) {
		return "ok", nil
	})

	client := &stubClient{respond: func(req llm.Request) (*llm.Response, error) {
		if req.Tools != nil {
			return toolCallResponse("list_directory", map[string]any{"directory": "."}), nil
		}
		return textResponse("streamed answer"), nil
	}}

	var streamed strings.Builder
	a := newTestAgent(client, registry)
	answer := a.RunTurn(context.Background(), "list files", func(token string) {
		streamed.WriteString(token)
	})

	if streamed.String() != answer {
		t.Errorf("streamed %q, answer %q", streamed.String(), answer)
	}
}

func TestToolsDisabledSkipsDecision(t *testing.T) {
	registry := tools.NewRegistry()
	invocations := countingTool(t, registry, "list_directory", nil)

	client := &stubClient{respond: func(req llm.Request) (*llm.Response, error) {
		if req.Tools != nil {
			t.Error("disabled agent must not offer tool schemas")
		}
		return textResponse("plain answer"), nil
	}}

	hist := history.NewContext(100)
	hist.Append("system", DefaultSystemPrompt)
	a := New(client, registry, nil, hist, Settings{Model: "m", ToolsEnabled: false}, nil)

	a.RunTurn(context.Background(), "what files are here?", nil)
	if *invocations != 0 {
		t.Errorf("registry invoked %d times, want 0", *invocations)
	}
}
