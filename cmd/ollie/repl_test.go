package main

import (
	"context"
	"io"
	"log/slog"
	"math"
	"strings"
	"testing"

	"github.com/jmnelson/ollie/internal/agent"
	"github.com/jmnelson/ollie/internal/config"
	"github.com/jmnelson/ollie/internal/history"
	"github.com/jmnelson/ollie/internal/llm"
	"github.com/jmnelson/ollie/internal/tools"
)

type scriptedClient struct {
	reply  string
	models []string
}

func (s *scriptedClient) Chat(ctx context.Context, req llm.Request) (*llm.Response, error) {
	return &llm.Response{Message: llm.Message{Role: "assistant", Content: s.reply}, Done: true}, nil
}

func (s *scriptedClient) ChatStream(ctx context.Context, req llm.Request, cb llm.StreamCallback) (*llm.Response, error) {
	if cb != nil {
		cb(s.reply)
	}
	return &llm.Response{Message: llm.Message{Role: "assistant", Content: s.reply}, Done: true}, nil
}

func (s *scriptedClient) Ping(ctx context.Context) error { return nil }

func (s *scriptedClient) ListModels(ctx context.Context) ([]string, error) {
	return s.models, nil
}

func newTestREPL(t *testing.T, client llm.Client) (*repl, *strings.Builder) {
	t.Helper()

	registry := tools.NewRegistry()
	registry.MustRegister(&tools.Tool{
		Name:    "read_file",
		Handler: func(ctx context.Context, args map[string]any) (string, error) { return "", nil },
	})

	hist := history.NewContext(50)
	hist.Append("system", agent.DefaultSystemPrompt)
	a := agent.New(client, registry, nil, hist, agent.Settings{
		Model:        "test-model",
		ToolsEnabled: true,
	}, nil)

	var out strings.Builder
	return &repl{
		agent:    a,
		client:   client,
		registry: registry,
		cfg:      config.Default(),
		logger:   slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.Level(math.MaxInt)})),
		stdout:   &out,
		saveDir:  t.TempDir(),
	}, &out
}

func TestDispatchHelp(t *testing.T) {
	r, out := newTestREPL(t, &scriptedClient{})
	if quit := r.dispatch(context.Background(), "/help"); quit {
		t.Error("/help must not quit")
	}
	if !strings.Contains(out.String(), "/model") {
		t.Errorf("help output = %q", out.String())
	}
}

func TestDispatchExit(t *testing.T) {
	r, _ := newTestREPL(t, &scriptedClient{})
	if !r.dispatch(context.Background(), "/exit") {
		t.Error("/exit must quit")
	}
	if !r.dispatch(context.Background(), "/quit") {
		t.Error("/quit must quit")
	}
}

func TestDispatchTools(t *testing.T) {
	r, out := newTestREPL(t, &scriptedClient{})
	r.dispatch(context.Background(), "/tools")
	if !strings.Contains(out.String(), "read_file") {
		t.Errorf("tools output = %q", out.String())
	}
}

func TestDispatchModel(t *testing.T) {
	r, out := newTestREPL(t, &scriptedClient{models: []string{"qwen3:4b", "llama3.2"}})

	r.dispatch(context.Background(), "/model")
	if !strings.Contains(out.String(), "test-model") || !strings.Contains(out.String(), "llama3.2") {
		t.Errorf("model output = %q", out.String())
	}

	r.dispatch(context.Background(), "/model llama3.2")
	if r.agent.Model() != "llama3.2" {
		t.Errorf("model = %q", r.agent.Model())
	}
}

func TestDispatchAgentToggle(t *testing.T) {
	r, _ := newTestREPL(t, &scriptedClient{})

	r.dispatch(context.Background(), "/agent off")
	if r.agent.ToolsEnabled() {
		t.Error("tools still enabled")
	}
	r.dispatch(context.Background(), "/agent on")
	if !r.agent.ToolsEnabled() {
		t.Error("tools still disabled")
	}
}

func TestDispatchClear(t *testing.T) {
	r, _ := newTestREPL(t, &scriptedClient{reply: "hello"})
	r.submit(context.Background(), "hi")
	if r.agent.History().Len() < 3 {
		t.Fatalf("history len = %d", r.agent.History().Len())
	}

	r.dispatch(context.Background(), "/clear")
	if r.agent.History().Len() != 1 {
		t.Errorf("history len after clear = %d, want 1 (system prompt)", r.agent.History().Len())
	}
}

func TestDispatchSaveLoad(t *testing.T) {
	r, out := newTestREPL(t, &scriptedClient{reply: "remembered"})
	r.submit(context.Background(), "note this down")

	r.dispatch(context.Background(), "/save")
	if !strings.Contains(out.String(), "saved to") {
		t.Fatalf("save output = %q", out.String())
	}
	path := strings.TrimSpace(strings.Split(out.String(), "saved to ")[1])

	r.dispatch(context.Background(), "/clear")
	r.dispatch(context.Background(), "/load "+path)
	if !strings.Contains(out.String(), "loaded") {
		t.Errorf("load output = %q", out.String())
	}

	var found bool
	for _, m := range r.agent.History().Messages() {
		if m.Content == "remembered" {
			found = true
		}
	}
	if !found {
		t.Error("loaded conversation missing saved message")
	}
}

func TestDispatchUnknown(t *testing.T) {
	r, out := newTestREPL(t, &scriptedClient{})
	r.dispatch(context.Background(), "/bogus")
	if !strings.Contains(out.String(), "unknown command") {
		t.Errorf("output = %q", out.String())
	}
}

func TestLoopSession(t *testing.T) {
	r, out := newTestREPL(t, &scriptedClient{reply: "hi there"})

	stdin := strings.NewReader("hello\n/exit\n")
	if err := r.loop(context.Background(), stdin); err != nil {
		t.Fatalf("loop failed: %v", err)
	}
	if !strings.Contains(out.String(), "hi there") {
		t.Errorf("session output = %q", out.String())
	}
}
