// Package agent implements the tool-orchestration loop: per user turn
// the model decides whether to call a tool, the tool runs under a
// permission gate and timeout, and a final model call streams the
// answer. Every turn completes with a reply; timeouts degrade to a
// plain completion without tools.
package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"time"

	"github.com/jmnelson/ollie/internal/history"
	"github.com/jmnelson/ollie/internal/llm"
	"github.com/jmnelson/ollie/internal/permissions"
	"github.com/jmnelson/ollie/internal/tools"
)

// DefaultSystemPrompt is used when the config does not override it.
const DefaultSystemPrompt = `You are ollie, a helpful local assistant with access to tools for
reading and writing files, running shell commands, and looking things
up on the web. Use a tool when the question needs one; answer directly
when it does not. Be concise.`

// synthesisInstruction steers the final call after a tool round. It is
// sent with the request but never stored in the conversation.
const synthesisInstruction = `Answer the user's question using the tool result above. Do not
describe the tool invocation itself.`

// Settings are the loop's tunables, taken from AgentConfig.
type Settings struct {
	Model        string
	ToolsEnabled bool
	LLMTimeout   time.Duration
	ToolTimeout  time.Duration
	// MaxToolOutputChars bounds a tool payload fed back to the model;
	// HeadFraction is the share kept from its start.
	MaxToolOutputChars int
	HeadFraction       float64
	Options            llm.Options
}

// Agent runs one conversation.
type Agent struct {
	llm      llm.Client
	registry *tools.Registry
	gate     *permissions.Gate
	history  *history.Context
	settings Settings
	logger   *slog.Logger

	store          *history.Store
	conversationID string
}

// New creates an Agent. The gate may be nil, which allows everything.
func New(client llm.Client, registry *tools.Registry, gate *permissions.Gate, hist *history.Context, settings Settings, logger *slog.Logger) *Agent {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.Level(math.MaxInt)}))
	}
	if settings.LLMTimeout <= 0 {
		settings.LLMTimeout = 15 * time.Second
	}
	if settings.ToolTimeout <= 0 {
		settings.ToolTimeout = 30 * time.Second
	}
	return &Agent{
		llm:      client,
		registry: registry,
		gate:     gate,
		history:  hist,
		settings: settings,
		logger:   logger,
	}
}

// AttachStore enables transcript persistence for this conversation.
func (a *Agent) AttachStore(store *history.Store, conversationID string) {
	a.store = store
	a.conversationID = conversationID
}

// History returns the live conversation context.
func (a *Agent) History() *history.Context {
	return a.history
}

// ConversationID returns the persistent conversation ID, or "".
func (a *Agent) ConversationID() string {
	return a.conversationID
}

// SetModel switches the model for subsequent turns.
func (a *Agent) SetModel(model string) {
	a.settings.Model = model
}

// Model returns the current model name.
func (a *Agent) Model() string {
	return a.settings.Model
}

// SetToolsEnabled toggles the tool round.
func (a *Agent) SetToolsEnabled(enabled bool) {
	a.settings.ToolsEnabled = enabled
}

// ToolsEnabled reports whether the tool round is active.
func (a *Agent) ToolsEnabled() bool {
	return a.settings.ToolsEnabled
}

// ToolResult is the structured outcome of one tool round, fed back to
// the model as a tool-role message.
type ToolResult struct {
	OK        bool   `json:"ok"`
	Tool      string `json:"tool"`
	Payload   string `json:"payload,omitempty"`
	Error     string `json:"error,omitempty"`
	Truncated bool   `json:"truncated,omitempty"`
}

var (
	errModelTimeout = errors.New("model call timed out")
	errToolTimeout  = errors.New("tool execution timed out")
)

// RunTurn processes one user input and returns the assistant's answer.
// Streamed tokens go to stream as they arrive (stream may be nil). The
// turn always produces an answer: internal errors and panics become
// plain-text replies, never a crashed process.
func (a *Agent) RunTurn(ctx context.Context, input string, stream llm.StreamCallback) (answer string) {
	a.record("user", input)
	a.history.Append("user", input)

	defer func() {
		if r := recover(); r != nil {
			a.logger.Error("turn panicked", "panic", r)
			answer = "I hit an internal error handling that. Please try again."
		}
		a.history.Append("assistant", answer)
		a.record("assistant", answer)
	}()

	out, err := a.runTurn(ctx, input, stream)
	if err != nil {
		a.logger.Error("turn failed", "error", err)
		return fmt.Sprintf("I couldn't complete that: %v", err)
	}
	return out
}

func (a *Agent) runTurn(ctx context.Context, input string, stream llm.StreamCallback) (string, error) {
	useTools := a.settings.ToolsEnabled && a.registry != nil && len(a.registry.Names()) > 0

	if !useTools || isGreeting(input) {
		resp, err := a.callModel(ctx, a.request(a.history.RenderForModel(), nil), stream)
		if err != nil {
			return "", err
		}
		return resp.Message.Content, nil
	}

	// Decision call: offer the tool schemas, bounded by the model
	// timeout. Not streamed, since the response may be a tool call
	// rather than prose.
	decision, err := a.callModel(ctx, a.request(a.history.RenderForModel(), a.registry.List()), nil)
	if errors.Is(err, errModelTimeout) {
		a.logger.Warn("model decision timed out, answering without tools",
			"timeout", a.settings.LLMTimeout)
		return a.fallback(ctx, stream)
	}
	if err != nil {
		return "", err
	}

	call := decision.ToolCall()
	if call == nil {
		if stream != nil {
			stream(decision.Message.Content)
		}
		return decision.Message.Content, nil
	}

	result, err := a.executeTool(ctx, call)
	if errors.Is(err, errToolTimeout) {
		a.logger.Warn("tool timed out, answering without tools",
			"tool", call.Function.Name, "timeout", a.settings.ToolTimeout)
		return a.fallback(ctx, stream)
	}
	if err != nil {
		return "", err
	}

	resultJSON, err := json.Marshal(result)
	if err != nil {
		return "", fmt.Errorf("encode tool result: %w", err)
	}
	a.history.AppendTool(call.Function.Name, string(resultJSON))

	// Final call: tool result plus a synthesis instruction, no tool
	// schemas. One tool round per turn.
	msgs := append(a.history.RenderForModel(), llm.Message{
		Role:    "system",
		Content: synthesisInstruction,
	})
	final, err := a.callModel(ctx, a.request(msgs, nil), stream)
	if err != nil {
		return "", err
	}
	return final.Message.Content, nil
}

// fallback answers without tool schemas after a timeout.
func (a *Agent) fallback(ctx context.Context, stream llm.StreamCallback) (string, error) {
	resp, err := a.callModel(ctx, a.request(a.history.RenderForModel(), nil), stream)
	if err != nil {
		return "", err
	}
	return resp.Message.Content, nil
}

func (a *Agent) request(msgs []llm.Message, toolSchemas []map[string]any) llm.Request {
	return llm.Request{
		Model:    a.settings.Model,
		Messages: msgs,
		Tools:    toolSchemas,
		Options:  a.settings.Options,
	}
}

type chatOutcome struct {
	resp *llm.Response
	err  error
}

// callModel runs one model call on its own goroutine and races it
// against the model timeout. A timed-out call is abandoned, not
// joined; the buffered channel lets the goroutine finish and be
// collected whenever the client returns.
func (a *Agent) callModel(ctx context.Context, req llm.Request, stream llm.StreamCallback) (*llm.Response, error) {
	ch := make(chan chatOutcome, 1)
	go func() {
		var out chatOutcome
		defer func() {
			if r := recover(); r != nil {
				out = chatOutcome{err: fmt.Errorf("model call panicked: %v", r)}
			}
			ch <- out
		}()
		if stream != nil {
			out.resp, out.err = a.llm.ChatStream(ctx, req, stream)
		} else {
			out.resp, out.err = a.llm.Chat(ctx, req)
		}
	}()

	timer := time.NewTimer(a.settings.LLMTimeout)
	defer timer.Stop()

	select {
	case out := <-ch:
		return out.resp, out.err
	case <-timer.C:
		return nil, errModelTimeout
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

type toolOutcome struct {
	payload string
	err     error
}

// executeTool validates, gates, and runs one tool call. Validation and
// permission failures come back as ok=false results; only a timeout is
// an error, and it aborts the tool round.
func (a *Agent) executeTool(ctx context.Context, call *llm.ToolCall) (*ToolResult, error) {
	name := call.Function.Name
	args := call.Function.Arguments

	// Fail closed: an unknown tool and bad arguments get the same
	// treatment, a failed result that never reaches a handler.
	if err := a.registry.ValidateArgs(name, args); err != nil {
		a.logger.Warn("tool call rejected", "tool", name, "error", err)
		return &ToolResult{Tool: name, Error: err.Error()}, nil
	}

	if decision, reason := a.checkPermission(name, args); decision != permissions.Allow {
		a.logger.Warn("tool call not permitted",
			"tool", name, "decision", decision.String(), "reason", reason)
		return &ToolResult{
			Tool:  name,
			Error: fmt.Sprintf("not permitted (%s): %s", decision, reason),
		}, nil
	}

	a.logger.Info("executing tool", "tool", name)

	runCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), a.settings.ToolTimeout)
	ch := make(chan toolOutcome, 1)
	go func() {
		var out toolOutcome
		defer func() {
			if r := recover(); r != nil {
				out = toolOutcome{err: fmt.Errorf("tool panicked: %v", r)}
			}
			cancel()
			ch <- out
		}()
		out.payload, out.err = a.registry.Invoke(runCtx, name, args)
	}()

	timer := time.NewTimer(a.settings.ToolTimeout)
	defer timer.Stop()

	select {
	case out := <-ch:
		if out.err != nil {
			return &ToolResult{Tool: name, Error: out.err.Error()}, nil
		}
		payload, truncated := TruncateOutput(out.payload, a.settings.MaxToolOutputChars, a.settings.HeadFraction)
		return &ToolResult{OK: true, Tool: name, Payload: payload, Truncated: truncated}, nil
	case <-timer.C:
		return nil, errToolTimeout
	}
}

// checkPermission consults the gate for the tool's operation kind and
// target. Ask counts as a refusal; there is no interactive prompt in
// the loop.
func (a *Agent) checkPermission(name string, args map[string]any) (permissions.Decision, string) {
	if a.gate == nil {
		return permissions.Allow, ""
	}
	t := a.registry.Get(name)
	if t == nil || t.Kind == "" {
		return permissions.Allow, ""
	}
	target := ""
	if t.Target != nil {
		target = t.Target(args)
	}
	return a.gate.Check(t.Kind, target)
}

func (a *Agent) record(role, content string) {
	if a.store == nil {
		return
	}
	err := a.store.Record(a.conversationID, history.Message{
		Role:      role,
		Content:   content,
		Timestamp: time.Now(),
	})
	if err != nil {
		a.logger.Warn("transcript record failed", "error", err)
	}
}
