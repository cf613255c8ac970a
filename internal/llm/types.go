// Package llm provides the language model client used by the
// orchestration loop.
package llm

import (
	"log/slog"
	"time"
)

// LevelTrace is below Debug, used for wire-level payload logging.
const LevelTrace = slog.Level(-8)

// Message represents a chat message in the Ollama wire format.
type Message struct {
	Role      string     `json:"role"` // system, user, assistant, tool
	Content   string     `json:"content"`
	ToolCalls []ToolCall `json:"tool_calls,omitempty"`
	// ToolName identifies which tool produced a tool-role message.
	ToolName string `json:"tool_name,omitempty"`
}

// ToolCall is a tool invocation requested by the model.
type ToolCall struct {
	Function ToolCallFunction `json:"function"`
}

// ToolCallFunction names the tool and carries its arguments. Ollama
// returns arguments as a JSON object, not a string.
type ToolCallFunction struct {
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments"`
}

// Options are sampling parameters passed through to the model.
type Options struct {
	Temperature float64 `json:"temperature,omitempty"`
	TopP        float64 `json:"top_p,omitempty"`
	NumPredict  int     `json:"num_predict,omitempty"`
}

// Request is a chat completion request. Tools is the schema set offered
// to the model; leave it nil for a plain completion.
type Request struct {
	Model    string
	Messages []Message
	Tools    []map[string]any
	Options  Options
}

// Response is the unified chat response. Wire format conversion happens
// inside the client; all fields here use proper Go types.
type Response struct {
	Model     string
	CreatedAt time.Time
	Message   Message
	Done      bool

	InputTokens  int
	OutputTokens int

	TotalDuration time.Duration
	EvalDuration  time.Duration
}

// ToolCall returns the first tool call in the response, or nil if the
// model answered with plain text. The orchestration loop acts on at
// most one call per turn.
func (r *Response) ToolCall() *ToolCall {
	if r == nil || len(r.Message.ToolCalls) == 0 {
		return nil
	}
	return &r.Message.ToolCalls[0]
}

// StreamCallback receives incremental text tokens during a streaming
// completion.
type StreamCallback func(token string)
