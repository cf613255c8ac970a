// Package history maintains the bounded conversation context and its
// persistence.
package history

import (
	"time"

	"github.com/jmnelson/ollie/internal/llm"
)

// Message is one turn in the conversation. Messages are never mutated
// after append; the context owns them exclusively.
type Message struct {
	Role      string    `json:"role"` // system, user, assistant, tool
	Content   string    `json:"content"`
	ToolName  string    `json:"tool_name,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Context is the ordered message log feeding the model, bounded by a
// message-count ceiling. The orchestration loop is the sole writer and
// calls are sequential per turn, so there is no internal locking.
type Context struct {
	messages    []Message
	maxMessages int
}

// NewContext creates a context with the given ceiling. A leading system
// prompt counts toward the ceiling but is pinned: eviction removes the
// oldest non-system message first.
func NewContext(maxMessages int) *Context {
	if maxMessages <= 0 {
		maxMessages = 100
	}
	return &Context{maxMessages: maxMessages}
}

// Append adds a message to the end of the log, evicting from the front
// until the ceiling holds. The first message is pinned when it carries
// the system role.
func (c *Context) Append(role, content string) {
	c.append(Message{Role: role, Content: content, Timestamp: time.Now()})
}

// AppendTool adds a tool-result message, tagged with the tool that
// produced it.
func (c *Context) AppendTool(toolName, content string) {
	c.append(Message{Role: "tool", Content: content, ToolName: toolName, Timestamp: time.Now()})
}

func (c *Context) append(m Message) {
	c.messages = append(c.messages, m)

	for len(c.messages) > c.maxMessages {
		if c.messages[0].Role == "system" && len(c.messages) > 1 {
			// Pinned system prompt: evict the next-oldest instead.
			c.messages = append(c.messages[:1], c.messages[2:]...)
		} else {
			c.messages = c.messages[1:]
		}
	}
}

// Len returns the current message count.
func (c *Context) Len() int {
	return len(c.messages)
}

// Messages returns a copy of the log for display and persistence.
func (c *Context) Messages() []Message {
	out := make([]Message, len(c.messages))
	copy(out, c.messages)
	return out
}

// RenderForModel produces the message sequence in the form the model
// client expects. The returned slice is a fresh copy; callers never
// mutate the context through it.
func (c *Context) RenderForModel() []llm.Message {
	out := make([]llm.Message, 0, len(c.messages))
	for _, m := range c.messages {
		out = append(out, llm.Message{
			Role:     m.Role,
			Content:  m.Content,
			ToolName: m.ToolName,
		})
	}
	return out
}

// Reset clears the conversation, keeping a pinned leading system prompt
// if one is present.
func (c *Context) Reset() {
	if len(c.messages) > 0 && c.messages[0].Role == "system" {
		c.messages = c.messages[:1]
		return
	}
	c.messages = nil
}
