package llm

import (
	"encoding/json"
	"strings"
)

// textCall is the shape models use when they write a tool call into
// text content instead of the native tool_calls field.
type textCall struct {
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments"`
}

// ParseTextToolCalls extracts tool calls that a model wrote into its
// text content instead of the native tool_calls field. Handled formats:
//
//   - raw JSON object: {"name": "...", "arguments": {...}}
//   - JSON array of such objects
//   - tagged: <tool_call>{...}</tool_call>, with or without a closing tag
//
// Returns nil when the content is not a recognizable tool call.
func ParseTextToolCalls(content string) []ToolCall {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil
	}

	if strings.Contains(content, "<tool_call>") {
		start := strings.Index(content, "<tool_call>")
		end := strings.Index(content, "</tool_call>")
		if start != -1 && end > start {
			content = strings.TrimSpace(content[start+len("<tool_call>") : end])
		} else if start != -1 {
			content = strings.TrimSpace(content[start+len("<tool_call>"):])
		}
	}

	var calls []textCall
	if err := json.Unmarshal([]byte(content), &calls); err == nil {
		return toToolCalls(calls)
	}

	var single textCall
	if err := json.Unmarshal([]byte(content), &single); err == nil {
		return toToolCalls([]textCall{single})
	}

	return nil
}

func toToolCalls(calls []textCall) []ToolCall {
	var result []ToolCall
	for _, c := range calls {
		if c.Name == "" {
			continue
		}
		result = append(result, ToolCall{
			Function: ToolCallFunction{
				Name:      c.Name,
				Arguments: c.Arguments,
			},
		})
	}
	return result
}
