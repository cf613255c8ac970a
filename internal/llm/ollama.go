package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/jmnelson/ollie/internal/httpkit"
)

// Ollama is a client for the Ollama chat API.
type Ollama struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewOllama creates an Ollama client. The http.Client carries no request
// timeout; streaming responses can outlive any fixed budget, so the
// orchestration loop bounds each call with a context deadline instead.
func NewOllama(baseURL string, logger *slog.Logger) *Ollama {
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Ollama{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: httpkit.NewClient(httpkit.WithTimeout(0)),
		logger:     logger,
	}
}

// chatRequest is the wire format for POST /api/chat.
type chatRequest struct {
	Model    string           `json:"model"`
	Messages []Message        `json:"messages"`
	Stream   bool             `json:"stream"`
	Tools    []map[string]any `json:"tools,omitempty"`
	Options  map[string]any   `json:"options,omitempty"`
}

// chatChunk is one NDJSON element of a chat response. Non-streaming
// responses are a single chunk with done=true.
type chatChunk struct {
	Model     string  `json:"model"`
	CreatedAt string  `json:"created_at"`
	Message   Message `json:"message"`
	Done      bool    `json:"done"`

	PromptEvalCount int   `json:"prompt_eval_count,omitempty"`
	EvalCount       int   `json:"eval_count,omitempty"`
	TotalDuration   int64 `json:"total_duration,omitempty"`
	EvalDuration    int64 `json:"eval_duration,omitempty"`
}

// Chat sends a chat completion request and waits for the full response.
func (c *Ollama) Chat(ctx context.Context, req Request) (*Response, error) {
	return c.ChatStream(ctx, req, nil)
}

// ChatStream sends a chat request. With a non-nil callback the request
// streams and each content token is delivered as it arrives; tool calls
// are surfaced on the final response either way.
func (c *Ollama) ChatStream(ctx context.Context, req Request, callback StreamCallback) (*Response, error) {
	stream := callback != nil

	wire := chatRequest{
		Model:    req.Model,
		Messages: req.Messages,
		Stream:   stream,
		Tools:    req.Tools,
		Options:  encodeOptions(req.Options),
	}

	body, err := json.Marshal(wire)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	c.logger.Log(ctx, LevelTrace, "ollama chat request", "payload", string(body))

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/chat", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("ollama request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("ollama API error %d: %s", resp.StatusCode, httpkit.ReadErrorBody(resp.Body, 4096))
	}

	var final *Response
	if stream {
		final, err = c.readStream(resp.Body, callback)
	} else {
		final, err = c.readSingle(resp.Body)
	}
	if err != nil {
		return nil, err
	}

	// Some models emit tool calls as JSON text instead of the native
	// tool_calls field. Recover those before the loop inspects the
	// response. Only applies when tools were offered: a call without
	// schemas can never produce a tool call, even if the text looks
	// like one.
	if len(req.Tools) > 0 && len(final.Message.ToolCalls) == 0 && final.Message.Content != "" {
		if parsed := ParseTextToolCalls(final.Message.Content); len(parsed) > 0 {
			final.Message.ToolCalls = parsed
			final.Message.Content = ""
		}
	}

	return final, nil
}

func (c *Ollama) readSingle(body io.Reader) (*Response, error) {
	var chunk chatChunk
	if err := json.NewDecoder(body).Decode(&chunk); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return chunk.toResponse(), nil
}

func (c *Ollama) readStream(body io.Reader, callback StreamCallback) (*Response, error) {
	var (
		content   strings.Builder
		toolCalls []ToolCall
		decoder   = json.NewDecoder(body)
	)

	for {
		var chunk chatChunk
		if err := decoder.Decode(&chunk); err != nil {
			if err == io.EOF {
				break
			}
			return nil, fmt.Errorf("decode stream chunk: %w", err)
		}

		if chunk.Message.Content != "" {
			content.WriteString(chunk.Message.Content)
			callback(chunk.Message.Content)
		}

		// Tool calls arrive on the closing chunk.
		if len(chunk.Message.ToolCalls) > 0 {
			toolCalls = chunk.Message.ToolCalls
		}

		if chunk.Done {
			final := chunk.toResponse()
			final.Message.Content = content.String()
			final.Message.ToolCalls = toolCalls
			return final, nil
		}
	}

	// Stream ended without a done chunk; return what accumulated.
	return &Response{
		Message: Message{
			Role:      "assistant",
			Content:   content.String(),
			ToolCalls: toolCalls,
		},
	}, nil
}

func (ch *chatChunk) toResponse() *Response {
	created, _ := time.Parse(time.RFC3339Nano, ch.CreatedAt)
	return &Response{
		Model:         ch.Model,
		CreatedAt:     created,
		Message:       ch.Message,
		Done:          ch.Done,
		InputTokens:   ch.PromptEvalCount,
		OutputTokens:  ch.EvalCount,
		TotalDuration: time.Duration(ch.TotalDuration),
		EvalDuration:  time.Duration(ch.EvalDuration),
	}
}

func encodeOptions(o Options) map[string]any {
	opts := make(map[string]any)
	if o.Temperature > 0 {
		opts["temperature"] = o.Temperature
	}
	if o.TopP > 0 {
		opts["top_p"] = o.TopP
	}
	if o.NumPredict > 0 {
		opts["num_predict"] = o.NumPredict
	}
	if len(opts) == 0 {
		return nil
	}
	return opts
}

// Ping checks if Ollama is reachable.
func (c *Ollama) Ping(ctx context.Context) error {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/tags", nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("ollama unreachable: %w", err)
	}
	httpkit.DrainAndClose(resp.Body, 4096)

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("ollama API error %d", resp.StatusCode)
	}
	return nil
}

// ListModels returns the names of locally available models.
func (c *Ollama) ListModels(ctx context.Context) ([]string, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/tags", nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("ollama request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("ollama API error %d", resp.StatusCode)
	}

	var result struct {
		Models []struct {
			Name string `json:"name"`
		} `json:"models"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	names := make([]string, len(result.Models))
	for i, m := range result.Models {
		names[i] = m.Name
	}
	return names, nil
}
