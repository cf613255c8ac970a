package llm

import "context"

// Client is the interface the orchestration loop depends on. The client
// imposes no timeout of its own; call sites bound every call with a
// context deadline and race it on a separate goroutine so a stalled
// model can be abandoned.
type Client interface {
	// Chat sends a chat completion request and blocks until the model
	// finishes or ctx is done.
	Chat(ctx context.Context, req Request) (*Response, error)

	// ChatStream is Chat with incremental token delivery. The callback
	// runs on the client's goroutine; it must not block for long.
	ChatStream(ctx context.Context, req Request, callback StreamCallback) (*Response, error)

	// Ping checks if the provider is reachable.
	Ping(ctx context.Context) error

	// ListModels returns the models the provider can serve.
	ListModels(ctx context.Context) ([]string, error)
}
