package tools

import (
	"context"
	"errors"
	"testing"
)

func registerEcho(t *testing.T, r *Registry) {
	t.Helper()
	err := r.Register(&Tool{
		Name:        "echo",
		Description: "Echo the message back.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"message": map[string]any{"type": "string"},
				"count":   map[string]any{"type": "integer"},
			},
			"required": []string{"message"},
		},
		Handler: func(ctx context.Context, args map[string]any) (string, error) {
			return stringArg(args, "message"), nil
		},
	})
	if err != nil {
		t.Fatalf("Register failed: %v", err)
	}
}

func TestRegistryValidateArgs(t *testing.T) {
	r := NewRegistry()
	registerEcho(t, r)

	tests := []struct {
		name    string
		tool    string
		args    map[string]any
		wantErr bool
	}{
		{"valid", "echo", map[string]any{"message": "hi"}, false},
		{"valid with optional", "echo", map[string]any{"message": "hi", "count": float64(3)}, false},
		{"missing required", "echo", map[string]any{"count": float64(3)}, true},
		{"wrong type", "echo", map[string]any{"message": 42}, true},
		{"unknown tool", "nope", map[string]any{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := r.ValidateArgs(tt.tool, tt.args)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateArgs() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestRegistryValidateArgs_ErrorTypes(t *testing.T) {
	r := NewRegistry()
	registerEcho(t, r)

	var unknown *ErrUnknownTool
	if err := r.ValidateArgs("nope", nil); !errors.As(err, &unknown) {
		t.Errorf("expected ErrUnknownTool, got %T", err)
	}

	var invalid *ErrInvalidArgs
	if err := r.ValidateArgs("echo", map[string]any{}); !errors.As(err, &invalid) {
		t.Errorf("expected ErrInvalidArgs, got %T", err)
	}
}

func TestRegistryInvoke(t *testing.T) {
	r := NewRegistry()
	registerEcho(t, r)

	out, err := r.Invoke(context.Background(), "echo", map[string]any{"message": "hello"})
	if err != nil {
		t.Fatalf("Invoke failed: %v", err)
	}
	if out != "hello" {
		t.Errorf("output = %q, want hello", out)
	}
}

func TestRegistryInvoke_RejectsBadArgs(t *testing.T) {
	called := false
	r := NewRegistry()
	r.MustRegister(&Tool{
		Name: "strict",
		Parameters: map[string]any{
			"type":       "object",
			"properties": map[string]any{"n": map[string]any{"type": "integer"}},
			"required":   []string{"n"},
		},
		Handler: func(ctx context.Context, args map[string]any) (string, error) {
			called = true
			return "", nil
		},
	})

	if _, err := r.Invoke(context.Background(), "strict", map[string]any{}); err == nil {
		t.Error("expected validation error")
	}
	if called {
		t.Error("handler must not run when validation fails")
	}
}

func TestRegistryRejectsDuplicate(t *testing.T) {
	r := NewRegistry()
	registerEcho(t, r)

	err := r.Register(&Tool{Name: "echo", Handler: func(ctx context.Context, args map[string]any) (string, error) { return "", nil }})
	if err == nil {
		t.Error("expected duplicate registration error")
	}
}

func TestRegistryList(t *testing.T) {
	r := NewRegistry()
	registerEcho(t, r)

	list := r.List()
	if len(list) != 1 {
		t.Fatalf("expected 1 tool, got %d", len(list))
	}
	if list[0]["type"] != "function" {
		t.Errorf("unexpected wire shape: %v", list[0])
	}
	fn, ok := list[0]["function"].(map[string]any)
	if !ok || fn["name"] != "echo" {
		t.Errorf("unexpected function block: %v", list[0])
	}
}

func TestRegistryNamesSorted(t *testing.T) {
	r := NewRegistry()
	for _, name := range []string{"zeta", "alpha", "mid"} {
		r.MustRegister(&Tool{
			Name:    name,
			Handler: func(ctx context.Context, args map[string]any) (string, error) { return "", nil },
		})
	}

	names := r.Names()
	if names[0] != "alpha" || names[2] != "zeta" {
		t.Errorf("names not sorted: %v", names)
	}
}
