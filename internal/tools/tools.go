package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// Handler executes one tool call. The returned string is the payload
// fed back to the model (usually JSON); an error becomes a failed
// result, never a propagated failure.
type Handler func(ctx context.Context, args map[string]any) (string, error)

// Tool is one callable operation with a declared parameter schema.
type Tool struct {
	Name        string
	Description string
	// Parameters is a JSON Schema object describing the arguments.
	Parameters map[string]any
	// Kind is the permission operation this tool performs (see the
	// permissions package: read, write, shell, fetch).
	Kind string
	// Target extracts the permission target (path, command, URL) from
	// the arguments for the gate check.
	Target func(args map[string]any) string
	Handler Handler

	compiled *jsonschema.Schema
}

// Registry holds the available tools.
type Registry struct {
	tools map[string]*Tool
}

// NewRegistry creates an empty tool registry.
func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]*Tool)}
}

// Register adds a tool, compiling its parameter schema. Malformed
// schemas are a programming error surfaced at startup.
func (r *Registry) Register(t *Tool) error {
	if t.Name == "" {
		return fmt.Errorf("tool has no name")
	}
	if _, exists := r.tools[t.Name]; exists {
		return fmt.Errorf("tool %q already registered", t.Name)
	}

	if t.Parameters != nil {
		raw, err := json.Marshal(t.Parameters)
		if err != nil {
			return fmt.Errorf("marshal schema for %q: %w", t.Name, err)
		}
		compiler := jsonschema.NewCompiler()
		if err := compiler.AddResource(t.Name+".json", bytes.NewReader(raw)); err != nil {
			return fmt.Errorf("add schema resource for %q: %w", t.Name, err)
		}
		t.compiled, err = compiler.Compile(t.Name + ".json")
		if err != nil {
			return fmt.Errorf("compile schema for %q: %w", t.Name, err)
		}
	}

	r.tools[t.Name] = t
	return nil
}

// MustRegister is Register for startup wiring, panicking on schema
// errors.
func (r *Registry) MustRegister(t *Tool) {
	if err := r.Register(t); err != nil {
		panic(err)
	}
}

// Get retrieves a tool by name, or nil.
func (r *Registry) Get(name string) *Tool {
	return r.tools[name]
}

// Names returns the registered tool names, sorted.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// List returns all tool schemas in the wire shape the model expects.
func (r *Registry) List() []map[string]any {
	var result []map[string]any
	for _, name := range r.Names() {
		t := r.tools[name]
		result = append(result, map[string]any{
			"type": "function",
			"function": map[string]any{
				"name":        t.Name,
				"description": t.Description,
				"parameters":  t.Parameters,
			},
		})
	}
	return result
}

// ValidateArgs checks args against the tool's declared schema. It fails
// closed: an unknown tool and a schema violation are both errors, and
// nothing reaches a handler until validation passes.
func (r *Registry) ValidateArgs(name string, args map[string]any) error {
	t := r.tools[name]
	if t == nil {
		return &ErrUnknownTool{Name: name}
	}
	if t.compiled == nil {
		return nil
	}

	// Round-trip through JSON so argument values carry the types the
	// validator expects, regardless of how the map was built.
	raw, err := json.Marshal(args)
	if err != nil {
		return &ErrInvalidArgs{Tool: name, Reason: err.Error()}
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return &ErrInvalidArgs{Tool: name, Reason: err.Error()}
	}
	if v == nil {
		v = map[string]any{}
	}

	if err := t.compiled.Validate(v); err != nil {
		return &ErrInvalidArgs{Tool: name, Reason: err.Error()}
	}
	return nil
}

// Invoke executes a tool by name. Arguments are validated against the
// schema; no permission check happens here. Callers consult the gate
// before getting here.
func (r *Registry) Invoke(ctx context.Context, name string, args map[string]any) (string, error) {
	if err := r.ValidateArgs(name, args); err != nil {
		return "", err
	}
	return r.tools[name].Handler(ctx, args)
}

// Argument extraction helpers shared by the builtin tools. JSON decoding
// yields float64 for all numbers.

func stringArg(args map[string]any, key string) string {
	s, _ := args[key].(string)
	return s
}

func intArg(args map[string]any, key string) int {
	if f, ok := args[key].(float64); ok {
		return int(f)
	}
	return 0
}

func boolArg(args map[string]any, key string) bool {
	b, _ := args[key].(bool)
	return b
}
