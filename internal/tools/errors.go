// Package tools provides the tool registry and the builtin filesystem,
// shell, and web tools available to the agent.
//
// This file defines sentinel error types for tool lookup and argument
// validation. Both are capability failures, not transient execution
// failures: the orchestration loop synthesizes a failed result for the
// model instead of retrying.
package tools

import "fmt"

// ErrUnknownTool is returned when a call targets a tool that is not in
// the registry.
type ErrUnknownTool struct {
	Name string
}

func (e *ErrUnknownTool) Error() string {
	return fmt.Sprintf("unknown tool %q", e.Name)
}

// ErrInvalidArgs is returned when arguments fail a tool's declared
// schema before the handler is ever reached.
type ErrInvalidArgs struct {
	Tool   string
	Reason string
}

func (e *ErrInvalidArgs) Error() string {
	return fmt.Sprintf("invalid arguments for %q: %s", e.Tool, e.Reason)
}
