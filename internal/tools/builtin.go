package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

// RegisterFileTools adds the workspace file tools to the registry.
// Does nothing when no workspace is configured.
func RegisterFileTools(r *Registry, ft *FileTools) {
	if !ft.Enabled() {
		return
	}

	pathTarget := func(key string) func(args map[string]any) string {
		return func(args map[string]any) string {
			raw := stringArg(args, key)
			if abs, err := ft.Resolve(raw); err == nil {
				return abs
			}
			return raw
		}
	}

	r.MustRegister(&Tool{
		Name:        "read_file",
		Description: "Read the contents of a file in the workspace. Use offset and limit to window large files by line number.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"file_path": map[string]any{
					"type":        "string",
					"description": "Path to the file, relative to the workspace.",
				},
				"offset": map[string]any{
					"type":        "integer",
					"description": "1-indexed first line to read.",
				},
				"limit": map[string]any{
					"type":        "integer",
					"description": "Maximum number of lines to read.",
				},
			},
			"required": []string{"file_path"},
		},
		Kind:   "read",
		Target: pathTarget("file_path"),
		Handler: func(ctx context.Context, args map[string]any) (string, error) {
			return ft.Read(ctx, stringArg(args, "file_path"), intArg(args, "offset"), intArg(args, "limit"))
		},
	})

	r.MustRegister(&Tool{
		Name:        "write_file",
		Description: "Write content to a file in the workspace, creating it if needed. Overwrites existing content.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"file_path": map[string]any{
					"type":        "string",
					"description": "Path to the file, relative to the workspace.",
				},
				"content": map[string]any{
					"type":        "string",
					"description": "Full content to write.",
				},
				"create_backup": map[string]any{
					"type":        "boolean",
					"description": "Copy an existing file to <name>.bak first.",
				},
			},
			"required": []string{"file_path", "content"},
		},
		Kind:   "write",
		Target: pathTarget("file_path"),
		Handler: func(ctx context.Context, args map[string]any) (string, error) {
			path := stringArg(args, "file_path")
			err := ft.Write(ctx, path, stringArg(args, "content"), boolArg(args, "create_backup"))
			if err != nil {
				return "", err
			}
			return fmt.Sprintf("wrote %s", path), nil
		},
	})

	r.MustRegister(&Tool{
		Name:        "edit_file",
		Description: "Replace text in a file. old_string must match exactly once unless replace_all is set.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"file_path": map[string]any{
					"type":        "string",
					"description": "Path to the file, relative to the workspace.",
				},
				"old_string": map[string]any{
					"type":        "string",
					"description": "Exact text to replace.",
				},
				"new_string": map[string]any{
					"type":        "string",
					"description": "Replacement text.",
				},
				"replace_all": map[string]any{
					"type":        "boolean",
					"description": "Replace every occurrence.",
				},
			},
			"required": []string{"file_path", "old_string", "new_string"},
		},
		Kind:   "write",
		Target: pathTarget("file_path"),
		Handler: func(ctx context.Context, args map[string]any) (string, error) {
			n, err := ft.Edit(ctx,
				stringArg(args, "file_path"),
				stringArg(args, "old_string"),
				stringArg(args, "new_string"),
				boolArg(args, "replace_all"))
			if err != nil {
				return "", err
			}
			return fmt.Sprintf("replaced %d occurrence(s)", n), nil
		},
	})

	r.MustRegister(&Tool{
		Name:        "list_directory",
		Description: "List files in a workspace directory. Optional glob pattern filters entry names.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"directory": map[string]any{
					"type":        "string",
					"description": "Directory to list, relative to the workspace. Defaults to the workspace root.",
				},
				"pattern": map[string]any{
					"type":        "string",
					"description": "Glob pattern for entry names (e.g. *.go).",
				},
			},
		},
		Kind:   "read",
		Target: pathTarget("directory"),
		Handler: func(ctx context.Context, args map[string]any) (string, error) {
			dir := stringArg(args, "directory")
			if dir == "" {
				dir = "."
			}
			entries, err := ft.List(ctx, dir, stringArg(args, "pattern"))
			if err != nil {
				return "", err
			}
			if len(entries) == 0 {
				return fmt.Sprintf("no entries in %s", dir), nil
			}
			return strings.Join(entries, "\n"), nil
		},
	})

	r.MustRegister(&Tool{
		Name:        "glob",
		Description: "Find files under the workspace whose name matches a glob pattern.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"pattern": map[string]any{
					"type":        "string",
					"description": "Glob pattern matched against file names (e.g. *_test.go).",
				},
				"path": map[string]any{
					"type":        "string",
					"description": "Directory to search from. Defaults to the workspace root.",
				},
				"max_results": map[string]any{
					"type":        "integer",
					"description": "Maximum matches to return (default 100).",
				},
			},
			"required": []string{"pattern"},
		},
		Kind:   "read",
		Target: pathTarget("path"),
		Handler: func(ctx context.Context, args map[string]any) (string, error) {
			dir := stringArg(args, "path")
			if dir == "" {
				dir = "."
			}
			matches, err := ft.Glob(ctx, stringArg(args, "pattern"), dir, intArg(args, "max_results"))
			if err != nil {
				return "", err
			}
			if len(matches) == 0 {
				return "no files matched", nil
			}
			return strings.Join(matches, "\n"), nil
		},
	})

	r.MustRegister(&Tool{
		Name:        "grep",
		Description: "Search file contents under the workspace for a text pattern. Returns path:line: text matches.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"pattern": map[string]any{
					"type":        "string",
					"description": "Text to search for.",
				},
				"path": map[string]any{
					"type":        "string",
					"description": "Directory to search from. Defaults to the workspace root.",
				},
				"case_insensitive": map[string]any{
					"type":        "boolean",
					"description": "Ignore case when matching.",
				},
				"max_results": map[string]any{
					"type":        "integer",
					"description": "Maximum matches to return (default 50).",
				},
			},
			"required": []string{"pattern"},
		},
		Kind:   "read",
		Target: pathTarget("path"),
		Handler: func(ctx context.Context, args map[string]any) (string, error) {
			dir := stringArg(args, "path")
			if dir == "" {
				dir = "."
			}
			matches, err := ft.Grep(ctx, stringArg(args, "pattern"), dir, boolArg(args, "case_insensitive"), intArg(args, "max_results"))
			if err != nil {
				return "", err
			}
			if len(matches) == 0 {
				return "no matches", nil
			}
			return strings.Join(matches, "\n"), nil
		},
	})
}

// RegisterShellTool adds the bash tool backed by the shell executor.
// Does nothing when shell execution is disabled.
func RegisterShellTool(r *Registry, se *ShellExec) {
	if !se.Enabled() {
		return
	}

	r.MustRegister(&Tool{
		Name:        "bash",
		Description: "Execute a shell command and return stdout, stderr, and the exit code.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"command": map[string]any{
					"type":        "string",
					"description": "The command to run.",
				},
				"timeout": map[string]any{
					"type":        "integer",
					"description": "Timeout in seconds (default 30, max 300).",
				},
				"cwd": map[string]any{
					"type":        "string",
					"description": "Working directory for the command.",
				},
			},
			"required": []string{"command"},
		},
		Kind: "shell",
		Target: func(args map[string]any) string {
			return stringArg(args, "command")
		},
		Handler: func(ctx context.Context, args map[string]any) (string, error) {
			result, err := se.Exec(ctx, stringArg(args, "command"), intArg(args, "timeout"), stringArg(args, "cwd"))
			if err != nil {
				return "", err
			}
			out, err := json.Marshal(result)
			if err != nil {
				return "", fmt.Errorf("marshal result: %w", err)
			}
			return string(out), nil
		},
	})
}
