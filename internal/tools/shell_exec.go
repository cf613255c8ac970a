package tools

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

// ShellExec runs shell commands for the bash tool.
type ShellExec struct {
	enabled         bool
	workingDir      string
	allowedPrefixes []string // empty = allow all
	deniedPatterns  []string // substrings to block
	defaultTimeout  time.Duration
	maxOutputBytes  int
}

// ShellExecConfig configures the shell executor.
type ShellExecConfig struct {
	Enabled         bool
	WorkingDir      string
	AllowedPrefixes []string
	DeniedPatterns  []string
	DefaultTimeout  time.Duration
	MaxOutputBytes  int
}

// DefaultShellExecConfig returns safe defaults: disabled, with a
// denylist for obviously destructive commands.
func DefaultShellExecConfig() ShellExecConfig {
	return ShellExecConfig{
		Enabled: false,
		DeniedPatterns: []string{
			"rm -rf /",
			"rm -rf /*",
			"mkfs",
			"dd if=",
			"> /dev/sd",
			"chmod -R 777 /",
			":(){ :|:& };:", // fork bomb
		},
		DefaultTimeout: 30 * time.Second,
		MaxOutputBytes: 100 * 1024,
	}
}

// NewShellExec creates a shell executor.
func NewShellExec(cfg ShellExecConfig) *ShellExec {
	if cfg.DefaultTimeout == 0 {
		cfg.DefaultTimeout = 30 * time.Second
	}
	if cfg.MaxOutputBytes == 0 {
		cfg.MaxOutputBytes = 100 * 1024
	}
	return &ShellExec{
		enabled:         cfg.Enabled,
		workingDir:      cfg.WorkingDir,
		allowedPrefixes: cfg.AllowedPrefixes,
		deniedPatterns:  cfg.DeniedPatterns,
		defaultTimeout:  cfg.DefaultTimeout,
		maxOutputBytes:  cfg.MaxOutputBytes,
	}
}

// Enabled reports whether shell execution is available.
func (s *ShellExec) Enabled() bool {
	return s.enabled
}

// ExecResult is the structured outcome of one command.
type ExecResult struct {
	Stdout   string `json:"stdout"`
	Stderr   string `json:"stderr"`
	ExitCode int    `json:"exit_code"`
	TimedOut bool   `json:"timed_out,omitempty"`
	Error    string `json:"error,omitempty"`
}

// maxExecTimeout caps per-call timeouts requested by the model.
const maxExecTimeout = 5 * time.Minute

// Exec runs command via sh -c, bounded by a timeout. A timed-out or
// failed command is reported in the result, not as an error; errors
// are reserved for commands the executor refuses to run.
func (s *ShellExec) Exec(ctx context.Context, command string, timeoutSec int, cwd string) (*ExecResult, error) {
	if !s.enabled {
		return nil, fmt.Errorf("shell execution is disabled")
	}

	cmdLower := strings.ToLower(command)
	for _, denied := range s.deniedPatterns {
		if strings.Contains(cmdLower, strings.ToLower(denied)) {
			return nil, fmt.Errorf("command blocked: matches denied pattern %q", denied)
		}
	}

	if len(s.allowedPrefixes) > 0 {
		allowed := false
		for _, prefix := range s.allowedPrefixes {
			if strings.HasPrefix(command, prefix) {
				allowed = true
				break
			}
		}
		if !allowed {
			return nil, fmt.Errorf("command not in allowlist")
		}
	}

	timeout := s.defaultTimeout
	if timeoutSec > 0 {
		timeout = time.Duration(timeoutSec) * time.Second
	}
	if timeout > maxExecTimeout {
		timeout = maxExecTimeout
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, "sh", "-c", command)
	switch {
	case cwd != "":
		cmd.Dir = cwd
	case s.workingDir != "":
		cmd.Dir = s.workingDir
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()

	result := &ExecResult{
		Stdout: capOutput(stdout.String(), s.maxOutputBytes),
		Stderr: capOutput(stderr.String(), s.maxOutputBytes),
	}

	if ctx.Err() == context.DeadlineExceeded {
		result.TimedOut = true
		result.Error = "command timed out"
		result.ExitCode = -1
		return result, nil
	}

	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			result.ExitCode = exitErr.ExitCode()
		} else {
			result.Error = err.Error()
			result.ExitCode = -1
		}
	}

	return result, nil
}

// capOutput truncates s to maxBytes, noting the cut.
func capOutput(s string, maxBytes int) string {
	if len(s) <= maxBytes {
		return s
	}
	return s[:maxBytes] + "\n\n[... output truncated ...]"
}
