// Package permissions implements the policy gate consulted before any
// tool touches the filesystem, shell, or network.
package permissions

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
)

// Decision is the outcome of a policy check. The orchestration loop is
// fully automated, so Ask is treated the same as Deny by callers.
type Decision int

const (
	Allow Decision = iota
	Deny
	Ask
)

func (d Decision) String() string {
	switch d {
	case Allow:
		return "allow"
	case Deny:
		return "deny"
	case Ask:
		return "ask"
	default:
		return "unknown"
	}
}

// Operation kinds passed to Check.
const (
	OpRead  = "read"  // read a file or directory listing
	OpWrite = "write" // create, modify, or delete a file
	OpShell = "shell" // execute a shell command
	OpFetch = "fetch" // outbound web request
)

// Policy is the declarative permission configuration.
type Policy struct {
	// Mode is strict, moderate, or permissive.
	//   strict:     only explicitly allowed paths; writes outside them Ask.
	//   moderate:   workspace and allowed paths; writes elsewhere Ask.
	//   permissive: everything except denied entries.
	Mode string

	// Workspace is the agent's working root; always allowed.
	Workspace string

	// AllowedPaths and DeniedPaths are path prefixes. ${CWD}, ${HOME},
	// and ~ are expanded. A denied match always wins.
	AllowedPaths []string
	DeniedPaths  []string

	// DeniedCommands are substrings that block a shell command.
	DeniedCommands []string

	// AllowedHosts restricts OpFetch targets. Empty allows any host.
	AllowedHosts []string
}

// Gate evaluates tool targets against a Policy.
type Gate struct {
	mode           string
	workspace      string
	allowedPaths   []string
	deniedPaths    []string
	deniedCommands []string
	allowedHosts   []string
}

// NewGate compiles a Policy into a Gate. Path patterns are expanded and
// cleaned once, up front.
func NewGate(p Policy) *Gate {
	mode := p.Mode
	if mode == "" {
		mode = "moderate"
	}

	g := &Gate{
		mode:           mode,
		deniedCommands: p.DeniedCommands,
		allowedHosts:   p.AllowedHosts,
	}

	if p.Workspace != "" {
		g.workspace = expandPath(p.Workspace)
	}
	for _, ap := range p.AllowedPaths {
		g.allowedPaths = append(g.allowedPaths, expandPath(ap))
	}
	for _, dp := range p.DeniedPaths {
		g.deniedPaths = append(g.deniedPaths, expandPath(dp))
	}

	return g
}

// Check returns the policy decision for one operation on one target,
// with a human-readable reason for anything other than Allow. The
// reason is what the model sees in the failed tool result.
func (g *Gate) Check(kind, target string) (Decision, string) {
	switch kind {
	case OpRead, OpWrite:
		return g.checkPath(kind, target)
	case OpShell:
		return g.checkCommand(target)
	case OpFetch:
		return g.checkURL(target)
	default:
		return Deny, fmt.Sprintf("unknown operation kind %q", kind)
	}
}

func (g *Gate) checkPath(kind, target string) (Decision, string) {
	path := expandPath(target)

	for _, dp := range g.deniedPaths {
		if underPath(path, dp) {
			return Deny, fmt.Sprintf("path %s is denied by policy", target)
		}
	}

	allowed := underPath(path, g.workspace)
	if !allowed {
		for _, ap := range g.allowedPaths {
			if underPath(path, ap) {
				allowed = true
				break
			}
		}
	}

	switch g.mode {
	case "permissive":
		return Allow, ""
	case "strict":
		if allowed {
			return Allow, ""
		}
		return Deny, fmt.Sprintf("path %s is outside the allowed directories (strict mode)", target)
	default: // moderate
		if allowed {
			return Allow, ""
		}
		if kind == OpRead {
			return Allow, ""
		}
		// Writing outside the workspace needs user approval, which the
		// automated loop cannot obtain.
		return Ask, fmt.Sprintf("writing to %s outside the workspace requires approval", target)
	}
}

func (g *Gate) checkCommand(command string) (Decision, string) {
	cmdLower := strings.ToLower(command)
	for _, denied := range g.deniedCommands {
		if denied != "" && strings.Contains(cmdLower, strings.ToLower(denied)) {
			return Deny, fmt.Sprintf("command matches denied pattern %q", denied)
		}
	}
	if g.mode == "strict" {
		return Ask, "shell commands require approval in strict mode"
	}
	return Allow, ""
}

func (g *Gate) checkURL(rawURL string) (Decision, string) {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return Deny, fmt.Sprintf("invalid URL %q", rawURL)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return Deny, fmt.Sprintf("URL scheme %q is not allowed", u.Scheme)
	}

	if len(g.allowedHosts) == 0 {
		return Allow, ""
	}

	host := u.Hostname()
	for _, ah := range g.allowedHosts {
		if strings.EqualFold(host, ah) || strings.HasSuffix(strings.ToLower(host), "."+strings.ToLower(ah)) {
			return Allow, ""
		}
	}
	return Deny, fmt.Sprintf("host %s is not in the allowed host list", host)
}

// expandPath substitutes ${CWD}, ${HOME}, and a leading ~, then cleans
// the result into an absolute path where possible.
func expandPath(p string) string {
	if cwd, err := os.Getwd(); err == nil {
		p = strings.ReplaceAll(p, "${CWD}", cwd)
	}
	if home, err := os.UserHomeDir(); err == nil {
		p = strings.ReplaceAll(p, "${HOME}", home)
		if p == "~" || strings.HasPrefix(p, "~/") {
			p = filepath.Join(home, strings.TrimPrefix(p[1:], "/"))
		}
	}
	if abs, err := filepath.Abs(p); err == nil {
		p = abs
	}
	return filepath.Clean(p)
}

// underPath reports whether path is root itself or inside it.
func underPath(path, root string) bool {
	if root == "" {
		return false
	}
	if path == root {
		return true
	}
	return strings.HasPrefix(path, root+string(filepath.Separator))
}
