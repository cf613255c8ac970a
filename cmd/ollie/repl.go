package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/jmnelson/ollie/internal/agent"
	"github.com/jmnelson/ollie/internal/buildinfo"
	"github.com/jmnelson/ollie/internal/config"
	"github.com/jmnelson/ollie/internal/llm"
	"github.com/jmnelson/ollie/internal/tools"
)

const helpText = `Commands:
  /help          Show this help
  /model [name]  Show or switch the model
  /tools         List available tools
  /history       Show the conversation so far
  /clear         Reset the conversation
  /save [path]   Save the conversation to a JSON file
  /load <path>   Load a saved conversation
  /agent on|off  Enable or disable tool use
  /exit          Quit

Anything else is sent to the model.`

type repl struct {
	agent    *agent.Agent
	client   llm.Client
	registry *tools.Registry
	cfg      *config.Config
	logger   *slog.Logger
	stdout   io.Writer
	saveDir  string
}

// loop reads lines until EOF, /exit, or context cancellation.
func (r *repl) loop(ctx context.Context, stdin io.Reader) error {
	fmt.Fprintf(r.stdout, "ollie %s (model %s). Type /help for commands.\n", buildinfo.Version, r.agent.Model())

	scanner := bufio.NewScanner(stdin)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for {
		fmt.Fprint(r.stdout, "> ")
		if !scanner.Scan() {
			fmt.Fprintln(r.stdout)
			return scanner.Err()
		}
		if ctx.Err() != nil {
			return nil
		}

		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		if strings.HasPrefix(line, "/") {
			if quit := r.dispatch(ctx, line); quit {
				return nil
			}
			continue
		}

		r.submit(ctx, line)
	}
}

// submit runs one turn, printing streamed tokens as they arrive.
func (r *repl) submit(ctx context.Context, input string) {
	streamed := false
	answer := r.agent.RunTurn(ctx, input, func(token string) {
		streamed = true
		fmt.Fprint(r.stdout, token)
	})
	if !streamed {
		fmt.Fprint(r.stdout, answer)
	}
	fmt.Fprintln(r.stdout)
}

// dispatch handles one slash command; a true return exits the loop.
func (r *repl) dispatch(ctx context.Context, line string) bool {
	cmd, arg, _ := strings.Cut(line, " ")
	arg = strings.TrimSpace(arg)

	switch cmd {
	case "/exit", "/quit":
		return true

	case "/help":
		fmt.Fprintln(r.stdout, helpText)

	case "/model":
		r.cmdModel(ctx, arg)

	case "/tools":
		if !r.agent.ToolsEnabled() {
			fmt.Fprintln(r.stdout, "tool use is disabled (/agent on to enable)")
		}
		names := r.registry.Names()
		if len(names) == 0 {
			fmt.Fprintln(r.stdout, "no tools registered")
		}
		for _, name := range names {
			fmt.Fprintf(r.stdout, "  %s\n", name)
		}

	case "/history":
		msgs := r.agent.History().Messages()
		if len(msgs) == 0 {
			fmt.Fprintln(r.stdout, "no conversation yet")
		}
		for _, m := range msgs {
			label := m.Role
			if m.ToolName != "" {
				label = fmt.Sprintf("%s(%s)", m.Role, m.ToolName)
			}
			fmt.Fprintf(r.stdout, "[%s] %s\n", label, m.Content)
		}

	case "/clear":
		r.agent.History().Reset()
		fmt.Fprintln(r.stdout, "conversation cleared")

	case "/save":
		path, err := r.agent.History().Save(arg, r.saveDir, r.agent.ConversationID())
		if err != nil {
			fmt.Fprintf(r.stdout, "save failed: %v\n", err)
			break
		}
		fmt.Fprintf(r.stdout, "saved to %s\n", path)

	case "/load":
		if arg == "" {
			fmt.Fprintln(r.stdout, "usage: /load <path>")
			break
		}
		if err := r.agent.History().Load(arg); err != nil {
			fmt.Fprintf(r.stdout, "load failed: %v\n", err)
			break
		}
		fmt.Fprintf(r.stdout, "loaded %d messages\n", r.agent.History().Len())

	case "/agent":
		switch arg {
		case "on":
			r.agent.SetToolsEnabled(true)
			fmt.Fprintln(r.stdout, "tool use enabled")
		case "off":
			r.agent.SetToolsEnabled(false)
			fmt.Fprintln(r.stdout, "tool use disabled")
		default:
			fmt.Fprintf(r.stdout, "tool use is %s (usage: /agent on|off)\n",
				onOff(r.agent.ToolsEnabled()))
		}

	default:
		fmt.Fprintf(r.stdout, "unknown command %s (try /help)\n", cmd)
	}
	return false
}

func (r *repl) cmdModel(ctx context.Context, arg string) {
	if arg != "" {
		r.agent.SetModel(arg)
		fmt.Fprintf(r.stdout, "model set to %s\n", arg)
		return
	}

	fmt.Fprintf(r.stdout, "current model: %s\n", r.agent.Model())
	models, err := r.client.ListModels(ctx)
	if err != nil {
		r.logger.Debug("list models failed", "error", err)
		return
	}
	for _, m := range models {
		fmt.Fprintf(r.stdout, "  %s\n", m)
	}
}

func onOff(b bool) string {
	if b {
		return "on"
	}
	return "off"
}
