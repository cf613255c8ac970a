// Ollie is a local terminal agent backed by an Ollama-hosted model.
//
// It reads lines from the terminal, lets the model decide whether a
// tool is needed (files, shell, web), runs at most one tool per turn
// under a permission policy, and streams the answer back.
// Configuration is loaded from a single YAML file discovered
// automatically (see [config.DefaultSearchPaths]).
//
// Usage:
//
//	ollie                    Start the chat loop
//	ollie -config foo.yaml   Use an explicit config file
//	ollie -version           Print version information
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jmnelson/ollie/internal/agent"
	"github.com/jmnelson/ollie/internal/buildinfo"
	"github.com/jmnelson/ollie/internal/config"
	"github.com/jmnelson/ollie/internal/fetch"
	"github.com/jmnelson/ollie/internal/history"
	"github.com/jmnelson/ollie/internal/httpkit"
	"github.com/jmnelson/ollie/internal/llm"
	"github.com/jmnelson/ollie/internal/permissions"
	"github.com/jmnelson/ollie/internal/search"
	"github.com/jmnelson/ollie/internal/tools"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Stdin, os.Stdout, os.Stderr, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, stdin io.Reader, stdout, stderr io.Writer, args []string) error {
	fs := flag.NewFlagSet("ollie", flag.ContinueOnError)
	fs.SetOutput(stderr)
	configPath := fs.String("config", "", "path to config file")
	showVersion := fs.Bool("version", false, "print version and exit")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if *showVersion {
		fmt.Fprintln(stdout, buildinfo.String())
		return nil
	}

	httpkit.Version = buildinfo.Version

	cfg, err := loadConfig(*configPath, stderr)
	if err != nil {
		return err
	}

	level, err := config.ParseLogLevel(cfg.LogLevel)
	if err != nil {
		return err
	}
	logger := config.NewLogger(stderr, level)

	client := llm.NewOllama(cfg.Ollama.BaseURL, logger)

	model, err := pickModel(ctx, client, cfg.Ollama.Model, stdout)
	if err != nil {
		return err
	}

	registry, err := buildRegistry(cfg, logger)
	if err != nil {
		return err
	}

	gate := permissions.NewGate(permissions.Policy{
		Mode:           cfg.Permissions.Mode,
		Workspace:      cfg.Workspace.Path,
		AllowedPaths:   cfg.Permissions.AllowedPaths,
		DeniedPaths:    cfg.Permissions.DeniedPaths,
		DeniedCommands: cfg.Permissions.DeniedCommands,
		AllowedHosts:   cfg.Permissions.AllowedHosts,
	})

	systemPrompt := cfg.Agent.SystemPrompt
	if systemPrompt == "" {
		systemPrompt = agent.DefaultSystemPrompt
	}
	hist := history.NewContext(cfg.Agent.MaxMessages)
	hist.Append("system", systemPrompt)

	a := agent.New(client, registry, gate, hist, agent.Settings{
		Model:              model,
		ToolsEnabled:       cfg.Agent.Enabled,
		LLMTimeout:         time.Duration(cfg.Agent.LLMTimeoutSec) * time.Second,
		ToolTimeout:        time.Duration(cfg.Agent.ToolTimeoutSec) * time.Second,
		MaxToolOutputChars: cfg.Agent.ToolOutputMaxChars,
		HeadFraction:       cfg.Agent.ToolOutputHeadFraction,
		Options: llm.Options{
			Temperature: cfg.Ollama.Temperature,
			TopP:        cfg.Ollama.TopP,
			NumPredict:  cfg.Ollama.NumPredict,
		},
	}, logger)

	if cfg.History.DBPath != "" {
		store, err := history.OpenStore(cfg.History.DBPath)
		if err != nil {
			logger.Warn("transcript store unavailable", "error", err)
		} else {
			defer store.Close()
			a.AttachStore(store, history.NewConversationID())
		}
	}

	repl := &repl{
		agent:    a,
		client:   client,
		registry: registry,
		cfg:      cfg,
		logger:   logger,
		stdout:   stdout,
		saveDir:  cfg.History.SaveDir,
	}
	return repl.loop(ctx, stdin)
}

// loadConfig finds and loads the YAML config, falling back to defaults
// when no file exists.
func loadConfig(explicit string, stderr io.Writer) (*config.Config, error) {
	path, err := config.FindConfig(explicit)
	if err != nil {
		if explicit != "" {
			return nil, err
		}
		fmt.Fprintln(stderr, "no config file found, using defaults")
		return config.Default(), nil
	}
	return config.Load(path)
}

// pickModel verifies the Ollama server is reachable and chooses a
// model: the configured one if set, otherwise the first installed
// model reported by the server.
func pickModel(ctx context.Context, client llm.Client, configured string, stdout io.Writer) (string, error) {
	if err := client.Ping(ctx); err != nil {
		return "", fmt.Errorf("ollama is not reachable: %w", err)
	}
	if configured != "" {
		return configured, nil
	}

	models, err := client.ListModels(ctx)
	if err != nil {
		return "", fmt.Errorf("list models: %w", err)
	}
	if len(models) == 0 {
		return "", fmt.Errorf("no models installed; pull one with `ollama pull`")
	}
	fmt.Fprintf(stdout, "using model %s\n", models[0])
	return models[0], nil
}

// buildRegistry wires up every tool the config enables.
func buildRegistry(cfg *config.Config, logger *slog.Logger) (*tools.Registry, error) {
	registry := tools.NewRegistry()

	if cfg.Workspace.Path != "" {
		ft := tools.NewFileTools(cfg.Workspace.Path)
		tools.RegisterFileTools(registry, ft)
	}

	if cfg.ShellExec.Enabled {
		se := tools.NewShellExec(tools.ShellExecConfig{
			Enabled:         true,
			WorkingDir:      cfg.ShellExec.WorkingDir,
			AllowedPrefixes: cfg.ShellExec.AllowedPrefixes,
			DeniedPatterns:  cfg.ShellExec.DeniedPatterns,
			DefaultTimeout:  time.Duration(cfg.ShellExec.DefaultTimeoutSec) * time.Second,
			MaxOutputBytes:  cfg.ShellExec.MaxOutputBytes,
		})
		tools.RegisterShellTool(registry, se)
	}

	if err := fetch.RegisterTool(registry, fetch.New()); err != nil {
		return nil, err
	}

	if cfg.Search.Provider != "" {
		mgr := search.NewManager(cfg.Search.Provider)
		if cfg.Search.BaseURL != "" {
			mgr.Register(search.NewSearXNG(cfg.Search.BaseURL))
		}
		if cfg.Search.APIKey != "" {
			mgr.Register(search.NewBrave(cfg.Search.APIKey))
		}
		if mgr.Configured() {
			if err := search.RegisterTool(registry, mgr); err != nil {
				return nil, err
			}
		} else {
			logger.Warn("search provider configured without credentials", "provider", cfg.Search.Provider)
		}
	}

	return registry, nil
}
