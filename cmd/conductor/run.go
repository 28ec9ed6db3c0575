package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kadirpekel/conductor/pkg/agent"
	"github.com/kadirpekel/conductor/pkg/config"
	"github.com/kadirpekel/conductor/pkg/events"
	"github.com/kadirpekel/conductor/pkg/llms"
	"github.com/kadirpekel/conductor/pkg/loopdetect"
	"github.com/kadirpekel/conductor/pkg/observability"
	"github.com/kadirpekel/conductor/pkg/state"
	"github.com/kadirpekel/conductor/pkg/tools"
)

// timeRounding keeps printed durations readable.
const timeRounding = time.Millisecond

// RunCmd runs one agent toward a goal and streams its progress.
type RunCmd struct {
	Goal    string `arg:"" help:"Goal for the agent to pursue."`
	AgentID string `name:"agent-id" help:"Agent identity; runs with the same id resume the same state." default:"default"`

	Provider string `help:"LLM provider (openai, scripted)."`
	Model    string `help:"Model name."`
	APIKey   string `name:"api-key" help:"API key (defaults to OPENAI_API_KEY)."`
	BaseURL  string `name:"base-url" help:"Custom API base URL."`

	MaxTurns  int    `name:"max-turns" help:"Step budget override."`
	Reasoning string `help:"Reasoning engine (none, chain_of_thought, tree_of_thoughts, hybrid)."`

	MCPCommand string   `name:"mcp-command" help:"Launch an MCP server subprocess and expose its tools."`
	MCPArgs    []string `name:"mcp-args" help:"Arguments for the MCP server subprocess."`

	ShowThoughts bool `name:"show-thoughts" help:"Stream the model's thoughts to stdout."`
}

func (c *RunCmd) Run(cfg *config.Config) error {
	c.override(cfg)
	if err := cfg.Validate(); err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		slog.Info("Shutting down...")
		cancel()
	}()

	if metrics, err := observability.NewOTelMetrics("conductor"); err == nil {
		observability.SetGlobalMetrics(metrics)
	} else {
		slog.Warn("Metrics disabled", "error", err)
	}

	store, closeStore, err := newStore(cfg)
	if err != nil {
		return err
	}
	if closeStore != nil {
		defer func() {
			if err := closeStore(); err != nil {
				slog.Warn("Store close failed", "error", err)
			}
		}()
	}

	registry := tools.NewToolRegistry()
	if err := registry.RegisterSource(tools.NewBuiltinToolSource()); err != nil {
		return err
	}
	if c.MCPCommand != "" {
		mcp, err := tools.NewMCPToolSource(tools.MCPConfig{
			Name:    "mcp",
			Command: c.MCPCommand,
			Args:    c.MCPArgs,
		})
		if err != nil {
			return err
		}
		defer mcp.Close()
		if err := registry.RegisterSource(mcp); err != nil {
			return err
		}
	}
	if err := registry.DiscoverAllTools(ctx); err != nil {
		return err
	}

	provider, err := newProvider(cfg)
	if err != nil {
		return err
	}

	bus := events.NewBus()
	c.subscribe(bus)

	detector := loopdetect.New(loopdetect.Options{
		MaxRecords:       cfg.MaxToolCallHistory,
		FailureThreshold: cfg.ConsecutiveFailureThreshold,
	})

	orch, err := agent.NewOrchestrator(c.AgentID, cfg, provider, registry, store, detector, bus)
	if err != nil {
		return err
	}

	result, err := orch.Run(ctx, c.Goal, nil)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			fmt.Println("\nRun cancelled.")
			exitCode = 130
			return nil
		}
		return err
	}

	if result.Succeeded {
		fmt.Printf("\n%s\n", result.FinalOutput)
		fmt.Printf("\n(%d turns in %s)\n", result.TotalTurns, result.Duration.Round(timeRounding))
		return nil
	}

	fmt.Printf("\nRun failed (%s): %s\n", result.ErrorType, result.Error)
	exitCode = 1
	return nil
}

// override applies CLI flags on top of the loaded config.
func (c *RunCmd) override(cfg *config.Config) {
	if c.Provider != "" {
		cfg.LLM.Provider = c.Provider
	}
	if c.Model != "" {
		cfg.LLM.Model = c.Model
	}
	if c.APIKey != "" {
		cfg.LLM.APIKey = c.APIKey
	}
	if c.BaseURL != "" {
		cfg.LLM.BaseURL = c.BaseURL
	}
	if c.MaxTurns > 0 {
		cfg.MaxTurns = c.MaxTurns
	}
	if c.Reasoning != "" {
		cfg.Reasoning.Type = config.ReasoningType(c.Reasoning)
	}
}

func (c *RunCmd) subscribe(bus *events.Bus) {
	bus.Subscribe(events.StatusUpdate, func(e events.Event) {
		p := e.Payload.(events.StatusUpdatePayload)
		line := p.Title
		if p.Details != "" {
			line += ": " + p.Details
		}
		if p.ProgressPct != nil {
			line += fmt.Sprintf(" (%.0f%%)", *p.ProgressPct)
		}
		fmt.Printf("• %s\n", line)
	})
	bus.Subscribe(events.ToolCallStarted, func(e events.Event) {
		p := e.Payload.(events.ToolCallStartedPayload)
		fmt.Printf("→ %s\n", p.Tool)
	})
	bus.Subscribe(events.ToolCallCompleted, func(e events.Event) {
		p := e.Payload.(events.ToolCallCompletedPayload)
		switch {
		case p.Cached:
			fmt.Printf("← %s (cached)\n", p.Tool)
		case p.Success:
			fmt.Printf("← %s ok in %s\n", p.Tool, p.Duration.Round(timeRounding))
		default:
			fmt.Printf("← %s failed\n", p.Tool)
		}
	})
	if c.ShowThoughts {
		bus.Subscribe(events.LLMChunkReceived, func(e events.Event) {
			fmt.Print(e.Payload.(events.LLMChunkPayload).Content)
		})
		bus.Subscribe(events.LLMCallCompleted, func(events.Event) {
			fmt.Println()
		})
	}
}

func newStore(cfg *config.Config) (state.Store, func() error, error) {
	switch cfg.Store.Type {
	case "memory":
		return state.NewMemoryStore(), nil, nil
	case "file":
		s, err := state.NewFileStore(cfg.Store.Path)
		return s, nil, err
	case "sqlite":
		s, err := state.NewSQLStore(cfg.Store.Path)
		if err != nil {
			return nil, nil, err
		}
		return s, s.Close, nil
	default:
		return nil, nil, fmt.Errorf("unknown store type %q", cfg.Store.Type)
	}
}

func newProvider(cfg *config.Config) (llms.LLM, error) {
	switch cfg.LLM.Provider {
	case "openai":
		key := cfg.LLM.APIKey
		if key == "" {
			key = os.Getenv("OPENAI_API_KEY")
		}
		if key == "" {
			return nil, fmt.Errorf("openai provider requires an API key (flag, config, or OPENAI_API_KEY)")
		}
		model := cfg.LLM.Model
		if model == "" {
			model = "gpt-4o-mini"
		}
		return llms.NewOpenAIProvider(key, model, cfg.LLM.BaseURL), nil

	case "scripted":
		return llms.NewScriptedProvider("scripted", demoScript()...).WithoutFunctionCalling(), nil

	default:
		return nil, fmt.Errorf("unknown llm provider %q", cfg.LLM.Provider)
	}
}

// demoScript drives an offline three-step run against the builtin tools.
func demoScript() []llms.ScriptedResponse {
	return []llms.ScriptedResponse{
		{Text: `{"thoughts": "I should check the time first.", "action": "plan", "action_input": {"summary": "Consult the clock, then answer."}, "status_title": "Planning"}`},
		{Text: `{"thoughts": "Asking the clock for UTC.", "action": "tool_call", "action_input": {"tool": "clock", "params": {"timezone": "UTC"}}, "status_title": "Checking the clock"}`},
		{Text: `{"thoughts": "Done.", "action": "finish", "action_input": {"final": "Offline demo complete: consulted the builtin clock and wrapped up."}}`},
	}
}
