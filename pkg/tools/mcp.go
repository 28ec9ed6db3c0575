package tools

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/mcp"
)

// MCPConfig configures an MCP (Model Context Protocol) tool source over the
// stdio transport.
type MCPConfig struct {
	// Name identifies this source.
	Name string

	// Command launches the MCP server subprocess.
	Command string

	// Args for the subprocess.
	Args []string

	// Env for the subprocess, KEY=VALUE form built from the map.
	Env map[string]string

	// Filter limits which discovered tools are exposed.
	Filter []string

	// CustomTTL, when set, overrides the engine-wide cache staleness
	// threshold for every tool of this source.
	CustomTTL time.Duration
}

// MCPToolSource exposes the tools of one MCP server. The connection is
// established on the first DiscoverTools call.
type MCPToolSource struct {
	cfg       MCPConfig
	filterSet map[string]bool

	mu        sync.Mutex
	client    *client.Client
	tools     map[string]*MCPTool
	connected bool
}

// NewMCPToolSource creates a source for the configured server.
func NewMCPToolSource(cfg MCPConfig) (*MCPToolSource, error) {
	if cfg.Command == "" {
		return nil, fmt.Errorf("mcp source %s: command is required", cfg.Name)
	}
	if cfg.Name == "" {
		cfg.Name = "mcp"
	}

	var filterSet map[string]bool
	if len(cfg.Filter) > 0 {
		filterSet = make(map[string]bool, len(cfg.Filter))
		for _, name := range cfg.Filter {
			filterSet[name] = true
		}
	}

	return &MCPToolSource{
		cfg:       cfg,
		filterSet: filterSet,
		tools:     make(map[string]*MCPTool),
	}, nil
}

func (s *MCPToolSource) GetName() string {
	return s.cfg.Name
}

func (s *MCPToolSource) GetType() string {
	return "mcp"
}

// DiscoverTools connects to the server (once) and refreshes the tool list.
func (s *MCPToolSource) DiscoverTools(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.connected {
		if err := s.connectLocked(ctx); err != nil {
			return err
		}
	}

	listResp, err := s.client.ListTools(ctx, mcp.ListToolsRequest{})
	if err != nil {
		return fmt.Errorf("mcp source %s: list tools: %w", s.cfg.Name, err)
	}

	tools := make(map[string]*MCPTool, len(listResp.Tools))
	for _, mcpTool := range listResp.Tools {
		if s.filterSet != nil && !s.filterSet[mcpTool.Name] {
			continue
		}
		tools[mcpTool.Name] = &MCPTool{
			source:      s,
			name:        mcpTool.Name,
			description: mcpTool.Description,
			schema:      mcpTool.InputSchema,
		}
	}
	s.tools = tools

	slog.Info("Discovered MCP tools",
		"source", s.cfg.Name,
		"command", s.cfg.Command,
		"tools", len(tools),
	)
	return nil
}

func (s *MCPToolSource) connectLocked(ctx context.Context) error {
	mcpClient, err := client.NewStdioMCPClient(s.cfg.Command, s.convertEnv(), s.cfg.Args...)
	if err != nil {
		return fmt.Errorf("mcp source %s: create client: %w", s.cfg.Name, err)
	}

	if err := mcpClient.Start(ctx); err != nil {
		return fmt.Errorf("mcp source %s: start client: %w", s.cfg.Name, err)
	}

	initReq := mcp.InitializeRequest{}
	initReq.Params.ClientInfo = mcp.Implementation{
		Name:    "conductor",
		Version: "0.1.0",
	}
	initReq.Params.ProtocolVersion = "2024-11-05"

	if _, err := mcpClient.Initialize(ctx, initReq); err != nil {
		_ = mcpClient.Close()
		return fmt.Errorf("mcp source %s: initialize: %w", s.cfg.Name, err)
	}

	s.client = mcpClient
	s.connected = true
	return nil
}

func (s *MCPToolSource) convertEnv() []string {
	env := make([]string, 0, len(s.cfg.Env))
	for k, v := range s.cfg.Env {
		env = append(env, k+"="+v)
	}
	return env
}

func (s *MCPToolSource) ListTools() []ToolInfo {
	s.mu.Lock()
	defer s.mu.Unlock()

	infos := make([]ToolInfo, 0, len(s.tools))
	for _, tool := range s.tools {
		infos = append(infos, tool.GetInfo())
	}
	return infos
}

func (s *MCPToolSource) GetTool(name string) (Tool, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tool, exists := s.tools[name]
	return tool, exists
}

// Close shuts down the server subprocess.
func (s *MCPToolSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.client == nil {
		return nil
	}
	err := s.client.Close()
	s.client = nil
	s.connected = false
	return err
}

// MCPTool is one remote tool exposed by an MCP server.
type MCPTool struct {
	source      *MCPToolSource
	name        string
	description string
	schema      mcp.ToolInputSchema
}

func (t *MCPTool) GetName() string {
	return t.name
}

func (t *MCPTool) GetDescription() string {
	return t.description
}

func (t *MCPTool) GetInfo() ToolInfo {
	info := ToolInfo{
		Name:        t.name,
		Description: t.description,
		CustomTTL:   t.source.cfg.CustomTTL,
	}

	required := make(map[string]bool, len(t.schema.Required))
	for _, name := range t.schema.Required {
		required[name] = true
	}

	for name, raw := range t.schema.Properties {
		param := ToolParameter{
			Name:     name,
			Type:     "string",
			Required: required[name],
		}
		if prop, ok := raw.(map[string]interface{}); ok {
			if typ, ok := prop["type"].(string); ok {
				param.Type = typ
			}
			if desc, ok := prop["description"].(string); ok {
				param.Description = desc
			}
			if items, ok := prop["items"].(map[string]interface{}); ok {
				param.Items = items
			}
			if enum, ok := prop["enum"].([]interface{}); ok {
				for _, e := range enum {
					if s, ok := e.(string); ok {
						param.Enum = append(param.Enum, s)
					}
				}
			}
		}
		info.Parameters = append(info.Parameters, param)
	}

	return info
}

func (t *MCPTool) Execute(ctx context.Context, args map[string]interface{}) (ToolResult, error) {
	start := time.Now()

	t.source.mu.Lock()
	mcpClient := t.source.client
	t.source.mu.Unlock()

	if mcpClient == nil {
		return ToolResult{}, fmt.Errorf("mcp source %s: not connected", t.source.cfg.Name)
	}

	req := mcp.CallToolRequest{}
	req.Params.Name = t.name
	req.Params.Arguments = args

	resp, err := mcpClient.CallTool(ctx, req)
	if err != nil {
		return ToolResult{}, fmt.Errorf("mcp call %s: %w", t.name, err)
	}

	result := ToolResult{
		ToolName:      t.name,
		ExecutionTime: time.Since(start),
	}

	var texts []string
	for _, content := range resp.Content {
		if textContent, ok := content.(mcp.TextContent); ok {
			texts = append(texts, textContent.Text)
		}
	}

	if resp.IsError {
		result.Error = "unknown error"
		if len(texts) > 0 {
			result.Error = texts[0]
		}
		return result, nil
	}

	result.Success = true
	switch len(texts) {
	case 0:
	case 1:
		result.Content = texts[0]
	default:
		result.Output = texts
	}
	return result, nil
}
