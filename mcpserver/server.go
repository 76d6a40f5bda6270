// Package mcpserver provides the Model Context Protocol (MCP) server implementation.
//
// The mcpserver package exposes the Lua sandbox as the execute_lua MCP tool,
// using the mark3labs/mcp-go library for the protocol details.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"github.com/isdmx/luabox/config"
	"github.com/isdmx/luabox/sandbox"
)

// ToolName is the name under which the sandbox is registered
const ToolName = "execute_lua"

// Version is reported to MCP clients during initialization
const Version = "0.1.0"

// MCPServer represents the MCP server
type MCPServer struct {
	config      *config.Config
	logger      *zap.Logger
	sandboxExec sandbox.SandboxExecutor
	limiter     *RateLimiter
	mcpServer   *server.MCPServer
}

// executionPayload is the JSON document returned as tool content
type executionPayload struct {
	Stdout   string `json:"stdout"`
	Stderr   string `json:"stderr"`
	ExitCode int    `json:"exit_code"`
	Outcome  string `json:"outcome"`
}

// New creates a new MCPServer
func New(cfg *config.Config, logger *zap.Logger, sandboxExec sandbox.SandboxExecutor) (*MCPServer, error) {
	s := &MCPServer{
		config:      cfg,
		logger:      logger,
		sandboxExec: sandboxExec,
		limiter:     NewRateLimiter(cfg.Limits.RequestsPerSec, cfg.Limits.Burst, cfg.Limits.MaxConcurrent),
	}

	logger.Info("configuration loaded",
		zap.String("server.transport", cfg.Server.Transport),
		zap.Int("server.http_port", cfg.Server.HTTPPort),
		zap.String("server.metrics_addr", cfg.Server.MetricsAddr),
		zap.String("sandbox.interpreter", cfg.Sandbox.Interpreter),
		zap.String("sandbox.policy_path", cfg.Sandbox.PolicyPath),
		zap.String("sandbox.staging_dir", cfg.Sandbox.StagingDir),
		zap.Int("sandbox.time_budget_sec", cfg.Sandbox.TimeBudgetSec),
		zap.Int("sandbox.timeout_margin_ms", cfg.Sandbox.TimeoutMarginMS),
		zap.Float64("limits.requests_per_sec", cfg.Limits.RequestsPerSec),
		zap.Int("limits.max_concurrent", cfg.Limits.MaxConcurrent),
	)

	s.mcpServer = server.NewMCPServer("luabox", Version)
	s.registerExecuteLuaTool()

	return s, nil
}

// registerExecuteLuaTool registers the execute_lua tool
func (s *MCPServer) registerExecuteLuaTool() {
	s.mcpServer.AddTool(executeLuaTool(), s.handleExecuteLua)
}

// executeLuaTool describes execute_lua. The policy module is fixed by the
// server's sandbox.policy_path and cannot be chosen by clients.
func executeLuaTool() mcp.Tool {
	return mcp.Tool{
		Name:        ToolName,
		Description: "Execute untrusted Lua code under the server's sandbox policy module with a hard timeout",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]any{
				"code": map[string]any{
					"type":        "string",
					"description": "Lua source handed to the policy module",
				},
			},
			Required: []string{"code"},
		},
	}
}

// handleExecuteLua handles the execute_lua tool
func (s *MCPServer) handleExecuteLua(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	code, err := request.RequireString("code")
	if err != nil {
		return nil, fmt.Errorf("code parameter is required: %w", err)
	}
	policyPath := s.config.Sandbox.PolicyPath

	if !s.limiter.Acquire() {
		s.logger.Warn("execution rejected by rate limiter", zap.Int("in_flight", s.limiter.InFlight()))
		return errorResult("Too many requests, try again later"), nil
	}
	defer s.limiter.Release()

	s.logger.Info("executing code in sandbox",
		zap.String("policy_path", policyPath),
		zap.Int("code_len", len(code)))

	result, err := s.sandboxExec.Execute(ctx, sandbox.ExecuteRequest{
		Code:       code,
		PolicyPath: policyPath,
	})
	if err != nil {
		s.logger.Error("sandbox execution failed", zap.Error(err), zap.String("policy_path", policyPath))
		return errorResult(fmt.Sprintf("Execution failed: %v", err)), nil
	}

	payload, err := json.Marshal(executionPayload{
		Stdout:   result.Stdout,
		Stderr:   result.Stderr,
		ExitCode: result.ExitCode,
		Outcome:  result.Outcome.String(),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode result: %w", err)
	}

	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{
				Type: "text",
				Text: string(payload),
			},
		},
		IsError: result.Outcome.Failed(),
	}, nil
}

func errorResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{
				Type: "text",
				Text: text,
			},
		},
		IsError: true,
	}
}

// ServeStdio starts the server on stdio
func (s *MCPServer) ServeStdio() error {
	s.logger.Info("starting MCP server on stdio")
	return server.ServeStdio(s.mcpServer)
}

// ServeHTTP starts the server on HTTP
func (s *MCPServer) ServeHTTP() error {
	port := s.config.Server.HTTPPort
	s.logger.Info("starting MCP server on HTTP", zap.Int("port", port))

	httpServer := server.NewStreamableHTTPServer(s.mcpServer)
	return httpServer.Start(fmt.Sprintf(":%d", port))
}

// GetMCPServer returns the underlying MCP server for fx
func (s *MCPServer) GetMCPServer() *server.MCPServer {
	return s.mcpServer
}
