package mcpserver

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/isdmx/luabox/config"
	"github.com/isdmx/luabox/sandbox"
)

// MockSandboxExecutor implements sandbox.SandboxExecutor for testing
type MockSandboxExecutor struct {
	mu            sync.Mutex
	requests      []sandbox.ExecuteRequest
	executeResult sandbox.ExecuteResult
	executeError  error
	block         chan struct{}
}

func (m *MockSandboxExecutor) Execute(_ context.Context, req sandbox.ExecuteRequest) (sandbox.ExecuteResult, error) {
	m.mu.Lock()
	m.requests = append(m.requests, req)
	m.mu.Unlock()
	if m.block != nil {
		<-m.block
	}
	return m.executeResult, m.executeError
}

func testConfig() *config.Config {
	return &config.Config{
		Server: config.ServerConfig{Transport: "stdio", HTTPPort: 8080},
		Sandbox: config.SandboxConfig{
			Interpreter:     "lua",
			PolicyPath:      "/etc/luabox/sandbox.lua",
			StagingDir:      "__cacheweb__",
			TimeBudgetSec:   5,
			TimeoutMarginMS: 1000,
		},
		Limits:  config.LimitsConfig{RequestsPerSec: 100, Burst: 100, MaxConcurrent: 4},
		Logging: config.LoggingConfig{Mode: "production", Level: "info"},
	}
}

func callRequest(args map[string]any) mcp.CallToolRequest {
	var req mcp.CallToolRequest
	req.Params.Name = ToolName
	req.Params.Arguments = args
	return req
}

func decodePayload(t *testing.T, result *mcp.CallToolResult) executionPayload {
	t.Helper()
	require.Len(t, result.Content, 1)
	text, ok := result.Content[0].(mcp.TextContent)
	require.True(t, ok)
	var payload executionPayload
	require.NoError(t, json.Unmarshal([]byte(text.Text), &payload))
	return payload
}

func TestNewMCPServer(t *testing.T) {
	logger := zaptest.NewLogger(t)
	cfg := testConfig()
	mockExecutor := &MockSandboxExecutor{}

	server, err := New(cfg, logger, mockExecutor)
	require.NoError(t, err)
	require.NotNil(t, server)
	assert.Equal(t, cfg, server.config)
	assert.Equal(t, logger, server.logger)
	assert.Equal(t, mockExecutor, server.sandboxExec)
	assert.NotNil(t, server.limiter)
	assert.NotNil(t, server.GetMCPServer())
}

func TestExecuteLuaToolSchema(t *testing.T) {
	tool := executeLuaTool()
	assert.Equal(t, ToolName, tool.Name)
	assert.Equal(t, []string{"code"}, tool.InputSchema.Required)
	assert.Contains(t, tool.InputSchema.Properties, "code")
	assert.NotContains(t, tool.InputSchema.Properties, "policy_path")
}

func TestHandleExecuteLua(t *testing.T) {
	ctx := context.Background()

	t.Run("Success", func(t *testing.T) {
		mockExecutor := &MockSandboxExecutor{executeResult: sandbox.ExecuteResult{
			Stdout:  "hello",
			Outcome: sandbox.OutcomeSuccess,
		}}
		server, err := New(testConfig(), zaptest.NewLogger(t), mockExecutor)
		require.NoError(t, err)

		result, err := server.handleExecuteLua(ctx, callRequest(map[string]any{"code": "return 'hello'"}))
		require.NoError(t, err)
		assert.False(t, result.IsError)

		payload := decodePayload(t, result)
		assert.Equal(t, "hello", payload.Stdout)
		assert.Equal(t, "success", payload.Outcome)
		assert.Equal(t, 0, payload.ExitCode)

		require.Len(t, mockExecutor.requests, 1)
		assert.Equal(t, "return 'hello'", mockExecutor.requests[0].Code)
		assert.Equal(t, "/etc/luabox/sandbox.lua", mockExecutor.requests[0].PolicyPath)
	})

	t.Run("ClientCannotChoosePolicy", func(t *testing.T) {
		mockExecutor := &MockSandboxExecutor{}
		server, err := New(testConfig(), zaptest.NewLogger(t), mockExecutor)
		require.NoError(t, err)

		_, err = server.handleExecuteLua(ctx, callRequest(map[string]any{
			"code":        "os.execute('id')",
			"policy_path": "/srv/ignore_budget.lua",
		}))
		require.NoError(t, err)
		require.Len(t, mockExecutor.requests, 1)
		assert.Equal(t, "/etc/luabox/sandbox.lua", mockExecutor.requests[0].PolicyPath)
	})

	t.Run("PolicyErrorIsNotToolError", func(t *testing.T) {
		mockExecutor := &MockSandboxExecutor{executeResult: sandbox.ExecuteResult{
			Stdout:  "[ERROR] boom\n",
			Outcome: sandbox.OutcomePolicyError,
		}}
		server, err := New(testConfig(), zaptest.NewLogger(t), mockExecutor)
		require.NoError(t, err)

		result, err := server.handleExecuteLua(ctx, callRequest(map[string]any{"code": "error('boom')"}))
		require.NoError(t, err)
		assert.False(t, result.IsError)
		assert.Equal(t, "policy_error", decodePayload(t, result).Outcome)
	})

	t.Run("TimeoutIsToolError", func(t *testing.T) {
		mockExecutor := &MockSandboxExecutor{executeResult: sandbox.ExecuteResult{
			Stderr:   "[ERROR] Execution timed out",
			ExitCode: 1,
			Outcome:  sandbox.OutcomeTimeout,
		}}
		server, err := New(testConfig(), zaptest.NewLogger(t), mockExecutor)
		require.NoError(t, err)

		result, err := server.handleExecuteLua(ctx, callRequest(map[string]any{"code": "while true do end"}))
		require.NoError(t, err)
		assert.True(t, result.IsError)
		payload := decodePayload(t, result)
		assert.Equal(t, "timeout", payload.Outcome)
		assert.Equal(t, 1, payload.ExitCode)
	})

	t.Run("ExecutorError", func(t *testing.T) {
		mockExecutor := &MockSandboxExecutor{executeError: sandbox.ErrDirectoryUnavailable}
		server, err := New(testConfig(), zaptest.NewLogger(t), mockExecutor)
		require.NoError(t, err)

		result, err := server.handleExecuteLua(ctx, callRequest(map[string]any{"code": "x"}))
		require.NoError(t, err)
		assert.True(t, result.IsError)
		text := result.Content[0].(mcp.TextContent).Text
		assert.Contains(t, text, "Execution failed")
	})

	t.Run("MissingCode", func(t *testing.T) {
		server, err := New(testConfig(), zaptest.NewLogger(t), &MockSandboxExecutor{})
		require.NoError(t, err)

		_, err = server.handleExecuteLua(ctx, callRequest(map[string]any{}))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "code parameter is required")
	})

	t.Run("ConcurrencyLimit", func(t *testing.T) {
		cfg := testConfig()
		cfg.Limits.MaxConcurrent = 1
		mockExecutor := &MockSandboxExecutor{block: make(chan struct{})}
		server, err := New(cfg, zaptest.NewLogger(t), mockExecutor)
		require.NoError(t, err)

		done := make(chan struct{})
		go func() {
			defer close(done)
			_, _ = server.handleExecuteLua(ctx, callRequest(map[string]any{"code": "slow"}))
		}()
		require.Eventually(t, func() bool { return server.limiter.InFlight() == 1 }, time.Second, 5*time.Millisecond)

		result, err := server.handleExecuteLua(ctx, callRequest(map[string]any{"code": "rejected"}))
		require.NoError(t, err)
		assert.True(t, result.IsError)
		assert.Contains(t, result.Content[0].(mcp.TextContent).Text, "Too many requests")

		close(mockExecutor.block)
		<-done
		assert.Equal(t, 0, server.limiter.InFlight())
	})
}

func TestRateLimiter(t *testing.T) {
	t.Run("BurstThenDeny", func(t *testing.T) {
		rl := NewRateLimiter(0.001, 2, 10)
		assert.True(t, rl.Acquire())
		assert.True(t, rl.Acquire())
		assert.False(t, rl.Acquire())
		rl.Release()
		rl.Release()
		assert.Equal(t, 0, rl.InFlight())
	})

	t.Run("ConcurrencyCap", func(t *testing.T) {
		rl := NewRateLimiter(1000, 1000, 2)
		assert.True(t, rl.Acquire())
		assert.True(t, rl.Acquire())
		assert.False(t, rl.Acquire())
		rl.Release()
		assert.True(t, rl.Acquire())
	})

	t.Run("ReleaseNeverUnderflows", func(t *testing.T) {
		rl := NewRateLimiter(1, 1, 1)
		rl.Release()
		assert.Equal(t, 0, rl.InFlight())
	})
}
