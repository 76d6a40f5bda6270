package sandbox

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/isdmx/luabox/config"
)

// NewExecutor creates a sandbox executor from the application configuration
func NewExecutor(logger *zap.Logger, cfg *config.Config) (SandboxExecutor, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}

	harnessConfig := Config{
		Interpreter:   cfg.Sandbox.Interpreter,
		StagingDir:    cfg.Sandbox.StagingDir,
		TimeBudget:    cfg.GetTimeBudget(),
		TimeoutMargin: cfg.GetTimeoutMargin(),
		MaxCodeBytes:  cfg.Sandbox.MaxCodeBytes,
	}

	return NewHarness(logger, &harnessConfig), nil
}
