package sandbox

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os/exec"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/isdmx/luabox/metrics"
)

// Defaults applied when Config leaves a field empty
const (
	DefaultInterpreter   = "lua"
	DefaultTimeBudget    = 5 * time.Second
	DefaultTimeoutMargin = time.Second
)

// Config holds configuration for the Harness
type Config struct {
	Interpreter   string
	StagingDir    string
	TimeBudget    time.Duration
	TimeoutMargin time.Duration
	MaxCodeBytes  int
}

// Harness implements SandboxExecutor by running a generated wrapper through
// an external Lua interpreter.
type Harness struct {
	logger    *zap.Logger
	config    *Config
	staging   *Staging
	cmdRunner CommandRunner
	fs        FileSystem
}

// HarnessOption defines a functional option for Harness
type HarnessOption func(*Harness)

// WithCommandRunner sets the CommandRunner for Harness
func WithCommandRunner(cmdRunner CommandRunner) HarnessOption {
	return func(h *Harness) {
		h.cmdRunner = cmdRunner
	}
}

// WithFileSystem sets the FileSystem for Harness
func WithFileSystem(fs FileSystem) HarnessOption {
	return func(h *Harness) {
		h.fs = fs
	}
}

// NewHarness creates a new Harness with default implementations and optional interfaces
func NewHarness(logger *zap.Logger, config *Config, opts ...HarnessOption) *Harness {
	cfg := *config
	if cfg.Interpreter == "" {
		cfg.Interpreter = DefaultInterpreter
	}
	if cfg.TimeBudget <= 0 {
		cfg.TimeBudget = DefaultTimeBudget
	}
	if cfg.TimeoutMargin <= 0 {
		cfg.TimeoutMargin = DefaultTimeoutMargin
	}

	h := &Harness{
		logger:    logger,
		config:    &cfg,
		cmdRunner: RealCommandRunner{},
		fs:        RealFileSystem{},
	}

	for _, opt := range opts {
		opt(h)
	}

	h.staging = NewStaging(cfg.StagingDir, h.fs)
	return h
}

// Staging returns the environment manager used by h.
func (h *Harness) Staging() *Staging {
	return h.staging
}

// Execute runs req.Code under the policy module at req.PolicyPath.
//
// Every classified outcome is reported through the result with a nil error.
// An error is returned only when the request could not be staged at all
// (invalid request, ErrDirectoryUnavailable); the result is failure-shaped
// in that case too.
func (h *Harness) Execute(ctx context.Context, req ExecuteRequest) (ExecuteResult, error) {
	start := time.Now()

	if err := h.validate(req); err != nil {
		return failureResult(OutcomeInternalError, err.Error()), err
	}

	budget := req.TimeBudget
	if budget <= 0 {
		budget = h.config.TimeBudget
	}

	dir, err := h.staging.Ensure()
	if err != nil {
		h.logger.Error("staging directory unavailable", zap.Error(err))
		return failureResult(OutcomeInternalError, err.Error()), err
	}

	wrapper := RenderWrapper(req.PolicyPath, req.Code, budget)
	result := h.withArtifact(wrapper, func(a artifact) ExecuteResult {
		return h.run(ctx, dir, a, budget)
	})
	result.Duration = time.Since(start)

	metrics.ExecutionsTotal.WithLabelValues(result.Outcome.String()).Inc()
	metrics.ExecutionDuration.WithLabelValues(result.Outcome.String()).Observe(float64(result.Duration.Milliseconds()))

	h.logger.Info("execution completed",
		zap.Stringer("outcome", result.Outcome),
		zap.Int("exit_code", result.ExitCode),
		zap.Duration("duration", result.Duration),
		zap.Int("stdout_len", len(result.Stdout)),
		zap.Int("stderr_len", len(result.Stderr)))

	return result, nil
}

func (h *Harness) validate(req ExecuteRequest) error {
	if req.PolicyPath == "" {
		return ErrEmptyPolicyPath
	}
	if h.config.MaxCodeBytes > 0 && len(req.Code) > h.config.MaxCodeBytes {
		return fmt.Errorf("%w: %d bytes > %d bytes", ErrCodeTooLarge, len(req.Code), h.config.MaxCodeBytes)
	}
	return nil
}

// run spawns the interpreter against the wrapper with the external timeout
// and classifies what happened.
func (h *Harness) run(ctx context.Context, dir string, a artifact, budget time.Duration) ExecuteResult {
	timeout := budget + h.config.TimeoutMargin
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	h.logger.Debug("spawning interpreter",
		zap.String("interpreter", h.config.Interpreter),
		zap.String("artifact", a.ID),
		zap.Duration("budget", budget),
		zap.Duration("timeout", timeout))

	metrics.ActiveExecutions.Inc()
	stdout, stderr, exitCode, err := h.cmdRunner.RunCommand(runCtx, dir, []string{h.config.Interpreter, a.Path})
	metrics.ActiveExecutions.Dec()

	// the deadline wins over whatever the killed process reported
	if errors.Is(runCtx.Err(), context.DeadlineExceeded) {
		h.logger.Warn("execution timed out", zap.String("artifact", a.ID), zap.Duration("timeout", timeout))
		return failureResult(OutcomeTimeout, "Execution timed out")
	}
	if ctxErr := runCtx.Err(); ctxErr != nil {
		h.logger.Warn("execution canceled", zap.String("artifact", a.ID), zap.Error(ctxErr))
		return failureResult(OutcomeInternalError, "execution canceled: "+ctxErr.Error())
	}

	if err != nil {
		if isInterpreterMissing(err, h.config.Interpreter) {
			h.logger.Error("interpreter not found", zap.String("interpreter", h.config.Interpreter), zap.Error(err))
			return failureResult(OutcomeInterpreterMissing, "Lua interpreter not found: "+h.config.Interpreter)
		}
		h.logger.Error("failed to run interpreter", zap.String("artifact", a.ID), zap.Error(err))
		return failureResult(OutcomeInternalError, err.Error())
	}

	outcome := OutcomeSuccess
	switch {
	case strings.HasPrefix(stdout, ErrorPrefix):
		outcome = OutcomePolicyError
	case exitCode != 0 && stdout == "":
		// the wrapper itself died, e.g. the policy module could not be loaded
		h.logger.Warn("interpreter failed without output",
			zap.String("artifact", a.ID),
			zap.Int("exit_code", exitCode),
			zap.String("stderr", stderr))
		outcome = OutcomeInternalError
	}

	return ExecuteResult{
		Stdout:   stdout,
		Stderr:   stderr,
		ExitCode: exitCode,
		Outcome:  outcome,
	}
}

func isInterpreterMissing(err error, interpreter string) bool {
	if errors.Is(err, exec.ErrNotFound) {
		return true
	}
	var pathErr *fs.PathError
	return errors.As(err, &pathErr) && pathErr.Path == interpreter && errors.Is(err, fs.ErrNotExist)
}

func failureResult(outcome Outcome, message string) ExecuteResult {
	return ExecuteResult{
		Stdout:   "",
		Stderr:   ErrorPrefix + message,
		ExitCode: 1,
		Outcome:  outcome,
	}
}
