// Package sandbox provides secure Lua execution capabilities.
//
// The sandbox package implements the execution harness for running untrusted
// Lua snippets through an external interpreter. The interpreter is wrapped by a
// generated script that delegates to a policy module supplied by path.
package sandbox

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"time"
)

// ExecuteRequest represents the parameters for one sandboxed execution
type ExecuteRequest struct {
	Code       string
	PolicyPath string
	TimeBudget time.Duration // zero means the configured default
}

// Outcome classifies how an execution ended
type Outcome int

const (
	OutcomeSuccess Outcome = iota
	OutcomePolicyError
	OutcomeTimeout
	OutcomeInterpreterMissing
	OutcomeInternalError
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSuccess:
		return "success"
	case OutcomePolicyError:
		return "policy_error"
	case OutcomeTimeout:
		return "timeout"
	case OutcomeInterpreterMissing:
		return "interpreter_missing"
	case OutcomeInternalError:
		return "internal_error"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

// Failed reports whether the harness itself could not produce interpreter output.
func (o Outcome) Failed() bool {
	return o != OutcomeSuccess && o != OutcomePolicyError
}

// ExecuteResult represents the result of one execution
type ExecuteResult struct {
	Stdout   string
	Stderr   string
	ExitCode int
	Outcome  Outcome
	Duration time.Duration
}

// SandboxExecutor defines the interface for sandbox execution
type SandboxExecutor interface {
	Execute(ctx context.Context, req ExecuteRequest) (ExecuteResult, error)
}

// Errors returned alongside a failure-shaped result when no interpreter run was attempted.
var (
	ErrDirectoryUnavailable = errors.New("staging directory unavailable")
	ErrEmptyPolicyPath      = errors.New("policy path is required")
	ErrCodeTooLarge         = errors.New("code exceeds size limit")
)

// File permission constants
const (
	DirPermission  = 0755
	FilePermission = 0600
)

// processWaitDelay bounds how long Wait keeps draining pipes once the
// interpreter exited or was killed.
const processWaitDelay = 500 * time.Millisecond

// CommandRunner defines an interface for executing system commands
type CommandRunner interface {
	RunCommand(ctx context.Context, dir string, args []string) (stdout, stderr string, exitCode int, err error)
}

// RealCommandRunner implements CommandRunner using actual exec commands.
// The command runs in its own process group, which is killed as a whole when
// ctx is done and again after the leader exits.
type RealCommandRunner struct{}

// RunCommand executes the given command with arguments in dir
func (RealCommandRunner) RunCommand(ctx context.Context, dir string, args []string) (stdout, stderr string, exitCode int, err error) {
	if len(args) < 1 {
		return "", "", 0, fmt.Errorf("no command provided")
	}

	cmd := exec.CommandContext(ctx, args[0], args[1:]...) //nolint:gosec // interpreter comes from configuration
	cmd.Dir = dir
	cmd.WaitDelay = processWaitDelay
	configureProcessGroup(cmd)

	var stdoutBuf, stderrBuf bytes.Buffer
	cmd.Stdout = &stdoutBuf
	cmd.Stderr = &stderrBuf

	err = cmd.Run()
	killProcessGroup(cmd)

	if err != nil {
		var exitError *exec.ExitError
		switch {
		case errors.As(err, &exitError):
			return stdoutBuf.String(), stderrBuf.String(), exitError.ExitCode(), nil
		case errors.Is(err, exec.ErrWaitDelay) && cmd.ProcessState != nil:
			// leader exited but a descendant held the pipes open
			return stdoutBuf.String(), stderrBuf.String(), cmd.ProcessState.ExitCode(), nil
		default:
			return stdoutBuf.String(), stderrBuf.String(), 1, err
		}
	}

	return stdoutBuf.String(), stderrBuf.String(), 0, nil
}

// FileSystem defines an interface for file system operations
type FileSystem interface {
	MkdirAll(path string, perm os.FileMode) error
	CreateExclusive(filename string, data []byte, perm os.FileMode) error
	Remove(path string) error
}

// RealFileSystem implements FileSystem using actual file system operations
type RealFileSystem struct{}

func (RealFileSystem) MkdirAll(path string, perm os.FileMode) error {
	return os.MkdirAll(path, perm)
}

// CreateExclusive writes data to a new file and fails with fs.ErrExist if
// filename is already present. A partially written file is removed.
func (RealFileSystem) CreateExclusive(filename string, data []byte, perm os.FileMode) error {
	f, err := os.OpenFile(filename, os.O_WRONLY|os.O_CREATE|os.O_EXCL, perm)
	if err != nil {
		return err
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(filename)
		return err
	}
	if err := f.Close(); err != nil {
		os.Remove(filename)
		return err
	}
	return nil
}

func (RealFileSystem) Remove(path string) error {
	return os.Remove(path)
}

