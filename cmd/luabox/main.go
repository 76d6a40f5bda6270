// Package main is the luabox command line tool.
//
// luabox runs one Lua snippet from a file under a sandbox policy module and
// relays the interpreter's output:
//
//	luabox [--config path] [--interpreter lua] <sandbox.lua> <code_file.lua>
//
// Stdout carries the interpreter's stdout, stderr carries diagnostics, and the
// exit code is the interpreter's (or 1 when the harness failed).
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/isdmx/luabox/config"
	"github.com/isdmx/luabox/logger"
	"github.com/isdmx/luabox/sandbox"
)

const usage = "Usage: luabox [flags] <sandbox.lua path> <code_file.lua>"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	flags := pflag.NewFlagSet("luabox", pflag.ContinueOnError)
	flags.SetOutput(stderr)
	flags.Usage = func() {
		fmt.Fprintln(stderr, usage)
		flags.PrintDefaults()
	}

	configPath := flags.String("config", "", "path to a YAML config file (default: ./config.yaml if present)")
	interpreter := flags.String("interpreter", "", "Lua interpreter to run (overrides sandbox.interpreter)")
	logLevel := flags.String("log-level", "warn", "log level for diagnostics on stderr")

	if err := flags.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return 0
		}
		return 1
	}
	if flags.NArg() < 2 {
		fmt.Fprintln(stderr, usage)
		return 1
	}
	policyPath, codeFile := flags.Arg(0), flags.Arg(1)

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(stderr, "[ERROR] %v\n", err)
		return 1
	}
	if *interpreter != "" {
		cfg.Sandbox.Interpreter = *interpreter
	}

	log, err := logger.New(cfg.Logging.Mode, *logLevel)
	if err != nil {
		fmt.Fprintf(stderr, "[ERROR] %v\n", err)
		return 1
	}
	defer func() { _ = log.Sync() }()

	code, err := os.ReadFile(codeFile)
	if err != nil {
		fmt.Fprintf(stderr, "[ERROR] Failed to read code file: %v\n", err)
		return 1
	}

	executor, err := sandbox.NewExecutor(log, cfg)
	if err != nil {
		fmt.Fprintf(stderr, "[ERROR] %v\n", err)
		return 1
	}

	result, err := executor.Execute(ctx, sandbox.ExecuteRequest{
		Code:       string(code),
		PolicyPath: policyPath,
	})
	if err != nil {
		log.Debug("execution not attempted", zap.Error(err))
	}

	if result.Stdout != "" {
		fmt.Fprint(stdout, result.Stdout)
	}
	if result.Stderr != "" {
		fmt.Fprint(stderr, result.Stderr)
	}
	return result.ExitCode
}

func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.NewFromFile(path)
	}
	return config.New()
}
