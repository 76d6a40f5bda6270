// Package sandbox provides secure Lua execution capabilities.
//
// The sandbox package implements the execution harness for running untrusted
// Lua snippets through an external interpreter. What the snippet may do once
// running is decided by a policy module loaded by path; the harness only
// stages a wrapper script, bounds the run with a hard timeout and cleans up.
//
// Each execution writes one wrapper file into the staging directory, runs
// the interpreter in its own process group and removes the wrapper before
// returning, whatever the outcome.
//
// Usage:
//
//	executor, err := sandbox.NewExecutor(logger, cfg)
//	result, err := executor.Execute(ctx, sandbox.ExecuteRequest{
//	    Code:       "return 'Hello, World!'",
//	    PolicyPath: "/etc/luabox/sandbox.lua",
//	})
package sandbox
