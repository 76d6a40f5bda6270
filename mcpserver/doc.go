// Package mcpserver provides the Model Context Protocol (MCP) server implementation.
//
// The server registers a single tool, execute_lua, which runs untrusted Lua
// through the sandbox harness and returns stdout, stderr, exit code and
// outcome as a JSON document. Calls are throttled by a rate limiter and a cap
// on concurrent executions.
//
// Usage:
//
//	server, err := mcpserver.New(config, logger, sandboxExecutor)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	err = server.ServeStdio() // or server.ServeHTTP()
package mcpserver
