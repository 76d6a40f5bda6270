// Package main is the entry point for the luabox MCP server.
//
// The server exposes the execute_lua tool, which runs untrusted Lua snippets
// under a policy module through an external interpreter with a hard timeout.
// It supports stdio and HTTP transports and can expose Prometheus metrics on
// a separate listener (server.metrics_addr).
//
// The application uses Uber's fx framework for dependency injection and lifecycle
// management, with zap for structured logging and viper for configuration.
package main
