// Package config provides application configuration management.
//
// The config package loads and validates luabox configuration from YAML
// files, LUABOX_* environment variables and built-in defaults. It covers the
// MCP server, the sandbox harness, request limits and logging.
//
// Usage:
//
//	cfg, err := config.New()
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Printf("Interpreter: %s\n", cfg.Sandbox.Interpreter)
package config
