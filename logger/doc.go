// Package logger provides structured logging capabilities.
//
// Usage:
//
//	logger, err := logger.New("production", "info")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	logger.Info("harness ready", zap.String("interpreter", "lua"))
package logger
