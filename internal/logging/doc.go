// Package logging provides structured logging for the lumen toolkit.
//
// This package wraps zap logger with convenience functions for common logging
// patterns used throughout the client, emulator, and CLI. It provides both
// general logging functions and specialized helpers for protocol-level
// logging.
//
// # Log Levels
//
// The package supports standard log levels:
//   - Debug: Detailed debugging info (hex dumps, command/status traces)
//   - Info: Normal operations (connections, state changes)
//   - Warn: Non-fatal issues (underruns, invalid responses)
//   - Error: Fatal issues (startup failures, critical errors)
//
// # Structured Logging
//
// All log functions use structured fields for queryability:
//
//	logging.Info("DAC connected",
//	    zap.String("remote_addr", "192.168.1.100:7765"),
//	    zap.Uint16("buffer_fullness", 0),
//	)
//
// # Specialized Logging
//
// The package provides domain-specific logging functions:
//
//	logging.LogConnection(remoteAddr, "connected")
//	logging.LogCommand(remoteAddr, 'b', 6)
//	logging.LogStatus(remoteAddr, "playing", 1200, 30000)
//	logging.LogRawBytes("response frame", data)
//
// # Configuration
//
// Initialize logging at startup:
//
//	if err := logging.Initialize("debug"); err != nil {
//	    log.Fatal(err)
//	}
//	defer logging.Sync()
//
// CLI commands that want silent-by-default behavior should use
// InitializeFromEnv, which reads LUMEN_LOG_LEVEL and falls back to a nop
// logger when it is unset.
//
// # Thread Safety
//
// All logging functions are safe for concurrent use. The underlying zap
// logger handles synchronization automatically.
package logging
