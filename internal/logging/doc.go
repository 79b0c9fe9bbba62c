// Package logging provides structured logging for matrixctl.
//
// This package wraps a zap logger with convenience functions used by the
// transport, discovery and session layers. Logging is silent unless a level is
// passed to Initialize or MATRIXCTL_LOG_LEVEL is set, so the CLI output stays
// clean by default.
//
// # Log Levels
//
//   - Debug: datagram hex dumps, unclassified replies, event delivery
//   - Info: socket lifecycle, discovery responses, status transitions
//   - Warn: rejected commands (missing target, malformed hex)
//   - Error: bind, broadcast and socket failures, send errors
//
// # Usage
//
//	if err := logging.Initialize("debug"); err != nil {
//	    log.Fatal(err)
//	}
//	defer logging.Sync()
//
//	log := logging.Named("transport")
//	logging.LogDatagram(log, "sent", "255.255.255.255:7000", probe)
//
// # Thread Safety
//
// All logging functions are safe for concurrent use.
package logging
