// Package logging provides structured logging using uber/zap.
//
// Two modes are supported:
//   - Production: JSON output for machine parsing
//   - Development: Colored console output for human readability
//
// Every subsystem receives a named child logger, so bridge drops,
// install failures and sync progress can be filtered by component:
//
//	logger := logging.NewDefault()
//	bridgeLog := logger.Component("bridge")
//	bridgeLog.Warn("Dropped bridge message", zap.String("topic", topic))
package logging
