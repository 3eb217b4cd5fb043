/*
Package monitoring provides Prometheus metrics for the host.

Each Metrics value owns its own registry so several hosts (or tests) can
live in one process without duplicate registration.

# Metrics

  - HTTP requests by route and status
  - Installs and removals by result, install duration
  - Installation queue depth
  - Sync runs by result
  - Bridge messages by topic and outcome
  - Token cache hits and misses
  - Bridge WebSocket connections and messages

# Usage

	metrics := monitoring.NewMetrics()
	router.Use(monitoring.Middleware(metrics))
	router.GET("/metrics", gin.WrapH(metrics.Handler()))
*/
package monitoring
