// Package main is the entry point for the super app host.
//
// The host plays the native side of a super app: it keeps the micro-app
// catalog, installs and removes bundles through one serialized queue,
// reconciles installs with the user's allow-list, exchanges per-app tokens
// and serves the bridge to rendered content.
//
// Configuration:
//   - Environment variables (12-factor), see internal/infrastructure/config
//   - CLI flags (override env vars)
//
// Usage:
//
//	# Local bundles under ./data, sync on start
//	./superapp-host -root data/documents -user emp@example.com -sync
//
//	# Development mode (console logs, bridge open to LAN dev servers)
//	DEVELOPER_MODE=true ./superapp-host -dev
//
// Signals:
//   - SIGINT, SIGTERM: Graceful shutdown
package main
