// Package kv provides the durable key-value store behind the micro-app
// collection, the token cache and micro-app local data.
//
// Backends:
//   - SQLite (default): single table, migrated on open
//   - Redis: shared state across host processes
//   - Memory: tests and ephemeral hosts
package kv
