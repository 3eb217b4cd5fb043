// Package server wires the host together and serves it.
//
// Server Lifecycle:
//  1. Open the key-value store and load the persisted micro-apps
//  2. Build the backend client, token cache and installation pipeline
//  3. Start the serialized queue, catalog loader and sync orchestrator
//  4. Build the bridge registry, dispatcher and session manager
//  5. Mount middleware, the management API and the bridge channel
//  6. Serve until the context ends, then shut down gracefully
//
// With SYNC_ON_START the catalog is refreshed and the configured user's
// apps are reconciled in the background once serving begins.
package server
