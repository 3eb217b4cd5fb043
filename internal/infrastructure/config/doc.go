// Package config provides 12-factor configuration management for the host.
//
// Configuration is loaded from environment variables with defaults.
//
// Configuration Sections:
//   - Server: HTTP server settings (port, host)
//   - Backend: catalog / entitlement / token issuer endpoint and HTTP client tuning
//   - Storage: durable key-value backend (sqlite, redis, memory)
//   - Host: document root, current user, developer mode, bridge options
//   - Logging: Log level and output format
//   - RateLimit: Per-IP rate limiting configuration
//
// Environment Variables:
//   - PORT, HOST
//   - BACKEND_BASE_URL, ACCESS_TOKEN, HTTP_TIMEOUT, HTTP_RETRY_COUNT, HTTP_RATE_LIMIT
//   - STORE_DRIVER, SQLITE_PATH, REDIS_URL
//   - DOCUMENT_ROOT, USER_ID, DEVELOPER_MODE, DEFAULT_CLIENT_ID,
//     BRIDGE_REQUEST_TIMEOUT_MS, SYNC_ON_START
//   - LOG_LEVEL, LOG_DEV
//   - RATE_LIMIT_RPS, RATE_LIMIT_BURST, RATE_LIMIT_ENABLED
package config
