// Package http exposes the host's management API over gin.
//
// Endpoints:
//   - GET /health, GET /metrics
//   - GET /api/apps, POST /api/apps/refresh
//   - POST /api/apps/:appId/install, DELETE /api/apps/:appId
//   - POST /api/apps/:appId/viewed, GET /api/apps/:appId/policy
//   - POST /api/apps/:appId/preview?userId=&settleMs=
//   - POST /api/sync, GET /api/sync/progress
//   - GET /api/bridge/script
//   - DELETE /api/tokens, DELETE /api/tokens/:appId?userId=
//
// Installs and removals go through the shared serialized queue, so a
// request returns once its job has run.
package http
