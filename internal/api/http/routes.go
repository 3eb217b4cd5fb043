package http

import "github.com/gin-gonic/gin"

// RegisterRoutes mounts the management API.
func RegisterRoutes(r gin.IRouter, h *Handlers) {
	r.GET("/health", h.Health)
	r.GET("/metrics", h.Metrics)

	api := r.Group("/api")

	// Catalog and lifecycle
	api.GET("/apps", h.ListApps)
	api.POST("/apps/refresh", h.RefreshApps)
	api.POST("/apps/:appId/install", h.InstallApp)
	api.DELETE("/apps/:appId", h.RemoveApp)
	api.POST("/apps/:appId/viewed", h.MarkViewed)
	api.GET("/apps/:appId/policy", h.AppPolicy)
	api.POST("/apps/:appId/preview", h.PreviewApp)

	// Entitlement sync
	api.POST("/sync", h.Sync)
	api.GET("/sync/progress", h.SyncProgress)

	// Bridge and tokens
	api.GET("/bridge/script", h.BridgeScript)
	api.DELETE("/tokens", h.InvalidateTokens)
	api.DELETE("/tokens/:appId", h.InvalidateToken)
}
