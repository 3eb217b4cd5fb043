package http

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/LSFLK/superapp-mobile-sub000/internal/domain/appsync"
	"github.com/LSFLK/superapp-mobile-sub000/internal/domain/bridge"
	"github.com/LSFLK/superapp-mobile-sub000/internal/domain/catalog"
	"github.com/LSFLK/superapp-mobile-sub000/internal/domain/host"
	"github.com/LSFLK/superapp-mobile-sub000/internal/domain/install"
	"github.com/LSFLK/superapp-mobile-sub000/internal/domain/microapp"
	"github.com/LSFLK/superapp-mobile-sub000/internal/domain/tokencache"
	"github.com/LSFLK/superapp-mobile-sub000/internal/infrastructure/logging"
	"github.com/LSFLK/superapp-mobile-sub000/internal/infrastructure/monitoring"
	"github.com/LSFLK/superapp-mobile-sub000/internal/infrastructure/tracing"
)

// Deps are the components the handlers call into.
type Deps struct {
	Repo         *microapp.Repository
	Loader       *catalog.Loader
	Pipeline     *install.Pipeline
	Orchestrator *appsync.Orchestrator
	Tokens       *tokencache.Cache
	Sessions     *host.Manager
	Metrics      *monitoring.Metrics
	// DefaultUser is used when a request names no user.
	DefaultUser string
	Log         *zap.Logger
}

// Handlers contains all HTTP handlers
type Handlers struct {
	deps Deps
	log  *zap.Logger
}

// NewHandlers creates a new handler set
func NewHandlers(deps Deps) *Handlers {
	return &Handlers{deps: deps, log: logging.OrNop(deps.Log)}
}

// AppView is a catalog entry with its transient pipeline state.
type AppView struct {
	microapp.MicroApp
	State string `json:"state"`
	Fresh bool   `json:"fresh"`
}

// SyncRequest is the body of POST /api/sync.
type SyncRequest struct {
	UserID  string `json:"userId"`
	Confirm bool   `json:"confirm"`
}

// Health handles detailed health check
func (h *Handlers) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":   "healthy",
		"apps":     len(h.deps.Repo.List()),
		"queue":    h.deps.Orchestrator.Queue().Len(),
		"sessions": h.deps.Sessions.Count(),
		"sync":     h.deps.Orchestrator.Progress(),
		"totals":   h.deps.Metrics.Snapshot(),
	})
}

// Metrics serves Prometheus metrics.
func (h *Handlers) Metrics(c *gin.Context) {
	h.deps.Metrics.Handler().ServeHTTP(c.Writer, c.Request)
}

// ListApps lists the catalog with local state
func (h *Handlers) ListApps(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"apps": h.views(h.deps.Repo.List())})
}

// RefreshApps fetches the remote catalog and reconciles versions
func (h *Handlers) RefreshApps(c *gin.Context) {
	res, err := h.deps.Loader.Refresh(c.Request.Context())
	if err != nil {
		h.log.Warn("Catalog refresh failed", tracing.Field(c.Request.Context()), zap.Error(err))
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"apps":    h.views(res.Apps),
		"updates": nonNil(res.Updates),
	})
}

// InstallApp installs or updates one app from the catalog
func (h *Handlers) InstallApp(c *gin.Context) {
	appID := c.Param("appId")
	if err := h.deps.Orchestrator.InstallNow(c.Request.Context(), appID); err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error(), "appId": appID})
		return
	}
	app, _ := h.deps.Repo.Get(appID)
	c.JSON(http.StatusOK, gin.H{"success": true, "app": h.view(app)})
}

// RemoveApp removes an app's bundle and local state
func (h *Handlers) RemoveApp(c *gin.Context) {
	appID := c.Param("appId")
	if err := h.deps.Orchestrator.RemoveNow(c.Request.Context(), appID); err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error(), "appId": appID})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "appId": appID})
}

// MarkViewed ends an app's "new" badge
func (h *Handlers) MarkViewed(c *gin.Context) {
	appID := c.Param("appId")
	if err := h.deps.Repo.MarkViewed(c.Request.Context(), appID); err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "appId": appID})
}

// Sync reconciles installed apps with the user's allow-list. With
// confirm=false the plan is returned and nothing is queued.
func (h *Handlers) Sync(c *gin.Context) {
	var req SyncRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}
	user := h.user(req.UserID)
	if user == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "userId is required"})
		return
	}

	report, err := h.deps.Orchestrator.Sync(c.Request.Context(), user, appsync.ConfirmFunc(
		func(context.Context, appsync.Plan) bool { return req.Confirm },
	))
	switch {
	case errors.Is(err, appsync.ErrSyncDeclined):
		c.JSON(http.StatusOK, gin.H{"declined": true, "plan": report.Plan})
	case errors.Is(err, appsync.ErrSyncInProgress):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error(), "progress": h.deps.Orchestrator.Progress()})
	case err != nil:
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusOK, report)
	}
}

// SyncProgress reports the counters of the current or last sync
func (h *Handlers) SyncProgress(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"progress":    h.deps.Orchestrator.Progress(),
		"jobs":        h.deps.Orchestrator.Queue().Jobs(),
		"downloading": h.deps.Pipeline.Downloading(),
	})
}

// AppPolicy returns the security policy and CSP an app would render with
func (h *Handlers) AppPolicy(c *gin.Context) {
	d, err := h.deps.Sessions.Describe(c.Param("appId"))
	if err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, d)
}

// PreviewApp runs an installed app's entry page headlessly and reports
// what it logged and sent over the bridge
func (h *Handlers) PreviewApp(c *gin.Context) {
	user := h.user(c.Query("userId"))
	settle := time.Duration(0)
	if v := c.Query("settleMs"); v != "" {
		ms, err := strconv.Atoi(v)
		if err != nil || ms < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "settleMs must be a non-negative integer"})
			return
		}
		settle = time.Duration(ms) * time.Millisecond
	}

	report, err := h.deps.Sessions.Preview(c.Request.Context(), c.Param("appId"), user, settle)
	if err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, report)
}

// BridgeScript serves the injected bridge runtime
func (h *Handlers) BridgeScript(c *gin.Context) {
	opts := h.deps.Sessions.Options().ScriptOptions
	c.Data(http.StatusOK, "application/javascript; charset=utf-8", []byte(h.registry().Script(opts)))
}

// InvalidateTokens drops every cached capability token
func (h *Handlers) InvalidateTokens(c *gin.Context) {
	n, err := h.deps.Tokens.InvalidateAll(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"invalidated": n})
}

// InvalidateToken drops one user's cached token for an app
func (h *Handlers) InvalidateToken(c *gin.Context) {
	user := h.user(c.Query("userId"))
	if user == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "userId is required"})
		return
	}
	appID := c.Param("appId")
	if err := h.deps.Tokens.Invalidate(c.Request.Context(), user, appID); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"invalidated": 1, "appId": appID, "userId": user})
}

func (h *Handlers) registry() *bridge.Registry {
	return h.deps.Sessions.Dispatcher().Registry()
}

func (h *Handlers) user(requested string) string {
	if requested != "" {
		return requested
	}
	return h.deps.DefaultUser
}

func (h *Handlers) views(apps []microapp.MicroApp) []AppView {
	out := make([]AppView, 0, len(apps))
	for _, app := range apps {
		out = append(out, h.view(app))
	}
	return out
}

func (h *Handlers) view(app microapp.MicroApp) AppView {
	state := string(app.Status)
	if s := h.deps.Pipeline.State(app.AppID); s != "" {
		state = s
	}
	if state == "" {
		state = string(microapp.StatusNotDownloaded)
	}
	return AppView{MicroApp: app, State: state, Fresh: app.IsFresh(time.Now())}
}

// statusFor maps domain errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, microapp.ErrAppNotFound):
		return http.StatusNotFound
	case errors.Is(err, host.ErrNotRunnable),
		errors.Is(err, host.ErrNotLocal):
		return http.StatusConflict
	case errors.Is(err, install.ErrBusy):
		return http.StatusConflict
	case errors.Is(err, appsync.ErrNoDownloadURL),
		errors.Is(err, install.ErrInvalidAppID),
		errors.Is(err, install.ErrEmptyDownloadURL):
		return http.StatusUnprocessableEntity
	case errors.Is(err, install.ErrEntryNotFound),
		errors.Is(err, install.ErrNotZip),
		errors.Is(err, install.ErrEmptyArchive):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
