package ws

import (
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/LSFLK/superapp-mobile-sub000/internal/domain/host"
	"github.com/LSFLK/superapp-mobile-sub000/internal/domain/microapp"
	"github.com/LSFLK/superapp-mobile-sub000/internal/domain/security"
	"github.com/LSFLK/superapp-mobile-sub000/internal/infrastructure/logging"
	"github.com/LSFLK/superapp-mobile-sub000/internal/infrastructure/monitoring"
)

const (
	writeWait      = 10 * time.Second
	maxMessageSize = 1 << 20
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	// HandleConnection checks the Origin header against the app's policy
	// before upgrading.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Handler serves the bridge content channel: inbound frames are raw bridge
// messages, outbound frames are scripts for the renderer to evaluate. The
// first outbound frame is the bridge runtime itself.
type Handler struct {
	sessions    *host.Manager
	metrics     *monitoring.Metrics
	defaultUser string
	log         *zap.Logger
}

// NewHandler creates a new WebSocket handler
func NewHandler(sessions *host.Manager, metrics *monitoring.Metrics, defaultUser string, log *zap.Logger) *Handler {
	return &Handler{
		sessions:    sessions,
		metrics:     metrics,
		defaultUser: defaultUser,
		log:         logging.OrNop(log),
	}
}

// conn serializes writes; gorilla allows one concurrent writer.
type conn struct {
	mu      sync.Mutex
	ws      *websocket.Conn
	metrics *monitoring.Metrics
}

func (c *conn) InjectJavaScript(script string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
	if err := c.ws.WriteMessage(websocket.TextMessage, []byte(script)); err != nil {
		return err
	}
	c.metrics.RecordWSMessage("outbound")
	return nil
}

// origin decides which origin the channel's messages are dispatched under.
// Browsers always send Origin on a WebSocket handshake, so it must match
// the app's bridge origins. Without one the caller is a native renderer and
// speaks for the app's own source. The origin query parameter is honoured
// only in developer mode.
func (h *Handler) origin(c *gin.Context, desc host.Descriptor) (string, bool) {
	origin := desc.Source
	if header := c.GetHeader("Origin"); header != "" {
		if !security.IsBridgeAccessAllowed(header, desc.Policy) {
			return "", false
		}
		origin = header
	}
	if q := c.Query("origin"); q != "" && h.sessions.Options().DeveloperMode {
		origin = q
	}
	return origin, true
}

// HandleConnection upgrades the request and runs a session until the
// renderer disconnects.
func (h *Handler) HandleConnection(c *gin.Context) {
	appID := c.Param("appId")
	user := c.Query("userId")
	if user == "" {
		user = h.defaultUser
	}

	desc, err := h.sessions.Describe(appID)
	if err != nil {
		status := http.StatusConflict
		if errors.Is(err, microapp.ErrAppNotFound) {
			status = http.StatusNotFound
		}
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}

	origin, ok := h.origin(c, desc)
	if !ok {
		h.log.Warn("Bridge channel refused",
			zap.String("app_id", appID),
			zap.String("origin", c.GetHeader("Origin")))
		c.JSON(http.StatusForbidden, gin.H{"error": "origin not authorized for bridge access"})
		return
	}

	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Warn("WebSocket upgrade failed", zap.Error(err))
		return
	}
	defer ws.Close()
	ws.SetReadLimit(maxMessageSize)

	connID := uuid.NewString()
	log := h.log.With(zap.String("conn_id", connID), zap.String("app_id", appID))
	h.metrics.IncWSConnections()
	defer h.metrics.DecWSConnections()

	out := &conn{ws: ws, metrics: h.metrics}
	session, err := h.sessions.Open(appID, user, out)
	if err != nil {
		log.Warn("Failed to open session", zap.Error(err))
		_ = ws.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseInternalServerErr, err.Error()))
		return
	}
	defer h.sessions.Close(session.ID())
	log = log.With(zap.String("session_id", session.ID()))

	if err := out.InjectJavaScript(session.Script(h.sessions.Options().ScriptOptions)); err != nil {
		log.Warn("Failed to send bridge runtime", zap.Error(err))
		return
	}

	ctx := c.Request.Context()
	session.Start(ctx)
	log.Info("Bridge channel connected", zap.String("origin", origin))

	for {
		kind, data, err := ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Warn("WebSocket read error", zap.Error(err))
			}
			break
		}
		if kind != websocket.TextMessage {
			continue
		}
		h.metrics.RecordWSMessage("inbound")
		outcome := session.Dispatch(ctx, string(data), origin)
		log.Debug("Bridge message", zap.Stringer("outcome", outcome))
	}
	log.Info("Bridge channel disconnected")
}
