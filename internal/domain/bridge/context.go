package bridge

import (
	"go.uber.org/zap"
)

// ScriptInjector delivers host-to-content script calls to a renderer.
type ScriptInjector interface {
	InjectJavaScript(script string) error
}

// Env is the per-renderer state a host screen supplies to the dispatcher.
type Env struct {
	UserID   string
	AppID    string
	Tokens   *TokenWaitlist
	Injector ScriptInjector
	// SetScannerVisible toggles the native QR scanner; nil disables it.
	SetScannerVisible func(visible bool)
}

// Context is the bounded capability set a handler receives for one message.
type Context struct {
	UserID    string
	AppID     string
	Topic     string
	RequestID string

	methods Methods
	env     *Env
	log     *zap.Logger
}

// Token returns the current capability token, or "".
func (c *Context) Token() string {
	if c.env.Tokens == nil {
		return ""
	}
	return c.env.Tokens.Token()
}

// Tokens is the wait-list for deferred token requests.
func (c *Context) Tokens() *TokenWaitlist {
	return c.env.Tokens
}

// SetScannerVisible shows or hides the native scanner.
func (c *Context) SetScannerVisible(visible bool) {
	if c.env.SetScannerVisible != nil {
		c.env.SetScannerVisible(visible)
	}
}

// SendResponseToWeb injects window.nativebridge.<method>(data, requestId).
// An empty requestID answers the message being handled.
func (c *Context) SendResponseToWeb(method string, data any, requestID string) {
	if requestID == "" {
		requestID = c.RequestID
	}
	script, err := RenderCall(method, data, requestID)
	if err != nil {
		c.log.Error("Failed to render bridge response", zap.String("method", method), zap.Error(err))
		return
	}
	if c.env.Injector == nil {
		c.log.Warn("No renderer attached, dropping response", zap.String("method", method))
		return
	}
	if err := c.env.Injector.InjectJavaScript(script); err != nil {
		c.log.Warn("Bridge response dropped",
			zap.String("method", method),
			zap.String("request_id", requestID),
			zap.Error(err))
	}
}

// Resolve settles the current request with data.
func (c *Context) Resolve(data any) {
	c.SendResponseToWeb(c.methods.Resolve, data, c.RequestID)
}

// Reject settles the current request with an error message.
func (c *Context) Reject(message string) {
	c.SendResponseToWeb(c.methods.Reject, message, c.RequestID)
}
