package host

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/LSFLK/superapp-mobile-sub000/internal/domain/bridge"
	"github.com/LSFLK/superapp-mobile-sub000/internal/domain/microapp"
	"github.com/LSFLK/superapp-mobile-sub000/internal/domain/security"
)

var (
	ErrSessionClosed = errors.New("host: session closed")
	ErrNotRunnable   = errors.New("host: micro-app has no entry point")
)

// Session is one rendered micro-app.
type Session struct {
	id     string
	app    microapp.MicroApp
	source string
	mode   security.Mode
	policy security.Policy

	env        *bridge.Env
	dispatcher *bridge.Dispatcher
	tokens     bridge.TokenSource
	repo       *microapp.Repository
	log        *zap.Logger

	scanner atomic.Bool
	closed  atomic.Bool

	startOnce sync.Once
	started   chan struct{}
}

// closingInjector drops script calls once the session is gone.
type closingInjector struct {
	s     *Session
	inner bridge.ScriptInjector
}

func (c closingInjector) InjectJavaScript(script string) error {
	if c.s.closed.Load() {
		return ErrSessionClosed
	}
	if c.inner == nil {
		return nil
	}
	return c.inner.InjectJavaScript(script)
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.id }

// App returns the app as it was when the session opened.
func (s *Session) App() microapp.MicroApp { return s.app.Clone() }

// Mode returns the security mode derived from the entry point.
func (s *Session) Mode() security.Mode { return s.mode }

// Policy returns the per-render security policy.
func (s *Session) Policy() security.Policy { return s.policy }

// SourceURI is the URL the content is loaded from.
func (s *Session) SourceURI() string { return s.source }

// UserID returns the signed-in user the session acts for.
func (s *Session) UserID() string { return s.env.UserID }

// Tokens exposes the session's token wait-list.
func (s *Session) Tokens() *bridge.TokenWaitlist { return s.env.Tokens }

// ScannerVisible reports whether content asked for the QR scanner.
func (s *Session) ScannerVisible() bool { return s.scanner.Load() }

// HideScanner closes the QR scanner.
func (s *Session) HideScanner() { s.scanner.Store(false) }

// Closed reports whether Close has been called.
func (s *Session) Closed() bool { return s.closed.Load() }

// Start exchanges the capability token in the background. Token requests
// that arrive first wait on the wait-list. The returned channel is closed
// once the exchange has finished, successfully or not.
func (s *Session) Start(ctx context.Context) <-chan struct{} {
	s.startOnce.Do(func() {
		go s.exchangeToken(context.WithoutCancel(ctx))
	})
	return s.started
}

func (s *Session) exchangeToken(ctx context.Context) {
	defer close(s.started)

	log := s.log.With(zap.String("app_id", s.app.AppID))
	if s.tokens == nil {
		log.Debug("No token source configured")
		return
	}
	if s.env.UserID == "" {
		log.Warn("Skipping token exchange without a signed-in user")
		return
	}

	tok, err := s.tokens.Get(ctx, s.env.UserID, s.app.AppID)
	if err != nil {
		log.Warn("Token exchange failed", zap.Error(err))
		return
	}
	if s.closed.Load() {
		return
	}

	n := s.env.Tokens.Provide(tok.Token)
	log.Debug("Token provided", zap.Int("waiters", n))

	if s.repo != nil {
		if err := s.repo.UpdateExchangedToken(ctx, s.app.AppID, tok.Token); err != nil {
			log.Warn("Failed to persist exchanged token", zap.Error(err))
		}
	}
}

// Dispatch handles one message posted by the content.
func (s *Session) Dispatch(ctx context.Context, raw, origin string) bridge.Outcome {
	return s.dispatcher.Dispatch(ctx, s.env, s.policy, raw, origin)
}

// Script renders the injected bridge runtime.
func (s *Session) Script(opts bridge.ScriptOptions) string {
	return s.dispatcher.Registry().Script(opts)
}

// Close ends the session. Replies produced afterwards are dropped.
func (s *Session) Close() {
	if s.closed.CompareAndSwap(false, true) {
		s.log.Debug("Session closed", zap.String("session_id", s.id), zap.String("app_id", s.app.AppID))
	}
}

func (s *Session) String() string {
	return fmt.Sprintf("session %s (%s, %s)", s.id, s.app.AppID, s.mode)
}
