package host

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/LSFLK/superapp-mobile-sub000/internal/domain/bridge"
	"github.com/LSFLK/superapp-mobile-sub000/internal/domain/microapp"
	"github.com/LSFLK/superapp-mobile-sub000/internal/domain/security"
	"github.com/LSFLK/superapp-mobile-sub000/internal/infrastructure/logging"
	"github.com/LSFLK/superapp-mobile-sub000/internal/providers/webview"
	"github.com/LSFLK/superapp-mobile-sub000/internal/shared/id"
)

// Options configure how sessions are opened.
type Options struct {
	DocumentRoot  string
	DeveloperMode bool
	ScriptOptions bridge.ScriptOptions
}

// Manager opens and tracks rendered micro-app sessions.
type Manager struct {
	sessions   sync.Map // id -> *Session
	repo       *microapp.Repository
	dispatcher *bridge.Dispatcher
	tokens     bridge.TokenSource
	opts       Options
	log        *zap.Logger
}

// NewManager creates a session manager.
func NewManager(repo *microapp.Repository, dispatcher *bridge.Dispatcher, tokens bridge.TokenSource, opts Options, log *zap.Logger) *Manager {
	return &Manager{
		repo:       repo,
		dispatcher: dispatcher,
		tokens:     tokens,
		opts:       opts,
		log:        logging.OrNop(log),
	}
}

// Open starts a session for appID on behalf of userID. injector receives
// host-to-content script calls; it may be nil for a session that only
// validates traffic.
func (m *Manager) Open(appID, userID string, injector bridge.ScriptInjector) (*Session, error) {
	app, ok := m.repo.Get(appID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", microapp.ErrAppNotFound, appID)
	}
	if app.WebViewURI == "" {
		return nil, fmt.Errorf("%w: %s", ErrNotRunnable, appID)
	}

	d := m.describe(app)

	s := &Session{
		id:         id.NewSessionID().String(),
		app:        app,
		source:     d.Source,
		mode:       d.Mode,
		policy:     d.Policy,
		dispatcher: m.dispatcher,
		tokens:     m.tokens,
		repo:       m.repo,
		log:        m.log,
		started:    make(chan struct{}),
	}
	s.env = &bridge.Env{
		UserID:            userID,
		AppID:             app.AppID,
		Tokens:            bridge.NewTokenWaitlist(),
		Injector:          closingInjector{s: s, inner: injector},
		SetScannerVisible: s.scanner.Store,
	}

	m.sessions.Store(s.id, s)
	m.log.Info("Session opened",
		zap.String("session_id", s.id),
		zap.String("app_id", app.AppID),
		zap.String("mode", d.Mode.String()),
		zap.String("source", d.Source))
	return s, nil
}

// Descriptor is what a renderer for an app would be given.
type Descriptor struct {
	AppID    string          `json:"appId"`
	Mode     security.Mode   `json:"-"`
	ModeName string          `json:"mode"`
	Source   string          `json:"source"`
	Policy   security.Policy `json:"policy"`
	CSP      string          `json:"csp"`
}

// Describe derives the load mode, source and policy for an installed app
// without opening a session.
func (m *Manager) Describe(appID string) (Descriptor, error) {
	app, ok := m.repo.Get(appID)
	if !ok {
		return Descriptor{}, fmt.Errorf("%w: %s", microapp.ErrAppNotFound, appID)
	}
	if app.WebViewURI == "" {
		return Descriptor{}, fmt.Errorf("%w: %s", ErrNotRunnable, appID)
	}
	return m.describe(app), nil
}

func (m *Manager) describe(app microapp.MicroApp) Descriptor {
	mode := security.ModeFor(app.WebViewURI, m.opts.DeveloperMode)
	source := m.sourceURI(app.WebViewURI, mode)
	policy := security.PolicyFor(mode, source, m.opts.DocumentRoot)
	return Descriptor{
		AppID:    app.AppID,
		Mode:     mode,
		ModeName: mode.String(),
		Source:   source,
		Policy:   policy,
		CSP:      security.GenerateCSP(policy),
	}
}

// Options returns the manager's options.
func (m *Manager) Options() Options { return m.opts }

// Dispatcher returns the shared dispatcher.
func (m *Manager) Dispatcher() *bridge.Dispatcher { return m.dispatcher }

// OpenHeadless opens a session rendered by a goja renderer with the bridge
// runtime already loaded. The caller closes both.
func (m *Manager) OpenHeadless(ctx context.Context, appID, userID string, cfg webview.Config) (*Session, *webview.Renderer, error) {
	app, ok := m.repo.Get(appID)
	if !ok {
		return nil, nil, fmt.Errorf("%w: %s", microapp.ErrAppNotFound, appID)
	}
	if cfg.Origin == "" {
		cfg.Origin = m.sourceURI(app.WebViewURI, security.ModeFor(app.WebViewURI, m.opts.DeveloperMode))
	}

	r, err := webview.New(cfg, m.log.Named("webview"))
	if err != nil {
		return nil, nil, err
	}
	s, err := m.Open(appID, userID, r)
	if err != nil {
		_ = r.Close()
		return nil, nil, err
	}
	if err := r.Load(ctx, s.Script(m.opts.ScriptOptions)); err != nil {
		m.Close(s.ID())
		_ = r.Close()
		return nil, nil, fmt.Errorf("load bridge runtime: %w", err)
	}
	return s, r, nil
}

// Pump dispatches every message the renderer has queued until it goes
// quiet and returns how many were handled.
func (m *Manager) Pump(ctx context.Context, s *Session, r *webview.Renderer) int {
	n := 0
	for {
		msgs := r.Messages()
		if len(msgs) == 0 {
			return n
		}
		for _, msg := range msgs {
			s.Dispatch(ctx, msg.Data, msg.Origin)
			n++
		}
	}
}

// Get returns an open session.
func (m *Manager) Get(id string) (*Session, bool) {
	v, ok := m.sessions.Load(id)
	if !ok {
		return nil, false
	}
	return v.(*Session), true
}

// Close closes and forgets a session.
func (m *Manager) Close(id string) bool {
	v, ok := m.sessions.LoadAndDelete(id)
	if !ok {
		return false
	}
	v.(*Session).Close()
	return true
}

// Count returns the number of open sessions.
func (m *Manager) Count() int {
	n := 0
	m.sessions.Range(func(_, _ any) bool {
		n++
		return true
	})
	return n
}

// sourceURI resolves a stored webViewUri. Local bundles are stored
// relative to the document root.
func (m *Manager) sourceURI(webViewURI string, mode security.Mode) string {
	if mode != security.ModeLocalFile || strings.HasPrefix(webViewURI, "file:") {
		return webViewURI
	}
	root := security.DocumentRootURL(m.opts.DocumentRoot)
	if root == "" {
		return webViewURI
	}
	return root + strings.TrimPrefix(webViewURI, "/")
}
