package host

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/LSFLK/superapp-mobile-sub000/internal/domain/microapp"
	"github.com/LSFLK/superapp-mobile-sub000/internal/domain/security"
	"github.com/LSFLK/superapp-mobile-sub000/internal/providers/webview"
)

// ErrNotLocal is returned when an entry page is requested for an app that
// is not served from an installed bundle.
var ErrNotLocal = errors.New("host: micro-app is not a local bundle")

// ConsoleLine is one captured console call.
type ConsoleLine struct {
	Level   string `json:"level"`
	Message string `json:"message"`
}

// PreviewReport is the outcome of running an installed app headlessly.
type PreviewReport struct {
	AppID    string           `json:"appId"`
	Document webview.Document `json:"document"`
	Handled  int              `json:"handled"`
	Console  []ConsoleLine    `json:"console"`
	// Error is set when a page script threw; the host itself succeeded.
	Error string `json:"error,omitempty"`
}

// LoadEntry runs the entry page of a locally installed app in r. External
// scripts resolve inside the bundle directory only.
func (m *Manager) LoadEntry(ctx context.Context, appID string, r *webview.Renderer) (webview.Document, error) {
	app, ok := m.repo.Get(appID)
	if !ok {
		return webview.Document{}, fmt.Errorf("%w: %s", microapp.ErrAppNotFound, appID)
	}
	if app.WebViewURI == "" {
		return webview.Document{}, fmt.Errorf("%w: %s", ErrNotRunnable, appID)
	}
	// Classified without developer mode: only where the bytes live matters.
	if security.ModeFor(app.WebViewURI, false) != security.ModeLocalFile {
		return webview.Document{}, fmt.Errorf("%w: %s", ErrNotLocal, appID)
	}

	entry, err := m.entryPath(app.WebViewURI)
	if err != nil {
		return webview.Document{}, err
	}
	f, err := os.Open(entry)
	if err != nil {
		return webview.Document{}, fmt.Errorf("open entry page: %w", err)
	}
	defer f.Close()

	return r.LoadDocument(ctx, f, bundleResolver(filepath.Dir(entry)))
}

// Preview opens a headless session for appID, runs its entry page, lets
// timers run for settle of virtual time and dispatches everything the
// page posted to the bridge. The session is closed before returning.
func (m *Manager) Preview(ctx context.Context, appID, userID string, settle time.Duration) (PreviewReport, error) {
	s, r, err := m.OpenHeadless(ctx, appID, userID, webview.DefaultConfig())
	if err != nil {
		return PreviewReport{}, err
	}
	defer func() {
		m.Close(s.ID())
		_ = r.Close()
	}()

	report := PreviewReport{AppID: appID}
	doc, err := m.LoadEntry(ctx, appID, r)
	report.Document = doc
	if err != nil {
		var jsErr *webview.ScriptError
		if !errors.As(err, &jsErr) {
			return PreviewReport{}, err
		}
		report.Error = err.Error()
	}

	report.Handled = m.Pump(ctx, s, r)
	r.Pump()
	if settle > 0 {
		r.Advance(settle)
	}
	report.Handled += m.Pump(ctx, s, r)

	for _, e := range r.Console() {
		report.Console = append(report.Console, ConsoleLine{Level: e.Level, Message: e.Message})
	}
	m.log.Info("Preview finished",
		zap.String("app_id", appID),
		zap.Int("scripts", doc.Scripts),
		zap.Int("handled", report.Handled),
		zap.Bool("script_error", report.Error != ""))
	return report, nil
}

// entryPath maps a stored local webViewUri onto the filesystem.
func (m *Manager) entryPath(webViewURI string) (string, error) {
	if strings.HasPrefix(webViewURI, "file:") {
		u, err := url.Parse(webViewURI)
		if err != nil {
			return "", fmt.Errorf("parse entry uri: %w", err)
		}
		return filepath.FromSlash(u.Path), nil
	}
	rel, err := url.PathUnescape(strings.TrimPrefix(webViewURI, "/"))
	if err != nil {
		return "", fmt.Errorf("parse entry uri: %w", err)
	}
	return filepath.Join(m.opts.DocumentRoot, filepath.FromSlash(rel)), nil
}

// bundleResolver reads bundle-relative script sources. Absolute and
// protocol-relative URLs are refused, and paths cannot climb out of dir.
func bundleResolver(dir string) webview.ScriptResolver {
	return func(src string) ([]byte, error) {
		u, err := url.Parse(src)
		if err != nil {
			return nil, err
		}
		if u.Scheme != "" || u.Host != "" {
			return nil, fmt.Errorf("external script %q", src)
		}
		rel := path.Clean("/" + u.Path)
		return os.ReadFile(filepath.Join(dir, filepath.FromSlash(rel)))
	}
}
