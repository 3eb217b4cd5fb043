package microapp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/LSFLK/superapp-mobile-sub000/internal/infrastructure/kv"
	"github.com/LSFLK/superapp-mobile-sub000/internal/infrastructure/logging"
)

// StorageKey holds the whole persisted collection.
const StorageKey = "apps"

var (
	ErrAppNotFound   = errors.New("micro-app not found")
	ErrEmptyAppID    = errors.New("micro-app id is required")
	ErrEmptyEntryURI = errors.New("downloaded micro-app requires a webViewUri")
)

// Repository is the shared micro-app collection. Every mutation is written
// through to the key-value store before the call returns.
type Repository struct {
	mu    sync.RWMutex
	apps  []*MicroApp // Protected by mu, catalog order
	index map[string]*MicroApp
	store kv.Store
	log   *zap.Logger
	now   func() time.Time
}

// NewRepository creates an empty repository backed by store.
func NewRepository(store kv.Store, log *zap.Logger) *Repository {
	return &Repository{
		index: make(map[string]*MicroApp),
		store: store,
		log:   logging.OrNop(log),
		now:   time.Now,
	}
}

// WithClock overrides the time source.
func (r *Repository) WithClock(now func() time.Time) *Repository {
	r.now = now
	return r
}

// Load replaces in-memory state with the persisted collection.
// A missing key yields an empty collection.
func (r *Repository) Load(ctx context.Context) error {
	raw, err := r.store.Get(ctx, StorageKey)
	if errors.Is(err, kv.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("load apps: %w", err)
	}

	var apps []MicroApp
	if err := json.Unmarshal([]byte(raw), &apps); err != nil {
		return fmt.Errorf("decode apps: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.apps, r.index = build(apps)
	r.log.Info("Loaded micro-apps", zap.Int("count", len(apps)))
	return nil
}

// List returns copies of every app in catalog order.
func (r *Repository) List() []MicroApp {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]MicroApp, 0, len(r.apps))
	for _, app := range r.apps {
		out = append(out, app.Clone())
	}
	return out
}

// Get retrieves an app by ID
func (r *Repository) Get(appID string) (MicroApp, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	app, ok := r.index[appID]
	if !ok {
		return MicroApp{}, false
	}
	return app.Clone(), true
}

// Installed returns apps whose status is downloaded.
func (r *Repository) Installed() []MicroApp {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]MicroApp, 0)
	for _, app := range r.apps {
		if app.Installed() {
			out = append(out, app.Clone())
		}
	}
	return out
}

// Replace swaps the whole collection.
func (r *Repository) Replace(ctx context.Context, apps []MicroApp) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.commit(ctx, apps)
}

// MergeCatalog merges remote entries with local install state under the
// repository lock and returns the merged collection.
func (r *Repository) MergeCatalog(ctx context.Context, remote []MicroApp) ([]MicroApp, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	merged := Merge(r.snapshot(), remote)
	if err := r.commit(ctx, merged); err != nil {
		return nil, err
	}

	out := make([]MicroApp, 0, len(r.apps))
	for _, app := range r.apps {
		out = append(out, app.Clone())
	}
	return out, nil
}

// MarkDownloaded records a completed install. Apps not yet seen in the
// catalog are created so an ad-hoc install is never lost.
func (r *Repository) MarkDownloaded(ctx context.Context, appID, webViewURI, clientID, version string) error {
	if appID == "" {
		return ErrEmptyAppID
	}
	if webViewURI == "" {
		return ErrEmptyEntryURI
	}
	return r.update(ctx, appID, true, func(app *MicroApp) bool {
		app.Status = StatusDownloaded
		app.WebViewURI = webViewURI
		app.ClientID = clientID
		app.ExchangedToken = ""
		app.DownloadedAt = r.now().UnixMilli()
		app.InstalledVersion = version
		return true
	})
}

// MarkNotDownloaded clears local install state. Unknown apps are a no-op.
func (r *Repository) MarkNotDownloaded(ctx context.Context, appID string) error {
	err := r.update(ctx, appID, false, func(app *MicroApp) bool {
		if app.Status == StatusNotDownloaded && app.WebViewURI == "" && app.ClientID == "" && app.ExchangedToken == "" {
			return false
		}
		app.Status = StatusNotDownloaded
		app.WebViewURI = ""
		app.ClientID = ""
		app.ExchangedToken = ""
		app.InstalledVersion = ""
		return true
	})
	if errors.Is(err, ErrAppNotFound) {
		return nil
	}
	return err
}

// UpdateExchangedToken stores the latest capability token for an app.
func (r *Repository) UpdateExchangedToken(ctx context.Context, appID, token string) error {
	return r.update(ctx, appID, false, func(app *MicroApp) bool {
		app.ExchangedToken = token
		return true
	})
}

// MarkViewed closes the fresh-install window for an app.
func (r *Repository) MarkViewed(ctx context.Context, appID string) error {
	return r.update(ctx, appID, false, func(app *MicroApp) bool {
		app.DownloadedAt = r.now().Add(-(FreshWindow + time.Hour)).UnixMilli()
		return true
	})
}

// update applies fn to a copy of one app. The copy replaces the live entry
// only after the resulting collection has been persisted, so a failed write
// leaves memory as it was. fn reports whether it changed anything.
func (r *Repository) update(ctx context.Context, appID string, create bool, fn func(*MicroApp) bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	cur, ok := r.index[appID]
	var next MicroApp
	switch {
	case ok:
		next = cur.Clone()
	case create:
		next = MicroApp{AppID: appID}
	default:
		return fmt.Errorf("%w: %s", ErrAppNotFound, appID)
	}
	if !fn(&next) {
		return nil
	}

	snapshot := make([]MicroApp, 0, len(r.apps)+1)
	for _, app := range r.apps {
		if app.AppID == appID {
			snapshot = append(snapshot, next)
			continue
		}
		snapshot = append(snapshot, *app)
	}
	if !ok {
		snapshot = append(snapshot, next)
	}
	if err := r.persist(ctx, snapshot); err != nil {
		return err
	}

	if ok {
		*cur = next
		return nil
	}
	r.apps = append(r.apps, &next)
	r.index[appID] = &next
	return nil
}

// commit persists apps and then makes them the live collection.
// Must be called with mu held.
func (r *Repository) commit(ctx context.Context, apps []MicroApp) error {
	list, index := build(apps)
	snapshot := make([]MicroApp, 0, len(list))
	for _, app := range list {
		snapshot = append(snapshot, *app)
	}
	if err := r.persist(ctx, snapshot); err != nil {
		return err
	}
	r.apps, r.index = list, index
	return nil
}

// snapshot must be called with mu held.
func (r *Repository) snapshot() []MicroApp {
	out := make([]MicroApp, 0, len(r.apps))
	for _, app := range r.apps {
		out = append(out, *app)
	}
	return out
}

// build indexes apps, dropping entries without an ID. A repeated ID keeps
// its first position and the last value.
func build(apps []MicroApp) ([]*MicroApp, map[string]*MicroApp) {
	list := make([]*MicroApp, 0, len(apps))
	index := make(map[string]*MicroApp, len(apps))
	for i := range apps {
		app := apps[i].Clone()
		if app.AppID == "" {
			continue
		}
		if existing, dup := index[app.AppID]; dup {
			*existing = app
			continue
		}
		list = append(list, &app)
		index[app.AppID] = &app
	}
	return list, index
}

func (r *Repository) persist(ctx context.Context, apps []MicroApp) error {
	data, err := json.Marshal(apps)
	if err != nil {
		return fmt.Errorf("encode apps: %w", err)
	}
	if err := r.store.Set(ctx, StorageKey, string(data)); err != nil {
		r.log.Error("Failed to persist micro-apps", zap.Error(err))
		return fmt.Errorf("persist apps: %w", err)
	}
	return nil
}
