package install

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/moby/sys/atomicwriter"
	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"

	"github.com/LSFLK/superapp-mobile-sub000/internal/domain/microapp"
	"github.com/LSFLK/superapp-mobile-sub000/internal/infrastructure/logging"
	"github.com/LSFLK/superapp-mobile-sub000/internal/infrastructure/monitoring"
)

// DefaultClientID scopes apps whose bundle carries no manifest clientId.
const DefaultClientID = "default-microapp-client-id"

// BundleDir is the directory under the document root that holds bundles.
const BundleDir = "micro-apps"

var (
	ErrEmptyDownloadURL = errors.New("install: download url is required")
	ErrEntryNotFound    = errors.New("install: bundle has no entry document")
	ErrInvalidAppID     = errors.New("install: invalid app id")
	ErrBusy             = errors.New("install: app is already being installed or removed")
)

// Entry documents and manifests, in lookup order.
var (
	entryCandidates    = []string{"index.html", "build/index.html"}
	manifestCandidates = []string{"microapp.json", "build/microapp.json"}
)

// Pipeline installs and removes micro-app bundles under a document root.
type Pipeline struct {
	root            string
	defaultClientID string
	fetch           Fetcher
	repo            *microapp.Repository
	log             *zap.Logger
	metrics         *monitoring.Metrics

	mu       sync.Mutex
	inflight map[string]string // appID -> microapp.StateDownloading|StateRemoving
}

// New creates a pipeline writing bundles under root.
func New(root string, fetch Fetcher, repo *microapp.Repository, log *zap.Logger) *Pipeline {
	return &Pipeline{
		root:            filepath.Clean(root),
		defaultClientID: DefaultClientID,
		fetch:           fetch,
		repo:            repo,
		log:             logging.OrNop(log),
		inflight:        make(map[string]string),
	}
}

// WithMetrics records install and removal outcomes.
func (p *Pipeline) WithMetrics(metrics *monitoring.Metrics) *Pipeline {
	p.metrics = metrics
	return p
}

// WithDefaultClientID overrides the fallback clientId.
func (p *Pipeline) WithDefaultClientID(id string) *Pipeline {
	if id != "" {
		p.defaultClientID = id
	}
	return p
}

// Root returns the document root.
func (p *Pipeline) Root() string { return p.root }

// ArchivePath is where the downloaded archive for appID is kept.
func (p *Pipeline) ArchivePath(appID string) string {
	return filepath.Join(p.root, BundleDir, appID+".zip")
}

// ExtractedPath is the unpacked bundle directory for appID.
func (p *Pipeline) ExtractedPath(appID string) string {
	return filepath.Join(p.root, BundleDir, appID+"-extracted")
}

// Install downloads, unpacks and registers a bundle. On failure the app's
// recorded state is unchanged.
func (p *Pipeline) Install(ctx context.Context, appID, downloadURL string) (err error) {
	if err := validAppID(appID); err != nil {
		return err
	}
	if !p.begin(appID, microapp.StateDownloading) {
		return fmt.Errorf("%w: %s", ErrBusy, appID)
	}
	start := time.Now()
	log := p.log.With(zap.String("app_id", appID))
	defer func() {
		p.end(appID)
		p.metrics.RecordInstall(err, time.Since(start))
		if err != nil {
			log.Error("Install failed", zap.Error(err))
		}
	}()

	if downloadURL == "" {
		return ErrEmptyDownloadURL
	}

	log.Info("Downloading micro-app", zap.String("url", downloadURL))
	payload, err := p.fetch.Fetch(ctx, downloadURL)
	if err != nil {
		return fmt.Errorf("download %s: %w", appID, err)
	}
	data, err := normalizePayload(payload)
	if err != nil {
		return err
	}
	if err := checkArchive(data); err != nil {
		return err
	}

	archive := p.ArchivePath(appID)
	if err := os.MkdirAll(filepath.Dir(archive), 0o755); err != nil {
		return fmt.Errorf("create bundle dir: %w", err)
	}
	if err := atomicwriter.WriteFile(archive, data, 0o644); err != nil {
		return fmt.Errorf("write archive: %w", err)
	}

	// Unpack beside the live bundle so a failed update keeps the old one.
	staging := p.ExtractedPath(appID) + ".staging-" + ulid.Make().String()
	defer os.RemoveAll(staging)

	count, err := extract(archive, staging)
	if err != nil {
		return err
	}

	entry, ok := findFirst(staging, entryCandidates)
	if !ok {
		return fmt.Errorf("%w: %s", ErrEntryNotFound, appID)
	}
	clientID := p.clientID(staging, log)

	final := p.ExtractedPath(appID)
	if err := os.RemoveAll(final); err != nil {
		return fmt.Errorf("clear previous bundle: %w", err)
	}
	if err := os.Rename(staging, final); err != nil {
		return fmt.Errorf("activate bundle: %w", err)
	}

	uri := p.webViewURI(appID, entry)
	version := p.versionFor(appID, downloadURL)
	if err := p.repo.MarkDownloaded(ctx, appID, uri, clientID, version); err != nil {
		return err
	}

	stats, err := treeStats(final)
	if err != nil {
		log.Debug("Could not measure installed bundle", zap.Error(err))
	}
	log.Info("Micro-app installed",
		zap.String("web_view_uri", uri),
		zap.String("client_id", clientID),
		zap.String("version", version),
		zap.Int("entries", count),
		zap.Int64("files", stats.Files),
		zap.Int64("bytes", stats.Bytes),
		zap.Duration("duration", time.Since(start)))
	return nil
}

// Remove deletes an app's bundle and archive and marks it not downloaded.
// Missing files are not an error.
func (p *Pipeline) Remove(ctx context.Context, appID string) (err error) {
	if err := validAppID(appID); err != nil {
		return err
	}
	if !p.begin(appID, microapp.StateRemoving) {
		return fmt.Errorf("%w: %s", ErrBusy, appID)
	}
	defer func() {
		p.end(appID)
		p.metrics.RecordRemoval(err)
	}()

	if err := os.RemoveAll(p.ExtractedPath(appID)); err != nil {
		return fmt.Errorf("remove bundle: %w", err)
	}
	if err := os.Remove(p.ArchivePath(appID)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove archive: %w", err)
	}
	if err := p.repo.MarkNotDownloaded(ctx, appID); err != nil {
		return err
	}
	p.log.Info("Micro-app removed", zap.String("app_id", appID))
	return nil
}

// Downloading returns the apps currently being installed, sorted.
func (p *Pipeline) Downloading() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.inflight))
	for id, state := range p.inflight {
		if state == microapp.StateDownloading {
			out = append(out, id)
		}
	}
	sort.Strings(out)
	return out
}

// IsDownloading reports whether appID is being installed.
func (p *Pipeline) IsDownloading(appID string) bool {
	return p.State(appID) == microapp.StateDownloading
}

// State returns the transient state of appID, or "".
func (p *Pipeline) State(appID string) string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.inflight[appID]
}

func (p *Pipeline) begin(appID, state string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, busy := p.inflight[appID]; busy {
		return false
	}
	p.inflight[appID] = state
	return true
}

func (p *Pipeline) end(appID string) {
	p.mu.Lock()
	delete(p.inflight, appID)
	p.mu.Unlock()
}

func (p *Pipeline) clientID(dir string, log *zap.Logger) string {
	manifest, ok := findFirst(dir, manifestCandidates)
	if !ok {
		log.Warn("Bundle has no manifest, using default clientId")
		return p.defaultClientID
	}
	raw, err := os.ReadFile(filepath.Join(dir, filepath.FromSlash(manifest)))
	if err != nil {
		log.Warn("Unreadable manifest, using default clientId", zap.Error(err))
		return p.defaultClientID
	}
	var m struct {
		ClientID string `json:"clientId"`
	}
	if err := json.Unmarshal(raw, &m); err != nil || m.ClientID == "" {
		log.Warn("Manifest has no clientId, using default", zap.String("manifest", manifest))
		return p.defaultClientID
	}
	return m.ClientID
}

// webViewURI is the entry document relative to the document root, with
// each segment URL-escaped.
func (p *Pipeline) webViewURI(appID, entry string) string {
	segments := append([]string{BundleDir, appID + "-extracted"}, strings.Split(entry, "/")...)
	for i, s := range segments {
		segments[i] = url.PathEscape(s)
	}
	return strings.Join(segments, "/")
}

// versionFor finds the catalog version that downloadURL belongs to.
func (p *Pipeline) versionFor(appID, downloadURL string) string {
	app, ok := p.repo.Get(appID)
	if !ok {
		return ""
	}
	for _, v := range app.Versions {
		if v.DownloadURL == downloadURL {
			return v.Version
		}
	}
	if latest, ok := app.Latest(); ok {
		return latest.Version
	}
	return ""
}

func findFirst(dir string, candidates []string) (string, bool) {
	for _, rel := range candidates {
		info, err := os.Stat(filepath.Join(dir, filepath.FromSlash(rel)))
		if err == nil && !info.IsDir() {
			return rel, true
		}
	}
	return "", false
}

func validAppID(appID string) error {
	if appID == "" || appID == "." || appID == ".." || strings.ContainsAny(appID, `/\`) {
		return fmt.Errorf("%w: %q", ErrInvalidAppID, appID)
	}
	return nil
}
