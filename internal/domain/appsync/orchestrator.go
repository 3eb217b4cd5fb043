package appsync

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/LSFLK/superapp-mobile-sub000/internal/domain/microapp"
	"github.com/LSFLK/superapp-mobile-sub000/internal/infrastructure/logging"
	"github.com/LSFLK/superapp-mobile-sub000/internal/infrastructure/monitoring"
	"github.com/LSFLK/superapp-mobile-sub000/internal/shared/id"
)

var (
	ErrSyncInProgress = errors.New("appsync: sync already in progress")
	ErrSyncDeclined   = errors.New("appsync: sync declined")
	ErrNoDownloadURL  = errors.New("appsync: catalog has no download url for app")
)

// AllowList supplies the apps a user is entitled to.
type AllowList interface {
	FetchAllowList(ctx context.Context, user string) ([]string, error)
}

// Confirmer approves a non-empty plan before anything is queued.
type Confirmer interface {
	Confirm(ctx context.Context, plan Plan) bool
}

// ConfirmFunc adapts a function to Confirmer.
type ConfirmFunc func(ctx context.Context, plan Plan) bool

func (f ConfirmFunc) Confirm(ctx context.Context, plan Plan) bool { return f(ctx, plan) }

// AutoConfirm approves every plan.
var AutoConfirm Confirmer = ConfirmFunc(func(context.Context, Plan) bool { return true })

// Progress counts completed operations of the running sync.
type Progress struct {
	Done    int  `json:"done"`
	Total   int  `json:"total"`
	Running bool `json:"running"`
}

// ItemResult is the outcome of one operation.
type ItemResult struct {
	AppID   string `json:"appId"`
	Op      Op     `json:"op"`
	Error   string `json:"error,omitempty"`
	Skipped bool   `json:"skipped,omitempty"`
}

// Report summarizes one sync.
type Report struct {
	ID        id.SyncID    `json:"id"`
	User      string       `json:"user"`
	Plan      Plan         `json:"plan"`
	Results   []ItemResult `json:"results"`
	Installed int          `json:"installed"`
	Removed   int          `json:"removed"`
	Failed    int          `json:"failed"`
	Skipped   int          `json:"skipped"`
}

// Orchestrator reconciles installed apps with a user's allow-list through
// the shared queue.
type Orchestrator struct {
	allow   AllowList
	repo    *microapp.Repository
	queue   *Queue
	log     *zap.Logger
	metrics *monitoring.Metrics

	running atomic.Bool

	mu         sync.RWMutex
	progress   Progress
	onProgress func(Progress)
}

// NewOrchestrator creates an orchestrator.
func NewOrchestrator(allow AllowList, repo *microapp.Repository, queue *Queue, log *zap.Logger) *Orchestrator {
	return &Orchestrator{
		allow: allow,
		repo:  repo,
		queue: queue,
		log:   logging.OrNop(log),
	}
}

// WithMetrics records sync outcomes.
func (o *Orchestrator) WithMetrics(metrics *monitoring.Metrics) *Orchestrator {
	o.metrics = metrics
	return o
}

// OnProgress registers a callback invoked after every completed item.
func (o *Orchestrator) OnProgress(fn func(Progress)) {
	o.mu.Lock()
	o.onProgress = fn
	o.mu.Unlock()
}

// Progress returns the counters of the current or last sync.
func (o *Orchestrator) Progress() Progress {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.progress
}

// Queue returns the shared installation queue.
func (o *Orchestrator) Queue() *Queue { return o.queue }

// Sync installs allowed apps that are missing and removes installed apps
// that are no longer allowed: removals first, then installs, one at a
// time. A failed item is recorded and the rest still run. A call made
// while another sync is running returns ErrSyncInProgress without doing
// anything.
func (o *Orchestrator) Sync(ctx context.Context, user string, confirmer Confirmer) (Report, error) {
	if !o.running.CompareAndSwap(false, true) {
		o.metrics.RecordSync("skipped")
		return Report{}, ErrSyncInProgress
	}
	defer o.running.Store(false)

	report := Report{ID: id.NewSyncID(), User: user}
	log := o.log.With(zap.String("sync_id", report.ID.String()), zap.String("user", user))

	allowed, err := o.allow.FetchAllowList(ctx, user)
	if err != nil {
		o.metrics.RecordSync("error")
		return report, fmt.Errorf("fetch allow-list: %w", err)
	}

	report.Plan = Diff(allowed, installedIDs(o.repo.Installed()))
	if report.Plan.Empty() {
		log.Debug("Nothing to sync")
		o.metrics.RecordSync("noop")
		return report, nil
	}

	if confirmer == nil {
		confirmer = AutoConfirm
	}
	if !confirmer.Confirm(ctx, report.Plan) {
		log.Info("Sync declined", zap.Int("operations", report.Plan.Total()))
		o.metrics.RecordSync("declined")
		return report, ErrSyncDeclined
	}

	log.Info("Sync started",
		zap.Strings("install", report.Plan.ToInstall),
		zap.Strings("remove", report.Plan.ToRemove))
	o.setProgress(Progress{Total: report.Plan.Total(), Running: true})

	for _, appID := range report.Plan.ToRemove {
		err := <-o.queue.EnqueueRemove(appID)
		report.record(ItemResult{AppID: appID, Op: OpRemove}, err)
		o.advance()
	}

	for _, appID := range report.Plan.ToInstall {
		url, ok := o.downloadURL(appID)
		if !ok {
			log.Warn("Skipping install, app missing from catalog", zap.String("app_id", appID))
			report.Results = append(report.Results, ItemResult{AppID: appID, Op: OpInstall, Skipped: true})
			report.Skipped++
			o.advance()
			continue
		}
		err := <-o.queue.EnqueueInstall(appID, url)
		report.record(ItemResult{AppID: appID, Op: OpInstall}, err)
		o.advance()
	}

	o.finish()
	outcome := "completed"
	if report.Failed > 0 {
		outcome = "partial"
	}
	o.metrics.RecordSync(outcome)
	log.Info("Sync finished",
		zap.Int("installed", report.Installed),
		zap.Int("removed", report.Removed),
		zap.Int("failed", report.Failed),
		zap.Int("skipped", report.Skipped))
	return report, nil
}

// InstallNow installs one app from the catalog and waits for the result.
func (o *Orchestrator) InstallNow(ctx context.Context, appID string) error {
	url, ok := o.downloadURL(appID)
	if !ok {
		if _, known := o.repo.Get(appID); !known {
			return fmt.Errorf("%w: %s", microapp.ErrAppNotFound, appID)
		}
		return fmt.Errorf("%w: %s", ErrNoDownloadURL, appID)
	}
	return wait(ctx, o.queue.EnqueueInstall(appID, url))
}

// RemoveNow removes one app and waits for the result.
func (o *Orchestrator) RemoveNow(ctx context.Context, appID string) error {
	return wait(ctx, o.queue.EnqueueRemove(appID))
}

// wait returns early if ctx ends; the job itself still runs.
func wait(ctx context.Context, done <-chan error) error {
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (o *Orchestrator) downloadURL(appID string) (string, bool) {
	app, ok := o.repo.Get(appID)
	if !ok {
		return "", false
	}
	latest, ok := app.Latest()
	if !ok || latest.DownloadURL == "" {
		return "", false
	}
	return latest.DownloadURL, true
}

func (o *Orchestrator) setProgress(p Progress) {
	o.mu.Lock()
	o.progress = p
	fn := o.onProgress
	o.mu.Unlock()
	if fn != nil {
		fn(p)
	}
}

func (o *Orchestrator) advance() {
	o.mu.Lock()
	o.progress.Done++
	p := o.progress
	fn := o.onProgress
	o.mu.Unlock()
	if fn != nil {
		fn(p)
	}
}

func (o *Orchestrator) finish() {
	o.mu.Lock()
	o.progress.Running = false
	o.mu.Unlock()
}

func (r *Report) record(item ItemResult, err error) {
	if err != nil {
		item.Error = err.Error()
		r.Failed++
	} else if item.Op == OpInstall {
		r.Installed++
	} else {
		r.Removed++
	}
	r.Results = append(r.Results, item)
}

func installedIDs(apps []microapp.MicroApp) []string {
	out := make([]string, 0, len(apps))
	for _, app := range apps {
		out = append(out, app.AppID)
	}
	return out
}
