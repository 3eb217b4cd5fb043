package catalog

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/LSFLK/superapp-mobile-sub000/internal/domain/microapp"
	"github.com/LSFLK/superapp-mobile-sub000/internal/infrastructure/logging"
)

// Source supplies the remote catalog.
type Source interface {
	FetchCatalog(ctx context.Context) ([]microapp.MicroApp, error)
}

// Installer queues installs on the shared serialized queue.
type Installer interface {
	EnqueueInstall(appID, downloadURL string) <-chan error
}

// Result describes one reconciliation.
type Result struct {
	Apps    []microapp.MicroApp
	Updates []string // Installed apps queued for a version update
}

// Loader merges the remote catalog into local state and keeps installed
// apps on their latest version.
type Loader struct {
	source    Source
	repo      *microapp.Repository
	installer Installer
	log       *zap.Logger
}

// NewLoader creates a loader. installer may be nil to skip updates.
func NewLoader(source Source, repo *microapp.Repository, installer Installer, log *zap.Logger) *Loader {
	return &Loader{
		source:    source,
		repo:      repo,
		installer: installer,
		log:       logging.OrNop(log),
	}
}

// Refresh fetches the catalog and reconciles it. On fetch failure local
// state is left untouched.
func (l *Loader) Refresh(ctx context.Context) (Result, error) {
	remote, err := l.source.FetchCatalog(ctx)
	if err != nil {
		return Result{}, err
	}
	return l.LoadCatalogAndReconcileVersions(ctx, remote)
}

// LoadCatalogAndReconcileVersions merges remote with the persisted
// collection and queues an install for every installed app whose recorded
// version differs from the catalog's latest. Queued updates complete in
// the background; their failures are logged.
func (l *Loader) LoadCatalogAndReconcileVersions(ctx context.Context, remote []microapp.MicroApp) (Result, error) {
	merged, err := l.repo.MergeCatalog(ctx, remote)
	if err != nil {
		return Result{}, fmt.Errorf("merge catalog: %w", err)
	}

	res := Result{Apps: merged}
	for _, app := range merged {
		if !microapp.NeedsUpdate(app) {
			continue
		}
		latest, _ := app.Latest()
		res.Updates = append(res.Updates, app.AppID)
		if l.installer == nil {
			continue
		}

		l.log.Info("Queueing micro-app update",
			zap.String("app_id", app.AppID),
			zap.String("from", app.InstalledVersion),
			zap.String("to", latest.Version))
		done := l.installer.EnqueueInstall(app.AppID, latest.DownloadURL)
		go l.watch(app.AppID, latest.Version, done)
	}
	return res, nil
}

func (l *Loader) watch(appID, version string, done <-chan error) {
	if err := <-done; err != nil {
		l.log.Warn("Micro-app update failed",
			zap.String("app_id", appID),
			zap.String("version", version),
			zap.Error(err))
		return
	}
	l.log.Info("Micro-app updated", zap.String("app_id", appID), zap.String("version", version))
}
