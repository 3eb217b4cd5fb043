package catalog

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/LSFLK/superapp-mobile-sub000/internal/domain/microapp"
	"github.com/LSFLK/superapp-mobile-sub000/internal/infrastructure/kv"
)

type fakeSource struct {
	apps []microapp.MicroApp
	err  error
}

func (f fakeSource) FetchCatalog(context.Context) ([]microapp.MicroApp, error) {
	return f.apps, f.err
}

type recordingInstaller struct {
	mu   sync.Mutex
	jobs map[string]string
}

func (r *recordingInstaller) EnqueueInstall(appID, url string) <-chan error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.jobs == nil {
		r.jobs = make(map[string]string)
	}
	r.jobs[appID] = url
	done := make(chan error, 1)
	done <- nil
	return done
}

func remoteCatalog() []microapp.MicroApp {
	return []microapp.MicroApp{
		{AppID: "leave", Name: "Leave v2", Versions: []microapp.Version{{Version: "2.0.0", DownloadURL: "https://cdn/leave-2.zip"}}},
		{AppID: "payroll", Name: "Payroll", Versions: []microapp.Version{{Version: "1.0.0", DownloadURL: "https://cdn/payroll-1.zip"}}},
		{AppID: "travel", Name: "Travel", Versions: []microapp.Version{{Version: "3.1.0", DownloadURL: "https://cdn/travel.zip"}}},
	}
}

func seededRepo(t *testing.T) *microapp.Repository {
	t.Helper()
	ctx := context.Background()
	repo := microapp.NewRepository(kv.NewMemory(), nil)
	require.NoError(t, repo.MarkDownloaded(ctx, "leave", "micro-apps/leave-extracted/index.html", "c1", "1.0.0"))
	require.NoError(t, repo.MarkDownloaded(ctx, "payroll", "micro-apps/payroll-extracted/index.html", "c2", "1.0.0"))
	return repo
}

func TestReconcileQueuesUpdatesForInstalledApps(t *testing.T) {
	repo := seededRepo(t)
	installer := &recordingInstaller{}
	loader := NewLoader(fakeSource{apps: remoteCatalog()}, repo, installer, nil)

	res, err := loader.Refresh(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{"leave"}, res.Updates)
	assert.Equal(t, map[string]string{"leave": "https://cdn/leave-2.zip"}, installer.jobs)
	require.Len(t, res.Apps, 3)

	leave, _ := repo.Get("leave")
	assert.Equal(t, "Leave v2", leave.Name)
	assert.Equal(t, microapp.StatusDownloaded, leave.Status)
	assert.Equal(t, "1.0.0", leave.InstalledVersion)
	assert.Equal(t, "c1", leave.ClientID)

	travel, _ := repo.Get("travel")
	assert.False(t, travel.Installed())
}

func TestRefreshFailureLeavesStateUntouched(t *testing.T) {
	repo := seededRepo(t)
	before := repo.List()
	loader := NewLoader(fakeSource{err: errors.New("offline")}, repo, &recordingInstaller{}, nil)

	_, err := loader.Refresh(context.Background())
	assert.Error(t, err)
	assert.Equal(t, before, repo.List())
}

func TestReconcileWithoutInstaller(t *testing.T) {
	loader := NewLoader(fakeSource{}, seededRepo(t), nil, nil)

	res, err := loader.LoadCatalogAndReconcileVersions(context.Background(), remoteCatalog())
	require.NoError(t, err)
	assert.Equal(t, []string{"leave"}, res.Updates)
}
