package microapp

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/LSFLK/superapp-mobile-sub000/internal/infrastructure/kv"
)

func TestMergeKeepsLocalState(t *testing.T) {
	local := []MicroApp{
		{AppID: "a1", Name: "Old", Status: StatusDownloaded, WebViewURI: "u1", ClientID: "c1", InstalledVersion: "1.0"},
		{AppID: "gone", Status: StatusDownloaded, WebViewURI: "u2"},
	}
	remote := []MicroApp{
		{AppID: "a2", Name: "Two"},
		{AppID: "a1", Name: "New", Versions: []Version{{Version: "2.0", DownloadURL: "http://x/a1.zip"}}},
		{AppID: "a2", Name: "Duplicate"},
	}

	merged := Merge(local, remote)
	require.Len(t, merged, 3)

	assert.Equal(t, "a2", merged[0].AppID)
	assert.Equal(t, "Two", merged[0].Name)
	assert.Equal(t, StatusNotDownloaded, merged[0].Status)

	assert.Equal(t, "New", merged[1].Name)
	assert.Equal(t, StatusDownloaded, merged[1].Status)
	assert.Equal(t, "c1", merged[1].ClientID)
	assert.True(t, NeedsUpdate(merged[1]))

	assert.Equal(t, "gone", merged[2].AppID)
}

func TestNeedsUpdate(t *testing.T) {
	v := []Version{{Version: "1.0", DownloadURL: "http://x"}}
	assert.False(t, NeedsUpdate(MicroApp{Versions: v, Status: StatusDownloaded, InstalledVersion: "1.0"}))
	assert.True(t, NeedsUpdate(MicroApp{Versions: v, Status: StatusDownloaded, InstalledVersion: "0.9"}))
	assert.False(t, NeedsUpdate(MicroApp{Versions: v, Status: StatusNotDownloaded}))
	assert.False(t, NeedsUpdate(MicroApp{Status: StatusDownloaded}))
}

func TestMergeCatalogPersists(t *testing.T) {
	ctx := context.Background()
	store := kv.NewMemory()
	repo := NewRepository(store, nil)
	require.NoError(t, repo.MarkDownloaded(ctx, "a1", "uri", "c1", "1.0"))

	merged, err := repo.MergeCatalog(ctx, []MicroApp{{AppID: "a1", Name: "One"}, {AppID: "a2"}})
	require.NoError(t, err)
	assert.Len(t, merged, 2)

	reloaded := NewRepository(store, nil)
	require.NoError(t, reloaded.Load(ctx))
	app, ok := reloaded.Get("a1")
	require.True(t, ok)
	assert.Equal(t, "One", app.Name)
	assert.Equal(t, "uri", app.WebViewURI)
}
