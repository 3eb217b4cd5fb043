package install

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/klauspost/compress/zip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/LSFLK/superapp-mobile-sub000/internal/domain/microapp"
	"github.com/LSFLK/superapp-mobile-sub000/internal/infrastructure/kv"
	"github.com/LSFLK/superapp-mobile-sub000/internal/infrastructure/monitoring"
)

func buildZip(t *testing.T, files map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	w := zip.NewWriter(&buf)
	for name, body := range files {
		if strings.HasSuffix(name, "/") {
			_, err := w.Create(name)
			require.NoError(t, err)
			continue
		}
		f, err := w.Create(name)
		require.NoError(t, err)
		_, err = f.Write([]byte(body))
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())
	return buf.Bytes()
}

type staticFetcher struct {
	payload any
	err     error
	urls    []string
}

func (s *staticFetcher) Fetch(_ context.Context, url string) (any, error) {
	s.urls = append(s.urls, url)
	return s.payload, s.err
}

type env struct {
	root     string
	repo     *microapp.Repository
	fetcher  *staticFetcher
	pipeline *Pipeline
	metrics  *monitoring.Metrics
}

func newEnv(t *testing.T, payload any) *env {
	t.Helper()
	root := t.TempDir()
	repo := microapp.NewRepository(kv.NewMemory(), nil)
	require.NoError(t, repo.Replace(context.Background(), []microapp.MicroApp{{
		AppID:  "leave",
		Name:   "Leave",
		Status: microapp.StatusNotDownloaded,
		Versions: []microapp.Version{
			{Version: "1.2.0", DownloadURL: "https://cdn.example.com/leave-1.2.0.zip"},
			{Version: "1.1.0", DownloadURL: "https://cdn.example.com/leave-1.1.0.zip"},
		},
	}}))
	fetcher := &staticFetcher{payload: payload}
	metrics := monitoring.NewMetrics()
	return &env{
		root:     root,
		repo:     repo,
		fetcher:  fetcher,
		metrics:  metrics,
		pipeline: New(root, fetcher, repo, nil).WithMetrics(metrics),
	}
}

func TestInstallEndToEnd(t *testing.T) {
	data := buildZip(t, map[string]string{
		"build/":                  "",
		"build/index.html":        "<html>leave</html>",
		"build/static/app.js":     "console.log('hi')",
		"build/microapp.json":     `{"clientId":"leave-client"}`,
		"__MACOSX/build/._app.js": "junk",
		"build/static/._app.js":   "junk",
	})
	e := newEnv(t, data)

	require.NoError(t, e.pipeline.Install(context.Background(), "leave", "https://cdn.example.com/leave-1.1.0.zip"))

	app, ok := e.repo.Get("leave")
	require.True(t, ok)
	assert.Equal(t, microapp.StatusDownloaded, app.Status)
	assert.Equal(t, "micro-apps/leave-extracted/build/index.html", app.WebViewURI)
	assert.Equal(t, "leave-client", app.ClientID)
	assert.Equal(t, "1.1.0", app.InstalledVersion)
	assert.NotZero(t, app.DownloadedAt)

	archive, err := os.ReadFile(e.pipeline.ArchivePath("leave"))
	require.NoError(t, err)
	assert.Equal(t, data, archive)

	extracted := e.pipeline.ExtractedPath("leave")
	assert.FileExists(t, filepath.Join(extracted, "build", "static", "app.js"))
	assert.NoFileExists(t, filepath.Join(extracted, "build", "static", "._app.js"))
	assert.NoDirExists(t, filepath.Join(extracted, "__MACOSX"))

	assert.Empty(t, e.pipeline.Downloading())
	assert.Equal(t, int64(1), e.metrics.Snapshot().Installs)
	assert.Zero(t, e.metrics.Snapshot().InstallErrors)
}

func TestInstallDefaultsClientID(t *testing.T) {
	tests := []struct {
		name  string
		files map[string]string
	}{
		{"no manifest", map[string]string{"index.html": "x"}},
		{"manifest without clientId", map[string]string{"index.html": "x", "microapp.json": `{"name":"leave"}`}},
		{"broken manifest", map[string]string{"index.html": "x", "microapp.json": `{`}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newEnv(t, buildZip(t, tt.files))
			require.NoError(t, e.pipeline.Install(context.Background(), "leave", "https://cdn.example.com/leave-1.2.0.zip"))

			app, _ := e.repo.Get("leave")
			assert.Equal(t, DefaultClientID, app.ClientID)
			assert.Equal(t, "micro-apps/leave-extracted/index.html", app.WebViewURI)
			assert.Equal(t, "1.2.0", app.InstalledVersion)
		})
	}
}

func TestInstallFailuresLeaveStateUnchanged(t *testing.T) {
	tests := []struct {
		name    string
		url     string
		payload any
		err     error
		want    error
	}{
		{"empty url", "", nil, nil, ErrEmptyDownloadURL},
		{"transport", "https://cdn/x.zip", nil, errors.New("connection reset"), nil},
		{"empty payload", "https://cdn/x.zip", []byte{}, nil, ErrEmptyArchive},
		{"not a zip", "https://cdn/x.zip", []byte("<html>404</html>"), nil, ErrNotZip},
		{"unsupported", "https://cdn/x.zip", 42, nil, ErrUnsupportedPayload},
		{"no entry", "https://cdn/x.zip", nil, nil, ErrEntryNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			payload := tt.payload
			if tt.name == "no entry" {
				payload = buildZip(t, map[string]string{"readme.txt": "hi"})
			}
			e := newEnv(t, payload)
			e.fetcher.err = tt.err

			err := e.pipeline.Install(context.Background(), "leave", tt.url)
			require.Error(t, err)
			if tt.want != nil {
				assert.ErrorIs(t, err, tt.want)
			}

			app, _ := e.repo.Get("leave")
			assert.Equal(t, microapp.StatusNotDownloaded, app.Status)
			assert.Empty(t, app.WebViewURI)
			assert.Empty(t, e.pipeline.Downloading())
			assert.NoDirExists(t, e.pipeline.ExtractedPath("leave"))
			assert.Equal(t, int64(1), e.metrics.Snapshot().InstallErrors)

			leftovers, _ := filepath.Glob(filepath.Join(e.root, BundleDir, "leave-extracted.staging-*"))
			assert.Empty(t, leftovers)
		})
	}
}

// fullStore rejects writes once full is set.
type fullStore struct {
	kv.Store
	full bool
}

func (s *fullStore) Set(ctx context.Context, key, value string) error {
	if s.full {
		return errors.New("disk full")
	}
	return s.Store.Set(ctx, key, value)
}

func TestInstallRecordFailureKeepsAppNotDownloaded(t *testing.T) {
	e := newEnv(t, buildZip(t, map[string]string{"index.html": "x"}))
	store := &fullStore{Store: kv.NewMemory()}
	e.repo = microapp.NewRepository(store, nil)
	require.NoError(t, e.repo.Replace(context.Background(), []microapp.MicroApp{{AppID: "leave", Status: microapp.StatusNotDownloaded}}))
	e.pipeline = New(e.root, e.fetcher, e.repo, nil)

	store.full = true
	err := e.pipeline.Install(context.Background(), "leave", "https://cdn.example.com/leave-1.2.0.zip")
	assert.ErrorContains(t, err, "disk full")

	app, ok := e.repo.Get("leave")
	require.True(t, ok)
	assert.Equal(t, microapp.StatusNotDownloaded, app.Status)
	assert.Empty(t, app.WebViewURI)
	assert.Empty(t, e.repo.Installed())
}

func TestFailedUpdateKeepsPreviousBundle(t *testing.T) {
	e := newEnv(t, buildZip(t, map[string]string{"index.html": "v1"}))
	require.NoError(t, e.pipeline.Install(context.Background(), "leave", "https://cdn.example.com/leave-1.1.0.zip"))

	e.fetcher.payload = buildZip(t, map[string]string{"docs/readme.md": "no entry"})
	err := e.pipeline.Install(context.Background(), "leave", "https://cdn.example.com/leave-1.2.0.zip")
	assert.ErrorIs(t, err, ErrEntryNotFound)

	app, _ := e.repo.Get("leave")
	assert.Equal(t, "1.1.0", app.InstalledVersion)
	body, err := os.ReadFile(filepath.Join(e.pipeline.ExtractedPath("leave"), "index.html"))
	require.NoError(t, err)
	assert.Equal(t, "v1", string(body))
}

func TestInstallRejectsPathTraversal(t *testing.T) {
	e := newEnv(t, buildZip(t, map[string]string{
		"index.html":       "x",
		"../../escape.txt": "pwned",
	}))

	err := e.pipeline.Install(context.Background(), "leave", "https://cdn/x.zip")
	require.Error(t, err)
	assert.NoFileExists(t, filepath.Join(e.root, "escape.txt"))
	assert.NoFileExists(t, filepath.Join(filepath.Dir(e.root), "escape.txt"))

	app, _ := e.repo.Get("leave")
	assert.False(t, app.Installed())
}

func TestInstallUpsertsUnknownApp(t *testing.T) {
	e := newEnv(t, buildZip(t, map[string]string{"index.html": "x"}))

	require.NoError(t, e.pipeline.Install(context.Background(), "adhoc", "https://cdn/adhoc.zip"))
	app, ok := e.repo.Get("adhoc")
	require.True(t, ok)
	assert.True(t, app.Installed())
	assert.Empty(t, app.InstalledVersion)
}

func TestRemoveIsIdempotent(t *testing.T) {
	e := newEnv(t, buildZip(t, map[string]string{"index.html": "x"}))
	ctx := context.Background()
	require.NoError(t, e.pipeline.Install(ctx, "leave", "https://cdn.example.com/leave-1.2.0.zip"))
	require.NoError(t, e.repo.UpdateExchangedToken(ctx, "leave", "jwt"))

	require.NoError(t, e.pipeline.Remove(ctx, "leave"))
	require.NoError(t, e.pipeline.Remove(ctx, "leave"))
	require.NoError(t, e.pipeline.Remove(ctx, "never-installed"))

	app, _ := e.repo.Get("leave")
	assert.Equal(t, microapp.StatusNotDownloaded, app.Status)
	assert.Empty(t, app.WebViewURI)
	assert.Empty(t, app.ClientID)
	assert.Empty(t, app.ExchangedToken)
	assert.NoDirExists(t, e.pipeline.ExtractedPath("leave"))
	assert.NoFileExists(t, e.pipeline.ArchivePath("leave"))
}

func TestInvalidAppIDs(t *testing.T) {
	e := newEnv(t, nil)
	for _, id := range []string{"", "..", "a/b", `a\b`} {
		assert.ErrorIs(t, e.pipeline.Install(context.Background(), id, "https://cdn/x.zip"), ErrInvalidAppID)
		assert.ErrorIs(t, e.pipeline.Remove(context.Background(), id), ErrInvalidAppID)
	}
}

type blockingFetcher struct {
	entered chan struct{}
	release chan struct{}
	payload []byte
}

func (b *blockingFetcher) Fetch(context.Context, string) (any, error) {
	close(b.entered)
	<-b.release
	return bytes.NewBuffer(b.payload), nil
}

func TestDownloadingIsObservable(t *testing.T) {
	e := newEnv(t, nil)
	fetcher := &blockingFetcher{
		entered: make(chan struct{}),
		release: make(chan struct{}),
		payload: buildZip(t, map[string]string{"index.html": "x"}),
	}
	e.pipeline.fetch = fetcher

	done := make(chan error, 1)
	go func() { done <- e.pipeline.Install(context.Background(), "leave", "https://cdn/x.zip") }()

	<-fetcher.entered
	assert.Equal(t, []string{"leave"}, e.pipeline.Downloading())
	assert.True(t, e.pipeline.IsDownloading("leave"))
	assert.ErrorIs(t, e.pipeline.Install(context.Background(), "leave", "https://cdn/x.zip"), ErrBusy)

	close(fetcher.release)
	require.NoError(t, <-done)
	assert.False(t, e.pipeline.IsDownloading("leave"))
	assert.Empty(t, e.pipeline.State("leave"))
}

func TestNormalizePayload(t *testing.T) {
	for _, v := range []any{
		[]byte("abc"),
		bytes.NewBufferString("abc"),
		strings.NewReader("abc"),
		"abc",
	} {
		got, err := normalizePayload(v)
		require.NoError(t, err)
		assert.Equal(t, []byte("abc"), got)
	}

	_, err := normalizePayload(nil)
	assert.ErrorIs(t, err, ErrEmptyArchive)
	_, err = normalizePayload(3.14)
	assert.ErrorIs(t, err, ErrUnsupportedPayload)
}
