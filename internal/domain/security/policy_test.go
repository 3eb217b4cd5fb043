package security

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestModeFor(t *testing.T) {
	assert.Equal(t, ModeDeveloper, ModeFor("http://192.168.1.4:8081", true))
	assert.Equal(t, ModeRemote, ModeFor("https://apps.example/payslip", false))
	assert.Equal(t, ModeLocalFile, ModeFor("micro-apps/a1-extracted/index.html", false))
	assert.Equal(t, "local-file", ModeLocalFile.String())
}

func TestLocalFileOriginMatching(t *testing.T) {
	p := PolicyFor(ModeLocalFile, "micro-apps/a1-extracted/index.html", "/srv/docs")

	assert.True(t, IsBridgeAccessAllowed("file:///data/user/0/app/files/x/index.html", p))
	assert.True(t, Match("file:///data/user/0/app/files/x/index.html", "file:///data/user/*"))
	assert.False(t, IsBridgeAccessAllowed("https://evil.example/x", p))
	assert.Contains(t, p.AllowedBridgeOrigins, "file:///srv/docs/*")
	assert.True(t, p.AllowFileAccess)
	assert.False(t, p.AllowNavigation)
}

func TestLocalPolicyAdmitsAnyFileURL(t *testing.T) {
	p := PolicyFor(ModeLocalFile, "micro-apps/a1-extracted/index.html", "/srv/docs")

	for _, origin := range []string{
		"file:///tmp/elsewhere/index.html",
		"file:///etc/passwd",
		"file:///srv/docs/micro-apps/a1-extracted/index.html",
	} {
		assert.True(t, IsBridgeAccessAllowed(origin, p), origin)
	}
	assert.False(t, IsBridgeAccessAllowed("http://localhost:8081", p))
	assert.False(t, IsBridgeAccessAllowed("content://provider/file", p))
}

func TestMatch(t *testing.T) {
	tests := []struct {
		name    string
		target  string
		pattern string
		want    bool
	}{
		{"exact", "https://a.example", "https://a.example", true},
		{"path prefix", "https://a.example/x/y", "https://a.example", true},
		{"sibling host", "https://a.example.evil", "https://a.example", false},
		{"wildcard port", "http://localhost:8081/index.html", "http://localhost:*", true},
		{"wildcard subnet", "http://192.168.0.12:3000", "http://192.168.*", true},
		{"collapsed slashes", "file:/data/user/0/x", "file:///data/user/*", true},
		{"extra slashes", "file:////var/mobile/x", "file:///var/mobile/*", true},
		{"wrong scheme", "content://data/user/0", "file:///*", false},
		{"catch all", "anything", "*", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Match(tt.target, tt.pattern))
		})
	}
}

func TestRemotePolicy(t *testing.T) {
	p := PolicyFor(ModeRemote, "https://apps.example/payslip/index.html", "")

	assert.Equal(t, []string{"https://apps.example/payslip/index.html", "https://apps.example"}, p.AllowedBridgeOrigins)
	assert.True(t, IsBridgeAccessAllowed("https://apps.example/other", p))
	assert.False(t, IsBridgeAccessAllowed("https://cdn.example/x", p))

	assert.True(t, IsNavigationAllowed("https://apps.example/payslip/index.html#top", p))
	assert.True(t, IsNavigationAllowed("https://apps.example/payslip/page2", p))
	assert.False(t, IsNavigationAllowed("https://elsewhere.example/", p))
}

func TestDeveloperPolicy(t *testing.T) {
	p := PolicyFor(ModeDeveloper, "http://10.0.0.5:8081", "")

	assert.True(t, p.AllowNavigation)
	assert.False(t, p.AllowFileAccess)
	assert.True(t, IsBridgeAccessAllowed("http://127.0.0.1:19006/", p))
	assert.True(t, IsBridgeAccessAllowed("http://10.0.0.5:8081/index.html", p))
	assert.True(t, IsNavigationAllowed("https://anything.example", p))
	assert.False(t, IsBridgeAccessAllowed("https://anything.example", p))
}

func TestLocalNavigation(t *testing.T) {
	p := PolicyFor(ModeLocalFile, "file:///srv/docs/micro-apps/a1-extracted/index.html", "/srv/docs")
	assert.True(t, IsNavigationAllowed("file:///srv/docs/micro-apps/a1-extracted/page.html", p))
	assert.False(t, IsNavigationAllowed("https://evil.example", p))
}

func TestGenerateCSP(t *testing.T) {
	p := PolicyFor(ModeRemote, "https://apps.example", "")
	csp := GenerateCSP(p)

	parts := strings.Split(csp, "; ")
	assert.Len(t, parts, 9)
	assert.Equal(t, "default-src 'self' https://apps.example https://apps.example", parts[0])
	assert.Equal(t, "connect-src 'self' *", parts[2])
	assert.Contains(t, csp, "frame-ancestors 'none'")
	assert.True(t, strings.HasSuffix(csp, "upgrade-insecure-requests"))
}
