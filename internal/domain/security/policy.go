package security

import (
	"net/url"
	"path/filepath"
	"strings"
)

// Mode is how a micro-app's content is delivered.
type Mode int

const (
	ModeLocalFile Mode = iota
	ModeRemote
	ModeDeveloper
)

func (m Mode) String() string {
	switch m {
	case ModeDeveloper:
		return "developer"
	case ModeRemote:
		return "remote"
	default:
		return "local-file"
	}
}

// Policy is derived per render and never mutated.
type Policy struct {
	AllowedBridgeOrigins  []string `json:"allowedBridgeOrigins"`
	AllowedNetworkOrigins []string `json:"allowedNetworkOrigins"`
	AllowNavigation       bool     `json:"allowNavigation"`
	AllowFileAccess       bool     `json:"allowFileAccess"`
	BridgeEnabled         bool     `json:"bridgeEnabled"`
	// Document is the URL the content was loaded from.
	Document string `json:"document,omitempty"`
}

// Platform document directories that may host an unpacked bundle. The
// leading catch-all admits any file URL, so the narrower entries only name
// the known locations; local content is trusted wherever it lives.
var localFileOrigins = []string{
	"file:///*",
	"file:///data/user/*",
	"file:///var/mobile/*",
	"file:///private/var/*",
}

var developerOrigins = []string{
	"http://localhost:*",
	"http://127.0.0.1:*",
	"http://10.*",
	"http://192.168.*",
}

// ModeFor classifies a webViewUri.
func ModeFor(webViewURI string, developer bool) Mode {
	if developer {
		return ModeDeveloper
	}
	if isHTTP(webViewURI) {
		return ModeRemote
	}
	return ModeLocalFile
}

// PolicyFor builds the policy for mode.
func PolicyFor(mode Mode, webViewURI, documentRoot string) Policy {
	switch mode {
	case ModeDeveloper:
		origins := append([]string(nil), developerOrigins...)
		if webViewURI != "" {
			origins = append(origins, webViewURI)
		}
		return Policy{
			AllowedBridgeOrigins:  origins,
			AllowedNetworkOrigins: []string{"*"},
			AllowNavigation:       true,
			AllowFileAccess:       false,
			BridgeEnabled:         true,
			Document:              webViewURI,
		}

	case ModeRemote:
		origins := []string{webViewURI}
		if u, err := url.Parse(webViewURI); err == nil && u.Host != "" {
			origins = append(origins, u.Scheme+"://"+u.Host)
		}
		return Policy{
			AllowedBridgeOrigins:  origins,
			AllowedNetworkOrigins: []string{"*"},
			AllowNavigation:       false,
			AllowFileAccess:       false,
			BridgeEnabled:         true,
			Document:              webViewURI,
		}

	default:
		origins := append([]string(nil), localFileOrigins...)
		if root := DocumentRootURL(documentRoot); root != "" {
			origins = append(origins, root+"*")
		}
		return Policy{
			AllowedBridgeOrigins:  origins,
			AllowedNetworkOrigins: []string{"*"},
			AllowNavigation:       false,
			AllowFileAccess:       true,
			BridgeEnabled:         true,
			Document:              webViewURI,
		}
	}
}

// DocumentRootURL renders a directory as a file URL with a trailing slash.
func DocumentRootURL(root string) string {
	if root == "" {
		return ""
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return ""
	}
	p := filepath.ToSlash(abs)
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	if !strings.HasSuffix(p, "/") {
		p += "/"
	}
	return (&url.URL{Scheme: "file", Path: p}).String()
}

// Match reports whether target satisfies one allow-list pattern: exact,
// path prefix (pattern + "/"), or trailing-* wildcard. Only the final * is
// a wildcard; file URLs are compared after collapsing scheme slashes.
func Match(target, pattern string) bool {
	if base, ok := strings.CutSuffix(pattern, "*"); ok {
		if strings.HasPrefix(target, "file:/") && strings.HasPrefix(base, "file:/") {
			target = normalizeFileURL(target)
			base = normalizeFileURL(base)
		}
		return strings.HasPrefix(target, base)
	}
	return target == pattern || strings.HasPrefix(target, pattern+"/")
}

// IsBridgeAccessAllowed checks target against the bridge origins.
func IsBridgeAccessAllowed(target string, p Policy) bool {
	for _, pattern := range p.AllowedBridgeOrigins {
		if Match(target, pattern) {
			return true
		}
	}
	return false
}

// IsNavigationAllowed decides whether the renderer may load target.
// When navigation is allowed, http(s) targets are checked against network
// origins and everything else against bridge origins. Otherwise only the
// document itself and bridge origins may be loaded.
func IsNavigationAllowed(target string, p Policy) bool {
	if !p.AllowNavigation {
		if p.Document != "" && sameDocument(target, p.Document) {
			return true
		}
		return IsBridgeAccessAllowed(target, p)
	}
	if isHTTP(target) {
		return networkAllowed(target, p)
	}
	return IsBridgeAccessAllowed(target, p)
}

func networkAllowed(target string, p Policy) bool {
	for _, pattern := range p.AllowedNetworkOrigins {
		if pattern == "*" || Match(target, pattern) {
			return true
		}
	}
	return false
}

// sameDocument ignores fragments and query strings.
func sameDocument(a, b string) bool {
	strip := func(s string) string {
		if i := strings.IndexAny(s, "?#"); i >= 0 {
			return s[:i]
		}
		return s
	}
	return strip(a) == strip(b)
}

func normalizeFileURL(s string) string {
	rest := strings.TrimLeft(strings.TrimPrefix(s, "file:"), "/")
	return "file:///" + rest
}

func isHTTP(s string) bool {
	return strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://")
}
