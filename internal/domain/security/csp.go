package security

import (
	"slices"
	"strings"
)

// GenerateCSP derives a Content-Security-Policy header value from p.
func GenerateCSP(p Policy) string {
	bridge := strings.Join(p.AllowedBridgeOrigins, " ")
	network := strings.Join(p.AllowedNetworkOrigins, " ")
	if slices.Contains(p.AllowedNetworkOrigins, "*") {
		network = "*"
	}

	directives := []string{
		"default-src 'self' " + bridge,
		"script-src 'self' 'unsafe-inline' " + bridge,
		"connect-src 'self' " + network,
		"img-src 'self' data: https: " + network,
		"style-src 'self' 'unsafe-inline' " + bridge,
		"font-src 'self' data: " + bridge,
		"frame-ancestors 'none'",
		"form-action 'self'",
		"upgrade-insecure-requests",
	}
	for i, d := range directives {
		directives[i] = strings.TrimSpace(d)
	}
	return strings.Join(directives, "; ")
}
