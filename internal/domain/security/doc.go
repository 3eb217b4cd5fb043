// Package security computes per-render security policies for micro-app
// content and gatekeeps every inbound bridge message.
//
// Three delivery modes produce three policy shapes:
//   - local-file: bundles unpacked under the document root (the common case)
//   - remote: content served from an http(s) URL
//   - developer: local network dev servers
//
// SanitizeBridgeMessage and the validate_content heuristics in the bridge
// are best-effort filters, not a sandbox.
package security
