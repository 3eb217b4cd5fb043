// Package webview is a headless content view for micro-apps.
//
// A Renderer runs content scripts in a goja VM that exposes the globals the
// bridge runtime needs: window, sessionStorage, CustomEvent, timers and a
// ReactNativeWebView channel whose postMessage calls are queued for the
// host to drain. Timers run on a virtual clock advanced by the host so
// request timeouts are deterministic.
//
// LoadDocument runs the scripts of an installed bundle's entry page so a
// micro-app can be exercised end to end without a device.
package webview
