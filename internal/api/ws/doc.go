// Package ws serves the bridge content channel for remote renderers.
//
// A connection to /ws/bridge/:appId opens a host session for the app.
// The first frame sent is the bridge runtime. After that every inbound
// text frame is dispatched as a raw bridge message and every reply is
// sent back as a script the renderer evaluates.
package ws
