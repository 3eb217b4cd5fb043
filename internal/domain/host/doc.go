// Package host hosts rendered micro-apps.
//
// A Session binds one micro-app to a content renderer: it derives the
// security mode and policy from the app's entry point, owns the token
// wait-list and scanner state the bridge topics use, and exchanges the
// app's capability token in the background once started. Closing a
// session drops every reply produced afterwards.
//
// Preview runs an installed bundle's entry page in a headless renderer and
// reports what it logged and sent over the bridge.
package host
