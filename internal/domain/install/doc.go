// Package install turns a micro-app download URL into a runnable bundle.
//
// Bundles live under <document root>/micro-apps: the archive as
// <appId>.zip and the unpacked tree as <appId>-extracted. An install
// unpacks into a staging directory and only replaces the live bundle once
// the entry document has been found, so a failed update leaves the
// previous install intact. Apps being installed or removed are reported
// by Downloading and State until the operation returns.
package install
