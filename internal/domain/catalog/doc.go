// Package catalog fetches the published micro-app catalog and the user's
// allow-list, and reconciles the catalog with local install state.
//
// Installed apps whose recorded version differs from the catalog's latest
// are updated automatically through the shared installation queue,
// independently of allow-list sync.
package catalog
