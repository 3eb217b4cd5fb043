// Package microapp defines the micro-app data model and the shared,
// write-through repository every lifecycle component mutates.
//
// The whole collection is persisted as one JSON document under the "apps"
// key after every mutation. Records are never deleted; removal only moves
// an app back to not-downloaded.
package microapp
