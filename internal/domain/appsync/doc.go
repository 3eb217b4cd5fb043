// Package appsync keeps installed micro-apps in line with what the user
// is entitled to.
//
// Every install and removal, whether from a sync, an ad-hoc user action or
// an automatic version update, runs through one FIFO Queue with a single
// worker. The Orchestrator diffs the user's allow-list against installed
// apps, asks for confirmation, then applies removals before installs and
// keeps going when an item fails.
package appsync
