// Package service implements the operations exposed by the scenerepo server.
//
// It sits between the HTTP handlers and the storage and ledger layers,
// applying request validation and publishing events for every change.
//
// # Services
//
// RepoService browses databases and projects, commits working scenes and
// reads revisions back as scene graphs.
//
// RoleService provisions project roles and user accounts from a roles file
// and re-provisions them when the file changes.
//
// # Event System
//
// Services publish events via EventBus. The server forwards them to
// Server-Sent Events clients.
package service
