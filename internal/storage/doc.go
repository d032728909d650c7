// Package storage is the single entry point to the document-oriented
// backing store.
//
// A Handler owns a bounded pool of connections obtained from a Driver. Every
// operation borrows one connection for its duration and returns it on
// completion or failure; connections that fail at the transport level are
// discarded instead of being returned. Credentials registered with
// Authenticate are cached for the life of the handler and replayed on every
// pooled connection before use.
//
// # Drivers
//
// The sqlite subpackage provides an embedded store backed by
// modernc.org/sqlite, used for single-node deployments and tests. The mongo
// subpackage talks to a MongoDB deployment through the official driver.
//
// # Errors
//
// Failures are returned as *Error carrying the operation, database and
// collection. The backing store's own error text is kept verbatim. Use
// errors.Is with ErrDuplicateKey, ErrAuthFailed, ErrNotFound or
// ErrConnection to branch on the failure class.
//
// # Lifetime
//
// Open creates a handler. Processes that need exactly one handler use
// Singleton, whose first successful configuration wins and whose Reset
// closes the handler together with its driver.
package storage
