package storage

import (
	"errors"
	"fmt"
)

// Failure classes for errors.Is
var (
	ErrDuplicateKey = errors.New("duplicate key")
	ErrAuthFailed   = errors.New("authentication failed")
	ErrNotFound     = errors.New("not found")
	ErrConnection   = errors.New("connection failure")
	ErrClosed       = errors.New("handler closed")
)

// Error describes a failed storage operation
type Error struct {
	Op         string
	Database   string
	Collection string
	Err        error
}

func (e *Error) Error() string {
	switch {
	case e.Collection != "":
		return fmt.Sprintf("storage %s %s.%s: %v", e.Op, e.Database, e.Collection, e.Err)
	case e.Database != "":
		return fmt.Sprintf("storage %s %s: %v", e.Op, e.Database, e.Err)
	default:
		return fmt.Sprintf("storage %s: %v", e.Op, e.Err)
	}
}

func (e *Error) Unwrap() error {
	return e.Err
}

// classified tags a native error with a failure class without changing its
// message.
type classified struct {
	class error
	err   error
}

func (c *classified) Error() string { return c.err.Error() }

func (c *classified) Unwrap() []error { return []error{c.class, c.err} }

// Classify marks err as belonging to class. Drivers use it so callers can
// test the class with errors.Is while the message stays the store's own.
func Classify(class, err error) error {
	if err == nil {
		return nil
	}
	return &classified{class: class, err: err}
}

// NotFound returns a classified not-found error for a query
func NotFound(what string) error {
	return Classify(ErrNotFound, errors.New(what+" not found"))
}

func isBroken(err error) bool {
	return errors.Is(err, ErrConnection)
}
