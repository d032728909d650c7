package domain

import (
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// Sentinel errors for errors.Is checks
var (
	ErrValidation        = errors.New("validation failed")
	ErrGraphIntegrity    = errors.New("graph integrity violated")
	ErrLedgerConsistency = errors.New("ledger consistency violated")
)

// ValidationError reports a node that could not be constructed
type ValidationError struct {
	Type   NodeType
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("invalid %s node: %s", e.Type, e.Reason)
	}
	return fmt.Sprintf("invalid %s node: %s %s", e.Type, e.Field, e.Reason)
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

func invalid(t NodeType, field, format string, args ...any) *ValidationError {
	return &ValidationError{Type: t, Field: field, Reason: fmt.Sprintf(format, args...)}
}

// GraphIntegrityError reports a node set that does not form a valid scene
// graph: a cycle, a dangling parent reference or a repeated shared ID.
type GraphIntegrityError struct {
	SharedID uuid.UUID
	Reason   string
}

func (e *GraphIntegrityError) Error() string {
	return fmt.Sprintf("graph integrity: node %s: %s", e.SharedID, e.Reason)
}

func (e *GraphIntegrityError) Is(target error) bool {
	return target == ErrGraphIntegrity
}

// LedgerConsistencyError reports a revision whose stored current set does
// not match the result of applying its deltas to its parent.
type LedgerConsistencyError struct {
	Revision uuid.UUID
	// Missing are IDs the revision should resolve to but does not
	Missing []uuid.UUID
	// Unexpected are IDs the revision resolves to that its deltas do not explain
	Unexpected []uuid.UUID
	Reason     string
}

func (e *LedgerConsistencyError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "ledger consistency: revision %s", e.Revision)
	if e.Reason != "" {
		b.WriteString(": ")
		b.WriteString(e.Reason)
	}
	if len(e.Missing) > 0 {
		fmt.Fprintf(&b, " (%d missing)", len(e.Missing))
	}
	if len(e.Unexpected) > 0 {
		fmt.Fprintf(&b, " (%d unexpected)", len(e.Unexpected))
	}
	return b.String()
}

func (e *LedgerConsistencyError) Is(target error) bool {
	return target == ErrLedgerConsistency
}
