package storage

import (
	"context"

	"github.com/google/uuid"

	"scenerepo/internal/acl"
	"scenerepo/internal/document"
)

// Driver dials connections to one backing store
type Driver interface {
	// Name identifies the driver in logs and configuration
	Name() string
	Dial(ctx context.Context) (Conn, error)
	// Close releases resources shared by all connections
	Close() error
}

// Conn is one connection to the backing store. A Conn is used by a single
// goroutine at a time. Errors from transport failures must be classified
// with ErrConnection so the pool can discard the connection.
type Conn interface {
	Authenticate(ctx context.Context, cred Credentials) error

	ListDatabases(ctx context.Context) ([]string, error)
	ListCollections(ctx context.Context, database string) ([]string, error)

	// Insert fails with ErrDuplicateKey if the _id is taken
	Insert(ctx context.Context, database, collection string, doc document.Document) error
	// Upsert inserts doc, or updates the document with the same _id. With
	// overwrite the stored document is replaced, otherwise doc's top-level
	// fields are set on it.
	Upsert(ctx context.Context, database, collection string, doc document.Document, overwrite bool) error
	Find(ctx context.Context, database, collection string, q Query) ([]document.Document, error)

	CreateUser(ctx context.Context, database string, user User) error
	UpsertRole(ctx context.Context, role acl.Role) error
	// FindRole fails with ErrNotFound if the role does not exist
	FindRole(ctx context.Context, database, name string) (acl.Role, error)

	Ping(ctx context.Context) error
	Close() error
}

// Query selects documents in one collection. Empty selectors match every
// document.
type Query struct {
	UniqueIDs []uuid.UUID
	// SharedID restricts to documents whose shared_id matches, when set
	SharedID *uuid.UUID
	// SortField orders results; documents lacking it sort first
	SortField  string
	Descending bool
	// Limit caps the result count when positive
	Limit int
	// Fields projects the results to the named top-level fields
	Fields []string
}

// Credentials authenticate against one database
type Credentials struct {
	Database string
	Username string
	Password string
	// Digested means Password already holds the store's digest
	Digested bool
}

// Document renders the credentials in the form the store authenticates with
func (c Credentials) Document() document.Document {
	if c.Username == "" {
		return document.Empty()
	}
	return document.NewBuilder().
		Append("user", c.Username).
		Append("db", c.Database).
		Append("pwd", c.Password).
		Append("digestPassword", !c.Digested).
		Document()
}

// User is an account to provision
type User struct {
	Username string
	Password string
	Roles    []acl.RoleRef
}
