package storage

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/golang/glog"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"scenerepo/internal/acl"
	"scenerepo/internal/document"
)

// ListDatabases returns every database name, optionally sorted without
// regard to case.
func (h *Handler) ListDatabases(ctx context.Context, sorted bool) ([]string, error) {
	var names []string
	err := h.with(ctx, "list databases", "", "", func(ctx context.Context, c Conn) error {
		var err error
		names, err = c.ListDatabases(ctx)
		return err
	})
	if err != nil {
		return nil, err
	}
	if sorted {
		sortFold(names)
	}
	return names, nil
}

// sortFold orders names case-insensitively, breaking ties by byte order
func sortFold(names []string) {
	sort.SliceStable(names, func(i, j int) bool {
		a, b := strings.ToLower(names[i]), strings.ToLower(names[j])
		if a != b {
			return a < b
		}
		return names[i] < names[j]
	})
}

// ListCollections returns the collections of database
func (h *Handler) ListCollections(ctx context.Context, database string) ([]string, error) {
	var names []string
	err := h.with(ctx, "list collections", database, "", func(ctx context.Context, c Conn) error {
		var err error
		names, err = c.ListCollections(ctx, database)
		return err
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(names)
	return names, nil
}

// ListProjects returns the projects of database: collection names of the
// form <project>.<suffix>, with the suffix removed.
func (h *Handler) ListProjects(ctx context.Context, database, suffix string) ([]string, error) {
	collections, err := h.ListCollections(ctx, database)
	if err != nil {
		return nil, err
	}
	var projects []string
	for _, coll := range collections {
		if project, ok := strings.CutSuffix(coll, "."+suffix); ok && project != "" {
			projects = append(projects, project)
		}
	}
	return projects, nil
}

// DatabasesWithProjects lists the projects of each database concurrently,
// bounded by the pool size.
func (h *Handler) DatabasesWithProjects(ctx context.Context, databases []string, suffix string) (map[string][]string, error) {
	var mu sync.Mutex
	out := make(map[string][]string, len(databases))

	g, ctx := errgroup.WithContext(ctx)
	for _, db := range databases {
		g.Go(func() error {
			projects, err := h.ListProjects(ctx, db, suffix)
			if err != nil {
				return err
			}
			mu.Lock()
			out[db] = projects
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// Insert stores doc. It fails with ErrDuplicateKey if the _id is taken.
func (h *Handler) Insert(ctx context.Context, database, collection string, doc document.Document) error {
	return h.with(ctx, "insert", database, collection, func(ctx context.Context, c Conn) error {
		return c.Insert(ctx, database, collection, doc)
	})
}

// InsertMany stores docs in order on one connection, stopping at the first
// failure. Documents stored before the failure remain.
func (h *Handler) InsertMany(ctx context.Context, database, collection string, docs []document.Document) error {
	return h.with(ctx, "insert", database, collection, func(ctx context.Context, c Conn) error {
		for i, doc := range docs {
			if err := c.Insert(ctx, database, collection, doc); err != nil {
				return fmt.Errorf("document %d of %d: %w", i+1, len(docs), err)
			}
		}
		return nil
	})
}

// Upsert stores doc, updating the document with the same _id if present.
// With overwrite the stored document is replaced, otherwise doc's fields
// are merged into it.
func (h *Handler) Upsert(ctx context.Context, database, collection string, doc document.Document, overwrite bool) error {
	return h.with(ctx, "upsert", database, collection, func(ctx context.Context, c Conn) error {
		return c.Upsert(ctx, database, collection, doc, overwrite)
	})
}

// FindOption adjusts a find
type FindOption func(*Query)

// Fields projects results to the named top-level fields
func Fields(fields ...string) FindOption {
	return func(q *Query) { q.Fields = fields }
}

// FindByUniqueIDs returns the documents whose _id is in ids. Missing IDs
// are skipped; order is unspecified.
func (h *Handler) FindByUniqueIDs(ctx context.Context, database, collection string, ids []uuid.UUID, opts ...FindOption) ([]document.Document, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	q := Query{UniqueIDs: ids}
	for _, opt := range opts {
		opt(&q)
	}
	var docs []document.Document
	err := h.with(ctx, "find", database, collection, func(ctx context.Context, c Conn) error {
		var err error
		docs, err = c.Find(ctx, database, collection, q)
		return err
	})
	if err != nil {
		return nil, err
	}
	glog.V(2).Infof("Found %d of %d documents in %s.%s", len(docs), len(ids), database, collection)
	return docs, nil
}

// FindLatestBySharedID returns the document with the given shared ID that
// sorts last by sortField. It fails with ErrNotFound if there is none.
func (h *Handler) FindLatestBySharedID(ctx context.Context, database, collection string, shared uuid.UUID, sortField string) (document.Document, error) {
	q := Query{SharedID: &shared, SortField: sortField, Descending: true, Limit: 1}
	return h.findOne(ctx, "find latest", database, collection, q, "shared id "+shared.String())
}

// FindByUniqueID returns the document with the given _id. It fails with
// ErrNotFound if there is none.
func (h *Handler) FindByUniqueID(ctx context.Context, database, collection string, id uuid.UUID) (document.Document, error) {
	q := Query{UniqueIDs: []uuid.UUID{id}, Limit: 1}
	return h.findOne(ctx, "find", database, collection, q, "unique id "+id.String())
}

func (h *Handler) findOne(ctx context.Context, op, database, collection string, q Query, what string) (document.Document, error) {
	var docs []document.Document
	err := h.with(ctx, op, database, collection, func(ctx context.Context, c Conn) error {
		var err error
		docs, err = c.Find(ctx, database, collection, q)
		return err
	})
	if err != nil {
		return document.Empty(), err
	}
	if len(docs) == 0 {
		return document.Empty(), &Error{Op: op, Database: database, Collection: collection, Err: NotFound(what)}
	}
	return docs[0], nil
}

// CreateUser provisions an account on database
func (h *Handler) CreateUser(ctx context.Context, database string, user User) error {
	return h.with(ctx, "create user", database, "", func(ctx context.Context, c Conn) error {
		return c.CreateUser(ctx, database, user)
	})
}

// UpsertRole creates role or replaces its privileges and inherited roles
func (h *Handler) UpsertRole(ctx context.Context, role acl.Role) error {
	err := h.with(ctx, "upsert role", role.Database, "", func(ctx context.Context, c Conn) error {
		return c.UpsertRole(ctx, role)
	})
	if err == nil {
		glog.V(1).Infof("Provisioned role %s with %d privileges", role.ID(), len(role.Privileges))
	}
	return err
}

// FindRole loads a role. It fails with ErrNotFound if there is none.
func (h *Handler) FindRole(ctx context.Context, database, name string) (acl.Role, error) {
	var role acl.Role
	err := h.with(ctx, "find role", database, "", func(ctx context.Context, c Conn) error {
		var err error
		role, err = c.FindRole(ctx, database, name)
		return err
	})
	return role, err
}

// ProvisionRole translates permissions into privileges and upserts the
// resulting role.
func (h *Handler) ProvisionRole(ctx context.Context, database, name string, perms []acl.Permission, inherited []acl.RoleRef) (acl.Role, error) {
	role := acl.Role{
		Name:       name,
		Database:   database,
		Privileges: acl.Translate(perms),
		Inherited:  inherited,
	}
	if err := h.UpsertRole(ctx, role); err != nil {
		return acl.Role{}, err
	}
	return role, nil
}
