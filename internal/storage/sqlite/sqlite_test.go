package sqlite

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"scenerepo/internal/acl"
	"scenerepo/internal/document"
	"scenerepo/internal/storage"
)

// ============================================================================
// Test Helpers
// ============================================================================

// newTestConn creates a connection on an in-memory driver
func newTestConn(t *testing.T) *conn {
	t.Helper()
	d, err := New(Memory, WithBcryptCost(bcrypt.MinCost))
	if err != nil {
		t.Fatalf("failed to create driver: %v", err)
	}
	t.Cleanup(func() {
		d.Close()
	})
	c, err := d.Dial(context.Background())
	if err != nil {
		t.Fatalf("failed to dial: %v", err)
	}
	return c.(*conn)
}

// assertNoError fails the test if err is not nil
func assertNoError(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

// assertEqual fails the test if expected != actual
func assertEqual(t *testing.T, expected, actual interface{}) {
	t.Helper()
	if !reflect.DeepEqual(expected, actual) {
		t.Fatalf("expected %v, got %v", expected, actual)
	}
}

func node(id, shared uuid.UUID, name string) document.Document {
	return document.NewBuilder().
		AppendUUID("_id", id).
		AppendUUID("shared_id", shared).
		Append("name", name).
		Document()
}

// ============================================================================
// Collection Tests
// ============================================================================

func TestInsertAndFind(t *testing.T) {
	ctx := context.Background()
	c := newTestConn(t)

	a, b := uuid.New(), uuid.New()
	assertNoError(t, c.Insert(ctx, "acme", "tower.scene", node(a, uuid.New(), "a")))
	assertNoError(t, c.Insert(ctx, "acme", "tower.scene", node(b, uuid.New(), "b")))

	t.Run("by unique ids", func(t *testing.T) {
		docs, err := c.Find(ctx, "acme", "tower.scene", storage.Query{UniqueIDs: []uuid.UUID{a, uuid.New()}})
		assertNoError(t, err)
		assertEqual(t, 1, len(docs))
		assertEqual(t, "a", docs[0].String("name", ""))
	})

	t.Run("all documents", func(t *testing.T) {
		docs, err := c.Find(ctx, "acme", "tower.scene", storage.Query{})
		assertNoError(t, err)
		assertEqual(t, 2, len(docs))
	})

	t.Run("projection", func(t *testing.T) {
		docs, err := c.Find(ctx, "acme", "tower.scene", storage.Query{UniqueIDs: []uuid.UUID{b}, Fields: []string{"_id"}})
		assertNoError(t, err)
		assertEqual(t, []string{"_id"}, docs[0].Keys())
	})

	t.Run("missing collection is empty", func(t *testing.T) {
		docs, err := c.Find(ctx, "acme", "nothing.scene", storage.Query{})
		assertNoError(t, err)
		assertEqual(t, 0, len(docs))
	})
}

func TestInsertDuplicate(t *testing.T) {
	ctx := context.Background()
	c := newTestConn(t)

	id := uuid.New()
	assertNoError(t, c.Insert(ctx, "acme", "tower.history", node(id, uuid.New(), "first")))
	err := c.Insert(ctx, "acme", "tower.history", node(id, uuid.New(), "second"))
	if !errors.Is(err, storage.ErrDuplicateKey) {
		t.Fatalf("expected ErrDuplicateKey, got %v", err)
	}
}

func TestUpsert(t *testing.T) {
	ctx := context.Background()
	c := newTestConn(t)
	id := uuid.New()

	first := document.NewBuilder().AppendUUID("_id", id).Append("keep", 1).Append("change", "old").Document()
	assertNoError(t, c.Upsert(ctx, "acme", "settings", first, false))

	patch := document.NewBuilder().AppendUUID("_id", id).Append("change", "new").Document()

	t.Run("merge keeps other fields", func(t *testing.T) {
		assertNoError(t, c.Upsert(ctx, "acme", "settings", patch, false))
		docs, err := c.Find(ctx, "acme", "settings", storage.Query{UniqueIDs: []uuid.UUID{id}})
		assertNoError(t, err)
		assertEqual(t, 1, docs[0].Int("keep", 0))
		assertEqual(t, "new", docs[0].String("change", ""))
	})

	t.Run("overwrite replaces", func(t *testing.T) {
		assertNoError(t, c.Upsert(ctx, "acme", "settings", patch, true))
		docs, err := c.Find(ctx, "acme", "settings", storage.Query{UniqueIDs: []uuid.UUID{id}})
		assertNoError(t, err)
		assertEqual(t, false, docs[0].Has("keep"))
	})
}

func TestFindLatestBySharedID(t *testing.T) {
	ctx := context.Background()
	c := newTestConn(t)
	branch := uuid.New()
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	var latest uuid.UUID
	for i := 0; i < 3; i++ {
		id := uuid.New()
		latest = id
		doc := document.NewBuilder().
			AppendUUID("_id", id).
			AppendUUID("shared_id", branch).
			AppendTime("timestamp", base.Add(time.Duration(i)*time.Second)).
			Document()
		assertNoError(t, c.Insert(ctx, "acme", "tower.history", doc))
	}
	// another branch, later still
	other := document.NewBuilder().
		AppendUUID("_id", uuid.New()).
		AppendUUID("shared_id", uuid.New()).
		AppendTime("timestamp", base.Add(time.Hour)).
		Document()
	assertNoError(t, c.Insert(ctx, "acme", "tower.history", other))

	docs, err := c.Find(ctx, "acme", "tower.history", storage.Query{
		SharedID: &branch, SortField: "timestamp", Descending: true, Limit: 1,
	})
	assertNoError(t, err)
	assertEqual(t, 1, len(docs))
	assertEqual(t, latest, docs[0].UUID("_id", uuid.Nil))
}

func TestListCollectionsAndDatabases(t *testing.T) {
	ctx := context.Background()
	c := newTestConn(t)

	assertNoError(t, c.Insert(ctx, "acme", "tower.scene", node(uuid.New(), uuid.New(), "x")))
	assertNoError(t, c.Insert(ctx, "acme", "tower.history", node(uuid.New(), uuid.New(), "x")))
	assertNoError(t, c.Insert(ctx, "Beta", "bridge.scene", node(uuid.New(), uuid.New(), "x")))

	colls, err := c.ListCollections(ctx, "acme")
	assertNoError(t, err)
	assertEqual(t, []string{"tower.history", "tower.scene"}, colls)

	dbs, err := c.ListDatabases(ctx)
	assertNoError(t, err)
	assertEqual(t, []string{"Beta", "acme"}, dbs)
}

func TestInvalidDatabaseName(t *testing.T) {
	c := newTestConn(t)
	err := c.Insert(context.Background(), "../escape", "x", node(uuid.New(), uuid.New(), "x"))
	if err == nil {
		t.Fatal("expected error for invalid database name")
	}
}

// ============================================================================
// Account Tests
// ============================================================================

func TestUsers(t *testing.T) {
	ctx := context.Background()
	c := newTestConn(t)

	assertNoError(t, c.CreateUser(ctx, "acme", storage.User{
		Username: "alice",
		Password: "s3cret",
		Roles:    []acl.RoleRef{{Role: "viewer", Database: "acme"}},
	}))

	t.Run("correct password", func(t *testing.T) {
		assertNoError(t, c.Authenticate(ctx, storage.Credentials{Database: "acme", Username: "alice", Password: "s3cret"}))
	})

	t.Run("wrong password", func(t *testing.T) {
		err := c.Authenticate(ctx, storage.Credentials{Database: "acme", Username: "alice", Password: "nope"})
		if !errors.Is(err, storage.ErrAuthFailed) {
			t.Fatalf("expected ErrAuthFailed, got %v", err)
		}
	})

	t.Run("unknown user", func(t *testing.T) {
		err := c.Authenticate(ctx, storage.Credentials{Database: "acme", Username: "bob", Password: "x"})
		if !errors.Is(err, storage.ErrAuthFailed) {
			t.Fatalf("expected ErrAuthFailed, got %v", err)
		}
	})

	t.Run("duplicate user", func(t *testing.T) {
		err := c.CreateUser(ctx, "acme", storage.User{Username: "alice", Password: "other"})
		if !errors.Is(err, storage.ErrDuplicateKey) {
			t.Fatalf("expected ErrDuplicateKey, got %v", err)
		}
	})
}

func TestRoles(t *testing.T) {
	ctx := context.Background()
	c := newTestConn(t)

	role := acl.Role{
		Name:       "tower-editors",
		Database:   "acme",
		Privileges: acl.Translate([]acl.Permission{{Database: "acme", Project: "tower", Right: acl.AccessReadWrite}}),
		Inherited:  []acl.RoleRef{{Role: "read", Database: "acme"}},
	}
	assertNoError(t, c.UpsertRole(ctx, role))

	got, err := c.FindRole(ctx, "acme", "tower-editors")
	assertNoError(t, err)
	assertEqual(t, role, got)

	role.Privileges = acl.Translate([]acl.Permission{{Database: "acme", Project: "tower", Right: acl.AccessRead}})
	assertNoError(t, c.UpsertRole(ctx, role))
	got, err = c.FindRole(ctx, "acme", "tower-editors")
	assertNoError(t, err)
	assertEqual(t, role.Privileges, got.Privileges)

	_, err = c.FindRole(ctx, "acme", "missing")
	if !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestClosedDriver(t *testing.T) {
	d, err := New(Memory)
	assertNoError(t, err)
	assertNoError(t, d.Close())

	_, err = d.Dial(context.Background())
	if !errors.Is(err, storage.ErrConnection) {
		t.Fatalf("expected ErrConnection, got %v", err)
	}
}

func TestOnDiskDatabases(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	d, err := New(dir)
	assertNoError(t, err)
	c, err := d.Dial(ctx)
	assertNoError(t, err)
	assertNoError(t, c.Insert(ctx, "acme", "tower.scene", node(uuid.New(), uuid.New(), "x")))
	assertNoError(t, d.Close())

	// a fresh driver finds the file
	d2, err := New(dir)
	assertNoError(t, err)
	t.Cleanup(func() { d2.Close() })
	c2, err := d2.Dial(ctx)
	assertNoError(t, err)

	dbs, err := c2.ListDatabases(ctx)
	assertNoError(t, err)
	assertEqual(t, []string{"acme"}, dbs)

	docs, err := c2.Find(ctx, "acme", "tower.scene", storage.Query{})
	assertNoError(t, err)
	assertEqual(t, 1, len(docs))
}

func TestReadsDoNotCreateDatabases(t *testing.T) {
	ctx := context.Background()

	d, err := New(t.TempDir(), WithBcryptCost(bcrypt.MinCost))
	assertNoError(t, err)
	h, err := storage.Open(ctx, storage.Config{PoolSize: 1}, d)
	assertNoError(t, err)
	t.Cleanup(func() { h.Close() })

	before, err := h.ListDatabases(ctx, true)
	assertNoError(t, err)

	projects, err := h.ListProjects(ctx, "ghost", "history")
	assertNoError(t, err)
	assertEqual(t, 0, len(projects))

	_, err = h.FindByUniqueID(ctx, "phantom", "tower.scene", uuid.New())
	if !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	_, err = h.FindLatestBySharedID(ctx, "phantom", "tower.history", uuid.New(), "timestamp")
	if !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	after, err := h.ListDatabases(ctx, true)
	assertNoError(t, err)
	assertEqual(t, before, after)

	// a write still creates the database
	assertNoError(t, h.Insert(ctx, "ghost", "tower.scene", node(uuid.New(), uuid.New(), "x")))
	collections, err := h.ListCollections(ctx, "ghost")
	assertNoError(t, err)
	assertEqual(t, []string{"tower.scene"}, collections)
}

func TestMemoryReadsDoNotCreateDatabases(t *testing.T) {
	ctx := context.Background()
	c := newTestConn(t)

	names, err := c.ListCollections(ctx, "ghost")
	assertNoError(t, err)
	assertEqual(t, 0, len(names))

	dbs, err := c.ListDatabases(ctx)
	assertNoError(t, err)
	for _, db := range dbs {
		if db == "ghost" {
			t.Fatalf("read created database %s", db)
		}
	}
}
