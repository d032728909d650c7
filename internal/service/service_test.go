package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"cogentcore.org/core/math32"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"scenerepo/internal/acl"
	"scenerepo/internal/domain"
	"scenerepo/internal/ledger"
	"scenerepo/internal/loader"
	"scenerepo/internal/storage"
	"scenerepo/internal/storage/sqlite"
)

func newTestHandler(t *testing.T) *storage.Handler {
	t.Helper()
	d, err := sqlite.New(sqlite.Memory, sqlite.WithBcryptCost(bcrypt.MinCost))
	require.NoError(t, err)
	h, err := storage.Open(context.Background(), storage.Config{PoolSize: 2}, d)
	require.NoError(t, err)
	t.Cleanup(func() { h.Close() })
	return h
}

func newRepoService(t *testing.T) (*RepoService, *domain.Factory, chan Event) {
	t.Helper()
	h := newTestHandler(t)
	f := domain.NewFactory()
	bus := NewEventBus()
	events := make(chan Event, 8)
	bus.Subscribe(events)
	return NewRepoService(h, ledger.New(h, ledger.WithFactory(f)), bus), f, events
}

func testMesh(t *testing.T, f *domain.Factory, x float32, opts ...domain.Option) *domain.MeshNode {
	t.Helper()
	m, err := f.Mesh(domain.MeshParams{
		Vertices: []math32.Vector3{{X: 0}, {X: x}, {Y: x}},
		Faces:    []domain.Face{{0, 1, 2}},
	}, opts...)
	require.NoError(t, err)
	return m
}

func TestRepoServiceCommitAndBrowse(t *testing.T) {
	ctx := context.Background()
	svc, f, events := newRepoService(t)

	m1 := testMesh(t, f, 1)
	r1, err := svc.Commit(ctx, ledger.CommitRequest{
		Database: "acme", Project: "tower", Author: "alice", Message: "initial",
		Nodes: []domain.Node{m1},
	})
	require.NoError(t, err)

	select {
	case ev := <-events:
		assert.Equal(t, EventRevisionCommitted, ev.Type)
		payload, ok := ev.Payload.(CommittedPayload)
		require.True(t, ok)
		assert.Equal(t, "master", payload.Branch)
		assert.Equal(t, r1.UniqueID.String(), payload.Revision)
		assert.Equal(t, 1, payload.Added)
	case <-time.After(time.Second):
		t.Fatal("no event published")
	}

	m2 := testMesh(t, f, 4, domain.WithSharedID(m1.SharedID))
	r2, err := svc.Commit(ctx, ledger.CommitRequest{
		Database: "acme", Project: "tower", Author: "bob", Parent: r1.UniqueID,
		Nodes: []domain.Node{m2},
	})
	require.NoError(t, err)

	dbs, err := svc.ListDatabases(ctx)
	require.NoError(t, err)
	assert.Contains(t, dbs, "acme")

	projects, err := svc.ListProjects(ctx, "acme")
	require.NoError(t, err)
	assert.Equal(t, []string{"tower"}, projects)

	catalog, err := svc.Catalog(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"tower"}, catalog["acme"])

	history, err := svc.History(ctx, "acme", "tower", domain.MasterBranch, 0)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, r2.UniqueID.String(), history[0].ID)
	assert.Equal(t, 1, history[0].Modified)
	assert.Equal(t, []string{r1.UniqueID.String()}, history[0].Parents)
	assert.Equal(t, "initial", history[1].Message)

	head, g, err := svc.Current(ctx, "acme", "tower", domain.MasterBranch)
	require.NoError(t, err)
	assert.Equal(t, r2.UniqueID, head.UniqueID)
	n, ok := g.Node(m1.SharedID)
	require.True(t, ok)
	assert.Equal(t, m2.UniqueID, n.Header().UniqueID)

	for _, verify := range []bool{false, true} {
		g, err := svc.Scene(ctx, "acme", "tower", r1.UniqueID, verify)
		require.NoError(t, err)
		n, ok := g.Node(m1.SharedID)
		require.True(t, ok)
		assert.Equal(t, m1.UniqueID, n.Header().UniqueID, "verify=%v", verify)
	}
}

func TestRepoServiceStaleCommit(t *testing.T) {
	ctx := context.Background()
	svc, f, _ := newRepoService(t)

	req := ledger.CommitRequest{Database: "acme", Project: "tower", Author: "alice", Nodes: []domain.Node{testMesh(t, f, 1)}}
	_, err := svc.Commit(ctx, req)
	require.NoError(t, err)

	// a second root commit on a non-empty branch is stale
	_, err = svc.Commit(ctx, req)
	assert.ErrorIs(t, err, ledger.ErrStaleParent)
}

func TestRepoServiceValidateCommit(t *testing.T) {
	svc := &RepoService{}
	valid := ledger.CommitRequest{Database: "acme", Project: "tower", Author: "alice"}

	tests := []struct {
		name   string
		mutate func(*ledger.CommitRequest)
	}{
		{"missing database", func(r *ledger.CommitRequest) { r.Database = "" }},
		{"missing project", func(r *ledger.CommitRequest) { r.Project = "" }},
		{"dotted project", func(r *ledger.CommitRequest) { r.Project = "a.b" }},
		{"missing author", func(r *ledger.CommitRequest) { r.Author = "" }},
	}

	require.NoError(t, svc.validateCommit(valid))
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := valid
			tt.mutate(&req)
			assert.Error(t, svc.validateCommit(req))
		})
	}
}

func TestParseBranch(t *testing.T) {
	id := uuid.New()

	for _, s := range []string{"", "master", "MASTER", uuid.Nil.String()} {
		got, err := ParseBranch(s)
		require.NoError(t, err, s)
		assert.Equal(t, domain.MasterBranch, got, s)
	}

	got, err := ParseBranch(id.String())
	require.NoError(t, err)
	assert.Equal(t, id, got)
	assert.Equal(t, id.String(), BranchName(id))
	assert.Equal(t, "master", BranchName(domain.MasterBranch))

	_, err = ParseBranch("feature")
	assert.Error(t, err)
}

func TestRoleServiceProvision(t *testing.T) {
	ctx := context.Background()
	h := newTestHandler(t)
	bus := NewEventBus()
	events := make(chan Event, 8)
	bus.Subscribe(events)
	svc := NewRoleService(h, bus)

	defs := &loader.Definitions{
		Roles: []loader.RoleSpec{{
			Name:     "tower-editors",
			Database: "acme",
			Permissions: []acl.Permission{
				{Database: "acme", Project: "tower", Right: acl.AccessReadWrite},
			},
		}},
		Users: []loader.UserSpec{{
			Database: "acme",
			User: storage.User{
				Username: "alice",
				Password: "s3cret",
				Roles:    []acl.RoleRef{{Role: "tower-editors", Database: "acme"}},
			},
		}},
	}

	for run := range 2 {
		result, err := svc.Provision(ctx, defs)
		require.NoError(t, err, "run %d", run)
		assert.Equal(t, 1, result.Roles)
		assert.Equal(t, 1, result.Users)

		ev := <-events
		assert.Equal(t, EventRolesProvisioned, ev.Type)
	}

	perms, err := svc.Permissions(ctx, "acme", "tower-editors")
	require.NoError(t, err)
	assert.Equal(t, []acl.Permission{{Database: "acme", Project: "tower", Right: acl.AccessReadWrite}}, perms)

	require.NoError(t, h.Authenticate(ctx, storage.Credentials{Database: "acme", Username: "alice", Password: "s3cret"}))
}

type failingRoles struct {
	RoleStore
	roleErr error
	userErr error
}

func (f failingRoles) ProvisionRole(ctx context.Context, database, name string, perms []acl.Permission, inherited []acl.RoleRef) (acl.Role, error) {
	return acl.Role{}, f.roleErr
}

func (f failingRoles) CreateUser(ctx context.Context, database string, user storage.User) error {
	return f.userErr
}

func TestRoleServiceReportsEveryFailure(t *testing.T) {
	boom := errors.New("boom")
	bus := NewEventBus()
	events := make(chan Event, 1)
	bus.Subscribe(events)
	svc := NewRoleService(failingRoles{roleErr: boom, userErr: storage.ErrAuthFailed}, bus)

	defs := &loader.Definitions{
		Roles: []loader.RoleSpec{{Name: "a", Database: "acme"}, {Name: "b", Database: "acme"}},
		Users: []loader.UserSpec{{Database: "acme", User: storage.User{Username: "u", Password: "p"}}},
	}

	result, err := svc.Provision(context.Background(), defs)
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.ErrorIs(t, err, storage.ErrAuthFailed)
	assert.Zero(t, result.Roles)
	assert.Zero(t, result.Users)
	assert.Contains(t, err.Error(), "role acme.b")

	ev := <-events
	assert.Equal(t, EventRolesFailed, ev.Type)
}

func TestRoleServiceProvisionFileMissing(t *testing.T) {
	svc := NewRoleService(failingRoles{}, nil)
	_, err := svc.ProvisionFile(context.Background(), t.TempDir()+"/absent.yaml")
	assert.Error(t, err)
}

func TestEventBusDropsForSlowSubscribers(t *testing.T) {
	bus := NewEventBus()
	full := make(chan Event)
	ok := make(chan Event, 1)
	bus.Subscribe(full)
	bus.Subscribe(ok)

	bus.Publish(Event{Type: EventRevisionCommitted})
	assert.Equal(t, EventRevisionCommitted, (<-ok).Type)

	var nilBus *EventBus
	nilBus.Publish(Event{Type: EventRevisionCommitted})
}
