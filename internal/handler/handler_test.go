package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"cogentcore.org/core/math32"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"scenerepo/internal/domain"
	"scenerepo/internal/ledger"
	"scenerepo/internal/scene"
	"scenerepo/internal/service"
	"scenerepo/internal/storage"
	"scenerepo/internal/storage/sqlite"
)

type fixture struct {
	mux  *http.ServeMux
	root *domain.TransformationNode
	mesh *domain.MeshNode
	r1   *domain.RevisionNode
	r2   *domain.RevisionNode
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()

	d, err := sqlite.New(sqlite.Memory)
	require.NoError(t, err)
	store, err := storage.Open(ctx, storage.Config{PoolSize: 2}, d)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	f := domain.NewFactory()
	svc := service.NewRepoService(store, ledger.New(store, ledger.WithFactory(f)), nil)

	root, err := f.Transformation(nil, domain.WithName("root"))
	require.NoError(t, err)
	newMesh := func(x float32, opts ...domain.Option) *domain.MeshNode {
		m, err := f.Mesh(domain.MeshParams{
			Vertices: []math32.Vector3{{X: 0}, {X: x}, {Y: x}},
			Faces:    []domain.Face{{0, 1, 2}},
		}, append([]domain.Option{domain.WithParents(root.SharedID)}, opts...)...)
		require.NoError(t, err)
		return m
	}

	m1 := newMesh(1, domain.WithName("slab"))
	r1, err := svc.Commit(ctx, ledger.CommitRequest{
		Database: "acme", Project: "tower", Author: "alice",
		Nodes: []domain.Node{root, m1},
	})
	require.NoError(t, err)

	m2 := newMesh(2, domain.WithName("slab"), domain.WithSharedID(m1.SharedID))
	r2, err := svc.Commit(ctx, ledger.CommitRequest{
		Database: "acme", Project: "tower", Author: "bob", Parent: r1.UniqueID, Message: "thicker slab",
		Nodes: []domain.Node{root, m2},
	})
	require.NoError(t, err)

	mux := http.NewServeMux()
	NewRepoHandler(svc).Register(mux)
	return &fixture{mux: mux, root: root, mesh: m2, r1: r1, r2: r2}
}

func (fx *fixture) get(t *testing.T, path string, out any) int {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	fx.mux.ServeHTTP(rec, req)
	if out != nil {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), out), rec.Body.String())
	}
	return rec.Code
}

func TestListDatabasesAndProjects(t *testing.T) {
	fx := newFixture(t)

	var dbs []string
	assert.Equal(t, http.StatusOK, fx.get(t, "/api/databases", &dbs))
	assert.Contains(t, dbs, "acme")

	var catalog map[string][]string
	assert.Equal(t, http.StatusOK, fx.get(t, "/api/databases?projects=true", &catalog))
	assert.Equal(t, []string{"tower"}, catalog["acme"])

	var projects []string
	assert.Equal(t, http.StatusOK, fx.get(t, "/api/databases/acme/projects", &projects))
	assert.Equal(t, []string{"tower"}, projects)

	projects = nil
	assert.Equal(t, http.StatusOK, fx.get(t, "/api/databases/empty/projects", &projects))
	assert.Empty(t, projects)
}

func TestBranchRoutes(t *testing.T) {
	fx := newFixture(t)

	var head service.RevisionSummary
	assert.Equal(t, http.StatusOK, fx.get(t, "/api/acme/tower/branches/master/head", &head))
	assert.Equal(t, fx.r2.UniqueID.String(), head.ID)
	assert.Equal(t, "master", head.Branch)
	assert.Equal(t, 1, head.Modified)

	var history []service.RevisionSummary
	assert.Equal(t, http.StatusOK, fx.get(t, "/api/acme/tower/branches/master/history", &history))
	require.Len(t, history, 2)
	assert.Equal(t, "thicker slab", history[0].Message)

	history = nil
	assert.Equal(t, http.StatusOK, fx.get(t, "/api/acme/tower/branches/master/history?limit=1", &history))
	assert.Len(t, history, 1)

	var resp struct {
		Revision service.RevisionSummary `json:"revision"`
		Scene    scene.View              `json:"scene"`
	}
	assert.Equal(t, http.StatusOK, fx.get(t, "/api/acme/tower/branches/master/scene", &resp))
	assert.Equal(t, fx.r2.UniqueID.String(), resp.Revision.ID)
	require.Len(t, resp.Scene.Nodes, 2)
	require.Len(t, resp.Scene.Edges, 1)
	assert.Equal(t, fx.root.SharedID.String(), resp.Scene.Edges[0].From)
	assert.Equal(t, fx.mesh.SharedID.String(), resp.Scene.Edges[0].To)

	var errResp ErrorResponse
	assert.Equal(t, http.StatusBadRequest, fx.get(t, "/api/acme/tower/branches/feature/head", &errResp))
	assert.Equal(t, "Invalid branch", errResp.Error)

	assert.Equal(t, http.StatusBadRequest, fx.get(t, "/api/acme/tower/branches/master/history?limit=x", &errResp))

	other := uuid.New().String()
	assert.Equal(t, http.StatusNotFound, fx.get(t, "/api/acme/tower/branches/"+other+"/head", &errResp))
}

func TestRevisionRoutes(t *testing.T) {
	fx := newFixture(t)
	base := "/api/acme/tower/revisions/" + fx.r1.UniqueID.String()

	var rev service.RevisionSummary
	assert.Equal(t, http.StatusOK, fx.get(t, base, &rev))
	assert.Equal(t, "alice", rev.Author)
	assert.Equal(t, 2, rev.Added)
	assert.Empty(t, rev.Parents)

	for _, verify := range []string{"false", "true"} {
		var resp struct {
			Scene scene.View `json:"scene"`
		}
		assert.Equal(t, http.StatusOK, fx.get(t, base+"/scene?verify="+verify, &resp))
		require.Len(t, resp.Scene.Nodes, 2)
		for _, n := range resp.Scene.Nodes {
			assert.NotEqual(t, fx.mesh.UniqueID.String(), n.UniqueID, "R1 must not contain the R2 mesh")
		}
	}

	var tree map[string]any
	assert.Equal(t, http.StatusOK, fx.get(t, base+"/scene?format=tree", &tree))
	sceneTree, ok := tree["scene"].(map[string]any)
	require.True(t, ok)
	assert.EqualValues(t, 2, sceneTree["nodes"])

	var errResp ErrorResponse
	assert.Equal(t, http.StatusBadRequest, fx.get(t, base+"/scene?format=xml", &errResp))
	assert.Equal(t, http.StatusBadRequest, fx.get(t, "/api/acme/tower/revisions/nope", &errResp))
	assert.Equal(t, http.StatusNotFound, fx.get(t, "/api/acme/tower/revisions/"+uuid.New().String(), &errResp))
}

func TestRoleRouteWithoutService(t *testing.T) {
	fx := newFixture(t)
	var errResp ErrorResponse
	assert.Equal(t, http.StatusServiceUnavailable, fx.get(t, "/api/databases/acme/roles/editors", &errResp))
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{storage.NotFound("revision"), http.StatusNotFound},
		{&storage.Error{Op: "find", Err: storage.Classify(storage.ErrConnection, errors.New("reset"))}, http.StatusServiceUnavailable},
		{&storage.Error{Op: "list databases", Err: context.DeadlineExceeded}, http.StatusServiceUnavailable},
		{storage.ErrAuthFailed, http.StatusForbidden},
		{ledger.ErrStaleParent, http.StatusConflict},
		{&domain.LedgerConsistencyError{Reason: "corrupt"}, http.StatusInternalServerError},
		{errors.New("other"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, statusFor(tt.err), tt.err.Error())
	}
}

func TestMiddleware(t *testing.T) {
	panicky := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	})
	h := Chain(panicky, Recover, CORS, Logger)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodOptions, "/", nil))
	assert.Equal(t, http.StatusNoContent, rec.Code)
}
