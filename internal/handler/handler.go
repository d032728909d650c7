package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/golang/glog"
	"github.com/google/uuid"

	"scenerepo/internal/domain"
	"scenerepo/internal/ledger"
	"scenerepo/internal/scene"
	"scenerepo/internal/service"
	"scenerepo/internal/storage"
)

// RepoHandler handles repository API requests
type RepoHandler struct {
	svc   *service.RepoService
	roles *service.RoleService
}

// NewRepoHandler creates a new repository handler
func NewRepoHandler(svc *service.RepoService) *RepoHandler {
	return &RepoHandler{svc: svc}
}

// SetRoleService enables the role lookup route
func (h *RepoHandler) SetRoleService(roles *service.RoleService) {
	h.roles = roles
}

// Register adds the API routes to mux
func (h *RepoHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/databases", h.ListDatabases)
	mux.HandleFunc("GET /api/databases/{db}/projects", h.ListProjects)
	mux.HandleFunc("GET /api/databases/{db}/roles/{role}", h.GetRole)

	mux.HandleFunc("GET /api/{db}/{project}/branches/{branch}/head", h.GetHead)
	mux.HandleFunc("GET /api/{db}/{project}/branches/{branch}/history", h.GetHistory)
	mux.HandleFunc("GET /api/{db}/{project}/branches/{branch}/scene", h.GetBranchScene)

	mux.HandleFunc("GET /api/{db}/{project}/revisions/{rev}", h.GetRevision)
	mux.HandleFunc("GET /api/{db}/{project}/revisions/{rev}/scene", h.GetRevisionScene)
}

// ErrorResponse is the body of every failed request
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// SceneResponse pairs a revision with its scene
type SceneResponse struct {
	Revision service.RevisionSummary `json:"revision"`
	Scene    any                     `json:"scene"`
}

// ListDatabases returns all databases, or every database with its projects
func (h *RepoHandler) ListDatabases(w http.ResponseWriter, r *http.Request) {
	if r.URL.Query().Get("projects") == "true" {
		catalog, err := h.svc.Catalog(r.Context())
		if err != nil {
			h.fail(w, "Failed to list projects", err)
			return
		}
		h.writeJSON(w, catalog, http.StatusOK)
		return
	}

	dbs, err := h.svc.ListDatabases(r.Context())
	if err != nil {
		h.fail(w, "Failed to list databases", err)
		return
	}
	h.writeJSON(w, nonNil(dbs), http.StatusOK)
}

// ListProjects returns the projects of a database
func (h *RepoHandler) ListProjects(w http.ResponseWriter, r *http.Request) {
	projects, err := h.svc.ListProjects(r.Context(), r.PathValue("db"))
	if err != nil {
		h.fail(w, "Failed to list projects", err)
		return
	}
	h.writeJSON(w, nonNil(projects), http.StatusOK)
}

// GetRole returns the per-project rights a role grants
func (h *RepoHandler) GetRole(w http.ResponseWriter, r *http.Request) {
	if h.roles == nil {
		h.writeError(w, "Roles not configured", "No role service is registered", http.StatusServiceUnavailable)
		return
	}
	perms, err := h.roles.Permissions(r.Context(), r.PathValue("db"), r.PathValue("role"))
	if err != nil {
		h.fail(w, "Failed to get role", err)
		return
	}
	h.writeJSON(w, perms, http.StatusOK)
}

// GetHead returns the newest revision of a branch
func (h *RepoHandler) GetHead(w http.ResponseWriter, r *http.Request) {
	branch, ok := h.branch(w, r)
	if !ok {
		return
	}
	rev, err := h.svc.Head(r.Context(), r.PathValue("db"), r.PathValue("project"), branch)
	if err != nil {
		h.fail(w, "Failed to get head", err)
		return
	}
	h.writeJSON(w, service.Summarize(rev), http.StatusOK)
}

// GetHistory lists the revisions of a branch newest first
func (h *RepoHandler) GetHistory(w http.ResponseWriter, r *http.Request) {
	branch, ok := h.branch(w, r)
	if !ok {
		return
	}

	limit := 0
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 0 {
			h.writeError(w, "Invalid limit", "limit must be a non-negative integer", http.StatusBadRequest)
			return
		}
		limit = n
	}

	history, err := h.svc.History(r.Context(), r.PathValue("db"), r.PathValue("project"), branch, limit)
	if err != nil {
		h.fail(w, "Failed to get history", err)
		return
	}
	h.writeJSON(w, history, http.StatusOK)
}

// GetBranchScene returns the scene at the head of a branch
func (h *RepoHandler) GetBranchScene(w http.ResponseWriter, r *http.Request) {
	branch, ok := h.branch(w, r)
	if !ok {
		return
	}
	rev, g, err := h.svc.Current(r.Context(), r.PathValue("db"), r.PathValue("project"), branch)
	if err != nil {
		h.fail(w, "Failed to load scene", err)
		return
	}
	h.writeScene(w, r, rev, g)
}

// GetRevision returns one revision
func (h *RepoHandler) GetRevision(w http.ResponseWriter, r *http.Request) {
	id, ok := h.revision(w, r)
	if !ok {
		return
	}
	rev, err := h.svc.Revision(r.Context(), r.PathValue("db"), r.PathValue("project"), id)
	if err != nil {
		h.fail(w, "Failed to get revision", err)
		return
	}
	h.writeJSON(w, service.Summarize(rev), http.StatusOK)
}

// GetRevisionScene returns the scene as of a revision
func (h *RepoHandler) GetRevisionScene(w http.ResponseWriter, r *http.Request) {
	id, ok := h.revision(w, r)
	if !ok {
		return
	}
	db, project := r.PathValue("db"), r.PathValue("project")

	rev, err := h.svc.Revision(r.Context(), db, project, id)
	if err != nil {
		h.fail(w, "Failed to get revision", err)
		return
	}
	verify := r.URL.Query().Get("verify") == "true"
	g, err := h.svc.Scene(r.Context(), db, project, id, verify)
	if err != nil {
		h.fail(w, "Failed to load scene", err)
		return
	}
	h.writeScene(w, r, rev, g)
}

// Helper methods

func (h *RepoHandler) branch(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	branch, err := service.ParseBranch(r.PathValue("branch"))
	if err != nil {
		h.writeError(w, "Invalid branch", err.Error(), http.StatusBadRequest)
		return uuid.Nil, false
	}
	return branch, true
}

func (h *RepoHandler) revision(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(r.PathValue("rev"))
	if err != nil {
		h.writeError(w, "Invalid revision ID", err.Error(), http.StatusBadRequest)
		return uuid.Nil, false
	}
	return id, true
}

func (h *RepoHandler) writeScene(w http.ResponseWriter, r *http.Request, rev *domain.RevisionNode, g *scene.Graph) {
	resp := SceneResponse{Revision: service.Summarize(rev)}
	switch r.URL.Query().Get("format") {
	case "", "view":
		resp.Scene = g.View()
	case "tree":
		resp.Scene = g.Tree()
	default:
		h.writeError(w, "Invalid format", "format must be view or tree", http.StatusBadRequest)
		return
	}
	h.writeJSON(w, resp, http.StatusOK)
}

// fail maps err to a status code and writes it
func (h *RepoHandler) fail(w http.ResponseWriter, msg string, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		glog.Errorf("%s: %v", msg, err)
	}
	h.writeError(w, msg, err.Error(), status)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, storage.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, storage.ErrAuthFailed):
		return http.StatusForbidden
	case errors.Is(err, ledger.ErrStaleParent):
		return http.StatusConflict
	case errors.Is(err, storage.ErrConnection), errors.Is(err, storage.ErrClosed):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		// pool exhausted or the store too slow for the configured timeout
		return http.StatusServiceUnavailable
	case errors.Is(err, domain.ErrValidation):
		return http.StatusBadRequest
	default:
		// includes ledger consistency failures: the stored history is corrupt
		return http.StatusInternalServerError
	}
}

func (h *RepoHandler) writeJSON(w http.ResponseWriter, data any, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		glog.Errorf("Failed to encode JSON: %v", err)
	}
}

func (h *RepoHandler) writeError(w http.ResponseWriter, error, details string, statusCode int) {
	h.writeJSON(w, ErrorResponse{Error: error, Details: details}, statusCode)
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
