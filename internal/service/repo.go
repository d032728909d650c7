package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"scenerepo/internal/domain"
	"scenerepo/internal/ledger"
	"scenerepo/internal/scene"
	"scenerepo/internal/storage"
)

// DefaultHistoryLimit caps History when no limit is given
const DefaultHistoryLimit = 50

// RevisionSummary is the listing form of a revision
type RevisionSummary struct {
	ID        string    `json:"id"`
	Branch    string    `json:"branch"`
	Parents   []string  `json:"parents"`
	Author    string    `json:"author"`
	Message   string    `json:"message,omitempty"`
	Tag       string    `json:"tag,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	Nodes     int       `json:"nodes"`
	Added     int       `json:"added"`
	Removed   int       `json:"removed"`
	Modified  int       `json:"modified"`
}

// Summarize converts a revision to its listing form
func Summarize(rev *domain.RevisionNode) RevisionSummary {
	parents := make([]string, len(rev.Parents))
	for i, p := range rev.Parents {
		parents[i] = p.String()
	}
	return RevisionSummary{
		ID:        rev.UniqueID.String(),
		Branch:    BranchName(rev.Branch()),
		Parents:   parents,
		Author:    rev.Author,
		Message:   rev.Message,
		Tag:       rev.Tag,
		Timestamp: rev.Timestamp,
		Nodes:     len(rev.Current),
		Added:     len(rev.Added),
		Removed:   len(rev.Removed),
		Modified:  len(rev.Modified),
	}
}

// BranchName renders a branch ID, naming the master branch
func BranchName(id uuid.UUID) string {
	if id == domain.MasterBranch {
		return "master"
	}
	return id.String()
}

// ParseBranch accepts "master" or a UUID
func ParseBranch(s string) (uuid.UUID, error) {
	if s == "" || strings.EqualFold(s, "master") {
		return domain.MasterBranch, nil
	}
	id, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid branch %q: %w", s, err)
	}
	return id, nil
}

// RepoService provides repository browsing and versioning operations
type RepoService struct {
	store    *storage.Handler
	ledger   *ledger.Ledger
	eventBus *EventBus
}

// NewRepoService creates a new repository service
func NewRepoService(store *storage.Handler, l *ledger.Ledger, eventBus *EventBus) *RepoService {
	return &RepoService{
		store:    store,
		ledger:   l,
		eventBus: eventBus,
	}
}

// ListDatabases returns every database, sorted without regard to case
func (s *RepoService) ListDatabases(ctx context.Context) ([]string, error) {
	return s.store.ListDatabases(ctx, true)
}

// ListProjects returns the projects of database that have a history
func (s *RepoService) ListProjects(ctx context.Context, database string) ([]string, error) {
	if database == "" {
		return nil, fmt.Errorf("database required")
	}
	_, history := s.ledger.Suffixes()
	return s.store.ListProjects(ctx, database, history)
}

// Catalog maps every database to its projects
func (s *RepoService) Catalog(ctx context.Context) (map[string][]string, error) {
	dbs, err := s.ListDatabases(ctx)
	if err != nil {
		return nil, err
	}
	_, history := s.ledger.Suffixes()
	return s.store.DatabasesWithProjects(ctx, dbs, history)
}

// Commit records a working scene as a new revision
func (s *RepoService) Commit(ctx context.Context, req ledger.CommitRequest) (*domain.RevisionNode, error) {
	if err := s.validateCommit(req); err != nil {
		return nil, err
	}

	rev, err := s.ledger.Commit(ctx, req)
	if err != nil {
		return nil, err
	}

	s.eventBus.Publish(Event{
		Type: EventRevisionCommitted,
		Payload: CommittedPayload{
			Database: req.Database,
			Project:  req.Project,
			Branch:   BranchName(rev.Branch()),
			Revision: rev.UniqueID.String(),
			Author:   rev.Author,
			Added:    len(rev.Added),
			Removed:  len(rev.Removed),
			Modified: len(rev.Modified),
		},
	})

	return rev, nil
}

// Head returns the newest revision of branch
func (s *RepoService) Head(ctx context.Context, database, project string, branch uuid.UUID) (*domain.RevisionNode, error) {
	return s.ledger.Head(ctx, database, project, branch)
}

// History lists revisions of branch newest first. A limit of zero or less
// uses DefaultHistoryLimit.
func (s *RepoService) History(ctx context.Context, database, project string, branch uuid.UUID, limit int) ([]RevisionSummary, error) {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	revs, err := s.ledger.History(ctx, database, project, branch, limit)
	if err != nil {
		return nil, err
	}
	out := make([]RevisionSummary, len(revs))
	for i, rev := range revs {
		out[i] = Summarize(rev)
	}
	return out, nil
}

// Revision loads one revision
func (s *RepoService) Revision(ctx context.Context, database, project string, id uuid.UUID) (*domain.RevisionNode, error) {
	return s.ledger.Revision(ctx, database, project, id)
}

// Scene rebuilds the scene of revision id. With verify set the scene is
// reconstructed by replaying deltas, checking each revision on the way.
func (s *RepoService) Scene(ctx context.Context, database, project string, id uuid.UUID, verify bool) (*scene.Graph, error) {
	if verify {
		return s.ledger.Replay(ctx, database, project, id)
	}
	return s.ledger.Checkout(ctx, database, project, id)
}

// Current rebuilds the scene at the head of branch
func (s *RepoService) Current(ctx context.Context, database, project string, branch uuid.UUID) (*domain.RevisionNode, *scene.Graph, error) {
	return s.ledger.Current(ctx, database, project, branch)
}

// Validation helpers

func (s *RepoService) validateCommit(req ledger.CommitRequest) error {
	if req.Database == "" {
		return fmt.Errorf("database required")
	}
	if req.Project == "" {
		return fmt.Errorf("project required")
	}
	if strings.Contains(req.Project, ".") {
		return fmt.Errorf("project %q must not contain '.'", req.Project)
	}
	if req.Author == "" {
		return fmt.Errorf("author required")
	}
	return nil
}
