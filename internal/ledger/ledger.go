package ledger

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/golang/glog"
	"github.com/google/uuid"

	"scenerepo/internal/acl"
	"scenerepo/internal/document"
	"scenerepo/internal/domain"
	"scenerepo/internal/scene"
	"scenerepo/internal/storage"
)

// ErrStaleParent is returned when a commit's parent is not the head of its
// branch
var ErrStaleParent = errors.New("parent is not the branch head")

// DefaultSnapshotCache is the number of revision indexes kept in memory
const DefaultSnapshotCache = 64

// findBatch caps the IDs sent in one find
const findBatch = 500

// Store is the subset of the storage handler the ledger uses
type Store interface {
	Insert(ctx context.Context, database, collection string, doc document.Document) error
	InsertMany(ctx context.Context, database, collection string, docs []document.Document) error
	FindByUniqueIDs(ctx context.Context, database, collection string, ids []uuid.UUID, opts ...storage.FindOption) ([]document.Document, error)
	FindByUniqueID(ctx context.Context, database, collection string, id uuid.UUID) (document.Document, error)
	FindLatestBySharedID(ctx context.Context, database, collection string, shared uuid.UUID, sortField string) (document.Document, error)
}

// Ledger commits and reconstructs revisions
type Ledger struct {
	store   Store
	factory *domain.Factory

	sceneSuffix   string
	historySuffix string
	snapshots     *snapshotCache

	mu    sync.Mutex
	locks map[string]*branchLock
}

// branchLock is dropped from Ledger.locks when its last holder or waiter
// releases it
type branchLock struct {
	sync.Mutex
	refs int
}

// Option configures a Ledger
type Option func(*Ledger)

// WithFactory sets the factory that stamps revisions
func WithFactory(f *domain.Factory) Option {
	return func(l *Ledger) { l.factory = f }
}

// WithSuffixes overrides the node and revision collection suffixes
func WithSuffixes(sceneSuffix, historySuffix string) Option {
	return func(l *Ledger) {
		l.sceneSuffix = sceneSuffix
		l.historySuffix = historySuffix
	}
}

// WithSnapshotCache bounds the snapshot cache. Zero disables it.
func WithSnapshotCache(size int) Option {
	return func(l *Ledger) { l.snapshots = newSnapshotCache(size) }
}

// New creates a ledger over store
func New(store Store, opts ...Option) *Ledger {
	l := &Ledger{
		store:         store,
		factory:       domain.NewFactory(),
		sceneSuffix:   acl.SuffixScene,
		historySuffix: acl.SuffixHistory,
		snapshots:     newSnapshotCache(DefaultSnapshotCache),
		locks:         make(map[string]*branchLock),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// CommitRequest is a working set to commit on a branch
type CommitRequest struct {
	Database string
	Project  string
	Branch   uuid.UUID
	// Parent must be the branch head, or uuid.Nil when the branch has no
	// revisions yet. A non-nil parent on an empty branch forks from it.
	Parent  uuid.UUID
	Author  string
	Message string
	Tag     string
	Nodes   []domain.Node
}

// Suffixes returns the node and revision collection suffixes
func (l *Ledger) Suffixes() (scene, history string) {
	return l.sceneSuffix, l.historySuffix
}

func (l *Ledger) sceneCollection(project string) string {
	return acl.Collection(project, l.sceneSuffix)
}

func (l *Ledger) historyCollection(project string) string {
	return acl.Collection(project, l.historySuffix)
}

// lockBranch serialises commits on one branch within the process
func (l *Ledger) lockBranch(database, project string, branch uuid.UUID) func() {
	key := database + "/" + project + "/" + branch.String()
	l.mu.Lock()
	m, ok := l.locks[key]
	if !ok {
		m = &branchLock{}
		l.locks[key] = m
	}
	m.refs++
	l.mu.Unlock()

	m.Lock()
	return func() {
		m.Unlock()
		l.mu.Lock()
		if m.refs--; m.refs == 0 {
			delete(l.locks, key)
		}
		l.mu.Unlock()
	}
}

func (l *Ledger) lockCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}

// Commit stores the working set as a new revision on req.Branch. Nodes not
// already stored are inserted first; the revision document is inserted last.
func (l *Ledger) Commit(ctx context.Context, req CommitRequest) (*domain.RevisionNode, error) {
	if req.Database == "" || req.Project == "" {
		return nil, errors.New("commit needs a database and a project")
	}
	g, err := scene.Build(req.Nodes)
	if err != nil {
		return nil, fmt.Errorf("invalid working set: %w", err)
	}
	next := g.SharedIndex()

	unlock := l.lockBranch(req.Database, req.Project, req.Branch)
	defer unlock()

	head, err := l.Head(ctx, req.Database, req.Project, req.Branch)
	if err != nil && !isNotFound(err) {
		return nil, err
	}
	if err := checkParent(head, req.Parent); err != nil {
		return nil, err
	}

	prev := map[uuid.UUID]uuid.UUID{}
	var parents []uuid.UUID
	var after time.Time
	if req.Parent != uuid.Nil {
		parent := head
		if parent == nil {
			if parent, err = l.Revision(ctx, req.Database, req.Project, req.Parent); err != nil {
				return nil, fmt.Errorf("failed to load parent revision: %w", err)
			}
		}
		if prev, err = l.index(ctx, req.Database, req.Project, parent); err != nil {
			return nil, err
		}
		parents = []uuid.UUID{parent.UniqueID}
		after = parent.Timestamp
	}

	added, removed, modified := Diff(prev, next)
	verified, err := ApplyDelta(prev, added, removed, modified, pick(next, added, modified))
	if err == nil {
		err = compareIndex(verified, next)
	}
	if err != nil {
		return nil, err
	}

	rev, err := l.factory.Revision(domain.RevisionParams{
		Author:   req.Author,
		Branch:   req.Branch,
		Parents:  parents,
		Message:  req.Message,
		Tag:      req.Tag,
		Current:  sortedValues(next),
		Added:    added,
		Removed:  removed,
		Modified: modified,
		After:    after,
	})
	if err != nil {
		return nil, err
	}
	doc, err := domain.Encode(rev)
	if err != nil {
		return nil, fmt.Errorf("failed to encode revision: %w", err)
	}

	fresh, size, err := l.unstored(ctx, req.Database, req.Project, g)
	if err != nil {
		return nil, err
	}
	if len(fresh) > 0 {
		if err := l.store.InsertMany(ctx, req.Database, l.sceneCollection(req.Project), fresh); err != nil {
			return nil, fmt.Errorf("failed to store nodes: %w", err)
		}
	}
	if err := l.store.Insert(ctx, req.Database, l.historyCollection(req.Project), doc); err != nil {
		if len(fresh) > 0 {
			glog.Warningf("Revision insert failed on %s.%s; %d stored nodes are unreferenced", req.Database, req.Project, len(fresh))
		}
		return nil, fmt.Errorf("failed to store revision: %w", err)
	}

	l.snapshots.put(rev.UniqueID, next)
	glog.Infof("Committed revision %s to %s.%s: %s nodes (%s new, %s), +%d -%d ~%d",
		rev.UniqueID, req.Database, req.Project,
		humanize.Comma(int64(len(next))), humanize.Comma(int64(len(fresh))), humanize.Bytes(uint64(size)),
		len(added), len(removed), len(modified))
	return rev, nil
}

func checkParent(head *domain.RevisionNode, parent uuid.UUID) error {
	if head == nil {
		return nil
	}
	if parent != head.UniqueID {
		return fmt.Errorf("%w: branch %s is at %s, commit names %s", ErrStaleParent, head.Branch(), head.UniqueID, parent)
	}
	return nil
}

// unstored encodes the nodes of g whose unique IDs are not yet stored
func (l *Ledger) unstored(ctx context.Context, database, project string, g *scene.Graph) ([]document.Document, int, error) {
	nodes := g.Nodes()
	ids := make([]uuid.UUID, len(nodes))
	for i, n := range nodes {
		ids[i] = n.Header().UniqueID
	}
	docs, err := l.find(ctx, database, l.sceneCollection(project), ids, storage.Fields(domain.FieldUniqueID))
	if err != nil {
		return nil, 0, fmt.Errorf("failed to check stored nodes: %w", err)
	}
	stored := make(map[uuid.UUID]bool, len(docs))
	for _, d := range docs {
		stored[d.UUID(domain.FieldUniqueID, uuid.Nil)] = true
	}

	var (
		out  []document.Document
		size int
	)
	for _, n := range nodes {
		if stored[n.Header().UniqueID] {
			continue
		}
		doc, err := domain.Encode(n)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to encode node %s: %w", n.Header().SharedID, err)
		}
		size += len(doc.Bytes())
		out = append(out, doc)
	}
	return out, size, nil
}

// find looks up ids in batches
func (l *Ledger) find(ctx context.Context, database, collection string, ids []uuid.UUID, opts ...storage.FindOption) ([]document.Document, error) {
	var out []document.Document
	for chunk := range slices.Chunk(ids, findBatch) {
		docs, err := l.store.FindByUniqueIDs(ctx, database, collection, chunk, opts...)
		if err != nil {
			return nil, err
		}
		out = append(out, docs...)
	}
	return out, nil
}

// index resolves rev's current set to a shared → unique map
func (l *Ledger) index(ctx context.Context, database, project string, rev *domain.RevisionNode) (map[uuid.UUID]uuid.UUID, error) {
	if idx, ok := l.snapshots.get(rev.UniqueID); ok {
		return idx, nil
	}
	idx, err := l.resolve(ctx, database, project, rev.UniqueID, rev.Current)
	if err != nil {
		return nil, err
	}
	l.snapshots.put(rev.UniqueID, idx)
	return idx, nil
}

// resolve maps unique IDs to their shared IDs. Every ID must be stored and
// no two may share a shared ID.
func (l *Ledger) resolve(ctx context.Context, database, project string, revision uuid.UUID, ids []uuid.UUID) (map[uuid.UUID]uuid.UUID, error) {
	docs, err := l.find(ctx, database, l.sceneCollection(project), ids,
		storage.Fields(domain.FieldUniqueID, domain.FieldSharedID))
	if err != nil {
		return nil, fmt.Errorf("failed to resolve nodes of revision %s: %w", revision, err)
	}

	idx := make(map[uuid.UUID]uuid.UUID, len(docs))
	found := make(map[uuid.UUID]bool, len(docs))
	for _, d := range docs {
		unique := d.UUID(domain.FieldUniqueID, uuid.Nil)
		shared := d.UUID(domain.FieldSharedID, uuid.Nil)
		if _, dup := idx[shared]; dup {
			return nil, &domain.LedgerConsistencyError{
				Revision:   revision,
				Unexpected: []uuid.UUID{shared},
				Reason:     "shared id appears twice in current set",
			}
		}
		idx[shared] = unique
		found[unique] = true
	}
	var missing []uuid.UUID
	for _, id := range ids {
		if !found[id] {
			missing = append(missing, id)
		}
	}
	if len(missing) > 0 {
		return nil, &domain.LedgerConsistencyError{
			Revision: revision,
			Missing:  missing,
			Reason:   "current set references unstored nodes",
		}
	}
	return idx, nil
}

// pick returns the entries of idx named by the given shared ID lists
func pick(idx map[uuid.UUID]uuid.UUID, lists ...[]uuid.UUID) map[uuid.UUID]uuid.UUID {
	out := make(map[uuid.UUID]uuid.UUID)
	for _, list := range lists {
		for _, s := range list {
			if u, ok := idx[s]; ok {
				out[s] = u
			}
		}
	}
	return out
}

func sortedValues(idx map[uuid.UUID]uuid.UUID) []uuid.UUID {
	out := make([]uuid.UUID, 0, len(idx))
	for _, u := range idx {
		out = append(out, u)
	}
	sortIDs(out)
	return out
}

func sortIDs(ids []uuid.UUID) {
	slices.SortFunc(ids, func(a, b uuid.UUID) int {
		return bytes.Compare(a[:], b[:])
	})
}
