package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/golang/glog"
	"github.com/google/uuid"

	"scenerepo/internal/document"
	"scenerepo/internal/domain"
	"scenerepo/internal/scene"
	"scenerepo/internal/storage"
)

// Revision loads one revision. It fails with storage.ErrNotFound if there
// is none.
func (l *Ledger) Revision(ctx context.Context, database, project string, id uuid.UUID) (*domain.RevisionNode, error) {
	doc, err := l.store.FindByUniqueID(ctx, database, l.historyCollection(project), id)
	if err != nil {
		return nil, err
	}
	return asRevision(doc)
}

// Head returns the latest revision on branch by timestamp. It fails with
// storage.ErrNotFound if the branch has no revisions.
func (l *Ledger) Head(ctx context.Context, database, project string, branch uuid.UUID) (*domain.RevisionNode, error) {
	doc, err := l.store.FindLatestBySharedID(ctx, database, l.historyCollection(project), branch, domain.FieldTimestamp)
	if err != nil {
		return nil, err
	}
	return asRevision(doc)
}

func asRevision(doc document.Document) (*domain.RevisionNode, error) {
	rev, ok := domain.DecodeNode(doc).(*domain.RevisionNode)
	if !ok {
		return nil, fmt.Errorf("document %s is not a revision", doc.UUID(domain.FieldUniqueID, uuid.Nil))
	}
	return rev, nil
}

// History walks primary parent links back from the head of branch, newest
// first. A positive limit caps the number of revisions returned.
func (l *Ledger) History(ctx context.Context, database, project string, branch uuid.UUID, limit int) ([]*domain.RevisionNode, error) {
	rev, err := l.Head(ctx, database, project, branch)
	if err != nil {
		return nil, err
	}
	var out []*domain.RevisionNode
	for {
		out = append(out, rev)
		if limit > 0 && len(out) >= limit {
			return out, nil
		}
		parent, ok := rev.PrimaryParent()
		if !ok {
			return out, nil
		}
		if rev, err = l.Revision(ctx, database, project, parent); err != nil {
			return nil, fmt.Errorf("failed to load parent of %s: %w", out[len(out)-1].UniqueID, err)
		}
	}
}

// Current checks out the head of branch
func (l *Ledger) Current(ctx context.Context, database, project string, branch uuid.UUID) (*domain.RevisionNode, *scene.Graph, error) {
	head, err := l.Head(ctx, database, project, branch)
	if err != nil {
		return nil, nil, err
	}
	g, err := l.checkout(ctx, database, project, head)
	if err != nil {
		return nil, nil, err
	}
	return head, g, nil
}

// Checkout rebuilds the scene as of revision id by loading every node in
// its current set
func (l *Ledger) Checkout(ctx context.Context, database, project string, id uuid.UUID) (*scene.Graph, error) {
	rev, err := l.Revision(ctx, database, project, id)
	if err != nil {
		return nil, err
	}
	return l.checkout(ctx, database, project, rev)
}

func (l *Ledger) checkout(ctx context.Context, database, project string, rev *domain.RevisionNode) (*scene.Graph, error) {
	g, err := l.load(ctx, database, project, rev.UniqueID, rev.Current)
	if err != nil {
		return nil, err
	}
	glog.V(1).Infof("Checked out revision %s: %d nodes", rev.UniqueID, g.Len())
	return g, nil
}

// load fetches the nodes ids and builds their graph
func (l *Ledger) load(ctx context.Context, database, project string, revision uuid.UUID, ids []uuid.UUID) (*scene.Graph, error) {
	docs, err := l.find(ctx, database, l.sceneCollection(project), ids)
	if err != nil {
		return nil, fmt.Errorf("failed to load nodes of revision %s: %w", revision, err)
	}
	if len(docs) != len(ids) {
		found := make(map[uuid.UUID]bool, len(docs))
		for _, d := range docs {
			found[d.UUID(domain.FieldUniqueID, uuid.Nil)] = true
		}
		var missing []uuid.UUID
		for _, id := range ids {
			if !found[id] {
				missing = append(missing, id)
			}
		}
		return nil, &domain.LedgerConsistencyError{
			Revision: revision,
			Missing:  missing,
			Reason:   "current set references unstored nodes",
		}
	}
	g, err := scene.Build(domain.DecodeNodes(docs))
	if err != nil {
		return nil, fmt.Errorf("revision %s: %w", revision, err)
	}
	return g, nil
}

// Replay rebuilds the scene as of revision id from deltas. It walks back to
// the nearest cached snapshot or the root, then applies each revision's
// deltas forward, verifying every step against the stored current set.
func (l *Ledger) Replay(ctx context.Context, database, project string, id uuid.UUID) (*scene.Graph, error) {
	target, err := l.Revision(ctx, database, project, id)
	if err != nil {
		return nil, err
	}

	var (
		chain []*domain.RevisionNode
		base  map[uuid.UUID]uuid.UUID
	)
	for rev := target; ; {
		if idx, ok := l.snapshots.get(rev.UniqueID); ok {
			base = idx
			break
		}
		chain = append(chain, rev)
		parent, ok := rev.PrimaryParent()
		if !ok {
			base = map[uuid.UUID]uuid.UUID{}
			break
		}
		if rev, err = l.Revision(ctx, database, project, parent); err != nil {
			return nil, fmt.Errorf("failed to load parent of %s: %w", chain[len(chain)-1].UniqueID, err)
		}
	}

	for i := len(chain) - 1; i >= 0; i-- {
		rev := chain[i]
		if base, err = l.step(ctx, database, project, base, rev); err != nil {
			return nil, err
		}
		l.snapshots.put(rev.UniqueID, base)
	}
	glog.V(1).Infof("Replayed %d revisions to %s", len(chain), target.UniqueID)

	return l.load(ctx, database, project, target.UniqueID, sortedValues(base))
}

// step applies rev's deltas to base. Only the nodes rev introduces are
// looked up.
func (l *Ledger) step(ctx context.Context, database, project string, base map[uuid.UUID]uuid.UUID, rev *domain.RevisionNode) (map[uuid.UUID]uuid.UUID, error) {
	known := make(map[uuid.UUID]bool, len(base))
	for _, u := range base {
		known[u] = true
	}
	var introduced []uuid.UUID
	for _, u := range rev.Current {
		if !known[u] {
			introduced = append(introduced, u)
		}
	}

	changed, err := l.resolve(ctx, database, project, rev.UniqueID, introduced)
	if err != nil {
		return nil, err
	}
	next, err := ApplyDelta(base, rev.Added, rev.Removed, rev.Modified, changed)
	if err == nil {
		err = compareIndex(indexUniques(next), uniqueSet(rev.Current))
	}
	if err != nil {
		var lerr *domain.LedgerConsistencyError
		if errors.As(err, &lerr) {
			lerr.Revision = rev.UniqueID
		}
		return nil, err
	}
	return next, nil
}

// indexUniques and uniqueSet let compareIndex check unique ID sets
func indexUniques(idx map[uuid.UUID]uuid.UUID) map[uuid.UUID]uuid.UUID {
	out := make(map[uuid.UUID]uuid.UUID, len(idx))
	for _, u := range idx {
		out[u] = u
	}
	return out
}

func uniqueSet(ids []uuid.UUID) map[uuid.UUID]uuid.UUID {
	out := make(map[uuid.UUID]uuid.UUID, len(ids))
	for _, u := range ids {
		out[u] = u
	}
	return out
}

// isNotFound reports whether err means the revision or branch is absent
func isNotFound(err error) bool {
	return errors.Is(err, storage.ErrNotFound)
}
