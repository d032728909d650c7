package ledger

import (
	"github.com/google/uuid"

	"scenerepo/internal/domain"
)

// Diff computes the deltas taking prev to next. Both map shared IDs to
// unique IDs. Results are sorted.
func Diff(prev, next map[uuid.UUID]uuid.UUID) (added, removed, modified []uuid.UUID) {
	for s, u := range next {
		old, ok := prev[s]
		switch {
		case !ok:
			added = append(added, s)
		case old != u:
			modified = append(modified, s)
		}
	}
	for s := range prev {
		if _, ok := next[s]; !ok {
			removed = append(removed, s)
		}
	}
	sortIDs(added)
	sortIDs(removed)
	sortIDs(modified)
	return added, removed, modified
}

// ApplyDelta applies removed, modified and added to parent and returns the
// resulting shared → unique map. changed supplies the unique IDs of the
// added and modified shared IDs, and nothing else. parent is not modified.
//
// It fails with a LedgerConsistencyError when a delta contradicts parent:
// removing or modifying an absent node, adding a present one, a modified
// node keeping its unique ID, or changed not matching the deltas.
func ApplyDelta(parent map[uuid.UUID]uuid.UUID, added, removed, modified []uuid.UUID, changed map[uuid.UUID]uuid.UUID) (map[uuid.UUID]uuid.UUID, error) {
	next := make(map[uuid.UUID]uuid.UUID, len(parent)+len(added))
	for s, u := range parent {
		next[s] = u
	}

	var missing, unexpected []uuid.UUID
	explained := make(map[uuid.UUID]bool, len(added)+len(modified))

	for _, s := range removed {
		if _, ok := next[s]; !ok {
			missing = append(missing, s)
			continue
		}
		delete(next, s)
	}
	for _, s := range modified {
		explained[s] = true
		old, inParent := parent[s]
		u, ok := changed[s]
		switch {
		case !inParent || !ok:
			missing = append(missing, s)
		case u == old:
			unexpected = append(unexpected, s)
		default:
			next[s] = u
		}
	}
	for _, s := range added {
		explained[s] = true
		if _, inParent := parent[s]; inParent {
			unexpected = append(unexpected, s)
			continue
		}
		u, ok := changed[s]
		if !ok {
			missing = append(missing, s)
			continue
		}
		next[s] = u
	}
	for s := range changed {
		if !explained[s] {
			unexpected = append(unexpected, s)
		}
	}

	if len(missing) > 0 || len(unexpected) > 0 {
		sortIDs(missing)
		sortIDs(unexpected)
		return nil, &domain.LedgerConsistencyError{
			Missing:    missing,
			Unexpected: unexpected,
			Reason:     "deltas do not apply to parent",
		}
	}
	return next, nil
}

// compareIndex checks that got and want map the same shared IDs to the same
// unique IDs
func compareIndex(got, want map[uuid.UUID]uuid.UUID) error {
	var missing, unexpected []uuid.UUID
	for s, u := range want {
		if g, ok := got[s]; !ok || g != u {
			missing = append(missing, s)
		}
	}
	for s, u := range got {
		if w, ok := want[s]; !ok || w != u {
			unexpected = append(unexpected, s)
		}
	}
	if len(missing) == 0 && len(unexpected) == 0 {
		return nil
	}
	sortIDs(missing)
	sortIDs(unexpected)
	return &domain.LedgerConsistencyError{
		Missing:    missing,
		Unexpected: unexpected,
		Reason:     "replayed set differs from stored current set",
	}
}
