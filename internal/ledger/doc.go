// Package ledger records scene history as a chain of revisions.
//
// A revision stores the full set of node unique IDs current at that point
// plus deltas against its primary parent, as shared IDs:
//
//   - added: present now, absent from the parent
//   - removed: present in the parent, absent now
//   - modified: present in both but resolved to a different unique ID
//
// Nodes are written to <project>.scene before the revision is written to
// <project>.history. The revision insert is the commit point; a failure
// before it leaves unreferenced node documents and no commit.
//
// A graph can be rebuilt two ways. Checkout loads every node the revision
// lists as current. Replay starts from the nearest cached snapshot (or the
// root) and applies deltas forward, checking at each step that the result
// matches the stored current set. Both yield the same graph.
package ledger
