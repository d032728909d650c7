// Package scene rehydrates a directed acyclic scene graph from a flat set of
// nodes and offers read-only views over it.
package scene

import (
	"bytes"
	"errors"
	"slices"

	"github.com/google/uuid"

	"scenerepo/internal/domain"
)

// SkipChildren may be returned by a WalkFunc to skip the node's descendants
var SkipChildren = errors.New("skip children")

// WalkFunc is called for each node visited by Walk. depth is 0 for roots.
type WalkFunc func(n domain.Node, depth int) error

// Graph is an immutable scene graph keyed by shared ID
type Graph struct {
	nodes    map[uuid.UUID]domain.Node
	byUnique map[uuid.UUID]domain.Node
	children map[uuid.UUID][]uuid.UUID
	parents  map[uuid.UUID][]uuid.UUID
	roots    []uuid.UUID
}

// Build links nodes to their parents by shared ID. It fails with
// *domain.GraphIntegrityError on a repeated shared ID, a parent reference to
// a node outside the set, a revision node or a cycle. On failure no graph is
// returned.
func Build(nodes []domain.Node) (*Graph, error) {
	g := &Graph{
		nodes:    make(map[uuid.UUID]domain.Node, len(nodes)),
		byUnique: make(map[uuid.UUID]domain.Node, len(nodes)),
		children: make(map[uuid.UUID][]uuid.UUID),
		parents:  make(map[uuid.UUID][]uuid.UUID),
	}

	for _, n := range nodes {
		h := n.Header()
		if n.Type() == domain.NodeTypeRevision {
			return nil, &domain.GraphIntegrityError{SharedID: h.SharedID, Reason: "revision nodes cannot be part of a scene"}
		}
		if _, dup := g.nodes[h.SharedID]; dup {
			return nil, &domain.GraphIntegrityError{SharedID: h.SharedID, Reason: "duplicate shared id"}
		}
		if _, dup := g.byUnique[h.UniqueID]; dup {
			return nil, &domain.GraphIntegrityError{SharedID: h.SharedID, Reason: "duplicate unique id " + h.UniqueID.String()}
		}
		g.nodes[h.SharedID] = n
		g.byUnique[h.UniqueID] = n
	}

	for shared, n := range g.nodes {
		for _, p := range n.Header().Parents {
			if _, ok := g.nodes[p]; !ok {
				return nil, &domain.GraphIntegrityError{SharedID: shared, Reason: "parent " + p.String() + " not in graph"}
			}
			if slices.Contains(g.parents[shared], p) {
				continue
			}
			g.parents[shared] = append(g.parents[shared], p)
			g.children[p] = append(g.children[p], shared)
		}
	}
	g.finish()

	if err := g.checkAcyclic(); err != nil {
		return nil, err
	}
	return g, nil
}

// finish sorts adjacency lists and computes roots
func (g *Graph) finish() {
	for id := range g.children {
		slices.SortFunc(g.children[id], compareIDs)
	}
	for id := range g.parents {
		slices.SortFunc(g.parents[id], compareIDs)
	}
	g.roots = g.roots[:0]
	for id := range g.nodes {
		if len(g.parents[id]) == 0 {
			g.roots = append(g.roots, id)
		}
	}
	slices.SortFunc(g.roots, compareIDs)
}

func (g *Graph) checkAcyclic() error {
	const (
		unvisited = iota
		active
		done
	)
	state := make(map[uuid.UUID]int, len(g.nodes))

	var visit func(id uuid.UUID) error
	visit = func(id uuid.UUID) error {
		state[id] = active
		for _, c := range g.children[id] {
			switch state[c] {
			case active:
				return &domain.GraphIntegrityError{SharedID: c, Reason: "cycle through " + id.String()}
			case unvisited:
				if err := visit(c); err != nil {
					return err
				}
			}
		}
		state[id] = done
		return nil
	}

	for _, id := range g.sortedIDs() {
		if state[id] == unvisited {
			if err := visit(id); err != nil {
				return err
			}
		}
	}
	return nil
}

func (g *Graph) sortedIDs() []uuid.UUID {
	ids := make([]uuid.UUID, 0, len(g.nodes))
	for id := range g.nodes {
		ids = append(ids, id)
	}
	slices.SortFunc(ids, compareIDs)
	return ids
}

func compareIDs(a, b uuid.UUID) int {
	return bytes.Compare(a[:], b[:])
}

// Len returns the number of nodes
func (g *Graph) Len() int {
	return len(g.nodes)
}

// Node returns the node with the given shared ID
func (g *Graph) Node(shared uuid.UUID) (domain.Node, bool) {
	n, ok := g.nodes[shared]
	return n, ok
}

// ByUniqueID returns the node with the given unique ID
func (g *Graph) ByUniqueID(unique uuid.UUID) (domain.Node, bool) {
	n, ok := g.byUnique[unique]
	return n, ok
}

// Nodes returns every node ordered by shared ID
func (g *Graph) Nodes() []domain.Node {
	return g.lookup(g.sortedIDs())
}

// Roots returns the nodes without parents, ordered by shared ID
func (g *Graph) Roots() []domain.Node {
	return g.lookup(g.roots)
}

// Children returns the children of shared, ordered by shared ID
func (g *Graph) Children(shared uuid.UUID) []domain.Node {
	return g.lookup(g.children[shared])
}

// Parents returns the in-graph parents of shared, ordered by shared ID
func (g *Graph) Parents(shared uuid.UUID) []domain.Node {
	return g.lookup(g.parents[shared])
}

func (g *Graph) lookup(ids []uuid.UUID) []domain.Node {
	if len(ids) == 0 {
		return nil
	}
	out := make([]domain.Node, len(ids))
	for i, id := range ids {
		out[i] = g.nodes[id]
	}
	return out
}

// SharedIndex maps every shared ID to the unique ID of its node
func (g *Graph) SharedIndex() map[uuid.UUID]uuid.UUID {
	idx := make(map[uuid.UUID]uuid.UUID, len(g.nodes))
	for shared, n := range g.nodes {
		idx[shared] = n.Header().UniqueID
	}
	return idx
}

// Walk visits every node once, depth first from the roots, children in
// shared ID order. A node with several parents is visited under the first
// parent that reaches it.
func (g *Graph) Walk(fn WalkFunc) error {
	seen := make(map[uuid.UUID]bool, len(g.nodes))
	for _, r := range g.roots {
		if err := g.walk(r, 0, seen, fn); err != nil {
			return err
		}
	}
	return nil
}

func (g *Graph) walk(id uuid.UUID, depth int, seen map[uuid.UUID]bool, fn WalkFunc) error {
	if seen[id] {
		return nil
	}
	seen[id] = true
	if err := fn(g.nodes[id], depth); err != nil {
		if errors.Is(err, SkipChildren) {
			return nil
		}
		return err
	}
	for _, c := range g.children[id] {
		if err := g.walk(c, depth+1, seen, fn); err != nil {
			return err
		}
	}
	return nil
}

// Subtree returns the graph made of shared and all its descendants. Links
// to parents outside the subtree are dropped, so shared becomes a root.
func (g *Graph) Subtree(shared uuid.UUID) (*Graph, bool) {
	if _, ok := g.nodes[shared]; !ok {
		return nil, false
	}
	keep := map[uuid.UUID]bool{shared: true}
	stack := []uuid.UUID{shared}
	for len(stack) > 0 {
		id := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		for _, c := range g.children[id] {
			if !keep[c] {
				keep[c] = true
				stack = append(stack, c)
			}
		}
	}

	sub := &Graph{
		nodes:    make(map[uuid.UUID]domain.Node, len(keep)),
		byUnique: make(map[uuid.UUID]domain.Node, len(keep)),
		children: make(map[uuid.UUID][]uuid.UUID),
		parents:  make(map[uuid.UUID][]uuid.UUID),
	}
	for id := range keep {
		n := g.nodes[id]
		sub.nodes[id] = n
		sub.byUnique[n.Header().UniqueID] = n
		for _, p := range g.parents[id] {
			if keep[p] {
				sub.parents[id] = append(sub.parents[id], p)
				sub.children[p] = append(sub.children[p], id)
			}
		}
	}
	sub.finish()
	return sub, true
}
