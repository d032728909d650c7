package scene

import (
	"crypto/sha256"
	"fmt"

	"github.com/google/uuid"

	"scenerepo/internal/document"
	"scenerepo/internal/domain"
)

// View is the flattened node/edge form of a graph served to viewers
type View struct {
	Nodes []ViewNode `json:"nodes"`
	Edges []ViewEdge `json:"edges"`
}

// ViewNode represents a node in the view
type ViewNode struct {
	ID       string `json:"id"`
	UniqueID string `json:"unique_id"`
	Label    string `json:"label"`
	Group    string `json:"group"` // node type
	Title    string `json:"title"` // tooltip content
}

// ViewEdge links a parent to a child
type ViewEdge struct {
	ID   string `json:"id"`
	From string `json:"from"`
	To   string `json:"to"`
}

// View derives the node/edge listing, ordered by shared ID
func (g *Graph) View() *View {
	v := &View{
		Nodes: make([]ViewNode, 0, len(g.nodes)),
		Edges: make([]ViewEdge, 0),
	}
	for _, id := range g.sortedIDs() {
		n := g.nodes[id]
		h := n.Header()
		v.Nodes = append(v.Nodes, ViewNode{
			ID:       id.String(),
			UniqueID: h.UniqueID.String(),
			Label:    label(n),
			Group:    string(n.Type()),
			Title:    tooltip(n),
		})
		for _, c := range g.children[id] {
			v.Edges = append(v.Edges, ViewEdge{
				ID:   edgeID(id, c),
				From: id.String(),
				To:   c.String(),
			})
		}
	}
	return v
}

// edgeID is deterministic for a parent/child pair
func edgeID(parent, child uuid.UUID) string {
	hash := sha256.Sum256(append(parent[:], child[:]...))
	return fmt.Sprintf("%x", hash[:8])
}

func label(n domain.Node) string {
	if name := n.Header().Name; name != "" {
		return name
	}
	return string(n.Type())
}

func tooltip(n domain.Node) string {
	tip := fmt.Sprintf("%s\n%s", n.Type(), n.Header().SharedID)
	switch v := n.(type) {
	case *domain.MeshNode:
		tip += fmt.Sprintf("\n%d vertices, %d faces", len(v.Vertices), len(v.Faces))
	case *domain.TextureNode:
		tip += fmt.Sprintf("\n%dx%d %s", v.Width, v.Height, v.Extension)
	case *domain.MetadataNode:
		if v.MimeType != "" {
			tip += "\n" + v.MimeType
		}
	}
	return tip
}

// Tree renders the graph as a nested property tree for diagnostics. Nodes
// with several parents appear under each of them.
func (g *Graph) Tree() *document.Tree {
	roots := document.NewTree()
	for _, r := range g.roots {
		roots.AddTree("", g.subtree(r))
	}
	return document.NewTree().
		Add("nodes", g.Len()).
		AddTree("roots", roots)
}

func (g *Graph) subtree(id uuid.UUID) *document.Tree {
	n := g.nodes[id]
	h := n.Header()
	t := document.NewTree().
		Add("type", string(n.Type())).
		Add("shared_id", id.String()).
		Add("unique_id", h.UniqueID.String())
	if h.Name != "" {
		t.Add("name", h.Name)
	}
	if kids := g.children[id]; len(kids) > 0 {
		children := document.NewTree()
		for _, c := range kids {
			children.AddTree("", g.subtree(c))
		}
		t.AddTree("children", children)
	}
	return t
}
