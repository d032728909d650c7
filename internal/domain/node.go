package domain

import (
	"slices"

	"github.com/google/uuid"

	"scenerepo/internal/document"
)

// NodeType is the type tag stored in a node document
type NodeType string

const (
	NodeTypeTransformation NodeType = "transformation"
	NodeTypeMesh           NodeType = "mesh"
	NodeTypeMaterial       NodeType = "material"
	NodeTypeCamera         NodeType = "camera"
	NodeTypeMetadata       NodeType = "meta"
	NodeTypeTexture        NodeType = "texture"
	NodeTypeRevision       NodeType = "revision"
)

// APILevel is the node shape version written by this package
const APILevel = 1

// MasterBranch is the well-known shared ID of the default branch
var MasterBranch = uuid.Nil

// Known reports whether t is one of the recognised variants
func (t NodeType) Known() bool {
	switch t {
	case NodeTypeTransformation, NodeTypeMesh, NodeTypeMaterial, NodeTypeCamera,
		NodeTypeMetadata, NodeTypeTexture, NodeTypeRevision:
		return true
	}
	return false
}

// Node is a vertex of a scene graph or a revision record. The set of
// implementations is closed; see GenericNode for unrecognised documents.
type Node interface {
	Header() *NodeHeader
	Type() NodeType

	// payload appends the variant-specific fields
	payload(b *document.Builder)
}

// NodeHeader holds the fields common to every node
type NodeHeader struct {
	UniqueID uuid.UUID
	SharedID uuid.UUID
	APILevel int
	Name     string
	// Parents are shared IDs of parent nodes. On a revision they are the
	// unique IDs of the parent revisions, primary parent first.
	Parents []uuid.UUID
}

// Header returns h so embedding types satisfy Node
func (h *NodeHeader) Header() *NodeHeader {
	return h
}

// HasParent reports whether id is listed among the parents
func (h *NodeHeader) HasParent(id uuid.UUID) bool {
	return slices.Contains(h.Parents, id)
}

// IsRoot reports whether the node has no parents
func (h *NodeHeader) IsRoot() bool {
	return len(h.Parents) == 0
}

// GenericNode is a node whose type tag is not recognised. Fields holds every
// non-header field exactly as stored.
type GenericNode struct {
	NodeHeader
	TypeTag string
	Fields  document.Document
}

func (n *GenericNode) Type() NodeType { return NodeType(n.TypeTag) }

func (n *GenericNode) payload(b *document.Builder) {
	for _, key := range n.Fields.Keys() {
		if v, ok := n.Fields.Lookup(key); ok {
			b.Append(key, v)
		}
	}
}
