package domain

import (
	"path/filepath"
	"strings"
	"time"

	"cogentcore.org/core/math32"
	"github.com/google/uuid"

	"scenerepo/internal/document"
)

// TransformationNode positions its children
type TransformationNode struct {
	NodeHeader
	Matrix math32.Matrix4
}

func (n *TransformationNode) Type() NodeType { return NodeTypeTransformation }

// IsIdentity reports whether the transform leaves its children in place
func (n *TransformationNode) IsIdentity() bool {
	return n.Matrix == IdentityMatrix()
}

// MeshNode is a polygon mesh
type MeshNode struct {
	NodeHeader
	Vertices    []math32.Vector3
	Faces       []Face
	Normals     []math32.Vector3
	BoundingBox math32.Box3
	// UVChannels holds one texture coordinate per vertex for each channel
	UVChannels [][]math32.Vector2
	Colors     []Color
	Outline    []math32.Vector2
}

func (n *MeshNode) Type() NodeType { return NodeTypeMesh }

// Material holds surface shading parameters
type Material struct {
	Ambient           RGB
	Diffuse           RGB
	Specular          RGB
	Emissive          RGB
	Opacity           float32
	Shininess         float32
	ShininessStrength float32
	TwoSided          bool
}

// MaterialNode describes surface shading
type MaterialNode struct {
	NodeHeader
	Material
}

func (n *MaterialNode) Type() NodeType { return NodeTypeMaterial }

// Camera holds viewpoint parameters
type Camera struct {
	AspectRatio float32
	Far         float32
	Near        float32
	FOV         float32
	LookAt      math32.Vector3
	Position    math32.Vector3
	Up          math32.Vector3
}

// CameraNode is a viewpoint
type CameraNode struct {
	NodeHeader
	Camera
}

func (n *CameraNode) Type() NodeType { return NodeTypeCamera }

// MetadataNode attaches an arbitrary document to its parents
type MetadataNode struct {
	NodeHeader
	MimeType string
	Metadata document.Document
}

func (n *MetadataNode) Type() NodeType { return NodeTypeMetadata }

// TextureNode is an encoded image
type TextureNode struct {
	NodeHeader
	Data      []byte
	Width     uint32
	Height    uint32
	Extension string
}

func (n *TextureNode) Type() NodeType { return NodeTypeTexture }

// textureExtension derives the extension from a file name, without the dot
func textureExtension(name string) string {
	return strings.ToLower(strings.TrimPrefix(filepath.Ext(name), "."))
}

// RevisionNode records one commit on a branch. SharedID is the branch and
// Parents holds the unique IDs of the parent revisions.
type RevisionNode struct {
	NodeHeader
	Author    string
	Message   string
	Tag       string
	Timestamp time.Time
	// Current holds the unique IDs of every node in the revision
	Current []uuid.UUID
	// Added, Removed and Modified hold shared IDs relative to the primary parent
	Added    []uuid.UUID
	Removed  []uuid.UUID
	Modified []uuid.UUID
}

func (n *RevisionNode) Type() NodeType { return NodeTypeRevision }

// Branch returns the branch the revision belongs to
func (n *RevisionNode) Branch() uuid.UUID {
	return n.SharedID
}

// PrimaryParent returns the parent the deltas are computed against
func (n *RevisionNode) PrimaryParent() (uuid.UUID, bool) {
	if len(n.Parents) == 0 {
		return uuid.Nil, false
	}
	return n.Parents[0], true
}

// HasDelta reports whether any delta is recorded
func (n *RevisionNode) HasDelta() bool {
	return len(n.Added)+len(n.Removed)+len(n.Modified) > 0
}
