package domain

import (
	"time"

	"cogentcore.org/core/math32"
	"github.com/google/uuid"

	"scenerepo/internal/document"
)

// Factory builds validated nodes. The zero value is not usable; call
// NewFactory.
type Factory struct {
	now   func() time.Time
	newID func() uuid.UUID
}

// FactoryOption configures a Factory
type FactoryOption func(*Factory)

// WithClock replaces the clock used to stamp revisions
func WithClock(now func() time.Time) FactoryOption {
	return func(f *Factory) { f.now = now }
}

// WithIDSource replaces the unique ID generator
func WithIDSource(newID func() uuid.UUID) FactoryOption {
	return func(f *Factory) { f.newID = newID }
}

// NewFactory creates a factory using the wall clock and random UUIDs
func NewFactory(opts ...FactoryOption) *Factory {
	f := &Factory{now: time.Now, newID: uuid.New}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

type nodeOptions struct {
	header    NodeHeader
	sharedSet bool
}

// Option sets a header field on a node under construction
type Option func(*nodeOptions)

// WithName sets the node name
func WithName(name string) Option {
	return func(o *nodeOptions) { o.header.Name = name }
}

// WithSharedID makes the node a new version of an existing logical node
func WithSharedID(id uuid.UUID) Option {
	return func(o *nodeOptions) {
		o.header.SharedID = id
		o.sharedSet = true
	}
}

// WithParents sets the parent shared IDs. Duplicates are dropped.
func WithParents(parents ...uuid.UUID) Option {
	return func(o *nodeOptions) { o.header.Parents = dedupe(parents) }
}

// WithAPILevel overrides the API level tag
func WithAPILevel(level int) Option {
	return func(o *nodeOptions) { o.header.APILevel = level }
}

func (f *Factory) header(opts []Option) NodeHeader {
	o := nodeOptions{header: NodeHeader{APILevel: APILevel}}
	for _, opt := range opts {
		opt(&o)
	}
	o.header.UniqueID = f.newID()
	if !o.sharedSet {
		o.header.SharedID = f.newID()
	}
	return o.header
}

// Derive returns a copy of n with a fresh unique ID and the same shared ID,
// ready to be committed as a modification of n.
func (f *Factory) Derive(n Node) (Node, error) {
	doc, err := Encode(n)
	if err != nil {
		return nil, err
	}
	out := DecodeNode(doc)
	out.Header().UniqueID = f.newID()
	return out, nil
}

// Transformation creates a transformation node from a row-major 4x4 matrix.
// A nil matrix yields the identity.
func (f *Factory) Transformation(rows [][]float32, opts ...Option) (*TransformationNode, error) {
	m := IdentityMatrix()
	if rows != nil {
		if len(rows) != 4 {
			return nil, invalid(NodeTypeTransformation, "matrix", "has %d rows, want 4", len(rows))
		}
		var fixed [4][4]float32
		for r, row := range rows {
			if len(row) != 4 {
				return nil, invalid(NodeTypeTransformation, "matrix", "row %d has %d columns, want 4", r, len(row))
			}
			copy(fixed[r][:], row)
		}
		m = MatrixFromRows(fixed)
	}
	return &TransformationNode{NodeHeader: f.header(opts), Matrix: m}, nil
}

// MeshParams are the inputs to Factory.Mesh
type MeshParams struct {
	Vertices []math32.Vector3
	Faces    []Face
	Normals  []math32.Vector3
	// BoundingBox is derived from the vertices when nil
	BoundingBox *math32.Box3
	UVChannels  [][]math32.Vector2
	Colors      []Color
	Outline     []math32.Vector2
}

// Mesh creates a mesh node
func (f *Factory) Mesh(p MeshParams, opts ...Option) (*MeshNode, error) {
	count := len(p.Vertices)
	if count == 0 {
		return nil, invalid(NodeTypeMesh, "vertices", "must not be empty")
	}
	if len(p.Faces) == 0 {
		return nil, invalid(NodeTypeMesh, "faces", "must not be empty")
	}
	for i, face := range p.Faces {
		if len(face) == 0 {
			return nil, invalid(NodeTypeMesh, "faces", "face %d has no indices", i)
		}
		for _, idx := range face {
			if int(idx) >= count {
				return nil, invalid(NodeTypeMesh, "faces", "face %d references vertex %d of %d", i, idx, count)
			}
		}
	}
	if len(p.Normals) > 0 && len(p.Normals) != count {
		return nil, invalid(NodeTypeMesh, "normals", "has %d entries for %d vertices", len(p.Normals), count)
	}
	for i, ch := range p.UVChannels {
		if len(ch) != count {
			return nil, invalid(NodeTypeMesh, "uv_channels", "channel %d has %d entries for %d vertices", i, len(ch), count)
		}
	}
	if len(p.Colors) > 0 && len(p.Colors) != count {
		return nil, invalid(NodeTypeMesh, "colors", "has %d entries for %d vertices", len(p.Colors), count)
	}

	n := &MeshNode{
		NodeHeader: f.header(opts),
		Vertices:   cloneSlice(p.Vertices),
		Faces:      make([]Face, len(p.Faces)),
		Normals:    cloneSlice(p.Normals),
		Colors:     cloneSlice(p.Colors),
		Outline:    cloneSlice(p.Outline),
	}
	for i, face := range p.Faces {
		n.Faces[i] = cloneSlice(face)
	}
	for _, ch := range p.UVChannels {
		n.UVChannels = append(n.UVChannels, cloneSlice(ch))
	}
	if p.BoundingBox != nil {
		n.BoundingBox = *p.BoundingBox
	} else {
		n.BoundingBox = math32.B3Empty()
		n.BoundingBox.ExpandByPoints(n.Vertices)
	}
	return n, nil
}

// Material creates a material node
func (f *Factory) Material(m Material, opts ...Option) (*MaterialNode, error) {
	if m.Opacity < 0 || m.Opacity > 1 {
		return nil, invalid(NodeTypeMaterial, "opacity", "%v is outside [0, 1]", m.Opacity)
	}
	if m.Shininess < 0 {
		return nil, invalid(NodeTypeMaterial, "shininess", "must not be negative")
	}
	return &MaterialNode{NodeHeader: f.header(opts), Material: m}, nil
}

// Camera creates a camera node
func (f *Factory) Camera(c Camera, opts ...Option) (*CameraNode, error) {
	if c.Near == 0 {
		return nil, invalid(NodeTypeCamera, "near", "must not be zero")
	}
	if c.Far <= c.Near {
		return nil, invalid(NodeTypeCamera, "far", "%v must exceed near %v", c.Far, c.Near)
	}
	if c.AspectRatio <= 0 {
		return nil, invalid(NodeTypeCamera, "aspect_ratio", "must be positive")
	}
	return &CameraNode{NodeHeader: f.header(opts), Camera: c}, nil
}

// Metadata creates a metadata node holding meta
func (f *Factory) Metadata(meta document.Document, mimeType string, opts ...Option) (*MetadataNode, error) {
	if meta.IsEmpty() {
		return nil, invalid(NodeTypeMetadata, "metadata", "must not be empty")
	}
	return &MetadataNode{NodeHeader: f.header(opts), MimeType: mimeType, Metadata: meta}, nil
}

// Texture creates a texture node from an encoded image. The extension is
// taken from name, which also becomes the node name unless WithName is given.
func (f *Factory) Texture(name string, data []byte, width, height uint32, opts ...Option) (*TextureNode, error) {
	if len(data) == 0 {
		return nil, invalid(NodeTypeTexture, "data", "must not be empty")
	}
	if width == 0 || height == 0 {
		return nil, invalid(NodeTypeTexture, "", "dimensions %dx%d must be non-zero", width, height)
	}
	n := &TextureNode{
		NodeHeader: f.header(append([]Option{WithName(name)}, opts...)),
		Data:       cloneSlice(data),
		Width:      width,
		Height:     height,
		Extension:  textureExtension(name),
	}
	return n, nil
}

// RevisionParams are the inputs to Factory.Revision
type RevisionParams struct {
	Author  string
	Branch  uuid.UUID
	Parents []uuid.UUID
	Message string
	Tag     string

	Current  []uuid.UUID
	Added    []uuid.UUID
	Removed  []uuid.UUID
	Modified []uuid.UUID

	// After is the primary parent's timestamp. The new revision is stamped
	// strictly later.
	After time.Time
}

// Revision creates a revision node stamped with the factory clock
func (f *Factory) Revision(p RevisionParams) (*RevisionNode, error) {
	if p.Author == "" {
		return nil, invalid(NodeTypeRevision, "author", "must not be empty")
	}
	if len(p.Parents) > 0 && len(p.Current)+len(p.Added)+len(p.Removed)+len(p.Modified) == 0 {
		return nil, invalid(NodeTypeRevision, "", "non-root revision records no change")
	}

	ts := f.now().UTC().Truncate(time.Millisecond)
	if !p.After.IsZero() && !ts.After(p.After) {
		ts = p.After.UTC().Truncate(time.Millisecond).Add(time.Millisecond)
	}

	return &RevisionNode{
		NodeHeader: NodeHeader{
			UniqueID: f.newID(),
			SharedID: p.Branch,
			APILevel: APILevel,
			Parents:  dedupe(p.Parents),
		},
		Author:    p.Author,
		Message:   p.Message,
		Tag:       p.Tag,
		Timestamp: ts,
		Current:   cloneSlice(p.Current),
		Added:     cloneSlice(p.Added),
		Removed:   cloneSlice(p.Removed),
		Modified:  cloneSlice(p.Modified),
	}, nil
}

// cloneSlice copies s, mapping empty to nil
func cloneSlice[T any](s []T) []T {
	if len(s) == 0 {
		return nil
	}
	out := make([]T, len(s))
	copy(out, s)
	return out
}

func dedupe(ids []uuid.UUID) []uuid.UUID {
	if len(ids) == 0 {
		return nil
	}
	seen := make(map[uuid.UUID]bool, len(ids))
	out := make([]uuid.UUID, 0, len(ids))
	for _, id := range ids {
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	return out
}
