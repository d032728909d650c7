package domain

import (
	"fmt"
	"time"

	"cogentcore.org/core/math32"
	"github.com/google/uuid"

	"scenerepo/internal/document"
)

// Document labels shared by every node
const (
	FieldUniqueID  = "_id"
	FieldSharedID  = "shared_id"
	FieldType      = "type"
	FieldAPILevel  = "api"
	FieldName      = "name"
	FieldParents   = "parents"
	FieldTimestamp = "timestamp"
	FieldCurrent   = "current"
)

var headerFields = []string{FieldUniqueID, FieldSharedID, FieldType, FieldAPILevel, FieldName, FieldParents}

// Encode converts a node into its stored document
func Encode(n Node) (document.Document, error) {
	h := n.Header()
	b := document.NewBuilder().
		AppendUUID(FieldUniqueID, h.UniqueID).
		AppendUUID(FieldSharedID, h.SharedID).
		Append(FieldType, string(n.Type())).
		Append(FieldAPILevel, h.APILevel).
		AppendIf(h.Name != "", FieldName, h.Name).
		AppendIf(len(h.Parents) > 0, FieldParents, h.Parents)
	n.payload(b)

	doc := b.Document()
	if err := b.Err(); err != nil {
		return document.Empty(), fmt.Errorf("encode %s node %s: %w", n.Type(), h.UniqueID, err)
	}
	return doc, nil
}

// DecodeNode converts a stored document into a node. Documents with an
// unrecognised type tag become *GenericNode.
func DecodeNode(doc document.Document) Node {
	h := NodeHeader{
		UniqueID: doc.UUID(FieldUniqueID, uuid.Nil),
		SharedID: doc.UUID(FieldSharedID, uuid.Nil),
		APILevel: doc.Int(FieldAPILevel, 0),
		Name:     doc.String(FieldName, ""),
		Parents:  doc.UUIDs(FieldParents),
	}

	tag := doc.String(FieldType, "")
	switch NodeType(tag) {
	case NodeTypeTransformation:
		return decodeTransformation(h, doc)
	case NodeTypeMesh:
		return decodeMesh(h, doc)
	case NodeTypeMaterial:
		return decodeMaterial(h, doc)
	case NodeTypeCamera:
		return decodeCamera(h, doc)
	case NodeTypeMetadata:
		return &MetadataNode{
			NodeHeader: h,
			MimeType:   doc.String("mime", ""),
			Metadata:   doc.Document("metadata"),
		}
	case NodeTypeTexture:
		return &TextureNode{
			NodeHeader: h,
			Data:       doc.Binary("data", nil),
			Width:      uint32(doc.Int64("width", 0)),
			Height:     uint32(doc.Int64("height", 0)),
			Extension:  doc.String("extension", ""),
		}
	case NodeTypeRevision:
		return decodeRevision(h, doc)
	default:
		return &GenericNode{
			NodeHeader: h,
			TypeTag:    tag,
			Fields:     document.Without(doc, headerFields...),
		}
	}
}

// DecodeNodes decodes every document in docs
func DecodeNodes(docs []document.Document) []Node {
	out := make([]Node, len(docs))
	for i, d := range docs {
		out[i] = DecodeNode(d)
	}
	return out
}

// Transformation

func (n *TransformationNode) payload(b *document.Builder) {
	rows := MatrixRows(n.Matrix)
	members := make([]any, 4)
	for r := range rows {
		members[r] = rows[r][:]
	}
	b.AppendArray("matrix", members)
}

func decodeTransformation(h NodeHeader, doc document.Document) *TransformationNode {
	n := &TransformationNode{NodeHeader: h, Matrix: IdentityMatrix()}
	stored := doc.Array("matrix")
	if len(stored) == 0 {
		return n
	}
	var rows [4][4]float32
	for r := 0; r < 4; r++ {
		rows[r][r] = 1
	}
	for r, row := range stored {
		if r >= 4 {
			break
		}
		for c, v := range document.Float64s(row.Array()) {
			if c >= 4 {
				break
			}
			rows[r][c] = float32(v)
		}
	}
	n.Matrix = MatrixFromRows(rows)
	return n
}

// Mesh

func (n *MeshNode) payload(b *document.Builder) {
	b.AppendBinary("vertices", packVector3s(n.Vertices)).
		Append("vertices_count", len(n.Vertices)).
		AppendBinary("faces", packFaces(n.Faces)).
		Append("faces_count", len(n.Faces))
	if len(n.Normals) > 0 {
		b.AppendBinary("normals", packVector3s(n.Normals))
	}
	if !n.BoundingBox.IsEmpty() {
		b.AppendArray("bounding_box", []any{vec3Slice(n.BoundingBox.Min), vec3Slice(n.BoundingBox.Max)})
	}
	if len(n.UVChannels) > 0 {
		b.AppendBinary("uv_channels", packUVChannels(n.UVChannels)).
			Append("uv_channels_count", len(n.UVChannels))
	}
	if len(n.Colors) > 0 {
		b.AppendBinary("colors", packColors(n.Colors))
	}
	if len(n.Outline) > 0 {
		points := make([]any, len(n.Outline))
		for i, p := range n.Outline {
			points[i] = []float32{p.X, p.Y}
		}
		b.AppendArray("outline", points)
	}
}

func decodeMesh(h NodeHeader, doc document.Document) *MeshNode {
	n := &MeshNode{
		NodeHeader:  h,
		Vertices:    unpackVector3s(doc.Binary("vertices", nil)),
		Faces:       unpackFaces(doc.Binary("faces", nil)),
		Normals:     unpackVector3s(doc.Binary("normals", nil)),
		BoundingBox: math32.B3Empty(),
		UVChannels:  unpackUVChannels(doc.Binary("uv_channels", nil), doc.Int("uv_channels_count", 0)),
		Colors:      unpackColors(doc.Binary("colors", nil)),
	}
	if corners := doc.Array("bounding_box"); len(corners) == 2 {
		n.BoundingBox.Min = vec3From(document.Float64s(corners[0].Array()))
		n.BoundingBox.Max = vec3From(document.Float64s(corners[1].Array()))
	}
	for _, p := range doc.Array("outline") {
		xy := document.Float64s(p.Array())
		if len(xy) < 2 {
			continue
		}
		n.Outline = append(n.Outline, math32.Vector2{X: float32(xy[0]), Y: float32(xy[1])})
	}
	return n
}

// Material

func (n *MaterialNode) payload(b *document.Builder) {
	b.Append("ambient", rgbSlice(n.Ambient)).
		Append("diffuse", rgbSlice(n.Diffuse)).
		Append("specular", rgbSlice(n.Specular)).
		Append("emissive", rgbSlice(n.Emissive)).
		Append("opacity", n.Opacity).
		Append("shininess", n.Shininess).
		Append("shininess_strength", n.ShininessStrength).
		Append("two_sided", n.TwoSided)
}

func decodeMaterial(h NodeHeader, doc document.Document) *MaterialNode {
	return &MaterialNode{NodeHeader: h, Material: Material{
		Ambient:           rgbFrom(doc.Float64s("ambient")),
		Diffuse:           rgbFrom(doc.Float64s("diffuse")),
		Specular:          rgbFrom(doc.Float64s("specular")),
		Emissive:          rgbFrom(doc.Float64s("emissive")),
		Opacity:           doc.Float32("opacity", 1),
		Shininess:         doc.Float32("shininess", 0),
		ShininessStrength: doc.Float32("shininess_strength", 0),
		TwoSided:          doc.Bool("two_sided", false),
	}}
}

// Camera

func (n *CameraNode) payload(b *document.Builder) {
	b.Append("aspect_ratio", n.AspectRatio).
		Append("far", n.Far).
		Append("near", n.Near).
		Append("fov", n.FOV).
		Append("look_at", vec3Slice(n.LookAt)).
		Append("position", vec3Slice(n.Position)).
		Append("up", vec3Slice(n.Up))
}

func decodeCamera(h NodeHeader, doc document.Document) *CameraNode {
	return &CameraNode{NodeHeader: h, Camera: Camera{
		AspectRatio: doc.Float32("aspect_ratio", 1),
		Far:         doc.Float32("far", 0),
		Near:        doc.Float32("near", 0),
		FOV:         doc.Float32("fov", 0),
		LookAt:      vec3From(doc.Float64s("look_at")),
		Position:    vec3From(doc.Float64s("position")),
		Up:          vec3From(doc.Float64s("up")),
	}}
}

// Metadata

func (n *MetadataNode) payload(b *document.Builder) {
	b.AppendDocument("metadata", n.Metadata).
		AppendIf(n.MimeType != "", "mime", n.MimeType)
}

// Texture

func (n *TextureNode) payload(b *document.Builder) {
	b.AppendBinary("data", n.Data).
		Append("data_byte_count", len(n.Data)).
		Append("width", n.Width).
		Append("height", n.Height).
		Append("extension", n.Extension)
}

// Revision

func (n *RevisionNode) payload(b *document.Builder) {
	b.Append("author", n.Author).
		AppendIf(n.Message != "", "message", n.Message).
		AppendIf(n.Tag != "", "tag", n.Tag).
		AppendTime(FieldTimestamp, n.Timestamp).
		AppendIf(len(n.Current) > 0, FieldCurrent, n.Current).
		AppendIf(len(n.Added) > 0, "added", n.Added).
		AppendIf(len(n.Removed) > 0, "deleted", n.Removed).
		AppendIf(len(n.Modified) > 0, "modified", n.Modified)
}

func decodeRevision(h NodeHeader, doc document.Document) *RevisionNode {
	return &RevisionNode{
		NodeHeader: h,
		Author:     doc.String("author", ""),
		Message:    doc.String("message", ""),
		Tag:        doc.String("tag", ""),
		Timestamp:  doc.Time(FieldTimestamp, time.Time{}),
		Current:    doc.UUIDs(FieldCurrent),
		Added:      doc.UUIDs("added"),
		Removed:    doc.UUIDs("deleted"),
		Modified:   doc.UUIDs("modified"),
	}
}

func vec3Slice(v math32.Vector3) []float32 {
	return []float32{v.X, v.Y, v.Z}
}

func vec3From(vals []float64) math32.Vector3 {
	var v math32.Vector3
	if len(vals) > 0 {
		v.X = float32(vals[0])
	}
	if len(vals) > 1 {
		v.Y = float32(vals[1])
	}
	if len(vals) > 2 {
		v.Z = float32(vals[2])
	}
	return v
}

func rgbSlice(c RGB) []float32 {
	return []float32{c.R, c.G, c.B}
}

func rgbFrom(vals []float64) RGB {
	v := vec3From(vals)
	return RGB{R: v.X, G: v.Y, B: v.Z}
}
