// Package domain defines the node model of the scene repository.
//
// A scene is a directed graph of typed nodes. Every node carries two
// identities: a unique ID naming one immutable version of the node, and a
// shared ID naming the logical node across versions. Parent links always
// reference shared IDs.
//
// # Core Types
//
// Node is a sealed interface implemented by TransformationNode, MeshNode,
// MaterialNode, CameraNode, MetadataNode, TextureNode and RevisionNode.
// Documents carrying an unrecognised type tag decode into GenericNode, which
// keeps every field so nothing is lost on a re-save.
//
// RevisionNode is the unit of history. Its shared ID is the branch, its
// parents are earlier revisions, and it records the full current set plus
// the added, removed and modified deltas against its primary parent.
//
// # Construction
//
// Factory is the only supported way to build nodes from raw inputs. It
// assigns identities, stamps revision timestamps and validates each variant,
// returning *ValidationError on bad input.
//
// # Wire Form
//
// Encode and DecodeNode convert between nodes and documents. The round trip
// DecodeNode(Encode(n)) reproduces n field for field.
package domain
