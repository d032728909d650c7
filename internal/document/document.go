// Package document is the binary document codec used for every node,
// revision and role persisted by scenerepo.
//
// Documents are BSON. A Document is immutable once built; construct one with
// a Builder and read fields back with the typed accessors, which never fail
// and return the supplied default when a field is missing or holds a value of
// a different kind.
//
// Arrays are written as BSON arrays, i.e. embedded documents keyed "0", "1",
// ... in insertion order. Readers rebuild sequences from those ordinal keys
// rather than from byte order, so documents produced by other writers that
// append array members out of order still decode correctly.
package document

import (
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/bsontype"
)

// Binary subtypes used for identifiers.
const (
	SubtypeUUIDLegacy byte = 0x03
	SubtypeUUID       byte = 0x04
)

// Document is an encoded, immutable document.
type Document struct {
	raw bson.Raw
}

// Empty returns a document with no fields.
func Empty() Document {
	return Document{raw: bson.Raw{5, 0, 0, 0, 0}}
}

// Decode validates data and wraps it as a Document. The slice is copied.
func Decode(data []byte) (Document, error) {
	raw := make(bson.Raw, len(data))
	copy(raw, data)
	if err := raw.Validate(); err != nil {
		return Document{}, fmt.Errorf("decode document: %w", err)
	}
	return Document{raw: raw}, nil
}

// FromRaw wraps an already validated BSON document.
func FromRaw(raw bson.Raw) Document {
	return Document{raw: raw}
}

// Bytes returns the encoded form.
func (d Document) Bytes() []byte {
	if d.raw == nil {
		return Empty().raw
	}
	return d.raw
}

// Raw exposes the underlying BSON for drivers.
func (d Document) Raw() bson.Raw {
	return bson.Raw(d.Bytes())
}

// IsEmpty reports whether the document has no fields.
func (d Document) IsEmpty() bool {
	return len(d.Keys()) == 0
}

// Keys returns field names in stored order.
func (d Document) Keys() []string {
	elems, err := d.Raw().Elements()
	if err != nil {
		return nil
	}
	keys := make([]string, 0, len(elems))
	for _, e := range elems {
		keys = append(keys, e.Key())
	}
	return keys
}

// Has reports whether field is present.
func (d Document) Has(field string) bool {
	_, ok := d.Lookup(field)
	return ok
}

// Lookup returns the raw value of field.
func (d Document) Lookup(field string) (Value, bool) {
	if len(d.raw) == 0 {
		return Value{}, false
	}
	rv, err := d.raw.LookupErr(field)
	if err != nil {
		return Value{}, false
	}
	return Value{raw: rv}, true
}

// String returns field as a string.
func (d Document) String(field, def string) string {
	v, ok := d.Lookup(field)
	if !ok {
		return def
	}
	return v.String(def)
}

// Int returns field as an int. Doubles are accepted when integral.
func (d Document) Int(field string, def int) int {
	v, ok := d.Lookup(field)
	if !ok {
		return def
	}
	return int(v.Int64(int64(def)))
}

// Int64 returns field as an int64.
func (d Document) Int64(field string, def int64) int64 {
	v, ok := d.Lookup(field)
	if !ok {
		return def
	}
	return v.Int64(def)
}

// Float64 returns field as a float64. Integer kinds are widened.
func (d Document) Float64(field string, def float64) float64 {
	v, ok := d.Lookup(field)
	if !ok {
		return def
	}
	return v.Float64(def)
}

// Float32 returns field as a float32.
func (d Document) Float32(field string, def float32) float32 {
	return float32(d.Float64(field, float64(def)))
}

// Bool returns field as a bool.
func (d Document) Bool(field string, def bool) bool {
	v, ok := d.Lookup(field)
	if !ok {
		return def
	}
	return v.Bool(def)
}

// Time returns a BSON datetime field.
func (d Document) Time(field string, def time.Time) time.Time {
	v, ok := d.Lookup(field)
	if !ok {
		return def
	}
	return v.Time(def)
}

// UUID returns a binary UUID field (subtype 3 or 4).
func (d Document) UUID(field string, def uuid.UUID) uuid.UUID {
	v, ok := d.Lookup(field)
	if !ok {
		return def
	}
	return v.UUID(def)
}

// Binary returns the payload of a binary field of any subtype.
func (d Document) Binary(field string, def []byte) []byte {
	v, ok := d.Lookup(field)
	if !ok {
		return def
	}
	return v.Binary(def)
}

// Document returns an embedded document field, or an empty document.
func (d Document) Document(field string) Document {
	v, ok := d.Lookup(field)
	if !ok {
		return Empty()
	}
	return v.Document(Empty())
}

// Array returns the members of an array field ordered by ordinal key.
func (d Document) Array(field string) []Value {
	v, ok := d.Lookup(field)
	if !ok {
		return nil
	}
	return v.Array()
}

// UUIDs returns an array of UUIDs, skipping members of other kinds.
func (d Document) UUIDs(field string) []uuid.UUID {
	members := d.Array(field)
	if len(members) == 0 {
		return nil
	}
	ids := make([]uuid.UUID, 0, len(members))
	for _, m := range members {
		if id := m.UUID(uuid.Nil); id != uuid.Nil {
			ids = append(ids, id)
		}
	}
	return ids
}

// Strings returns an array of strings, skipping members of other kinds.
func (d Document) Strings(field string) []string {
	members := d.Array(field)
	if len(members) == 0 {
		return nil
	}
	out := make([]string, 0, len(members))
	for _, m := range members {
		if m.Kind() == bsontype.String {
			out = append(out, m.String(""))
		}
	}
	return out
}

// Float64s returns a numeric array; non-numeric members read as 0.
func (d Document) Float64s(field string) []float64 {
	return Float64s(d.Array(field))
}

// Float64s converts array members to float64.
func Float64s(members []Value) []float64 {
	if len(members) == 0 {
		return nil
	}
	out := make([]float64, len(members))
	for i, m := range members {
		out[i] = m.Float64(0)
	}
	return out
}

// Get reads field with the accessor matching the type of def.
func Get[T any](d Document, field string, def T) T {
	var out any
	switch v := any(def).(type) {
	case string:
		out = d.String(field, v)
	case int:
		out = d.Int(field, v)
	case int64:
		out = d.Int64(field, v)
	case float64:
		out = d.Float64(field, v)
	case float32:
		out = d.Float32(field, v)
	case bool:
		out = d.Bool(field, v)
	case time.Time:
		out = d.Time(field, v)
	case uuid.UUID:
		out = d.UUID(field, v)
	case []byte:
		out = d.Binary(field, v)
	case Document:
		if inner, ok := d.Lookup(field); ok {
			out = inner.Document(v)
		} else {
			out = v
		}
	default:
		return def
	}
	return out.(T)
}

// JSON renders the document as relaxed extended JSON for logs.
func (d Document) JSON() string {
	return d.Raw().String()
}

// ordered sorts array members by their ordinal keys. Members whose key is
// not a non-negative integer sort after numbered members, in stored order.
func ordered(raw bson.Raw) []Value {
	elems, err := raw.Elements()
	if err != nil {
		return nil
	}
	type member struct {
		idx int
		pos int
		val Value
	}
	members := make([]member, 0, len(elems))
	for pos, e := range elems {
		idx, err := strconv.Atoi(e.Key())
		if err != nil || idx < 0 {
			idx = int(^uint(0) >> 1)
		}
		members = append(members, member{idx: idx, pos: pos, val: Value{raw: e.Value()}})
	}
	sort.SliceStable(members, func(i, j int) bool {
		if members[i].idx != members[j].idx {
			return members[i].idx < members[j].idx
		}
		return members[i].pos < members[j].pos
	})
	out := make([]Value, len(members))
	for i, m := range members {
		out[i] = m.val
	}
	return out
}
