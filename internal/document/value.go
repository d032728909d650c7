package document

import (
	"math"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/bsontype"
)

// Value is a single decoded field or array member.
type Value struct {
	raw bson.RawValue
}

// Kind returns the BSON type of the value.
func (v Value) Kind() bsontype.Type {
	return v.raw.Type
}

// Raw exposes the underlying BSON value.
func (v Value) Raw() bson.RawValue {
	return v.raw
}

// String returns a string value or def.
func (v Value) String(def string) string {
	if s, ok := v.raw.StringValueOK(); ok {
		return s
	}
	return def
}

// Int64 returns an integer value or def. Integral doubles are accepted.
func (v Value) Int64(def int64) int64 {
	switch v.raw.Type {
	case bsontype.Int32:
		return int64(v.raw.Int32())
	case bsontype.Int64:
		return v.raw.Int64()
	case bsontype.Double:
		f := v.raw.Double()
		if f == math.Trunc(f) && !math.IsInf(f, 0) {
			return int64(f)
		}
	}
	return def
}

// Float64 returns a numeric value or def.
func (v Value) Float64(def float64) float64 {
	switch v.raw.Type {
	case bsontype.Double:
		return v.raw.Double()
	case bsontype.Int32:
		return float64(v.raw.Int32())
	case bsontype.Int64:
		return float64(v.raw.Int64())
	}
	return def
}

// Bool returns a boolean value or def.
func (v Value) Bool(def bool) bool {
	if b, ok := v.raw.BooleanOK(); ok {
		return b
	}
	return def
}

// Time returns a datetime value (UTC) or def.
func (v Value) Time(def time.Time) time.Time {
	if ms, ok := v.raw.DateTimeOK(); ok {
		return time.UnixMilli(ms).UTC()
	}
	return def
}

// UUID returns a binary UUID value or def.
func (v Value) UUID(def uuid.UUID) uuid.UUID {
	subtype, data, ok := v.raw.BinaryOK()
	if !ok || len(data) != 16 {
		return def
	}
	if subtype != SubtypeUUIDLegacy && subtype != SubtypeUUID {
		return def
	}
	id, err := uuid.FromBytes(data)
	if err != nil {
		return def
	}
	return id
}

// Binary returns the payload of a binary value or def.
func (v Value) Binary(def []byte) []byte {
	_, data, ok := v.raw.BinaryOK()
	if !ok {
		return def
	}
	out := make([]byte, len(data))
	copy(out, data)
	return out
}

// Document returns an embedded document value or def.
func (v Value) Document(def Document) Document {
	if raw, ok := v.raw.DocumentOK(); ok {
		return Document{raw: raw}
	}
	return def
}

// Array returns array members ordered by ordinal key. Embedded documents
// whose keys are ordinals are read as arrays too.
func (v Value) Array() []Value {
	if raw, ok := v.raw.ArrayOK(); ok {
		return ordered(raw)
	}
	if raw, ok := v.raw.DocumentOK(); ok {
		return ordered(raw)
	}
	return nil
}
