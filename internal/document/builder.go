package document

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Builder constructs a Document field by field. Fields keep insertion order.
type Builder struct {
	fields bson.D
	err    error
}

// NewBuilder returns an empty builder.
func NewBuilder() *Builder {
	return &Builder{}
}

// Append adds a field. Supported kinds are strings, booleans, integers,
// floats, time.Time, uuid.UUID, []byte, Document, Value, slices of those
// and nil. Any other kind is recorded as an error reported by Err.
func (b *Builder) Append(key string, value any) *Builder {
	v, err := toBSON(value)
	if err != nil {
		if b.err == nil {
			b.err = fmt.Errorf("field %q: %w", key, err)
		}
		return b
	}
	b.fields = append(b.fields, bson.E{Key: key, Value: v})
	return b
}

// AppendUUID adds a legacy-subtype binary UUID.
func (b *Builder) AppendUUID(key string, id uuid.UUID) *Builder {
	return b.Append(key, id)
}

// AppendBinary adds a generic binary field.
func (b *Builder) AppendBinary(key string, data []byte) *Builder {
	return b.Append(key, data)
}

// AppendTime adds a datetime field (millisecond precision).
func (b *Builder) AppendTime(key string, t time.Time) *Builder {
	return b.Append(key, t)
}

// AppendDocument adds an embedded document.
func (b *Builder) AppendDocument(key string, doc Document) *Builder {
	return b.Append(key, doc)
}

// AppendArray adds an array; members are keyed by ordinal.
func (b *Builder) AppendArray(key string, members []any) *Builder {
	return b.Append(key, members)
}

// AppendIf adds the field only when cond holds.
func (b *Builder) AppendIf(cond bool, key string, value any) *Builder {
	if cond {
		return b.Append(key, value)
	}
	return b
}

// Len returns the number of fields appended so far.
func (b *Builder) Len() int {
	return len(b.fields)
}

// Err returns the first error recorded by Append.
func (b *Builder) Err() error {
	return b.err
}

// Document encodes the accumulated fields. On failure the error is recorded
// and an empty document returned.
func (b *Builder) Document() Document {
	if b.err != nil {
		return Empty()
	}
	if len(b.fields) == 0 {
		return Empty()
	}
	data, err := bson.Marshal(b.fields)
	if err != nil {
		b.err = fmt.Errorf("encode document: %w", err)
		return Empty()
	}
	return Document{raw: data}
}

// UUIDValue returns the wire form of id.
func UUIDValue(id uuid.UUID) primitive.Binary {
	data := make([]byte, 16)
	copy(data, id[:])
	return primitive.Binary{Subtype: SubtypeUUIDLegacy, Data: data}
}

func toBSON(value any) (any, error) {
	switch v := value.(type) {
	case nil:
		return primitive.Null{}, nil
	case string, bool, int32, int64, float64:
		return v, nil
	case int:
		return int64(v), nil
	case uint32:
		return int64(v), nil
	case float32:
		return float64(v), nil
	case time.Time:
		return primitive.NewDateTimeFromTime(v), nil
	case uuid.UUID:
		return UUIDValue(v), nil
	case []byte:
		data := make([]byte, len(v))
		copy(data, v)
		return primitive.Binary{Subtype: 0x00, Data: data}, nil
	case Document:
		return bson.Raw(v.Bytes()), nil
	case Value:
		return v.raw, nil
	case []uuid.UUID:
		arr := make(bson.A, len(v))
		for i, id := range v {
			arr[i] = UUIDValue(id)
		}
		return arr, nil
	case []string:
		arr := make(bson.A, len(v))
		for i, s := range v {
			arr[i] = s
		}
		return arr, nil
	case []float64:
		arr := make(bson.A, len(v))
		for i, f := range v {
			arr[i] = f
		}
		return arr, nil
	case []float32:
		arr := make(bson.A, len(v))
		for i, f := range v {
			arr[i] = float64(f)
		}
		return arr, nil
	case []Document:
		arr := make(bson.A, len(v))
		for i, d := range v {
			arr[i] = bson.Raw(d.Bytes())
		}
		return arr, nil
	case []any:
		arr := make(bson.A, len(v))
		for i, m := range v {
			conv, err := toBSON(m)
			if err != nil {
				return nil, fmt.Errorf("member %d: %w", i, err)
			}
			arr[i] = conv
		}
		return arr, nil
	default:
		return nil, fmt.Errorf("unsupported value type %T", value)
	}
}
