package document

import (
	"bytes"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/bsontype"
)

// Equal reports whether a and b hold the same fields with the same values.
// Field order is ignored at every depth; array order is not.
func Equal(a, b Document) bool {
	return rawDocEqual(a.Raw(), b.Raw())
}

func rawDocEqual(a, b bson.Raw) bool {
	ae, err := a.Elements()
	if err != nil {
		return false
	}
	be, err := b.Elements()
	if err != nil {
		return false
	}
	if len(ae) != len(be) {
		return false
	}
	index := make(map[string]bson.RawValue, len(be))
	for _, e := range be {
		index[e.Key()] = e.Value()
	}
	if len(index) != len(be) {
		return false
	}
	for _, e := range ae {
		other, ok := index[e.Key()]
		if !ok || !valueEqual(e.Value(), other) {
			return false
		}
	}
	return true
}

func valueEqual(a, b bson.RawValue) bool {
	if a.Type != b.Type {
		return false
	}
	switch a.Type {
	case bsontype.EmbeddedDocument:
		return rawDocEqual(a.Document(), b.Document())
	case bsontype.Array:
		am, bm := ordered(a.Array()), ordered(b.Array())
		if len(am) != len(bm) {
			return false
		}
		for i := range am {
			if !valueEqual(am[i].raw, bm[i].raw) {
				return false
			}
		}
		return true
	default:
		return bytes.Equal(a.Value, b.Value)
	}
}

// Merge returns base with every top-level field of patch applied: fields
// present in both take patch's value in base's position, new fields are
// appended in patch order.
func Merge(base, patch Document) Document {
	patchElems, err := patch.Raw().Elements()
	if err != nil {
		return base
	}
	replacements := make(map[string]bson.RawValue, len(patchElems))
	for _, e := range patchElems {
		replacements[e.Key()] = e.Value()
	}

	b := NewBuilder()
	seen := make(map[string]bool, len(patchElems))
	if baseElems, err := base.Raw().Elements(); err == nil {
		for _, e := range baseElems {
			if v, ok := replacements[e.Key()]; ok {
				b.Append(e.Key(), Value{raw: v})
				seen[e.Key()] = true
				continue
			}
			b.Append(e.Key(), Value{raw: e.Value()})
		}
	}
	for _, e := range patchElems {
		if !seen[e.Key()] {
			b.Append(e.Key(), Value{raw: e.Value()})
		}
	}
	return b.Document()
}

// Without returns d minus the named top-level fields.
func Without(d Document, fields ...string) Document {
	drop := make(map[string]bool, len(fields))
	for _, f := range fields {
		drop[f] = true
	}
	elems, err := d.Raw().Elements()
	if err != nil {
		return d
	}
	b := NewBuilder()
	for _, e := range elems {
		if !drop[e.Key()] {
			b.Append(e.Key(), Value{raw: e.Value()})
		}
	}
	return b.Document()
}

// Project returns only the named top-level fields of d, in d's order.
func Project(d Document, fields ...string) Document {
	if len(fields) == 0 {
		return d
	}
	keep := make(map[string]bool, len(fields))
	for _, f := range fields {
		keep[f] = true
	}
	elems, err := d.Raw().Elements()
	if err != nil {
		return d
	}
	b := NewBuilder()
	for _, e := range elems {
		if keep[e.Key()] {
			b.Append(e.Key(), Value{raw: e.Value()})
		}
	}
	return b.Document()
}
