package document

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/x/bsonx/bsoncore"
)

func TestBuilderRoundTrip(t *testing.T) {
	id := uuid.New()
	ts := time.Date(2024, 3, 1, 12, 30, 0, 0, time.UTC)
	inner := NewBuilder().Append("k", "v").Document()

	doc := NewBuilder().
		AppendUUID("_id", id).
		Append("name", "cube").
		Append("count", 3).
		Append("ratio", float32(1.5)).
		Append("flag", true).
		AppendTime("at", ts).
		AppendBinary("blob", []byte{1, 2, 3}).
		AppendDocument("inner", inner).
		AppendArray("list", []any{"a", "b", "c"}).
		Append("ids", []uuid.UUID{id}).
		Document()

	decoded, err := Decode(doc.Bytes())
	if err != nil {
		t.Fatalf("decode: %v", err)
	}

	if got := decoded.UUID("_id", uuid.Nil); got != id {
		t.Errorf("_id = %s, want %s", got, id)
	}
	if got := decoded.String("name", ""); got != "cube" {
		t.Errorf("name = %q", got)
	}
	if got := decoded.Int("count", 0); got != 3 {
		t.Errorf("count = %d", got)
	}
	if got := decoded.Float32("ratio", 0); got != 1.5 {
		t.Errorf("ratio = %v", got)
	}
	if !decoded.Bool("flag", false) {
		t.Error("flag should be true")
	}
	if got := decoded.Time("at", time.Time{}); !got.Equal(ts) {
		t.Errorf("at = %v, want %v", got, ts)
	}
	if got := decoded.Binary("blob", nil); len(got) != 3 || got[2] != 3 {
		t.Errorf("blob = %v", got)
	}
	if got := decoded.Document("inner").String("k", ""); got != "v" {
		t.Errorf("inner.k = %q", got)
	}
	if got := decoded.Strings("list"); len(got) != 3 || got[0] != "a" || got[2] != "c" {
		t.Errorf("list = %v", got)
	}
	if got := decoded.UUIDs("ids"); len(got) != 1 || got[0] != id {
		t.Errorf("ids = %v", got)
	}
}

func TestAccessorsFallBackToDefault(t *testing.T) {
	doc := NewBuilder().Append("s", "text").Append("n", 7).Document()

	tests := []struct {
		name string
		got  any
		want any
	}{
		{"missing string", doc.String("nope", "def"), "def"},
		{"string from int", doc.String("n", "def"), "def"},
		{"int from string", doc.Int("s", -1), -1},
		{"float from string", doc.Float64("s", 2.5), 2.5},
		{"bool from int", doc.Bool("n", true), true},
		{"uuid from string", doc.UUID("s", uuid.Nil), uuid.Nil},
		{"generic int", Get(doc, "n", 0), 7},
		{"generic missing", Get(doc, "missing", "x"), "x"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.want {
				t.Errorf("got %v, want %v", tt.got, tt.want)
			}
		})
	}

	if !doc.Document("s").IsEmpty() {
		t.Error("document accessor on a string should yield an empty document")
	}
	if doc.Array("s") != nil {
		t.Error("array accessor on a string should yield nil")
	}
}

func TestArrayReadsOrdinalKeysNotByteOrder(t *testing.T) {
	// members stored "1" before "0"
	arr := bsoncore.BuildDocumentFromElements(nil,
		bsoncore.AppendStringElement(nil, "1", "second"),
		bsoncore.AppendStringElement(nil, "0", "first"),
		bsoncore.AppendStringElement(nil, "10", "eleventh"),
		bsoncore.AppendStringElement(nil, "2", "third"),
	)
	raw := bsoncore.BuildDocumentFromElements(nil, bsoncore.AppendArrayElement(nil, "arr", arr))

	doc, err := Decode(raw)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	got := doc.Strings("arr")
	want := []string{"first", "second", "third", "eleventh"}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("member %d = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestEqualIgnoresFieldOrder(t *testing.T) {
	a := NewBuilder().Append("x", 1).Append("y", "two").
		AppendDocument("z", NewBuilder().Append("p", 1).Append("q", 2).Document()).
		Document()
	b := NewBuilder().
		AppendDocument("z", NewBuilder().Append("q", 2).Append("p", 1).Document()).
		Append("y", "two").Append("x", 1).
		Document()

	if !Equal(a, b) {
		t.Error("documents with reordered fields should be equal")
	}
	if string(a.Bytes()) == string(b.Bytes()) {
		t.Error("test expects differing encodings")
	}

	c := NewBuilder().Append("x", 1).Append("y", "three").Document()
	if Equal(a, c) {
		t.Error("documents with different values should differ")
	}

	arr1 := NewBuilder().AppendArray("a", []any{1, 2}).Document()
	arr2 := NewBuilder().AppendArray("a", []any{2, 1}).Document()
	if Equal(arr1, arr2) {
		t.Error("array order is significant")
	}
}

func TestMerge(t *testing.T) {
	base := NewBuilder().Append("_id", "a").Append("keep", 1).Append("change", "old").Document()
	patch := NewBuilder().Append("change", "new").Append("add", true).Document()

	merged := Merge(base, patch)

	if got := merged.Int("keep", 0); got != 1 {
		t.Errorf("keep = %d", got)
	}
	if got := merged.String("change", ""); got != "new" {
		t.Errorf("change = %q", got)
	}
	if !merged.Bool("add", false) {
		t.Error("add missing")
	}
	keys := merged.Keys()
	if len(keys) != 4 || keys[0] != "_id" || keys[3] != "add" {
		t.Errorf("keys = %v", keys)
	}
}

func TestProjectAndWithout(t *testing.T) {
	doc := NewBuilder().Append("a", 1).Append("b", 2).Append("c", 3).Document()

	if keys := Project(doc, "c", "a").Keys(); len(keys) != 2 || keys[0] != "a" || keys[1] != "c" {
		t.Errorf("project keys = %v", keys)
	}
	if keys := Without(doc, "b").Keys(); len(keys) != 2 || keys[1] != "c" {
		t.Errorf("without keys = %v", keys)
	}
}

func TestBuilderRejectsUnsupportedKinds(t *testing.T) {
	b := NewBuilder().Append("ok", 1).Append("bad", struct{}{})
	if b.Err() == nil {
		t.Fatal("expected error for unsupported kind")
	}
	if !b.Document().IsEmpty() {
		t.Error("failed builder should produce an empty document")
	}
}

func TestDecodeRejectsGarbage(t *testing.T) {
	if _, err := Decode([]byte{1, 2, 3}); err == nil {
		t.Error("expected error decoding garbage")
	}
}

func TestTree(t *testing.T) {
	t.Run("labelled entries become fields", func(t *testing.T) {
		tree := NewTree().Add("name", "mesh \"A\"").Add("count", 3)
		AddArray(tree, "ids", []int{1, 2})

		data, err := json.Marshal(tree)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		want := `{"name":"mesh \"A\"","count":3,"ids":[1,2]}`
		if string(data) != want {
			t.Errorf("got %s, want %s", data, want)
		}
	})

	t.Run("unlabelled entries become elements", func(t *testing.T) {
		tree := NewTree().Add("", "a").Add("", "b")
		data, err := json.Marshal(tree)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		if string(data) != `["a","b"]` {
			t.Errorf("got %s", data)
		}
	})

	t.Run("mixed entries fail", func(t *testing.T) {
		tree := NewTree().Add("", "a").Add("b", "c")
		if _, err := tree.MarshalJSON(); err != ErrMixedTree {
			t.Errorf("err = %v, want ErrMixedTree", err)
		}
	})

	t.Run("quote transform round trips", func(t *testing.T) {
		for _, s := range []string{"", "plain", `with "quotes"`, "line\nbreak"} {
			if got := UnquoteString(QuoteString(s)); got != s {
				t.Errorf("round trip of %q gave %q", s, got)
			}
		}
	})
}
