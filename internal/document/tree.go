package document

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
)

// ErrMixedTree is returned when a tree holds both labelled and unlabelled
// entries and so has no JSON rendering.
var ErrMixedTree = errors.New("tree mixes labelled and unlabelled entries")

// Tree is a nested, human-readable rendering of a document-like structure.
// Entries added with an empty label become array elements; labelled entries
// become keyed fields. Leaf values are stored already rendered: strings go
// through QuoteString so they print quoted, numbers and booleans do not.
type Tree struct {
	entries []treeEntry
}

type treeEntry struct {
	label string
	leaf  string
	child *Tree
}

// NewTree returns an empty tree.
func NewTree() *Tree {
	return &Tree{}
}

// Add appends a leaf. Supported kinds are strings, booleans, integers and
// floats; other values are rendered with %v and quoted.
func (t *Tree) Add(label string, value any) *Tree {
	t.entries = append(t.entries, treeEntry{label: label, leaf: renderLeaf(value)})
	return t
}

// AddTree appends a subtree.
func (t *Tree) AddTree(label string, child *Tree) *Tree {
	if child == nil {
		child = NewTree()
	}
	t.entries = append(t.entries, treeEntry{label: label, child: child})
	return t
}

// AddArray appends a subtree holding values as unlabelled elements.
func AddArray[T any](t *Tree, label string, values []T) *Tree {
	arr := NewTree()
	for _, v := range values {
		arr.Add("", v)
	}
	return t.AddTree(label, arr)
}

// Len returns the number of entries.
func (t *Tree) Len() int {
	return len(t.entries)
}

// MarshalJSON renders the tree. A tree with no entries renders as {}.
func (t *Tree) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	if err := t.write(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (t *Tree) write(buf *bytes.Buffer) error {
	if len(t.entries) == 0 {
		buf.WriteString("{}")
		return nil
	}
	labelled := t.entries[0].label != ""
	for _, e := range t.entries[1:] {
		if (e.label != "") != labelled {
			return ErrMixedTree
		}
	}

	open, closing := byte('['), byte(']')
	if labelled {
		open, closing = '{', '}'
	}
	buf.WriteByte(open)
	for i, e := range t.entries {
		if i > 0 {
			buf.WriteByte(',')
		}
		if labelled {
			buf.WriteString(QuoteString(e.label))
			buf.WriteByte(':')
		}
		if e.child != nil {
			if err := e.child.write(buf); err != nil {
				return err
			}
			continue
		}
		buf.WriteString(e.leaf)
	}
	buf.WriteByte(closing)
	return nil
}

// QuoteString is the string transform applied to every string leaf: the value
// is escaped and wrapped in double quotes.
func QuoteString(s string) string {
	data, err := json.Marshal(s)
	if err != nil {
		return strconv.Quote(s)
	}
	return string(data)
}

// UnquoteString reverses QuoteString. Values that are not quoted are
// returned unchanged.
func UnquoteString(s string) string {
	if len(s) < 2 || s[0] != '"' || s[len(s)-1] != '"' {
		return s
	}
	var out string
	if err := json.Unmarshal([]byte(s), &out); err != nil {
		return s[1 : len(s)-1]
	}
	return out
}

func renderLeaf(value any) string {
	switch v := value.(type) {
	case string:
		return QuoteString(v)
	case bool:
		return strconv.FormatBool(v)
	case int:
		return strconv.Itoa(v)
	case int32:
		return strconv.FormatInt(int64(v), 10)
	case int64:
		return strconv.FormatInt(v, 10)
	case uint32:
		return strconv.FormatUint(uint64(v), 10)
	case uint64:
		return strconv.FormatUint(v, 10)
	case float32:
		return strconv.FormatFloat(float64(v), 'g', -1, 32)
	case float64:
		return strconv.FormatFloat(v, 'g', -1, 64)
	case fmt.Stringer:
		return QuoteString(v.String())
	default:
		return QuoteString(fmt.Sprintf("%v", v))
	}
}
