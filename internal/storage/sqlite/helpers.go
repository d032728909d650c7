package sqlite

import (
	"bytes"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"go.mongodb.org/mongo-driver/bson/bsontype"
	msqlite "modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"scenerepo/internal/document"
	"scenerepo/internal/storage"
)

// ============================================================================
// Keys
// ============================================================================

// valueKey encodes a document value as a comparable key: the type byte
// followed by the raw value bytes.
func valueKey(v document.Value) []byte {
	raw := v.Raw()
	key := make([]byte, 0, len(raw.Value)+1)
	key = append(key, byte(raw.Type))
	return append(key, raw.Value...)
}

// idKey returns the primary key for doc
func idKey(doc document.Document) ([]byte, error) {
	v, ok := doc.Lookup("_id")
	if !ok {
		return nil, errors.New("document has no _id")
	}
	return valueKey(v), nil
}

// sharedKey returns the shared_id column value, nil when absent
func sharedKey(doc document.Document) []byte {
	v, ok := doc.Lookup("shared_id")
	if !ok {
		return nil
	}
	return valueKey(v)
}

// stringKey is the key of a string _id
func stringKey(s string) []byte {
	v, _ := document.NewBuilder().Append("_id", s).Document().Lookup("_id")
	return valueKey(v)
}

func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// ============================================================================
// Row Scanner
// ============================================================================

// docRow holds the columns of a collection query for scanning
type docRow struct {
	ID       []byte
	SharedID []byte
	Doc      []byte
}

// scanArgs returns pointers matching docColumns: id, shared_id, doc
func (r *docRow) scanArgs() []any {
	return []any{&r.ID, &r.SharedID, &r.Doc}
}

// toDocument decodes the stored document
func (r *docRow) toDocument() (document.Document, error) {
	doc, err := document.Decode(r.Doc)
	if err != nil {
		return document.Empty(), fmt.Errorf("failed to decode stored document: %w", err)
	}
	return doc, nil
}

const docColumns = `id, shared_id, doc`

// ============================================================================
// Ordering
// ============================================================================

// compareValues orders two field values. Missing values sort first, then
// numbers, strings, datetimes and finally everything else by raw bytes.
func compareValues(a, b document.Value, aok, bok bool) int {
	switch {
	case !aok && !bok:
		return 0
	case !aok:
		return -1
	case !bok:
		return 1
	}
	ra, rb := rank(a.Kind()), rank(b.Kind())
	if ra != rb {
		return ra - rb
	}
	switch ra {
	case 0:
		return compareFloat(a.Float64(0), b.Float64(0))
	case 1:
		return strings.Compare(a.String(""), b.String(""))
	case 2:
		ta, tb := a.Raw().DateTime(), b.Raw().DateTime()
		switch {
		case ta < tb:
			return -1
		case ta > tb:
			return 1
		}
		return 0
	}
	return bytes.Compare(a.Raw().Value, b.Raw().Value)
}

func rank(t bsontype.Type) int {
	switch t {
	case bsontype.Double, bsontype.Int32, bsontype.Int64:
		return 0
	case bsontype.String:
		return 1
	case bsontype.DateTime:
		return 2
	}
	return 3
}

func compareFloat(a, b float64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

// ============================================================================
// Error Classification
// ============================================================================

// classify tags sqlite errors with storage failure classes
func classify(err error) error {
	if err == nil {
		return nil
	}
	var serr *msqlite.Error
	if errors.As(err, &serr) {
		switch serr.Code() {
		case sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY, sqlite3.SQLITE_CONSTRAINT_UNIQUE:
			return storage.Classify(storage.ErrDuplicateKey, err)
		}
	}
	if strings.Contains(err.Error(), "UNIQUE constraint failed") {
		return storage.Classify(storage.ErrDuplicateKey, err)
	}
	if errors.Is(err, sql.ErrConnDone) || strings.Contains(err.Error(), "database is closed") {
		return storage.Classify(storage.ErrConnection, err)
	}
	return err
}
