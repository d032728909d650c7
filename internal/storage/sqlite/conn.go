package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"slices"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"scenerepo/internal/acl"
	"scenerepo/internal/document"
	"scenerepo/internal/storage"
)

const (
	usersCollection = "system.users"
	rolesCollection = "system.roles"
)

// conn implements storage.Conn. SQLite handles are shared by all conns of
// a driver; a conn only tracks its own lifecycle.
type conn struct {
	d      *Driver
	closed bool
}

// db returns the handle for name. Reads pass create=false and get a nil
// handle for a database nobody has written to.
func (c *conn) db(name string, create bool) (*sql.DB, error) {
	if c.closed {
		return nil, storage.Classify(storage.ErrConnection, errors.New("connection closed"))
	}
	return c.d.database(name, create)
}

// Ping implements storage.Conn
func (c *conn) Ping(ctx context.Context) error {
	db, err := c.db(AdminDatabase, true)
	if err != nil {
		return err
	}
	if err := db.PingContext(ctx); err != nil {
		return storage.Classify(storage.ErrConnection, err)
	}
	return nil
}

// Close implements storage.Conn
func (c *conn) Close() error {
	c.closed = true
	return nil
}

// Authenticate checks cred against the stored bcrypt digest
func (c *conn) Authenticate(ctx context.Context, cred storage.Credentials) error {
	doc, found, err := c.findByKey(ctx, AdminDatabase, usersCollection, stringKey(userID(cred.Database, cred.Username)))
	if err != nil {
		return err
	}
	if !found {
		return storage.Classify(storage.ErrAuthFailed, fmt.Errorf("user %s not found on %s", cred.Username, cred.Database))
	}
	hash := doc.Document("credentials").String("bcrypt", "")
	if cred.Digested {
		if cred.Password != hash {
			return storage.Classify(storage.ErrAuthFailed, fmt.Errorf("digest mismatch for user %s", cred.Username))
		}
		return nil
	}
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(cred.Password)); err != nil {
		return storage.Classify(storage.ErrAuthFailed, fmt.Errorf("user %s on %s: %w", cred.Username, cred.Database, err))
	}
	return nil
}

func userID(database, username string) string {
	return database + "." + username
}

// ListDatabases implements storage.Conn
func (c *conn) ListDatabases(ctx context.Context) ([]string, error) {
	if c.closed {
		return nil, storage.Classify(storage.ErrConnection, errors.New("connection closed"))
	}
	return c.d.databaseNames()
}

// ListCollections implements storage.Conn
func (c *conn) ListCollections(ctx context.Context, database string) ([]string, error) {
	db, err := c.db(database, false)
	if err != nil || db == nil {
		return nil, err
	}
	rows, err := db.QueryContext(ctx, `
		SELECT name FROM sqlite_master
		WHERE type = 'table' AND name NOT LIKE 'sqlite_%'
		ORDER BY name
	`)
	if err != nil {
		return nil, classify(err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, classify(err)
		}
		names = append(names, name)
	}
	return names, classify(rows.Err())
}

// Insert implements storage.Conn
func (c *conn) Insert(ctx context.Context, database, collection string, doc document.Document) error {
	db, err := c.db(database, true)
	if err != nil {
		return err
	}
	id, err := idKey(doc)
	if err != nil {
		return err
	}
	if err := migrate(ctx, db, collection); err != nil {
		return classify(err)
	}
	_, err = db.ExecContext(ctx,
		fmt.Sprintf(`INSERT INTO %s (%s) VALUES (?, ?, ?)`, quoteIdent(collection), docColumns),
		id, sharedKey(doc), doc.Bytes())
	return classify(err)
}

// Upsert implements storage.Conn
func (c *conn) Upsert(ctx context.Context, database, collection string, doc document.Document, overwrite bool) error {
	db, err := c.db(database, true)
	if err != nil {
		return err
	}
	id, err := idKey(doc)
	if err != nil {
		return err
	}
	if err := migrate(ctx, db, collection); err != nil {
		return classify(err)
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return classify(err)
	}
	defer tx.Rollback()

	table := quoteIdent(collection)
	if !overwrite {
		var row docRow
		err := tx.QueryRowContext(ctx,
			fmt.Sprintf(`SELECT %s FROM %s WHERE id = ?`, docColumns, table), id).Scan(row.scanArgs()...)
		switch {
		case errors.Is(err, sql.ErrNoRows):
		case err != nil:
			return classify(err)
		default:
			existing, err := row.toDocument()
			if err != nil {
				return err
			}
			doc = document.Merge(existing, doc)
		}
	}

	if _, err := tx.ExecContext(ctx, fmt.Sprintf(`
		INSERT INTO %s (%s) VALUES (?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			shared_id = excluded.shared_id,
			doc = excluded.doc
	`, table, docColumns), id, sharedKey(doc), doc.Bytes()); err != nil {
		return classify(err)
	}
	return classify(tx.Commit())
}

// Find implements storage.Conn
func (c *conn) Find(ctx context.Context, database, collection string, q storage.Query) ([]document.Document, error) {
	db, err := c.db(database, false)
	if err != nil || db == nil {
		return nil, err
	}
	exists, err := tableExists(ctx, db, collection)
	if err != nil {
		return nil, classify(err)
	}
	if !exists {
		return nil, nil
	}

	var (
		where []string
		args  []any
	)
	if len(q.UniqueIDs) > 0 {
		marks := make([]string, len(q.UniqueIDs))
		for i, id := range q.UniqueIDs {
			marks[i] = "?"
			v, _ := document.NewBuilder().AppendUUID("_id", id).Document().Lookup("_id")
			args = append(args, valueKey(v))
		}
		where = append(where, "id IN ("+strings.Join(marks, ", ")+")")
	}
	if q.SharedID != nil {
		v, _ := document.NewBuilder().AppendUUID("shared_id", *q.SharedID).Document().Lookup("shared_id")
		where = append(where, "shared_id = ?")
		args = append(args, valueKey(v))
	}

	query := fmt.Sprintf(`SELECT %s FROM %s`, docColumns, quoteIdent(collection))
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, classify(err)
	}
	defer rows.Close()

	var docs []document.Document
	for rows.Next() {
		var row docRow
		if err := rows.Scan(row.scanArgs()...); err != nil {
			return nil, classify(err)
		}
		doc, err := row.toDocument()
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, classify(err)
	}

	if q.SortField != "" {
		slices.SortStableFunc(docs, func(a, b document.Document) int {
			va, aok := a.Lookup(q.SortField)
			vb, bok := b.Lookup(q.SortField)
			cmp := compareValues(va, vb, aok, bok)
			if q.Descending {
				return -cmp
			}
			return cmp
		})
	}
	if q.Limit > 0 && len(docs) > q.Limit {
		docs = docs[:q.Limit]
	}
	if len(q.Fields) > 0 {
		for i := range docs {
			docs[i] = document.Project(docs[i], q.Fields...)
		}
	}
	return docs, nil
}

func (c *conn) findByKey(ctx context.Context, database, collection string, key []byte) (document.Document, bool, error) {
	db, err := c.db(database, false)
	if err != nil || db == nil {
		return document.Empty(), false, err
	}
	exists, err := tableExists(ctx, db, collection)
	if err != nil || !exists {
		return document.Empty(), false, classify(err)
	}
	var row docRow
	err = db.QueryRowContext(ctx,
		fmt.Sprintf(`SELECT %s FROM %s WHERE id = ?`, docColumns, quoteIdent(collection)), key).Scan(row.scanArgs()...)
	if errors.Is(err, sql.ErrNoRows) {
		return document.Empty(), false, nil
	}
	if err != nil {
		return document.Empty(), false, classify(err)
	}
	doc, err := row.toDocument()
	return doc, err == nil, err
}

// CreateUser stores the account with a bcrypt digest of its password
func (c *conn) CreateUser(ctx context.Context, database string, user storage.User) error {
	if user.Username == "" {
		return errors.New("user name is empty")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(user.Password), c.d.bcryptCost)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}
	roles := make([]document.Document, len(user.Roles))
	for i, r := range user.Roles {
		roles[i] = document.NewBuilder().Append("role", r.Role).Append("db", r.Database).Document()
	}
	b := document.NewBuilder().
		Append("_id", userID(database, user.Username)).
		Append("user", user.Username).
		Append("db", database).
		AppendDocument("credentials", document.NewBuilder().Append("bcrypt", string(hash)).Document()).
		Append("roles", roles)
	doc := b.Document()
	if err := b.Err(); err != nil {
		return err
	}
	return c.Insert(ctx, AdminDatabase, usersCollection, doc)
}

// UpsertRole replaces the stored role
func (c *conn) UpsertRole(ctx context.Context, role acl.Role) error {
	doc, err := role.Document()
	if err != nil {
		return err
	}
	doc = document.Merge(document.NewBuilder().Append("_id", role.ID()).Document(), doc)
	return c.Upsert(ctx, AdminDatabase, rolesCollection, doc, true)
}

// FindRole implements storage.Conn
func (c *conn) FindRole(ctx context.Context, database, name string) (acl.Role, error) {
	role := acl.Role{Name: name, Database: database}
	doc, found, err := c.findByKey(ctx, AdminDatabase, rolesCollection, stringKey(role.ID()))
	if err != nil {
		return acl.Role{}, err
	}
	if !found {
		return acl.Role{}, storage.NotFound("role " + role.ID())
	}
	return acl.RoleFromDocument(doc), nil
}
