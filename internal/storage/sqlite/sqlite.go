// Package sqlite is an embedded storage driver on modernc.org/sqlite.
//
// Each logical database is one SQLite file (or one in-memory database) and
// each collection one table holding encoded documents keyed by their _id.
// Accounts live in the admin database's system.users collection with bcrypt
// digests; roles in admin's system.roles. Roles are stored for provisioning
// but not enforced.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/golang/glog"
	"golang.org/x/crypto/bcrypt"

	"scenerepo/internal/storage"

	_ "modernc.org/sqlite"
)

// Memory keeps every database in memory for the life of the driver
const Memory = ":memory:"

// AdminDatabase holds users and roles
const AdminDatabase = "admin"

// Driver implements storage.Driver
type Driver struct {
	dir        string
	bcryptCost int

	mu     sync.Mutex
	dbs    map[string]*sql.DB
	closed bool
}

// Option configures a Driver
type Option func(*Driver)

// WithBcryptCost sets the cost used when hashing passwords
func WithBcryptCost(cost int) Option {
	return func(d *Driver) { d.bcryptCost = cost }
}

// New creates a driver storing databases under dir, or in memory when dir
// is Memory.
func New(dir string, opts ...Option) (*Driver, error) {
	if dir == "" {
		return nil, errors.New("sqlite driver needs a directory")
	}
	if dir != Memory {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create data directory: %w", err)
		}
	}
	d := &Driver{
		dir:        dir,
		bcryptCost: bcrypt.DefaultCost,
		dbs:        make(map[string]*sql.DB),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d, nil
}

// Name implements storage.Driver
func (d *Driver) Name() string { return "sqlite" }

// Dial implements storage.Driver
func (d *Driver) Dial(ctx context.Context) (storage.Conn, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil, storage.Classify(storage.ErrConnection, errors.New("sqlite driver closed"))
	}
	return &conn{d: d}, nil
}

// Close implements storage.Driver
func (d *Driver) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed = true
	var errs []error
	for name, db := range d.dbs {
		if err := db.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %s: %w", name, err))
		}
	}
	d.dbs = make(map[string]*sql.DB)
	return errors.Join(errs...)
}

// database returns the handle for name, opening it on first use. Unless
// create is set only databases that already exist are opened; a missing one
// yields a nil handle and no error.
func (d *Driver) database(name string, create bool) (*sql.DB, error) {
	if err := validName(name); err != nil {
		return nil, err
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil, storage.Classify(storage.ErrConnection, errors.New("sqlite driver closed"))
	}
	if db, ok := d.dbs[name]; ok {
		return db, nil
	}
	if !create && d.dir == Memory {
		return nil, nil
	}

	dsn := Memory
	if d.dir != Memory {
		path := filepath.Join(d.dir, name+".db")
		mode := "rwc"
		if !create {
			if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
				return nil, nil
			} else if err != nil {
				return nil, storage.Classify(storage.ErrConnection, err)
			}
			mode = "rw"
		}
		dsn = "file:" + path + "?mode=" + mode + "&_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, storage.Classify(storage.ErrConnection, fmt.Errorf("failed to open database %s: %w", name, err))
	}
	// In-memory databases live as long as their single connection
	if d.dir == Memory {
		db.SetMaxOpenConns(1)
		db.SetConnMaxLifetime(0)
		db.SetConnMaxIdleTime(0)
	}
	d.dbs[name] = db
	glog.V(1).Infof("Opened sqlite database %s", name)
	return db, nil
}

// databaseNames lists known databases: those opened and, for on-disk
// stores, every *.db file in the directory.
func (d *Driver) databaseNames() ([]string, error) {
	d.mu.Lock()
	seen := make(map[string]bool, len(d.dbs))
	for name := range d.dbs {
		seen[name] = true
	}
	d.mu.Unlock()

	if d.dir != Memory {
		matches, err := filepath.Glob(filepath.Join(d.dir, "*.db"))
		if err != nil {
			return nil, err
		}
		for _, m := range matches {
			seen[strings.TrimSuffix(filepath.Base(m), ".db")] = true
		}
	}

	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

func validName(name string) error {
	if name == "" {
		return errors.New("database name is empty")
	}
	if strings.ContainsAny(name, `/\.`+"\x00") {
		return fmt.Errorf("invalid database name %q", name)
	}
	return nil
}

// migrate creates the table backing collection
func migrate(ctx context.Context, db *sql.DB, collection string) error {
	table := quoteIdent(collection)
	schema := fmt.Sprintf(`
	CREATE TABLE IF NOT EXISTS %s (
		id BLOB PRIMARY KEY,
		shared_id BLOB,
		doc BLOB NOT NULL
	);

	CREATE INDEX IF NOT EXISTS %s ON %s(shared_id);
	`, table, quoteIdent("idx_"+collection+"_shared"), table)

	_, err := db.ExecContext(ctx, schema)
	return err
}

func tableExists(ctx context.Context, db *sql.DB, collection string) (bool, error) {
	var n int
	err := db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = ?`, collection).Scan(&n)
	return n > 0, err
}
