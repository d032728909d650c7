package storage

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/golang/glog"
)

// DefaultPoolSize is used when Config.PoolSize is not positive
const DefaultPoolSize = 4

// Config describes how a handler reaches the backing store
type Config struct {
	// Database holds the initial credentials, when Username is set
	Database string
	Username string
	Password string
	Digested bool
	// PoolSize bounds the number of simultaneous connections
	PoolSize int
	// Timeout bounds each operation when positive
	Timeout time.Duration
}

// Handler mediates all access to the backing store
type Handler struct {
	driver  Driver
	pool    *pool
	timeout time.Duration

	credMu  sync.RWMutex
	creds   map[string]cachedCredentials
	credGen uint64
}

// cachedCredentials is the credential registered for one database. gen
// changes whenever the credential does, so connections that authenticated
// with an older one authenticate again.
type cachedCredentials struct {
	Credentials
	gen uint64
}

// Open creates a handler over driver and verifies that a connection can be
// established with the configured credentials.
func Open(ctx context.Context, cfg Config, driver Driver) (*Handler, error) {
	size := cfg.PoolSize
	if size <= 0 {
		size = DefaultPoolSize
	}
	h := &Handler{
		driver:  driver,
		pool:    newPool(driver, size),
		timeout: cfg.Timeout,
		creds:   make(map[string]cachedCredentials),
	}

	if cfg.Username != "" {
		h.remember(Credentials{
			Database: cfg.Database,
			Username: cfg.Username,
			Password: cfg.Password,
			Digested: cfg.Digested,
		})
	}

	if err := h.with(ctx, "open", cfg.Database, "", func(ctx context.Context, c Conn) error {
		return c.Ping(ctx)
	}); err != nil {
		h.pool.close()
		return nil, err
	}

	glog.Infof("Storage handler ready: driver=%s pool=%d", driver.Name(), size)
	return h, nil
}

// Close releases every idle connection and the driver
func (h *Handler) Close() error {
	h.pool.close()
	return h.driver.Close()
}

// Driver returns the name of the underlying driver
func (h *Handler) Driver() string {
	return h.driver.Name()
}

// Authenticate verifies cred on a pooled connection and caches it. Every
// connection authenticates against all cached databases before use, and
// again for a database whose credentials have been replaced.
func (h *Handler) Authenticate(ctx context.Context, cred Credentials) error {
	pc, err := h.pool.acquire(ctx)
	if err != nil {
		return &Error{Op: "authenticate", Database: cred.Database, Err: err}
	}
	err = pc.Authenticate(ctx, cred)
	if err == nil {
		pc.authed[cred.Database] = h.remember(cred)
	}
	h.pool.release(pc, isBroken(err))
	if err != nil {
		return &Error{Op: "authenticate", Database: cred.Database, Err: err}
	}

	glog.V(1).Infof("Cached credentials for database %s", cred.Database)
	return nil
}

// remember caches cred and returns its generation
func (h *Handler) remember(cred Credentials) uint64 {
	h.credMu.Lock()
	defer h.credMu.Unlock()
	if cached, ok := h.creds[cred.Database]; ok && cached.Credentials == cred {
		return cached.gen
	}
	h.credGen++
	h.creds[cred.Database] = cachedCredentials{Credentials: cred, gen: h.credGen}
	return h.credGen
}

func (h *Handler) cachedCredentials() []cachedCredentials {
	h.credMu.RLock()
	defer h.credMu.RUnlock()
	out := make([]cachedCredentials, 0, len(h.creds))
	for _, c := range h.creds {
		out = append(out, c)
	}
	return out
}

// with borrows a connection, authenticates it against every cached database
// it has not seen yet, and runs fn. The connection is released whatever the
// outcome and discarded if fn reports a transport failure.
func (h *Handler) with(ctx context.Context, op, database, collection string, fn func(context.Context, Conn) error) error {
	if h.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.timeout)
		defer cancel()
	}

	pc, err := h.pool.acquire(ctx)
	if err != nil {
		return &Error{Op: op, Database: database, Collection: collection, Err: err}
	}

	err = h.authenticate(ctx, pc)
	if err == nil {
		err = fn(ctx, pc.Conn)
	}
	h.pool.release(pc, isBroken(err))

	if err != nil {
		var serr *Error
		if errors.As(err, &serr) {
			return err
		}
		return &Error{Op: op, Database: database, Collection: collection, Err: err}
	}
	return nil
}

func (h *Handler) authenticate(ctx context.Context, pc *pooledConn) error {
	for _, cred := range h.cachedCredentials() {
		if pc.authed[cred.Database] == cred.gen {
			continue
		}
		if err := pc.Authenticate(ctx, cred.Credentials); err != nil {
			return fmt.Errorf("authenticate on %s: %w", cred.Database, err)
		}
		pc.authed[cred.Database] = cred.gen
	}
	return nil
}
