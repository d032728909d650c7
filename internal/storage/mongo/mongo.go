// Package mongo is a storage driver for a MongoDB deployment.
//
// Each dialled connection owns a client limited to one socket. The mongo
// client carries a single credential, so a connection keeps one client per
// authenticated database and routes each operation to the client of its
// database, falling back to the first one dialled.
package mongo

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang/glog"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"scenerepo/internal/storage"
)

// authenticationFailed is the server error code for bad credentials
const authenticationFailed = 18

// Driver implements storage.Driver
type Driver struct {
	uri            string
	connectTimeout time.Duration
}

// Option configures a Driver
type Option func(*Driver)

// WithConnectTimeout bounds server selection and socket setup
func WithConnectTimeout(d time.Duration) Option {
	return func(drv *Driver) { drv.connectTimeout = d }
}

// New creates a driver for the deployment at uri, e.g.
// mongodb://localhost:27017. Credentials in the uri are ignored; the
// handler supplies them.
func New(uri string, opts ...Option) (*Driver, error) {
	if uri == "" {
		return nil, errors.New("mongo driver needs a uri")
	}
	d := &Driver{uri: uri, connectTimeout: 10 * time.Second}
	for _, opt := range opts {
		opt(d)
	}
	return d, nil
}

// Name implements storage.Driver
func (d *Driver) Name() string { return "mongo" }

// Close implements storage.Driver. Clients belong to connections, so there
// is nothing shared to release.
func (d *Driver) Close() error { return nil }

// Dial implements storage.Driver
func (d *Driver) Dial(ctx context.Context) (storage.Conn, error) {
	client, err := d.connect(ctx, nil)
	if err != nil {
		return nil, err
	}
	return &conn{d: d, base: client, clients: make(map[string]*mongo.Client)}, nil
}

func (d *Driver) connect(ctx context.Context, cred *storage.Credentials) (*mongo.Client, error) {
	opts := options.Client().
		ApplyURI(d.uri).
		SetMaxPoolSize(1).
		SetConnectTimeout(d.connectTimeout).
		SetServerSelectionTimeout(d.connectTimeout)
	if cred != nil {
		opts.SetAuth(options.Credential{
			AuthSource: cred.Database,
			Username:   cred.Username,
			Password:   cred.Password,
		})
	}

	client, err := mongo.Connect(ctx, opts)
	if err != nil {
		return nil, classify(err)
	}
	// Connect is lazy; ping to surface unreachable servers and bad
	// credentials now
	if err := client.Ping(ctx, readpref.PrimaryPreferred()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, classify(err)
	}
	glog.V(2).Infof("Connected to %s", redact(d.uri))
	return client, nil
}

// classify maps driver errors onto the storage failure classes, keeping
// the server's message
func classify(err error) error {
	if err == nil {
		return nil
	}
	switch {
	case mongo.IsDuplicateKeyError(err):
		return storage.Classify(storage.ErrDuplicateKey, err)
	case isAuthError(err):
		return storage.Classify(storage.ErrAuthFailed, err)
	case mongo.IsNetworkError(err), mongo.IsTimeout(err),
		errors.Is(err, mongo.ErrClientDisconnected):
		return storage.Classify(storage.ErrConnection, err)
	}
	return err
}

func isAuthError(err error) bool {
	var cmdErr mongo.CommandError
	if errors.As(err, &cmdErr) && cmdErr.Code == authenticationFailed {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "AuthenticationFailed") || strings.Contains(msg, "auth error")
}

// redact strips userinfo from uri for logging
func redact(uri string) string {
	scheme, rest, ok := strings.Cut(uri, "://")
	if !ok {
		return uri
	}
	if at := strings.LastIndex(rest, "@"); at >= 0 {
		rest = rest[at+1:]
	}
	return fmt.Sprintf("%s://%s", scheme, rest)
}
