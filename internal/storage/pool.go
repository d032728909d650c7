package storage

import (
	"context"
	"sync"

	"github.com/golang/glog"
	"golang.org/x/sync/semaphore"
)

// pooledConn remembers the credential generation each database was
// authenticated with on this connection
type pooledConn struct {
	Conn
	authed map[string]uint64
}

// pool bounds the number of live connections. Idle connections are reused
// last-in first-out.
type pool struct {
	driver Driver
	sem    *semaphore.Weighted

	mu     sync.Mutex
	idle   []*pooledConn
	closed bool
}

func newPool(driver Driver, size int) *pool {
	return &pool{
		driver: driver,
		sem:    semaphore.NewWeighted(int64(size)),
	}
}

// acquire blocks until a connection is free or ctx is done
func (p *pool) acquire(ctx context.Context) (*pooledConn, error) {
	if err := p.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		p.sem.Release(1)
		return nil, ErrClosed
	}
	if n := len(p.idle); n > 0 {
		pc := p.idle[n-1]
		p.idle = p.idle[:n-1]
		p.mu.Unlock()
		return pc, nil
	}
	p.mu.Unlock()

	conn, err := p.driver.Dial(ctx)
	if err != nil {
		p.sem.Release(1)
		return nil, err
	}
	glog.V(2).Infof("Dialed new %s connection", p.driver.Name())
	return &pooledConn{Conn: conn, authed: make(map[string]uint64)}, nil
}

// release returns pc to the pool, or closes it when it is broken or the
// pool has been closed.
func (p *pool) release(pc *pooledConn, broken bool) {
	defer p.sem.Release(1)

	p.mu.Lock()
	if broken || p.closed {
		p.mu.Unlock()
		if broken {
			glog.Warningf("Discarding broken %s connection", p.driver.Name())
		}
		if err := pc.Close(); err != nil {
			glog.V(1).Infof("Failed to close connection: %v", err)
		}
		return
	}
	p.idle = append(p.idle, pc)
	p.mu.Unlock()
}

// close shuts idle connections. Borrowed connections are closed on release.
func (p *pool) close() {
	p.mu.Lock()
	idle := p.idle
	p.idle = nil
	p.closed = true
	p.mu.Unlock()

	for _, pc := range idle {
		if err := pc.Close(); err != nil {
			glog.V(1).Infof("Failed to close connection: %v", err)
		}
	}
}

func (p *pool) idleCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.idle)
}
