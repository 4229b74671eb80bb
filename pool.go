package skyhttp

import (
	"context"
	"sync"
)

// DefaultMaxConnections is the idle pool capacity when none is configured.
const DefaultMaxConnections = 10

// pooledConn pairs an open Conn with the address it was opened against.
type pooledConn struct {
	conn Conn
	addr Address
}

// ConnectionPool caches idle transport connections. One mutex guards a single
// idle list shared by all hosts: the capacity is global, not per host, so a
// noisy host can occupy every idle slot and force other hosts to dial fresh
// connections. Acquire still matches by address, never handing an idle
// connection to the wrong host.
type ConnectionPool struct {
	mu        sync.Mutex
	transport Transport
	idle      []*pooledConn
	capacity  int
}

// NewConnectionPool creates a pool that opens connections via transport and
// retains at most capacity idle connections.
func NewConnectionPool(transport Transport, capacity int) *ConnectionPool {
	if capacity <= 0 {
		capacity = DefaultMaxConnections
	}
	return &ConnectionPool{
		transport: transport,
		capacity:  capacity,
	}
}

// Acquire returns an idle connection for addr if one exists, otherwise opens
// a new one. An open failure is terminal for the attempt; callers surface it
// as a connection error, never a retry.
func (p *ConnectionPool) Acquire(ctx context.Context, addr Address) (*pooledConn, error) {
	p.mu.Lock()
	for i, pc := range p.idle {
		if pc.addr == addr {
			p.idle = append(p.idle[:i], p.idle[i+1:]...)
			p.mu.Unlock()
			return pc, nil
		}
	}
	p.mu.Unlock()

	conn, err := p.transport.Open(ctx, addr)
	if err != nil {
		return nil, err
	}
	return &pooledConn{conn: conn, addr: addr}, nil
}

// Release returns a connection to the idle set, or closes it immediately when
// the idle set is already at capacity.
func (p *ConnectionPool) Release(pc *pooledConn) {
	if pc == nil {
		return
	}

	p.mu.Lock()
	if len(p.idle) < p.capacity {
		p.idle = append(p.idle, pc)
		p.mu.Unlock()
		return
	}
	p.mu.Unlock()

	_ = pc.conn.Close()
}

// Discard closes a connection that must not be reused (I/O error, server
// requested close, keep-alive disabled).
func (p *ConnectionPool) Discard(pc *pooledConn) {
	if pc == nil {
		return
	}
	_ = pc.conn.Close()
}

// IdleCount returns the current number of idle connections.
func (p *ConnectionPool) IdleCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.idle)
}

// CloseIdle closes and drops every idle connection. In-flight connections are
// untouched; their owners close or release them on completion.
func (p *ConnectionPool) CloseIdle() {
	p.mu.Lock()
	idle := p.idle
	p.idle = nil
	p.mu.Unlock()

	for _, pc := range idle {
		_ = pc.conn.Close()
	}
}
