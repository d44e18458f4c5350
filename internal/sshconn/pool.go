// Copyright (c) 2025 ToeiRei
// Ferry - pooled SSH command transport
// This source code is licensed under the MIT license found in the LICENSE file.

package sshconn

import (
	"fmt"
	"strings"
	"sync"

	"github.com/toeirei/ferry/internal/i18n"
	"github.com/toeirei/ferry/internal/logging"
)

// connectFn is the handshake function used by the pool. Tests override
// it to count handshakes or to hand back fakes.
var connectFn = Connect

// Pool caches one live Connection per endpoint, keyed by the config's
// pool key. All map access is serialized through one mutex, which is
// held across handshakes so two concurrent lookups for the same
// endpoint can never race into parallel handshakes and leak one.
type Pool struct {
	mu    sync.Mutex
	conns map[string]*Connection
}

// NewPool returns an empty connection pool.
func NewPool() *Pool {
	return &Pool{conns: make(map[string]*Connection)}
}

// Get returns the cached connection for cfg's endpoint, or performs a
// fresh handshake when there is none or the cached one has gone stale.
// A stale entry is dropped and closed before reconnecting; a healthy
// entry is returned untouched.
func (p *Pool) Get(cfg Config) (*Connection, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	key := cfg.PoolKey()
	if conn, ok := p.conns[key]; ok {
		if conn.IsActive() {
			return conn, nil
		}
		logging.Debugf("sshconn: dropping stale connection to %s", key)
		conn.Close()
		delete(p.conns, key)
	}

	conn, err := connectFn(cfg)
	if err != nil {
		return nil, err
	}
	p.conns[key] = conn
	return conn, nil
}

// Disconnect removes and closes the connection for cfg's endpoint, if
// one is cached. A miss is not an error.
func (p *Pool) Disconnect(cfg Config) {
	p.mu.Lock()
	defer p.mu.Unlock()

	key := cfg.PoolKey()
	if conn, ok := p.conns[key]; ok {
		conn.Close()
		delete(p.conns, key)
		logging.Debugf("sshconn: disconnected %s", key)
	}
}

// DisconnectAll closes and clears every cached connection.
func (p *Pool) DisconnectAll() {
	p.mu.Lock()
	defer p.mu.Unlock()

	for key, conn := range p.conns {
		conn.Close()
		delete(p.conns, key)
	}
	logging.Debugf("sshconn: disconnected all endpoints")
}

// Size returns the number of cached connections, live or stale.
func (p *Pool) Size() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.conns)
}

// TestConnection is a diagnostic check meant for operator-facing
// output: it obtains a connection through the normal pooled path, runs
// a trivial echo, and reports nil only if the remote answered exactly
// "ok". Every failure mode comes back as a human-readable error rather
// than a typed one.
func (p *Pool) TestConnection(cfg Config) error {
	conn, err := p.Get(cfg)
	if err != nil {
		return fmt.Errorf(i18n.T("sshconn.test_error_connect"), cfg.PoolKey(), err)
	}

	result, err := conn.Exec("echo ok")
	if err != nil {
		return fmt.Errorf(i18n.T("sshconn.test_error_exec"), cfg.PoolKey(), err)
	}
	if got := strings.TrimSpace(result.Stdout); got != "ok" {
		return fmt.Errorf(i18n.T("sshconn.test_error_unexpected_output"), got)
	}
	return nil
}
