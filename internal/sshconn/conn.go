// Copyright (c) 2025 ToeiRei
// Ferry - pooled SSH command transport
// This source code is licensed under the MIT license found in the LICENSE file.

package sshconn

import (
	"bytes"
	"errors"
	"net"
	"strings"
	"sync/atomic"

	"github.com/toeirei/ferry/internal/logging"
	"github.com/toeirei/ferry/internal/sshkey"
	"golang.org/x/crypto/ssh"
)

// sshDial is the dial function used to establish connections. Tests
// override it to simulate handshakes without a network.
var sshDial = func(network, addr string, config *ssh.ClientConfig) (*ssh.Client, error) {
	return ssh.Dial(network, addr, config)
}

// HostKeyRecorder receives every host key presented during a handshake.
// Recording is purely observational: the callback cannot veto a key and
// has no influence on whether the connection succeeds.
type HostKeyRecorder interface {
	RecordHostKey(host string, port int, algorithm, key string)
}

// hostKeyRecorder is the process-wide recorder hook. Programs that want
// observed host keys persisted (e.g. the CLI's host log) register one at
// startup, before any connection is made.
var hostKeyRecorder HostKeyRecorder

// SetHostKeyRecorder installs r as the process-wide host key recorder.
// Passing nil disables recording.
func SetHostKeyRecorder(r HostKeyRecorder) {
	hostKeyRecorder = r
}

// Connection owns one authenticated SSH session to one endpoint.
// Child sessions for exec and interactive shells are opened on top of
// the shared multiplexed transport.
type Connection struct {
	client *ssh.Client
	cfg    Config

	// active flips to false when the underlying transport dies. A dead
	// connection is not removed from any pool proactively; staleness is
	// detected lazily on the next lookup.
	active atomic.Bool

	// hostKey is the key the server presented during the handshake,
	// in authorized_keys format.
	hostKey string
}

// Connect performs a full handshake against the endpoint described by
// cfg: it loads and parses the private key, offers it exactly once, and
// accepts whatever host key the server presents.
func Connect(cfg Config) (*Connection, error) {
	keyPath := cfg.KeyPath
	if keyPath == "" {
		keyPath = DefaultKeyPath()
	}

	key, err := sshkey.ParseFile(keyPath, cfg.Passphrase)
	if err != nil {
		// Key-material failures surface as connection failures so a bad
		// file never looks like a hang, but the underlying cause stays
		// reachable through errors.Is/As.
		return nil, &ConnectionError{Endpoint: cfg.PoolKey(), Err: err}
	}
	signer, err := key.Signer()
	if err != nil {
		return nil, &ConnectionError{Endpoint: cfg.PoolKey(), Err: err}
	}

	conn := &Connection{cfg: cfg}

	// One public-key attempt per connection attempt. After the first
	// offer the callback declines by returning no signers; there is no
	// agent, password, or multi-key fallback.
	attempted := false
	auth := ssh.PublicKeysCallback(func() ([]ssh.Signer, error) {
		if attempted {
			return nil, nil
		}
		attempted = true
		return []ssh.Signer{signer}, nil
	})

	clientConfig := &ssh.ClientConfig{
		User: cfg.User,
		Auth: []ssh.AuthMethod{auth},
		// TODO: trust-on-first-use host key verification. Until that
		// lands, every presented host key is accepted; observed keys are
		// handed to the recorder hook for the host log.
		HostKeyCallback: func(hostname string, remote net.Addr, pubKey ssh.PublicKey) error {
			conn.hostKey = strings.TrimSpace(string(ssh.MarshalAuthorizedKey(pubKey)))
			if hostKeyRecorder != nil {
				hostKeyRecorder.RecordHostKey(cfg.Host, cfg.Port, pubKey.Type(), conn.hostKey)
			}
			return nil
		},
		Timeout: cfg.connectTimeout(),
	}

	client, err := sshDial("tcp", cfg.Addr(), clientConfig)
	if err != nil {
		if strings.Contains(err.Error(), "unable to authenticate") {
			return nil, &ConnectionError{Endpoint: cfg.PoolKey(), Err: ErrAuthenticationFailed}
		}
		return nil, &ConnectionError{Endpoint: cfg.PoolKey(), Err: err}
	}

	conn.client = client
	conn.active.Store(true)
	go func() {
		// Wait returns when the transport dies, whether by Close or by
		// the peer disconnecting.
		_ = client.Wait()
		conn.active.Store(false)
	}()

	logging.Debugf("sshconn: connected to %s", cfg.PoolKey())
	return conn, nil
}

// IsActive reports whether the underlying transport is still usable.
func (c *Connection) IsActive() bool {
	return c.active.Load()
}

// HostKey returns the host key presented by the server during the
// handshake, in authorized_keys format.
func (c *Connection) HostKey() string {
	return c.hostKey
}

// Endpoint returns the pool key of the endpoint this connection serves.
func (c *Connection) Endpoint() string {
	return c.cfg.PoolKey()
}

// Close tears down the underlying transport. Closing an already dead
// connection is a no-op.
func (c *Connection) Close() {
	if c.client != nil {
		_ = c.client.Close()
	}
	c.active.Store(false)
}

// ExecResult is the outcome of one remote command execution. It is
// constructed exactly once, when the command's channel closes; errors
// short-circuit instead of producing a partial result.
type ExecResult struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

// exitCodeUnknown is reported when the channel closed without an
// explicit exit-status message. It means "unreported", not "success".
const exitCodeUnknown = -1

// Exec runs command on a fresh session channel and blocks until the
// channel closes. Stdout and stderr are buffered without a size cap for
// the life of the channel; bound the output on the remote side when
// running untrusted commands.
func (c *Connection) Exec(command string) (*ExecResult, error) {
	if !c.IsActive() {
		return nil, ErrNotConnected
	}

	session, err := c.client.NewSession()
	if err != nil {
		return nil, &ChannelError{Op: "open", Err: err}
	}
	defer func() { _ = session.Close() }()

	var stdout, stderr bytes.Buffer
	session.Stdout = &stdout
	session.Stderr = &stderr

	runErr := session.Run(command)
	result := &ExecResult{Stdout: stdout.String(), Stderr: stderr.String()}

	var exitErr *ssh.ExitError
	var missingErr *ssh.ExitMissingError
	switch {
	case runErr == nil:
		result.ExitCode = 0
	case errors.As(runErr, &exitErr):
		result.ExitCode = exitErr.ExitStatus()
	case errors.As(runErr, &missingErr):
		// Channel closed without reporting an exit status; deliver what
		// was buffered with the sentinel code.
		result.ExitCode = exitCodeUnknown
	default:
		return nil, &CommandError{Command: command, Err: runErr}
	}

	logging.Debugf("sshconn: exec on %s exited %d (%d stdout bytes, %d stderr bytes)",
		c.cfg.PoolKey(), result.ExitCode, len(result.Stdout), len(result.Stderr))
	return result, nil
}
