// Copyright (c) 2025 ToeiRei
// Ferry - pooled SSH command transport
// This source code is licensed under the MIT license found in the LICENSE file.

package transport

import (
	"fmt"

	"github.com/toeirei/ferry/internal/sshconn"
)

// executor is the slice of a connection the transport needs; it lets
// tests substitute a fake without a network.
type executor interface {
	Exec(command string) (*sshconn.ExecResult, error)
}

// connectionGetter resolves a config to a live connection, normally a
// *sshconn.Pool.
type connectionGetter func(cfg sshconn.Config) (executor, error)

// SSHTransport adapts a pooled SSH connection to the Transport
// contract. Each call resolves the endpoint through the pool, so a
// transport stays usable across reconnects.
type SSHTransport struct {
	cfg sshconn.Config
	get connectionGetter
}

// NewSSHTransport builds a Transport that executes commands on cfg's
// endpoint using connections from pool.
func NewSSHTransport(pool *sshconn.Pool, cfg sshconn.Config) *SSHTransport {
	return &SSHTransport{
		cfg: cfg,
		get: func(cfg sshconn.Config) (executor, error) { return pool.Get(cfg) },
	}
}

// Execute runs a literal command line on the remote host. When dir is
// non-empty the command is prefixed with a cd into the quoted
// directory, so it runs there or not at all.
func (t *SSHTransport) Execute(command string, dir string) (*Result, error) {
	if dir != "" {
		command = fmt.Sprintf("cd %s && %s", Quote(dir), command)
	}

	conn, err := t.get(t.cfg)
	if err != nil {
		return nil, err
	}
	res, err := conn.Exec(command)
	if err != nil {
		return nil, err
	}
	return &Result{
		ExitCode: res.ExitCode,
		Stdout:   res.Stdout,
		Stderr:   res.Stderr,
	}, nil
}

// ExecuteArgs quotes each argument, joins them with single spaces and
// delegates to Execute.
func (t *SSHTransport) ExecuteArgs(args []string, dir string) (*Result, error) {
	return t.Execute(QuoteAll(args), dir)
}
