// Copyright (c) 2025 ToeiRei
// Ferry - pooled SSH command transport
// This source code is licensed under the MIT license found in the LICENSE file.

package sshconn

import (
	"errors"
	"fmt"
)

var (
	// ErrAuthenticationFailed indicates the remote host rejected the
	// offered public key.
	ErrAuthenticationFailed = errors.New("ssh authentication failed")

	// ErrNotConnected indicates an operation was attempted on a
	// connection that is no longer active.
	ErrNotConnected = errors.New("not connected")

	// ErrShellSessionClosed indicates the interactive shell channel has
	// gone away.
	ErrShellSessionClosed = errors.New("shell session closed")

	// ErrNoKeyFile indicates no usable private key file was found during
	// default key discovery.
	ErrNoKeyFile = errors.New("no SSH key file found")
)

// ConnectionError wraps a failure to reach or authenticate to a host.
// It keeps connection-level failures distinguishable from command-level
// and key-material failures, since each needs a different fix from the
// operator.
type ConnectionError struct {
	Endpoint string
	Err      error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("connection to %s failed: %v", e.Endpoint, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// ChannelError wraps a protocol-level failure on an open channel
// (session open, exec request, PTY request, shell start).
type ChannelError struct {
	Op  string
	Err error
}

func (e *ChannelError) Error() string {
	return fmt.Sprintf("ssh channel %s failed: %v", e.Op, e.Err)
}

func (e *ChannelError) Unwrap() error { return e.Err }

// CommandError wraps a failure of the remote command invocation itself,
// as opposed to the connection that carried it.
type CommandError struct {
	Command string
	Err     error
}

func (e *CommandError) Error() string {
	return fmt.Sprintf("remote command %q failed: %v", e.Command, e.Err)
}

func (e *CommandError) Unwrap() error { return e.Err }
