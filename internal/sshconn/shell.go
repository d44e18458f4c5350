// Copyright (c) 2025 ToeiRei
// Ferry - pooled SSH command transport
// This source code is licensed under the MIT license found in the LICENSE file.

package sshconn

import (
	"io"
	"sync"
	"sync/atomic"

	"github.com/toeirei/ferry/internal/logging"
	"golang.org/x/crypto/ssh"
)

// shellTerm is the terminal type requested for interactive shells.
const shellTerm = "xterm-256color"

// Shell is a live handle over one interactive shell channel. It is
// owned by the caller once returned; Send, Resize and Close become
// silent no-ops as soon as the channel is no longer active. Callers
// learn about a dead shell through the onClose callback or IsActive,
// never synchronously from a dropped Send.
type Shell struct {
	session *ssh.Session
	stdin   io.WriteCloser

	active    atomic.Bool
	closeOnce sync.Once
	onClose   func()
}

// OpenShell opens a fresh channel, requests a PTY with the given
// character dimensions (pixel dimensions are always zero, terminal
// modes empty) and starts a shell on it. Inbound bytes from the remote
// are delivered to onData verbatim and in order, one chunk at a time,
// from a single goroutine. onClose fires exactly once when the channel
// becomes inactive.
//
// The handle is returned as soon as the shell request is issued; remote
// failures after that surface as an early close, not as an error here.
func (c *Connection) OpenShell(cols, rows int, onData func([]byte), onClose func()) (*Shell, error) {
	if !c.IsActive() {
		return nil, ErrNotConnected
	}

	session, err := c.client.NewSession()
	if err != nil {
		return nil, &ChannelError{Op: "open", Err: err}
	}

	stdin, err := session.StdinPipe()
	if err != nil {
		_ = session.Close()
		return nil, &ChannelError{Op: "stdin", Err: err}
	}
	stdout, err := session.StdoutPipe()
	if err != nil {
		_ = session.Close()
		return nil, &ChannelError{Op: "stdout", Err: err}
	}

	if err := session.RequestPty(shellTerm, rows, cols, ssh.TerminalModes{}); err != nil {
		_ = session.Close()
		return nil, &ChannelError{Op: "pty-req", Err: err}
	}
	if err := session.Shell(); err != nil {
		_ = session.Close()
		return nil, &ChannelError{Op: "shell", Err: err}
	}

	sh := &Shell{
		session: session,
		stdin:   stdin,
		onClose: onClose,
	}
	sh.active.Store(true)

	// Single pump goroutine: ordering across chunks is preserved and
	// onData never runs concurrently with itself.
	go func() {
		buf := make([]byte, 32*1024)
		for {
			n, err := stdout.Read(buf)
			if n > 0 && onData != nil {
				chunk := make([]byte, n)
				copy(chunk, buf[:n])
				onData(chunk)
			}
			if err != nil {
				sh.markClosed()
				return
			}
		}
	}()
	go func() {
		_ = session.Wait()
		sh.markClosed()
	}()

	logging.Debugf("sshconn: shell opened on %s (%dx%d)", c.cfg.PoolKey(), cols, rows)
	return sh, nil
}

// IsActive reports whether the shell channel is still usable.
func (s *Shell) IsActive() bool {
	return s.active.Load()
}

// Send writes raw bytes to the remote shell's stdin. Sending on an
// inactive shell drops the bytes silently.
func (s *Shell) Send(data []byte) {
	if !s.IsActive() {
		return
	}
	if _, err := s.stdin.Write(data); err != nil {
		s.markClosed()
	}
}

// Resize announces new character dimensions to the remote PTY. Pixel
// dimensions are always sent as zero. A resize on an inactive shell is
// a silent no-op and sends nothing on the wire.
func (s *Shell) Resize(cols, rows int) {
	if !s.IsActive() {
		return
	}
	if err := s.session.WindowChange(rows, cols); err != nil {
		s.markClosed()
	}
}

// Close tears the channel down. Closing an inactive shell is a no-op.
func (s *Shell) Close() {
	if !s.IsActive() {
		return
	}
	_ = s.session.Close()
	s.markClosed()
}

// markClosed flips the handle inactive and fires onClose exactly once,
// no matter how many paths race into it.
func (s *Shell) markClosed() {
	s.closeOnce.Do(func() {
		s.active.Store(false)
		_ = s.session.Close()
		if s.onClose != nil {
			s.onClose()
		}
	})
}
