// Copyright (c) 2025 ToeiRei
// Ferry - pooled SSH command transport
// This source code is licensed under the MIT license found in the LICENSE file.

package sshconn

import (
	"bytes"
	"crypto/ed25519"
	"crypto/rand"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/pkg/sftp"
	"github.com/toeirei/ferry/internal/sshkey"
	"golang.org/x/crypto/ssh"
)

// testCommand is a canned response for one exec command line.
type testCommand struct {
	stdout   string
	stderr   string
	exitCode int
	// omitExit closes the channel without sending exit-status, which
	// clients must report as the unknown-exit sentinel.
	omitExit bool
}

// testServer is a minimal in-process SSH server: public-key auth
// against a single authorized key, canned exec replies, and an echoing
// PTY shell. Just enough protocol to exercise the client side for real.
type testServer struct {
	t        *testing.T
	listener net.Listener
	config   *ssh.ServerConfig
	commands map[string]testCommand

	// handshakes counts successful authentications, so tests can prove
	// the pool reuses connections instead of redialing.
	handshakes atomic.Int32

	// resizes receives {cols, rows} for every window-change request.
	resizes chan [2]uint32

	mu    sync.Mutex
	conns []net.Conn
}

// dropAllConns severs every accepted transport from the server side,
// simulating a peer disconnect.
func (s *testServer) dropAllConns() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.conns {
		_ = c.Close()
	}
	s.conns = nil
}

func newTestServer(t *testing.T, authorized ssh.PublicKey, commands map[string]testCommand) *testServer {
	t.Helper()

	_, hostKey, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("failed to generate host key: %v", err)
	}
	hostSigner, err := ssh.NewSignerFromKey(hostKey)
	if err != nil {
		t.Fatalf("failed to build host signer: %v", err)
	}

	s := &testServer{
		t:        t,
		commands: commands,
		resizes:  make(chan [2]uint32, 16),
	}
	s.config = &ssh.ServerConfig{
		PublicKeyCallback: func(conn ssh.ConnMetadata, key ssh.PublicKey) (*ssh.Permissions, error) {
			if bytes.Equal(key.Marshal(), authorized.Marshal()) {
				return nil, nil
			}
			return nil, fmt.Errorf("unknown public key for %q", conn.User())
		},
	}
	s.config.AddHostKey(hostSigner)

	s.listener, err = net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("failed to listen: %v", err)
	}
	t.Cleanup(func() { _ = s.listener.Close() })

	go s.serve()
	return s
}

// testKeyFile writes a fresh Ed25519 private key under dir and returns
// its path together with the matching public key, which tests hand to
// the server as the authorized key.
func testKeyFile(t *testing.T, dir string) (string, ssh.PublicKey) {
	t.Helper()
	pub, priv, err := sshkey.GenerateEd25519Key("sshconn-test")
	if err != nil {
		t.Fatalf("failed to generate client key: %v", err)
	}
	path := filepath.Join(dir, "id_ed25519")
	if err := os.WriteFile(path, []byte(priv), 0o600); err != nil {
		t.Fatalf("failed to write key file: %v", err)
	}
	pubKey, _, _, _, err := ssh.ParseAuthorizedKey([]byte(pub))
	if err != nil {
		t.Fatalf("failed to parse generated public key: %v", err)
	}
	return path, pubKey
}

func (s *testServer) clientConfig(keyPath string) Config {
	host, portStr, err := net.SplitHostPort(s.listener.Addr().String())
	if err != nil {
		s.t.Fatalf("failed to split listener address: %v", err)
	}
	port, _ := strconv.Atoi(portStr)
	return NewConfig(host, port, "ferry-test", keyPath, nil)
}

func (s *testServer) serve() {
	for {
		netConn, err := s.listener.Accept()
		if err != nil {
			return
		}
		go s.handleConn(netConn)
	}
}

func (s *testServer) handleConn(netConn net.Conn) {
	s.mu.Lock()
	s.conns = append(s.conns, netConn)
	s.mu.Unlock()

	serverConn, chans, reqs, err := ssh.NewServerConn(netConn, s.config)
	if err != nil {
		_ = netConn.Close()
		return
	}
	defer func() { _ = serverConn.Close() }()
	s.handshakes.Add(1)
	go ssh.DiscardRequests(reqs)

	for newCh := range chans {
		if newCh.ChannelType() != "session" {
			_ = newCh.Reject(ssh.UnknownChannelType, "unsupported channel type")
			continue
		}
		ch, requests, err := newCh.Accept()
		if err != nil {
			continue
		}
		go s.handleSession(ch, requests)
	}
}

func (s *testServer) handleSession(ch ssh.Channel, requests <-chan *ssh.Request) {
	for req := range requests {
		switch req.Type {
		case "exec":
			var payload struct{ Command string }
			_ = ssh.Unmarshal(req.Payload, &payload)
			_ = req.Reply(true, nil)
			go s.runExec(ch, payload.Command)
		case "pty-req":
			_ = req.Reply(true, nil)
		case "shell":
			_ = req.Reply(true, nil)
			go s.runShell(ch)
		case "subsystem":
			var payload struct{ Name string }
			_ = ssh.Unmarshal(req.Payload, &payload)
			if payload.Name != "sftp" {
				_ = req.Reply(false, nil)
				continue
			}
			_ = req.Reply(true, nil)
			go func() {
				srv, err := sftp.NewServer(ch)
				if err != nil {
					_ = ch.Close()
					return
				}
				_ = srv.Serve()
				_ = ch.Close()
			}()
		case "window-change":
			var dims struct{ Cols, Rows, Width, Height uint32 }
			_ = ssh.Unmarshal(req.Payload, &dims)
			s.resizes <- [2]uint32{dims.Cols, dims.Rows}
		default:
			if req.WantReply {
				_ = req.Reply(false, nil)
			}
		}
	}
}

func (s *testServer) runExec(ch ssh.Channel, command string) {
	defer func() { _ = ch.Close() }()

	cmd, ok := s.commands[command]
	if !ok {
		_, _ = io.WriteString(ch.Stderr(), "command not found\n")
		cmd = testCommand{exitCode: 127}
	} else {
		_, _ = io.WriteString(ch, cmd.stdout)
		_, _ = io.WriteString(ch.Stderr(), cmd.stderr)
	}
	if cmd.omitExit {
		return
	}
	status := struct{ Status uint32 }{uint32(cmd.exitCode)}
	_, _ = ch.SendRequest("exit-status", false, ssh.Marshal(&status))
}

// runShell echoes everything it reads back to the client until the
// channel dies.
func (s *testServer) runShell(ch ssh.Channel) {
	defer func() { _ = ch.Close() }()
	buf := make([]byte, 1024)
	for {
		n, err := ch.Read(buf)
		if n > 0 {
			if _, werr := ch.Write(buf[:n]); werr != nil {
				return
			}
		}
		if err != nil {
			return
		}
	}
}
