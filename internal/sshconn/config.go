// Copyright (c) 2025 ToeiRei
// Ferry - pooled SSH command transport
// This source code is licensed under the MIT license found in the LICENSE file.

// package sshconn establishes and pools authenticated SSH connections and
// exposes one-shot command execution and interactive shell sessions on top
// of them. It is the transport core behind the rest of Ferry.
package sshconn // import "github.com/toeirei/ferry/internal/sshconn"

import (
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"time"
)

// DefaultPort is the SSH port used when a config does not name one.
const DefaultPort = 22

// DefaultConnectTimeout bounds the TCP connect plus handshake for a new
// connection. Command execution and shell sessions carry no timeout of
// their own; callers that need one race the call against a timer.
const DefaultConnectTimeout = 30 * time.Second

// defaultKeyNames are probed in order under ~/.ssh during default key
// discovery. The first entry also serves as the final literal fallback
// when none of the files exist; the connection attempt then fails
// naturally at parse time.
var defaultKeyNames = []string{"id_ed25519", "id_ecdsa", "id_rsa"}

// Config describes one logical SSH endpoint and how to authenticate to
// it. It is a value type; construct one per operation.
type Config struct {
	Host       string
	Port       int
	User       string
	KeyPath    string
	Passphrase []byte

	// ConnectTimeout overrides DefaultConnectTimeout when non-zero.
	ConnectTimeout time.Duration
}

// NewConfig builds a Config with an explicit key file path. A zero port
// selects the default SSH port.
func NewConfig(host string, port int, user, keyPath string, passphrase []byte) Config {
	if port == 0 {
		port = DefaultPort
	}
	return Config{
		Host:       host,
		Port:       port,
		User:       user,
		KeyPath:    keyPath,
		Passphrase: passphrase,
	}
}

// NewConfigWithDefaultKey builds a Config whose key file is discovered
// from the conventional locations under ~/.ssh.
func NewConfigWithDefaultKey(host string, port int, user string) Config {
	return NewConfig(host, port, user, DefaultKeyPath(), nil)
}

// PoolKey returns the identity string used to deduplicate live
// connections: user@host:port. Two configs with the same pool key are
// the same logical endpoint even if their key paths differ; the pool
// keeps one live connection per endpoint.
func (c Config) PoolKey() string {
	return fmt.Sprintf("%s@%s:%d", c.User, c.Host, c.Port)
}

// Addr returns the dialable host:port address for the endpoint.
func (c Config) Addr() string {
	port := c.Port
	if port == 0 {
		port = DefaultPort
	}
	return net.JoinHostPort(c.Host, strconv.Itoa(port))
}

func (c Config) connectTimeout() time.Duration {
	if c.ConnectTimeout > 0 {
		return c.ConnectTimeout
	}
	return DefaultConnectTimeout
}

// DefaultKeyPath probes the conventional private key locations under
// ~/.ssh and returns the first file that exists. When none exist it
// still returns the id_ed25519 path so the caller gets a readable
// "no such file" failure from the parser instead of an empty path.
func DefaultKeyPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	sshDir := filepath.Join(home, ".ssh")
	for _, name := range defaultKeyNames {
		path := filepath.Join(sshDir, name)
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return filepath.Join(sshDir, defaultKeyNames[0])
}
