// Copyright (c) 2025 ToeiRei
// Ferry - pooled SSH command transport
// This source code is licensed under the MIT license found in the LICENSE file.

package sshconn

import (
	"os"
	"path/filepath"
	"testing"
)

func TestPoolKey(t *testing.T) {
	cfg := NewConfig("example.com", 2222, "deploy", "/tmp/key", nil)
	if got := cfg.PoolKey(); got != "deploy@example.com:2222" {
		t.Errorf("PoolKey() = %q", got)
	}

	// The key path is not part of the endpoint identity.
	other := NewConfig("example.com", 2222, "deploy", "/tmp/other", []byte("x"))
	if other.PoolKey() != cfg.PoolKey() {
		t.Error("configs differing only in key material have different pool keys")
	}
}

func TestNewConfigDefaultPort(t *testing.T) {
	cfg := NewConfig("example.com", 0, "deploy", "", nil)
	if cfg.Port != DefaultPort {
		t.Errorf("Port = %d, expected %d", cfg.Port, DefaultPort)
	}
	if got := cfg.Addr(); got != "example.com:22" {
		t.Errorf("Addr() = %q", got)
	}
}

func TestConnectTimeoutDefault(t *testing.T) {
	cfg := NewConfig("h", 22, "u", "", nil)
	if cfg.connectTimeout() != DefaultConnectTimeout {
		t.Errorf("connectTimeout() = %v, expected %v", cfg.connectTimeout(), DefaultConnectTimeout)
	}
	cfg.ConnectTimeout = DefaultConnectTimeout / 2
	if cfg.connectTimeout() != DefaultConnectTimeout/2 {
		t.Errorf("connectTimeout() did not honor the override")
	}
}

func TestDefaultKeyPathDiscovery(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	sshDir := filepath.Join(home, ".ssh")
	if err := os.MkdirAll(sshDir, 0o700); err != nil {
		t.Fatalf("failed to create .ssh dir: %v", err)
	}

	t.Run("falls back to id_ed25519 when nothing exists", func(t *testing.T) {
		if got := DefaultKeyPath(); got != filepath.Join(sshDir, "id_ed25519") {
			t.Errorf("DefaultKeyPath() = %q", got)
		}
	})

	t.Run("prefers id_ecdsa over id_rsa", func(t *testing.T) {
		rsaPath := filepath.Join(sshDir, "id_rsa")
		ecdsaPath := filepath.Join(sshDir, "id_ecdsa")
		if err := os.WriteFile(rsaPath, []byte("k"), 0o600); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(ecdsaPath, []byte("k"), 0o600); err != nil {
			t.Fatal(err)
		}
		if got := DefaultKeyPath(); got != ecdsaPath {
			t.Errorf("DefaultKeyPath() = %q, expected %q", got, ecdsaPath)
		}
	})

	t.Run("prefers id_ed25519 over everything", func(t *testing.T) {
		edPath := filepath.Join(sshDir, "id_ed25519")
		if err := os.WriteFile(edPath, []byte("k"), 0o600); err != nil {
			t.Fatal(err)
		}
		if got := DefaultKeyPath(); got != edPath {
			t.Errorf("DefaultKeyPath() = %q, expected %q", got, edPath)
		}
	})
}
