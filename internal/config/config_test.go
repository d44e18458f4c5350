// Copyright (c) 2025 ToeiRei
// Ferry - pooled SSH command transport
// This source code is licensed under the MIT license found in the LICENSE file.

package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
)

func newTestCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "ferry"}
	cmd.Flags().String("language", "", "")
	cmd.Flags().Bool("debug", false, "")
	return cmd
}

func TestLoadDefaults(t *testing.T) {
	// Run from an empty directory so no stray ferry.yaml is picked up.
	t.Chdir(t.TempDir())

	c, err := Load(newTestCmd(), "")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if c.Language != "en" {
		t.Errorf("Language = %q, want en", c.Language)
	}
	if c.Debug {
		t.Error("Debug should default to false")
	}
	if c.SSH.Port != 22 {
		t.Errorf("SSH.Port = %d, want 22", c.SSH.Port)
	}
	if c.SSH.ConnectTimeout != 30 {
		t.Errorf("SSH.ConnectTimeout = %d, want 30", c.SSH.ConnectTimeout)
	}
	if c.HostLog.Enabled {
		t.Error("HostLog.Enabled should default to false")
	}
	if c.HostLog.DBType != "sqlite" {
		t.Errorf("HostLog.DBType = %q, want sqlite", c.HostLog.DBType)
	}
}

func TestLoadExplicitFile(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	path := filepath.Join(dir, "custom.yaml")
	data := []byte("language: de\ndebug: true\nssh:\n  user: deploy\n  port: 2222\nhostlog:\n  enabled: true\n  db_type: postgres\n  dsn: postgres://audit@db/ferry\n")
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	c, err := Load(newTestCmd(), path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if c.Language != "de" || !c.Debug {
		t.Errorf("top-level values not loaded: %+v", c)
	}
	if c.SSH.User != "deploy" || c.SSH.Port != 2222 {
		t.Errorf("ssh section not loaded: %+v", c.SSH)
	}
	if !c.HostLog.Enabled || c.HostLog.DBType != "postgres" || c.HostLog.DSN != "postgres://audit@db/ferry" {
		t.Errorf("hostlog section not loaded: %+v", c.HostLog)
	}
}

func TestLoadCurrentDirFile(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	if err := os.WriteFile(filepath.Join(dir, "ferry.yaml"), []byte("language: de\n"), 0o600); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	c, err := Load(newTestCmd(), "")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if c.Language != "de" {
		t.Errorf("Language = %q, want de", c.Language)
	}
}

func TestLoadEnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	if err := os.WriteFile(filepath.Join(dir, "ferry.yaml"), []byte("ssh:\n  user: filer\n"), 0o600); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}
	t.Setenv("FERRY_SSH_USER", "enver")

	c, err := Load(newTestCmd(), "")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if c.SSH.User != "enver" {
		t.Errorf("SSH.User = %q, want env override enver", c.SSH.User)
	}
}

func TestLoadFlagOverridesEverything(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	if err := os.WriteFile(filepath.Join(dir, "ferry.yaml"), []byte("language: de\n"), 0o600); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}
	t.Setenv("FERRY_LANGUAGE", "fr")

	cmd := newTestCmd()
	if err := cmd.Flags().Set("language", "en"); err != nil {
		t.Fatalf("flag set failed: %v", err)
	}

	c, err := Load(cmd, "")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if c.Language != "en" {
		t.Errorf("Language = %q, want flag value en", c.Language)
	}
}

func TestLoadMalformedFile(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	path := filepath.Join(dir, "broken.yaml")
	if err := os.WriteFile(path, []byte("language: [unclosed\n"), 0o600); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}
	if _, err := Load(newTestCmd(), path); err == nil {
		t.Error("expected error for malformed config file")
	}
}
