// Copyright (c) 2025 ToeiRei
// Ferry - pooled SSH command transport
// This source code is licensed under the MIT license found in the LICENSE file.

// package config loads Ferry's configuration from ferry.yaml, the
// environment and command-line flags, in ascending precedence.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/goccy/go-yaml"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// Config is the root configuration for the ferry CLI.
type Config struct {
	// Language selects the UI language (e.g. "en", "de").
	Language string `mapstructure:"language" yaml:"language"`
	// Debug enables verbose logging.
	Debug bool `mapstructure:"debug" yaml:"debug"`
	// SSH holds connection defaults applied when flags leave them unset.
	SSH SSHConfig `mapstructure:"ssh" yaml:"ssh"`
	// HostLog configures the optional host key observation database.
	HostLog HostLogConfig `mapstructure:"hostlog" yaml:"hostlog"`
}

// SSHConfig carries connection defaults.
type SSHConfig struct {
	User           string `mapstructure:"user" yaml:"user"`
	Port           int    `mapstructure:"port" yaml:"port"`
	KeyPath        string `mapstructure:"key_path" yaml:"key_path"`
	ConnectTimeout int    `mapstructure:"connect_timeout" yaml:"connect_timeout"`
}

// HostLogConfig configures the audit database. When Enabled is false the
// rest of the fields are ignored and no database is opened.
type HostLogConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	DBType  string `mapstructure:"db_type" yaml:"db_type"`
	DSN     string `mapstructure:"dsn" yaml:"dsn"`
}

// Defaults returns the baseline configuration values keyed for viper.
func Defaults() map[string]any {
	return map[string]any{
		"language":            "en",
		"debug":               false,
		"ssh.port":            22,
		"ssh.connect_timeout": 30,
		"hostlog.enabled":     false,
		"hostlog.db_type":     "sqlite",
		"hostlog.dsn":         defaultHostLogDSN(),
	}
}

func defaultHostLogDSN() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "ferry.db"
	}
	return filepath.Join(dir, "ferry", "ferry.db")
}

// getConfigPath returns the full path for the configuration file.
func getConfigPath(system bool) (string, error) {
	var configDir string
	var err error

	if system {
		switch runtime.GOOS {
		case "windows":
			configDir = filepath.Join(os.Getenv("ProgramData"), "Ferry")
		default:
			configDir = "/etc/ferry"
		}
	} else {
		configDir, err = os.UserConfigDir()
		if err != nil {
			return "", fmt.Errorf("could not get user config directory: %w", err)
		}
		configDir = filepath.Join(configDir, "ferry")
	}

	return filepath.Join(configDir, "ferry.yaml"), nil
}

// Load resolves the configuration for cmd. An explicit config file path
// (from the --config flag) takes precedence over the standard locations;
// environment variables with the FERRY_ prefix and bound flags override
// file values.
func Load(cmd *cobra.Command, configFile string) (Config, error) {
	var c Config
	v := viper.New()

	for key, value := range Defaults() {
		v.SetDefault(key, value)
	}

	v.SetConfigName("ferry")
	v.SetConfigType("yaml")

	if configFile != "" {
		v.SetConfigFile(configFile)
	}

	if userConfigPath, err := getConfigPath(false); err == nil {
		v.AddConfigPath(filepath.Dir(userConfigPath))
	}
	if systemConfigPath, err := getConfigPath(true); err == nil {
		v.AddConfigPath(filepath.Dir(systemConfigPath))
	}
	v.AddConfigPath(".")

	if err := v.ReadInConfig(); err != nil {
		// A missing file is fine; a malformed one is not.
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return c, err
		}
	}

	v.AutomaticEnv()
	v.AllowEmptyEnv(true)
	v.SetEnvPrefix("ferry")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := v.BindPFlags(cmd.Flags()); err != nil {
		return c, err
	}

	if err := v.Unmarshal(&c); err != nil {
		return c, err
	}

	return c, nil
}

// WriteFile persists c as YAML to the user or system config location.
func WriteFile(c *Config, system bool) error {
	path, err := getConfigPath(system)
	if err != nil {
		return err
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}

	configDir := filepath.Dir(path)
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return fmt.Errorf("could not create config directory %s: %w", configDir, err)
	}

	// 0600 because the file may carry DSN credentials.
	return os.WriteFile(path, data, 0600)
}
