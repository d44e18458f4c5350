// Copyright (c) 2025 ToeiRei
// Ferry - pooled SSH command transport
// This source code is licensed under the MIT license found in the LICENSE file.

// main.go sets up the command-line interface (CLI) for Ferry using the
// Cobra library. It defines the root command, subcommands (test, exec,
// shell, push, pull, hosts, keygen), flags, and the main entry point.

package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/toeirei/ferry/internal/config"
	"github.com/toeirei/ferry/internal/hostlog"
	"github.com/toeirei/ferry/internal/i18n"
	"github.com/toeirei/ferry/internal/logging"
	"github.com/toeirei/ferry/internal/sshconn"
	"github.com/toeirei/ferry/internal/sshkey"
	"github.com/toeirei/ferry/internal/transport"
)

var version = "dev" // this will be set by the linker

var (
	cfgFile   string
	cfg       config.Config
	pool      *sshconn.Pool
	hostStore *hostlog.Store
)

// main is the entry point of the application.
func main() {
	if err := rootCmd.Execute(); err != nil {
		// The error is already printed by Cobra on failure.
		teardown()
		os.Exit(1)
	}
	teardown()
}

var rootCmd *cobra.Command

func init() {
	rootCmd = newRootCmd()
}

// newRootCmd creates and configures a new root cobra command. This
// function builds the main application command as well as fresh
// instances for isolated testing.
func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ferry",
		Short: "Ferry runs commands and shells over pooled SSH connections.",
		Long: `Ferry is a small SSH workhorse. It authenticates with unencrypted
OpenSSH private keys, keeps one pooled connection per user@host:port
and reuses it across commands, file transfers and interactive shells.

An optional host log records every host key servers present, so key
changes can be audited after the fact.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			var err error
			cfg, err = config.Load(cmd, cfgFile)
			if err != nil {
				return fmt.Errorf(i18n.T("cmd.error_load_config"), err)
			}
			i18n.Init(cfg.Language)
			logging.SetDebug(cfg.Debug)
			pool = sshconn.NewPool()

			if cfg.HostLog.Enabled {
				hostStore, err = hostlog.Open(cfg.HostLog.DBType, cfg.HostLog.DSN)
				if err != nil {
					return fmt.Errorf(i18n.T("cmd.error_open_hostlog"), err)
				}
				sshconn.SetHostKeyRecorder(hostlog.NewRecorder(hostStore))
			}
			return nil
		},
	}

	cmd.AddCommand(testCmd)
	cmd.AddCommand(execCmd)
	cmd.AddCommand(shellCmd)
	cmd.AddCommand(pushCmd)
	cmd.AddCommand(pullCmd)
	cmd.AddCommand(hostsCmd)
	cmd.AddCommand(keygenCmd)
	cmd.AddCommand(versionCmd)

	cmd.Version = version

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ferry.yaml in the user config dir or current dir)")
	cmd.PersistentFlags().Bool("debug", false, "enable verbose logging")
	cmd.PersistentFlags().String("language", "en", `CLI language ("en", "de")`)
	cmd.PersistentFlags().StringP("key", "i", "", "path to an unencrypted OpenSSH private key")
	cmd.PersistentFlags().IntP("port", "p", sshconn.DefaultPort, "SSH port used when the target does not name one")
	cmd.PersistentFlags().Int("timeout", 30, "TCP connect timeout in seconds")

	return cmd
}

// teardown closes pooled connections and the host log. Safe to call
// when PersistentPreRunE never ran.
func teardown() {
	if pool != nil {
		pool.DisconnectAll()
	}
	if hostStore != nil {
		_ = hostStore.Close()
	}
}

// connConfig builds a connection Config for a user@host[:port] target,
// applying flag and config file defaults for everything the target does
// not spell out.
func connConfig(cmd *cobra.Command, target string) (sshconn.Config, error) {
	user, host, port, err := parseTarget(target)
	if err != nil {
		return sshconn.Config{}, err
	}

	if user == "" {
		user = cfg.SSH.User
	}
	if user == "" {
		return sshconn.Config{}, fmt.Errorf(i18n.T("cmd.error_no_user"), target)
	}
	if port == 0 {
		if cmd.Flags().Changed("port") {
			port, _ = cmd.Flags().GetInt("port")
		} else if cfg.SSH.Port != 0 {
			port = cfg.SSH.Port
		}
	}

	keyPath, _ := cmd.Flags().GetString("key")
	if keyPath == "" {
		keyPath = cfg.SSH.KeyPath
	}

	var c sshconn.Config
	if keyPath == "" {
		c = sshconn.NewConfigWithDefaultKey(host, port, user)
	} else {
		c = sshconn.NewConfig(host, port, user, keyPath, nil)
	}

	if timeout, _ := cmd.Flags().GetInt("timeout"); cmd.Flags().Changed("timeout") {
		c.ConnectTimeout = time.Duration(timeout) * time.Second
	} else if cfg.SSH.ConnectTimeout > 0 {
		c.ConnectTimeout = time.Duration(cfg.SSH.ConnectTimeout) * time.Second
	}
	return c, nil
}

// parseTarget splits "user@host[:port]". User and port may be absent;
// "[::1]:2222" style bracketed IPv6 hosts are understood.
func parseTarget(target string) (user, host string, port int, err error) {
	rest := target
	if at := strings.LastIndex(rest, "@"); at >= 0 {
		user = rest[:at]
		rest = rest[at+1:]
	}
	if rest == "" {
		return "", "", 0, fmt.Errorf(i18n.T("cmd.error_bad_target"), target)
	}

	host = rest
	if h, p, splitErr := net.SplitHostPort(rest); splitErr == nil {
		n, convErr := strconv.Atoi(p)
		if convErr != nil || n < 1 || n > 65535 {
			return "", "", 0, fmt.Errorf(i18n.T("cmd.error_bad_target"), target)
		}
		host = h
		port = n
	} else {
		host = strings.Trim(rest, "[]")
	}
	if host == "" {
		return "", "", 0, fmt.Errorf(i18n.T("cmd.error_bad_target"), target)
	}
	return user, host, port, nil
}

// auditEvent writes a connection audit entry when the host log is on.
func auditEvent(c sshconn.Config, kind, detail string) {
	if hostStore == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := hostStore.RecordEvent(ctx, c.Host, c.Port, kind, detail); err != nil {
		logging.Warnf("host log: failed to record %s event: %v", kind, err)
	}
}

// testCmd checks that a target is reachable and can run commands.
var testCmd = &cobra.Command{
	Use:   "test user@host[:port]",
	Short: "Check connectivity and command execution for a target",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := connConfig(cmd, args[0])
		if err != nil {
			return err
		}
		if err := pool.TestConnection(c); err != nil {
			return err
		}
		auditEvent(c, hostlog.EventConnect, "test")
		fmt.Printf(i18n.T("cmd.test_ok")+"\n", c.PoolKey())
		return nil
	},
}

// execCmd runs a single command on the target. Everything after the
// target is passed as the argument vector and quoted for the remote
// shell; --dir runs the command from another working directory.
var execCmd = &cobra.Command{
	Use:   "exec user@host[:port] command [args...]",
	Short: "Run a command on a target over a pooled connection",
	Long: `Runs a command on the target. Arguments are quoted so spaces and
shell metacharacters arrive literally. The remote exit code becomes
ferry's exit code.`,
	Args: cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := connConfig(cmd, args[0])
		if err != nil {
			return err
		}
		dir, _ := cmd.Flags().GetString("dir")

		t := transport.NewSSHTransport(pool, c)
		res, err := t.ExecuteArgs(args[1:], dir)
		if err != nil {
			return err
		}
		auditEvent(c, hostlog.EventExec, transport.QuoteAll(args[1:]))

		fmt.Print(res.Stdout)
		fmt.Fprint(os.Stderr, res.Stderr)
		if !res.Succeeded() {
			teardown()
			os.Exit(res.ExitCode)
		}
		return nil
	},
}

// pushCmd uploads a local file over SFTP.
var pushCmd = &cobra.Command{
	Use:   "push user@host[:port] local-path remote-path",
	Short: "Upload a file to a target over SFTP",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := connConfig(cmd, args[0])
		if err != nil {
			return err
		}
		conn, err := pool.Get(c)
		if err != nil {
			return err
		}
		if err := conn.Upload(args[1], args[2]); err != nil {
			return err
		}
		auditEvent(c, hostlog.EventExec, "push "+args[2])
		fmt.Printf(i18n.T("cmd.push_ok")+"\n", args[1], c.PoolKey(), args[2])
		return nil
	},
}

// pullCmd downloads a remote file over SFTP.
var pullCmd = &cobra.Command{
	Use:   "pull user@host[:port] remote-path local-path",
	Short: "Download a file from a target over SFTP",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := connConfig(cmd, args[0])
		if err != nil {
			return err
		}
		conn, err := pool.Get(c)
		if err != nil {
			return err
		}
		if err := conn.Download(args[1], args[2]); err != nil {
			return err
		}
		auditEvent(c, hostlog.EventExec, "pull "+args[1])
		fmt.Printf(i18n.T("cmd.pull_ok")+"\n", c.PoolKey(), args[1], args[2])
		return nil
	},
}

// hostsCmd lists host key observations from the host log.
var hostsCmd = &cobra.Command{
	Use:   "hosts",
	Short: "List observed host keys from the host log",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if hostStore == nil {
			return errors.New(i18n.T("cmd.error_hostlog_disabled"))
		}
		ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
		defer cancel()

		keys, err := hostStore.AllHostKeys(ctx)
		if err != nil {
			return err
		}
		if len(keys) == 0 {
			fmt.Println(i18n.T("cmd.hosts_empty"))
			return nil
		}
		for _, k := range keys {
			fmt.Printf("%s\t%s\tseen %dx\tfirst %s\tlast %s\n",
				k.Endpoint(), k.Algorithm, k.SeenCount,
				k.FirstSeen.Local().Format("2006-01-02 15:04"),
				k.LastSeen.Local().Format("2006-01-02 15:04"))
		}
		return nil
	},
}

// keygenCmd generates a new unencrypted ed25519 key pair.
var keygenCmd = &cobra.Command{
	Use:   "keygen output-path",
	Short: "Generate an unencrypted ed25519 key pair",
	Long: `Generates a new ed25519 key pair in OpenSSH format. The private key
is written to output-path (mode 0600) and the public key next to it
with a .pub suffix. The key is unencrypted; that is the only kind of
key ferry can use.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		comment, _ := cmd.Flags().GetString("comment")
		pub, priv, err := sshkey.GenerateEd25519Key(comment)
		if err != nil {
			return err
		}

		privPath := args[0]
		if err := os.WriteFile(privPath, []byte(priv), 0600); err != nil {
			return fmt.Errorf(i18n.T("cmd.error_write_key"), privPath, err)
		}
		pubPath := privPath + ".pub"
		if err := os.WriteFile(pubPath, []byte(pub), 0644); err != nil {
			return fmt.Errorf(i18n.T("cmd.error_write_key"), pubPath, err)
		}
		fmt.Printf(i18n.T("cmd.keygen_ok")+"\n", privPath, pubPath)
		return nil
	},
}

// versionCmd prints the build version.
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the ferry version",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("ferry %s\n", version)
	},
}

func init() {
	execCmd.Flags().StringP("dir", "d", "", "remote working directory for the command")
	keygenCmd.Flags().StringP("comment", "C", "", "comment embedded in the key pair")
}
