// Copyright (c) 2025 ToeiRei
// Ferry - pooled SSH command transport
// This source code is licensed under the MIT license found in the LICENSE file.

package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/toeirei/ferry/internal/hostlog"
	"github.com/toeirei/ferry/internal/i18n"
	"github.com/toeirei/ferry/internal/logging"
	"github.com/toeirei/ferry/internal/recording"
	"github.com/toeirei/ferry/internal/sshconn"
)

// shellCmd opens an interactive shell on the target. The local terminal
// is put into raw mode so control sequences pass through untouched, and
// the session can be recorded to a compressed transcript.
var shellCmd = &cobra.Command{
	Use:   "shell user@host[:port]",
	Short: "Open an interactive shell on a target",
	Long: `Opens an interactive shell on the target over a pooled connection.
With --record the session is written as a zstd-compressed transcript
that 'ferry' tooling can decode later.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := connConfig(cmd, args[0])
		if err != nil {
			return err
		}
		recordPath, _ := cmd.Flags().GetString("record")
		return runShell(c, recordPath)
	},
}

func init() {
	shellCmd.Flags().String("record", "", "write a compressed session transcript to this path")
}

func runShell(c sshconn.Config, recordPath string) error {
	stdinFd := int(os.Stdin.Fd())
	if !term.IsTerminal(stdinFd) {
		return errors.New(i18n.T("cmd.error_shell_no_tty"))
	}

	conn, err := pool.Get(c)
	if err != nil {
		return err
	}
	auditEvent(c, hostlog.EventConnect, "shell")

	var rec *recording.Recorder
	if recordPath != "" {
		rec, err = recording.NewRecorder(recordPath)
		if err != nil {
			return err
		}
		defer func() { _ = rec.Close() }()
		_ = rec.Note("session started on %s", c.PoolKey())
	}

	cols, rows, err := term.GetSize(stdinFd)
	if err != nil {
		cols, rows = 80, 24
	}

	oldState, err := term.MakeRaw(stdinFd)
	if err != nil {
		return fmt.Errorf(i18n.T("cmd.error_shell_raw_mode"), err)
	}
	defer func() { _ = term.Restore(stdinFd, oldState) }()

	done := make(chan struct{})
	shell, err := conn.OpenShell(cols, rows,
		func(data []byte) {
			_, _ = os.Stdout.Write(data)
			if rec != nil {
				_ = rec.Write(recording.StreamOutput, data)
			}
		},
		func() { close(done) },
	)
	if err != nil {
		return err
	}
	defer shell.Close()

	// Track local terminal size changes for the remote PTY.
	stopResize := watchResize(func() {
		if w, h, err := term.GetSize(stdinFd); err == nil {
			shell.Resize(w, h)
			if rec != nil {
				_ = rec.Note("resize %dx%d", w, h)
			}
		}
	})
	defer stopResize()

	// Pump local stdin to the remote shell. The goroutine leaks on
	// session end because os.Stdin reads cannot be interrupted; it dies
	// with the process.
	go func() {
		buf := make([]byte, 4096)
		for {
			n, err := os.Stdin.Read(buf)
			if n > 0 {
				shell.Send(buf[:n])
				if rec != nil {
					_ = rec.Write(recording.StreamInput, buf[:n])
				}
			}
			if err != nil {
				if err != io.EOF {
					logging.Debugf("stdin read ended: %v", err)
				}
				shell.Close()
				return
			}
		}
	}()

	<-done
	auditEvent(c, hostlog.EventDisconnect, "shell")
	if rec != nil {
		_ = rec.Note("session closed")
	}
	return nil
}
