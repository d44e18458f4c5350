// Copyright (c) 2025 ToeiRei
// Ferry - pooled SSH command transport
// This source code is licensed under the MIT license found in the LICENSE file.

// package transport defines the generic command-execution contract the
// rest of the application consumes, and its SSH-backed implementation.
// Non-SSH executors (a local process runner, for instance) implement
// the same interface.
package transport // import "github.com/toeirei/ferry/internal/transport"

// Result is the outcome of one command execution, fully populated when
// the command finishes.
type Result struct {
	ExitCode int
	Stdout   string
	Stderr   string
}

// Succeeded reports whether the command exited with status zero.
func (r *Result) Succeeded() bool {
	return r.ExitCode == 0
}

// Transport executes commands somewhere, either as a literal command
// line or as an argument vector. An empty dir runs the command in the
// executor's default working directory.
type Transport interface {
	Execute(command string, dir string) (*Result, error)
	ExecuteArgs(args []string, dir string) (*Result, error)
}
