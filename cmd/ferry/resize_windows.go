// Copyright (c) 2025 ToeiRei
// Ferry - pooled SSH command transport
// This source code is licensed under the MIT license found in the LICENSE file.

//go:build windows

package main

// watchResize is a no-op on Windows, which has no SIGWINCH. The remote
// PTY keeps the size negotiated at session start.
func watchResize(fn func()) (stop func()) {
	return func() {}
}
