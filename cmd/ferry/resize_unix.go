// Copyright (c) 2025 ToeiRei
// Ferry - pooled SSH command transport
// This source code is licensed under the MIT license found in the LICENSE file.

//go:build !windows

package main

import (
	"os"
	"os/signal"
	"syscall"
)

// watchResize invokes fn on SIGWINCH until the returned stop function
// is called.
func watchResize(fn func()) (stop func()) {
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, syscall.SIGWINCH)
	go func() {
		for range ch {
			fn()
		}
	}()
	return func() {
		signal.Stop(ch)
		close(ch)
	}
}
