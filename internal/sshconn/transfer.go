// Copyright (c) 2025 ToeiRei
// Ferry - pooled SSH command transport
// This source code is licensed under the MIT license found in the LICENSE file.

// This file contains SFTP file transfer on top of an established
// connection.

package sshconn

import (
	"fmt"
	"io"
	"os"

	"github.com/pkg/sftp"
)

// Upload copies a local file to remotePath over SFTP. Each transfer
// opens its own SFTP subsystem channel and closes it when done.
func (c *Connection) Upload(localPath, remotePath string) error {
	if !c.IsActive() {
		return ErrNotConnected
	}

	client, err := sftp.NewClient(c.client)
	if err != nil {
		return &ChannelError{Op: "sftp", Err: err}
	}
	defer func() { _ = client.Close() }()

	local, err := os.Open(localPath)
	if err != nil {
		return fmt.Errorf("failed to open local file: %w", err)
	}
	defer func() { _ = local.Close() }()

	remote, err := client.Create(remotePath)
	if err != nil {
		return fmt.Errorf("failed to create remote file %s: %w", remotePath, err)
	}
	defer func() { _ = remote.Close() }()

	if _, err := io.Copy(remote, local); err != nil {
		return fmt.Errorf("failed to copy file contents: %w", err)
	}
	return nil
}

// Download copies a remote file to localPath over SFTP.
func (c *Connection) Download(remotePath, localPath string) error {
	if !c.IsActive() {
		return ErrNotConnected
	}

	client, err := sftp.NewClient(c.client)
	if err != nil {
		return &ChannelError{Op: "sftp", Err: err}
	}
	defer func() { _ = client.Close() }()

	remote, err := client.Open(remotePath)
	if err != nil {
		return fmt.Errorf("failed to open remote file %s: %w", remotePath, err)
	}
	defer func() { _ = remote.Close() }()

	local, err := os.Create(localPath)
	if err != nil {
		return fmt.Errorf("failed to create local file: %w", err)
	}
	defer func() { _ = local.Close() }()

	if _, err := io.Copy(local, remote); err != nil {
		return fmt.Errorf("failed to copy file contents: %w", err)
	}
	return nil
}
