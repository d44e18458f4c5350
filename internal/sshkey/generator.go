// Copyright (c) 2025 ToeiRei
// Ferry - pooled SSH command transport
// This source code is licensed under the MIT license found in the LICENSE file.

// This file contains logic for generating new client key pairs in the
// OpenSSH private key format.

package sshkey

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/pem"
	"fmt"
	"strings"

	"golang.org/x/crypto/ssh"
)

// GenerateEd25519Key creates a new Ed25519 key pair and returns it as
// formatted strings: the public key in authorized_keys format and the
// private key in the OpenSSH PEM container. The generated private key is
// always unencrypted, matching what the parser in this package accepts.
func GenerateEd25519Key(comment string) (publicKey string, privateKey string, err error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return "", "", fmt.Errorf("failed to generate ed25519 key pair: %w", err)
	}

	sshPub, err := ssh.NewPublicKey(pub)
	if err != nil {
		return "", "", fmt.Errorf("failed to create SSH public key: %w", err)
	}
	publicKey = strings.TrimSpace(string(ssh.MarshalAuthorizedKey(sshPub)))
	if comment != "" {
		publicKey = fmt.Sprintf("%s %s", publicKey, comment)
	}

	pemBlock, err := ssh.MarshalPrivateKey(priv, comment)
	if err != nil {
		return "", "", fmt.Errorf("failed to marshal private key: %w", err)
	}
	privateKey = string(pem.EncodeToMemory(pemBlock))
	return publicKey, privateKey, nil
}
