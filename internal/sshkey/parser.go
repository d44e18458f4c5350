// Copyright (c) 2025 ToeiRei
// Ferry - pooled SSH command transport
// This source code is licensed under the MIT license found in the LICENSE file.

// package sshkey decodes OpenSSH private key files into typed key material.
// It implements a parser for the modern `openssh-key-v1` binary container
// produced by ssh-keygen; legacy PEM (RSA/EC) formats are not supported.
package sshkey // import "github.com/toeirei/ferry/internal/sshkey"

import (
	"bytes"
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/elliptic"
	"encoding/binary"
	"encoding/pem"
	"errors"
	"fmt"
	"math/big"
	"os"

	"golang.org/x/crypto/ssh"
)

// authMagic is the fixed preamble of the openssh-key-v1 container,
// including its trailing NUL terminator.
const authMagic = "openssh-key-v1\x00"

// pemType is the PEM block type used by ssh-keygen for modern key files.
const pemType = "OPENSSH PRIVATE KEY"

var (
	// ErrInvalidKeyFormat indicates the file is not a well-formed
	// openssh-key-v1 container (bad magic, truncated fields, failed
	// check integers, or a malformed key blob).
	ErrInvalidKeyFormat = errors.New("invalid OpenSSH private key format")

	// ErrEncryptedKeyNotSupported indicates the key file is encrypted.
	// Ferry only handles unencrypted key material; decrypting
	// passphrase-protected keys is not implemented.
	ErrEncryptedKeyNotSupported = errors.New("encrypted private keys are not supported")
)

// UnsupportedKeyTypeError is returned when the container holds a key
// type Ferry cannot use (anything other than ssh-ed25519 or
// ecdsa-sha2-nistp256), or when the file holds more than one key.
type UnsupportedKeyTypeError struct {
	Type string
}

func (e *UnsupportedKeyTypeError) Error() string {
	return fmt.Sprintf("unsupported key type: %s", e.Type)
}

// PrivateKey is the decoded private key material from an OpenSSH key file.
// The set of implementations is closed: Ed25519Key and ECDSAP256Key.
type PrivateKey interface {
	// Algorithm returns the SSH wire name of the key type.
	Algorithm() string
	// Signer converts the key material into an ssh.Signer for use
	// during public-key authentication.
	Signer() (ssh.Signer, error)

	sealed()
}

// Ed25519Key holds the 32-byte seed of an Ed25519 private key.
type Ed25519Key struct {
	Seed []byte
}

// Algorithm returns the SSH wire name for Ed25519 keys.
func (k *Ed25519Key) Algorithm() string { return ssh.KeyAlgoED25519 }

// Signer derives the full Ed25519 private key from the seed and wraps it
// as an ssh.Signer.
func (k *Ed25519Key) Signer() (ssh.Signer, error) {
	if len(k.Seed) != ed25519.SeedSize {
		return nil, ErrInvalidKeyFormat
	}
	signer, err := ssh.NewSignerFromKey(ed25519.NewKeyFromSeed(k.Seed))
	if err != nil {
		return nil, fmt.Errorf("failed to build ed25519 signer: %w", err)
	}
	return signer, nil
}

func (k *Ed25519Key) sealed() {}

// ECDSAP256Key holds the private scalar of an ECDSA key on the NIST P-256 curve.
type ECDSAP256Key struct {
	Scalar []byte
}

// Algorithm returns the SSH wire name for P-256 ECDSA keys.
func (k *ECDSAP256Key) Algorithm() string { return ssh.KeyAlgoECDSA256 }

// Signer reconstructs the ECDSA private key from the stored scalar and
// wraps it as an ssh.Signer. The public point is recomputed from the
// scalar rather than trusted from the file.
func (k *ECDSAP256Key) Signer() (ssh.Signer, error) {
	curve := elliptic.P256()
	d := new(big.Int).SetBytes(k.Scalar)
	if d.Sign() <= 0 || d.Cmp(curve.Params().N) >= 0 {
		return nil, ErrInvalidKeyFormat
	}
	priv := &ecdsa.PrivateKey{
		PublicKey: ecdsa.PublicKey{Curve: curve},
		D:         d,
	}
	priv.X, priv.Y = curve.ScalarBaseMult(d.Bytes())
	signer, err := ssh.NewSignerFromKey(priv)
	if err != nil {
		return nil, fmt.Errorf("failed to build ecdsa signer: %w", err)
	}
	return signer, nil
}

func (k *ECDSAP256Key) sealed() {}

// cursor is a bounds-checked reader over the binary container. Every
// read validates the remaining length first; a short buffer surfaces
// as ErrInvalidKeyFormat instead of a panic.
type cursor struct {
	buf []byte
	off int
}

func (c *cursor) readUint32() (uint32, error) {
	if c.off+4 > len(c.buf) {
		return 0, ErrInvalidKeyFormat
	}
	v := binary.BigEndian.Uint32(c.buf[c.off:])
	c.off += 4
	return v, nil
}

func (c *cursor) readString() ([]byte, error) {
	n, err := c.readUint32()
	if err != nil {
		return nil, err
	}
	if uint64(c.off)+uint64(n) > uint64(len(c.buf)) {
		return nil, ErrInvalidKeyFormat
	}
	s := c.buf[c.off : c.off+int(n)]
	c.off += int(n)
	return s, nil
}

func (c *cursor) skipString() error {
	_, err := c.readString()
	return err
}

// Parse decodes the raw bytes of an OpenSSH private key file into a
// PrivateKey. The input may be PEM-armored (the usual on-disk form) or
// the raw openssh-key-v1 container. A non-empty passphrase is rejected
// outright: encrypted key support is a known gap, not a silent fallback.
func Parse(data []byte, passphrase []byte) (PrivateKey, error) {
	if len(passphrase) > 0 {
		return nil, ErrEncryptedKeyNotSupported
	}

	raw := data
	if block, _ := pem.Decode(data); block != nil && block.Type == pemType {
		raw = block.Bytes
	}

	if !bytes.HasPrefix(raw, []byte(authMagic)) {
		return nil, ErrInvalidKeyFormat
	}
	c := &cursor{buf: raw, off: len(authMagic)}

	cipherName, err := c.readString()
	if err != nil {
		return nil, err
	}
	if string(cipherName) != "none" {
		return nil, ErrEncryptedKeyNotSupported
	}

	// KDF name and options are irrelevant for unencrypted keys.
	if err := c.skipString(); err != nil {
		return nil, err
	}
	if err := c.skipString(); err != nil {
		return nil, err
	}

	numKeys, err := c.readUint32()
	if err != nil {
		return nil, err
	}
	if numKeys != 1 {
		return nil, &UnsupportedKeyTypeError{Type: "multi-key file"}
	}

	// Public key blob; the private section repeats everything we need.
	if err := c.skipString(); err != nil {
		return nil, err
	}

	privBlob, err := c.readString()
	if err != nil {
		return nil, err
	}
	return parsePrivateSection(privBlob)
}

// parsePrivateSection decodes the length-prefixed private-key section
// with its own cursor. Trailing padding bytes after the key material
// are ignored.
func parsePrivateSection(blob []byte) (PrivateKey, error) {
	c := &cursor{buf: blob}

	check1, err := c.readUint32()
	if err != nil {
		return nil, err
	}
	check2, err := c.readUint32()
	if err != nil {
		return nil, err
	}
	// Matching check integers are the format's corruption canary; for an
	// unencrypted key a mismatch can only mean a damaged file.
	if check1 != check2 {
		return nil, ErrInvalidKeyFormat
	}

	keyType, err := c.readString()
	if err != nil {
		return nil, err
	}

	switch string(keyType) {
	case ssh.KeyAlgoED25519:
		// Public key sub-field, then the 64-byte private blob whose
		// first half is the seed.
		if err := c.skipString(); err != nil {
			return nil, err
		}
		priv, err := c.readString()
		if err != nil {
			return nil, err
		}
		if len(priv) != ed25519.PrivateKeySize {
			return nil, ErrInvalidKeyFormat
		}
		seed := make([]byte, ed25519.SeedSize)
		copy(seed, priv[:ed25519.SeedSize])
		return &Ed25519Key{Seed: seed}, nil
	case ssh.KeyAlgoECDSA256:
		// Curve identifier and public point precede the scalar.
		if err := c.skipString(); err != nil {
			return nil, err
		}
		if err := c.skipString(); err != nil {
			return nil, err
		}
		scalar, err := c.readString()
		if err != nil {
			return nil, err
		}
		return &ECDSAP256Key{Scalar: append([]byte(nil), scalar...)}, nil
	default:
		return nil, &UnsupportedKeyTypeError{Type: string(keyType)}
	}
}

// ParseFile reads and parses the key file at path.
func ParseFile(path string, passphrase []byte) (PrivateKey, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read key file %s: %w", path, err)
	}
	return Parse(data, passphrase)
}
