// Package crypto manages the local key material announced to the signaling
// server.
//
// Key agreement and media encryption are provided by an external component;
// this package only generates, loads and exposes the X25519 key pair that
// identifies the client during authorization.
//
// Example:
//
//	keys, err := crypto.GenerateKeyPair()
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println("Public key:", hex.EncodeToString(keys.Public[:]))
package crypto

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/flynn/noise"
	"golang.org/x/crypto/curve25519"
)

// KeySize is the size of X25519 public and private keys.
const KeySize = 32

// KeyPair represents an X25519 key pair.
type KeyPair struct {
	Public  [KeySize]byte
	Private [KeySize]byte
}

// GenerateKeyPair creates a new random key pair.
func GenerateKeyPair() (*KeyPair, error) {
	dh, err := noise.DH25519.GenerateKeypair(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("generate keypair: %w", err)
	}
	if len(dh.Public) != KeySize || len(dh.Private) != KeySize {
		return nil, fmt.Errorf("generate keypair: unexpected key sizes %d/%d", len(dh.Public), len(dh.Private))
	}

	keyPair := &KeyPair{}
	copy(keyPair.Public[:], dh.Public)
	copy(keyPair.Private[:], dh.Private)

	return keyPair, nil
}

// FromSecretKey creates a key pair from an existing private key, deriving the
// public half with X25519 against the base point.
func FromSecretKey(secretKey [KeySize]byte) (*KeyPair, error) {
	if isZeroKey(secretKey) {
		return nil, errors.New("invalid secret key: all zeros")
	}

	public, err := curve25519.X25519(secretKey[:], curve25519.Basepoint)
	if err != nil {
		return nil, fmt.Errorf("derive public key: %w", err)
	}

	keyPair := &KeyPair{Private: secretKey}
	copy(keyPair.Public[:], public)

	return keyPair, nil
}

// FromHex parses a hex-encoded private key and derives its key pair.
func FromHex(secretHex string) (*KeyPair, error) {
	raw, err := hex.DecodeString(secretHex)
	if err != nil {
		return nil, fmt.Errorf("decode secret key: %w", err)
	}
	if len(raw) != KeySize {
		return nil, fmt.Errorf("invalid secret key length: %d, want %d", len(raw), KeySize)
	}

	var secret [KeySize]byte
	copy(secret[:], raw)
	return FromSecretKey(secret)
}

// isZeroKey checks if a key consists of all zeros.
func isZeroKey(key [KeySize]byte) bool {
	for _, b := range key {
		if b != 0 {
			return false
		}
	}
	return true
}
