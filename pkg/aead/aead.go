// Package aead provides the authenticated ciphers sensor frames are sealed
// with and the Authenticator that verifies and opens them.
//
// Keys and nonces are fixed for the whole session and supplied by
// configuration. Nothing here derives, rotates or stores them.
package aead

import (
	"crypto/aes"
	"crypto/cipher"
	"errors"
	"fmt"
	"strings"
)

// Supported algorithm names.
const (
	Ascon128  = "Ascon-128"
	AES128GCM = "AES-128-GCM"
)

var (
	// ErrAuthentication is returned when the tag does not verify: the frame
	// was corrupted, forged, or sealed under a different key or nonce.
	ErrAuthentication = errors.New("aead: message authentication failed")

	// ErrDecryption is returned for ciphertexts that cannot be opened at all,
	// such as ones shorter than the authentication tag.
	ErrDecryption = errors.New("aead: malformed ciphertext")

	// ErrUnknownAlgorithm is returned by New for unsupported names.
	ErrUnknownAlgorithm = errors.New("aead: unknown algorithm")
)

// Algorithms returns the supported algorithm names.
func Algorithms() []string {
	return []string{Ascon128, AES128GCM}
}

// New returns the named AEAD keyed with key. Names are matched
// case-insensitively.
func New(algorithm string, key []byte) (cipher.AEAD, error) {
	switch {
	case strings.EqualFold(algorithm, Ascon128):
		return NewAscon128(key)
	case strings.EqualFold(algorithm, AES128GCM):
		if len(key) != 16 {
			return nil, fmt.Errorf("aes-128-gcm: key must be 16 bytes, got %d", len(key))
		}
		block, err := aes.NewCipher(key)
		if err != nil {
			return nil, err
		}
		return cipher.NewGCMWithNonceSize(block, 16)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownAlgorithm, algorithm)
	}
}

// Authenticator opens frames sealed with one fixed nonce and associated data.
type Authenticator struct {
	aead  cipher.AEAD
	nonce []byte
	ad    []byte
}

// NewAuthenticator binds an AEAD to the session nonce and associated data.
func NewAuthenticator(a cipher.AEAD, nonce, additionalData []byte) (*Authenticator, error) {
	if a == nil {
		return nil, errors.New("aead: nil cipher")
	}
	if len(nonce) != a.NonceSize() {
		return nil, fmt.Errorf("aead: nonce must be %d bytes, got %d", a.NonceSize(), len(nonce))
	}
	return &Authenticator{
		aead:  a,
		nonce: append([]byte(nil), nonce...),
		ad:    append([]byte(nil), additionalData...),
	}, nil
}

// Open verifies the tag and returns the plaintext. Nothing is returned
// unless verification succeeds.
func (a *Authenticator) Open(ciphertext []byte) ([]byte, error) {
	if len(ciphertext) < a.aead.Overhead() {
		return nil, fmt.Errorf("%w: %d bytes is shorter than the %d byte tag",
			ErrDecryption, len(ciphertext), a.aead.Overhead())
	}
	plaintext, err := a.aead.Open(nil, a.nonce, ciphertext, a.ad)
	if err != nil {
		return nil, ErrAuthentication
	}
	return plaintext, nil
}

// Seal encrypts and authenticates plaintext, returning ciphertext||tag.
func (a *Authenticator) Seal(plaintext []byte) []byte {
	return a.aead.Seal(nil, a.nonce, plaintext, a.ad)
}
