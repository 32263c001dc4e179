package encryption

import (
	"crypto/rand"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/nacl/box"
)

const (
	NonceSize = 24
	Overhead  = box.Overhead
)

// ErrAuthentication is returned whenever a box fails to open. The caller
// cannot tell a forged message from a corrupted one.
var ErrAuthentication = errors.New("message authentication failed")

type Nonce [NonceSize]byte

// Encrypt seals plaintext from the sender to the receiver under a fresh
// random nonce. A nonce is never reused because every call draws a new one.
func Encrypt(plaintext []byte, receiverPub, senderPriv *[32]byte) ([]byte, Nonce, error) {
	var nonce Nonce
	if _, err := io.ReadFull(rand.Reader, nonce[:]); err != nil {
		return nil, nonce, fmt.Errorf("rand.Read nonce: %w", err)
	}
	ciphertext := box.Seal(nil, plaintext, (*[NonceSize]byte)(&nonce), receiverPub, senderPriv)
	return ciphertext, nonce, nil
}

// Decrypt opens a box produced by Encrypt. Any tag mismatch yields
// ErrAuthentication and no plaintext.
func Decrypt(ciphertext []byte, nonce Nonce, senderPub, receiverPriv *[32]byte) ([]byte, error) {
	if len(ciphertext) < Overhead {
		return nil, ErrAuthentication
	}
	plain, ok := box.Open(nil, ciphertext, (*[NonceSize]byte)(&nonce), senderPub, receiverPriv)
	if !ok {
		return nil, ErrAuthentication
	}
	return plain, nil
}
