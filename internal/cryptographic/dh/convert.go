package dh

import (
	"bytes"
	"crypto/ed25519"
	"crypto/sha512"
	"errors"
	"fmt"

	"filippo.io/edwards25519"
	"golang.org/x/crypto/curve25519"
)

const KeySize = curve25519.PointSize

var (
	ErrInvalidPublicKey  = errors.New("invalid ed25519 public key")
	ErrInvalidPrivateKey = errors.New("invalid ed25519 private key")
	ErrKeypairMismatch   = errors.New("public key does not belong to private key")
)

// ExchangeKeypair is an X25519 keypair obtained from an ed25519 signing keypair.
type ExchangeKeypair struct {
	Public  [KeySize]byte
	Private [KeySize]byte
}

// ConvertPublicKey maps an ed25519 public key to its X25519 (Montgomery u)
// form via the birational map between the two curves.
func ConvertPublicKey(edPub []byte) ([KeySize]byte, error) {
	var out [KeySize]byte
	if len(edPub) != ed25519.PublicKeySize {
		return out, ErrInvalidPublicKey
	}

	p, err := new(edwards25519.Point).SetBytes(edPub)
	if err != nil {
		return out, fmt.Errorf("%w: %v", ErrInvalidPublicKey, err)
	}
	// small-order points give an all-zero shared secret
	if new(edwards25519.Point).MultByCofactor(p).Equal(edwards25519.NewIdentityPoint()) == 1 {
		return out, ErrInvalidPublicKey
	}

	copy(out[:], p.BytesMontgomery())
	return out, nil
}

// ConvertPrivateKey maps an ed25519 private key (64-byte expanded form or the
// 32-byte seed) to the clamped X25519 scalar ed25519 itself signs with.
func ConvertPrivateKey(edPriv []byte) ([KeySize]byte, error) {
	var out [KeySize]byte

	var seed []byte
	switch len(edPriv) {
	case ed25519.PrivateKeySize:
		seed = edPriv[:ed25519.SeedSize]
	case ed25519.SeedSize:
		seed = edPriv
	default:
		return out, ErrInvalidPrivateKey
	}

	h := sha512.Sum512(seed)
	h[0] &= 248
	h[31] &= 127
	h[31] |= 64
	copy(out[:], h[:KeySize])

	for i := range h {
		h[i] = 0
	}
	return out, nil
}

// ToExchangeKeypair converts both halves of a signing keypair and checks that
// they still agree on the Montgomery curve.
func ToExchangeKeypair(edPub ed25519.PublicKey, edPriv ed25519.PrivateKey) (*ExchangeKeypair, error) {
	pub, err := ConvertPublicKey(edPub)
	if err != nil {
		return nil, err
	}
	priv, err := ConvertPrivateKey(edPriv)
	if err != nil {
		return nil, err
	}

	derived, err := PublicFromPrivate(priv)
	if err != nil {
		return nil, err
	}
	if !bytes.Equal(derived[:], pub[:]) {
		return nil, ErrKeypairMismatch
	}

	return &ExchangeKeypair{Public: pub, Private: priv}, nil
}

func PublicFromPrivate(priv [KeySize]byte) ([KeySize]byte, error) {
	var pub [KeySize]byte
	out, err := curve25519.X25519(priv[:], curve25519.Basepoint)
	if err != nil {
		return pub, err
	}
	copy(pub[:], out)
	return pub, nil
}

// Perform X25519 scalar multiplication: priv * pub
func X25519SharedSecret(priv, pub [KeySize]byte) ([]byte, error) {
	return curve25519.X25519(priv[:], pub[:])
}
