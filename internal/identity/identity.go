// Package identity derives long-term user identities from recoverable secrets.
//
// An identity is an ed25519 signing keypair. Its public half, hex encoded, is
// the user identifier known to the relay. The same keypair is converted to an
// X25519 keypair for message confidentiality, so one long-term key serves both
// signing and encryption. Callers that want separate keys can derive two
// identities from independent seeds without changing anything on the wire.
package identity

import (
	"crypto/ed25519"
	"encoding/hex"
	"errors"
	"strings"

	"e2e_relay/internal/cryptographic/dh"
	"e2e_relay/internal/cryptographic/hash"
	"e2e_relay/internal/cryptographic/signature"

	"github.com/tyler-smith/go-bip39"
)

const (
	SeedSize = signature.SeedSize
	// IDLength is the length of the hex encoded public key.
	IDLength = 2 * ed25519.PublicKeySize

	mnemonicEntropyBits = 128
)

var (
	ErrInvalidMnemonic = errors.New("invalid mnemonic")
	ErrInvalidSeed     = errors.New("seed must be exactly 32 bytes")
)

type Identity struct {
	PublicKey  ed25519.PublicKey
	PrivateKey ed25519.PrivateKey
}

// DeriveFromSeed is pure: a given 32-byte seed always yields the same
// identity. Seeds of any other length fail with ErrInvalidSeed.
func DeriveFromSeed(seed []byte) (*Identity, error) {
	if len(seed) != SeedSize {
		return nil, ErrInvalidSeed
	}
	pub, priv, err := signature.KeypairFromSeed(seed)
	if err != nil {
		return nil, err
	}
	return &Identity{PublicKey: pub, PrivateKey: priv}, nil
}

// GenerateMnemonic returns a fresh 12-word BIP-39 phrase.
func GenerateMnemonic() (string, error) {
	entropy, err := bip39.NewEntropy(mnemonicEntropyBits)
	if err != nil {
		return "", err
	}
	return bip39.NewMnemonic(entropy)
}

// ValidateMnemonic reports whether phrase is a BIP-39 mnemonic with a valid
// checksum. It never panics on malformed input.
func ValidateMnemonic(phrase string) bool {
	return bip39.IsMnemonicValid(normalize(phrase))
}

// FromMnemonic restores the identity behind a phrase: the first 32 bytes of
// the BIP-39 seed (empty passphrase) feed DeriveFromSeed.
func FromMnemonic(phrase string) (*Identity, error) {
	phrase = normalize(phrase)
	if !bip39.IsMnemonicValid(phrase) {
		return nil, ErrInvalidMnemonic
	}
	seed := bip39.NewSeed(phrase, "")
	return DeriveFromSeed(seed[:SeedSize])
}

// ID is the lowercase hex public key.
func (i *Identity) ID() string {
	return hex.EncodeToString(i.PublicKey)
}

func (i *Identity) Exchange() (*dh.ExchangeKeypair, error) {
	return dh.ToExchangeKeypair(i.PublicKey, i.PrivateKey)
}

func (i *Identity) Sign(message []byte) []byte {
	return signature.ED25519Sign(i.PrivateKey, message)
}

func (i *Identity) Verify(message, sig []byte) bool {
	return signature.ED25519Verify(i.PublicKey, message, sig)
}

// StorageKey is the fingerprint of the hex private key. It names and unlocks
// the owner's local cache.
func (i *Identity) StorageKey() string {
	return hash.FingerprintHex([]byte(hex.EncodeToString(i.PrivateKey)))
}

// ParseID decodes a hex identity string (case-insensitive) into a public key.
func ParseID(id string) (ed25519.PublicKey, error) {
	if len(id) != IDLength {
		return nil, errors.New("identity must be 64 hex characters")
	}
	b, err := hex.DecodeString(id)
	if err != nil {
		return nil, err
	}
	return ed25519.PublicKey(b), nil
}

func normalize(phrase string) string {
	return strings.Join(strings.Fields(strings.ToLower(phrase)), " ")
}
