package dh

import (
	"bytes"
	"crypto/ed25519"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func keypair(t *testing.T, b byte) (ed25519.PublicKey, ed25519.PrivateKey) {
	t.Helper()
	priv := ed25519.NewKeyFromSeed(bytes.Repeat([]byte{b}, ed25519.SeedSize))
	return priv.Public().(ed25519.PublicKey), priv
}

func TestToExchangeKeypairDeterministic(t *testing.T) {
	pub, priv := keypair(t, 3)

	a, err := ToExchangeKeypair(pub, priv)
	require.NoError(t, err)
	b, err := ToExchangeKeypair(pub, priv)
	require.NoError(t, err)

	assert.Equal(t, a, b)
}

func TestConvertPublicHalfMatchesFullPair(t *testing.T) {
	for i := byte(1); i < 20; i++ {
		pub, priv := keypair(t, i)

		full, err := ToExchangeKeypair(pub, priv)
		require.NoError(t, err)

		onlyPub, err := ConvertPublicKey(pub)
		require.NoError(t, err)
		assert.Equal(t, full.Public, onlyPub)

		derived, err := PublicFromPrivate(full.Private)
		require.NoError(t, err)
		assert.Equal(t, onlyPub, derived)
	}
}

func TestConvertPrivateKeyAcceptsSeedOrExpanded(t *testing.T) {
	_, priv := keypair(t, 9)

	fromExpanded, err := ConvertPrivateKey(priv)
	require.NoError(t, err)
	fromSeed, err := ConvertPrivateKey(priv.Seed())
	require.NoError(t, err)
	assert.Equal(t, fromExpanded, fromSeed)

	assert.Equal(t, byte(0), fromSeed[0]&7)
	assert.Equal(t, byte(64), fromSeed[31]&192)

	_, err = ConvertPrivateKey(make([]byte, 10))
	assert.ErrorIs(t, err, ErrInvalidPrivateKey)
}

func TestConvertPublicKeyRejectsInvalid(t *testing.T) {
	_, err := ConvertPublicKey(make([]byte, 31))
	assert.ErrorIs(t, err, ErrInvalidPublicKey)

	// identity point (small order)
	identity := make([]byte, 32)
	identity[0] = 1
	_, err = ConvertPublicKey(identity)
	assert.ErrorIs(t, err, ErrInvalidPublicKey)
}

func TestToExchangeKeypairDetectsMismatch(t *testing.T) {
	pubA, _ := keypair(t, 1)
	_, privB := keypair(t, 2)

	_, err := ToExchangeKeypair(pubA, privB)
	assert.ErrorIs(t, err, ErrKeypairMismatch)
}

func TestConvertedKeysAgreeOnSharedSecret(t *testing.T) {
	pubA, privA := keypair(t, 4)
	pubB, privB := keypair(t, 5)

	a, err := ToExchangeKeypair(pubA, privA)
	require.NoError(t, err)
	b, err := ToExchangeKeypair(pubB, privB)
	require.NoError(t, err)

	ab, err := X25519SharedSecret(a.Private, b.Public)
	require.NoError(t, err)
	ba, err := X25519SharedSecret(b.Private, a.Public)
	require.NoError(t, err)
	assert.Equal(t, ab, ba)
}
