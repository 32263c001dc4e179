package signature

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKeypairFromSeedDeterministic(t *testing.T) {
	seed := bytes.Repeat([]byte{7}, SeedSize)

	pub1, priv1, err := KeypairFromSeed(seed)
	require.NoError(t, err)
	pub2, priv2, err := KeypairFromSeed(seed)
	require.NoError(t, err)

	assert.Equal(t, pub1, pub2)
	assert.Equal(t, priv1, priv2)
	assert.Len(t, pub1, 32)
}

func TestKeypairFromSeedRejectsWrongLength(t *testing.T) {
	_, _, err := KeypairFromSeed(make([]byte, 31))
	assert.Error(t, err)
	_, _, err = KeypairFromSeed(nil)
	assert.Error(t, err)
}

func TestSignVerify(t *testing.T) {
	pub, priv, err := KeypairFromSeed(bytes.Repeat([]byte{1}, SeedSize))
	require.NoError(t, err)

	sig := ED25519Sign(priv, []byte("hello"))
	assert.True(t, ED25519Verify(pub, []byte("hello"), sig))
	assert.False(t, ED25519Verify(pub, []byte("hellO"), sig))
	assert.False(t, ED25519Verify(pub[:31], []byte("hello"), sig))
}
