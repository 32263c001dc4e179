package messenger

import (
	"encoding/hex"
	"encoding/json"
	"strings"
	"testing"

	"e2e_relay/internal/identity"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newIdentity(t *testing.T, fill byte) *identity.Identity {
	t.Helper()

	id, err := identity.DeriveFromSeed([]byte(strings.Repeat(string(fill), identity.SeedSize)))
	require.NoError(t, err)
	return id
}

func TestSealOpenPayload(t *testing.T) {
	alice, err := newIdentity(t, 'A').Exchange()
	require.NoError(t, err)
	bob, err := newIdentity(t, 'B').Exchange()
	require.NoError(t, err)

	payload, err := SealPayload("hello", &bob.Public, &alice.Private)
	require.NoError(t, err)
	assert.NotContains(t, payload, "hello")

	var sp sealedPayload
	require.NoError(t, json.Unmarshal([]byte(payload), &sp))
	nonce, err := hex.DecodeString(sp.Nonce)
	require.NoError(t, err)
	assert.Len(t, nonce, 24)

	text, err := OpenPayload(payload, &alice.Public, &bob.Private)
	require.NoError(t, err)
	assert.Equal(t, "hello", text)
}

func TestOpenPayloadFailures(t *testing.T) {
	alice, err := newIdentity(t, 'A').Exchange()
	require.NoError(t, err)
	bob, err := newIdentity(t, 'B').Exchange()
	require.NoError(t, err)
	eve, err := newIdentity(t, 'E').Exchange()
	require.NoError(t, err)

	payload, err := SealPayload("hello", &bob.Public, &alice.Private)
	require.NoError(t, err)

	var sp sealedPayload
	require.NoError(t, json.Unmarshal([]byte(payload), &sp))
	ct, err := hex.DecodeString(sp.Ciphertext)
	require.NoError(t, err)
	ct[0] ^= 1
	tampered, err := json.Marshal(&sealedPayload{Ciphertext: hex.EncodeToString(ct), Nonce: sp.Nonce})
	require.NoError(t, err)

	cases := map[string]string{
		"not json":     "hello",
		"bad hex":      `{"ciphertext":"zz","nonce":"00"}`,
		"short nonce":  `{"ciphertext":"00","nonce":"0011"}`,
		"tampered":     string(tampered),
		"empty object": `{}`,
	}
	for name, p := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := OpenPayload(p, &alice.Public, &bob.Private)
			assert.ErrorIs(t, err, ErrUndecryptable)
		})
	}

	t.Run("wrong receiver", func(t *testing.T) {
		_, err := OpenPayload(payload, &alice.Public, &eve.Private)
		assert.ErrorIs(t, err, ErrUndecryptable)
	})
}

func TestVault(t *testing.T) {
	alice := newIdentity(t, 'A')
	v, err := NewVault(alice)
	require.NoError(t, err)

	sealed, err := v.Seal("secret name")
	require.NoError(t, err)
	assert.NotContains(t, sealed, "secret")

	plain, err := v.Open(sealed)
	require.NoError(t, err)
	assert.Equal(t, "secret name", plain)

	again, err := v.Seal("secret name")
	require.NoError(t, err)
	assert.NotEqual(t, sealed, again)

	other, err := NewVault(newIdentity(t, 'B'))
	require.NoError(t, err)
	_, err = other.Open(sealed)
	assert.Error(t, err)

	_, err = v.Open("not hex")
	assert.Error(t, err)
}
