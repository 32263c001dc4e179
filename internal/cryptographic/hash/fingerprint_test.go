package hash

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFingerprintDeterministic(t *testing.T) {
	a := FingerprintHex([]byte("private key hex"))
	b := FingerprintHex([]byte("private key hex"))
	assert.Equal(t, a, b)
	assert.Len(t, a, 2*Size)
}

func TestFingerprintDistinctInputs(t *testing.T) {
	assert.NotEqual(t, Fingerprint([]byte("a")), Fingerprint([]byte("b")))
	assert.NotEqual(t, Fingerprint(nil), Fingerprint([]byte{0}))
}

func TestFingerprintKnownVector(t *testing.T) {
	// BLAKE2b-512("abc") from RFC 7693 appendix A
	assert.Equal(t,
		"ba80a53f981c4d0d6a2797b69f12f6e94c212f14685ac4b74b12bb6fdbffa2d1"+
			"7d87c5392aab792dc252d5de4533cc9518d38aa8dbf1925ab92386edd4009923",
		FingerprintHex([]byte("abc")))
}
