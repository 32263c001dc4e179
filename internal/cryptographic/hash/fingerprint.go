package hash

import (
	"encoding/hex"

	"golang.org/x/crypto/blake2b"
)

const Size = blake2b.Size

// Fingerprint is an unkeyed BLAKE2b-512 digest of data.
func Fingerprint(data []byte) [Size]byte {
	return blake2b.Sum512(data)
}

func FingerprintHex(data []byte) string {
	sum := Fingerprint(data)
	return hex.EncodeToString(sum[:])
}
