package messenger

import (
	"encoding/hex"

	"e2e_relay/internal/cryptographic/encryption"
	"e2e_relay/internal/cryptographic/kdf"
	"e2e_relay/internal/identity"
)

const vaultInfo = "e2e-relay local cache"

// Vault seals text fields before they reach the local cache. Its key is
// derived from the identity's storage key, so only the same mnemonic can
// read the cache back.
type Vault struct {
	key []byte
	aad []byte
}

func NewVault(id *identity.Identity) (*Vault, error) {
	key, err := kdf.Key32([]byte(id.StorageKey()), nil, vaultInfo)
	if err != nil {
		return nil, err
	}
	return &Vault{key: key, aad: []byte(id.ID())}, nil
}

func (v *Vault) Seal(text string) (string, error) {
	ct, err := encryption.AEADEncrypt(v.key, []byte(text), v.aad)
	if err != nil {
		return "", err
	}
	return hex.EncodeToString(ct), nil
}

func (v *Vault) Open(sealed string) (string, error) {
	raw, err := hex.DecodeString(sealed)
	if err != nil {
		return "", encryption.ErrAuthentication
	}
	plain, err := encryption.AEADDecrypt(v.key, raw, v.aad)
	if err != nil {
		return "", err
	}
	return string(plain), nil
}
