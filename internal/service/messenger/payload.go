package messenger

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"

	"e2e_relay/internal/cryptographic/encryption"
)

// Undecryptable is what the UI shows for a payload that fails to open.
const Undecryptable = "[UNABLE TO DECRYPT]"

// ErrUndecryptable covers malformed payloads as well as failed
// authentication.
var ErrUndecryptable = errors.New("payload cannot be decrypted")

type sealedPayload struct {
	Ciphertext string `json:"ciphertext"`
	Nonce      string `json:"nonce"`
}

// SealPayload encrypts text from the sender's exchange key to the receiver's
// and encodes it as the relay payload string.
func SealPayload(text string, receiverPub, senderPriv *[32]byte) (string, error) {
	ct, nonce, err := encryption.Encrypt([]byte(text), receiverPub, senderPriv)
	if err != nil {
		return "", err
	}

	data, err := json.Marshal(&sealedPayload{
		Ciphertext: hex.EncodeToString(ct),
		Nonce:      hex.EncodeToString(nonce[:]),
	})
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func OpenPayload(payload string, senderPub, receiverPriv *[32]byte) (string, error) {
	var sp sealedPayload
	if err := json.Unmarshal([]byte(payload), &sp); err != nil {
		return "", fmt.Errorf("%w: %v", ErrUndecryptable, err)
	}

	ct, err := hex.DecodeString(sp.Ciphertext)
	if err != nil {
		return "", fmt.Errorf("%w: ciphertext: %v", ErrUndecryptable, err)
	}
	rawNonce, err := hex.DecodeString(sp.Nonce)
	if err != nil || len(rawNonce) != encryption.NonceSize {
		return "", fmt.Errorf("%w: bad nonce", ErrUndecryptable)
	}

	var nonce encryption.Nonce
	copy(nonce[:], rawNonce)
	plain, err := encryption.Decrypt(ct, nonce, senderPub, receiverPriv)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUndecryptable, err)
	}
	return string(plain), nil
}
