package cryptosuite

import (
	"crypto/aes"
	"crypto/cipher"
	"fmt"
)

func newGCM(key []byte) (cipher.AEAD, Algorithm, error) {
	var alg Algorithm
	switch len(key) {
	case 16:
		alg = AlgorithmA128GCM
	case 32:
		alg = AlgorithmA256GCM
	default:
		return nil, 0, InvalidKeySizeError{Size: len(key)}
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, 0, fmt.Errorf("aes: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, 0, fmt.Errorf("gcm: %w", err)
	}
	return gcm, alg, nil
}

type aesGCMEncrypter struct {
	gcm   cipher.AEAD
	alg   Algorithm
	keyID []byte
}

// NewAESGCMEncrypter builds an Encrypter from a raw 16- or 32-byte AES key.
// The algorithm identifier follows the key size. keyID may be nil.
func NewAESGCMEncrypter(key, keyID []byte) (Encrypter, error) {
	gcm, alg, err := newGCM(key)
	if err != nil {
		return nil, err
	}
	return &aesGCMEncrypter{gcm: gcm, alg: alg, keyID: keyID}, nil
}

func (e *aesGCMEncrypter) Algorithm() Algorithm { return e.alg }

func (e *aesGCMEncrypter) KeyID() []byte { return e.keyID }

func (e *aesGCMEncrypter) Encrypt(nonce, aad, plaintext []byte) ([]byte, error) {
	if len(nonce) != NonceSize {
		return nil, fmt.Errorf("invalid nonce length: %d", len(nonce))
	}
	return e.gcm.Seal(nil, nonce, plaintext, aad), nil
}

type aesGCMDecrypter struct {
	gcm cipher.AEAD
	alg Algorithm
}

// NewAESGCMDecrypter builds a Decrypter from a raw 16- or 32-byte AES key.
// Decrypt refuses algorithm identifiers that do not match the key size.
func NewAESGCMDecrypter(key []byte) (Decrypter, error) {
	gcm, alg, err := newGCM(key)
	if err != nil {
		return nil, err
	}
	return &aesGCMDecrypter{gcm: gcm, alg: alg}, nil
}

func (d *aesGCMDecrypter) Decrypt(alg Algorithm, keyID, nonce, aad, ciphertext []byte) ([]byte, error) {
	if alg != d.alg {
		return nil, UnsupportedAlgorithmError{Algorithm: alg}
	}
	if len(nonce) != NonceSize {
		return nil, fmt.Errorf("invalid nonce length: %d", len(nonce))
	}
	plaintext, err := d.gcm.Open(nil, nonce, ciphertext, aad)
	if err != nil {
		return nil, fmt.Errorf("aead authentication failed: %w", err)
	}
	return plaintext, nil
}
