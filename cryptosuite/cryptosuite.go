// Package cryptosuite defines the four crypto capability interfaces the
// credential envelopes invoke, plus in-process default implementations.
//
// Each interface has a single operation (signing additionally exposes its
// algorithm and key identifier, which travel in the envelope's protected
// header). A capability can be satisfied either by the built-in
// implementations here or by a caller-supplied callback fronting an HSM,
// KMS or smartcard; the pipeline never knows which it has. The pipeline
// imposes no timeout or retry policy on callbacks — blocking semantics are
// backend-specific.
//
// All implementations in this package are safe for concurrent use from
// independent pipeline instances.
package cryptosuite

import (
	"crypto/rand"
	"fmt"
)

// Algorithm identifies a signature or content-encryption algorithm using
// the COSE registry values. The pipeline takes algorithms only from
// envelope headers; they are never inferred or defaulted.
type Algorithm int64

const (
	// AlgorithmEdDSA is Ed25519 (COSE EdDSA, -8).
	AlgorithmEdDSA Algorithm = -8

	// AlgorithmES256 is ECDSA over P-256 with SHA-256 (COSE ES256, -7).
	AlgorithmES256 Algorithm = -7

	// AlgorithmA128GCM is AES-128-GCM (COSE registry value 1).
	AlgorithmA128GCM Algorithm = 1

	// AlgorithmA256GCM is AES-256-GCM (COSE registry value 3).
	AlgorithmA256GCM Algorithm = 3
)

func (a Algorithm) String() string {
	switch a {
	case AlgorithmEdDSA:
		return "EdDSA"
	case AlgorithmES256:
		return "ES256"
	case AlgorithmA128GCM:
		return "A128GCM"
	case AlgorithmA256GCM:
		return "A256GCM"
	default:
		return fmt.Sprintf("unknown(%d)", int64(a))
	}
}

// NonceSize is the AEAD nonce length in bytes.
const NonceSize = 12

// Signer produces a signature over the token bytes. Algorithm and KeyID are
// recorded in the signature envelope's headers.
type Signer interface {
	Algorithm() Algorithm
	KeyID() []byte
	Sign(data []byte) ([]byte, error)
}

// Verifier checks a signature. The algorithm and key identifier come from
// the envelope's protected header. A verification failure is reported as an
// error, never ignored.
type Verifier interface {
	Verify(alg Algorithm, keyID, data, signature []byte) error
}

// Encrypter seals plaintext with an AEAD; the returned ciphertext carries
// the authentication tag appended.
type Encrypter interface {
	Algorithm() Algorithm
	KeyID() []byte
	Encrypt(nonce, aad, plaintext []byte) ([]byte, error)
}

// Decrypter opens AEAD ciphertext. An authentication-tag mismatch is a hard
// failure.
type Decrypter interface {
	Decrypt(alg Algorithm, keyID, nonce, aad, ciphertext []byte) ([]byte, error)
}

// GenerateNonce returns a fresh random AEAD nonce from the process-wide
// secure random source.
func GenerateNonce() ([]byte, error) {
	nonce := make([]byte, NonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}
	return nonce, nil
}
