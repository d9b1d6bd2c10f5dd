package cryptosuite

import (
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/sha256"
	"fmt"
	"math/big"

	"github.com/kokukuma/claim169/pkg/pki"
)

type ed25519Signer struct {
	key   ed25519.PrivateKey
	keyID []byte
}

// NewEd25519Signer builds a Signer from raw Ed25519 private key material:
// either a 32-byte seed or a 64-byte private key. keyID may be nil.
func NewEd25519Signer(key, keyID []byte) (Signer, error) {
	var priv ed25519.PrivateKey
	switch len(key) {
	case ed25519.SeedSize:
		priv = ed25519.NewKeyFromSeed(key)
	case ed25519.PrivateKeySize:
		priv = ed25519.PrivateKey(append([]byte(nil), key...))
	default:
		return nil, InvalidKeySizeError{Size: len(key)}
	}
	if err := checkEd25519PublicKey(priv.Public().(ed25519.PublicKey)); err != nil {
		return nil, err
	}
	return &ed25519Signer{key: priv, keyID: keyID}, nil
}

func (s *ed25519Signer) Algorithm() Algorithm { return AlgorithmEdDSA }

func (s *ed25519Signer) KeyID() []byte { return s.keyID }

func (s *ed25519Signer) Sign(data []byte) ([]byte, error) {
	return ed25519.Sign(s.key, data), nil
}

type es256Signer struct {
	key   *ecdsa.PrivateKey
	keyID []byte
}

// NewES256Signer builds a Signer from a raw 32-byte P-256 private scalar.
// keyID may be nil.
func NewES256Signer(key, keyID []byte) (Signer, error) {
	if len(key) != 32 {
		return nil, InvalidKeySizeError{Size: len(key)}
	}

	curve := elliptic.P256()
	d := new(big.Int).SetBytes(key)
	if d.Sign() == 0 || d.Cmp(curve.Params().N) >= 0 {
		return nil, WeakKeyError{Reason: "ecdsa scalar out of range"}
	}

	priv := &ecdsa.PrivateKey{D: d}
	priv.Curve = curve
	priv.X, priv.Y = curve.ScalarBaseMult(d.Bytes())
	if err := checkECDSAPublicKey(&priv.PublicKey); err != nil {
		return nil, err
	}
	return &es256Signer{key: priv, keyID: keyID}, nil
}

func (s *es256Signer) Algorithm() Algorithm { return AlgorithmES256 }

func (s *es256Signer) KeyID() []byte { return s.keyID }

func (s *es256Signer) Sign(data []byte) ([]byte, error) {
	digest := sha256.Sum256(data)
	r, sv, err := ecdsa.Sign(rand.Reader, s.key, digest[:])
	if err != nil {
		return nil, fmt.Errorf("ecdsa sign: %w", err)
	}
	return encodeRawSignature(r, sv), nil
}

// encodeRawSignature produces the 64-byte r||s form COSE requires.
func encodeRawSignature(r, s *big.Int) []byte {
	sig := make([]byte, 64)
	r.FillBytes(sig[:32])
	s.FillBytes(sig[32:])
	return sig
}

type ed25519Verifier struct {
	key ed25519.PublicKey
}

// NewEd25519Verifier builds a Verifier from a raw 32-byte Ed25519 public
// key. Small-order keys are rejected here, before any signature is seen.
func NewEd25519Verifier(pub []byte) (Verifier, error) {
	if err := checkEd25519PublicKey(pub); err != nil {
		return nil, err
	}
	return &ed25519Verifier{key: append(ed25519.PublicKey(nil), pub...)}, nil
}

func (v *ed25519Verifier) Verify(alg Algorithm, keyID, data, signature []byte) error {
	if alg != AlgorithmEdDSA {
		return UnsupportedAlgorithmError{Algorithm: alg}
	}
	if !ed25519.Verify(v.key, data, signature) {
		return fmt.Errorf("ed25519: %w", ErrVerificationFailed)
	}
	return nil
}

type es256Verifier struct {
	key *ecdsa.PublicKey
}

// NewES256Verifier builds a Verifier from a raw P-256 public point in
// compressed (33-byte) or uncompressed (65-byte) form. The identity point
// is rejected before any signature math.
func NewES256Verifier(pub []byte) (Verifier, error) {
	key, err := pki.ParseECDSAPublicKey(pub)
	if err != nil {
		return nil, fmt.Errorf("failed to parse P-256 public key: %w", err)
	}
	if err := checkECDSAPublicKey(key); err != nil {
		return nil, err
	}
	return &es256Verifier{key: key}, nil
}

// NewECDSAVerifier wraps an already-parsed P-256 public key, applying the
// same weak-key checks as NewES256Verifier.
func NewECDSAVerifier(key *ecdsa.PublicKey) (Verifier, error) {
	if err := checkECDSAPublicKey(key); err != nil {
		return nil, err
	}
	return &es256Verifier{key: key}, nil
}

func (v *es256Verifier) Verify(alg Algorithm, keyID, data, signature []byte) error {
	if alg != AlgorithmES256 {
		return UnsupportedAlgorithmError{Algorithm: alg}
	}
	if len(signature) != 64 {
		return fmt.Errorf("invalid ES256 signature length %d: %w", len(signature), ErrVerificationFailed)
	}
	digest := sha256.Sum256(data)
	r := new(big.Int).SetBytes(signature[:32])
	s := new(big.Int).SetBytes(signature[32:])
	if !ecdsa.Verify(v.key, digest[:], r, s) {
		return fmt.Errorf("ecdsa: %w", ErrVerificationFailed)
	}
	return nil
}

// NewVerifierFromPEM builds a Verifier from a PEM/SPKI public key,
// dispatching on the key type found in the document.
func NewVerifierFromPEM(pemData []byte) (Verifier, error) {
	pub, err := pki.ParsePublicKeyPEM(pemData)
	if err != nil {
		return nil, err
	}
	switch key := pub.(type) {
	case ed25519.PublicKey:
		return NewEd25519Verifier(key)
	case *ecdsa.PublicKey:
		return NewECDSAVerifier(key)
	default:
		return nil, fmt.Errorf("unexpected public key type: %T", pub)
	}
}

// keyRingVerifier resolves keys by identifier, the way an external key
// custodian would.
type keyRingVerifier struct {
	keys map[string]Verifier
}

// NewKeyRingVerifier builds a Verifier that dispatches on the key
// identifier carried in the signature envelope. An absent or unknown
// identifier fails with ErrKeyNotFound.
func NewKeyRingVerifier(keys map[string]Verifier) Verifier {
	ring := make(map[string]Verifier, len(keys))
	for id, v := range keys {
		ring[id] = v
	}
	return &keyRingVerifier{keys: ring}
}

func (v *keyRingVerifier) Verify(alg Algorithm, keyID, data, signature []byte) error {
	verifier, ok := v.keys[string(keyID)]
	if !ok {
		return fmt.Errorf("%w: %q", ErrKeyNotFound, string(keyID))
	}
	return verifier.Verify(alg, keyID, data, signature)
}
