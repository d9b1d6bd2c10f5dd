// Package pki parses verification key material: PEM/SPKI public keys and
// the raw point encodings carried by credential issuers.
package pki

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/elliptic"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"os"
)

// ParsePublicKeyPEM parses a PEM-encoded SPKI ("PUBLIC KEY") block into an
// Ed25519 or ECDSA P-256 public key.
func ParsePublicKeyPEM(data []byte) (crypto.PublicKey, error) {
	block, _ := pem.Decode(data)
	if block == nil {
		return nil, fmt.Errorf("failed to decode PEM block containing public key")
	}
	if block.Type != "PUBLIC KEY" {
		return nil, fmt.Errorf("unexpected PEM block type: %s", block.Type)
	}

	pub, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("failed to parse SPKI public key: %w", err)
	}

	switch key := pub.(type) {
	case ed25519.PublicKey:
		return key, nil
	case *ecdsa.PublicKey:
		if key.Curve != elliptic.P256() {
			return nil, fmt.Errorf("unsupported ECDSA curve: %s", key.Curve.Params().Name)
		}
		return key, nil
	default:
		return nil, fmt.Errorf("unexpected public key type: %T", pub)
	}
}

// ParseECDSAPublicKey parses a raw P-256 public point in compressed
// (33-byte) or uncompressed (65-byte) SEC 1 form.
func ParseECDSAPublicKey(raw []byte) (*ecdsa.PublicKey, error) {
	curve := elliptic.P256()

	switch len(raw) {
	case 33:
		px, py := elliptic.UnmarshalCompressed(curve, raw)
		if px == nil {
			return nil, fmt.Errorf("invalid compressed P-256 point")
		}
		return &ecdsa.PublicKey{Curve: curve, X: px, Y: py}, nil
	case 65:
		px, py := elliptic.Unmarshal(curve, raw)
		if px == nil {
			return nil, fmt.Errorf("invalid uncompressed P-256 point")
		}
		return &ecdsa.PublicKey{Curve: curve, X: px, Y: py}, nil
	default:
		return nil, fmt.Errorf("invalid P-256 public key length: %d", len(raw))
	}
}

// LoadPublicKey reads a PEM public key from a file.
func LoadPublicKey(path string) (crypto.PublicKey, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %s, err: %w", path, err)
	}
	return ParsePublicKeyPEM(data)
}
