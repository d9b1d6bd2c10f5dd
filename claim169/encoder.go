package claim169

import (
	"fmt"

	"github.com/kokukuma/claim169/cryptosuite"
	"github.com/kokukuma/claim169/cwt"
	"github.com/kokukuma/claim169/envelope"
	"github.com/kokukuma/claim169/pkg/base45"
	"github.com/kokukuma/claim169/pkg/compress"
)

// EncoderOption configures an Encoder. Options may be supplied in any
// order; nothing executes until Encode.
type EncoderOption func(*Encoder)

// WithSigner signs with a caller-supplied capability (HSM, KMS, smartcard).
func WithSigner(signer cryptosuite.Signer) EncoderOption {
	return func(e *Encoder) {
		e.signer = signer
	}
}

// WithEd25519Signer signs with a raw Ed25519 private key (32-byte seed or
// 64-byte private key).
func WithEd25519Signer(key []byte) EncoderOption {
	return func(e *Encoder) {
		signer, err := cryptosuite.NewEd25519Signer(key, nil)
		if err != nil {
			e.setErr(err)
			return
		}
		e.signer = signer
	}
}

// WithES256Signer signs with a raw 32-byte P-256 private scalar.
func WithES256Signer(key []byte) EncoderOption {
	return func(e *Encoder) {
		signer, err := cryptosuite.NewES256Signer(key, nil)
		if err != nil {
			e.setErr(err)
			return
		}
		e.signer = signer
	}
}

// AllowUnsigned emits a credential without a signature. Test use only:
// every conforming verifier rejects it unless explicitly overridden.
func AllowUnsigned() EncoderOption {
	return func(e *Encoder) {
		e.allowUnsigned = true
	}
}

// WithEncrypter encrypts the signed bytes with a caller-supplied AEAD
// capability.
func WithEncrypter(encrypter cryptosuite.Encrypter) EncoderOption {
	return func(e *Encoder) {
		e.encrypter = encrypter
	}
}

// WithAESGCMEncryption encrypts with a raw 16- or 32-byte AES key.
func WithAESGCMEncryption(key []byte) EncoderOption {
	return func(e *Encoder) {
		encrypter, err := cryptosuite.NewAESGCMEncrypter(key, nil)
		if err != nil {
			e.setErr(err)
			return
		}
		e.encrypter = encrypter
	}
}

// WithNonce supplies an explicit 12-byte AEAD nonce instead of a random
// one. The caller is responsible for never reusing it under the same key.
// Encode fails if a nonce is configured without an encrypter.
func WithNonce(nonce []byte) EncoderOption {
	return func(e *Encoder) {
		if len(nonce) != cryptosuite.NonceSize {
			e.setErr(fmt.Errorf("claim169: invalid nonce length %d, want %d", len(nonce), cryptosuite.NonceSize))
			return
		}
		e.nonce = nonce
	}
}

// SkipBiometrics drops the biometric slots from the encoded payload and
// attaches a BiometricsSkipped warning.
func SkipBiometrics() EncoderOption {
	return func(e *Encoder) {
		e.skipBiometrics = true
	}
}

// WithCompression selects a compression mode. Any mode other than the
// mandated one attaches a NonStandardCompression warning, since other
// implementations of the public specification may only support the
// mandated algorithm.
func WithCompression(mode compress.Mode) EncoderOption {
	return func(e *Encoder) {
		e.compression = mode
	}
}

// Encoder runs the fixed encode pipeline: binary map → token claims →
// sign → encrypt (if configured) → compress → text. The stage order never
// depends on the order options were supplied. An Encoder instance is
// independently owned; build one per operation or share freely — Encode
// holds no mutable state across calls.
type Encoder struct {
	signer         cryptosuite.Signer
	allowUnsigned  bool
	encrypter      cryptosuite.Encrypter
	nonce          []byte
	skipBiometrics bool
	compression    compress.Mode
	err            error
}

func (e *Encoder) setErr(err error) {
	if e.err == nil {
		e.err = err
	}
}

// NewEncoder builds an Encoder from options. Option errors (bad key
// material) are deferred to Encode.
func NewEncoder(opts ...EncoderOption) *Encoder {
	e := &Encoder{compression: compress.ModeZlib}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// EncodeResult is a successfully encoded credential with any non-fatal
// warnings.
type EncodeResult struct {
	Text     string
	Warnings []Warning
}

// Encode runs the pipeline. The record and metadata are taken by value and
// never mutated. It fails with ErrNoSigner when configured with neither a
// signer nor the explicit unsigned override.
func (e *Encoder) Encode(record IdentityRecord, meta TokenMetadata) (*EncodeResult, error) {
	if e.err != nil {
		return nil, e.err
	}
	if e.signer == nil && !e.allowUnsigned {
		return nil, ErrNoSigner
	}
	if e.nonce != nil && e.encrypter == nil {
		return nil, fmt.Errorf("claim169: nonce configured without an encrypter")
	}

	var warnings []Warning

	if e.skipBiometrics {
		record.Biometrics = nil
		warnings = append(warnings, WarningBiometricsSkipped)
	}
	if len(record.Unknown) > 0 {
		warnings = append(warnings, WarningUnknownFieldsPresent)
	}

	payload, err := encodeBinaryMap(record)
	if err != nil {
		return nil, err
	}

	claims, err := cwt.Encode(meta, payload)
	if err != nil {
		return nil, err
	}

	var signed []byte
	if e.signer != nil {
		signed, err = envelope.Sign(claims, e.signer)
	} else {
		signed, err = envelope.WrapUnsigned(claims)
	}
	if err != nil {
		return nil, err
	}

	wire := signed
	if e.encrypter != nil {
		nonce := e.nonce
		if nonce == nil {
			nonce, err = cryptosuite.GenerateNonce()
			if err != nil {
				return nil, err
			}
		}
		wire, err = envelope.Encrypt(signed, e.encrypter, nonce)
		if err != nil {
			return nil, err
		}
	}

	compressed, _, err := compress.Compress(wire, e.compression)
	if err != nil {
		return nil, fmt.Errorf("claim169: compress: %w", err)
	}
	if e.compression != compress.ModeZlib {
		warnings = append(warnings, WarningNonStandardCompression)
	}

	return &EncodeResult{
		Text:     base45.Encode(compressed),
		Warnings: warnings,
	}, nil
}
