package claim169

import (
	"fmt"
	"time"

	"github.com/kokukuma/claim169/cryptosuite"
	"github.com/kokukuma/claim169/cwt"
	"github.com/kokukuma/claim169/envelope"
	"github.com/kokukuma/claim169/pkg/base45"
	"github.com/kokukuma/claim169/pkg/compress"
)

// DecoderOption configures a Decoder. Options may be supplied in any
// order; nothing executes until Decode.
type DecoderOption func(*Decoder)

// WithVerifier verifies with a caller-supplied capability.
func WithVerifier(verifier cryptosuite.Verifier) DecoderOption {
	return func(d *Decoder) {
		d.verifier = verifier
	}
}

// WithEd25519Verifier verifies with a raw 32-byte Ed25519 public key.
// Small-order keys are rejected before any signature is examined.
func WithEd25519Verifier(pub []byte) DecoderOption {
	return func(d *Decoder) {
		verifier, err := cryptosuite.NewEd25519Verifier(pub)
		if err != nil {
			d.setErr(err)
			return
		}
		d.verifier = verifier
	}
}

// WithES256Verifier verifies with a raw P-256 public point (33 or 65
// bytes). The identity point is rejected before any signature math.
func WithES256Verifier(pub []byte) DecoderOption {
	return func(d *Decoder) {
		verifier, err := cryptosuite.NewES256Verifier(pub)
		if err != nil {
			d.setErr(err)
			return
		}
		d.verifier = verifier
	}
}

// WithPublicKeyPEM verifies with a PEM/SPKI public key (Ed25519 or
// ECDSA P-256).
func WithPublicKeyPEM(pemData []byte) DecoderOption {
	return func(d *Decoder) {
		verifier, err := cryptosuite.NewVerifierFromPEM(pemData)
		if err != nil {
			d.setErr(err)
			return
		}
		d.verifier = verifier
	}
}

// AllowUnverified skips signature verification. The result carries
// VerificationSkipped; the credential proves nothing.
func AllowUnverified() DecoderOption {
	return func(d *Decoder) {
		d.allowUnverified = true
	}
}

// WithDecrypter opens the encryption envelope with a caller-supplied
// capability.
func WithDecrypter(decrypter cryptosuite.Decrypter) DecoderOption {
	return func(d *Decoder) {
		d.decrypter = decrypter
	}
}

// WithAESGCMDecryption decrypts with a raw 16- or 32-byte AES key.
func WithAESGCMDecryption(key []byte) DecoderOption {
	return func(d *Decoder) {
		decrypter, err := cryptosuite.NewAESGCMDecrypter(key)
		if err != nil {
			d.setErr(err)
			return
		}
		d.decrypter = decrypter
	}
}

// SkipBiometricsOnDecode drops the biometric slots from the decoded record
// and attaches a BiometricsSkipped warning.
func SkipBiometricsOnDecode() DecoderOption {
	return func(d *Decoder) {
		d.skipBiometrics = true
	}
}

// WithoutTimestampValidation disables the expiry and not-before checks.
// The result carries a TimestampValidationSkipped warning.
func WithoutTimestampValidation() DecoderOption {
	return func(d *Decoder) {
		d.validateTimestamps = false
	}
}

// WithClockSkew sets the tolerance applied when comparing embedded
// timestamps against the current time. Default zero.
func WithClockSkew(skew time.Duration) DecoderOption {
	return func(d *Decoder) {
		d.clockSkew = skew
	}
}

// WithCurrentTime pins the clock used for timestamp validation. Test use.
func WithCurrentTime(now time.Time) DecoderOption {
	return func(d *Decoder) {
		d.now = func() time.Time { return now }
	}
}

// WithDecompressionLimit caps decompressed output. Inputs inflating beyond
// the limit fail closed. Default 65536 bytes.
func WithDecompressionLimit(limit int64) DecoderOption {
	return func(d *Decoder) {
		d.decompressionLimit = limit
	}
}

// StrictCompression rejects any compression format other than the mandated
// one instead of silently accepting it.
func StrictCompression() DecoderOption {
	return func(d *Decoder) {
		d.strictCompression = true
	}
}

// Decoder runs the fixed decode pipeline: text → decompress → decrypt (if
// present) → verify → token claims → timestamp validation → binary map →
// record. The stage order never depends on the order options were
// supplied.
type Decoder struct {
	verifier           cryptosuite.Verifier
	allowUnverified    bool
	decrypter          cryptosuite.Decrypter
	skipBiometrics     bool
	validateTimestamps bool
	clockSkew          time.Duration
	decompressionLimit int64
	strictCompression  bool
	now                func() time.Time
	err                error
}

func (d *Decoder) setErr(err error) {
	if d.err == nil {
		d.err = err
	}
}

// NewDecoder builds a Decoder from options. Option errors (bad key
// material) are deferred to Decode.
func NewDecoder(opts ...DecoderOption) *Decoder {
	d := &Decoder{
		validateTimestamps: true,
		decompressionLimit: compress.DefaultLimit,
		now:                time.Now,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// DecodeResult is a successfully decoded credential. The record and
// metadata are fresh values owned by the caller.
type DecodeResult struct {
	Record       IdentityRecord
	Metadata     TokenMetadata
	Verification VerificationOutcome
	Warnings     []Warning
}

// Decode runs the pipeline over the QR text. The text is treated as an
// opaque token: it is never trimmed or whitespace-normalized. It fails
// with ErrNoVerifier when configured with neither a verifier nor the
// explicit unverified override.
func (d *Decoder) Decode(text string) (*DecodeResult, error) {
	if d.err != nil {
		return nil, d.err
	}
	if d.verifier == nil && !d.allowUnverified {
		return nil, ErrNoVerifier
	}

	var warnings []Warning

	compressed, err := base45.Decode(text)
	if err != nil {
		return nil, fmt.Errorf("claim169: text decode: %w", err)
	}

	wire, mode, err := compress.Decompress(compressed, d.decompressionLimit, d.strictCompression)
	if err != nil {
		return nil, fmt.Errorf("claim169: decompress: %w", err)
	}
	if mode != compress.ModeZlib {
		warnings = append(warnings, WarningNonStandardCompression)
	}

	signed := wire
	if envelope.IsEncrypted(wire) {
		if d.decrypter == nil {
			return nil, ErrNoDecrypter
		}
		signed, err = envelope.Decrypt(wire, d.decrypter)
		if err != nil {
			return nil, err
		}
	}

	var claims []byte
	outcome := VerificationSkipped
	if d.verifier != nil {
		claims, err = envelope.Verify(signed, d.verifier)
		if err != nil {
			return nil, err
		}
		outcome = VerificationVerified
	} else {
		claims, err = envelope.Payload(signed)
		if err != nil {
			return nil, err
		}
	}

	meta, payload, err := cwt.Decode(claims)
	if err != nil {
		return nil, err
	}

	if d.validateTimestamps {
		if err := meta.Validate(d.now(), d.clockSkew); err != nil {
			return nil, err
		}
	} else {
		warnings = append(warnings, WarningTimestampValidationSkipped)
	}

	record, err := decodeBinaryMap(payload)
	if err != nil {
		return nil, err
	}
	if d.skipBiometrics && record.Biometrics != nil {
		record.Biometrics = nil
		warnings = append(warnings, WarningBiometricsSkipped)
	}
	if len(record.Unknown) > 0 {
		warnings = append(warnings, WarningUnknownFieldsPresent)
	}

	return &DecodeResult{
		Record:       record,
		Metadata:     meta,
		Verification: outcome,
		Warnings:     warnings,
	}, nil
}
