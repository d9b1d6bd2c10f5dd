package claim169

import (
	"bytes"
	"crypto/ed25519"
	"errors"
	"testing"
	"time"

	"github.com/fxamacker/cbor/v2"

	"github.com/kokukuma/claim169/cryptosuite"
	"github.com/kokukuma/claim169/cwt"
	"github.com/kokukuma/claim169/envelope"
	"github.com/kokukuma/claim169/pkg/base45"
	"github.com/kokukuma/claim169/pkg/compress"
)

func testNow() time.Time {
	return time.Unix(1700000000, 0)
}

func newTestSigner() (cryptosuite.Signer, error) {
	return cryptosuite.NewEd25519Signer(testEd25519Seed(), nil)
}

func rawUnknownValue(t *testing.T) cbor.RawMessage {
	t.Helper()
	raw, err := cbor.Marshal("reserved for future revisions")
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return raw
}

// encodeSigned is the common fixture: a signed, zlib-compressed credential.
func encodeSigned(t *testing.T, record IdentityRecord, meta TokenMetadata, opts ...EncoderOption) string {
	t.Helper()
	opts = append([]EncoderOption{WithEd25519Signer(testEd25519Seed())}, opts...)
	result, err := NewEncoder(opts...).Encode(record, meta)
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}
	return result.Text
}

func TestDecodeRequiresVerifier(t *testing.T) {
	text := encodeSigned(t, fullRecord(), testMetadata())

	_, err := NewDecoder(WithCurrentTime(testNow())).Decode(text)
	if !errors.Is(err, ErrNoVerifier) {
		t.Errorf("Decode() without verifier error = %v, want ErrNoVerifier", err)
	}
}

func TestDecodeVerificationOutcomes(t *testing.T) {
	text := encodeSigned(t, fullRecord(), testMetadata())

	verified, err := NewDecoder(
		WithEd25519Verifier(testEd25519Public(t)),
		WithCurrentTime(testNow()),
	).Decode(text)
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if verified.Verification != VerificationVerified {
		t.Errorf("Verification = %v, want verified", verified.Verification)
	}

	skipped, err := NewDecoder(
		AllowUnverified(),
		WithCurrentTime(testNow()),
	).Decode(text)
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if skipped.Verification != VerificationSkipped {
		t.Errorf("Verification = %v, want skipped", skipped.Verification)
	}
}

func TestDecodeWrongKey(t *testing.T) {
	text := encodeSigned(t, fullRecord(), testMetadata())

	otherSeed := make([]byte, ed25519.SeedSize)
	otherSeed[0] = 0x42
	otherPub := ed25519.NewKeyFromSeed(otherSeed).Public().(ed25519.PublicKey)

	_, err := NewDecoder(
		WithEd25519Verifier(otherPub),
		WithCurrentTime(testNow()),
	).Decode(text)
	if !errors.Is(err, ErrSignatureInvalid) {
		t.Errorf("Decode() with wrong key error = %v, want ErrSignatureInvalid", err)
	}
}

func TestDecodeTamperedSignature(t *testing.T) {
	text := encodeSigned(t, fullRecord(), testMetadata())

	compressed, err := base45.Decode(text)
	if err != nil {
		t.Fatalf("base45 decode: %v", err)
	}
	signed, _, err := compress.Decompress(compressed, compress.DefaultLimit, false)
	if err != nil {
		t.Fatalf("decompress: %v", err)
	}

	// The signature bytes sit at the tail of the signed message. Flipping
	// one keeps the structure parseable but must fail verification.
	tampered := make([]byte, len(signed))
	copy(tampered, signed)
	tampered[len(tampered)-1] ^= 0x01

	recompressed, _, err := compress.Compress(tampered, compress.ModeZlib)
	if err != nil {
		t.Fatalf("compress: %v", err)
	}

	_, err = NewDecoder(
		WithEd25519Verifier(testEd25519Public(t)),
		WithCurrentTime(testNow()),
	).Decode(base45.Encode(recompressed))
	if !errors.Is(err, ErrSignatureInvalid) {
		t.Errorf("Decode() of tampered credential error = %v, want ErrSignatureInvalid", err)
	}
}

func TestDecodeEncrypted(t *testing.T) {
	aesKey := make([]byte, 16)
	for i := range aesKey {
		aesKey[i] = byte(i)
	}
	text := encodeSigned(t, fullRecord(), testMetadata(), WithAESGCMEncryption(aesKey))

	t.Run("round trip", func(t *testing.T) {
		result, err := NewDecoder(
			WithEd25519Verifier(testEd25519Public(t)),
			WithAESGCMDecryption(aesKey),
			WithCurrentTime(testNow()),
		).Decode(text)
		if err != nil {
			t.Fatalf("Decode() error = %v", err)
		}
		if result.Verification != VerificationVerified {
			t.Errorf("Verification = %v, want verified", result.Verification)
		}
		if result.Record.FullName == nil || *result.Record.FullName != "Jane Doe" {
			t.Error("record lost through encryption round trip")
		}
	})

	t.Run("no decrypter configured", func(t *testing.T) {
		_, err := NewDecoder(
			WithEd25519Verifier(testEd25519Public(t)),
			WithCurrentTime(testNow()),
		).Decode(text)
		if !errors.Is(err, ErrNoDecrypter) {
			t.Errorf("Decode() error = %v, want ErrNoDecrypter", err)
		}
	})

	t.Run("wrong key", func(t *testing.T) {
		wrongKey := make([]byte, 16)
		wrongKey[0] = 0xff
		_, err := NewDecoder(
			WithEd25519Verifier(testEd25519Public(t)),
			WithAESGCMDecryption(wrongKey),
			WithCurrentTime(testNow()),
		).Decode(text)
		if !errors.Is(err, ErrDecryptionFailed) {
			t.Errorf("Decode() error = %v, want ErrDecryptionFailed", err)
		}
	})
}

func TestDecodeTimestamps(t *testing.T) {
	exp := int64(1700000000)
	tests := []struct {
		name    string
		meta    TokenMetadata
		opts    []DecoderOption
		wantErr error
	}{
		{
			name: "expiry exactly now passes",
			meta: TokenMetadata{ExpiresAt: int64Ptr(exp)},
		},
		{
			name:    "expired one second ago",
			meta:    TokenMetadata{ExpiresAt: int64Ptr(exp - 1)},
			wantErr: cwt.ExpiredError{ExpiresAt: exp - 1},
		},
		{
			name: "expired within skew",
			meta: TokenMetadata{ExpiresAt: int64Ptr(exp - 30)},
			opts: []DecoderOption{WithClockSkew(time.Minute)},
		},
		{
			name:    "not yet valid",
			meta:    TokenMetadata{NotBefore: int64Ptr(exp + 60)},
			wantErr: cwt.NotYetValidError{NotBefore: exp + 60},
		},
		{
			name: "not-before within skew",
			meta: TokenMetadata{NotBefore: int64Ptr(exp + 30)},
			opts: []DecoderOption{WithClockSkew(time.Minute)},
		},
		{
			name: "expired but validation disabled",
			meta: TokenMetadata{ExpiresAt: int64Ptr(exp - 1000)},
			opts: []DecoderOption{WithoutTimestampValidation()},
		},
		{
			name: "issued in the future is informational",
			meta: TokenMetadata{IssuedAt: int64Ptr(exp + 99999)},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			text := encodeSigned(t, IdentityRecord{ID: strPtr("ID-1")}, tt.meta)
			opts := append([]DecoderOption{
				WithEd25519Verifier(testEd25519Public(t)),
				WithCurrentTime(testNow()),
			}, tt.opts...)

			result, err := NewDecoder(opts...).Decode(text)
			if tt.wantErr != nil {
				var expired cwt.ExpiredError
				var notYet cwt.NotYetValidError
				switch {
				case errors.As(tt.wantErr, &expired):
					var got cwt.ExpiredError
					if !errors.As(err, &got) || got != expired {
						t.Errorf("Decode() error = %v, want %v", err, tt.wantErr)
					}
				case errors.As(tt.wantErr, &notYet):
					var got cwt.NotYetValidError
					if !errors.As(err, &got) || got != notYet {
						t.Errorf("Decode() error = %v, want %v", err, tt.wantErr)
					}
				}
				return
			}
			if err != nil {
				t.Fatalf("Decode() error = %v", err)
			}
			if hasWarning(result.Warnings, WarningTimestampValidationSkipped) != !decoderValidates(tt.opts) {
				t.Error("timestamp validation warning does not match configuration")
			}
		})
	}
}

func decoderValidates(opts []DecoderOption) bool {
	d := NewDecoder(opts...)
	return d.validateTimestamps
}

func TestDecodeDecompressionBomb(t *testing.T) {
	// A zlib stream inflating past the default limit must fail closed even
	// though it never reaches the envelope stages.
	bomb, _, err := compress.Compress(make([]byte, 200_000), compress.ModeZlib)
	if err != nil {
		t.Fatalf("compress: %v", err)
	}
	text := base45.Encode(bomb)

	_, err = NewDecoder(AllowUnverified()).Decode(text)
	var limitErr compress.LimitExceededError
	if !errors.As(err, &limitErr) {
		t.Fatalf("Decode() error = %v, want LimitExceededError", err)
	}
	if limitErr.Limit != compress.DefaultLimit {
		t.Errorf("limit = %d, want %d", limitErr.Limit, compress.DefaultLimit)
	}
}

func TestDecodeRaisedDecompressionLimit(t *testing.T) {
	record := fullRecord()
	record.Photo = make([]byte, 80_000) // inflates past the default limit
	text := encodeSigned(t, record, testMetadata())

	_, err := NewDecoder(
		WithEd25519Verifier(testEd25519Public(t)),
		WithCurrentTime(testNow()),
	).Decode(text)
	var limitErr compress.LimitExceededError
	if !errors.As(err, &limitErr) {
		t.Fatalf("Decode() at default limit error = %v, want LimitExceededError", err)
	}

	result, err := NewDecoder(
		WithEd25519Verifier(testEd25519Public(t)),
		WithCurrentTime(testNow()),
		WithDecompressionLimit(1<<20),
	).Decode(text)
	if err != nil {
		t.Fatalf("Decode() with raised limit error = %v", err)
	}
	if len(result.Record.Photo) != 80_000 {
		t.Errorf("photo length = %d, want 80000", len(result.Record.Photo))
	}
}

func TestDecodeCompressionModes(t *testing.T) {
	tests := []struct {
		name     string
		mode     compress.Mode
		wantWarn bool
	}{
		{name: "zlib", mode: compress.ModeZlib, wantWarn: false},
		{name: "none", mode: compress.ModeNone, wantWarn: true},
		{name: "zstd", mode: compress.ModeZstd, wantWarn: true},
		{name: "lz4", mode: compress.ModeLZ4, wantWarn: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			text := encodeSigned(t, fullRecord(), testMetadata(), WithCompression(tt.mode))
			result, err := NewDecoder(
				WithEd25519Verifier(testEd25519Public(t)),
				WithCurrentTime(testNow()),
			).Decode(text)
			if err != nil {
				t.Fatalf("Decode() error = %v", err)
			}
			if got := hasWarning(result.Warnings, WarningNonStandardCompression); got != tt.wantWarn {
				t.Errorf("non-standard compression warning = %v, want %v", got, tt.wantWarn)
			}
		})
	}
}

func TestDecodeStrictCompression(t *testing.T) {
	text := encodeSigned(t, fullRecord(), testMetadata(), WithCompression(compress.ModeZstd))

	_, err := NewDecoder(
		WithEd25519Verifier(testEd25519Public(t)),
		WithCurrentTime(testNow()),
		StrictCompression(),
	).Decode(text)
	var formatErr compress.UnexpectedFormatError
	if !errors.As(err, &formatErr) {
		t.Errorf("Decode() with strict compression error = %v, want UnexpectedFormatError", err)
	}
}

func TestDecodeTokenWithoutIdentityPayload(t *testing.T) {
	// A valid signed CWT that carries no identity payload claim: a token,
	// but not this credential type.
	claims, err := encMode.Marshal(map[int64]interface{}{1: "https://issuer.example.com"})
	if err != nil {
		t.Fatalf("marshal claims: %v", err)
	}
	signer, err := newTestSigner()
	if err != nil {
		t.Fatalf("signer: %v", err)
	}
	signed, err := envelope.Sign(claims, signer)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	compressed, _, err := compress.Compress(signed, compress.ModeZlib)
	if err != nil {
		t.Fatalf("compress: %v", err)
	}

	_, err = NewDecoder(
		WithEd25519Verifier(testEd25519Public(t)),
		WithCurrentTime(testNow()),
	).Decode(base45.Encode(compressed))
	if !errors.Is(err, ErrPayloadNotFound) {
		t.Errorf("Decode() error = %v, want ErrPayloadNotFound", err)
	}
}

func TestDecodeRejectsMalformedText(t *testing.T) {
	tests := []struct {
		name string
		text string
	}{
		{name: "empty", text: ""},
		{name: "invalid alphabet", text: "abc"},
		{name: "dangling character", text: "BB8A"},
		{name: "surrounding whitespace", text: " BB8 "},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewDecoder(AllowUnverified()).Decode(tt.text); err == nil {
				t.Error("Decode() = nil error, want failure")
			}
		})
	}
}

func TestDecodeUnsignedCredential(t *testing.T) {
	result, err := NewEncoder(AllowUnsigned()).Encode(IdentityRecord{ID: strPtr("ID-1")}, testMetadata())
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}

	// A conforming verifier rejects the empty signature.
	_, err = NewDecoder(
		WithEd25519Verifier(testEd25519Public(t)),
		WithCurrentTime(testNow()),
	).Decode(result.Text)
	if !errors.Is(err, ErrSignatureInvalid) {
		t.Errorf("Decode() of unsigned credential error = %v, want ErrSignatureInvalid", err)
	}

	// Only the explicit override reads it, and the outcome says so.
	decoded, err := NewDecoder(
		AllowUnverified(),
		WithCurrentTime(testNow()),
	).Decode(result.Text)
	if err != nil {
		t.Fatalf("Decode() with override error = %v", err)
	}
	if decoded.Verification != VerificationSkipped {
		t.Errorf("Verification = %v, want skipped", decoded.Verification)
	}
}

func TestDecodeSkipBiometrics(t *testing.T) {
	text := encodeSigned(t, fullRecord(), testMetadata())

	result, err := NewDecoder(
		WithEd25519Verifier(testEd25519Public(t)),
		WithCurrentTime(testNow()),
		SkipBiometricsOnDecode(),
	).Decode(text)
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if result.Record.Biometrics != nil {
		t.Error("biometrics retained despite skip")
	}
	if !hasWarning(result.Warnings, WarningBiometricsSkipped) {
		t.Error("missing biometrics skipped warning")
	}
}

func TestNestingCeilingEndToEnd(t *testing.T) {
	// A chain of single-entry maps carried in an unknown field; the binary
	// map itself contributes one level.
	deepValue := func(levels int) cbor.RawMessage {
		data := []byte{0x00}
		for i := 0; i < levels; i++ {
			data = append([]byte{0xa1, 0x01}, data...)
		}
		return data
	}
	encodeAtDepth := func(t *testing.T, levels int) string {
		t.Helper()
		record := IdentityRecord{
			ID:      strPtr("ID-1"),
			Unknown: map[int64]cbor.RawMessage{999: deepValue(levels - 1)},
		}
		return encodeSigned(t, record, testMetadata())
	}
	newDecoder := func() *Decoder {
		return NewDecoder(
			WithEd25519Verifier(testEd25519Public(t)),
			WithCurrentTime(testNow()),
		)
	}

	t.Run("128 levels decode through the full pipeline", func(t *testing.T) {
		result, err := newDecoder().Decode(encodeAtDepth(t, maxNestingDepth))
		if err != nil {
			t.Fatalf("Decode() error = %v", err)
		}
		if !bytes.Equal(result.Record.Unknown[999], deepValue(maxNestingDepth-1)) {
			t.Error("deeply nested unknown value not preserved byte-for-byte")
		}
	})

	t.Run("129 levels fail structurally", func(t *testing.T) {
		_, err := newDecoder().Decode(encodeAtDepth(t, maxNestingDepth+1))
		if !errors.Is(err, ErrStructuralParse) {
			t.Errorf("Decode() error = %v, want ErrStructuralParse", err)
		}
	})
}

func TestDecodeUnknownFieldsWarning(t *testing.T) {
	record := IdentityRecord{
		ID:      strPtr("ID-1"),
		Unknown: map[int64]cbor.RawMessage{4242: rawUnknownValue(t)},
	}
	text := encodeSigned(t, record, testMetadata())

	result, err := NewDecoder(
		WithEd25519Verifier(testEd25519Public(t)),
		WithCurrentTime(testNow()),
	).Decode(text)
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if !hasWarning(result.Warnings, WarningUnknownFieldsPresent) {
		t.Error("missing unknown fields warning")
	}
	if !bytes.Equal(result.Record.Unknown[4242], rawUnknownValue(t)) {
		t.Error("unknown field bytes differ after full pipeline")
	}
}
