// Package envelope implements the COSE envelopes of the credential
// pipeline: a single-signer COSE_Sign1 authentication wrapper and a
// single-recipient COSE_Encrypt0 AEAD wrapper. Algorithm and key identifier
// always travel in the envelope headers; they are never inferred from the
// payload or defaulted by the pipeline.
package envelope

import (
	"crypto/rand"
	"errors"
	"fmt"
	"io"

	"github.com/fxamacker/cbor/v2"
	"github.com/veraison/go-cose"

	"github.com/kokukuma/claim169/cryptosuite"
)

// ErrSignatureInvalid indicates a signature that failed verification under
// the supplied key.
var ErrSignatureInvalid = errors.New("envelope: signature verification failed")

const (
	sign1Tag    = 18
	encrypt0Tag = 16
)

var encMode cbor.EncMode

func init() {
	var err error
	encMode, err = cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic("envelope: failed to build cbor enc mode: " + err.Error())
	}
}

// capabilitySigner bridges a cryptosuite.Signer into go-cose.
type capabilitySigner struct {
	signer cryptosuite.Signer
}

func (s *capabilitySigner) Algorithm() cose.Algorithm {
	return cose.Algorithm(s.signer.Algorithm())
}

func (s *capabilitySigner) Sign(_ io.Reader, content []byte) ([]byte, error) {
	return s.signer.Sign(content)
}

// capabilityVerifier bridges a cryptosuite.Verifier into go-cose, bound to
// the algorithm and key identifier taken from the envelope headers.
type capabilityVerifier struct {
	verifier cryptosuite.Verifier
	alg      cose.Algorithm
	keyID    []byte
}

func (v *capabilityVerifier) Algorithm() cose.Algorithm { return v.alg }

func (v *capabilityVerifier) Verify(content, signature []byte) error {
	return v.verifier.Verify(cryptosuite.Algorithm(v.alg), v.keyID, content, signature)
}

// Sign wraps the token bytes in a tagged COSE_Sign1 structure. The signing
// algorithm is recorded in the protected header and the key identifier, if
// the signer has one, in the unprotected header.
func Sign(claims []byte, signer cryptosuite.Signer) ([]byte, error) {
	msg := cose.Sign1Message{
		Headers: cose.Headers{
			Protected: cose.ProtectedHeader{
				cose.HeaderLabelAlgorithm: cose.Algorithm(signer.Algorithm()),
			},
			Unprotected: cose.UnprotectedHeader{},
		},
		Payload: claims,
	}
	if keyID := signer.KeyID(); len(keyID) > 0 {
		msg.Headers.Unprotected[cose.HeaderLabelKeyID] = keyID
	}

	if err := msg.Sign(rand.Reader, nil, &capabilitySigner{signer: signer}); err != nil {
		return nil, fmt.Errorf("envelope: sign: %w", err)
	}

	out, err := msg.MarshalCBOR()
	if err != nil {
		return nil, fmt.Errorf("envelope: failed to marshal COSE_Sign1: %w", err)
	}
	return out, nil
}

// rawSign1 mirrors the COSE_Sign1 array for paths go-cose refuses to
// handle: extracting payloads without verifying, and the explicit unsigned
// form whose signature is empty.
type rawSign1 struct {
	_           struct{} `cbor:",toarray"`
	Protected   []byte
	Unprotected map[int64]interface{}
	Payload     []byte
	Signature   []byte
}

// WrapUnsigned wraps the token bytes in a COSE_Sign1 structure with empty
// headers and an empty signature. Decoders only accept it through the
// explicit allow-unverified override.
func WrapUnsigned(claims []byte) ([]byte, error) {
	msg := rawSign1{
		Protected:   []byte{},
		Unprotected: map[int64]interface{}{},
		Payload:     claims,
		Signature:   []byte{},
	}
	out, err := encMode.Marshal(cbor.Tag{Number: sign1Tag, Content: msg})
	if err != nil {
		return nil, fmt.Errorf("envelope: failed to marshal unsigned COSE_Sign1: %w", err)
	}
	return out, nil
}

// Verify checks the COSE_Sign1 signature and returns the token payload.
// The algorithm comes exclusively from the protected header; a missing
// algorithm fails rather than falling back to a default.
func Verify(data []byte, verifier cryptosuite.Verifier) ([]byte, error) {
	// The unsigned wire form carries an empty signature; reject it here so
	// it always reads as a verification failure, not a parse failure.
	var tagged cbor.RawTag
	if err := cbor.Unmarshal(data, &tagged); err == nil && tagged.Number == sign1Tag {
		var raw rawSign1
		if err := cbor.Unmarshal(tagged.Content, &raw); err == nil && len(raw.Signature) == 0 {
			return nil, fmt.Errorf("%w: empty signature", ErrSignatureInvalid)
		}
	}

	var msg cose.Sign1Message
	if err := msg.UnmarshalCBOR(data); err != nil {
		return nil, fmt.Errorf("envelope: failed to parse COSE_Sign1: %w", err)
	}

	alg, err := msg.Headers.Protected.Algorithm()
	if err != nil {
		return nil, fmt.Errorf("envelope: no algorithm in protected header: %w", err)
	}

	bridge := &capabilityVerifier{
		verifier: verifier,
		alg:      alg,
		keyID:    headerKeyID(msg.Headers),
	}
	if err := msg.Verify(nil, bridge); err != nil {
		if errors.Is(err, cose.ErrVerification) || errors.Is(err, cryptosuite.ErrVerificationFailed) {
			return nil, fmt.Errorf("%w: %v", ErrSignatureInvalid, err)
		}
		return nil, fmt.Errorf("envelope: verify: %w", err)
	}
	return msg.Payload, nil
}

// Payload extracts the token bytes without verifying the signature. This is
// the explicit skip-verification path; it also reads the unsigned form.
func Payload(data []byte) ([]byte, error) {
	var tagged cbor.RawTag
	if err := cbor.Unmarshal(data, &tagged); err != nil {
		return nil, fmt.Errorf("envelope: failed to parse COSE envelope: %w", err)
	}
	if tagged.Number != sign1Tag {
		return nil, fmt.Errorf("envelope: unexpected CBOR tag %d, want COSE_Sign1", tagged.Number)
	}

	var msg rawSign1
	if err := cbor.Unmarshal(tagged.Content, &msg); err != nil {
		return nil, fmt.Errorf("envelope: failed to parse COSE_Sign1 content: %w", err)
	}
	return msg.Payload, nil
}

func headerKeyID(headers cose.Headers) []byte {
	if raw, ok := headers.Protected[cose.HeaderLabelKeyID]; ok {
		if keyID, ok := raw.([]byte); ok {
			return keyID
		}
	}
	if raw, ok := headers.Unprotected[cose.HeaderLabelKeyID]; ok {
		if keyID, ok := raw.([]byte); ok {
			return keyID
		}
	}
	return nil
}
