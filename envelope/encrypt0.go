package envelope

import (
	"errors"
	"fmt"

	"github.com/fxamacker/cbor/v2"
	"github.com/veraison/go-cose"

	"github.com/kokukuma/claim169/cryptosuite"
)

// ErrDecryptionFailed indicates AEAD authentication failure or an otherwise
// undecryptable encryption envelope. Hard failure, never a warning.
var ErrDecryptionFailed = errors.New("envelope: decryption failed")

// go-cose has no COSE_Encrypt0 support, so the structure is built by hand
// the same way the other CBOR envelopes in this module are.
type encrypt0Message struct {
	_           struct{} `cbor:",toarray"`
	Protected   []byte
	Unprotected map[int64]interface{}
	Ciphertext  []byte
}

const (
	headerLabelAlgorithm = int64(cose.HeaderLabelAlgorithm)
	headerLabelKeyID     = int64(cose.HeaderLabelKeyID)
	headerLabelIV        = int64(cose.HeaderLabelIV)
)

// encStructure is the AAD for Encrypt0 per RFC 9052 section 5.3.
func encStructure(protected []byte) ([]byte, error) {
	aad, err := encMode.Marshal([]interface{}{"Encrypt0", protected, []byte{}})
	if err != nil {
		return nil, fmt.Errorf("envelope: failed to marshal Enc_structure: %w", err)
	}
	return aad, nil
}

// Encrypt wraps the signed bytes in a tagged COSE_Encrypt0 structure. The
// algorithm travels in the protected header; the explicit nonce and the key
// identifier, if any, in the unprotected header. The authentication tag is
// appended to the ciphertext by the AEAD.
func Encrypt(plaintext []byte, encrypter cryptosuite.Encrypter, nonce []byte) ([]byte, error) {
	if len(nonce) != cryptosuite.NonceSize {
		return nil, fmt.Errorf("envelope: invalid nonce length: %d", len(nonce))
	}

	protected, err := encMode.Marshal(map[int64]interface{}{
		headerLabelAlgorithm: int64(encrypter.Algorithm()),
	})
	if err != nil {
		return nil, fmt.Errorf("envelope: failed to marshal protected header: %w", err)
	}

	aad, err := encStructure(protected)
	if err != nil {
		return nil, err
	}

	ciphertext, err := encrypter.Encrypt(nonce, aad, plaintext)
	if err != nil {
		return nil, fmt.Errorf("envelope: encrypt: %w", err)
	}

	unprotected := map[int64]interface{}{
		headerLabelIV: nonce,
	}
	if keyID := encrypter.KeyID(); len(keyID) > 0 {
		unprotected[headerLabelKeyID] = keyID
	}

	out, err := encMode.Marshal(cbor.Tag{
		Number: encrypt0Tag,
		Content: encrypt0Message{
			Protected:   protected,
			Unprotected: unprotected,
			Ciphertext:  ciphertext,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("envelope: failed to marshal COSE_Encrypt0: %w", err)
	}
	return out, nil
}

// IsEncrypted reports whether data is a tagged COSE_Encrypt0 envelope.
func IsEncrypted(data []byte) bool {
	return len(data) > 0 && data[0] == 0xd0
}

// Decrypt opens a COSE_Encrypt0 envelope. Algorithm, key identifier and
// nonce are taken from the headers; an authentication failure surfaces as
// ErrDecryptionFailed.
func Decrypt(data []byte, decrypter cryptosuite.Decrypter) ([]byte, error) {
	var tagged cbor.RawTag
	if err := cbor.Unmarshal(data, &tagged); err != nil {
		return nil, fmt.Errorf("envelope: failed to parse encryption envelope: %w", err)
	}
	if tagged.Number != encrypt0Tag {
		return nil, fmt.Errorf("envelope: unexpected CBOR tag %d, want COSE_Encrypt0", tagged.Number)
	}

	var msg encrypt0Message
	if err := cbor.Unmarshal(tagged.Content, &msg); err != nil {
		return nil, fmt.Errorf("envelope: failed to parse COSE_Encrypt0 content: %w", err)
	}

	var protected map[int64]cbor.RawMessage
	if err := cbor.Unmarshal(msg.Protected, &protected); err != nil {
		return nil, fmt.Errorf("envelope: failed to parse protected header: %w", err)
	}

	rawAlg, ok := protected[headerLabelAlgorithm]
	if !ok {
		return nil, fmt.Errorf("envelope: no algorithm in protected header")
	}
	var alg int64
	if err := cbor.Unmarshal(rawAlg, &alg); err != nil {
		return nil, fmt.Errorf("envelope: invalid algorithm header: %w", err)
	}

	nonce, err := headerBytes(msg.Unprotected, headerLabelIV)
	if err != nil || nonce == nil {
		return nil, fmt.Errorf("envelope: missing or invalid nonce header")
	}
	keyID, err := headerBytes(msg.Unprotected, headerLabelKeyID)
	if err != nil {
		return nil, fmt.Errorf("envelope: invalid key id header")
	}

	aad, err := encStructure(msg.Protected)
	if err != nil {
		return nil, err
	}

	plaintext, err := decrypter.Decrypt(cryptosuite.Algorithm(alg), keyID, nonce, aad, msg.Ciphertext)
	if err != nil {
		var algErr cryptosuite.UnsupportedAlgorithmError
		if errors.As(err, &algErr) || errors.Is(err, cryptosuite.ErrKeyNotFound) {
			return nil, fmt.Errorf("envelope: decrypt: %w", err)
		}
		return nil, fmt.Errorf("%w: %v", ErrDecryptionFailed, err)
	}
	return plaintext, nil
}

func headerBytes(headers map[int64]interface{}, label int64) ([]byte, error) {
	raw, ok := headers[label]
	if !ok {
		return nil, nil
	}
	value, ok := raw.([]byte)
	if !ok {
		return nil, fmt.Errorf("unexpected header type %T for label %d", raw, label)
	}
	return value, nil
}
