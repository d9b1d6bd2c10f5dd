package cryptosuite

// Callback adapters let a caller back any capability with an external
// custodian (HSM, KMS, smartcard). Errors from the callback surface to the
// pipeline wrapped but never reinterpreted.

// SignFunc is a caller-supplied signing operation.
type SignFunc func(data []byte) ([]byte, error)

type callbackSigner struct {
	alg   Algorithm
	keyID []byte
	fn    SignFunc
}

// NewCallbackSigner wraps fn as a Signer. The algorithm tag is explicit
// because the pipeline records it in the protected header and cannot infer
// it from an opaque callback.
func NewCallbackSigner(alg Algorithm, keyID []byte, fn SignFunc) Signer {
	return &callbackSigner{alg: alg, keyID: keyID, fn: fn}
}

func (s *callbackSigner) Algorithm() Algorithm { return s.alg }

func (s *callbackSigner) KeyID() []byte { return s.keyID }

func (s *callbackSigner) Sign(data []byte) ([]byte, error) {
	return s.fn(data)
}

// VerifyFunc is a caller-supplied verification operation.
type VerifyFunc func(alg Algorithm, keyID, data, signature []byte) error

type callbackVerifier struct {
	fn VerifyFunc
}

// NewCallbackVerifier wraps fn as a Verifier.
func NewCallbackVerifier(fn VerifyFunc) Verifier {
	return &callbackVerifier{fn: fn}
}

func (v *callbackVerifier) Verify(alg Algorithm, keyID, data, signature []byte) error {
	return v.fn(alg, keyID, data, signature)
}

// EncryptFunc is a caller-supplied AEAD seal operation; it must append the
// authentication tag to the ciphertext.
type EncryptFunc func(nonce, aad, plaintext []byte) ([]byte, error)

type callbackEncrypter struct {
	alg   Algorithm
	keyID []byte
	fn    EncryptFunc
}

// NewCallbackEncrypter wraps fn as an Encrypter.
func NewCallbackEncrypter(alg Algorithm, keyID []byte, fn EncryptFunc) Encrypter {
	return &callbackEncrypter{alg: alg, keyID: keyID, fn: fn}
}

func (e *callbackEncrypter) Algorithm() Algorithm { return e.alg }

func (e *callbackEncrypter) KeyID() []byte { return e.keyID }

func (e *callbackEncrypter) Encrypt(nonce, aad, plaintext []byte) ([]byte, error) {
	return e.fn(nonce, aad, plaintext)
}

// DecryptFunc is a caller-supplied AEAD open operation.
type DecryptFunc func(alg Algorithm, keyID, nonce, aad, ciphertext []byte) ([]byte, error)

type callbackDecrypter struct {
	fn DecryptFunc
}

// NewCallbackDecrypter wraps fn as a Decrypter.
func NewCallbackDecrypter(fn DecryptFunc) Decrypter {
	return &callbackDecrypter{fn: fn}
}

func (d *callbackDecrypter) Decrypt(alg Algorithm, keyID, nonce, aad, ciphertext []byte) ([]byte, error) {
	return d.fn(alg, keyID, nonce, aad, ciphertext)
}
