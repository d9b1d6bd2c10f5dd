package claim169

import (
	"errors"

	"github.com/kokukuma/claim169/cwt"
	"github.com/kokukuma/claim169/envelope"
)

// Configuration errors: the builders refuse to finalize without an explicit
// decision about signing/verification.
var (
	ErrNoSigner   = errors.New("claim169: encode requires a signer or the explicit unsigned override")
	ErrNoVerifier = errors.New("claim169: decode requires a verifier or the explicit unverified override")
)

// ErrNoDecrypter indicates an encryption envelope with no configured
// decrypter: the inner signature cannot be checked without decrypting
// first.
var ErrNoDecrypter = errors.New("claim169: credential is encrypted but no decrypter was configured")

// ErrStructuralParse indicates a truncated or malformed binary map.
var ErrStructuralParse = errors.New("claim169: structural parse error")

// Aliases for the envelope-layer errors most callers match against.
var (
	ErrPayloadNotFound  = cwt.ErrPayloadNotFound
	ErrSignatureInvalid = envelope.ErrSignatureInvalid
	ErrDecryptionFailed = envelope.ErrDecryptionFailed
)
