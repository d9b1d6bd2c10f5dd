package cryptosuite

import (
	"errors"
	"fmt"
)

// ErrKeyNotFound indicates a key identifier that the capability
// implementation cannot resolve.
var ErrKeyNotFound = errors.New("cryptosuite: key not found")

// ErrVerificationFailed indicates a signature that did not verify under the
// supplied key. Distinct from backend errors, which surface verbatim.
var ErrVerificationFailed = errors.New("cryptosuite: signature verification failed")

// UnsupportedAlgorithmError indicates an algorithm identifier outside the
// set a capability implementation recognizes.
type UnsupportedAlgorithmError struct {
	Algorithm Algorithm
}

func (e UnsupportedAlgorithmError) Error() string {
	return fmt.Sprintf("cryptosuite: unsupported algorithm %s", e.Algorithm)
}

// WeakKeyError indicates key material rejected before any cryptographic
// operation was attempted.
type WeakKeyError struct {
	Reason string
}

func (e WeakKeyError) Error() string {
	return fmt.Sprintf("cryptosuite: weak key rejected: %s", e.Reason)
}

// InvalidKeySizeError indicates raw key material of an unusable length.
type InvalidKeySizeError struct {
	Size int
}

func (e InvalidKeySizeError) Error() string {
	return fmt.Sprintf("cryptosuite: invalid key size %d", e.Size)
}
