// Package cwt implements the token envelope: a CWT claims map carrying the
// standard temporal and identity claims plus the identity payload under its
// registered claim number.
package cwt

import (
	"errors"
	"fmt"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/mitchellh/mapstructure"
)

// CWT claim numbers (RFC 8392 section 4) plus the registered claim number
// carrying the identity payload.
const (
	claimIssuer    = 1
	claimSubject   = 2
	claimExpiresAt = 4
	claimNotBefore = 5
	claimIssuedAt  = 6

	// ClaimIdentityPayload is the registered claim number under which the
	// binary identity map travels.
	ClaimIdentityPayload = 169
)

// ErrPayloadNotFound indicates a structurally valid claims map that carries
// no identity payload: the blob is a token, but not this credential type.
var ErrPayloadNotFound = errors.New("cwt: identity payload claim not found")

// Metadata holds the standard token claims. Every field is optional and
// independently interpretable; absent fields stay nil through a
// decode→re-encode round trip.
type Metadata struct {
	Issuer    *string `mapstructure:"issuer"`
	Subject   *string `mapstructure:"subject"`
	IssuedAt  *int64  `mapstructure:"issuedAt"`
	NotBefore *int64  `mapstructure:"notBefore"`
	ExpiresAt *int64  `mapstructure:"expiresAt"`
}

// ExpiredError reports a credential past its expiry timestamp.
type ExpiredError struct {
	ExpiresAt int64
}

func (e ExpiredError) Error() string {
	return fmt.Sprintf("cwt: credential expired at %d", e.ExpiresAt)
}

// NotYetValidError reports a credential ahead of its not-before timestamp.
type NotYetValidError struct {
	NotBefore int64
}

func (e NotYetValidError) Error() string {
	return fmt.Sprintf("cwt: credential not valid before %d", e.NotBefore)
}

// maxNestedLevels bounds the claims map depth. The identity payload is
// embedded as a nested map with its own 128-level ceiling enforced by the
// payload codec; this stage allows the claims wrapper plus one level past
// that ceiling so the payload codec, not this parse, reports the boundary
// violation.
const maxNestedLevels = 130

var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	var err error
	encMode, err = cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic("cwt: failed to build cbor enc mode: " + err.Error())
	}
	decMode, err = cbor.DecOptions{MaxNestedLevels: maxNestedLevels}.DecMode()
	if err != nil {
		panic("cwt: failed to build cbor dec mode: " + err.Error())
	}
}

// Encode builds the CBOR claims map from meta plus the identity payload.
// The payload must already be CBOR-encoded; it is embedded as-is.
func Encode(meta Metadata, payload cbor.RawMessage) ([]byte, error) {
	if len(payload) == 0 {
		return nil, fmt.Errorf("cwt: empty identity payload")
	}

	claims := map[int64]interface{}{
		ClaimIdentityPayload: payload,
	}
	if meta.Issuer != nil {
		claims[claimIssuer] = *meta.Issuer
	}
	if meta.Subject != nil {
		claims[claimSubject] = *meta.Subject
	}
	if meta.ExpiresAt != nil {
		claims[claimExpiresAt] = *meta.ExpiresAt
	}
	if meta.NotBefore != nil {
		claims[claimNotBefore] = *meta.NotBefore
	}
	if meta.IssuedAt != nil {
		claims[claimIssuedAt] = *meta.IssuedAt
	}

	out, err := encMode.Marshal(claims)
	if err != nil {
		return nil, fmt.Errorf("cwt: failed to marshal claims: %w", err)
	}
	return out, nil
}

// Decode parses a claims map, returning the metadata and the raw identity
// payload. A claims map without the identity payload claim fails with
// ErrPayloadNotFound.
func Decode(data []byte) (Metadata, cbor.RawMessage, error) {
	var claims map[int64]cbor.RawMessage
	if err := decMode.Unmarshal(data, &claims); err != nil {
		return Metadata{}, nil, fmt.Errorf("cwt: failed to unmarshal claims map: %w", err)
	}

	payload, ok := claims[ClaimIdentityPayload]
	if !ok {
		return Metadata{}, nil, ErrPayloadNotFound
	}

	named := make(map[string]interface{})
	for claim, raw := range claims {
		var name string
		switch claim {
		case claimIssuer:
			name = "issuer"
		case claimSubject:
			name = "subject"
		case claimIssuedAt:
			name = "issuedAt"
		case claimNotBefore:
			name = "notBefore"
		case claimExpiresAt:
			name = "expiresAt"
		default:
			continue
		}
		var value interface{}
		if err := cbor.Unmarshal(raw, &value); err != nil {
			return Metadata{}, nil, fmt.Errorf("cwt: failed to unmarshal claim %d: %w", claim, err)
		}
		named[name] = value
	}

	var meta Metadata
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &meta,
		WeaklyTypedInput: true,
	})
	if err != nil {
		return Metadata{}, nil, fmt.Errorf("cwt: failed to build claims decoder: %w", err)
	}
	if err := decoder.Decode(named); err != nil {
		return Metadata{}, nil, fmt.Errorf("cwt: failed to decode claims: %w", err)
	}

	return meta, payload, nil
}

// Validate checks the temporal claims against now with the given skew
// tolerance. expires-at exactly equal to now passes; issued-at is
// informational and never validated.
func (m Metadata) Validate(now time.Time, skew time.Duration) error {
	unix := now.Unix()
	skewSeconds := int64(skew / time.Second)

	if m.ExpiresAt != nil && *m.ExpiresAt < unix-skewSeconds {
		return ExpiredError{ExpiresAt: *m.ExpiresAt}
	}
	if m.NotBefore != nil && *m.NotBefore > unix+skewSeconds {
		return NotYetValidError{NotBefore: *m.NotBefore}
	}
	return nil
}
