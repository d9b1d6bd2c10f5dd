// Package claim169 implements an offline-verifiable identity credential
// codec: a reversible pipeline between a structured identity record and a
// compact, signed (optionally encrypted) alphanumeric string suitable for a
// QR code.
//
// The wire format, outer to inner:
//
//	text = Base45(Compress(COSE_Encrypt0?(COSE_Sign1(CWT(BinaryMap(record))))))
//
// Encoder and Decoder are independent builders sharing this data model.
// Revocation, replay protection and key distribution are application
// responsibilities; the codec neither infers nor enforces them.
package claim169

import (
	"github.com/fxamacker/cbor/v2"

	"github.com/kokukuma/claim169/cwt"
)

// Gender codes. The wire representation is the stored integer;
// unrecognized codes round-trip verbatim.
type Gender int

const (
	GenderMale   Gender = 1
	GenderFemale Gender = 2
	GenderOther  Gender = 3
)

func (g Gender) IsValid() bool {
	return g >= GenderMale && g <= GenderOther
}

// MaritalStatus codes.
type MaritalStatus int

const (
	MaritalStatusUnmarried MaritalStatus = 1
	MaritalStatusMarried   MaritalStatus = 2
	MaritalStatusDivorced  MaritalStatus = 3
)

func (m MaritalStatus) IsValid() bool {
	return m >= MaritalStatusUnmarried && m <= MaritalStatusDivorced
}

// PhotoFormat codes for the photo field.
type PhotoFormat int

const (
	PhotoFormatJPEG     PhotoFormat = 1
	PhotoFormatJPEG2000 PhotoFormat = 2
	PhotoFormatAVIF     PhotoFormat = 3
	PhotoFormatWEBP     PhotoFormat = 4
)

func (p PhotoFormat) IsValid() bool {
	return p >= PhotoFormatJPEG && p <= PhotoFormatWEBP
}

// BiometricFormat codes for biometric entry data.
type BiometricFormat int

const (
	BiometricFormatImage    BiometricFormat = 1
	BiometricFormatTemplate BiometricFormat = 2
	BiometricFormatSound    BiometricFormat = 3
	BiometricFormatBioHash  BiometricFormat = 4
)

func (b BiometricFormat) IsValid() bool {
	return b >= BiometricFormatImage && b <= BiometricFormatBioHash
}

// BiometricPosition is a biometric slot key in the binary map (keys 50-65).
type BiometricPosition int64

const (
	PositionRightThumb   BiometricPosition = 50
	PositionRightPointer BiometricPosition = 51
	PositionRightMiddle  BiometricPosition = 52
	PositionRightRing    BiometricPosition = 53
	PositionRightLittle  BiometricPosition = 54
	PositionLeftThumb    BiometricPosition = 55
	PositionLeftPointer  BiometricPosition = 56
	PositionLeftMiddle   BiometricPosition = 57
	PositionLeftRing     BiometricPosition = 58
	PositionLeftLittle   BiometricPosition = 59
	PositionRightIris    BiometricPosition = 60
	PositionLeftIris     BiometricPosition = 61
	PositionFace         BiometricPosition = 62
	PositionRightPalm    BiometricPosition = 63
	PositionLeftPalm     BiometricPosition = 64
	PositionVoice        BiometricPosition = 65
)

func (p BiometricPosition) IsValid() bool {
	return p >= PositionRightThumb && p <= PositionVoice
}

// BiometricEntry is one biometric sample. Its wire form is a 4-key integer
// map. SubFormat meaning depends on Format.
type BiometricEntry struct {
	Data      []byte          `cbor:"1,keyasint,omitempty"`
	Format    BiometricFormat `cbor:"2,keyasint,omitempty"`
	SubFormat int             `cbor:"3,keyasint,omitempty"`
	Issuer    string          `cbor:"4,keyasint,omitempty"`
}

// IdentityRecord is the credential payload. All fields are optional;
// absence (nil) is semantically distinct from an empty value and
// round-trips as absence. Unknown carries out-of-schema binary map keys
// verbatim for forward compatibility.
type IdentityRecord struct {
	ID                 *string
	Version            *string
	Language           *string
	FullName           *string
	FirstName          *string
	MiddleName         *string
	LastName           *string
	DateOfBirth        *string // YYYYMMDD
	Gender             *Gender
	Address            *string
	Email              *string
	Phone              *string
	Nationality        *string
	MaritalStatus      *MaritalStatus
	Guardian           *string
	Photo              []byte
	PhotoFormat        *PhotoFormat
	BestQualityFingers []int
	SecondaryLanguage  *string
	SecondaryFullName  *string
	LocationCode       *string
	LegalStatus        *string
	CountryOfIssuance  *string

	Biometrics map[BiometricPosition][]BiometricEntry

	Unknown map[int64]cbor.RawMessage
}

// TokenMetadata aliases the token envelope claims for callers that only
// import this package.
type TokenMetadata = cwt.Metadata

// VerificationOutcome reports how the signature of a decoded credential was
// handled. It is computed once per decode and immutable thereafter.
type VerificationOutcome int

const (
	// VerificationFailed is never attached to a successful result; a
	// failed verification surfaces as an error instead.
	VerificationFailed VerificationOutcome = iota

	// VerificationVerified means the signature was checked against the
	// supplied key and passed.
	VerificationVerified

	// VerificationSkipped means the caller explicitly opted out of
	// verification.
	VerificationSkipped
)

func (v VerificationOutcome) String() string {
	switch v {
	case VerificationVerified:
		return "verified"
	case VerificationSkipped:
		return "skipped"
	case VerificationFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Warning is a non-fatal, machine-readable condition attached to an encode
// or decode result. Warnings are never raised as errors.
type Warning string

const (
	// WarningNonStandardCompression marks output produced with, or input
	// detected as, a compression mode other than the mandated one. Other
	// implementations of the public specification may not read it.
	WarningNonStandardCompression Warning = "non_standard_compression"

	// WarningUnknownFieldsPresent marks a record carrying out-of-schema
	// binary map keys.
	WarningUnknownFieldsPresent Warning = "unknown_fields_present"

	// WarningBiometricsSkipped marks a result whose biometric slots were
	// dropped by caller request.
	WarningBiometricsSkipped Warning = "biometrics_skipped"

	// WarningTimestampValidationSkipped marks a decode that ran with
	// timestamp validation disabled by caller request.
	WarningTimestampValidationSkipped Warning = "timestamp_validation_skipped"
)
