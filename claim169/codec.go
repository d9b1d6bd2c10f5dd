package claim169

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

// Binary map keys. Demographics occupy 1-23, biometric slots 50-65; keys
// outside these ranges are preserved as opaque unknown fields. These values
// are protocol constants shared with every other implementation of the
// public specification.
const (
	keyID                 int64 = 1
	keyVersion            int64 = 2
	keyLanguage           int64 = 3
	keyFullName           int64 = 4
	keyFirstName          int64 = 5
	keyMiddleName         int64 = 6
	keyLastName           int64 = 7
	keyDateOfBirth        int64 = 8
	keyGender             int64 = 9
	keyAddress            int64 = 10
	keyEmail              int64 = 11
	keyPhone              int64 = 12
	keyNationality        int64 = 13
	keyMaritalStatus      int64 = 14
	keyGuardian           int64 = 15
	keyPhoto              int64 = 16
	keyPhotoFormat        int64 = 17
	keyBestQualityFingers int64 = 18
	keySecondaryLanguage  int64 = 19
	keySecondaryFullName  int64 = 20
	keyLocationCode       int64 = 21
	keyLegalStatus        int64 = 22
	keyCountryOfIssuance  int64 = 23

	biometricKeyFirst int64 = 50
	biometricKeyLast  int64 = 65
)

// maxNestingDepth bounds stack usage against adversarial input. Hard,
// non-configurable ceiling.
const maxNestingDepth = 128

var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	var err error
	encMode, err = cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic("claim169: failed to build cbor enc mode: " + err.Error())
	}
	decMode, err = cbor.DecOptions{MaxNestedLevels: maxNestingDepth}.DecMode()
	if err != nil {
		panic("claim169: failed to build cbor dec mode: " + err.Error())
	}
}

// encodeBinaryMap converts the record to its compact integer-keyed CBOR
// map. Absent (nil) fields produce no key; unknown fields are merged back
// in verbatim.
func encodeBinaryMap(record IdentityRecord) (cbor.RawMessage, error) {
	m := make(map[int64]interface{})

	setString := func(key int64, value *string) {
		if value != nil {
			m[key] = *value
		}
	}
	setString(keyID, record.ID)
	setString(keyVersion, record.Version)
	setString(keyLanguage, record.Language)
	setString(keyFullName, record.FullName)
	setString(keyFirstName, record.FirstName)
	setString(keyMiddleName, record.MiddleName)
	setString(keyLastName, record.LastName)
	setString(keyDateOfBirth, record.DateOfBirth)
	setString(keyAddress, record.Address)
	setString(keyEmail, record.Email)
	setString(keyPhone, record.Phone)
	setString(keyNationality, record.Nationality)
	setString(keyGuardian, record.Guardian)
	setString(keySecondaryLanguage, record.SecondaryLanguage)
	setString(keySecondaryFullName, record.SecondaryFullName)
	setString(keyLocationCode, record.LocationCode)
	setString(keyLegalStatus, record.LegalStatus)
	setString(keyCountryOfIssuance, record.CountryOfIssuance)

	if record.Gender != nil {
		m[keyGender] = int(*record.Gender)
	}
	if record.MaritalStatus != nil {
		m[keyMaritalStatus] = int(*record.MaritalStatus)
	}
	if record.Photo != nil {
		m[keyPhoto] = record.Photo
	}
	if record.PhotoFormat != nil {
		m[keyPhotoFormat] = int(*record.PhotoFormat)
	}
	if record.BestQualityFingers != nil {
		m[keyBestQualityFingers] = record.BestQualityFingers
	}

	for position, entries := range record.Biometrics {
		key := int64(position)
		if key < biometricKeyFirst || key > biometricKeyLast {
			return nil, fmt.Errorf("claim169: biometric position %d outside slot range", key)
		}
		m[key] = entries
	}

	for key, raw := range record.Unknown {
		if _, taken := m[key]; taken {
			return nil, fmt.Errorf("claim169: unknown field key %d collides with a known field", key)
		}
		m[key] = raw
	}

	out, err := encMode.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("claim169: failed to marshal binary map: %w", err)
	}
	return out, nil
}

// decodeBinaryMap parses a binary map in any key order. Out-of-schema keys
// land in Unknown byte-for-byte; maps nested beyond the depth ceiling are
// rejected.
func decodeBinaryMap(data []byte) (IdentityRecord, error) {
	var m map[int64]cbor.RawMessage
	if err := decMode.Unmarshal(data, &m); err != nil {
		return IdentityRecord{}, fmt.Errorf("%w: %v", ErrStructuralParse, err)
	}

	var record IdentityRecord
	for key, raw := range m {
		if err := assignField(&record, key, raw); err != nil {
			return IdentityRecord{}, err
		}
	}
	return record, nil
}

func assignField(record *IdentityRecord, key int64, raw cbor.RawMessage) error {
	stringField := func(target **string) error {
		var value string
		if err := cbor.Unmarshal(raw, &value); err != nil {
			return fmt.Errorf("%w: field %d: %v", ErrStructuralParse, key, err)
		}
		*target = &value
		return nil
	}

	switch key {
	case keyID:
		return stringField(&record.ID)
	case keyVersion:
		return stringField(&record.Version)
	case keyLanguage:
		return stringField(&record.Language)
	case keyFullName:
		return stringField(&record.FullName)
	case keyFirstName:
		return stringField(&record.FirstName)
	case keyMiddleName:
		return stringField(&record.MiddleName)
	case keyLastName:
		return stringField(&record.LastName)
	case keyDateOfBirth:
		return stringField(&record.DateOfBirth)
	case keyAddress:
		return stringField(&record.Address)
	case keyEmail:
		return stringField(&record.Email)
	case keyPhone:
		return stringField(&record.Phone)
	case keyNationality:
		return stringField(&record.Nationality)
	case keyGuardian:
		return stringField(&record.Guardian)
	case keySecondaryLanguage:
		return stringField(&record.SecondaryLanguage)
	case keySecondaryFullName:
		return stringField(&record.SecondaryFullName)
	case keyLocationCode:
		return stringField(&record.LocationCode)
	case keyLegalStatus:
		return stringField(&record.LegalStatus)
	case keyCountryOfIssuance:
		return stringField(&record.CountryOfIssuance)

	case keyGender:
		var value Gender
		if err := cbor.Unmarshal(raw, &value); err != nil {
			return fmt.Errorf("%w: gender: %v", ErrStructuralParse, err)
		}
		record.Gender = &value
		return nil
	case keyMaritalStatus:
		var value MaritalStatus
		if err := cbor.Unmarshal(raw, &value); err != nil {
			return fmt.Errorf("%w: marital status: %v", ErrStructuralParse, err)
		}
		record.MaritalStatus = &value
		return nil
	case keyPhoto:
		var value []byte
		if err := cbor.Unmarshal(raw, &value); err != nil {
			return fmt.Errorf("%w: photo: %v", ErrStructuralParse, err)
		}
		record.Photo = value
		return nil
	case keyPhotoFormat:
		var value PhotoFormat
		if err := cbor.Unmarshal(raw, &value); err != nil {
			return fmt.Errorf("%w: photo format: %v", ErrStructuralParse, err)
		}
		record.PhotoFormat = &value
		return nil
	case keyBestQualityFingers:
		var value []int
		if err := cbor.Unmarshal(raw, &value); err != nil {
			return fmt.Errorf("%w: best quality fingers: %v", ErrStructuralParse, err)
		}
		record.BestQualityFingers = value
		return nil
	}

	if key >= biometricKeyFirst && key <= biometricKeyLast {
		var entries []BiometricEntry
		if err := cbor.Unmarshal(raw, &entries); err != nil {
			return fmt.Errorf("%w: biometric slot %d: %v", ErrStructuralParse, key, err)
		}
		if record.Biometrics == nil {
			record.Biometrics = make(map[BiometricPosition][]BiometricEntry)
		}
		record.Biometrics[BiometricPosition(key)] = entries
		return nil
	}

	if record.Unknown == nil {
		record.Unknown = make(map[int64]cbor.RawMessage)
	}
	record.Unknown[key] = raw
	return nil
}
