// Package base45 implements the Base45 encoding defined in RFC 9285.
//
// The alphabet is the QR code "alphanumeric mode" character set, which
// includes a literal space. Encoded strings are opaque tokens: trimming or
// whitespace-normalizing them corrupts the data.
package base45

import (
	"fmt"
)

const alphabet = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZ $%*+-./:"

var decodeTable = func() [256]int16 {
	var t [256]int16
	for i := range t {
		t[i] = -1
	}
	for i := 0; i < len(alphabet); i++ {
		t[alphabet[i]] = int16(i)
	}
	return t
}()

// InvalidCharacterError reports a byte outside the Base45 alphabet.
type InvalidCharacterError struct {
	Char     byte
	Position int
}

func (e InvalidCharacterError) Error() string {
	return fmt.Sprintf("base45: invalid character %q at position %d", e.Char, e.Position)
}

// InvalidLengthError reports an encoded length that no byte sequence can
// produce (RFC 9285: length mod 3 must not be 1).
type InvalidLengthError struct {
	Length int
}

func (e InvalidLengthError) Error() string {
	return fmt.Sprintf("base45: invalid encoded length %d", e.Length)
}

// Encode returns the Base45 encoding of src.
func Encode(src []byte) string {
	out := make([]byte, 0, (len(src)/2)*3+3)
	for len(src) >= 2 {
		v := uint32(src[0])<<8 | uint32(src[1])
		out = append(out, alphabet[v%45], alphabet[(v/45)%45], alphabet[v/(45*45)])
		src = src[2:]
	}
	if len(src) == 1 {
		v := uint32(src[0])
		out = append(out, alphabet[v%45], alphabet[v/45])
	}
	return string(out)
}

// Decode reverses Encode. It fails on characters outside the alphabet,
// impossible lengths, and digit triples that overflow 16 bits.
func Decode(s string) ([]byte, error) {
	if len(s)%3 == 1 {
		return nil, InvalidLengthError{Length: len(s)}
	}

	vals := make([]uint32, len(s))
	for i := 0; i < len(s); i++ {
		d := decodeTable[s[i]]
		if d < 0 {
			return nil, InvalidCharacterError{Char: s[i], Position: i}
		}
		vals[i] = uint32(d)
	}

	out := make([]byte, 0, (len(s)/3)*2+1)
	for len(vals) >= 3 {
		v := vals[0] + vals[1]*45 + vals[2]*45*45
		if v > 0xffff {
			return nil, fmt.Errorf("base45: triple value %d overflows two bytes", v)
		}
		out = append(out, byte(v>>8), byte(v))
		vals = vals[3:]
	}
	if len(vals) == 2 {
		v := vals[0] + vals[1]*45
		if v > 0xff {
			return nil, fmt.Errorf("base45: pair value %d overflows one byte", v)
		}
		out = append(out, byte(v))
	}
	return out, nil
}
