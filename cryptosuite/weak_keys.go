package cryptosuite

import (
	"crypto/ecdsa"
	"encoding/hex"
)

// Known small-order Curve25519 point encodings (the libsodium blacklist):
// the identity, the order-2 point, the two order-4 points, the two order-8
// points, and the non-canonical encodings of zero. A signature under any of
// these keys proves nothing, so they are rejected before any signature math.
var ed25519SmallOrderPoints = func() [][]byte {
	hexPoints := []string{
		"0000000000000000000000000000000000000000000000000000000000000000",
		"0100000000000000000000000000000000000000000000000000000000000000",
		"c7176a703d4dd84fba3c0b760d10670f2a2053fa2c39ccc64ec7fd7792ac037a",
		"26e8958fc2b227b045c3f489f2ef98f0d5dfac05d3c63339b13802886d53fc05",
		"ecffffffffffffffffffffffffffffffffffffffffffffffffffffffffffff7f",
		"edffffffffffffffffffffffffffffffffffffffffffffffffffffffffffff7f",
		"eeffffffffffffffffffffffffffffffffffffffffffffffffffffffffffff7f",
	}
	points := make([][]byte, 0, len(hexPoints))
	for _, h := range hexPoints {
		p, err := hex.DecodeString(h)
		if err != nil {
			panic("cryptosuite: bad small-order point constant: " + err.Error())
		}
		points = append(points, p)
	}
	return points
}()

// checkEd25519PublicKey rejects small-order and identity points, including
// their sign-bit variant encodings.
func checkEd25519PublicKey(pub []byte) error {
	if len(pub) != 32 {
		return InvalidKeySizeError{Size: len(pub)}
	}
	for _, point := range ed25519SmallOrderPoints {
		match := true
		for i := 0; i < 31; i++ {
			if pub[i] != point[i] {
				match = false
				break
			}
		}
		if match && pub[31]&0x7f == point[31] {
			return WeakKeyError{Reason: "ed25519 small-order point"}
		}
	}
	return nil
}

// checkECDSAPublicKey rejects the identity point (point at infinity) and
// points not on the curve.
func checkECDSAPublicKey(pub *ecdsa.PublicKey) error {
	if pub == nil || pub.X == nil || pub.Y == nil {
		return WeakKeyError{Reason: "ecdsa public key is nil"}
	}
	if pub.X.Sign() == 0 && pub.Y.Sign() == 0 {
		return WeakKeyError{Reason: "ecdsa identity point"}
	}
	if !pub.Curve.IsOnCurve(pub.X, pub.Y) {
		return WeakKeyError{Reason: "ecdsa point not on curve"}
	}
	return nil
}
