// Package base36 turns counter values into short identifiers.
//
// The alphabet is 0-9 followed by a-z (36 symbols). Output is most
// significant symbol first with no leading zeros, so distinct inputs always
// produce distinct strings.
//
// Examples:
//
//	Encode(0)    → "0"
//	Encode(35)   → "z"
//	Encode(36)   → "10"
//	Encode(1295) → "zz"
package base36

import "errors"

const alphabet = "0123456789abcdefghijklmnopqrstuvwxyz"

const base = int64(len(alphabet))

// ErrNegative is returned when Encode is given a negative number.
var ErrNegative = errors.New("base36: negative input")

// Encode converts a non-negative integer to its base36 representation.
func Encode(n int64) (string, error) {
	if n < 0 {
		return "", ErrNegative
	}
	if n == 0 {
		return "0", nil
	}

	// 13 symbols cover math.MaxInt64 in base36.
	var buf [13]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = alphabet[n%base]
		n /= base
	}

	return string(buf[i:]), nil
}
