// Package keycodec maps non-negative integers to short printable keys and
// back. Keys are base-52 strings over the ASCII letters, lower case first.
//
// Encoded keys are unique but not order-preserving under byte comparison:
// "b" (1) sorts after "ba" (52), and upper-case digits sort before
// lower-case ones. Callers must not rely on store iteration order to recover
// numeric order.
package keycodec

import (
	apperrors "github.com/Adithya-Monish-Kumar-K/Term-Index-Engine/pkg/errors"
)

const alphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ"

// Base is the radix of the encoding.
const Base = uint64(len(alphabet))

var reverse = func() [256]int8 {
	var r [256]int8
	for i := range r {
		r[i] = -1
	}
	for i := 0; i < len(alphabet); i++ {
		r[alphabet[i]] = int8(i)
	}
	return r
}()

// Encode returns the key for n. Zero encodes as "a".
func Encode(n uint64) string {
	var buf [12]byte // 52^12 > 2^64
	i := len(buf)
	for {
		i--
		buf[i] = alphabet[n%Base]
		n /= Base
		if n == 0 {
			break
		}
	}
	return string(buf[i:])
}

// AppendEncode appends the key for n to dst.
func AppendEncode(dst []byte, n uint64) []byte {
	return append(dst, Encode(n)...)
}

// Decode is the inverse of Encode. It fails with errors.ErrDecode on an empty
// key, a character outside the alphabet, or a value that overflows uint64.
func Decode(s string) (uint64, error) {
	if s == "" {
		return 0, apperrors.Decodef("empty key")
	}
	var n uint64
	for i := 0; i < len(s); i++ {
		d := reverse[s[i]]
		if d < 0 {
			return 0, apperrors.Decodef("invalid key character %q at %d in %q", s[i], i, s)
		}
		if n > (^uint64(0)-uint64(d))/Base {
			return 0, apperrors.Decodef("key %q overflows uint64", s)
		}
		n = n*Base + uint64(d)
	}
	return n, nil
}
