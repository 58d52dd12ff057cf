package keys

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
)

// Size is the key length in bytes. It matches the key size of the AEAD used
// by package seal.
const Size = 32

// EncodedLen is the length of [Key.Encode] output.
var EncodedLen = base64.URLEncoding.EncodedLen(Size)

// ErrEntropySource is returned when the secure random source cannot supply
// key material. Session creation must abort on this error.
var ErrEntropySource = errors.New("entropy source unavailable")

// ErrInvalidKey is returned by Parse for malformed or wrongly sized input.
var ErrInvalidKey = errors.New("invalid session key")

// Key is a session-scoped symmetric key.
type Key [Size]byte

// Generate returns a fresh key from crypto/rand.
func Generate() (Key, error) {
	return GenerateFrom(rand.Reader)
}

// GenerateFrom returns a fresh key read from r. A short read or read error
// is reported as ErrEntropySource; no partial key is ever returned.
func GenerateFrom(r io.Reader) (Key, error) {
	var k Key
	if r == nil {
		return Key{}, fmt.Errorf("%w: nil reader", ErrEntropySource)
	}
	if _, err := io.ReadFull(r, k[:]); err != nil {
		k.Zero()
		return Key{}, fmt.Errorf("%w: %v", ErrEntropySource, err)
	}
	return k, nil
}

// Parse decodes the string form produced by Encode.
func Parse(s string) (Key, error) {
	var k Key
	if len(s) != EncodedLen {
		return k, ErrInvalidKey
	}
	raw, err := base64.URLEncoding.Strict().DecodeString(s)
	if err != nil || len(raw) != Size {
		return k, ErrInvalidKey
	}
	copy(k[:], raw)
	return k, nil
}

// FromValue extracts a key from a session "key" field value. Strings are
// parsed with Parse; raw byte slices must be exactly Size bytes.
func FromValue(v any) (Key, error) {
	switch val := v.(type) {
	case string:
		return Parse(val)
	case []byte:
		var k Key
		if len(val) != Size {
			return k, ErrInvalidKey
		}
		copy(k[:], val)
		return k, nil
	case Key:
		return val, nil
	default:
		return Key{}, ErrInvalidKey
	}
}

// Encode returns the URL-safe, padded base64 encoding of the key. This is
// the form stored under the session "key" field.
func (k Key) Encode() string {
	return base64.URLEncoding.EncodeToString(k[:])
}

// String keeps key bytes out of %v and %s output.
func (k Key) String() string {
	return "REDACTED"
}

// GoString keeps key bytes out of %#v output.
func (k Key) GoString() string {
	return "keys.Key{REDACTED}"
}

// Bytes returns a copy of the raw key bytes.
func (k Key) Bytes() []byte {
	out := make([]byte, Size)
	copy(out, k[:])
	return out
}

// IsZero reports whether k is the zero key.
func (k Key) IsZero() bool {
	var acc byte
	for _, b := range k {
		acc |= b
	}
	return acc == 0
}

// Zero overwrites the key in place.
func (k *Key) Zero() {
	for i := range k {
		k[i] = 0
	}
}
