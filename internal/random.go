package internal

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"io"
)

// SessionID is the opaque 128-bit identifier of a stored session.
type SessionID [16]byte

func NewSessionID() (SessionID, error) {
	return NewSessionIDFrom(rand.Reader)
}

// NewSessionIDFrom reads a session ID from r. A short read is an error.
func NewSessionIDFrom(r io.Reader) (SessionID, error) {
	var sid SessionID
	if r == nil {
		return sid, errors.New("nil random source")
	}
	_, err := io.ReadFull(r, sid[:])
	return sid, err
}

func (s SessionID) Bytes() []byte {
	return s[:]
}

func (s SessionID) String() string {
	// base64url, no padding, compact
	return base64.RawURLEncoding.EncodeToString(s[:])
}

func ParseSessionID(sessionID string) (SessionID, error) {
	var sid SessionID

	raw, err := base64.RawURLEncoding.DecodeString(sessionID)
	if err != nil {
		return sid, err
	}
	if len(raw) != len(sid) {
		return sid, errors.New("invalid session id size")
	}

	copy(sid[:], raw)
	return sid, nil
}
