package session

import (
	"errors"
	"fmt"
	"reflect"

	"github.com/fxamacker/cbor/v2"
)

const (
	sessionFormatVersionCurrent = 1

	// CurrentSchemaVersion is the version byte written by Encode.
	CurrentSchemaVersion = sessionFormatVersionCurrent
)

// DefaultMaxEncodedSize bounds encoded session blobs.
const DefaultMaxEncodedSize = 16 << 10

var (
	// ErrUnsupportedVersion is returned by Decode for an unknown version byte.
	ErrUnsupportedVersion = errors.New("unsupported session schema version")
	// ErrSessionTooLarge is returned when an encoded session exceeds the size limit.
	ErrSessionTooLarge = errors.New("session too large")
)

type record struct {
	ID        string `cbor:"1,keyasint,omitempty"`
	Values    Values `cbor:"2,keyasint,omitempty"`
	CreatedAt int64  `cbor:"3,keyasint"`
	ExpiresAt int64  `cbor:"4,keyasint"`
}

var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	var err error
	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("session: cbor encoder: " + err.Error())
	}
	decMode, err = cbor.DecOptions{
		DefaultMapType:   reflect.TypeOf(map[string]any(nil)),
		MaxNestedLevels:  16,
		MaxArrayElements: 4096,
		MaxMapPairs:      4096,
	}.DecMode()
	if err != nil {
		panic("session: cbor decoder: " + err.Error())
	}
}

// Encode serializes s as a version byte followed by deterministic CBOR.
func Encode(s *Session) ([]byte, error) {
	if s == nil {
		return nil, errors.New("nil session")
	}
	body, err := encMode.Marshal(record{
		ID:        s.ID,
		Values:    s.Values,
		CreatedAt: s.CreatedAt,
		ExpiresAt: s.ExpiresAt,
	})
	if err != nil {
		return nil, fmt.Errorf("encode session: %w", err)
	}
	if len(body)+1 > DefaultMaxEncodedSize {
		return nil, ErrSessionTooLarge
	}

	out := make([]byte, 0, len(body)+1)
	out = append(out, sessionFormatVersionCurrent)
	return append(out, body...), nil
}

// Decode parses a blob written by Encode. Nested maps decode as
// map[string]any; unsigned integers decode as uint64.
func Decode(data []byte) (*Session, error) {
	if len(data) == 0 {
		return nil, errors.New("empty session blob")
	}
	if len(data) > DefaultMaxEncodedSize {
		return nil, ErrSessionTooLarge
	}
	if data[0] != sessionFormatVersionCurrent {
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedVersion, data[0])
	}

	var rec record
	if err := decMode.Unmarshal(data[1:], &rec); err != nil {
		return nil, fmt.Errorf("decode session: %w", err)
	}

	return &Session{
		ID:        rec.ID,
		Values:    rec.Values,
		CreatedAt: rec.CreatedAt,
		ExpiresAt: rec.ExpiresAt,
	}, nil
}
