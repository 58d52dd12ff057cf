package seal

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"io"

	"github.com/MrEthical07/sessionguard/keys"
	"github.com/zeebo/blake3"
	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"
)

// Version is the format byte prepended to every sealed token.
const Version byte = 0x01

// Overhead is the number of raw bytes a sealed token adds to its plaintext:
// version, nonce and Poly1305 tag.
const Overhead = 1 + chacha20poly1305.NonceSizeX + chacha20poly1305.Overhead

// MaxPlaintext bounds the payload size accepted by Seal and Open.
const MaxPlaintext = 16 << 10

var (
	// ErrSealInvalid is returned for any token that fails to open.
	ErrSealInvalid = errors.New("sealed token invalid")
	// ErrPlaintextTooLarge is returned when a payload exceeds MaxPlaintext.
	ErrPlaintextTooLarge = errors.New("sealed payload too large")
	// ErrUnknownPurpose is returned for a Purpose outside the defined set.
	ErrUnknownPurpose = errors.New("unknown seal purpose")
)

// Purpose selects the derived subkey and is bound into the AAD.
type Purpose uint8

const (
	// PurposeQuery protects search queries carried in result-page links.
	PurposeQuery Purpose = iota + 1
	// PurposeElement protects outbound element URLs (images, result links).
	PurposeElement
)

var purposeInfo = map[Purpose][]byte{
	PurposeQuery:   []byte("sessionguard.seal.query.v1"),
	PurposeElement: []byte("sessionguard.seal.element.v1"),
}

var referenceDomain = []byte("sessionguard.ref.v1")

var encoding = base64.RawURLEncoding

// String returns the purpose name.
func (p Purpose) String() string {
	switch p {
	case PurposeQuery:
		return "query"
	case PurposeElement:
		return "element"
	default:
		return "unknown"
	}
}

// Seal encrypts plaintext for purpose and returns a URL-safe token.
func Seal(key keys.Key, purpose Purpose, plaintext []byte) (string, error) {
	return sealWith(rand.Reader, key, purpose, plaintext)
}

func sealWith(random io.Reader, key keys.Key, purpose Purpose, plaintext []byte) (string, error) {
	if len(plaintext) > MaxPlaintext {
		return "", ErrPlaintextTooLarge
	}
	subkey, err := deriveKey(key, purpose)
	if err != nil {
		return "", err
	}
	defer subkey.Zero()

	aead, err := chacha20poly1305.NewX(subkey[:])
	if err != nil {
		return "", fmt.Errorf("creating XChaCha20-Poly1305 cipher: %w", err)
	}

	var nonce [chacha20poly1305.NonceSizeX]byte
	if _, err := io.ReadFull(random, nonce[:]); err != nil {
		return "", fmt.Errorf("%w: %v", keys.ErrEntropySource, err)
	}

	out := make([]byte, 1+len(nonce), 1+len(nonce)+len(plaintext)+aead.Overhead())
	out[0] = Version
	copy(out[1:], nonce[:])

	out = aead.Seal(out, nonce[:], plaintext, aad(Version, purpose))
	return encoding.EncodeToString(out), nil
}

// Open authenticates and decrypts a token produced by Seal with the same key
// and purpose.
func Open(key keys.Key, purpose Purpose, token string) ([]byte, error) {
	if encoding.DecodedLen(len(token)) > MaxPlaintext+Overhead {
		return nil, ErrSealInvalid
	}
	raw, err := encoding.DecodeString(token)
	if err != nil || len(raw) < Overhead || raw[0] != Version {
		return nil, ErrSealInvalid
	}

	subkey, err := deriveKey(key, purpose)
	if err != nil {
		return nil, err
	}
	defer subkey.Zero()

	aead, err := chacha20poly1305.NewX(subkey[:])
	if err != nil {
		return nil, fmt.Errorf("creating XChaCha20-Poly1305 cipher: %w", err)
	}

	nonce := raw[1 : 1+chacha20poly1305.NonceSizeX]
	ciphertext := raw[1+chacha20poly1305.NonceSizeX:]
	plaintext, err := aead.Open(nil, nonce, ciphertext, aad(raw[0], purpose))
	if err != nil {
		return nil, ErrSealInvalid
	}
	return plaintext, nil
}

// SealString is Seal for string payloads.
func SealString(key keys.Key, purpose Purpose, s string) (string, error) {
	return Seal(key, purpose, []byte(s))
}

// OpenString is Open for string payloads.
func OpenString(key keys.Key, purpose Purpose, token string) (string, error) {
	b, err := Open(key, purpose, token)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// Reference returns a deterministic, opaque hex name for name under key.
// Different keys yield unrelated references for the same name.
func Reference(key keys.Key, name string) string {
	hasher, err := blake3.NewKeyed(key[:])
	if err != nil {
		panic("seal: BLAKE3 keyed hash initialization failed: " + err.Error())
	}
	_, _ = hasher.Write(referenceDomain)
	_, _ = hasher.Write([]byte(name))
	return hex.EncodeToString(hasher.Sum(nil))
}

func deriveKey(key keys.Key, purpose Purpose) (keys.Key, error) {
	info, ok := purposeInfo[purpose]
	if !ok {
		return keys.Key{}, ErrUnknownPurpose
	}
	var out keys.Key
	reader := hkdf.New(sha256.New, key[:], nil, info)
	if _, err := io.ReadFull(reader, out[:]); err != nil {
		out.Zero()
		return keys.Key{}, fmt.Errorf("HKDF key derivation failed: %w", err)
	}
	return out, nil
}

func aad(version byte, purpose Purpose) []byte {
	return []byte{version, byte(purpose)}
}
