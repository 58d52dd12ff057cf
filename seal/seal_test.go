package seal

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/MrEthical07/sessionguard/keys"
)

func mustKey(t *testing.T) keys.Key {
	t.Helper()
	k, err := keys.Generate()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	return k
}

func TestSealOpenRoundTrip(t *testing.T) {
	k := mustKey(t)
	for _, purpose := range []Purpose{PurposeQuery, PurposeElement} {
		for _, msg := range []string{"", "golang generics", strings.Repeat("x", 4096)} {
			token, err := SealString(k, purpose, msg)
			if err != nil {
				t.Fatalf("seal %s: %v", purpose, err)
			}
			if strings.ContainsAny(token, "+/=") {
				t.Fatalf("token is not URL-safe: %q", token)
			}
			got, err := OpenString(k, purpose, token)
			if err != nil {
				t.Fatalf("open %s: %v", purpose, err)
			}
			if got != msg {
				t.Fatalf("expected %q, got %q", msg, got)
			}
		}
	}
}

func TestSealIsRandomized(t *testing.T) {
	k := mustKey(t)
	a, err := SealString(k, PurposeQuery, "same input")
	if err != nil {
		t.Fatalf("seal: %v", err)
	}
	b, err := SealString(k, PurposeQuery, "same input")
	if err != nil {
		t.Fatalf("seal: %v", err)
	}
	if a == b {
		t.Fatal("expected distinct tokens for repeated seals")
	}
}

func TestOpenRejectsWrongKeyPurposeAndTampering(t *testing.T) {
	k := mustKey(t)
	other := mustKey(t)

	token, err := SealString(k, PurposeQuery, "private search")
	if err != nil {
		t.Fatalf("seal: %v", err)
	}

	if _, err := Open(other, PurposeQuery, token); !errors.Is(err, ErrSealInvalid) {
		t.Fatalf("wrong key: expected ErrSealInvalid, got %v", err)
	}
	if _, err := Open(k, PurposeElement, token); !errors.Is(err, ErrSealInvalid) {
		t.Fatalf("wrong purpose: expected ErrSealInvalid, got %v", err)
	}

	raw, err := encoding.DecodeString(token)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	for _, idx := range []int{0, 1, len(raw) - 1} {
		mutated := bytes.Clone(raw)
		mutated[idx] ^= 0x01
		if _, err := Open(k, PurposeQuery, encoding.EncodeToString(mutated)); !errors.Is(err, ErrSealInvalid) {
			t.Fatalf("tamper at %d: expected ErrSealInvalid, got %v", idx, err)
		}
	}

	for name, bad := range map[string]string{
		"empty":     "",
		"not b64":   "!!!!",
		"too short": encoding.EncodeToString(raw[:Overhead-1]),
	} {
		if _, err := Open(k, PurposeQuery, bad); !errors.Is(err, ErrSealInvalid) {
			t.Fatalf("%s: expected ErrSealInvalid, got %v", name, err)
		}
	}
}

func TestSealLimitsAndUnknownPurpose(t *testing.T) {
	k := mustKey(t)
	if _, err := Seal(k, PurposeQuery, make([]byte, MaxPlaintext+1)); !errors.Is(err, ErrPlaintextTooLarge) {
		t.Fatalf("expected ErrPlaintextTooLarge, got %v", err)
	}
	if _, err := Seal(k, Purpose(99), []byte("x")); !errors.Is(err, ErrUnknownPurpose) {
		t.Fatalf("expected ErrUnknownPurpose, got %v", err)
	}
}

func TestSealFailsOnEntropyError(t *testing.T) {
	k := mustKey(t)
	_, err := sealWith(bytes.NewReader(nil), k, PurposeQuery, []byte("x"))
	if !errors.Is(err, keys.ErrEntropySource) {
		t.Fatalf("expected ErrEntropySource, got %v", err)
	}
}

func TestReferenceDeterministicPerKey(t *testing.T) {
	k := mustKey(t)
	other := mustKey(t)

	a := Reference(k, "query-cache")
	if a != Reference(k, "query-cache") {
		t.Fatal("reference is not deterministic")
	}
	if a == Reference(other, "query-cache") {
		t.Fatal("reference must differ across keys")
	}
	if a == Reference(k, "query-cache-2") {
		t.Fatal("reference must differ across names")
	}
	if len(a) != 64 {
		t.Fatalf("expected 64 hex chars, got %d", len(a))
	}
}
