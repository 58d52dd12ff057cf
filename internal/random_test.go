package internal

import (
	"bytes"
	"errors"
	"testing"
	"testing/iotest"
)

func TestSessionIDRoundTrip(t *testing.T) {
	sid, err := NewSessionID()
	if err != nil {
		t.Fatalf("new session id: %v", err)
	}
	parsed, err := ParseSessionID(sid.String())
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if parsed != sid {
		t.Fatal("round trip mismatch")
	}
	if len(sid.String()) != 22 {
		t.Fatalf("expected 22 char id, got %d", len(sid.String()))
	}
}

func TestNewSessionIDFromFailingSource(t *testing.T) {
	if _, err := NewSessionIDFrom(iotest.ErrReader(errors.New("boom"))); err == nil {
		t.Fatal("expected error from failing source")
	}
	if _, err := NewSessionIDFrom(bytes.NewReader(make([]byte, 4))); err == nil {
		t.Fatal("expected error from short source")
	}
	if _, err := NewSessionIDFrom(nil); err == nil {
		t.Fatal("expected error from nil source")
	}
}

func TestParseSessionIDRejectsBadInput(t *testing.T) {
	for _, in := range []string{"", "short", "!!!!!!!!!!!!!!!!!!!!!!", "AAAAAAAAAAAAAAAAAAAAAAAA"} {
		if _, err := ParseSessionID(in); err == nil {
			t.Fatalf("expected error for %q", in)
		}
	}
}
