package keys

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"testing"
)

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) {
	return 0, errors.New("getrandom: device not ready")
}

func TestGenerateUniqueAcrossManyCalls(t *testing.T) {
	const n = 5000
	seen := make(map[Key]struct{}, n)
	for i := 0; i < n; i++ {
		k, err := Generate()
		if err != nil {
			t.Fatalf("generate %d: %v", i, err)
		}
		if _, dup := seen[k]; dup {
			t.Fatalf("duplicate key at iteration %d", i)
		}
		seen[k] = struct{}{}
	}
}

func TestGenerateConcurrentUnique(t *testing.T) {
	const workers, perWorker = 16, 128

	var (
		mu   sync.Mutex
		seen = make(map[Key]struct{}, workers*perWorker)
		wg   sync.WaitGroup
		fail = make(chan error, workers)
	)
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				k, err := Generate()
				if err != nil {
					fail <- err
					return
				}
				mu.Lock()
				if _, dup := seen[k]; dup {
					mu.Unlock()
					fail <- errors.New("duplicate key")
					return
				}
				seen[k] = struct{}{}
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	close(fail)
	for err := range fail {
		t.Fatalf("concurrent generation: %v", err)
	}
	if len(seen) != workers*perWorker {
		t.Fatalf("expected %d keys, got %d", workers*perWorker, len(seen))
	}
}

func TestGenerateFromFailingSource(t *testing.T) {
	k, err := GenerateFrom(failingReader{})
	if !errors.Is(err, ErrEntropySource) {
		t.Fatalf("expected ErrEntropySource, got %v", err)
	}
	if !k.IsZero() {
		t.Fatal("expected zero key on entropy failure")
	}
}

func TestGenerateFromShortSource(t *testing.T) {
	_, err := GenerateFrom(bytes.NewReader(make([]byte, Size-1)))
	if !errors.Is(err, ErrEntropySource) {
		t.Fatalf("expected ErrEntropySource for short read, got %v", err)
	}

	_, err = GenerateFrom(nil)
	if !errors.Is(err, ErrEntropySource) {
		t.Fatalf("expected ErrEntropySource for nil reader, got %v", err)
	}
}

func TestEncodeParseRoundTrip(t *testing.T) {
	for i := 0; i < 64; i++ {
		k, err := Generate()
		if err != nil {
			t.Fatalf("generate: %v", err)
		}
		enc := k.Encode()
		if len(enc) != EncodedLen {
			t.Fatalf("expected encoded length %d, got %d", EncodedLen, len(enc))
		}
		if strings.ContainsAny(enc, "+/") {
			t.Fatalf("encoding is not URL-safe: %q", enc)
		}

		back, err := Parse(enc)
		if err != nil {
			t.Fatalf("parse: %v", err)
		}
		if back != k {
			t.Fatal("round trip changed key bytes")
		}
		if len(back.Bytes()) != Size {
			t.Fatalf("expected %d decoded bytes, got %d", Size, len(back.Bytes()))
		}
	}
}

func TestParseRejectsMalformed(t *testing.T) {
	k, err := Generate()
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	enc := k.Encode()

	cases := map[string]string{
		"empty":     "",
		"truncated": enc[:len(enc)-4],
		"std alpha": strings.Repeat("+", EncodedLen-1) + "=",
		"no pad":    enc[:len(enc)-1] + "A",
		"too long":  enc + "AAAA",
	}
	for name, in := range cases {
		if _, err := Parse(in); !errors.Is(err, ErrInvalidKey) {
			t.Fatalf("%s: expected ErrInvalidKey, got %v", name, err)
		}
	}
}

func TestFromValue(t *testing.T) {
	k, err := Generate()
	if err != nil {
		t.Fatalf("generate: %v", err)
	}

	for name, v := range map[string]any{
		"string": k.Encode(),
		"bytes":  k.Bytes(),
		"key":    k,
	} {
		got, err := FromValue(v)
		if err != nil {
			t.Fatalf("%s: %v", name, err)
		}
		if got != k {
			t.Fatalf("%s: key mismatch", name)
		}
	}

	for name, v := range map[string]any{
		"nil":        nil,
		"short":      []byte{1, 2, 3},
		"wrong type": 42,
		"empty":      "",
	} {
		if _, err := FromValue(v); !errors.Is(err, ErrInvalidKey) {
			t.Fatalf("%s: expected ErrInvalidKey, got %v", name, err)
		}
	}
}

func TestFormattingRedactsKey(t *testing.T) {
	k, err := GenerateFrom(bytes.NewReader(bytes.Repeat([]byte{0xAB}, Size)))
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	enc := k.Encode()
	for _, out := range []string{
		fmt.Sprintf("%v", k),
		fmt.Sprintf("%s", k),
		fmt.Sprintf("%#v", k),
		fmt.Sprint(k),
	} {
		if strings.Contains(out, enc) || strings.Contains(out, "171") {
			t.Fatalf("formatted key leaks material: %q", out)
		}
	}
}

func TestZero(t *testing.T) {
	k, err := GenerateFrom(io.MultiReader(bytes.NewReader(bytes.Repeat([]byte{1}, Size))))
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if k.IsZero() {
		t.Fatal("expected non-zero key")
	}
	k.Zero()
	if !k.IsZero() {
		t.Fatal("expected zero key after Zero")
	}
}
