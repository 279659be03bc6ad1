package codec

import (
	"bytes"
	"io"
	"testing"

	"github.com/skyfay/dbackup/internal/apperr"
)

func TestCompressDecompressRoundTrip(t *testing.T) {
	for _, c := range []Compression{CompressionNone, CompressionGzip, CompressionBrotli} {
		t.Run(string(c), func(t *testing.T) {
			var buf bytes.Buffer
			w, err := NewCompressWriter(&buf, c)
			if err != nil {
				t.Fatalf("NewCompressWriter: %v", err)
			}
			payload := bytes.Repeat([]byte("database dump line\n"), 1000)
			if _, err := w.Write(payload); err != nil {
				t.Fatalf("Write: %v", err)
			}
			if err := w.Close(); err != nil {
				t.Fatalf("Close: %v", err)
			}

			r, err := NewDecompressReader(&buf, c)
			if err != nil {
				t.Fatalf("NewDecompressReader: %v", err)
			}
			got, err := io.ReadAll(r)
			if err != nil {
				t.Fatalf("ReadAll: %v", err)
			}
			if !bytes.Equal(got, payload) {
				t.Fatalf("round trip mismatch for %s: got %d bytes, want %d", c, len(got), len(payload))
			}
		})
	}
}

func TestEncryptDecryptRoundTripLargePayload(t *testing.T) {
	key := []byte("01234567890123456789012345678901"[:32])

	var buf bytes.Buffer
	w, err := NewEncryptWriter(&buf, key)
	if err != nil {
		t.Fatalf("NewEncryptWriter: %v", err)
	}

	payload := bytes.Repeat([]byte("x"), (1<<20*2)+17)
	if _, err := w.Write(payload); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	r, err := NewDecryptReader(&buf, key, w.IV, w.Tag)
	if err != nil {
		t.Fatalf("NewDecryptReader: %v", err)
	}
	got, err := io.ReadAll(r)
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if !bytes.Equal(got, payload) {
		t.Fatalf("round trip mismatch: got %d bytes, want %d", len(got), len(payload))
	}
}

func TestDecryptRejectsWrongKey(t *testing.T) {
	key := []byte("01234567890123456789012345678901"[:32])
	wrongKey := []byte("10987654321098765432109876543210"[:32])

	var buf bytes.Buffer
	w, _ := NewEncryptWriter(&buf, key)
	_, _ = w.Write([]byte("secret dump contents"))
	_ = w.Close()

	r, err := NewDecryptReader(&buf, wrongKey, w.IV, w.Tag)
	if err != nil {
		t.Fatalf("NewDecryptReader: %v", err)
	}
	if _, err := io.ReadAll(r); err == nil {
		t.Fatal("expected authentication failure with wrong key")
	}
}

func TestDecryptTamperedCiphertextRaisesIntegrity(t *testing.T) {
	key := []byte("01234567890123456789012345678901"[:32])

	var buf bytes.Buffer
	w, _ := NewEncryptWriter(&buf, key)
	_, _ = w.Write([]byte("secret dump contents"))
	_ = w.Close()

	tampered := buf.Bytes()
	tampered[0] ^= 0xFF

	r, err := NewDecryptReader(bytes.NewReader(tampered), key, w.IV, w.Tag)
	if err != nil {
		t.Fatalf("NewDecryptReader: %v", err)
	}
	_, err = io.ReadAll(r)
	if err == nil {
		t.Fatal("expected authentication failure for tampered ciphertext")
	}
	if apperr.KindOf(err) != apperr.KindIntegrity {
		t.Fatalf("got kind %v, want KindIntegrity", apperr.KindOf(err))
	}
}
