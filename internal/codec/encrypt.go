package codec

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"io"

	"github.com/skyfay/dbackup/internal/apperr"
)

const (
	nonceSize = 12 // AES-GCM standard IV length
	tagSize   = 16 // AES-GCM standard auth tag length
)

// EncryptWriter wraps dst with AES-256-GCM encryption sealed once over the
// whole artifact. The written plaintext is staged in buf and only sealed at
// Close, because GCM authenticates the entire message as a single unit — the
// IV and the resulting auth tag are never folded into the ciphertext stream
// itself, only exposed to the caller afterward for the sidecar (spec §4.1).
// The ciphertext dst receives is tag-free; IV and Tag travel out of band.
type EncryptWriter struct {
	dst io.Writer
	gcm cipher.AEAD
	IV  []byte
	Tag []byte
	buf bytes.Buffer
}

// NewEncryptWriter builds an EncryptWriter sealing to dst with key (32 bytes).
func NewEncryptWriter(dst io.Writer, key []byte) (*EncryptWriter, error) {
	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}
	iv := make([]byte, nonceSize)
	if _, err := io.ReadFull(rand.Reader, iv); err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, "codec.NewEncryptWriter", "generating iv", err)
	}
	return &EncryptWriter{dst: dst, gcm: gcm, IV: iv}, nil
}

// Write stages plaintext. Sealing can't start until the stream ends, since
// the tag authenticates the full message.
func (w *EncryptWriter) Write(p []byte) (int, error) {
	return w.buf.Write(p)
}

// Close seals the staged plaintext in one AEAD operation, writes the
// ciphertext to dst, and records the resulting tag on Tag alongside IV for
// the caller to place in the sidecar. Must be called exactly once, after the
// last Write.
func (w *EncryptWriter) Close() error {
	sealed := w.gcm.Seal(nil, w.IV, w.buf.Bytes(), nil)
	if len(sealed) < tagSize {
		return apperr.New(apperr.KindInternal, "codec.EncryptWriter.Close", "sealed output shorter than tag size")
	}
	split := len(sealed) - tagSize
	w.Tag = sealed[split:]
	if _, err := w.dst.Write(sealed[:split]); err != nil {
		return apperr.Wrap(apperr.KindIO, "codec.EncryptWriter.Close", "writing ciphertext", err)
	}
	return nil
}

// DecryptReader reverses EncryptWriter given the same key, IV, and auth tag
// (spec §4.1: decryption requires the caller to present (key, iv, authTag)).
// Authentication can only be decided once every ciphertext byte has been
// seen, so the first Read drains src entirely, opens the sealed message, and
// serves the recovered plaintext from a buffer; a tampered byte anywhere in
// the stream surfaces as a KindIntegrity error on that first Read.
type DecryptReader struct {
	src       io.Reader
	gcm       cipher.AEAD
	iv        []byte
	tag       []byte
	plaintext *bytes.Reader
	err       error
}

// NewDecryptReader builds a DecryptReader authenticating ciphertext read from
// src against iv and authTag.
func NewDecryptReader(src io.Reader, key, iv, authTag []byte) (*DecryptReader, error) {
	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}
	if len(iv) != gcm.NonceSize() {
		return nil, apperr.New(apperr.KindConfig, "codec.NewDecryptReader", "iv has wrong length")
	}
	if len(authTag) != tagSize {
		return nil, apperr.New(apperr.KindConfig, "codec.NewDecryptReader", "authTag has wrong length")
	}
	return &DecryptReader{src: src, gcm: gcm, iv: iv, tag: authTag}, nil
}

func (r *DecryptReader) Read(p []byte) (int, error) {
	if r.err != nil {
		return 0, r.err
	}
	if r.plaintext == nil {
		ciphertext, err := io.ReadAll(r.src)
		if err != nil {
			r.err = apperr.Wrap(apperr.KindIO, "codec.DecryptReader.Read", "reading ciphertext", err)
			return 0, r.err
		}
		sealed := append(ciphertext, r.tag...)
		plain, err := r.gcm.Open(sealed[:0:0], r.iv, sealed, nil)
		if err != nil {
			r.err = apperr.Wrap(apperr.KindIntegrity, "codec.DecryptReader.Read", "authenticating ciphertext", err)
			return 0, r.err
		}
		r.plaintext = bytes.NewReader(plain)
	}
	n, err := r.plaintext.Read(p)
	if err != nil && err != io.EOF {
		r.err = err
	}
	return n, err
}

func newGCM(key []byte) (cipher.AEAD, error) {
	if len(key) != 32 {
		return nil, apperr.New(apperr.KindConfig, "codec.newGCM", "key must be 32 bytes")
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, "codec.newGCM", "creating AES cipher", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, "codec.newGCM", "creating GCM", err)
	}
	return gcm, nil
}
