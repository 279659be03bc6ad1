// Package codec implements the compression and encryption stages applied to
// a backup artifact stream before it is uploaded to a destination, and in
// reverse before a restore is fed to a database adapter (spec §4.1).
//
// Stages compose as plain io.Reader/io.Writer wrappers rather than a
// goroutine pipeline — a dump is a single sequential byte stream, so a
// synchronous chain of wrapping writers is simpler and carries no risk of
// goroutine leaks on early cancellation.
package codec

import (
	"compress/gzip"
	"fmt"
	"io"

	"github.com/andybalholm/brotli"

	"github.com/skyfay/dbackup/internal/apperr"
)

// Compression identifies which compressor a job applies to its artifacts.
type Compression string

const (
	CompressionNone   Compression = "none"
	CompressionGzip   Compression = "gzip"
	CompressionBrotli Compression = "brotli"
)

// gzipLevel and brotliQuality balance CPU cost against ratio for database
// dumps, which are already fairly compressible text/binary mixes.
const (
	gzipLevel     = 6
	brotliQuality = 6
)

// NewCompressWriter wraps dst so that bytes written to the returned writer
// are compressed and written to dst. The caller must Close the returned
// writer to flush the final compressed block before closing dst.
func NewCompressWriter(dst io.Writer, c Compression) (io.WriteCloser, error) {
	switch c {
	case CompressionNone, "":
		return nopWriteCloser{dst}, nil
	case CompressionGzip:
		w, err := gzip.NewWriterLevel(dst, gzipLevel)
		if err != nil {
			return nil, apperr.Wrap(apperr.KindInternal, "codec.NewCompressWriter", "creating gzip writer", err)
		}
		return w, nil
	case CompressionBrotli:
		return brotli.NewWriterLevel(dst, brotliQuality), nil
	default:
		return nil, apperr.New(apperr.KindConfig, "codec.NewCompressWriter", fmt.Sprintf("unknown compression %q", c))
	}
}

// NewDecompressReader wraps src so that reads from the returned reader yield
// decompressed bytes.
func NewDecompressReader(src io.Reader, c Compression) (io.Reader, error) {
	switch c {
	case CompressionNone, "":
		return src, nil
	case CompressionGzip:
		r, err := gzip.NewReader(src)
		if err != nil {
			return nil, apperr.Wrap(apperr.KindIO, "codec.NewDecompressReader", "creating gzip reader", err)
		}
		return r, nil
	case CompressionBrotli:
		return brotli.NewReader(src), nil
	default:
		return nil, apperr.New(apperr.KindConfig, "codec.NewDecompressReader", fmt.Sprintf("unknown compression %q", c))
	}
}

type nopWriteCloser struct{ io.Writer }

func (nopWriteCloser) Close() error { return nil }
