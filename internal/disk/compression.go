package disk

import (
	"fmt"
	"io"

	"github.com/dsnet/compress/bzip2"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/s2"
	"github.com/klauspost/compress/snappy"
	"github.com/klauspost/compress/zlib"
	"github.com/klauspost/compress/zstd"
)

// Compression algorithms accepted for snapshots
const (
	CompressionNone   = "none"
	CompressionGzip   = "gzip"
	CompressionZlib   = "zlib"
	CompressionBzip2  = "bzip2"
	CompressionSnappy = "snappy"
	CompressionS2     = "s2"
	CompressionZstd   = "zstd"
)

// CompressionExtension returns the file extension for a compression algorithm
func CompressionExtension(algorithm string) (string, error) {
	switch algorithm {
	case CompressionNone, "":
		return "", nil
	case CompressionGzip:
		return ".gz", nil
	case CompressionZlib:
		return ".zlib", nil
	case CompressionBzip2:
		return ".bz2", nil
	case CompressionSnappy:
		return ".snappy", nil
	case CompressionS2:
		return ".s2", nil
	case CompressionZstd:
		return ".zst", nil
	default:
		return "", fmt.Errorf("unsupported compression algorithm: %s", algorithm)
	}
}

type nopWriteCloser struct {
	io.Writer
}

func (nopWriteCloser) Close() error { return nil }

// NewCompressionWriter wraps output in the named compressor. Closing the
// returned writer flushes the compressor but leaves output open.
func NewCompressionWriter(algorithm string, output io.Writer) (io.WriteCloser, error) {
	switch algorithm {
	case CompressionNone, "":
		return nopWriteCloser{output}, nil
	case CompressionGzip:
		return gzip.NewWriter(output), nil
	case CompressionZlib:
		return zlib.NewWriter(output), nil
	case CompressionBzip2:
		return bzip2.NewWriter(output, &bzip2.WriterConfig{})
	case CompressionSnappy:
		return snappy.NewBufferedWriter(output), nil
	case CompressionS2:
		return s2.NewWriter(output), nil
	case CompressionZstd:
		return zstd.NewWriter(output)
	default:
		return nil, fmt.Errorf("unsupported compression algorithm: %s", algorithm)
	}
}

// NewDecompressionReader reverses NewCompressionWriter
func NewDecompressionReader(algorithm string, input io.Reader) (io.ReadCloser, error) {
	switch algorithm {
	case CompressionNone, "":
		return io.NopCloser(input), nil
	case CompressionGzip:
		return gzip.NewReader(input)
	case CompressionZlib:
		return zlib.NewReader(input)
	case CompressionBzip2:
		return bzip2.NewReader(input, &bzip2.ReaderConfig{})
	case CompressionSnappy:
		return io.NopCloser(snappy.NewReader(input)), nil
	case CompressionS2:
		return io.NopCloser(s2.NewReader(input)), nil
	case CompressionZstd:
		dec, err := zstd.NewReader(input)
		if err != nil {
			return nil, err
		}
		return dec.IOReadCloser(), nil
	default:
		return nil, fmt.Errorf("unsupported compression algorithm: %s", algorithm)
	}
}

// CountingWriter counts the bytes passed through to W
type CountingWriter struct {
	W     io.Writer
	Count int64
}

func (cw *CountingWriter) Write(p []byte) (int, error) {
	n, err := cw.W.Write(p)
	cw.Count += int64(n)
	return n, err
}
