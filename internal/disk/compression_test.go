package disk

import (
	"bytes"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompressionExtension(t *testing.T) {
	tests := []struct {
		algorithm string
		want      string
		wantErr   bool
	}{
		{CompressionNone, "", false},
		{"", "", false},
		{CompressionGzip, ".gz", false},
		{CompressionZlib, ".zlib", false},
		{CompressionBzip2, ".bz2", false},
		{CompressionSnappy, ".snappy", false},
		{CompressionS2, ".s2", false},
		{CompressionZstd, ".zst", false},
		{"lz4", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.algorithm, func(t *testing.T) {
			got, err := CompressionExtension(tt.algorithm)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCompressionRoundTrip(t *testing.T) {
	data := bytes.Repeat([]byte("EFI PART sector data "), 2000)

	for _, algorithm := range []string{
		CompressionNone, CompressionGzip, CompressionZlib, CompressionBzip2,
		CompressionSnappy, CompressionS2, CompressionZstd,
	} {
		t.Run(algorithm, func(t *testing.T) {
			var buf bytes.Buffer
			cw := &CountingWriter{W: &buf}

			w, err := NewCompressionWriter(algorithm, cw)
			require.NoError(t, err)
			_, err = w.Write(data)
			require.NoError(t, err)
			require.NoError(t, w.Close())

			assert.Equal(t, int64(buf.Len()), cw.Count)
			if algorithm != CompressionNone {
				assert.Less(t, buf.Len(), len(data))
			}

			r, err := NewDecompressionReader(algorithm, &buf)
			require.NoError(t, err)
			defer r.Close()

			got, err := io.ReadAll(r)
			require.NoError(t, err)
			assert.Equal(t, data, got)
		})
	}
}

func TestCompressionUnsupported(t *testing.T) {
	_, err := NewCompressionWriter("rar", io.Discard)
	assert.Error(t, err)

	_, err = NewDecompressionReader("rar", bytes.NewReader(nil))
	assert.Error(t, err)
}
