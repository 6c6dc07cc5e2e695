package device

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deploymenttheory/go-gptdisk/internal/disk"
	"github.com/deploymenttheory/go-gptdisk/internal/types"
)

func patternedDevice(t *testing.T, sectors uint64) (*Device, []byte) {
	t.Helper()

	img := make([]byte, sectors*512)
	for i := range img {
		img[i] = byte(i / 512)
	}
	backend := disk.NewMemoryBackend()
	backend.AddImage(testPath, append([]byte(nil), img...), 512, types.DeviceKindImage)

	d := New(testPath, backend, nil)
	require.NoError(t, d.Initialize())
	return d, img
}

func TestSnapshotCopiesEverySector(t *testing.T) {
	for _, compression := range []string{disk.CompressionNone, disk.CompressionZstd, disk.CompressionGzip, disk.CompressionBzip2} {
		t.Run(compression, func(t *testing.T) {
			d, img := patternedDevice(t, 100)

			var out bytes.Buffer
			var updates []SnapshotProgress
			result, err := d.Snapshot(context.Background(), &out, SnapshotOptions{
				ChunkSize:   3*512 + 100,
				Compression: compression,
				Progress:    func(p SnapshotProgress) { updates = append(updates, p) },
			})
			require.NoError(t, err)

			assert.Equal(t, int64(len(img)), result.BytesRead)
			assert.Equal(t, int64(out.Len()), result.BytesWritten)
			assert.Greater(t, result.Ratio(), 0.0)

			// 100 sectors in chunks of 3 sectors
			require.Len(t, updates, 34)
			last := updates[len(updates)-1]
			assert.Equal(t, int64(len(img)), last.BytesRead)
			assert.Equal(t, int64(len(img)), last.TotalBytes)

			r, err := disk.NewDecompressionReader(compression, &out)
			require.NoError(t, err)
			defer r.Close()
			got, err := io.ReadAll(r)
			require.NoError(t, err)
			assert.Equal(t, img, got)
		})
	}
}

func TestSnapshotHonoursCancellation(t *testing.T) {
	d, _ := patternedDevice(t, 64)

	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	_, err := d.Snapshot(ctx, io.Discard, SnapshotOptions{
		ChunkSize: 512,
		Progress: func(SnapshotProgress) {
			calls++
			if calls == 2 {
				cancel()
			}
		},
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))
	assert.Equal(t, 2, calls)
}

func TestSnapshotErrors(t *testing.T) {
	d, _ := patternedDevice(t, 8)

	_, err := d.Snapshot(context.Background(), io.Discard, SnapshotOptions{Compression: "lzma"})
	assert.True(t, errors.Is(err, types.KindInvalidFormat))

	require.NoError(t, d.Close())
	_, err = d.Snapshot(context.Background(), io.Discard, SnapshotOptions{})
	assert.True(t, errors.Is(err, types.KindInvalidState))
}
