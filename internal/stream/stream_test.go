package stream

import (
	"bytes"
	"errors"
	"io"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deploymenttheory/go-gptdisk/internal/disk"
	"github.com/deploymenttheory/go-gptdisk/internal/types"
)

const testDisk = "mem0"

func newBackend(t *testing.T, sectors uint64) *disk.MemoryBackend {
	t.Helper()
	b := disk.NewMemoryBackend()
	b.AddDisk(testDisk, 512, sectors, types.DeviceKindImage)
	return b
}

func partitionTarget(start, count uint64) Target {
	return Target{
		Path:        testDisk,
		StartSector: start,
		SectorCount: count,
		SectorSize:  512,
		Readable:    true,
		Writable:    true,
	}
}

func TestStreamWriteLandsAtAbsoluteOffset(t *testing.T) {
	b := newBackend(t, 64)
	s, err := Open(b, partitionTarget(10, 20), WithAccess(types.AccessReadWrite))
	require.NoError(t, err)
	defer s.Close()

	payload := bytes.Repeat([]byte{0x5A}, 512)
	_, err = s.Seek(512*3, io.SeekStart)
	require.NoError(t, err)
	n, err := s.Write(payload)
	require.NoError(t, err)
	assert.Equal(t, 512, n)
	assert.Equal(t, int64(512*4), s.Position())

	raw := b.Bytes(testDisk)
	assert.Equal(t, payload, raw[13*512:14*512])
	assert.True(t, b.IsWritten(testDisk, 13))
	assert.Equal(t, uint(1), b.WrittenSectors(testDisk))

	_, err = s.Seek(512*3, io.SeekStart)
	require.NoError(t, err)
	got := make([]byte, 512)
	_, err = io.ReadFull(s, got)
	require.NoError(t, err)
	assert.Equal(t, payload, got)
}

func TestStreamSeekAlwaysClamps(t *testing.T) {
	b := newBackend(t, 8)
	s, err := Open(b, partitionTarget(0, 8))
	require.NoError(t, err)
	defer s.Close()

	length := s.Len()
	offsets := []int64{math.MinInt64, -length - 1, -1, 0, 1, 511, length, length + 1, math.MaxInt64}
	whences := []int{io.SeekStart, io.SeekCurrent, io.SeekEnd, 42}

	for _, start := range []int64{0, 100, length} {
		for _, whence := range whences {
			for _, off := range offsets {
				_, err := s.Seek(start, io.SeekStart)
				require.NoError(t, err)

				pos, err := s.Seek(off, whence)
				require.NoError(t, err)
				assert.GreaterOrEqual(t, pos, int64(0))
				assert.LessOrEqual(t, pos, length)
				assert.Equal(t, pos, s.Position())
			}
		}
	}

	pos, _ := s.Seek(-10, io.SeekEnd)
	assert.Equal(t, length-10, pos)
	pos, _ = s.Seek(4, io.SeekCurrent)
	assert.Equal(t, length-6, pos)
	pos, _ = s.Seek(7, 42)
	assert.Equal(t, length-6, pos)
}

func TestStreamAlignmentFailsBeforeBackend(t *testing.T) {
	b := newBackend(t, 8)
	s, err := Open(b, partitionTarget(0, 8), WithAccess(types.AccessReadWrite))
	require.NoError(t, err)
	defer s.Close()

	_, err = s.Write(make([]byte, 100))
	assert.True(t, errors.Is(err, types.KindMisaligned))
	_, err = s.Read(make([]byte, 513))
	assert.True(t, errors.Is(err, types.KindMisaligned))
	_, err = s.WriteAt(make([]byte, 1), 0)
	assert.True(t, errors.Is(err, types.KindMisaligned))

	assert.Equal(t, 0, b.WriteCount(testDisk))
	assert.Equal(t, 0, b.ReadCount(testDisk))
	assert.Equal(t, int64(0), s.Position())
}

func TestStreamAlignmentDisabledAndBlockSize(t *testing.T) {
	b := newBackend(t, 16)

	s, err := Open(b, partitionTarget(0, 16), WithAccess(types.AccessReadWrite), WithAlignment(false))
	require.NoError(t, err)
	n, err := s.Write([]byte("abc"))
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	require.NoError(t, s.Close())

	s, err = Open(b, partitionTarget(0, 16), WithAccess(types.AccessReadWrite), WithBlockSize(4096))
	require.NoError(t, err)
	defer s.Close()
	_, err = s.Write(make([]byte, 512))
	assert.True(t, errors.Is(err, types.KindMisaligned))
	_, err = s.Write(make([]byte, 4096))
	assert.NoError(t, err)
}

func TestStreamAccessChecks(t *testing.T) {
	tests := []struct {
		name      string
		readable  bool
		writable  bool
		access    types.AccessMode
		wantRead  bool
		wantWrite bool
	}{
		{"read-only stream", true, true, types.AccessRead, true, false},
		{"write-only stream", true, true, types.AccessWrite, false, true},
		{"read-only partition", true, false, types.AccessReadWrite, true, false},
		{"unreadable partition", false, true, types.AccessReadWrite, false, true},
		{"full access", true, true, types.AccessReadWrite, true, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := newBackend(t, 8)
			target := partitionTarget(0, 8)
			target.Readable = tt.readable
			target.Writable = tt.writable

			s, err := Open(b, target, WithAccess(tt.access))
			require.NoError(t, err)
			defer s.Close()

			assert.Equal(t, tt.wantRead, s.CanRead())
			assert.Equal(t, tt.wantWrite, s.CanWrite())

			_, err = s.Read(make([]byte, 512))
			if tt.wantRead {
				assert.NoError(t, err)
			} else {
				assert.True(t, errors.Is(err, types.KindUnauthorizedAccess))
			}

			_, err = s.WriteAt(make([]byte, 512), 0)
			if tt.wantWrite {
				assert.NoError(t, err)
			} else {
				assert.True(t, errors.Is(err, types.KindUnauthorizedAccess))
				assert.Equal(t, 0, b.WriteCount(testDisk))
			}
		})
	}
}

func TestStreamBoundaries(t *testing.T) {
	b := newBackend(t, 16)
	s, err := Open(b, partitionTarget(4, 4), WithAccess(types.AccessReadWrite))
	require.NoError(t, err)
	defer s.Close()

	// Write crossing the end is rejected and writes nothing
	_, err = s.Seek(3*512, io.SeekStart)
	require.NoError(t, err)
	n, err := s.Write(make([]byte, 1024))
	assert.Equal(t, 0, n)
	assert.True(t, errors.Is(err, types.KindOutOfRange))
	assert.Equal(t, int64(3*512), s.Position())
	assert.Equal(t, 0, b.WriteCount(testDisk))

	// Read crossing the end is truncated to the remaining room
	n, err = s.Read(make([]byte, 1024))
	require.NoError(t, err)
	assert.Equal(t, 512, n)
	n, err = s.Read(make([]byte, 512))
	assert.Equal(t, 0, n)
	assert.Equal(t, io.EOF, err)

	n, err = s.ReadAt(make([]byte, 1024), 3*512)
	assert.Equal(t, 512, n)
	assert.Equal(t, io.EOF, err)

	_, err = s.ReadAt(make([]byte, 512), -512)
	assert.True(t, errors.Is(err, types.KindOutOfRange))
}

func TestStreamSetLength(t *testing.T) {
	b := newBackend(t, 16)
	s, err := Open(b, partitionTarget(0, 8), WithAccess(types.AccessReadWrite))
	require.NoError(t, err)
	defer s.Close()

	assert.Equal(t, int64(8*512), s.StructuralLength())
	_, _ = s.Seek(0, io.SeekEnd)

	require.NoError(t, s.SetLength(2*512))
	assert.Equal(t, int64(2*512), s.Len())
	assert.Equal(t, int64(2*512), s.Position())

	err = s.SetLength(9 * 512)
	assert.True(t, errors.Is(err, types.KindOutOfRange))
	err = s.SetLength(-1)
	assert.True(t, errors.Is(err, types.KindOutOfRange))

	// Shrunk length bounds writes
	_, err = s.WriteAt(make([]byte, 512), 2*512)
	assert.True(t, errors.Is(err, types.KindOutOfRange))

	// Growing back up to the structural length is allowed
	require.NoError(t, s.SetLength(8*512))
	_, err = s.WriteAt(make([]byte, 512), 7*512)
	assert.NoError(t, err)
}

func TestSubStreamConfinesTransfers(t *testing.T) {
	b := newBackend(t, 300)
	partition, err := Open(b, partitionTarget(50, 200), WithAccess(types.AccessReadWrite))
	require.NoError(t, err)
	defer partition.Close()

	sub, err := partition.SubStream(100*512, 10*512, 0)
	require.NoError(t, err)
	defer sub.Close()

	assert.Equal(t, uint64(150), sub.Target().StartSector)
	assert.Equal(t, uint64(10), sub.SectorCount())
	assert.Equal(t, int64(10*512), sub.Len())

	// Every sector inside [100, 110) is reachable
	for lba := uint64(0); lba < 10; lba++ {
		require.NoError(t, sub.WriteSectors(lba, bytes.Repeat([]byte{byte(lba + 1)}, 512)))
	}
	for lba := uint64(150); lba < 160; lba++ {
		assert.True(t, b.IsWritten(testDisk, lba))
	}
	assert.False(t, b.IsWritten(testDisk, 149))
	assert.False(t, b.IsWritten(testDisk, 160))

	// Anything crossing sector 110 is rejected
	writes := b.WriteCount(testDisk)
	err = sub.WriteSectors(9, make([]byte, 1024))
	assert.True(t, errors.Is(err, types.KindOutOfRange))
	err = sub.WriteSectors(10, make([]byte, 512))
	assert.True(t, errors.Is(err, types.KindOutOfRange))
	_, err = sub.ReadSectors(9, 2)
	assert.True(t, errors.Is(err, types.KindOutOfRange))
	assert.Equal(t, writes, b.WriteCount(testDisk))

	// A plain read crossing the end never returns bytes past it
	buf := make([]byte, 1024)
	n, err := sub.ReadAt(buf, 9*512)
	assert.Equal(t, 512, n)
	assert.Equal(t, io.EOF, err)
	assert.Equal(t, bytes.Repeat([]byte{10}, 512), buf[:512])
	assert.Equal(t, make([]byte, 512), buf[512:])

	// Position and length are independent of the parent
	_, _ = sub.Seek(0, io.SeekEnd)
	assert.Equal(t, int64(0), partition.Position())
	require.NoError(t, sub.SetLength(512))
	assert.Equal(t, int64(200*512), partition.Len())
}

func TestSubStreamValidation(t *testing.T) {
	b := newBackend(t, 300)
	parent, err := Open(b, partitionTarget(0, 200), WithAccess(types.AccessRead))
	require.NoError(t, err)
	defer parent.Close()

	tests := []struct {
		name   string
		offset int64
		length int64
		access types.AccessMode
		kind   types.ErrorKind
	}{
		{"past the end", 190 * 512, 11 * 512, 0, types.KindOutOfRange},
		{"offset beyond", 201 * 512, -1, 0, types.KindOutOfRange},
		{"negative offset", -512, 512, 0, types.KindOutOfRange},
		{"unaligned offset", 100, 512, 0, types.KindMisaligned},
		{"wider access", 0, 512, types.AccessReadWrite, types.KindUnauthorizedAccess},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := parent.SubStream(tt.offset, tt.length, tt.access)
			require.Error(t, err)
			assert.Equal(t, tt.kind, types.KindOf(err))
		})
	}

	rest, err := parent.SubStream(150*512, -1, 0)
	require.NoError(t, err)
	defer rest.Close()
	assert.Equal(t, int64(50*512), rest.Len())
	assert.Equal(t, types.AccessRead, rest.Access())

	odd, err := parent.SubStream(0, 700, 0)
	require.NoError(t, err)
	defer odd.Close()
	assert.Equal(t, uint64(2), odd.SectorCount())
	assert.Equal(t, int64(700), odd.Len())
}

func TestStreamFlushDiscardClose(t *testing.T) {
	b := newBackend(t, 8)
	s, err := Open(b, partitionTarget(0, 8), WithAccess(types.AccessReadWrite))
	require.NoError(t, err)

	require.NoError(t, s.Flush())
	require.NoError(t, s.DiscardCache())
	assert.Equal(t, 1, b.FlushCount(testDisk))
	assert.Equal(t, 1, b.DiscardCount(testDisk))

	require.NoError(t, s.Close())
	require.NoError(t, s.Close())

	_, err = s.Read(make([]byte, 512))
	assert.True(t, errors.Is(err, types.KindInvalidState))
	_, err = s.Write(make([]byte, 512))
	assert.True(t, errors.Is(err, types.KindInvalidState))
}

func TestOpenErrors(t *testing.T) {
	b := newBackend(t, 8)

	_, err := Open(nil, partitionTarget(0, 8))
	assert.True(t, errors.Is(err, types.KindInvalidState))

	target := partitionTarget(0, 8)
	target.SectorSize = 0
	_, err = Open(b, target)
	assert.True(t, errors.Is(err, types.KindInvalidFormat))

	target = partitionTarget(0, 8)
	target.Path = "missing"
	_, err = Open(b, target)
	assert.True(t, errors.Is(err, types.KindBackendFailure))
}
