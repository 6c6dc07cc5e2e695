package gpt

import (
	"encoding/binary"
	"errors"
	"hash/crc32"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deploymenttheory/go-gptdisk/internal/types"
)

func sampleEntries() []types.GPTEntry {
	return []types.GPTEntry{
		{
			TypeGUID:   types.PartitionTypeEFISystem,
			UniqueGUID: uuid.MustParse("11111111-2222-3333-4444-555555555555"),
			FirstLBA:   2048,
			LastLBA:    206847,
			Attributes: types.AttrRequiredPartition,
			Name:       "EFI system partition",
		},
		{
			TypeGUID:   types.PartitionTypeLinuxFilesystem,
			UniqueGUID: uuid.MustParse("66666666-7777-8888-9999-AAAAAAAAAAAA"),
			FirstLBA:   206848,
			LastLBA:    999_966,
			Name:       "root ✓",
		},
	}
}

func TestEntryRoundTrip(t *testing.T) {
	for _, e := range sampleEntries() {
		buf := EncodeEntry(e, types.GPTEntrySize)
		require.Len(t, buf, 128)

		got, err := DecodeEntry(buf)
		require.NoError(t, err)
		assert.Equal(t, e, got)
	}
}

func TestEncodeEntryLayout(t *testing.T) {
	e := sampleEntries()[0]
	buf := EncodeEntry(e, 256)
	require.Len(t, buf, 256)

	assert.Equal(t, GUIDBytes(e.TypeGUID), [16]byte(buf[0:16]))
	assert.Equal(t, GUIDBytes(e.UniqueGUID), [16]byte(buf[16:32]))
	assert.Equal(t, uint64(2048), binary.LittleEndian.Uint64(buf[32:40]))
	assert.Equal(t, uint64(206847), binary.LittleEndian.Uint64(buf[40:48]))
	assert.Equal(t, types.AttrRequiredPartition, binary.LittleEndian.Uint64(buf[48:56]))
	assert.Equal(t, uint16('E'), binary.LittleEndian.Uint16(buf[56:58]))
	assert.Equal(t, uint16('F'), binary.LittleEndian.Uint16(buf[58:60]))
	for _, b := range buf[128:] {
		if b != 0 {
			t.Fatal("padding beyond 128 bytes must be zero")
		}
	}
}

func TestEncodeEntryTruncatesLongName(t *testing.T) {
	e := sampleEntries()[0]
	e.Name = strings.Repeat("x", 50)

	got, err := DecodeEntry(EncodeEntry(e, types.GPTEntrySize))
	require.NoError(t, err)
	assert.Equal(t, strings.Repeat("x", types.GPTMaxNameUnits), got.Name)
}

func TestEntryArrayRoundTrip(t *testing.T) {
	arr := types.NewEntryArray()
	arr.Entries = sampleEntries()

	buf, err := EncodeEntryArray(arr)
	require.NoError(t, err)
	assert.Len(t, buf, 128*128)

	decoded, err := DecodeEntryArray(buf, arr.Count, arr.EntrySize)
	require.NoError(t, err)
	assert.Equal(t, arr, decoded)
}

func TestDecodeEntryArray_SkipsUnusedAndInvalid(t *testing.T) {
	entries := sampleEntries()
	buf := make([]byte, 4*128)
	encodeEntryInto(buf[0:128], entries[0])
	// slot 1 left zero: unused
	inverted := entries[1]
	inverted.FirstLBA, inverted.LastLBA = 500, 100
	encodeEntryInto(buf[256:384], inverted)
	encodeEntryInto(buf[384:512], entries[1])

	arr, err := DecodeEntryArray(buf, 4, 128)
	require.NoError(t, err)
	require.Len(t, arr.Entries, 2)
	assert.Equal(t, entries[0], arr.Entries[0])
	assert.Equal(t, entries[1], arr.Entries[1])
	assert.Equal(t, uint32(4), arr.Count)
}

func TestDecodeEntryArray_Failures(t *testing.T) {
	tests := []struct {
		name      string
		size      int
		count     uint32
		entrySize uint32
	}{
		{name: "not a multiple of entry size", size: 300, count: 2, entrySize: 128},
		{name: "fewer records than declared", size: 256, count: 4, entrySize: 128},
		{name: "entry size too small", size: 128, count: 2, entrySize: 64},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeEntryArray(make([]byte, tt.size), tt.count, tt.entrySize)
			require.Error(t, err)
			assert.True(t, errors.Is(err, types.KindInvalidFormat))
		})
	}
}

func TestEncodeEntryArray_TooManyEntries(t *testing.T) {
	arr := &types.EntryArray{Count: 1, EntrySize: 128, Entries: sampleEntries()}
	_, err := EncodeEntryArray(arr)
	assert.True(t, errors.Is(err, types.KindOutOfRange))
}

func TestEntryArrayCRC(t *testing.T) {
	arr := types.NewEntryArray()
	arr.Entries = sampleEntries()

	buf, err := EncodeEntryArray(arr)
	require.NoError(t, err)
	crc, err := ComputeEntryArrayCRC(arr)
	require.NoError(t, err)
	assert.Equal(t, crc32.ChecksumIEEE(buf), crc)

	h := &types.GPTHeader{NumberOfEntries: arr.Count, SizeOfEntry: arr.EntrySize, EntryArrayCRC32: crc}
	assert.NoError(t, VerifyEntryArrayCRC(buf, h))

	buf[40] ^= 0x10
	assert.True(t, errors.Is(VerifyEntryArrayCRC(buf, h), types.KindIntegrityFailure))
	assert.True(t, errors.Is(VerifyEntryArrayCRC(buf[:100], h), types.KindInvalidFormat))
}

func TestEmptyEntryArrayCRC(t *testing.T) {
	// The CRC32 of 16384 zero bytes, as written by other GPT tools for an empty table.
	crc, err := ComputeEntryArrayCRC(types.NewEntryArray())
	require.NoError(t, err)
	assert.Equal(t, crc32.ChecksumIEEE(make([]byte, 16384)), crc)
	assert.Equal(t, uint32(0xAB54D286), crc)
}
