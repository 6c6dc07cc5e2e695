// Package gpt encodes and decodes GUID Partition Table headers and partition
// entry arrays. It performs no I/O.
package gpt

import (
	"encoding/binary"
	"hash/crc32"

	"github.com/google/uuid"

	"github.com/deploymenttheory/go-gptdisk/internal/types"
)

// DecodeHeader parses a GPT header from a buffer holding at least one sector.
// The stored header CRC32 must match the CRC32 of the header bytes with the CRC
// field zeroed.
func DecodeHeader(data []byte) (*types.GPTHeader, error) {
	const op = "decode header"

	if len(data) < int(types.MinSectorSize) {
		return nil, types.Errorf(types.KindInvalidFormat, op, "buffer is %d bytes, need at least %d", len(data), types.MinSectorSize)
	}
	if isZero(data[:types.GPTHeaderSize]) {
		return nil, types.Errorf(types.KindInvalidFormat, op, "no GPT header present")
	}

	// The CRC gates every other check so that a damaged signature or size field
	// reports as an integrity failure.
	headerSize := binary.LittleEndian.Uint32(data[types.HeaderOffsetHeaderSize:])
	sizeInRange := headerSize >= types.GPTHeaderSize && int(headerSize) <= len(data)
	crcLen := headerSize
	if !sizeInRange {
		crcLen = types.GPTHeaderSize
	}

	stored := binary.LittleEndian.Uint32(data[types.HeaderOffsetHeaderCRC32:])
	if computed := headerCRC(data[:crcLen]); computed != stored {
		return nil, types.Errorf(types.KindIntegrityFailure, op, "header CRC32 mismatch: stored 0x%08X, computed 0x%08X", stored, computed)
	}
	if !HasSignature(data) {
		return nil, types.Errorf(types.KindInvalidFormat, op, "invalid signature %q", data[:8])
	}
	if !sizeInRange {
		return nil, types.Errorf(types.KindInvalidFormat, op, "header size %d out of range", headerSize)
	}

	h := &types.GPTHeader{
		Revision:          binary.LittleEndian.Uint32(data[types.HeaderOffsetRevision:]),
		HeaderSize:        headerSize,
		HeaderCRC32:       stored,
		Reserved:          binary.LittleEndian.Uint32(data[types.HeaderOffsetReserved:]),
		MyLBA:             binary.LittleEndian.Uint64(data[types.HeaderOffsetMyLBA:]),
		AlternateLBA:      binary.LittleEndian.Uint64(data[types.HeaderOffsetAlternateLBA:]),
		FirstUsableLBA:    binary.LittleEndian.Uint64(data[types.HeaderOffsetFirstUsableLBA:]),
		LastUsableLBA:     binary.LittleEndian.Uint64(data[types.HeaderOffsetLastUsableLBA:]),
		DiskGUID:          guidFromDisk(data[types.HeaderOffsetDiskGUID:]),
		PartitionEntryLBA: binary.LittleEndian.Uint64(data[types.HeaderOffsetPartitionEntryLBA:]),
		NumberOfEntries:   binary.LittleEndian.Uint32(data[types.HeaderOffsetNumberOfEntries:]),
		SizeOfEntry:       binary.LittleEndian.Uint32(data[types.HeaderOffsetSizeOfEntry:]),
		EntryArrayCRC32:   binary.LittleEndian.Uint32(data[types.HeaderOffsetEntryArrayCRC32:]),
	}
	copy(h.Signature[:], data[:8])

	return h, nil
}

// EncodeHeader serializes h into a MinSectorSize buffer. The HeaderCRC32 field is
// written as stored; call SealHeader first to compute it.
func EncodeHeader(h *types.GPTHeader) []byte {
	buf := make([]byte, types.MinSectorSize)
	encodeHeaderInto(buf, h)
	return buf
}

func encodeHeaderInto(buf []byte, h *types.GPTHeader) {
	copy(buf[types.HeaderOffsetSignature:], h.Signature[:])
	binary.LittleEndian.PutUint32(buf[types.HeaderOffsetRevision:], h.Revision)
	binary.LittleEndian.PutUint32(buf[types.HeaderOffsetHeaderSize:], h.HeaderSize)
	binary.LittleEndian.PutUint32(buf[types.HeaderOffsetHeaderCRC32:], h.HeaderCRC32)
	binary.LittleEndian.PutUint32(buf[types.HeaderOffsetReserved:], h.Reserved)
	binary.LittleEndian.PutUint64(buf[types.HeaderOffsetMyLBA:], h.MyLBA)
	binary.LittleEndian.PutUint64(buf[types.HeaderOffsetAlternateLBA:], h.AlternateLBA)
	binary.LittleEndian.PutUint64(buf[types.HeaderOffsetFirstUsableLBA:], h.FirstUsableLBA)
	binary.LittleEndian.PutUint64(buf[types.HeaderOffsetLastUsableLBA:], h.LastUsableLBA)
	guidToDisk(buf[types.HeaderOffsetDiskGUID:], h.DiskGUID)
	binary.LittleEndian.PutUint64(buf[types.HeaderOffsetPartitionEntryLBA:], h.PartitionEntryLBA)
	binary.LittleEndian.PutUint32(buf[types.HeaderOffsetNumberOfEntries:], h.NumberOfEntries)
	binary.LittleEndian.PutUint32(buf[types.HeaderOffsetSizeOfEntry:], h.SizeOfEntry)
	binary.LittleEndian.PutUint32(buf[types.HeaderOffsetEntryArrayCRC32:], h.EntryArrayCRC32)
}

// EncodeHeaderSector serializes h into a zero-padded buffer of sectorSize bytes.
func EncodeHeaderSector(h *types.GPTHeader, sectorSize uint32) []byte {
	if sectorSize < types.MinSectorSize {
		sectorSize = types.MinSectorSize
	}
	buf := make([]byte, sectorSize)
	encodeHeaderInto(buf, h)
	return buf
}

// ComputeHeaderCRC returns the CRC32 of h's encoded header bytes with the CRC field zeroed.
func ComputeHeaderCRC(h *types.GPTHeader) uint32 {
	size := h.HeaderSize
	if size < types.GPTHeaderSize || size > types.MinSectorSize {
		size = types.GPTHeaderSize
	}
	return headerCRC(EncodeHeader(h)[:size])
}

// SealHeader stores the computed header CRC32 in h. The entry array CRC32 must
// already be set, since it is part of the checksummed bytes.
func SealHeader(h *types.GPTHeader) {
	h.HeaderCRC32 = ComputeHeaderCRC(h)
}

// headerCRC computes the IEEE CRC32 of header with bytes 16..19 treated as zero.
func headerCRC(header []byte) uint32 {
	var zero [4]byte
	crc := crc32.Update(0, crc32.IEEETable, header[:types.HeaderOffsetHeaderCRC32])
	crc = crc32.Update(crc, crc32.IEEETable, zero[:])
	return crc32.Update(crc, crc32.IEEETable, header[types.HeaderOffsetHeaderCRC32+4:])
}

// NewDefaultHeader builds the primary header of an empty default layout for a
// device of sectorCount sectors. Neither CRC is set.
func NewDefaultHeader(sectorCount uint64, sectorSize uint32, diskGUID uuid.UUID) (*types.GPTHeader, error) {
	const op = "default header"

	if sectorSize < types.MinSectorSize {
		return nil, types.Errorf(types.KindInvalidFormat, op, "sector size %d is below %d", sectorSize, types.MinSectorSize)
	}
	min := MinimumSectors(sectorSize)
	if sectorCount < min {
		return nil, types.Errorf(types.KindDeviceTooSmall, op, "device has %d sectors, a GPT needs at least %d", sectorCount, min)
	}

	arraySectors := types.SectorsFor(uint64(types.GPTEntryCount)*uint64(types.GPTEntrySize), sectorSize)
	h := &types.GPTHeader{
		Revision:          types.GPTRevision,
		HeaderSize:        types.GPTHeaderSize,
		MyLBA:             1,
		AlternateLBA:      sectorCount - 1,
		FirstUsableLBA:    2 + arraySectors,
		LastUsableLBA:     sectorCount - 2 - arraySectors,
		DiskGUID:          diskGUID,
		PartitionEntryLBA: 2,
		NumberOfEntries:   types.GPTEntryCount,
		SizeOfEntry:       types.GPTEntrySize,
	}
	copy(h.Signature[:], types.GPTSignature)
	return h, nil
}

// MinimumSectors returns the smallest sector count that fits a protective MBR,
// both headers, both 128-entry arrays and at least one usable sector.
func MinimumSectors(sectorSize uint32) uint64 {
	arraySectors := types.SectorsFor(uint64(types.GPTEntryCount)*uint64(types.GPTEntrySize), sectorSize)
	return 2 * (2 + arraySectors)
}

// HasSignature reports whether data begins with "EFI PART".
func HasSignature(data []byte) bool {
	return len(data) >= 8 && string(data[:8]) == types.GPTSignature
}

func isZero(b []byte) bool {
	for _, v := range b {
		if v != 0 {
			return false
		}
	}
	return true
}

// DeriveBackup returns the mirror of h: MyLBA and AlternateLBA are swapped and
// PartitionEntryLBA is placed next to the new MyLBA. Applying it twice restores
// the original locations. The header CRC32 is cleared.
func DeriveBackup(h *types.GPTHeader, sectorSize uint32) *types.GPTHeader {
	out := *h
	out.MyLBA, out.AlternateLBA = h.AlternateLBA, h.MyLBA
	if out.IsBackup() {
		out.PartitionEntryLBA = out.MyLBA - h.EntryArraySectors(sectorSize)
	} else {
		out.PartitionEntryLBA = out.MyLBA + 1
	}
	out.HeaderCRC32 = 0
	return &out
}
