// Package types implements the on-disk structures of the GUID Partition Table.
// This package is based on the UEFI Specification 2.10, chapter 5.
package types

import "github.com/google/uuid"

// GPT Header (UEFI 5.3.2)
// The header defines the range of logical block addresses usable by partitions
// and the location and size of the partition entry array.

// GPTSignature is the value of the Signature field, the ASCII string "EFI PART".
// Reference: UEFI 5.3.2, table 5.5
const GPTSignature = "EFI PART"

// GPTRevision is the revision number written by this module (1.0).
const GPTRevision uint32 = 0x00010000

// GPTHeaderSize is the number of significant bytes in a GPT header.
// The remainder of the header sector is reserved and must be zero.
const GPTHeaderSize uint32 = 92

// GPTEntrySize is the size of one partition entry written by this module.
const GPTEntrySize uint32 = 128

// GPTEntryCount is the number of partition entry slots in a default layout.
const GPTEntryCount uint32 = 128

// GPTMaxNameUnits is the capacity of the partition name field in UTF-16 code units.
const GPTMaxNameUnits = 36

// MinSectorSize is the smallest logical block size a GPT may be placed on.
const MinSectorSize uint32 = 512

// Byte offsets of the GPT header fields.
// Reference: UEFI 5.3.2, table 5.5
const (
	HeaderOffsetSignature         = 0
	HeaderOffsetRevision          = 8
	HeaderOffsetHeaderSize        = 12
	HeaderOffsetHeaderCRC32       = 16
	HeaderOffsetReserved          = 20
	HeaderOffsetMyLBA             = 24
	HeaderOffsetAlternateLBA      = 32
	HeaderOffsetFirstUsableLBA    = 40
	HeaderOffsetLastUsableLBA     = 48
	HeaderOffsetDiskGUID          = 56
	HeaderOffsetPartitionEntryLBA = 72
	HeaderOffsetNumberOfEntries   = 80
	HeaderOffsetSizeOfEntry       = 84
	HeaderOffsetEntryArrayCRC32   = 88
)

// Byte offsets of the GPT partition entry fields.
// Reference: UEFI 5.3.3, table 5.6
const (
	EntryOffsetTypeGUID   = 0
	EntryOffsetUniqueGUID = 16
	EntryOffsetFirstLBA   = 32
	EntryOffsetLastLBA    = 40
	EntryOffsetAttributes = 48
	EntryOffsetName       = 56
	EntryNameBytes        = 72
)

// GPTHeader represents a primary or backup GPT header.
// Reference: UEFI 5.3.2
type GPTHeader struct {
	// Always GPTSignature for a valid header.
	Signature [8]byte
	// The revision number for this header.
	Revision uint32
	// Size in bytes of the header; the CRC covers exactly this many bytes.
	HeaderSize uint32
	// CRC32 of the header with this field zeroed during calculation.
	HeaderCRC32 uint32
	// Must be zero.
	Reserved uint32
	// The LBA that contains this header.
	MyLBA uint64
	// The LBA of the alternate header.
	AlternateLBA uint64
	// The first LBA that may be used by a partition.
	FirstUsableLBA uint64
	// The last LBA that may be used by a partition.
	LastUsableLBA uint64
	// Identifies the disk.
	DiskGUID uuid.UUID
	// The starting LBA of the partition entry array.
	PartitionEntryLBA uint64
	// The number of entries in the partition entry array.
	NumberOfEntries uint32
	// The size in bytes of each entry in the partition entry array.
	SizeOfEntry uint32
	// CRC32 of the partition entry array.
	EntryArrayCRC32 uint32
}

// IsBackup reports whether the header describes the backup copy at the end of the disk.
func (h *GPTHeader) IsBackup() bool {
	return h.MyLBA > h.AlternateLBA
}

// HasSignature reports whether the signature field holds "EFI PART".
func (h *GPTHeader) HasSignature() bool {
	return string(h.Signature[:]) == GPTSignature
}

// EntryArrayBytes returns the size of the partition entry array in bytes.
func (h *GPTHeader) EntryArrayBytes() uint64 {
	return uint64(h.NumberOfEntries) * uint64(h.SizeOfEntry)
}

// EntryArraySectors returns the number of sectors occupied by the partition entry array.
func (h *GPTHeader) EntryArraySectors(sectorSize uint32) uint64 {
	return SectorsFor(h.EntryArrayBytes(), sectorSize)
}

// SectorsFor returns the number of whole sectors needed to hold size bytes.
func SectorsFor(size uint64, sectorSize uint32) uint64 {
	if sectorSize == 0 {
		return 0
	}
	ss := uint64(sectorSize)
	return (size + ss - 1) / ss
}

// GPTEntry represents one slot of the partition entry array.
// Reference: UEFI 5.3.3
type GPTEntry struct {
	// Defines the purpose and type of the partition. Zero marks an unused slot.
	TypeGUID uuid.UUID
	// Unique for every partition entry.
	UniqueGUID uuid.UUID
	// Starting LBA of the partition.
	FirstLBA uint64
	// Ending LBA of the partition, inclusive.
	LastLBA uint64
	// Attribute bits (UEFI 5.3.3, table 5.7).
	Attributes uint64
	// Human readable name, stored as UTF-16LE.
	Name string
}

// IsValid reports whether the entry describes a partition.
func (e *GPTEntry) IsValid() bool {
	return e.TypeGUID != uuid.Nil && e.FirstLBA <= e.LastLBA
}

// SectorCount returns the number of sectors spanned by the entry.
func (e *GPTEntry) SectorCount() uint64 {
	if e.LastLBA < e.FirstLBA {
		return 0
	}
	return e.LastLBA - e.FirstLBA + 1
}

// Partition attribute bits.
// Reference: UEFI 5.3.3, table 5.7
const (
	AttrRequiredPartition uint64 = 1 << 0
	AttrNoBlockIOProtocol uint64 = 1 << 1
	AttrLegacyBIOSBoot    uint64 = 1 << 2
)

// EntryArray is an ordered collection of partition entries. Slice order is the
// on-disk slot order.
type EntryArray struct {
	Entries []GPTEntry
	// Number of slots in the on-disk array.
	Count uint32
	// Size in bytes of each slot.
	EntrySize uint32
}

// NewEntryArray returns an empty array with the default 128 x 128 byte geometry.
func NewEntryArray() *EntryArray {
	return &EntryArray{
		Count:     GPTEntryCount,
		EntrySize: GPTEntrySize,
	}
}

// Len returns the number of populated entries.
func (a *EntryArray) Len() int {
	return len(a.Entries)
}

// FindByUniqueGUID returns the entry with the given unique GUID.
func (a *EntryArray) FindByUniqueGUID(id uuid.UUID) (GPTEntry, bool) {
	for _, e := range a.Entries {
		if e.UniqueGUID == id {
			return e, true
		}
	}
	return GPTEntry{}, false
}
