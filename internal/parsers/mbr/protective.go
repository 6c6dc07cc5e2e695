// Package mbr builds the protective Master Boot Record that precedes a GPT disk.
package mbr

import "encoding/binary"

// Protective MBR layout.
// Reference: UEFI 5.2.3, table 5.4
const (
	// PartitionRecordOffset is the byte offset of the first partition record.
	PartitionRecordOffset = 446
	// PartitionRecordSize is the size of one partition record.
	PartitionRecordSize = 16
	// SignatureOffset is the byte offset of the 0x55 0xAA boot signature.
	SignatureOffset = 510
	// ProtectiveType is the OS type of the single GPT protective partition.
	ProtectiveType byte = 0xEE
	// MaxRecordSectors is the largest size a partition record can express.
	MaxRecordSectors uint64 = 0xFFFFFFFF
	// Size is the number of significant bytes in an MBR.
	Size = 512
)

// BuildProtectiveMBR returns one sector holding a protective MBR for a disk of
// totalSectors sectors. Sector sizes below 512 are raised to 512.
func BuildProtectiveMBR(sectorSize uint32, totalSectors uint64) []byte {
	if sectorSize < Size {
		sectorSize = Size
	}
	buf := make([]byte, sectorSize)

	rec := buf[PartitionRecordOffset : PartitionRecordOffset+PartitionRecordSize]
	rec[0] = 0x00 // not bootable
	rec[1], rec[2], rec[3] = 0xFF, 0xFF, 0xFF
	rec[4] = ProtectiveType
	rec[5], rec[6], rec[7] = 0xFF, 0xFF, 0xFF

	length := uint64(0)
	if totalSectors > 0 {
		length = totalSectors - 1
	}
	if length > MaxRecordSectors {
		length = MaxRecordSectors
	}
	binary.LittleEndian.PutUint32(rec[8:12], 1)
	binary.LittleEndian.PutUint32(rec[12:16], uint32(length))

	buf[SignatureOffset] = 0x55
	buf[SignatureOffset+1] = 0xAA

	return buf
}
