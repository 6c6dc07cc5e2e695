package types

import "github.com/google/uuid"

// DeviceKind classifies the physical nature of a block target.
type DeviceKind int

const (
	DeviceKindUnknown DeviceKind = iota
	DeviceKindFixed
	DeviceKindRemovable
	DeviceKindUSB
	DeviceKindNVMe
	DeviceKindImage
)

func (k DeviceKind) String() string {
	switch k {
	case DeviceKindFixed:
		return "fixed"
	case DeviceKindRemovable:
		return "removable"
	case DeviceKindUSB:
		return "usb"
	case DeviceKindNVMe:
		return "nvme"
	case DeviceKindImage:
		return "image"
	default:
		return "unknown"
	}
}

// IsImage reports whether the target is a file-backed image rather than a physical device.
func (k DeviceKind) IsImage() bool {
	return k == DeviceKindImage
}

// AccessMode is a bit set of requested stream capabilities.
type AccessMode uint8

const (
	AccessRead AccessMode = 1 << iota
	AccessWrite

	AccessReadWrite = AccessRead | AccessWrite
)

// CanRead reports whether the mode includes reading.
func (m AccessMode) CanRead() bool {
	return m&AccessRead != 0
}

// CanWrite reports whether the mode includes writing.
func (m AccessMode) CanWrite() bool {
	return m&AccessWrite != 0
}

// Within reports whether every capability of m is also present in other.
func (m AccessMode) Within(other AccessMode) bool {
	return m&^other == 0
}

func (m AccessMode) String() string {
	switch m {
	case AccessRead:
		return "read"
	case AccessWrite:
		return "write"
	case AccessReadWrite:
		return "read-write"
	default:
		return "none"
	}
}

// PartitionInfo is the structural description of a partition produced by a parser.
// Devices turn PartitionInfo values into Partition objects and assign their ids.
type PartitionInfo struct {
	StartSector uint64
	EndSector   uint64
	TypeGUID    uuid.UUID
	UniqueGUID  uuid.UUID
	Name        string
	Attributes  uint64
	Readable    bool
	Writable    bool
}

// PartitionInfoFromEntry converts a GPT entry into a readable and writable PartitionInfo.
func PartitionInfoFromEntry(e GPTEntry) PartitionInfo {
	return PartitionInfo{
		StartSector: e.FirstLBA,
		EndSector:   e.LastLBA,
		TypeGUID:    e.TypeGUID,
		UniqueGUID:  e.UniqueGUID,
		Name:        e.Name,
		Attributes:  e.Attributes,
		Readable:    true,
		Writable:    true,
	}
}
