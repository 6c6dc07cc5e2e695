package gpt

import "github.com/google/uuid"

// guidFromDisk converts the mixed-endian on-disk GUID encoding into a canonical UUID.
// The first three groups are stored little-endian, the last two big-endian.
func guidFromDisk(b []byte) uuid.UUID {
	var u uuid.UUID
	u[0], u[1], u[2], u[3] = b[3], b[2], b[1], b[0]
	u[4], u[5] = b[5], b[4]
	u[6], u[7] = b[7], b[6]
	copy(u[8:], b[8:16])
	return u
}

// guidToDisk writes u into b using the mixed-endian on-disk GUID encoding.
func guidToDisk(b []byte, u uuid.UUID) {
	b[0], b[1], b[2], b[3] = u[3], u[2], u[1], u[0]
	b[4], b[5] = u[5], u[4]
	b[6], b[7] = u[7], u[6]
	copy(b[8:16], u[8:])
}

// GUIDBytes returns the 16-byte on-disk encoding of u.
func GUIDBytes(u uuid.UUID) [16]byte {
	var b [16]byte
	guidToDisk(b[:], u)
	return b
}

// ParseGUIDBytes decodes a 16-byte on-disk GUID.
func ParseGUIDBytes(b [16]byte) uuid.UUID {
	return guidFromDisk(b[:])
}
