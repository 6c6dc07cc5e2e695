package gpt

import (
	"encoding/binary"
	"hash/crc32"
	"unicode/utf16"

	"github.com/deploymenttheory/go-gptdisk/internal/types"
)

// DecodeEntry parses one partition entry. The entry is returned even when it is
// not valid; callers filter with IsValid.
func DecodeEntry(data []byte) (types.GPTEntry, error) {
	if len(data) < int(types.GPTEntrySize) {
		return types.GPTEntry{}, types.Errorf(types.KindInvalidFormat, "decode entry", "entry is %d bytes, need %d", len(data), types.GPTEntrySize)
	}

	return types.GPTEntry{
		TypeGUID:   guidFromDisk(data[types.EntryOffsetTypeGUID:]),
		UniqueGUID: guidFromDisk(data[types.EntryOffsetUniqueGUID:]),
		FirstLBA:   binary.LittleEndian.Uint64(data[types.EntryOffsetFirstLBA:]),
		LastLBA:    binary.LittleEndian.Uint64(data[types.EntryOffsetLastLBA:]),
		Attributes: binary.LittleEndian.Uint64(data[types.EntryOffsetAttributes:]),
		Name:       decodeName(data[types.EntryOffsetName : types.EntryOffsetName+types.EntryNameBytes]),
	}, nil
}

// EncodeEntry serializes e into a zero-padded buffer of entrySize bytes.
// Names longer than 36 UTF-16 code units are truncated.
func EncodeEntry(e types.GPTEntry, entrySize uint32) []byte {
	if entrySize < types.GPTEntrySize {
		entrySize = types.GPTEntrySize
	}
	buf := make([]byte, entrySize)
	encodeEntryInto(buf, e)
	return buf
}

func encodeEntryInto(buf []byte, e types.GPTEntry) {
	guidToDisk(buf[types.EntryOffsetTypeGUID:], e.TypeGUID)
	guidToDisk(buf[types.EntryOffsetUniqueGUID:], e.UniqueGUID)
	binary.LittleEndian.PutUint64(buf[types.EntryOffsetFirstLBA:], e.FirstLBA)
	binary.LittleEndian.PutUint64(buf[types.EntryOffsetLastLBA:], e.LastLBA)
	binary.LittleEndian.PutUint64(buf[types.EntryOffsetAttributes:], e.Attributes)
	encodeName(buf[types.EntryOffsetName:types.EntryOffsetName+types.EntryNameBytes], e.Name)
}

// DecodeEntryArray slices data into count records of entrySize bytes and keeps
// the valid ones in slot order.
func DecodeEntryArray(data []byte, count, entrySize uint32) (*types.EntryArray, error) {
	const op = "decode entry array"

	if entrySize < types.GPTEntrySize {
		return nil, types.Errorf(types.KindInvalidFormat, op, "entry size %d is below %d", entrySize, types.GPTEntrySize)
	}
	if len(data)%int(entrySize) != 0 {
		return nil, types.Errorf(types.KindInvalidFormat, op, "buffer of %d bytes is not a multiple of entry size %d", len(data), entrySize)
	}
	if uint64(len(data)) < uint64(count)*uint64(entrySize) {
		return nil, types.Errorf(types.KindInvalidFormat, op, "buffer holds %d entries, header declares %d", len(data)/int(entrySize), count)
	}

	arr := &types.EntryArray{Count: count, EntrySize: entrySize}
	for i := uint32(0); i < count; i++ {
		off := uint64(i) * uint64(entrySize)
		e, err := DecodeEntry(data[off : off+uint64(entrySize)])
		if err != nil {
			return nil, err
		}
		if !e.IsValid() {
			continue
		}
		arr.Entries = append(arr.Entries, e)
	}

	return arr, nil
}

// EncodeEntryArray concatenates the entries in array order and zero-fills the
// remaining slots. The result is Count * EntrySize bytes.
func EncodeEntryArray(arr *types.EntryArray) ([]byte, error) {
	const op = "encode entry array"

	if arr.EntrySize < types.GPTEntrySize {
		return nil, types.Errorf(types.KindInvalidFormat, op, "entry size %d is below %d", arr.EntrySize, types.GPTEntrySize)
	}
	if len(arr.Entries) > int(arr.Count) {
		return nil, types.Errorf(types.KindOutOfRange, op, "%d entries do not fit in %d slots", len(arr.Entries), arr.Count)
	}

	buf := make([]byte, uint64(arr.Count)*uint64(arr.EntrySize))
	for i, e := range arr.Entries {
		off := uint64(i) * uint64(arr.EntrySize)
		encodeEntryInto(buf[off:off+uint64(arr.EntrySize)], e)
	}
	return buf, nil
}

// ComputeEntryArrayCRC returns the IEEE CRC32 of the encoded entry array.
func ComputeEntryArrayCRC(arr *types.EntryArray) (uint32, error) {
	buf, err := EncodeEntryArray(arr)
	if err != nil {
		return 0, err
	}
	return crc32.ChecksumIEEE(buf), nil
}

// VerifyEntryArrayCRC checks raw entry-array bytes against the CRC32 stored in a header.
func VerifyEntryArrayCRC(data []byte, h *types.GPTHeader) error {
	size := h.EntryArrayBytes()
	if uint64(len(data)) < size {
		return types.Errorf(types.KindInvalidFormat, "verify entry array", "buffer is %d bytes, header declares %d", len(data), size)
	}
	if computed := crc32.ChecksumIEEE(data[:size]); computed != h.EntryArrayCRC32 {
		return types.Errorf(types.KindIntegrityFailure, "verify entry array", "entry array CRC32 mismatch: stored 0x%08X, computed 0x%08X", h.EntryArrayCRC32, computed)
	}
	return nil
}

// decodeName decodes a zero-terminated UTF-16LE partition name.
func decodeName(b []byte) string {
	u16 := make([]uint16, 0, len(b)/2)
	for i := 0; i+1 < len(b); i += 2 {
		v := binary.LittleEndian.Uint16(b[i:])
		if v == 0 {
			break
		}
		u16 = append(u16, v)
	}
	return string(utf16.Decode(u16))
}

func encodeName(b []byte, name string) {
	units := utf16.Encode([]rune(name))
	if len(units) > types.GPTMaxNameUnits {
		units = units[:types.GPTMaxNameUnits]
	}
	for i, u := range units {
		binary.LittleEndian.PutUint16(b[i*2:], u)
	}
}

// NameUnits returns the length of name in UTF-16 code units.
func NameUnits(name string) int {
	return len(utf16.Encode([]rune(name)))
}
