package device

import (
	"errors"
	"io"

	"github.com/deploymenttheory/go-gptdisk/internal/interfaces"
	"github.com/deploymenttheory/go-gptdisk/internal/parsers/gpt"
	"github.com/deploymenttheory/go-gptdisk/internal/types"
)

// GPTParserName is the registry name of the GPT parser
const GPTParserName = "gpt"

// GPTParser discovers partitions from the primary GPT header and entry array
type GPTParser struct{}

// Compile-time check
var _ interfaces.PartitionParser = (*GPTParser)(nil)

// NewGPTParser creates a GPT parser
func NewGPTParser() *GPTParser {
	return &GPTParser{}
}

// Name returns "gpt"
func (p *GPTParser) Name() string {
	return GPTParserName
}

func readSector(r io.ReaderAt, lba uint64, count uint64, sectorSize uint32) ([]byte, error) {
	buf := make([]byte, count*uint64(sectorSize))
	n, err := r.ReadAt(buf, int64(lba)*int64(sectorSize))
	if err != nil && !(errors.Is(err, io.EOF) && n == len(buf)) {
		return nil, types.BackendError("read sector", err)
	}
	return buf, nil
}

// Probe reports whether LBA 1 carries the GPT signature
func (p *GPTParser) Probe(r io.ReaderAt, sectorSize uint32, sectorCount uint64) bool {
	if sectorCount < 2 {
		return false
	}
	buf, err := readSector(r, 1, 1, sectorSize)
	if err != nil {
		return false
	}
	return gpt.HasSignature(buf)
}

// Parse decodes the primary header and entry array. A device without the
// signature has no partitions; any other decode, CRC or validation failure
// aborts discovery.
func (p *GPTParser) Parse(r io.ReaderAt, sectorSize uint32, sectorCount uint64) ([]types.PartitionInfo, error) {
	const op = "parse gpt"

	if sectorCount < 2 {
		return nil, nil
	}
	buf, err := readSector(r, 1, 1, sectorSize)
	if err != nil {
		return nil, err
	}
	if !gpt.HasSignature(buf) {
		return nil, nil
	}

	header, err := gpt.DecodeHeader(buf)
	if err != nil {
		return nil, err
	}

	arraySectors := header.EntryArraySectors(sectorSize)
	if header.PartitionEntryLBA < 2 || header.PartitionEntryLBA >= sectorCount || arraySectors > sectorCount-header.PartitionEntryLBA {
		return nil, types.Errorf(types.KindOutOfRange, op,
			"entry array at LBA %d (%d sectors) lies outside the device's %d sectors", header.PartitionEntryLBA, arraySectors, sectorCount)
	}

	data, err := readSector(r, header.PartitionEntryLBA, arraySectors, sectorSize)
	if err != nil {
		return nil, err
	}
	if err := gpt.VerifyEntryArrayCRC(data, header); err != nil {
		return nil, err
	}

	entries, err := gpt.DecodeEntryArray(data[:header.EntryArrayBytes()], header.NumberOfEntries, header.SizeOfEntry)
	if err != nil {
		return nil, err
	}
	if err := gpt.ValidateEntries(entries, header).Err(); err != nil {
		return nil, err
	}

	infos := make([]types.PartitionInfo, 0, entries.Len())
	for _, e := range entries.Entries {
		infos = append(infos, types.PartitionInfoFromEntry(e))
	}
	return infos, nil
}
