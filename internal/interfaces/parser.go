package interfaces

import (
	"io"

	"github.com/deploymenttheory/go-gptdisk/internal/types"
)

// PartitionParser discovers partitions on a device
type PartitionParser interface {
	// Name identifies the parser in a registry
	Name() string

	// Probe reports whether the device carries a table this parser understands.
	// Probe must not fail on foreign or blank media.
	Probe(r io.ReaderAt, sectorSize uint32, sectorCount uint64) bool

	// Parse reads the partition table. A failure aborts discovery entirely.
	Parse(r io.ReaderAt, sectorSize uint32, sectorCount uint64) ([]types.PartitionInfo, error)
}
