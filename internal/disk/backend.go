// Package disk provides raw I/O backends for block devices and image files.
package disk

import (
	"fmt"

	"github.com/deploymenttheory/go-gptdisk/internal/interfaces"
	"github.com/deploymenttheory/go-gptdisk/internal/types"
)

// Backend names accepted by NewBackend
const (
	BackendFile   = "file"
	BackendMmap   = "mmap"
	BackendMemory = "memory"
)

// NewBackend constructs a backend by name. A nil config uses the defaults.
func NewBackend(name string, cfg *DiskConfig) (interfaces.Backend, error) {
	sectorSize := uint32(512)
	chunkSize := DefaultChunkSize
	if cfg != nil {
		if cfg.DefaultSectorSize != 0 {
			sectorSize = cfg.DefaultSectorSize
		}
		if cfg.ChunkSize > 0 {
			chunkSize = cfg.ChunkSize
		}
	}

	switch name {
	case BackendFile, "":
		return NewFileBackend(sectorSize, chunkSize), nil
	case BackendMmap:
		return NewMmapBackend(sectorSize), nil
	case BackendMemory:
		return NewMemoryBackend(), nil
	default:
		return nil, fmt.Errorf("unsupported backend %q", name)
	}
}

// handleOf asserts that h was produced by the calling backend.
func handleOf[T interfaces.Handle](op string, h interfaces.Handle) (T, error) {
	var zero T
	if h == nil {
		return zero, types.Errorf(types.KindBackendFailure, op, "nil handle")
	}
	typed, ok := h.(T)
	if !ok {
		return zero, types.Errorf(types.KindBackendFailure, op, "handle of type %T belongs to another backend", h)
	}
	return typed, nil
}

// checkRange validates a transfer against a target of size bytes.
func checkRange(op string, off int64, length int, size int64) error {
	if off < 0 || length < 0 || off+int64(length) > size {
		return types.Errorf(types.KindOutOfRange, op, "transfer of %d bytes at offset %d exceeds target size %d", length, off, size)
	}
	return nil
}
