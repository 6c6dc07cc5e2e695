// File: internal/interfaces/block_device.go
package interfaces

import (
	"io"

	"github.com/deploymenttheory/go-gptdisk/internal/types"
)

// Handle is an open channel to a device or image returned by a Backend.
type Handle interface {
	// Path returns the path the handle was opened on
	Path() string

	// Writable reports whether the handle was opened for writing
	Writable() bool

	io.Closer
}

// GeometryResolver resolves the addressing geometry and classification of a target
type GeometryResolver interface {
	// QuerySectorSize returns the logical sector size in bytes
	QuerySectorSize(path string) (uint32, error)

	// QueryMaxAddressableSector returns the highest addressable LBA
	QueryMaxAddressableSector(path string) (uint64, error)

	// Classify reports whether the target is an image or which kind of physical device it is
	Classify(path string) (types.DeviceKind, error)
}

// Backend performs raw, chunked sector transfers on a platform device or image
type Backend interface {
	GeometryResolver

	// OpenForRead opens path for reading
	OpenForRead(path string) (Handle, error)

	// OpenForWrite opens path for reading and writing
	OpenForWrite(path string) (Handle, error)

	// ReadChunked reads length bytes starting at byteOffset
	ReadChunked(h Handle, byteOffset int64, length int) ([]byte, error)

	// WriteChunked writes data starting at byteOffset
	WriteChunked(h Handle, byteOffset int64, data []byte) error

	// Flush commits pending writes for path to stable storage
	Flush(path string) error

	// DiscardCache drops cached pages for path so later reads hit the medium
	DiscardCache(path string) error
}
