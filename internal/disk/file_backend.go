package disk

import (
	"fmt"
	"io"
	"os"

	"github.com/deploymenttheory/go-gptdisk/internal/interfaces"
	"github.com/deploymenttheory/go-gptdisk/internal/types"
)

// FileBackend accesses block devices and image files through os.File. Transfers
// are split into chunks of at most chunkSize bytes.
type FileBackend struct {
	defaultSectorSize uint32
	chunkSize         int
}

// Compile-time check
var _ interfaces.Backend = (*FileBackend)(nil)

// NewFileBackend creates a file backend. defaultSectorSize is reported for
// regular image files, which carry no sector size of their own.
func NewFileBackend(defaultSectorSize uint32, chunkSize int) *FileBackend {
	if defaultSectorSize == 0 {
		defaultSectorSize = types.MinSectorSize
	}
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	return &FileBackend{
		defaultSectorSize: defaultSectorSize,
		chunkSize:         chunkSize,
	}
}

type fileHandle struct {
	file     *os.File
	path     string
	writable bool
}

func (h *fileHandle) Path() string   { return h.path }
func (h *fileHandle) Writable() bool { return h.writable }
func (h *fileHandle) Close() error   { return h.file.Close() }

// OpenForRead opens path read-only
func (b *FileBackend) OpenForRead(path string) (interfaces.Handle, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, types.BackendError("open for read", err)
	}
	return &fileHandle{file: f, path: path}, nil
}

// OpenForWrite opens path read-write
func (b *FileBackend) OpenForWrite(path string) (interfaces.Handle, error) {
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return nil, types.BackendError("open for write", err)
	}
	return &fileHandle{file: f, path: path, writable: true}, nil
}

// ReadChunked reads length bytes at byteOffset in chunkSize pieces
func (b *FileBackend) ReadChunked(h interfaces.Handle, byteOffset int64, length int) ([]byte, error) {
	const op = "read chunked"

	fh, err := handleOf[*fileHandle](op, h)
	if err != nil {
		return nil, err
	}
	if byteOffset < 0 || length < 0 {
		return nil, types.Errorf(types.KindOutOfRange, op, "negative offset %d or length %d", byteOffset, length)
	}

	buf := make([]byte, length)
	for done := 0; done < length; {
		n := min(b.chunkSize, length-done)
		read, err := fh.file.ReadAt(buf[done:done+n], byteOffset+int64(done))
		done += read
		if err == io.EOF && read == n {
			continue
		}
		if err != nil {
			return nil, types.BackendError(op, fmt.Errorf("read at offset %d: %w", byteOffset+int64(done), err))
		}
	}
	return buf, nil
}

// WriteChunked writes data at byteOffset in chunkSize pieces
func (b *FileBackend) WriteChunked(h interfaces.Handle, byteOffset int64, data []byte) error {
	const op = "write chunked"

	fh, err := handleOf[*fileHandle](op, h)
	if err != nil {
		return err
	}
	if !fh.writable {
		return types.Errorf(types.KindUnauthorizedAccess, op, "handle for %s is read-only", fh.path)
	}
	if byteOffset < 0 {
		return types.Errorf(types.KindOutOfRange, op, "negative offset %d", byteOffset)
	}

	for done := 0; done < len(data); {
		n := min(b.chunkSize, len(data)-done)
		written, err := fh.file.WriteAt(data[done:done+n], byteOffset+int64(done))
		done += written
		if err != nil {
			return types.BackendError(op, fmt.Errorf("write at offset %d: %w", byteOffset+int64(done), err))
		}
	}
	return nil
}

// Flush commits written data for path to stable storage
func (b *FileBackend) Flush(path string) error {
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return types.BackendError("flush", err)
	}
	defer f.Close()

	return types.BackendError("flush", f.Sync())
}

// DiscardCache drops cached pages for path
func (b *FileBackend) DiscardCache(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return types.BackendError("discard cache", err)
	}
	defer f.Close()

	return types.BackendError("discard cache", discardPageCache(f))
}

// QuerySectorSize returns the logical sector size of a block device, or the
// configured default for regular files
func (b *FileBackend) QuerySectorSize(path string) (uint32, error) {
	f, info, err := openAndStat(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	if info.Mode().IsRegular() {
		return b.defaultSectorSize, nil
	}

	size, err := blockDeviceSectorSize(f)
	if err != nil {
		return 0, types.BackendError("query sector size", err)
	}
	return size, nil
}

// QueryMaxAddressableSector returns the highest LBA of path
func (b *FileBackend) QueryMaxAddressableSector(path string) (uint64, error) {
	const op = "query max addressable sector"

	sectorSize, err := b.QuerySectorSize(path)
	if err != nil {
		return 0, err
	}

	f, info, err := openAndStat(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	var size uint64
	if info.Mode().IsRegular() {
		size = uint64(info.Size())
	} else {
		size, err = blockDeviceSize(f)
		if err != nil {
			return 0, types.BackendError(op, err)
		}
	}

	return lastLBA(op, size, sectorSize)
}

// Classify reports the kind of target at path
func (b *FileBackend) Classify(path string) (types.DeviceKind, error) {
	f, info, err := openAndStat(path)
	if err != nil {
		return types.DeviceKindUnknown, err
	}
	f.Close()

	if info.Mode().IsRegular() {
		return types.DeviceKindImage, nil
	}
	return classifyBlockDevice(path), nil
}

func openAndStat(path string) (*os.File, os.FileInfo, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, types.BackendError("open", err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, nil, types.BackendError("stat", err)
	}
	return f, info, nil
}

func lastLBA(op string, size uint64, sectorSize uint32) (uint64, error) {
	if sectorSize == 0 || size < uint64(sectorSize) {
		return 0, types.Errorf(types.KindDeviceTooSmall, op, "target of %d bytes holds no %d-byte sector", size, sectorSize)
	}
	return size/uint64(sectorSize) - 1, nil
}
