package disk

import (
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/edsrzf/mmap-go"

	"github.com/deploymenttheory/go-gptdisk/internal/interfaces"
	"github.com/deploymenttheory/go-gptdisk/internal/types"
)

// MmapBackend accesses image files through memory mappings. It does not support
// block devices.
type MmapBackend struct {
	sectorSize uint32

	mu   sync.Mutex
	open map[string][]*mmapHandle
}

// Compile-time check
var _ interfaces.Backend = (*MmapBackend)(nil)

// NewMmapBackend creates a backend reporting sectorSize for every image
func NewMmapBackend(sectorSize uint32) *MmapBackend {
	if sectorSize == 0 {
		sectorSize = types.MinSectorSize
	}
	return &MmapBackend{
		sectorSize: sectorSize,
		open:       make(map[string][]*mmapHandle),
	}
}

type mmapHandle struct {
	backend  *MmapBackend
	file     *os.File
	mmap     mmap.MMap
	path     string
	writable bool
	mu       sync.RWMutex
}

func (h *mmapHandle) Path() string   { return h.path }
func (h *mmapHandle) Writable() bool { return h.writable }

func (h *mmapHandle) Close() error {
	h.backend.forget(h)

	h.mu.Lock()
	defer h.mu.Unlock()

	var flushErr error
	if h.writable {
		flushErr = h.mmap.Flush()
	}
	mmapErr := h.mmap.Unmap()
	closeErr := h.file.Close()

	return errors.Join(flushErr, mmapErr, closeErr)
}

func (b *MmapBackend) mapFile(op, path string, writable bool) (interfaces.Handle, error) {
	flag, prot := os.O_RDONLY, mmap.RDONLY
	if writable {
		flag, prot = os.O_RDWR, mmap.RDWR
	}

	f, err := os.OpenFile(path, flag, 0)
	if err != nil {
		return nil, types.BackendError(op, err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, types.BackendError(op, err)
	}
	if !info.Mode().IsRegular() || info.Size() == 0 {
		f.Close()
		return nil, types.Errorf(types.KindBackendFailure, op, "%s is not a non-empty regular file", path)
	}

	m, err := mmap.Map(f, prot, 0)
	if err != nil {
		f.Close()
		return nil, types.BackendError(op, fmt.Errorf("error mapping file: %w", err))
	}

	h := &mmapHandle{backend: b, file: f, mmap: m, path: path, writable: writable}
	b.mu.Lock()
	b.open[path] = append(b.open[path], h)
	b.mu.Unlock()

	return h, nil
}

func (b *MmapBackend) forget(h *mmapHandle) {
	b.mu.Lock()
	defer b.mu.Unlock()

	handles := b.open[h.path]
	for i, other := range handles {
		if other == h {
			b.open[h.path] = append(handles[:i], handles[i+1:]...)
			break
		}
	}
	if len(b.open[h.path]) == 0 {
		delete(b.open, h.path)
	}
}

// OpenForRead maps path read-only
func (b *MmapBackend) OpenForRead(path string) (interfaces.Handle, error) {
	return b.mapFile("open for read", path, false)
}

// OpenForWrite maps path read-write
func (b *MmapBackend) OpenForWrite(path string) (interfaces.Handle, error) {
	return b.mapFile("open for write", path, true)
}

// ReadChunked copies length bytes out of the mapping
func (b *MmapBackend) ReadChunked(h interfaces.Handle, byteOffset int64, length int) ([]byte, error) {
	const op = "read chunked"

	mh, err := handleOf[*mmapHandle](op, h)
	if err != nil {
		return nil, err
	}

	mh.mu.RLock()
	defer mh.mu.RUnlock()

	if err := checkRange(op, byteOffset, length, int64(len(mh.mmap))); err != nil {
		return nil, err
	}
	buf := make([]byte, length)
	copy(buf, mh.mmap[byteOffset:byteOffset+int64(length)])
	return buf, nil
}

// WriteChunked copies data into the mapping
func (b *MmapBackend) WriteChunked(h interfaces.Handle, byteOffset int64, data []byte) error {
	const op = "write chunked"

	mh, err := handleOf[*mmapHandle](op, h)
	if err != nil {
		return err
	}
	if !mh.writable {
		return types.Errorf(types.KindUnauthorizedAccess, op, "mapping of %s is read-only", mh.path)
	}

	mh.mu.Lock()
	defer mh.mu.Unlock()

	if err := checkRange(op, byteOffset, len(data), int64(len(mh.mmap))); err != nil {
		return err
	}
	copy(mh.mmap[byteOffset:], data)
	return nil
}

// Flush synchronises every writable mapping of path with the file
func (b *MmapBackend) Flush(path string) error {
	b.mu.Lock()
	handles := append([]*mmapHandle(nil), b.open[path]...)
	b.mu.Unlock()

	var errs []error
	for _, h := range handles {
		if !h.writable {
			continue
		}
		h.mu.Lock()
		errs = append(errs, h.mmap.Flush())
		h.mu.Unlock()
	}
	return types.BackendError("flush", errors.Join(errs...))
}

// DiscardCache is a no-op: mappings share the page cache with the file.
func (b *MmapBackend) DiscardCache(path string) error {
	return nil
}

// QuerySectorSize returns the configured sector size
func (b *MmapBackend) QuerySectorSize(path string) (uint32, error) {
	if _, err := os.Stat(path); err != nil {
		return 0, types.BackendError("query sector size", err)
	}
	return b.sectorSize, nil
}

// QueryMaxAddressableSector returns the highest LBA of the image
func (b *MmapBackend) QueryMaxAddressableSector(path string) (uint64, error) {
	const op = "query max addressable sector"

	info, err := os.Stat(path)
	if err != nil {
		return 0, types.BackendError(op, err)
	}
	return lastLBA(op, uint64(info.Size()), b.sectorSize)
}

// Classify always reports an image
func (b *MmapBackend) Classify(path string) (types.DeviceKind, error) {
	info, err := os.Stat(path)
	if err != nil {
		return types.DeviceKindUnknown, types.BackendError("classify", err)
	}
	if !info.Mode().IsRegular() {
		return types.DeviceKindUnknown, types.Errorf(types.KindBackendFailure, "classify", "%s is not a regular file", path)
	}
	return types.DeviceKindImage, nil
}
