package disk

import (
	"errors"
	"fmt"
	"sync"

	"github.com/bits-and-blooms/bitset"

	"github.com/deploymenttheory/go-gptdisk/internal/interfaces"
	"github.com/deploymenttheory/go-gptdisk/internal/types"
)

// ErrInjected is returned by writes that were set up to fail with FailWrite.
var ErrInjected = errors.New("injected write failure")

// MemoryBackend keeps named disks in memory. It records which sectors were
// written and how many transfers were issued, and can be told to fail a write.
type MemoryBackend struct {
	mu    sync.RWMutex
	disks map[string]*memoryDisk
}

// Compile-time check
var _ interfaces.Backend = (*MemoryBackend)(nil)

type memoryDisk struct {
	mu         sync.RWMutex
	data       []byte
	sectorSize uint32
	kind       types.DeviceKind
	written    *bitset.BitSet

	reads     int
	writes    int
	flushes   int
	discards  int
	failWrite int // 1-based index of the write to fail, 0 for none
}

// NewMemoryBackend creates an empty memory backend
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{disks: make(map[string]*memoryDisk)}
}

// AddDisk registers a zero-filled disk of sectorCount sectors
func (b *MemoryBackend) AddDisk(path string, sectorSize uint32, sectorCount uint64, kind types.DeviceKind) {
	b.AddImage(path, make([]byte, uint64(sectorSize)*sectorCount), sectorSize, kind)
}

// AddImage registers a disk backed by data. The slice is used directly.
func (b *MemoryBackend) AddImage(path string, data []byte, sectorSize uint32, kind types.DeviceKind) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.disks[path] = &memoryDisk{
		data:       data,
		sectorSize: sectorSize,
		kind:       kind,
		written:    bitset.New(uint(len(data)) / uint(sectorSize)),
	}
}

func (b *MemoryBackend) disk(op, path string) (*memoryDisk, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	d, ok := b.disks[path]
	if !ok {
		return nil, types.Errorf(types.KindBackendFailure, op, "no such disk %q", path)
	}
	return d, nil
}

type memoryHandle struct {
	disk     *memoryDisk
	path     string
	writable bool
}

func (h *memoryHandle) Path() string   { return h.path }
func (h *memoryHandle) Writable() bool { return h.writable }
func (h *memoryHandle) Close() error   { return nil }

// OpenForRead opens a registered disk for reading
func (b *MemoryBackend) OpenForRead(path string) (interfaces.Handle, error) {
	d, err := b.disk("open for read", path)
	if err != nil {
		return nil, err
	}
	return &memoryHandle{disk: d, path: path}, nil
}

// OpenForWrite opens a registered disk for reading and writing
func (b *MemoryBackend) OpenForWrite(path string) (interfaces.Handle, error) {
	d, err := b.disk("open for write", path)
	if err != nil {
		return nil, err
	}
	return &memoryHandle{disk: d, path: path, writable: true}, nil
}

// ReadChunked copies length bytes out of the disk
func (b *MemoryBackend) ReadChunked(h interfaces.Handle, byteOffset int64, length int) ([]byte, error) {
	const op = "read chunked"

	mh, err := handleOf[*memoryHandle](op, h)
	if err != nil {
		return nil, err
	}
	d := mh.disk

	d.mu.Lock()
	defer d.mu.Unlock()

	if err := checkRange(op, byteOffset, length, int64(len(d.data))); err != nil {
		return nil, err
	}
	d.reads++
	buf := make([]byte, length)
	copy(buf, d.data[byteOffset:])
	return buf, nil
}

// WriteChunked copies data into the disk and marks the touched sectors
func (b *MemoryBackend) WriteChunked(h interfaces.Handle, byteOffset int64, data []byte) error {
	const op = "write chunked"

	mh, err := handleOf[*memoryHandle](op, h)
	if err != nil {
		return err
	}
	if !mh.writable {
		return types.Errorf(types.KindUnauthorizedAccess, op, "handle for %s is read-only", mh.path)
	}
	d := mh.disk

	d.mu.Lock()
	defer d.mu.Unlock()

	if err := checkRange(op, byteOffset, len(data), int64(len(d.data))); err != nil {
		return err
	}
	d.writes++
	if d.failWrite != 0 && d.writes == d.failWrite {
		return types.BackendError(op, fmt.Errorf("write %d at offset %d: %w", d.writes, byteOffset, ErrInjected))
	}

	n := copy(d.data[byteOffset:], data)
	ss := int64(d.sectorSize)
	for off := byteOffset - byteOffset%ss; off < byteOffset+int64(n); off += ss {
		d.written.Set(uint(off / ss))
	}
	return nil
}

// Flush counts the call
func (b *MemoryBackend) Flush(path string) error {
	d, err := b.disk("flush", path)
	if err != nil {
		return err
	}
	d.mu.Lock()
	d.flushes++
	d.mu.Unlock()
	return nil
}

// DiscardCache counts the call
func (b *MemoryBackend) DiscardCache(path string) error {
	d, err := b.disk("discard cache", path)
	if err != nil {
		return err
	}
	d.mu.Lock()
	d.discards++
	d.mu.Unlock()
	return nil
}

// QuerySectorSize returns the sector size the disk was registered with
func (b *MemoryBackend) QuerySectorSize(path string) (uint32, error) {
	d, err := b.disk("query sector size", path)
	if err != nil {
		return 0, err
	}
	return d.sectorSize, nil
}

// QueryMaxAddressableSector returns the highest LBA of the disk
func (b *MemoryBackend) QueryMaxAddressableSector(path string) (uint64, error) {
	const op = "query max addressable sector"

	d, err := b.disk(op, path)
	if err != nil {
		return 0, err
	}
	d.mu.RLock()
	defer d.mu.RUnlock()
	return lastLBA(op, uint64(len(d.data)), d.sectorSize)
}

// Classify returns the kind the disk was registered with
func (b *MemoryBackend) Classify(path string) (types.DeviceKind, error) {
	d, err := b.disk("classify", path)
	if err != nil {
		return types.DeviceKindUnknown, err
	}
	return d.kind, nil
}

// FailWrite makes the nth write to path (counting from 1, including writes
// already issued) fail with ErrInjected.
func (b *MemoryBackend) FailWrite(path string, nth int) error {
	d, err := b.disk("fail write", path)
	if err != nil {
		return err
	}
	d.mu.Lock()
	d.failWrite = nth
	d.mu.Unlock()
	return nil
}

// Bytes returns a copy of the disk contents
func (b *MemoryBackend) Bytes(path string) []byte {
	d, err := b.disk("bytes", path)
	if err != nil {
		return nil
	}
	d.mu.RLock()
	defer d.mu.RUnlock()
	return append([]byte(nil), d.data...)
}

// WriteCount returns the number of write transfers issued to path
func (b *MemoryBackend) WriteCount(path string) int {
	d, err := b.disk("write count", path)
	if err != nil {
		return 0
	}
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.writes
}

// ReadCount returns the number of read transfers issued to path
func (b *MemoryBackend) ReadCount(path string) int {
	d, err := b.disk("read count", path)
	if err != nil {
		return 0
	}
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.reads
}

// FlushCount returns the number of Flush calls for path
func (b *MemoryBackend) FlushCount(path string) int {
	d, err := b.disk("flush count", path)
	if err != nil {
		return 0
	}
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.flushes
}

// DiscardCount returns the number of DiscardCache calls for path
func (b *MemoryBackend) DiscardCount(path string) int {
	d, err := b.disk("discard count", path)
	if err != nil {
		return 0
	}
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.discards
}

// IsWritten reports whether any byte of sector lba has been written
func (b *MemoryBackend) IsWritten(path string, lba uint64) bool {
	d, err := b.disk("is written", path)
	if err != nil {
		return false
	}
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.written.Test(uint(lba))
}

// WrittenSectors returns the number of distinct sectors written to path
func (b *MemoryBackend) WrittenSectors(path string) uint {
	d, err := b.disk("written sectors", path)
	if err != nil {
		return 0
	}
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.written.Count()
}
