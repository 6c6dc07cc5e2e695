// Package stream provides bounded, sector-anchored byte streams over a device
// or a partition. Every transfer is checked against the stream's access mode,
// its effective length and, optionally, the active block size before the raw
// I/O backend is touched.
package stream

import (
	"io"
	"sync"

	"go.uber.org/zap"

	"github.com/deploymenttheory/go-gptdisk/internal/interfaces"
	"github.com/deploymenttheory/go-gptdisk/internal/logging"
	"github.com/deploymenttheory/go-gptdisk/internal/types"
)

// Target is the sector range a stream is anchored to, together with the
// capabilities of the device or partition that owns it.
type Target struct {
	Path        string
	StartSector uint64
	SectorCount uint64
	SectorSize  uint32
	Readable    bool
	Writable    bool
}

// Length returns the structural length of the target in bytes
func (t Target) Length() int64 {
	return int64(t.SectorCount) * int64(t.SectorSize)
}

// Stream is a seekable window over a Target. It implements io.ReadWriteSeeker,
// io.ReaderAt, io.WriterAt and io.Closer.
type Stream struct {
	backend interfaces.Backend
	handle  interfaces.Handle
	target  Target
	logger  *zap.Logger

	access           types.AccessMode
	enforceAlignment bool
	blockSize        int64

	mu       sync.Mutex
	position int64
	length   int64
	closed   bool
}

var (
	_ io.ReadWriteSeeker = (*Stream)(nil)
	_ io.ReaderAt        = (*Stream)(nil)
	_ io.WriterAt        = (*Stream)(nil)
	_ io.Closer          = (*Stream)(nil)
)

// Option configures a Stream
type Option func(*Stream)

// WithAccess sets the requested access mode. The default is read-only.
func WithAccess(mode types.AccessMode) Option {
	return func(s *Stream) {
		s.access = mode
	}
}

// WithAlignment turns block-size enforcement on or off. It is on by default.
func WithAlignment(enforce bool) Option {
	return func(s *Stream) {
		s.enforceAlignment = enforce
	}
}

// WithBlockSize sets the block size used by alignment enforcement. It defaults
// to the target's sector size.
func WithBlockSize(size uint32) Option {
	return func(s *Stream) {
		if size > 0 {
			s.blockSize = int64(size)
		}
	}
}

// WithLogger attaches a logger
func WithLogger(logger *zap.Logger) Option {
	return func(s *Stream) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// Open creates a stream over target. A write handle is opened when the
// requested access includes writing, a read handle otherwise.
func Open(backend interfaces.Backend, target Target, opts ...Option) (*Stream, error) {
	const op = "open stream"

	if backend == nil {
		return nil, types.Errorf(types.KindInvalidState, op, "no backend")
	}
	if target.SectorSize == 0 {
		return nil, types.Errorf(types.KindInvalidFormat, op, "sector size of %s is zero", target.Path)
	}

	s := &Stream{
		backend:          backend,
		target:           target,
		logger:           zap.NewNop(),
		access:           types.AccessRead,
		enforceAlignment: true,
		blockSize:        int64(target.SectorSize),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.length = target.Length()

	var err error
	if s.access.CanWrite() && target.Writable {
		s.handle, err = backend.OpenForWrite(target.Path)
	} else {
		s.handle, err = backend.OpenForRead(target.Path)
	}
	if err != nil {
		return nil, types.BackendError(op, err)
	}

	s.logger.Debug("opened stream",
		logging.WithPath(target.Path),
		logging.WithLBA(target.StartSector),
		logging.WithSectorCount(target.SectorCount),
		zap.Stringer("access", s.access),
	)

	return s, nil
}

// CanRead reports whether the target is readable and reading was requested
func (s *Stream) CanRead() bool {
	return s.target.Readable && s.access.CanRead()
}

// CanWrite reports whether the target is writable and writing was requested
func (s *Stream) CanWrite() bool {
	return s.target.Writable && s.access.CanWrite()
}

// Target returns the sector range the stream is anchored to
func (s *Stream) Target() Target {
	return s.target
}

// Access returns the requested access mode
func (s *Stream) Access() types.AccessMode {
	return s.access
}

// SectorSize returns the sector size in bytes
func (s *Stream) SectorSize() uint32 {
	return s.target.SectorSize
}

// SectorCount returns the number of sectors in the structural extent
func (s *Stream) SectorCount() uint64 {
	return s.target.SectorCount
}

// BlockSize returns the block size used by alignment enforcement
func (s *Stream) BlockSize() int64 {
	return s.blockSize
}

// StructuralLength returns sectorCount × sectorSize
func (s *Stream) StructuralLength() int64 {
	return s.target.Length()
}

// Len returns the effective length
func (s *Stream) Len() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.length
}

// Position returns the current position
func (s *Stream) Position() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.position
}

// SetLength shrinks the effective length. It can never grow past the
// structural length. The position is clamped into the new length.
func (s *Stream) SetLength(length int64) error {
	if length < 0 || length > s.target.Length() {
		return types.Errorf(types.KindOutOfRange, "set length", "length %d outside [0, %d]", length, s.target.Length())
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.length = length
	s.position = min(s.position, length)
	return nil
}

// Seek moves the position relative to the start, the current position or the
// end. The result is clamped into [0, Len()] and Seek never fails. An unknown
// whence leaves the position unchanged.
func (s *Stream) Seek(offset int64, whence int) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var base int64
	switch whence {
	case io.SeekStart:
		base = 0
	case io.SeekCurrent:
		base = s.position
	case io.SeekEnd:
		base = s.length
	default:
		return s.position, nil
	}

	s.position = clampAdd(base, offset, s.length)
	return s.position, nil
}

// clampAdd returns base+offset clamped into [0, limit] without overflowing.
// base must already lie in [0, limit].
func clampAdd(base, offset, limit int64) int64 {
	switch {
	case offset > limit-base:
		return limit
	case offset < -base:
		return 0
	default:
		return base + offset
	}
}

func (s *Stream) checkRead(op string, n int) error {
	if s.closed {
		return types.Errorf(types.KindInvalidState, op, "stream over %s is closed", s.target.Path)
	}
	if !s.CanRead() {
		return types.Errorf(types.KindUnauthorizedAccess, op, "stream over %s is not readable", s.target.Path)
	}
	return s.checkAlignment(op, n)
}

func (s *Stream) checkWrite(op string, n int) error {
	if s.closed {
		return types.Errorf(types.KindInvalidState, op, "stream over %s is closed", s.target.Path)
	}
	if !s.CanWrite() {
		return types.Errorf(types.KindUnauthorizedAccess, op, "stream over %s is not writable", s.target.Path)
	}
	return s.checkAlignment(op, n)
}

func (s *Stream) checkAlignment(op string, n int) error {
	if s.enforceAlignment && int64(n)%s.blockSize != 0 {
		return types.Errorf(types.KindMisaligned, op, "transfer of %d bytes is not a multiple of the %d-byte block size", n, s.blockSize)
	}
	return nil
}

// absolute maps a stream offset to a device byte offset
func (s *Stream) absolute(off int64) int64 {
	return int64(s.target.StartSector)*int64(s.target.SectorSize) + off
}

// readAt transfers up to len(p) bytes at off. The caller holds s.mu.
func (s *Stream) readAt(op string, p []byte, off int64) (int, error) {
	if err := s.checkRead(op, len(p)); err != nil {
		return 0, err
	}
	if off < 0 {
		return 0, types.Errorf(types.KindOutOfRange, op, "negative offset %d", off)
	}
	if len(p) == 0 {
		return 0, nil
	}
	if off >= s.length {
		return 0, io.EOF
	}

	n := int(min(int64(len(p)), s.length-off))
	data, err := s.backend.ReadChunked(s.handle, s.absolute(off), n)
	if err != nil {
		return 0, types.BackendError(op, err)
	}
	return copy(p, data), nil
}

// writeAt transfers all of p at off or nothing. The caller holds s.mu.
func (s *Stream) writeAt(op string, p []byte, off int64) (int, error) {
	if err := s.checkWrite(op, len(p)); err != nil {
		return 0, err
	}
	if off < 0 || int64(len(p)) > s.length-off {
		return 0, types.Errorf(types.KindOutOfRange, op,
			"write of %d bytes at offset %d crosses the stream length %d", len(p), off, s.length)
	}
	if len(p) == 0 {
		return 0, nil
	}

	if err := s.backend.WriteChunked(s.handle, s.absolute(off), p); err != nil {
		return 0, types.BackendError(op, err)
	}
	return len(p), nil
}

// Read reads from the current position. A read crossing the effective length
// returns the bytes up to the boundary. At the boundary it returns io.EOF.
func (s *Stream) Read(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n, err := s.readAt("read", p, s.position)
	s.position += int64(n)
	return n, err
}

// Write writes p at the current position. A write that would cross the
// effective length fails with OutOfRange and writes nothing.
func (s *Stream) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n, err := s.writeAt("write", p, s.position)
	s.position += int64(n)
	return n, err
}

// ReadAt reads at off without moving the position. Short reads at the
// boundary return io.EOF.
func (s *Stream) ReadAt(p []byte, off int64) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n, err := s.readAt("read at", p, off)
	if err == nil && n < len(p) {
		err = io.EOF
	}
	return n, err
}

// WriteAt writes at off without moving the position
func (s *Stream) WriteAt(p []byte, off int64) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.writeAt("write at", p, off)
}

// ReadSectors reads count whole sectors starting at the stream-relative lba
func (s *Stream) ReadSectors(lba, count uint64) ([]byte, error) {
	const op = "read sectors"

	ss := uint64(s.target.SectorSize)
	if count == 0 || lba >= s.target.SectorCount || count > s.target.SectorCount-lba {
		return nil, types.Errorf(types.KindOutOfRange, op, "sectors [%d, %d) outside [0, %d)", lba, lba+count, s.target.SectorCount)
	}

	buf := make([]byte, count*ss)
	n, err := s.ReadAt(buf, int64(lba*ss))
	if err != nil {
		if err == io.EOF {
			return nil, types.Errorf(types.KindOutOfRange, op, "read %d of %d bytes before the stream length", n, len(buf))
		}
		return nil, err
	}
	return buf, nil
}

// WriteSectors writes data at the stream-relative lba
func (s *Stream) WriteSectors(lba uint64, data []byte) error {
	_, err := s.WriteAt(data, int64(lba)*int64(s.target.SectorSize))
	return err
}

// SubStream returns an independent stream over part of this one. offset is a
// byte offset that must fall on a sector boundary. A negative length selects
// everything after offset. A zero access inherits this stream's access, and a
// non-zero one may not exceed it.
func (s *Stream) SubStream(offset, length int64, access types.AccessMode) (*Stream, error) {
	const op = "create sub-stream"

	ss := int64(s.target.SectorSize)
	structural := s.target.Length()

	if offset < 0 || offset > structural {
		return nil, types.Errorf(types.KindOutOfRange, op, "offset %d outside [0, %d]", offset, structural)
	}
	if offset%ss != 0 {
		return nil, types.Errorf(types.KindMisaligned, op, "offset %d is not a multiple of the %d-byte sector size", offset, ss)
	}
	if length < 0 {
		length = structural - offset
	}
	if length > structural-offset {
		return nil, types.Errorf(types.KindOutOfRange, op, "range [%d, %d) exceeds the structural length %d", offset, offset+length, structural)
	}
	if access == 0 {
		access = s.access
	}
	if !access.Within(s.access) {
		return nil, types.Errorf(types.KindUnauthorizedAccess, op, "%s access exceeds the parent's %s access", access, s.access)
	}

	target := s.target
	target.StartSector += uint64(offset / ss)
	target.SectorCount = uint64((length + ss - 1) / ss)

	sub, err := Open(s.backend, target,
		WithAccess(access),
		WithAlignment(s.enforceAlignment),
		WithBlockSize(uint32(s.blockSize)),
		WithLogger(s.logger),
	)
	if err != nil {
		return nil, err
	}
	if err := sub.SetLength(length); err != nil {
		sub.Close()
		return nil, err
	}
	return sub, nil
}

// Flush asks the backend to commit pending writes for the target path
func (s *Stream) Flush() error {
	return types.BackendError("flush", s.backend.Flush(s.target.Path))
}

// DiscardCache asks the backend to drop cached pages for the target path
func (s *Stream) DiscardCache() error {
	return types.BackendError("discard cache", s.backend.DiscardCache(s.target.Path))
}

// Close releases the backend handle. Further transfers fail with InvalidState.
func (s *Stream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	return types.BackendError("close stream", s.handle.Close())
}
