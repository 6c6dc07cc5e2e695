package types

import (
	"errors"
	"fmt"
	"io"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorMatchesKind(t *testing.T) {
	err := NewError(KindIntegrityFailure, "verify header", "crc mismatch", nil)

	assert.True(t, errors.Is(err, KindIntegrityFailure))
	assert.False(t, errors.Is(err, KindInvalidFormat))
	assert.Equal(t, "verify header: IntegrityFailure: crc mismatch", err.Error())

	wrapped := fmt.Errorf("read primary: %w", err)
	assert.True(t, errors.Is(wrapped, KindIntegrityFailure))
	assert.Equal(t, KindIntegrityFailure, KindOf(wrapped))
	assert.Equal(t, ErrorKind(""), KindOf(io.EOF))
}

func TestErrorfAndCause(t *testing.T) {
	err := Errorf(KindOutOfRange, "seek", "offset %d past %d", 10, 5)
	assert.Equal(t, "seek: OutOfRange: offset 10 past 5", err.Error())
	assert.Nil(t, err.Unwrap())

	withCause := NewError(KindBackendFailure, "read", "", io.ErrUnexpectedEOF)
	assert.True(t, errors.Is(withCause, io.ErrUnexpectedEOF))
	assert.Equal(t, "read: BackendFailure: unexpected EOF", withCause.Error())
}

func TestBackendError(t *testing.T) {
	assert.NoError(t, BackendError("read", nil))

	err := BackendError("read", io.ErrClosedPipe)
	assert.True(t, errors.Is(err, KindBackendFailure))
	assert.True(t, errors.Is(err, io.ErrClosedPipe))

	existing := Errorf(KindMisaligned, "write", "offset 3")
	assert.Same(t, existing, BackendError("write", existing))
}

func TestTypeRegistry(t *testing.T) {
	r := NewTypeRegistry()

	name, ok := r.Name(PartitionTypeEFISystem)
	require.True(t, ok)
	assert.Equal(t, "EFI System", name)

	id, ok := r.Lookup("linux FILESYSTEM")
	require.True(t, ok)
	assert.Equal(t, PartitionTypeLinuxFilesystem, id)

	custom := uuid.MustParse("6a898cc3-1dd2-11b2-99a6-080020736631")
	assert.Equal(t, "6A898CC3-1DD2-11B2-99A6-080020736631", r.Describe(custom))
	require.NoError(t, r.Register(custom, "Solaris /usr"))
	assert.Equal(t, "Solaris /usr", r.Describe(custom))
	assert.Contains(t, r.Names(), "Solaris /usr")

	err := r.Register(uuid.Nil, "unused")
	assert.True(t, errors.Is(err, KindInvalidFormat))

	// Registries are independent
	_, ok = NewTypeRegistry().Name(custom)
	assert.False(t, ok)
}

func TestAccessMode(t *testing.T) {
	assert.True(t, AccessRead.CanRead())
	assert.False(t, AccessRead.CanWrite())
	assert.True(t, AccessReadWrite.CanWrite())
	assert.True(t, AccessRead.Within(AccessReadWrite))
	assert.False(t, AccessReadWrite.Within(AccessRead))

	assert.Equal(t, "read", AccessRead.String())
	assert.Equal(t, "write", AccessWrite.String())
	assert.Equal(t, "read-write", AccessReadWrite.String())
	assert.Equal(t, "none", AccessMode(0).String())
}

func TestDeviceKind(t *testing.T) {
	assert.Equal(t, "usb", DeviceKindUSB.String())
	assert.Equal(t, "unknown", DeviceKind(99).String())
	assert.True(t, DeviceKindImage.IsImage())
	assert.False(t, DeviceKindNVMe.IsImage())
}

func TestPartitionInfoFromEntry(t *testing.T) {
	e := GPTEntry{
		TypeGUID:   PartitionTypeLinuxSwap,
		UniqueGUID: uuid.New(),
		FirstLBA:   34,
		LastLBA:    99,
		Attributes: 1,
		Name:       "swap",
	}
	info := PartitionInfoFromEntry(e)
	assert.Equal(t, uint64(34), info.StartSector)
	assert.Equal(t, uint64(99), info.EndSector)
	assert.Equal(t, "swap", info.Name)
	assert.True(t, info.Readable)
	assert.True(t, info.Writable)
}
