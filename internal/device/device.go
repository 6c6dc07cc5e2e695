// Package device models block devices and the partitions discovered on them.
package device

import (
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/deploymenttheory/go-gptdisk/internal/interfaces"
	"github.com/deploymenttheory/go-gptdisk/internal/logging"
	"github.com/deploymenttheory/go-gptdisk/internal/stream"
	"github.com/deploymenttheory/go-gptdisk/internal/types"
)

// WholeDeviceName names the virtual partition spanning the entire device.
const WholeDeviceName = "whole-device"

// Device is a structural handle to a physical, virtual or file-backed block
// target. Geometry is resolved by Initialize and stays fixed until Reset.
//
// Initialize, Reset and Close mutate the partition list and must not run
// concurrently with streams open on this device's partitions.
type Device struct {
	path    string
	backend interfaces.Backend
	parser  interfaces.PartitionParser
	logger  *zap.Logger

	enforceAlignment bool

	initialized bool
	sectorSize  uint32
	sectorCount uint64
	kind        types.DeviceKind
	partitions  []*Partition
	whole       *Partition
	nextID      uint64

	structuralLock
}

// Option configures a Device
type Option func(*Device)

// WithLogger attaches a logger
func WithLogger(logger *zap.Logger) Option {
	return func(d *Device) {
		if logger != nil {
			d.logger = logger
		}
	}
}

// WithAlignment sets whether streams created from the device enforce
// block-size alignment. It is on by default.
func WithAlignment(enforce bool) Option {
	return func(d *Device) {
		d.enforceAlignment = enforce
	}
}

// New binds a device path to a backend and a partition parser. A nil parser
// disables discovery. Nothing is read until Initialize.
func New(path string, backend interfaces.Backend, parser interfaces.PartitionParser, opts ...Option) *Device {
	d := &Device{
		path:             path,
		backend:          backend,
		parser:           parser,
		logger:           zap.NewNop(),
		enforceAlignment: true,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Initialize resolves the geometry and classification of the device and runs
// partition discovery. A discovery failure leaves the device without
// partitions and is returned as is.
func (d *Device) Initialize() error {
	const op = "initialize device"

	if d.backend == nil {
		return types.Errorf(types.KindInvalidState, op, "device %s has no backend", d.path)
	}
	d.clear()

	sectorSize, err := d.backend.QuerySectorSize(d.path)
	if err != nil {
		return types.BackendError(op, err)
	}
	if sectorSize == 0 {
		return types.Errorf(types.KindInvalidFormat, op, "device %s reports a zero sector size", d.path)
	}
	maxLBA, err := d.backend.QueryMaxAddressableSector(d.path)
	if err != nil {
		return types.BackendError(op, err)
	}
	kind, err := d.backend.Classify(d.path)
	if err != nil {
		return types.BackendError(op, err)
	}

	d.sectorSize = sectorSize
	d.sectorCount = maxLBA + 1
	d.kind = kind
	d.initialized = true
	d.whole = &Partition{
		device:      d,
		startSector: 0,
		endSector:   maxLBA,
		name:        WholeDeviceName,
		readable:    true,
		writable:    true,
	}

	d.logger.Debug("resolved device geometry",
		logging.WithPath(d.path),
		logging.WithSectorSize(d.sectorSize),
		logging.WithSectorCount(d.sectorCount),
		zap.Stringer("kind", d.kind),
	)

	if d.parser == nil {
		return nil
	}

	infos, err := d.discover()
	if err != nil {
		d.logger.Warn("partition discovery failed", logging.WithPath(d.path), zap.Error(err))
		return err
	}

	partitions := make([]*Partition, 0, len(infos))
	for _, info := range infos {
		if info.StartSector > info.EndSector || info.EndSector > maxLBA {
			return types.Errorf(types.KindOutOfRange, op,
				"partition %q spans [%d, %d] outside the device's %d sectors", info.Name, info.StartSector, info.EndSector, d.sectorCount)
		}
		partitions = append(partitions, d.newPartition(info))
	}
	d.partitions = partitions

	d.logger.Info("discovered partitions",
		logging.WithPath(d.path),
		zap.String("parser", d.parser.Name()),
		zap.Int("count", len(partitions)),
	)

	return nil
}

func (d *Device) discover() ([]types.PartitionInfo, error) {
	s, err := d.openWhole(types.AccessRead)
	if err != nil {
		return nil, err
	}
	defer s.Close()

	infos, err := d.parser.Parse(s, d.sectorSize, d.sectorCount)
	if err != nil {
		return nil, fmt.Errorf("%s parser on %s: %w", d.parser.Name(), d.path, err)
	}
	return infos, nil
}

func (d *Device) newPartition(info types.PartitionInfo) *Partition {
	d.nextID++
	return &Partition{
		id:          d.nextID,
		device:      d,
		startSector: info.StartSector,
		endSector:   info.EndSector,
		typeGUID:    info.TypeGUID,
		uniqueGUID:  info.UniqueGUID,
		name:        info.Name,
		attributes:  info.Attributes,
		readable:    info.Readable,
		writable:    info.Writable,
	}
}

func (d *Device) allocateID() uint64 {
	d.nextID++
	return d.nextID
}

// clear forgets geometry and partitions and restarts id allocation.
func (d *Device) clear() {
	d.initialized = false
	d.sectorSize = 0
	d.sectorCount = 0
	d.kind = types.DeviceKindUnknown
	d.partitions = nil
	d.whole = nil
	d.nextID = 0
}

// Close releases a lock taken with Lock or TryLock and clears the partitions.
// It must be called by the lock holder. While a WithLock scope holds the
// device, Close fails with InvalidState and changes nothing.
func (d *Device) Close() error {
	if err := d.release("close device", "device "+d.path); err != nil {
		return err
	}
	d.clear()
	return nil
}

// Reset is Close followed by Initialize
func (d *Device) Reset() error {
	if err := d.Close(); err != nil {
		return err
	}
	return d.Initialize()
}

// Path returns the device path
func (d *Device) Path() string { return d.path }

// Backend returns the raw I/O backend
func (d *Device) Backend() interfaces.Backend { return d.backend }

// Initialized reports whether Initialize has succeeded since the last Close
func (d *Device) Initialized() bool { return d.initialized }

// SectorSize returns the logical sector size in bytes
func (d *Device) SectorSize() uint32 { return d.sectorSize }

// SectorCount returns the number of addressable sectors
func (d *Device) SectorCount() uint64 { return d.sectorCount }

// Size returns the device size in bytes
func (d *Device) Size() uint64 { return d.sectorCount * uint64(d.sectorSize) }

// Kind returns the device classification
func (d *Device) Kind() types.DeviceKind { return d.kind }

// IsImage reports whether the device is a file-backed image
func (d *Device) IsImage() bool { return d.kind.IsImage() }

// Partitions returns the discovered partitions in table order
func (d *Device) Partitions() []*Partition {
	return append([]*Partition(nil), d.partitions...)
}

// WholeDevice returns the virtual partition spanning every sector
func (d *Device) WholeDevice() (*Partition, error) {
	if !d.initialized {
		return nil, types.Errorf(types.KindInvalidState, "whole device", "device %s is not initialized", d.path)
	}
	return d.whole, nil
}

// GetPartitionByID looks a partition up by id
func (d *Device) GetPartitionByID(id uint64) (*Partition, bool) {
	for _, p := range d.partitions {
		if p.id == id {
			return p, true
		}
	}
	return nil, false
}

// GetPartitionByGUID looks a partition up by unique GUID
func (d *Device) GetPartitionByGUID(id uuid.UUID) (*Partition, bool) {
	for _, p := range d.partitions {
		if p.uniqueGUID == id {
			return p, true
		}
	}
	return nil, false
}

// GetPartitionByName returns the first partition with the given name
func (d *Device) GetPartitionByName(name string) (*Partition, bool) {
	for _, p := range d.partitions {
		if p.name == name {
			return p, true
		}
	}
	return nil, false
}

// Lock blocks until the device lock is acquired. It does not lock any partition.
func (d *Device) Lock() {
	d.lock()
}

// TryLock acquires the device lock or fails with InvalidState if it is held
func (d *Device) TryLock() error {
	return d.tryLock("lock device", "device "+d.path)
}

// Unlock releases the device lock. Unlocking an unlocked device fails with InvalidState.
func (d *Device) Unlock() error {
	return d.unlock("unlock device", "device "+d.path)
}

// Locked reports whether the device lock is held
func (d *Device) Locked() bool {
	return d.locked()
}

// WithLock runs fn while holding the device lock
func (d *Device) WithLock(fn func() error) error {
	return d.withLock(fn)
}

// CreateStream opens a stream over the whole device. It fails with
// UnauthorizedAccess while the whole-device partition is locked.
func (d *Device) CreateStream(access types.AccessMode, opts ...stream.Option) (*stream.Stream, error) {
	whole, err := d.WholeDevice()
	if err != nil {
		return nil, err
	}
	return whole.CreateStream(access, opts...)
}

func (d *Device) openWhole(access types.AccessMode, opts ...stream.Option) (*stream.Stream, error) {
	whole, err := d.WholeDevice()
	if err != nil {
		return nil, err
	}
	return whole.openStream(access, opts...)
}
