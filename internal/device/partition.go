package device

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/deploymenttheory/go-gptdisk/internal/stream"
	"github.com/deploymenttheory/go-gptdisk/internal/types"
)

// Partition is a named, typed, inclusive sector range within a Device. A clone
// keeps a reference to the partition it was derived from and may only narrow
// that partition's range.
type Partition struct {
	id     uint64
	device *Device
	parent *Partition

	startSector uint64
	endSector   uint64
	typeGUID    uuid.UUID
	uniqueGUID  uuid.UUID
	name        string
	attributes  uint64
	readable    bool
	writable    bool

	structuralLock
}

// ID returns the id assigned by the owning device. The whole-device partition has id 0.
func (p *Partition) ID() uint64 { return p.id }

// Device returns the owning device
func (p *Partition) Device() *Device { return p.device }

// Parent returns the partition this one was cloned from, or nil
func (p *Partition) Parent() *Partition { return p.parent }

// IsClone reports whether the partition was produced by a clone operation
func (p *Partition) IsClone() bool { return p.parent != nil }

// StartSector returns the first LBA
func (p *Partition) StartSector() uint64 { return p.startSector }

// EndSector returns the last LBA, inclusive
func (p *Partition) EndSector() uint64 { return p.endSector }

// SectorCount returns EndSector - StartSector + 1
func (p *Partition) SectorCount() uint64 { return p.endSector - p.startSector + 1 }

// SectorSize returns the sector size of the owning device
func (p *Partition) SectorSize() uint32 { return p.device.sectorSize }

// Size returns the partition size in bytes
func (p *Partition) Size() uint64 { return p.SectorCount() * uint64(p.SectorSize()) }

// TypeGUID returns the partition type GUID
func (p *Partition) TypeGUID() uuid.UUID { return p.typeGUID }

// UniqueGUID returns the unique partition GUID
func (p *Partition) UniqueGUID() uuid.UUID { return p.uniqueGUID }

// Name returns the partition name
func (p *Partition) Name() string { return p.name }

// Attributes returns the GPT attribute bits
func (p *Partition) Attributes() uint64 { return p.attributes }

// Readable reports whether streams may read the partition
func (p *Partition) Readable() bool { return p.readable }

// Writable reports whether streams may write the partition
func (p *Partition) Writable() bool { return p.writable }

// TypeName resolves the type GUID against registry
func (p *Partition) TypeName(registry *types.TypeRegistry) string {
	if registry == nil {
		return p.typeGUID.String()
	}
	return registry.Describe(p.typeGUID)
}

// Info returns the structural description of the partition
func (p *Partition) Info() types.PartitionInfo {
	return types.PartitionInfo{
		StartSector: p.startSector,
		EndSector:   p.endSector,
		TypeGUID:    p.typeGUID,
		UniqueGUID:  p.uniqueGUID,
		Name:        p.name,
		Attributes:  p.attributes,
		Readable:    p.readable,
		Writable:    p.writable,
	}
}

func (p *Partition) String() string {
	return fmt.Sprintf("partition %d %q [%d, %d]", p.id, p.name, p.startSector, p.endSector)
}

func (p *Partition) describe() string {
	return fmt.Sprintf("partition %d", p.id)
}

// Lock blocks until the partition lock is acquired. It does not lock the device.
func (p *Partition) Lock() {
	p.lock()
}

// TryLock acquires the partition lock or fails with InvalidState if it is held
func (p *Partition) TryLock() error {
	return p.tryLock("lock partition", p.describe())
}

// Unlock releases the partition lock. Unlocking an unlocked partition fails with InvalidState.
func (p *Partition) Unlock() error {
	return p.unlock("unlock partition", p.describe())
}

// Locked reports whether the partition lock is held
func (p *Partition) Locked() bool {
	return p.locked()
}

// WithLock runs fn while holding the partition lock
func (p *Partition) WithLock(fn func() error) error {
	return p.withLock(fn)
}

func (p *Partition) checkClonable(op string) error {
	if p.parent != nil {
		return types.Errorf(types.KindInvalidState, op, "%s is a clone and cannot be cloned again", p.describe())
	}
	if p.locked() {
		return types.Errorf(types.KindInvalidState, op, "%s is locked", p.describe())
	}
	return nil
}

// cloneOf returns an unlocked copy of p with a fresh id and p as parent.
func (p *Partition) cloneOf() *Partition {
	return &Partition{
		id:          p.device.allocateID(),
		device:      p.device,
		parent:      p,
		startSector: p.startSector,
		endSector:   p.endSector,
		typeGUID:    p.typeGUID,
		uniqueGUID:  p.uniqueGUID,
		name:        p.name,
		attributes:  p.attributes,
		readable:    p.readable,
		writable:    p.writable,
	}
}

// Clone returns a full copy of the partition. Locked partitions and clones
// cannot be cloned.
func (p *Partition) Clone() (*Partition, error) {
	if err := p.checkClonable("clone partition"); err != nil {
		return nil, err
	}
	return p.cloneOf(), nil
}

// CloneRange returns a copy narrowed to [first, last]. Both bounds must lie
// inside the partition with first <= last, otherwise the clone fails with
// OutOfRange.
func (p *Partition) CloneRange(first, last uint64) (*Partition, error) {
	const op = "clone partition range"

	if err := p.checkClonable(op); err != nil {
		return nil, err
	}
	if first < p.startSector || last > p.endSector || first > last {
		return nil, types.Errorf(types.KindOutOfRange, op,
			"range [%d, %d] is not inside %s [%d, %d]", first, last, p.describe(), p.startSector, p.endSector)
	}

	c := p.cloneOf()
	c.startSector = first
	c.endSector = last
	return c, nil
}

// CloneNamed returns a full copy carrying a new name
func (p *Partition) CloneNamed(name string) (*Partition, error) {
	if err := p.checkClonable("clone partition"); err != nil {
		return nil, err
	}
	c := p.cloneOf()
	c.name = name
	return c, nil
}

// CreateStream opens a stream over the partition. It fails with
// UnauthorizedAccess when the partition is locked or access asks for more
// than the partition allows.
func (p *Partition) CreateStream(access types.AccessMode, opts ...stream.Option) (*stream.Stream, error) {
	const op = "create partition stream"

	if p.locked() {
		return nil, types.Errorf(types.KindUnauthorizedAccess, op, "%s is locked", p.describe())
	}
	if access.CanRead() && !p.readable {
		return nil, types.Errorf(types.KindUnauthorizedAccess, op, "%s is not readable", p.describe())
	}
	if access.CanWrite() && !p.writable {
		return nil, types.Errorf(types.KindUnauthorizedAccess, op, "%s is not writable", p.describe())
	}
	return p.openStream(access, opts...)
}

func (p *Partition) openStream(access types.AccessMode, opts ...stream.Option) (*stream.Stream, error) {
	d := p.device
	if !d.initialized {
		return nil, types.Errorf(types.KindInvalidState, "open stream", "device %s is not initialized", d.path)
	}

	target := stream.Target{
		Path:        d.path,
		StartSector: p.startSector,
		SectorCount: p.SectorCount(),
		SectorSize:  d.sectorSize,
		Readable:    p.readable,
		Writable:    p.writable,
	}
	base := []stream.Option{
		stream.WithAccess(access),
		stream.WithAlignment(d.enforceAlignment),
		stream.WithLogger(d.logger),
	}
	return stream.Open(d.backend, target, append(base, opts...)...)
}
