package types

import (
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"
)

// Well-known partition type GUIDs.
// Reference: UEFI 5.3.3, table 5.7 and vendor assignments
var (
	PartitionTypeUnused          = uuid.Nil
	PartitionTypeEFISystem       = uuid.MustParse("C12A7328-F81F-11D2-BA4B-00A0C93EC93B")
	PartitionTypeBIOSBoot        = uuid.MustParse("21686148-6449-6E6F-744E-656564454649")
	PartitionTypeMicrosoftBasic  = uuid.MustParse("EBD0A0A2-B9E5-4433-87C0-68B6B72699C7")
	PartitionTypeMicrosoftMSR    = uuid.MustParse("E3C9E316-0B5C-4DB8-817D-F92DF00215AE")
	PartitionTypeWindowsRecovery = uuid.MustParse("DE94BBA4-06D1-4D40-A16A-BFD50179D6AC")
	PartitionTypeLinuxFilesystem = uuid.MustParse("0FC63DAF-8483-4772-8E79-3D69D8477DE4")
	PartitionTypeLinuxSwap       = uuid.MustParse("0657FD6D-A4AB-43C4-84E5-0933C84B4F4F")
	PartitionTypeLinuxLVM        = uuid.MustParse("E6D6D379-F507-44C2-A23C-238F2A3DF928")
	PartitionTypeLinuxRAID       = uuid.MustParse("A19D880F-05FC-4D3B-A006-743F0F84911E")
	PartitionTypeAppleAPFS       = uuid.MustParse("7C3457EF-0000-11AA-AA11-00306543ECAC")
	PartitionTypeAppleHFS        = uuid.MustParse("48465300-0000-11AA-AA11-00306543ECAC")
)

// TypeRegistry maps partition type GUIDs to display names. Each caller owns its
// registry; there is no process-wide instance.
type TypeRegistry struct {
	mu    sync.RWMutex
	names map[uuid.UUID]string
}

// NewTypeRegistry returns a registry pre-populated with the well-known types.
func NewTypeRegistry() *TypeRegistry {
	r := &TypeRegistry{names: make(map[uuid.UUID]string)}
	r.names[PartitionTypeEFISystem] = "EFI System"
	r.names[PartitionTypeBIOSBoot] = "BIOS boot"
	r.names[PartitionTypeMicrosoftBasic] = "Microsoft basic data"
	r.names[PartitionTypeMicrosoftMSR] = "Microsoft reserved"
	r.names[PartitionTypeWindowsRecovery] = "Windows recovery environment"
	r.names[PartitionTypeLinuxFilesystem] = "Linux filesystem"
	r.names[PartitionTypeLinuxSwap] = "Linux swap"
	r.names[PartitionTypeLinuxLVM] = "Linux LVM"
	r.names[PartitionTypeLinuxRAID] = "Linux RAID"
	r.names[PartitionTypeAppleAPFS] = "Apple APFS"
	r.names[PartitionTypeAppleHFS] = "Apple HFS/HFS+"
	return r
}

// Register adds or replaces a type name. The unused (all-zero) GUID cannot be registered.
func (r *TypeRegistry) Register(id uuid.UUID, name string) error {
	if id == uuid.Nil {
		return Errorf(KindInvalidFormat, "register partition type", "the all-zero GUID marks unused slots")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.names[id] = name
	return nil
}

// Name returns the display name for a type GUID.
func (r *TypeRegistry) Name(id uuid.UUID) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	name, ok := r.names[id]
	return name, ok
}

// Describe returns the display name, or the canonical GUID string for unknown types.
func (r *TypeRegistry) Describe(id uuid.UUID) string {
	if name, ok := r.Name(id); ok {
		return name
	}
	return strings.ToUpper(id.String())
}

// Lookup finds a type GUID by case-insensitive display name.
func (r *TypeRegistry) Lookup(name string) (uuid.UUID, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for id, n := range r.names {
		if strings.EqualFold(n, name) {
			return id, true
		}
	}
	return uuid.Nil, false
}

// Names returns every registered display name in sorted order.
func (r *TypeRegistry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.names))
	for _, n := range r.names {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}
