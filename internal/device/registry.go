package device

import (
	"io"
	"sync"

	"github.com/deploymenttheory/go-gptdisk/internal/interfaces"
	"github.com/deploymenttheory/go-gptdisk/internal/types"
)

// Registry holds partition parsers in registration order. It is itself a
// PartitionParser that hands a device to the first parser whose Probe accepts it.
type Registry struct {
	mu      sync.RWMutex
	parsers []interfaces.PartitionParser
}

// Compile-time check
var _ interfaces.PartitionParser = (*Registry)(nil)

// NewRegistry creates a registry holding parsers
func NewRegistry(parsers ...interfaces.PartitionParser) (*Registry, error) {
	r := &Registry{}
	for _, p := range parsers {
		if err := r.Register(p); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// DefaultRegistry returns a registry holding the GPT parser
func DefaultRegistry() *Registry {
	return &Registry{parsers: []interfaces.PartitionParser{NewGPTParser()}}
}

// Register appends p. Names must be unique.
func (r *Registry) Register(p interfaces.PartitionParser) error {
	const op = "register parser"

	if p == nil {
		return types.Errorf(types.KindInvalidState, op, "nil parser")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	for _, existing := range r.parsers {
		if existing.Name() == p.Name() {
			return types.Errorf(types.KindInvalidState, op, "parser %q is already registered", p.Name())
		}
	}
	r.parsers = append(r.parsers, p)
	return nil
}

// Lookup returns the parser registered under name
func (r *Registry) Lookup(name string) (interfaces.PartitionParser, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, p := range r.parsers {
		if p.Name() == name {
			return p, true
		}
	}
	return nil, false
}

// Names returns the registered parser names in registration order
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.parsers))
	for _, p := range r.parsers {
		names = append(names, p.Name())
	}
	return names
}

// Name identifies the registry
func (r *Registry) Name() string {
	return "registry"
}

func (r *Registry) match(rd io.ReaderAt, sectorSize uint32, sectorCount uint64) interfaces.PartitionParser {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, p := range r.parsers {
		if p.Probe(rd, sectorSize, sectorCount) {
			return p
		}
	}
	return nil
}

// Probe reports whether any registered parser accepts the device
func (r *Registry) Probe(rd io.ReaderAt, sectorSize uint32, sectorCount uint64) bool {
	return r.match(rd, sectorSize, sectorCount) != nil
}

// Parse delegates to the first parser whose Probe succeeds. A device no
// parser recognises has no partitions.
func (r *Registry) Parse(rd io.ReaderAt, sectorSize uint32, sectorCount uint64) ([]types.PartitionInfo, error) {
	p := r.match(rd, sectorSize, sectorCount)
	if p == nil {
		return nil, nil
	}
	return p.Parse(rd, sectorSize, sectorCount)
}
