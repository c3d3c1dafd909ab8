package definition

import (
	"crypto/sha256"
	"fmt"
	"sort"
	"strings"
	"sync/atomic"

	"github.com/pitabwire/console/model"
)

// snapshot is an immutable collection of all descriptors indexed by name.
type snapshot struct {
	resources map[string]model.ResourceDescriptor
	names     []string
	checksum  string
}

// Registry is a read-optimized, thread-safe store of resource descriptors.
// It uses atomic pointer swap for lock-free concurrent reads.
type Registry struct {
	snap atomic.Pointer[snapshot]
}

// NewRegistry creates a Registry from the given descriptors.
func NewRegistry(defs []model.ResourceDescriptor) *Registry {
	r := &Registry{}
	r.Replace(defs)
	return r
}

// Replace atomically swaps the registry contents with a new snapshot built
// from the given descriptors. A later descriptor with the same name wins.
func (r *Registry) Replace(defs []model.ResourceDescriptor) {
	s := &snapshot{resources: make(map[string]model.ResourceDescriptor, len(defs))}

	for _, def := range defs {
		s.resources[def.Name] = def
	}

	checksumParts := make([]string, 0, len(s.resources))
	for name, def := range s.resources {
		s.names = append(s.names, name)
		checksumParts = append(checksumParts, def.Checksum)
	}
	sort.Strings(s.names)
	sort.Strings(checksumParts)
	combined := strings.Join(checksumParts, ":")
	s.checksum = fmt.Sprintf("%x", sha256.Sum256([]byte(combined)))

	r.snap.Store(s)
}

func (r *Registry) current() *snapshot {
	return r.snap.Load()
}

// Get returns the descriptor with the given name.
func (r *Registry) Get(name string) (model.ResourceDescriptor, bool) {
	d, ok := r.current().resources[name]
	return d, ok
}

// Lookup is Get with a not-found error.
func (r *Registry) Lookup(name string) (model.ResourceDescriptor, error) {
	d, ok := r.Get(name)
	if !ok {
		return model.ResourceDescriptor{}, fmt.Errorf("definition: unknown resource %q", name)
	}
	return d, nil
}

// Names returns the resource names in sorted order.
func (r *Registry) Names() []string {
	return append([]string(nil), r.current().names...)
}

// All returns every descriptor ordered by name.
func (r *Registry) All() []model.ResourceDescriptor {
	s := r.current()
	defs := make([]model.ResourceDescriptor, 0, len(s.names))
	for _, n := range s.names {
		defs = append(defs, s.resources[n])
	}
	return defs
}

// Len returns the number of descriptors.
func (r *Registry) Len() int {
	return len(r.current().resources)
}

// Checksum returns the combined checksum of all loaded descriptors.
func (r *Registry) Checksum() string {
	return r.current().checksum
}

// LoadRegistry loads the built-in definitions plus those in directories,
// validates them and returns the registry.
func LoadRegistry(directories []string) (*Registry, error) {
	defs, err := NewLoader().Load(directories)
	if err != nil {
		return nil, err
	}
	if err := Errors(NewValidator().Validate(defs, model.FolderTreeKey)); err != nil {
		return nil, err
	}
	return NewRegistry(defs), nil
}
