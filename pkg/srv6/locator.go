package srv6

import "net/netip"

// Chunk is a sub-prefix of a Locator handed to one protocol owner (§3).
// In the published allocation contract the entire locator prefix is
// handed out as a single chunk per owner — chunks are conceptually
// disjoint, but the registry does not enforce disjointness; owners are
// expected to use disjoint function ranges (§4.2).
type Chunk struct {
	LocatorName string
	Prefix      netip.Prefix
	Owner       int
}

// ChunkReleaseObserver is notified when a chunk is released, either
// directly via ReleaseChunk or as a cascade of DeleteLocator. The
// Adjacency-SID Manager implements this to withdraw every End.X SID
// sourced from the chunk before it disappears (§4.2).
type ChunkReleaseObserver interface {
	OnChunkReleased(c *Chunk)
}

// Locator is a named SRv6 locator prefix with its SID structure and the
// chunks handed out from it (§3).
type Locator struct {
	Name      string
	Prefix    netip.Prefix
	Structure Structure
	USID      bool
	Up        bool

	chunks *orderedStore[int, *Chunk]
}

// Chunks returns every outstanding chunk of the locator, in allocation
// order.
func (l *Locator) Chunks() []*Chunk {
	return l.chunks.InOrder()
}

// FirstChunk returns the first chunk in the locator's chunk list, the
// source the Adjacency-SID Manager allocates from (§4.4). The second
// return value is false if no chunk has been allocated yet.
func (l *Locator) FirstChunk() (*Chunk, bool) {
	all := l.chunks.InOrder()
	if len(all) == 0 {
		return nil, false
	}
	return all[0], true
}

// Registry is the per-area catalogue of locators and their chunks
// (§4.2).
type Registry struct {
	locators *orderedStore[string, *Locator]
	observer ChunkReleaseObserver
}

// NewRegistry builds an empty locator registry.
func NewRegistry() *Registry {
	return &Registry{
		locators: newOrderedStore[string, *Locator](func(a, b string) bool { return a < b }),
	}
}

// SetObserver installs the chunk-release observer. There is at most one:
// in this core it is the AdjacencyManager of the area that owns the
// registry.
func (r *Registry) SetObserver(o ChunkReleaseObserver) { r.observer = o }

// CreateLocator defines a locator, idempotent by name (§4.2). A second
// call with identical parameters is a no-op that returns the existing
// locator; a call with the same name and different parameters is a
// ConfigError.
func (r *Registry) CreateLocator(name string, prefix netip.Prefix, structure Structure, usid bool) (*Locator, error) {
	if structure.BlockLen+structure.NodeLen != prefix.Bits() {
		return nil, NewConfigError("locator-create", "block_len+node_len (%d) must equal prefix length (%d)", structure.BlockLen+structure.NodeLen, prefix.Bits())
	}
	if err := structure.Validate(); err != nil {
		return nil, err
	}
	if existing, ok := r.locators.Get(name); ok {
		if existing.Prefix == prefix && existing.Structure == structure && existing.USID == usid {
			return existing, nil
		}
		return nil, NewConfigError("locator-create", "locator %q already defined with different parameters", name)
	}
	loc := &Locator{
		Name:      name,
		Prefix:    prefix,
		Structure: structure,
		USID:      usid,
		Up:        true,
		chunks:    newOrderedStore[int, *Chunk](func(a, b int) bool { return a < b }),
	}
	r.locators.Put(name, loc)
	return loc, nil
}

// Lookup returns the named locator.
func (r *Registry) Lookup(name string) (*Locator, bool) {
	return r.locators.Get(name)
}

// Locators returns every locator in definition order.
func (r *Registry) Locators() []*Locator {
	return r.locators.InOrder()
}

// DeleteLocator releases every outstanding chunk, notifying the observer
// for each before the locator itself disappears (§4.2).
func (r *Registry) DeleteLocator(name string) error {
	loc, ok := r.locators.Get(name)
	if !ok {
		return NewConfigError("locator-delete", "unknown locator %q", name)
	}
	for _, c := range loc.chunks.InOrder() {
		if r.observer != nil {
			r.observer.OnChunkReleased(c)
		}
	}
	r.locators.Delete(name)
	return nil
}

// AllocChunk hands owner the locator's chunk, creating it on first
// request and returning the same chunk on subsequent requests — at most
// one outstanding chunk per (locator, owner) pair (§4.2 invariant).
func (r *Registry) AllocChunk(locatorName string, owner int) (*Chunk, error) {
	if owner == 0 {
		return nil, NewConfigError("chunk-alloc", "owner protocol id must be non-zero")
	}
	loc, ok := r.locators.Get(locatorName)
	if !ok {
		return nil, NewConfigError("chunk-alloc", "unknown locator %q", locatorName)
	}
	if c, ok := loc.chunks.Get(owner); ok {
		return c, nil
	}
	c := &Chunk{LocatorName: locatorName, Prefix: loc.Prefix, Owner: owner}
	loc.chunks.Put(owner, c)
	return c, nil
}

// ReleaseChunk releases owner's chunk and notifies the observer.
func (r *Registry) ReleaseChunk(locatorName string, owner int) error {
	loc, ok := r.locators.Get(locatorName)
	if !ok {
		return NewConfigError("chunk-release", "unknown locator %q", locatorName)
	}
	c, ok := loc.chunks.Delete(owner)
	if !ok {
		return NewConfigError("chunk-release", "owner %d holds no chunk on locator %q", owner, locatorName)
	}
	if r.observer != nil {
		r.observer.OnChunkReleased(c)
	}
	return nil
}
