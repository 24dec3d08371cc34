package srv6

import "net/netip"

// CircuitType distinguishes a point-to-point adjacency from a broadcast
// (LAN) one; the Adjacency-SID Manager builds a different End.X
// descriptor variant for each (§4.4).
type CircuitType int

const (
	CircuitPointToPoint CircuitType = iota
	CircuitBroadcast
)

// Adjacency is the link-state adjacency the IS-IS daemon tracks. It is
// the input to the Adjacency-SID Manager's three driving events.
type Adjacency struct {
	ID          string
	IfName      string
	NeighborV6  netip.Addr
	Circuit     CircuitType
	HasIPv6     bool

	endX []*AdjacencySID
}

// EndXSIDs returns the End.X SIDs currently bound to this adjacency.
func (a *Adjacency) EndXSIDs() []*AdjacencySID { return a.endX }

// AdjacencySID is a dynamically allocated End.X (or its next-CSID
// flavor, UA) SID bound to one adjacency (§3).
type AdjacencySID struct {
	Address    [16]byte
	Behavior   Behavior // EndX or UA
	NeighborV6 netip.Addr
	IfName     string
	Circuit    CircuitType
	Primary    bool
	Chunk      *Chunk
	Adjacency  *Adjacency

	Valid bool
	Sent  bool
}

// Area groups the locators an IS-IS area allocates SIDs from and the
// End.X SIDs it has advertised.
type Area struct {
	ID       string
	Locators *Registry

	endX *orderedStore[[16]byte, *AdjacencySID]
}

// NewArea builds an empty area backed by its own locator registry.
func NewArea(id string) *Area {
	return &Area{
		ID:       id,
		Locators: NewRegistry(),
		endX:     newOrderedStore[[16]byte, *AdjacencySID](lessBytes16),
	}
}

// EndXSIDs returns every End.X SID advertised by the area, in allocation
// order.
func (a *Area) EndXSIDs() []*AdjacencySID { return a.endX.InOrder() }

// LookupEndX returns the End.X SID at address, if the area has one.
func (a *Area) LookupEndX(address [16]byte) (*AdjacencySID, bool) {
	return a.endX.Get(address)
}

// AdjacencyInstallObserver is notified when the manager creates or tears
// down an End.X SID, so the Installation Controller can drive it toward
// the forwarding plane (§4.5).
type AdjacencyInstallObserver interface {
	OnAdjacencySIDCreated(s *AdjacencySID)
	OnAdjacencySIDRemoved(s *AdjacencySID)
}

// AdjacencyManager reacts to adjacency lifecycle events and maintains
// the set of End.X SIDs advertised by the local node for one area
// (§4.4).
type AdjacencyManager struct {
	area        *Area
	ownerProto  int
	flavor      Behavior // EndX or UA, selected at construction
	observer    AdjacencyInstallObserver
	staticTable *StaticTable // optional; widens the collision set to declared SIDs too
}

// NewAdjacencyManager builds a manager for area, allocating from chunks
// owned by ownerProto (the IS-IS protocol identifier) and minting SIDs
// with the given flavor (EndX for plain End.X, UA for the compressed
// variant).
func NewAdjacencyManager(area *Area, ownerProto int, flavor Behavior) *AdjacencyManager {
	return &AdjacencyManager{area: area, ownerProto: ownerProto, flavor: flavor}
}

// SetObserver installs the install/remove observer, normally the
// Installation Controller.
func (m *AdjacencyManager) SetObserver(o AdjacencyInstallObserver) { m.observer = o }

// SetStaticTable widens auto-allocation's collision set to include
// declared Static SIDs, per §4.5 "(End.X ∪ declared-SID) set".
func (m *AdjacencyManager) SetStaticTable(t *StaticTable) { m.staticTable = t }

// AdjUp handles adjacency establishment. It does nothing until IPv6 is
// known on the adjacency (§4.4, event 1).
func (m *AdjacencyManager) AdjUp(adj *Adjacency) {
	// No-op by design: SID allocation waits for AdjIPv6Enabled.
}

// AdjIPv6Enabled allocates one new End.X SID from the first chunk in the
// area's chunk list, using auto-index allocation, and requests
// installation (§4.4, event 2).
func (m *AdjacencyManager) AdjIPv6Enabled(adj *Adjacency) error {
	loc, chunk, err := m.firstChunk()
	if err != nil {
		return err
	}
	existing := m.liveAddresses()
	_, addr, err := AutoAllocate(loc, existing)
	if err != nil {
		return err
	}

	sid := &AdjacencySID{
		Address:    addr,
		Behavior:   m.flavor,
		NeighborV6: adj.NeighborV6,
		IfName:     adj.IfName,
		Circuit:    adj.Circuit,
		Primary:    true,
		Chunk:      chunk,
		Adjacency:  adj,
		Valid:      true,
	}
	m.area.endX.Put(sid.Address, sid)
	adj.endX = append(adj.endX, sid)
	if m.observer != nil {
		m.observer.OnAdjacencySIDCreated(sid)
	}
	return nil
}

// AdjDown and AdjIPv6Disabled tear down every End.X SID on the
// adjacency: uninstall, remove from both lists, free (§4.4, event 3).
func (m *AdjacencyManager) AdjDown(adj *Adjacency)         { m.teardown(adj) }
func (m *AdjacencyManager) AdjIPv6Disabled(adj *Adjacency) { m.teardown(adj) }

func (m *AdjacencyManager) teardown(adj *Adjacency) {
	for _, sid := range adj.endX {
		m.area.endX.Delete(sid.Address)
		if m.observer != nil {
			m.observer.OnAdjacencySIDRemoved(sid)
		}
	}
	adj.endX = nil
}

// OnChunkReleased implements ChunkReleaseObserver: every End.X SID
// sourced from the released chunk is torn down before the chunk itself
// disappears (§4.4 "locator release cascades").
func (m *AdjacencyManager) OnChunkReleased(c *Chunk) {
	var toRemove []*AdjacencySID
	for _, sid := range m.area.endX.InOrder() {
		if sid.Chunk == c {
			toRemove = append(toRemove, sid)
		}
	}
	for _, sid := range toRemove {
		m.area.endX.Delete(sid.Address)
		if sid.Adjacency != nil {
			filtered := sid.Adjacency.endX[:0]
			for _, s := range sid.Adjacency.endX {
				if s != sid {
					filtered = append(filtered, s)
				}
			}
			sid.Adjacency.endX = filtered
		}
		if m.observer != nil {
			m.observer.OnAdjacencySIDRemoved(sid)
		}
	}
}

// Resync clears the SENT flag on every End.X SID the area has advertised
// and re-dispatches ADD_LOCALSID for each, the adjacency-SID half of the
// broker-reconnect resend described in §5.
func (m *AdjacencyManager) Resync() {
	if m.observer == nil {
		return
	}
	for _, sid := range m.area.endX.InOrder() {
		sid.Sent = false
		m.observer.OnAdjacencySIDCreated(sid)
	}
}

func (m *AdjacencyManager) firstChunk() (*Locator, *Chunk, error) {
	for _, loc := range m.area.Locators.Locators() {
		if c, ok := loc.FirstChunk(); ok {
			return loc, c, nil
		}
	}
	return nil, nil, NewConfigError("adjacency-sid-alloc", "area %q has no allocated chunk", m.area.ID)
}

// liveAddresses is the area's (End.X ∪ declared-SID) set that
// auto-allocation must avoid colliding with: the current End.X
// addresses, plus every declared SID of the StaticTable installed with
// SetStaticTable, if any.
func (m *AdjacencyManager) liveAddresses() map[[16]byte]struct{} {
	out := make(map[[16]byte]struct{}, m.area.endX.Len())
	for _, s := range m.area.endX.InOrder() {
		out[s.Address] = struct{}{}
	}
	if m.staticTable != nil {
		for _, s := range m.staticTable.All() {
			out[s.Address] = struct{}{}
		}
	}
	return out
}
