package srv6

import "net/netip"

// AttrKind identifies which optional attribute of a Static SID is being
// set (§4.3).
type AttrKind int

const (
	AttrVRF AttrKind = iota
	AttrInterface
	AttrAdjacencyV6
)

// Attribute is a one-of carrying the value for the AttrKind it names.
type Attribute struct {
	Kind    AttrKind
	VRFName string
	IfName  string
	AdjV6   netip.Addr
}

// StaticSID is an operator-declared local SID (§3). Address is the
// uniqueness key across the whole process-wide table.
type StaticSID struct {
	Address  [16]byte
	Behavior Behavior
	VRFName  string
	IfName   string
	AdjV6    netip.Addr

	// Valid and Sent are the VALID / SENT_TO_BROKER flags the
	// Installation Controller drives (§4.5). The table never sets
	// them itself.
	Valid bool
	Sent  bool
}

// StaticChangeObserver is notified whenever a Static SID is created or
// one of its attributes changes, so the Installation Controller can
// re-derive desired state (§4.3, §4.5).
type StaticChangeObserver interface {
	OnStaticSIDChanged(s *StaticSID)
	OnStaticSIDDeleted(s *StaticSID)
}

// StaticTable is the global table of operator-declared SIDs, keyed by
// address (§4.3).
type StaticTable struct {
	entries  *orderedStore[[16]byte, *StaticSID]
	observer StaticChangeObserver
}

// NewStaticTable builds an empty static SID table.
func NewStaticTable() *StaticTable {
	return &StaticTable{
		entries: newOrderedStore[[16]byte, *StaticSID](lessBytes16),
	}
}

// SetObserver installs the change observer, normally the Installation
// Controller.
func (t *StaticTable) SetObserver(o StaticChangeObserver) { t.observer = o }

// Add creates a descriptor with no attributes, idempotent on address: a
// duplicate address returns the existing descriptor unchanged (§4.3).
func (t *StaticTable) Add(address [16]byte, behavior Behavior) *StaticSID {
	if existing, ok := t.entries.Get(address); ok {
		return existing
	}
	sid := &StaticSID{Address: address, Behavior: behavior}
	t.entries.Put(address, sid)
	if t.observer != nil {
		t.observer.OnStaticSIDChanged(sid)
	}
	return sid
}

// SetAttribute sets one attribute of a previously declared SID and
// notifies the observer so validity can be re-evaluated (§4.3, §4.5).
func (t *StaticTable) SetAttribute(address [16]byte, attr Attribute) error {
	sid, ok := t.entries.Get(address)
	if !ok {
		return NewConfigError("sid-attribute-set", "unknown SID address")
	}
	switch attr.Kind {
	case AttrVRF:
		sid.VRFName = attr.VRFName
	case AttrInterface:
		sid.IfName = attr.IfName
	case AttrAdjacencyV6:
		sid.AdjV6 = attr.AdjV6
	default:
		return NewConfigError("sid-attribute-set", "unknown attribute kind %d", attr.Kind)
	}
	if t.observer != nil {
		t.observer.OnStaticSIDChanged(sid)
	}
	return nil
}

// Lookup returns the SID at address, if any.
func (t *StaticTable) Lookup(address [16]byte) (*StaticSID, bool) {
	return t.entries.Get(address)
}

// Delete removes the SID at address. It is idempotent: deleting an
// address that is not present is a no-op (§6 "idempotent on the
// resulting state").
func (t *StaticTable) Delete(address [16]byte) {
	sid, ok := t.entries.Delete(address)
	if ok && t.observer != nil {
		t.observer.OnStaticSIDDeleted(sid)
	}
}

// All returns every Static SID in declaration order, the order the
// configuration pretty-printer depends on (§4.3).
func (t *StaticTable) All() []*StaticSID {
	return t.entries.InOrder()
}

// Len reports the number of declared Static SIDs.
func (t *StaticTable) Len() int { return t.entries.Len() }
