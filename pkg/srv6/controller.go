package srv6

import (
	"net/netip"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

// ResourceResolver answers the liveness questions the Installation
// Controller needs to decide validity and outgoing-interface selection
// (§4.5). The production implementation lives in package netfam; tests
// use an in-memory fake.
type ResourceResolver interface {
	// VRFLive reports whether name is a currently ACTIVE VRF and, if
	// so, its forwarding-plane table identifier.
	VRFLive(name string) (tableID int, live bool)
	// InterfaceLive reports whether name currently exists.
	InterfaceLive(name string) bool
	// FirstNonLoopbackInterface returns the broker's first known
	// non-loopback interface, used as the last-resort outgoing
	// interface (§4.5).
	FirstNonLoopbackInterface() (string, bool)
}

// BrokerDispatcher is the outbound half of the Forwarding Broker Client
// (§4.6): one call per state-machine edge.
type BrokerDispatcher interface {
	AddLocalSID(desc SIDDescriptor) error
	DelLocalSID(desc SIDDescriptor) error
}

// SIDDescriptor is what the controller hands the broker client for one
// ADD_LOCALSID or DEL_LOCALSID edge (§4.6).
type SIDDescriptor struct {
	Address  [16]byte
	Behavior Behavior
	OIF      string
	VRFName  string
	TableID  int
	AdjV6    netip.Addr
	Flavor   Flavor
}

// Controller is the Installation Controller state machine shared by
// Static SIDs and Adjacency SIDs (§4.5). One Controller instance serves
// one Forwarding Broker Client connection.
type Controller struct {
	resolver   ResourceResolver
	dispatcher BrokerDispatcher
	limiter    *rate.Limiter
	log        *logrus.Entry

	staticTable *StaticTable
}

// NewController builds a controller driving dispatcher's ADD/DEL calls,
// gated by resolver's liveness answers. rps sets the rate of the
// controller's token-bucket limiter, which waitToSend consults before
// each ADD and state-change DEL; its verdict is not acted on, so sends
// are neither delayed nor dropped.
func NewController(resolver ResourceResolver, dispatcher BrokerDispatcher, rps float64, log *logrus.Entry) *Controller {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Controller{
		resolver:   resolver,
		dispatcher: dispatcher,
		limiter:    rate.NewLimiter(rate.Limit(rps), 1),
		log:        log,
	}
}

// AttachDispatcher (re)points the controller at a BrokerDispatcher. The
// Forwarding Broker Client calls this once per reconnect, before
// Resync, so every edge re-dispatches against the fresh connection.
func (c *Controller) AttachDispatcher(d BrokerDispatcher) { c.dispatcher = d }

// AttachStaticTable lets the controller walk declared SIDs when a
// resource event (VRF/interface up or down) needs to re-evaluate every
// SID that references it (§4.5).
func (c *Controller) AttachStaticTable(t *StaticTable) { c.staticTable = t }

// --- Static SID edges -------------------------------------------------

// OnStaticSIDChanged re-evaluates s's validity and, on a validity edge,
// dispatches ADD_LOCALSID or DEL_LOCALSID (§4.5). It implements
// StaticChangeObserver.
func (c *Controller) OnStaticSIDChanged(s *StaticSID) {
	valid := c.staticValid(s)
	s.Valid = valid

	switch {
	case valid && !s.Sent:
		desc, err := c.buildStaticDescriptor(s, true)
		if err != nil {
			c.log.WithField("sid", s.Address).Debug(err)
			return
		}
		c.waitToSend()
		if err := c.dispatcher.AddLocalSID(desc); err != nil {
			c.log.WithField("sid", s.Address).WithError(err).Warn("add_localsid failed")
			return
		}
		s.Sent = true
	case !valid && s.Sent:
		desc, _ := c.buildStaticDescriptor(s, false)
		c.waitToSend()
		if err := c.dispatcher.DelLocalSID(desc); err != nil {
			c.log.WithField("sid", s.Address).WithError(err).Warn("del_localsid failed")
			return
		}
		s.Sent = false
	}
}

// OnStaticSIDDeleted withdraws s from the forwarding plane if it was
// installed; it implements StaticChangeObserver.
func (c *Controller) OnStaticSIDDeleted(s *StaticSID) {
	if !s.Sent {
		return
	}
	desc, _ := c.buildStaticDescriptor(s, false)
	if err := c.dispatcher.DelLocalSID(desc); err != nil {
		c.log.WithField("sid", s.Address).WithError(err).Warn("del_localsid failed on sid_clear")
		return
	}
	s.Sent = false
}

func (c *Controller) staticValid(s *StaticSID) bool {
	if s.Behavior.RequiresVRF() {
		if s.VRFName == "" {
			return false
		}
		if _, live := c.resolver.VRFLive(s.VRFName); !live {
			return false
		}
	}
	if s.Behavior.RequiresAdjacency() {
		if !s.AdjV6.IsValid() {
			return false
		}
	}
	if _, err := c.resolveOIF(s.IfName, s.VRFName); err != nil {
		return false
	}
	return true
}

func (c *Controller) buildStaticDescriptor(s *StaticSID, forAdd bool) (SIDDescriptor, error) {
	desc := SIDDescriptor{
		Address:  s.Address,
		Behavior: s.Behavior,
		VRFName:  s.VRFName,
		AdjV6:    s.AdjV6,
		Flavor:   FlavorFor(s.Behavior),
	}
	if s.Behavior.RequiresVRF() {
		tableID, live := c.resolver.VRFLive(s.VRFName)
		if !live && forAdd {
			return desc, &ResourceMissing{Kind: "vrf", Name: s.VRFName}
		}
		desc.TableID = tableID
	}
	oif, err := c.resolveOIF(s.IfName, s.VRFName)
	if err != nil {
		if forAdd {
			return desc, err
		}
		return desc, nil
	}
	desc.OIF = oif
	return desc, nil
}

// resolveOIF implements the §4.5 default outgoing-interface selection:
// explicit interface attribute, else the VRF identifier, else the first
// non-loopback interface known to the broker.
func (c *Controller) resolveOIF(ifName, vrfName string) (string, error) {
	if ifName != "" {
		if !c.resolver.InterfaceLive(ifName) {
			return "", &ResourceMissing{Kind: "interface", Name: ifName}
		}
		return ifName, nil
	}
	if vrfName != "" {
		return vrfName, nil
	}
	if oif, ok := c.resolver.FirstNonLoopbackInterface(); ok {
		return oif, nil
	}
	return "", &ResourceMissing{Kind: "interface", Name: "<any>"}
}

// --- Adjacency SID edges -----------------------------------------------

// OnAdjacencySIDCreated dispatches ADD_LOCALSID for a freshly allocated
// End.X SID. Adjacency SIDs are valid by construction: every attribute
// the behavior needs was supplied when the Adjacency-SID Manager built
// the descriptor (§4.4, §4.5).
func (c *Controller) OnAdjacencySIDCreated(s *AdjacencySID) {
	s.Valid = true
	if s.Sent {
		return
	}
	desc := c.buildAdjacencyDescriptor(s)
	c.waitToSend()
	if err := c.dispatcher.AddLocalSID(desc); err != nil {
		c.log.WithField("sid", s.Address).WithError(err).Warn("add_localsid failed for adjacency sid")
		return
	}
	s.Sent = true
}

// OnAdjacencySIDRemoved dispatches DEL_LOCALSID, if the SID was sent,
// before it is forgotten.
func (c *Controller) OnAdjacencySIDRemoved(s *AdjacencySID) {
	if s.Sent {
		desc := c.buildAdjacencyDescriptor(s)
		if err := c.dispatcher.DelLocalSID(desc); err != nil {
			c.log.WithField("sid", s.Address).WithError(err).Warn("del_localsid failed for adjacency sid")
			return
		}
		s.Sent = false
	}
	s.Valid = false
}

func (c *Controller) buildAdjacencyDescriptor(s *AdjacencySID) SIDDescriptor {
	return SIDDescriptor{
		Address:  s.Address,
		Behavior: s.Behavior,
		OIF:      s.IfName,
		AdjV6:    s.NeighborV6,
		Flavor:   FlavorFor(s.Behavior),
	}
}

// --- Broker-sourced resource events -------------------------------------

// HandleVRFUp re-evaluates every declared SID bound to name (§4.5,
// scenario 2).
func (c *Controller) HandleVRFUp(name string) { c.reevalStaticByVRF(name) }

// HandleVRFDown re-evaluates every declared SID bound to name.
func (c *Controller) HandleVRFDown(name string) { c.reevalStaticByVRF(name) }

// HandleInterfaceUp re-evaluates every declared SID that names this
// interface explicitly, plus every SID still waiting on the fallback
// "first non-loopback interface" (scenario 1).
func (c *Controller) HandleInterfaceUp(name string) {
	if c.staticTable == nil {
		return
	}
	for _, s := range c.staticTable.All() {
		if s.IfName == name || (s.IfName == "" && !s.Sent) {
			c.OnStaticSIDChanged(s)
		}
	}
}

// HandleInterfaceDown re-evaluates every declared SID bound to this
// interface.
func (c *Controller) HandleInterfaceDown(name string) {
	if c.staticTable == nil {
		return
	}
	for _, s := range c.staticTable.All() {
		if s.IfName == name {
			c.OnStaticSIDChanged(s)
		}
	}
}

// HandleNexthopUpdate re-evaluates every declared SID whose adjacency
// nexthop matches addr.
func (c *Controller) HandleNexthopUpdate(addr netip.Addr) {
	if c.staticTable == nil {
		return
	}
	for _, s := range c.staticTable.All() {
		if s.AdjV6 == addr {
			c.OnStaticSIDChanged(s)
		}
	}
}

func (c *Controller) reevalStaticByVRF(name string) {
	if c.staticTable == nil {
		return
	}
	for _, s := range c.staticTable.All() {
		if s.VRFName == name {
			c.OnStaticSIDChanged(s)
		}
	}
}

func (c *Controller) waitToSend() {
	// Takes a token without waiting, keeping the "no operation blocks"
	// guarantee of §5. The result is discarded: the send goes ahead
	// whether or not a token was available.
	_ = c.limiter.Allow()
}

// Resync clears the SENT flag on every declared static SID and
// re-evaluates it, re-dispatching ADD_LOCALSID where still valid. The
// Forwarding Broker Client calls this once per reconnect (§5: "on broker
// disconnect, all SENT flags are cleared and re-sent on reconnect").
func (c *Controller) Resync() {
	if c.staticTable == nil {
		return
	}
	for _, s := range c.staticTable.All() {
		s.Sent = false
		c.OnStaticSIDChanged(s)
	}
}

// --- Allocation ----------------------------------------------------------

// AutoAllocate implements §4.5's auto-index allocation: it searches
// function-field indices 1..2^function_len-2 inclusive (index 0 and the
// all-ones sentinel 2^function_len-1 are excluded, see SPEC_FULL.md
// §9.1), transposes each candidate into loc's address
// space, and returns the first index whose resulting address is not
// already present in live.
func AutoAllocate(loc *Locator, live map[[16]byte]struct{}) (uint64, [16]byte, error) {
	max := loc.Structure.MaxFunctionIndex()
	base := loc.Prefix.Addr().As16()
	offset, length := loc.Structure.FunctionOffset(), loc.Structure.FunctionLen
	for idx := uint64(1); idx+1 < max; idx++ {
		addr, err := Transpose(base, idx, offset, length)
		if err != nil {
			return 0, [16]byte{}, err
		}
		if _, used := live[addr]; !used {
			return idx, addr, nil
		}
	}
	return 0, [16]byte{}, NewConfigError("auto-allocate", "locator %q function space exhausted", loc.Name)
}

// IndexAllocate implements §4.5's index-based allocation: the
// operator-specified index is used directly and the call fails if the
// resulting address is already in use.
func IndexAllocate(loc *Locator, index uint64, live map[[16]byte]struct{}) ([16]byte, error) {
	addr, err := Transpose(loc.Prefix.Addr().As16(), index, loc.Structure.FunctionOffset(), loc.Structure.FunctionLen)
	if err != nil {
		return [16]byte{}, err
	}
	if _, used := live[addr]; used {
		return [16]byte{}, NewConfigError("index-allocate", "address already in use")
	}
	return addr, nil
}
