package fpm

import (
	"encoding/binary"
	"net/netip"

	"golang.org/x/sys/unix"
)

// Nexthop is one forwarding path for a route. Gateway may be the zero
// Addr for a directly-attached (device-only) nexthop.
type Nexthop struct {
	Gateway netip.Addr
	OIF     int
	Flags   uint8
}

// LocalSIDEncap is the SRv6 local-SID encapsulation attached to a route
// that installs a local SID into the forwarding plane (spec.md §4.7).
// Only the nexthop field the behavior requires is read by the encoder;
// the rest are left zero/invalid by the caller.
type LocalSIDEncap struct {
	BlockLen, NodeLen, FunctionLen, ArgumentLen uint8
	Action                                      uint8 // §3 action code, FPM-namespace
	NH4                                         netip.Addr
	NH6                                         netip.Addr
	VRFName                                     string
}

// RouteEncap is the SRv6 route encapsulation attached to an ordinary
// (non-local-SID) route carrying a VPN SID (spec.md §4.7).
type RouteEncap struct {
	VPNSID       [16]byte
	EncapSrcAddr [16]byte
}

// RouteMessage is the encoder's input: everything needed to produce one
// RTM_NEWROUTE or RTM_DELROUTE message.
type RouteMessage struct {
	Type       uint16 // unix.RTM_NEWROUTE or unix.RTM_DELROUTE
	Seq        uint32
	Dst        netip.Prefix
	Src        *netip.Prefix
	Table      int
	Protocol   uint8
	Scope      uint8
	RouteType  uint8
	Metric     *uint32
	PrefSrc    *netip.Addr
	Nexthops   []Nexthop
	LocalSID   *LocalSIDEncap
	RouteEncap *RouteEncap
}

// EncodeRoute writes msg into buf and returns the number of bytes
// written. It returns 0 if the message would overflow buf, and a
// negative value if msg itself violates an encoding precondition (an
// unrecoverable caller error, not a sizing problem) — spec.md §4.7's
// buffer discipline.
func EncodeRoute(buf []byte, msg RouteMessage) int {
	if msg.LocalSID != nil && msg.RouteEncap != nil {
		return -1
	}
	if (msg.LocalSID != nil || msg.RouteEncap != nil) && len(msg.Nexthops) > 1 {
		return -1 // SRv6 encaps are single-nexthop in this encoder (design restriction)
	}
	if !msg.Dst.IsValid() {
		return -1
	}

	w := newWriter(buf)
	hdrOff, ok := w.raw(nlmsghdrLen)
	if !ok {
		return 0
	}
	rtOff, ok := w.raw(rtmsgLen)
	if !ok {
		return 0
	}

	family := uint8(unix.AF_INET6)
	if msg.Dst.Addr().Is4() {
		family = unix.AF_INET
	}

	if !w.attr(uint16(rtaDst), prefixBytes(msg.Dst)) {
		return 0
	}
	if msg.Src != nil {
		if !w.attr(uint16(rtaSrc), prefixBytes(*msg.Src)) {
			return 0
		}
	}

	tableByte := uint8(0)
	if msg.Table > 0 {
		if msg.Table <= 255 {
			tableByte = uint8(msg.Table)
		} else if !w.attrU32(uint16(rtaTable), uint32(msg.Table)) {
			return 0
		}
	}

	if msg.Metric != nil && !w.attrU32(uint16(rtaPriority), *msg.Metric) {
		return 0
	}
	if msg.PrefSrc != nil && !w.attr(uint16(rtaPrefSrc), addrBytes(*msg.PrefSrc)) {
		return 0
	}

	switch {
	case len(msg.Nexthops) == 1:
		nh := msg.Nexthops[0]
		if nh.Gateway.IsValid() && !w.attr(uint16(rtaGateway), addrBytes(nh.Gateway)) {
			return 0
		}
		if nh.OIF != 0 && !w.attrU32(uint16(rtaOIF), uint32(nh.OIF)) {
			return 0
		}
	case len(msg.Nexthops) > 1:
		if !w.encodeMultipath(msg.Nexthops) {
			return 0
		}
	}

	switch {
	case msg.LocalSID != nil:
		if !w.attrU16(uint16(rtaEncapType), uint16(EncapSRv6LocalSID)) {
			return 0
		}
		if !w.encodeLocalSID(*msg.LocalSID) {
			return 0
		}
	case msg.RouteEncap != nil:
		if !w.attrU16(uint16(rtaEncapType), uint16(EncapSRv6Route)) {
			return 0
		}
		if !w.encodeRouteEncapAttr(*msg.RouteEncap) {
			return 0
		}
	}

	total := w.Len()
	binary.LittleEndian.PutUint32(buf[hdrOff:], uint32(total))
	binary.LittleEndian.PutUint16(buf[hdrOff+4:], msg.Type)
	flags := uint16(unix.NLM_F_REQUEST)
	if msg.Type == unix.RTM_NEWROUTE {
		flags |= unix.NLM_F_CREATE
	}
	binary.LittleEndian.PutUint16(buf[hdrOff+6:], flags)
	binary.LittleEndian.PutUint32(buf[hdrOff+8:], msg.Seq)
	binary.LittleEndian.PutUint32(buf[hdrOff+12:], 0)

	buf[rtOff+0] = family
	buf[rtOff+1] = uint8(msg.Dst.Bits())
	if msg.Src != nil {
		buf[rtOff+2] = uint8(msg.Src.Bits())
	}
	buf[rtOff+3] = 0 // tos
	buf[rtOff+4] = tableByte
	buf[rtOff+5] = msg.Protocol
	buf[rtOff+6] = msg.Scope
	buf[rtOff+7] = msg.RouteType
	binary.LittleEndian.PutUint32(buf[rtOff+8:], 0) // rtm_flags

	return total
}

func prefixBytes(p netip.Prefix) []byte {
	a := p.Addr()
	if a.Is4() {
		b := a.As4()
		return b[:]
	}
	b := a.As16()
	return b[:]
}

func addrBytes(a netip.Addr) []byte {
	if a.Is4() {
		b := a.As4()
		return b[:]
	}
	b := a.As16()
	return b[:]
}

// encodeMultipath packs nhs as a sequence of struct rtnexthop entries
// under one RTA_MULTIPATH attribute (spec.md §4.7). Each entry is
// self-delimited by its rtnh_len field; there is no per-entry TLV
// wrapper, matching the kernel's on-wire layout.
func (w *writer) encodeMultipath(nhs []Nexthop) bool {
	mark, ok := w.openNested()
	if !ok {
		return false
	}
	for _, nh := range nhs {
		nhOff, ok := w.raw(rtnexthopLen)
		if !ok {
			return false
		}
		if nh.Gateway.IsValid() && !w.attr(uint16(rtaGateway), addrBytes(nh.Gateway)) {
			return false
		}
		length := w.off - nhOff
		binary.LittleEndian.PutUint16(w.buf[nhOff:], uint16(length))
		w.buf[nhOff+2] = nh.Flags
		w.buf[nhOff+3] = 0
		binary.LittleEndian.PutUint32(w.buf[nhOff+4:], uint32(nh.OIF))
	}
	w.closeNested(mark, uint16(rtaMultipath), false)
	return true
}

// encodeLocalSID writes the RTA_ENCAP nest carrying the local-SID
// structure and nexthop/VRF context (spec.md §4.7, §6).
func (w *writer) encodeLocalSID(e LocalSIDEncap) bool {
	mark, ok := w.openNested()
	if !ok {
		return false
	}
	if !w.attrU8(attrLocalSIDBlockLen, e.BlockLen) ||
		!w.attrU8(attrLocalSIDNodeLen, e.NodeLen) ||
		!w.attrU8(attrLocalSIDFunctionLen, e.FunctionLen) ||
		!w.attrU8(attrLocalSIDArgumentLen, e.ArgumentLen) ||
		!w.attrU8(attrLocalSIDAction, e.Action) {
		return false
	}
	if e.NH6.IsValid() && !w.attrBytes16(attrLocalSIDNH6, e.NH6.As16()) {
		return false
	}
	if e.NH4.IsValid() {
		b := e.NH4.As4()
		if !w.attr(attrLocalSIDNH4, b[:]) {
			return false
		}
	}
	if e.VRFName != "" && !w.attrString(attrLocalSIDVRFName, e.VRFName) {
		return false
	}
	w.closeNested(mark, uint16(rtaEncap), false)
	return true
}

// encodeRouteEncapAttr writes the RTA_ENCAP nest carrying a VPN SID and
// its encapsulation source address (spec.md §4.7, §6).
func (w *writer) encodeRouteEncapAttr(e RouteEncap) bool {
	mark, ok := w.openNested()
	if !ok {
		return false
	}
	if !w.attrBytes16(attrRouteEncapVPNSID, e.VPNSID) ||
		!w.attrBytes16(attrRouteEncapSrcAddr, e.EncapSrcAddr) {
		return false
	}
	w.closeNested(mark, uint16(rtaEncap), false)
	return true
}
