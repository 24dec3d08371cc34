// Package fpm is the FPM Netlink Encoder (spec.md §4.7, §6): it turns a
// route decision into a bit-exact Netlink RTM_NEWROUTE/RTM_DELROUTE
// message, including the SRv6 local-SID and route encapsulations ribd
// mirrors to the forwarding plane manager.
//
// Every encoding function writes into a caller-owned buffer and never
// grows it — grounded on the netlinkx client's nlAttr helper
// (other_examples) and vishvananda/netlink's RTA_* encoding, generalized
// to the bounded-buffer discipline spec.md §4.7 requires.
package fpm

import "golang.org/x/sys/unix"

// Top-level route attribute codes reuse golang.org/x/sys/unix's stable
// RTA_* numbering (spec.md §6 "standard").
const (
	rtaDst       = unix.RTA_DST
	rtaGateway   = unix.RTA_GATEWAY
	rtaOIF       = unix.RTA_OIF
	rtaPriority  = unix.RTA_PRIORITY
	rtaPrefSrc   = unix.RTA_PREFSRC
	rtaTable     = unix.RTA_TABLE
	rtaEncap     = unix.RTA_ENCAP
	rtaEncapType = unix.RTA_ENCAP_TYPE
	rtaMultipath = unix.RTA_MULTIPATH
	rtaSrc       = unix.RTA_SRC
)

// EncapType is the RTA_ENCAP_TYPE discriminator (spec.md §6).
type EncapType uint16

const (
	EncapNone         EncapType = 0
	EncapVxLAN        EncapType = 100
	EncapSRv6Route    EncapType = 101
	EncapSRv6LocalSID EncapType = 102
)

// SRv6 local-SID nested attribute codes, carried under RTA_ENCAP when
// EncapType is EncapSRv6LocalSID (spec.md §6).
const (
	attrLocalSIDAction      = 1
	attrLocalSIDNH4         = 4
	attrLocalSIDNH6         = 5
	attrLocalSIDVRFName     = 100
	attrLocalSIDBlockLen    = 101
	attrLocalSIDNodeLen     = 102
	attrLocalSIDFunctionLen = 103
	attrLocalSIDArgumentLen = 104
)

// SRv6 route-encap nested attribute codes, carried under RTA_ENCAP when
// EncapType is EncapSRv6Route (spec.md §6).
const (
	attrRouteEncapVPNSID  = 100
	attrRouteEncapSrcAddr = 101
)

// nlaFNested is NLA_F_NESTED, the high bit marking a nested attribute
// container (not exported by x/sys/unix).
const nlaFNested = 0x8000

// nlmsghdrLen and rtmsgLen are the fixed-size headers every route
// message carries ahead of its attribute TLVs.
const (
	nlmsghdrLen = 16
	rtmsgLen    = 12
)

// rtnexthopLen is the fixed struct rtnexthop header size embedded,
// unpadded, inside an RTA_MULTIPATH attribute's payload (spec.md §4.7).
const rtnexthopLen = 8
