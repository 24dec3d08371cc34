// Package isistlv produces the byte encoding of the SRv6-relevant IS-IS
// sub-TLVs isisd advertises for its locators and End.X SIDs (RFC 9352).
// It does not implement IS-IS PDU/LSP framing, neighbor discovery, or
// flooding — spec.md §1 excludes the wire protocol itself and keeps only
// "SRv6-relevant TLV production". The encoders here are pure and
// allocation-light, in the same TLV-writer style as pkg/fpm's nlattr
// writer.
package isistlv

import (
	"encoding/binary"
	"fmt"

	"github.com/kernelcarrier/srv6d/pkg/srv6"
)

// Sub-TLV type codes, RFC 9352 §7–§8.
const (
	TypeSRv6Locator = 27
	TypeSRv6EndXSID = 43
)

// SRv6 End.X SID flag bits, RFC 9352 §8.1.
const (
	EndXFlagBackup  = 0x80
	EndXFlagSetSet  = 0x40 // "S-flag": Set of adjacencies sharing the SID
	EndXFlagPersist = 0x20
)

// EncodeLocatorTLV serializes loc's prefix, its SID structure, and its
// up/down state into one SRv6 Locator TLV (RFC 9352 §7). algorithm is
// the IGP algorithm the locator is associated with (0 for SPF).
func EncodeLocatorTLV(loc *srv6.Locator, algorithm uint8) []byte {
	prefixBytes := (loc.Prefix.Bits() + 7) / 8
	addr := loc.Prefix.Addr().As16()

	body := make([]byte, 0, 8+prefixBytes+8)
	body = binary.BigEndian.AppendUint32(body, 0) // metric, unset: not modeled by this core
	var flags uint8
	if !loc.Up {
		flags |= 0x80 // D-flag: down
	}
	body = append(body, flags, algorithm, 0 /*reserved*/, uint8(loc.Prefix.Bits()))
	body = append(body, addr[:prefixBytes]...)
	body = append(body, encodeStructureSubSubTLV(loc.Structure)...)

	return wrapTLV(TypeSRv6Locator, body)
}

// EncodeEndXSubTLV serializes one allocated End.X SID into the SRv6
// End.X SID sub-TLV (RFC 9352 §8.1), attached (conceptually) under the
// IS Neighbor's Extended Reachability TLV for the adjacency's interface.
func EncodeEndXSubTLV(sid *srv6.AdjacencySID, algorithm, weight uint8) []byte {
	body := make([]byte, 0, 20)
	var flags uint8
	if sid.Circuit == srv6.CircuitBroadcast {
		flags |= EndXFlagSetSet
	}
	if !sid.Primary {
		flags |= EndXFlagBackup
	}
	body = binary.BigEndian.AppendUint16(body, uint16(sid.Behavior.WireCode()))
	body = append(body, flags, algorithm, weight)
	body = append(body, sid.Address[:]...)
	if flavor := srv6.FlavorFor(sid.Behavior); flavor.NextCSID {
		body = append(body, encodeFlavorSubSubTLV(flavor)...)
	}
	return wrapTLV(TypeSRv6EndXSID, body)
}

// encodeStructureSubSubTLV is the SRv6 SID Structure sub-sub-TLV
// (RFC 9352 §8.3): four one-octet field lengths.
func encodeStructureSubSubTLV(s srv6.Structure) []byte {
	return []byte{
		1, // type: SID Structure
		4, // length
		uint8(s.BlockLen), uint8(s.NodeLen), uint8(s.FunctionLen), uint8(s.ArgumentLen),
	}
}

// encodeFlavorSubSubTLV mirrors the structure sub-sub-TLV shape for the
// compressed-SID flavor block/node lengths a UN/UA End.X carries.
func encodeFlavorSubSubTLV(f srv6.Flavor) []byte {
	return []byte{2, 2, uint8(f.BlockLen), uint8(f.NodeLen)}
}

func wrapTLV(typ uint8, body []byte) []byte {
	out := make([]byte, 0, len(body)+2)
	out = append(out, typ, uint8(len(body)))
	out = append(out, body...)
	return out
}

// DecodeEndXSubTLV is the inverse of EncodeEndXSubTLV, used by tests to
// round-trip the wire shape without needing a real IS-IS stack.
func DecodeEndXSubTLV(b []byte) (behaviorWire int, address [16]byte, flags uint8, err error) {
	if len(b) < 2 {
		return 0, address, 0, fmt.Errorf("isistlv: short tlv header")
	}
	typ, length := b[0], b[1]
	if typ != TypeSRv6EndXSID {
		return 0, address, 0, fmt.Errorf("isistlv: type %d is not SRv6EndXSID", typ)
	}
	body := b[2:]
	if len(body) < int(length) || length < 21 {
		return 0, address, 0, fmt.Errorf("isistlv: truncated body")
	}
	behaviorWire = int(binary.BigEndian.Uint16(body[0:2]))
	flags = body[2]
	copy(address[:], body[5:21])
	return behaviorWire, address, flags, nil
}
