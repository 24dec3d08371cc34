package isistlv

import (
	"net/netip"
	"testing"

	"github.com/kernelcarrier/srv6d/pkg/srv6"
)

func TestEncodeLocatorTLVShape(t *testing.T) {
	loc := &srv6.Locator{
		Name:      "loc1",
		Prefix:    netip.MustParsePrefix("2001:db8:1::/48"),
		Structure: srv6.Structure{BlockLen: 32, NodeLen: 16, FunctionLen: 16},
		Up:        true,
	}
	b := EncodeLocatorTLV(loc, 0)
	if b[0] != TypeSRv6Locator {
		t.Fatalf("type = %d, want %d", b[0], TypeSRv6Locator)
	}
	if int(b[1])+2 != len(b) {
		t.Fatalf("length byte %d does not match actual body length %d", b[1], len(b)-2)
	}
}

func TestEncodeLocatorTLVDownFlag(t *testing.T) {
	loc := &srv6.Locator{
		Prefix: netip.MustParsePrefix("2001:db8:2::/48"),
		Up:     false,
	}
	b := EncodeLocatorTLV(loc, 0)
	flags := b[2+4]
	if flags&0x80 == 0 {
		t.Errorf("expected D-flag set for a down locator")
	}
}

func TestEncodeDecodeEndXSubTLVRoundTrip(t *testing.T) {
	neighbor := netip.MustParseAddr("fe80::1")
	sid := &srv6.AdjacencySID{
		Address:    [16]byte{0x20, 0x01, 0x0d, 0xb8},
		Behavior:   srv6.EndX,
		NeighborV6: neighbor,
		Primary:    true,
		Circuit:    srv6.CircuitPointToPoint,
	}
	b := EncodeEndXSubTLV(sid, 0, 0)

	behaviorWire, addr, flags, err := DecodeEndXSubTLV(b)
	if err != nil {
		t.Fatalf("DecodeEndXSubTLV: %v", err)
	}
	if behaviorWire != sid.Behavior.WireCode() {
		t.Errorf("behavior = %d, want %d", behaviorWire, sid.Behavior.WireCode())
	}
	if addr != sid.Address {
		t.Errorf("address = %x, want %x", addr, sid.Address)
	}
	if flags&EndXFlagBackup != 0 {
		t.Errorf("primary SID should not carry the backup flag")
	}
}

func TestEncodeEndXSubTLVBackupFlag(t *testing.T) {
	sid := &srv6.AdjacencySID{
		Address:  [16]byte{0x20, 0x01},
		Behavior: srv6.EndX,
		Primary:  false,
	}
	b := EncodeEndXSubTLV(sid, 0, 0)
	_, _, flags, err := DecodeEndXSubTLV(b)
	if err != nil {
		t.Fatalf("DecodeEndXSubTLV: %v", err)
	}
	if flags&EndXFlagBackup == 0 {
		t.Errorf("expected backup flag set for a non-primary SID")
	}
}
