package broker

import (
	"bytes"
	"net/netip"
	"testing"

	"github.com/kernelcarrier/srv6d/pkg/srv6"
)

func TestAddLocalSIDRoundTrip(t *testing.T) {
	desc := srv6.SIDDescriptor{
		Address:  [16]byte{0x20, 0x01, 0x0d, 0xb8},
		Behavior: srv6.EndDT4,
		OIF:      "eth0",
		VRFName:  "red",
		TableID:  100,
		AdjV6:    netip.MustParseAddr("fe80::1"),
	}
	payload := encodeAddLocalSID(desc)
	got, err := decodeAddLocalSID(payload)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Address != desc.Address || got.OIF != desc.OIF || got.VRFName != desc.VRFName || got.TableID != desc.TableID {
		t.Errorf("round trip mismatch: got %+v, want %+v", got, desc)
	}
	if got.Behavior.WireCode() != desc.Behavior.WireCode() {
		t.Errorf("action = %d, want %d", got.Behavior.WireCode(), desc.Behavior.WireCode())
	}
	if got.AdjV6.Compare(desc.AdjV6) != 0 {
		t.Errorf("adjacency addr = %v, want %v", got.AdjV6, desc.AdjV6)
	}
}

func TestAddLocalSIDFlavorRoundTrip(t *testing.T) {
	desc := srv6.SIDDescriptor{
		Address:  [16]byte{0x20, 0x01},
		Behavior: srv6.End,
		OIF:      "eth0",
		Flavor:   srv6.Flavor{NextCSID: true, BlockLen: 32, NodeLen: 16},
	}
	got, err := decodeAddLocalSID(encodeAddLocalSID(desc))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !got.Flavor.NextCSID || got.Flavor.BlockLen != 32 || got.Flavor.NodeLen != 16 {
		t.Errorf("flavor = %+v, want NextCSID block=32 node=16", got.Flavor)
	}
}

func TestFrameRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	payload := encodeVRFUp("red", 100)
	if err := writeFrame(&buf, MsgVRFUp, payload); err != nil {
		t.Fatalf("writeFrame: %v", err)
	}
	f, err := readFrame(&buf)
	if err != nil {
		t.Fatalf("readFrame: %v", err)
	}
	if f.typ != MsgVRFUp {
		t.Fatalf("type = %d, want MsgVRFUp", f.typ)
	}
	name, tableID, err := decodeVRFUp(f.payload)
	if err != nil {
		t.Fatalf("decodeVRFUp: %v", err)
	}
	if name != "red" || tableID != 100 {
		t.Errorf("decoded (%q, %d), want (red, 100)", name, tableID)
	}
}

func TestRouteNotifyOwnerRoundTrip(t *testing.T) {
	addr := netip.MustParseAddr("2001:db8::1")
	payload := encodeRouteNotifyOwner(addr, OutcomeFailInstall)
	got, outcome, err := decodeRouteNotifyOwner(payload)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Compare(addr) != 0 || outcome != OutcomeFailInstall {
		t.Errorf("got (%v, %v), want (%v, FAIL_INSTALL)", got, outcome, addr)
	}
}
