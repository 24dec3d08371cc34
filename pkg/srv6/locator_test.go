package srv6

import (
	"net/netip"
	"testing"
)

func testStructure() Structure {
	return Structure{BlockLen: 32, NodeLen: 16, FunctionLen: 16, ArgumentLen: 0}
}

func TestLocatorCreateIdempotent(t *testing.T) {
	r := NewRegistry()
	prefix := netip.MustParsePrefix("2001:db8::/48")
	s := testStructure()

	l1, err := r.CreateLocator("L1", prefix, s, false)
	if err != nil {
		t.Fatalf("CreateLocator: %v", err)
	}
	l2, err := r.CreateLocator("L1", prefix, s, false)
	if err != nil {
		t.Fatalf("CreateLocator (repeat): %v", err)
	}
	if l1 != l2 {
		t.Error("repeat CreateLocator should return the same locator")
	}

	if _, err := r.CreateLocator("L1", prefix, Structure{BlockLen: 40, NodeLen: 8, FunctionLen: 16}, false); err == nil {
		t.Error("expected ConfigError for conflicting redefinition")
	}
}

func TestLocatorCreateValidatesBlockNode(t *testing.T) {
	r := NewRegistry()
	prefix := netip.MustParsePrefix("2001:db8::/48")
	bad := Structure{BlockLen: 32, NodeLen: 8, FunctionLen: 16} // 40 != 48
	if _, err := r.CreateLocator("L1", prefix, bad, false); err == nil {
		t.Error("expected ConfigError when block_len+node_len != prefix length")
	}
}

func TestChunkAllocSharedAcrossOwners(t *testing.T) {
	r := NewRegistry()
	prefix := netip.MustParsePrefix("2001:db8::/48")
	if _, err := r.CreateLocator("L1", prefix, testStructure(), false); err != nil {
		t.Fatalf("CreateLocator: %v", err)
	}

	c1, err := r.AllocChunk("L1", 1)
	if err != nil {
		t.Fatalf("AllocChunk(owner=1): %v", err)
	}
	c2, err := r.AllocChunk("L1", 2)
	if err != nil {
		t.Fatalf("AllocChunk(owner=2): %v", err)
	}
	if c1.Prefix != c2.Prefix {
		t.Error("chunks for distinct owners should share the identical locator prefix")
	}
	if c1 == c2 {
		t.Error("chunks should be distinct per-owner records")
	}

	again, err := r.AllocChunk("L1", 1)
	if err != nil {
		t.Fatalf("AllocChunk(owner=1) again: %v", err)
	}
	if again != c1 {
		t.Error("repeat AllocChunk for the same owner must return the same chunk")
	}
}

func TestLocatorDeleteCascadesChunkRelease(t *testing.T) {
	r := NewRegistry()
	prefix := netip.MustParsePrefix("2001:db8::/48")
	r.CreateLocator("L1", prefix, testStructure(), false)
	r.AllocChunk("L1", 1)

	var released []*Chunk
	r.SetObserver(observerFunc(func(c *Chunk) { released = append(released, c) }))

	if err := r.DeleteLocator("L1"); err != nil {
		t.Fatalf("DeleteLocator: %v", err)
	}
	if len(released) != 1 {
		t.Fatalf("expected 1 chunk released, got %d", len(released))
	}
	if _, ok := r.Lookup("L1"); ok {
		t.Error("locator should be gone after delete")
	}
}

type observerFunc func(c *Chunk)

func (f observerFunc) OnChunkReleased(c *Chunk) { f(c) }
