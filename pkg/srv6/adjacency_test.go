package srv6

import (
	"net/netip"
	"testing"
)

type adjObserver struct {
	created []*AdjacencySID
	removed []*AdjacencySID
}

func (o *adjObserver) OnAdjacencySIDCreated(s *AdjacencySID) { o.created = append(o.created, s) }
func (o *adjObserver) OnAdjacencySIDRemoved(s *AdjacencySID) { o.removed = append(o.removed, s) }

func setupAreaWithChunk(t *testing.T) (*Area, *AdjacencyManager, *adjObserver) {
	t.Helper()
	area := NewArea("0000.0000.0001")
	structure := Structure{BlockLen: 32, NodeLen: 16, FunctionLen: 16}
	if _, err := area.Locators.CreateLocator("L1", netip.MustParsePrefix("2001:db8::/48"), structure, false); err != nil {
		t.Fatalf("CreateLocator: %v", err)
	}
	if _, err := area.Locators.AllocChunk("L1", 1); err != nil {
		t.Fatalf("AllocChunk: %v", err)
	}
	mgr := NewAdjacencyManager(area, 1, EndX)
	obs := &adjObserver{}
	mgr.SetObserver(obs)
	return area, mgr, obs
}

// TestScenario4AutoAllocateFirstAdjacencySID is spec §8 scenario 4.
func TestScenario4AutoAllocateFirstAdjacencySID(t *testing.T) {
	_, mgr, obs := setupAreaWithChunk(t)

	adj := &Adjacency{ID: "adj1", IfName: "eth0", NeighborV6: netip.MustParseAddr("fe80::1"), Circuit: CircuitPointToPoint}
	mgr.AdjUp(adj)
	if len(obs.created) != 0 {
		t.Fatal("AdjUp alone must not allocate a SID")
	}

	if err := mgr.AdjIPv6Enabled(adj); err != nil {
		t.Fatalf("AdjIPv6Enabled: %v", err)
	}
	if len(obs.created) != 1 {
		t.Fatalf("expected one End.X SID created, got %d", len(obs.created))
	}
	want := netip.MustParseAddr("2001:db8:0:0:0001::").As16()
	if obs.created[0].Address != want {
		t.Errorf("address = %x, want %x", obs.created[0].Address, want)
	}
	if len(adj.EndXSIDs()) != 1 {
		t.Error("adjacency should track its own End.X SID")
	}
}

func TestAdjacencyDownTearsDownSIDs(t *testing.T) {
	_, mgr, obs := setupAreaWithChunk(t)
	adj := &Adjacency{ID: "adj1", IfName: "eth0", NeighborV6: netip.MustParseAddr("fe80::1"), Circuit: CircuitPointToPoint}
	mgr.AdjUp(adj)
	mgr.AdjIPv6Enabled(adj)

	mgr.AdjDown(adj)
	if len(obs.removed) != 1 {
		t.Fatalf("expected one removal, got %d", len(obs.removed))
	}
	if len(adj.EndXSIDs()) != 0 {
		t.Error("adjacency's End.X list should be empty after down")
	}
}

func TestLocatorReleaseCascadesAdjacencySIDs(t *testing.T) {
	area, mgr, obs := setupAreaWithChunk(t)
	adj := &Adjacency{ID: "adj1", IfName: "eth0", NeighborV6: netip.MustParseAddr("fe80::1"), Circuit: CircuitPointToPoint}
	mgr.AdjUp(adj)
	mgr.AdjIPv6Enabled(adj)

	area.Locators.SetObserver(mgr)
	if err := area.Locators.DeleteLocator("L1"); err != nil {
		t.Fatalf("DeleteLocator: %v", err)
	}
	if len(obs.removed) != 1 {
		t.Fatalf("expected the End.X SID to be withdrawn before the chunk disappears, got %d removals", len(obs.removed))
	}
	if len(adj.EndXSIDs()) != 0 {
		t.Error("adjacency's End.X list should be empty after locator release")
	}
}
