package main

import (
	"net/netip"
	"testing"

	"github.com/sirupsen/logrus"

	"github.com/kernelcarrier/srv6d/pkg/broker"
	"github.com/kernelcarrier/srv6d/pkg/srv6"
)

// TestHandleRouteNotifyOwnerDropsEndXToNotInstalled is the End.X-SID
// half of spec.md §8 scenario 6: a FAIL_INSTALL outcome drops a
// previously installed Adjacency SID to not-installed, with no
// spontaneous re-send.
func TestHandleRouteNotifyOwnerDropsEndXToNotInstalled(t *testing.T) {
	area := srv6.NewArea("a1")
	loc, err := area.Locators.CreateLocator("L1", netip.MustParsePrefix("2001:db8::/48"),
		srv6.Structure{BlockLen: 32, NodeLen: 16, FunctionLen: 16}, false)
	if err != nil {
		t.Fatalf("CreateLocator: %v", err)
	}
	if _, err := area.Locators.AllocChunk(loc.Name, 1); err != nil {
		t.Fatalf("AllocChunk: %v", err)
	}

	mgr := srv6.NewAdjacencyManager(area, 1, srv6.EndX)
	adj := &srv6.Adjacency{ID: "adj1", IfName: "eth0", NeighborV6: netip.MustParseAddr("fe80::1"), HasIPv6: true}
	if err := mgr.AdjIPv6Enabled(adj); err != nil {
		t.Fatalf("AdjIPv6Enabled: %v", err)
	}

	sids := area.EndXSIDs()
	if len(sids) != 1 {
		t.Fatalf("expected one End.X SID, got %d", len(sids))
	}
	sids[0].Sent = true

	a := &app{log: logrus.NewEntry(logrus.StandardLogger()), areas: map[string]*srv6.Area{"a1": area}}
	a.HandleRouteNotifyOwner(netip.AddrFrom16(sids[0].Address), broker.OutcomeFailInstall)

	if sids[0].Sent {
		t.Fatalf("expected SENT_TO_BROKER to drop to false after FAIL_INSTALL")
	}
}
