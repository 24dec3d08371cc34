package main

import (
	"net/netip"
	"testing"

	"github.com/sirupsen/logrus"

	"github.com/kernelcarrier/srv6d/pkg/broker"
	"github.com/kernelcarrier/srv6d/pkg/srv6"
)

// TestHandleRouteNotifyOwnerDropsToNotInstalled is spec.md §8 scenario
// 6: a FAIL_INSTALL outcome for a previously installed route drops its
// state to not-installed, with no spontaneous re-send.
func TestHandleRouteNotifyOwnerDropsToNotInstalled(t *testing.T) {
	table := srv6.NewStaticTable()
	addr := [16]byte{0xfc, 0x00, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 6}
	sid := table.Add(addr, srv6.End)
	sid.Valid = true
	sid.Sent = true

	a := &app{log: logrus.NewEntry(logrus.StandardLogger()), table: table}
	a.HandleRouteNotifyOwner(netip.AddrFrom16(addr), broker.OutcomeFailInstall)

	if sid.Sent {
		t.Fatalf("expected SENT_TO_BROKER to drop to false after FAIL_INSTALL")
	}
}

// TestHandleRouteNotifyOwnerIgnoresSuccessOutcomes checks that an
// INSTALLED ack never touches SENT_TO_BROKER — it already reflects what
// the controller set at dispatch time, and nothing should re-dispatch.
func TestHandleRouteNotifyOwnerIgnoresSuccessOutcomes(t *testing.T) {
	table := srv6.NewStaticTable()
	addr := [16]byte{0xfc, 0x00, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 7}
	sid := table.Add(addr, srv6.End)
	sid.Sent = true

	a := &app{log: logrus.NewEntry(logrus.StandardLogger()), table: table}
	a.HandleRouteNotifyOwner(netip.AddrFrom16(addr), broker.OutcomeInstalled)

	if !sid.Sent {
		t.Fatalf("expected SENT_TO_BROKER to remain true on an INSTALLED ack")
	}
}
