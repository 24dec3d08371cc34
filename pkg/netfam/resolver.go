// Package netfam is the generic netlink family-resolution collaborator
// described in spec.md §1 as external to the SRv6 core. The core talks
// only to the Resolver interface (satisfying srv6.ResourceResolver); this
// package supplies the production adapter, backed by
// github.com/vishvananda/netlink, that makes the ribd binary runnable
// against a real kernel (SPEC_FULL.md §4.8).
package netfam

import (
	"context"
	"net"

	"github.com/vishvananda/netlink"
)

// EventKind enumerates the broker-sourced resource events the
// Installation Controller reacts to (spec.md §4.5, §6).
type EventKind int

const (
	InterfaceUp EventKind = iota
	InterfaceDown
	VRFUp
	VRFDown
)

func (k EventKind) String() string {
	switch k {
	case InterfaceUp:
		return "INTERFACE_UP"
	case InterfaceDown:
		return "INTERFACE_DOWN"
	case VRFUp:
		return "VRF_UP"
	case VRFDown:
		return "VRF_DOWN"
	default:
		return "UNKNOWN"
	}
}

// Event is one resource-lifecycle transition, translated from a netlink
// link update into the vocabulary pkg/srv6.Controller understands.
type Event struct {
	Kind EventKind
	Name string
}

// Resolver answers the Installation Controller's liveness questions by
// walking the kernel's link table and watches for changes. It satisfies
// srv6.ResourceResolver without the srv6 package ever importing
// vishvananda/netlink directly.
type Resolver struct {
	linkList func() ([]netlink.Link, error)
}

// NewResolver builds a Resolver backed by the real kernel link table.
func NewResolver() *Resolver {
	return &Resolver{linkList: netlink.LinkList}
}

// VRFLive reports whether name is a currently up VRF device and its
// kernel routing-table identifier.
func (r *Resolver) VRFLive(name string) (tableID int, live bool) {
	links, err := r.linkList()
	if err != nil {
		return 0, false
	}
	for _, l := range links {
		vrf, ok := l.(*netlink.Vrf)
		if !ok || vrf.Attrs().Name != name {
			continue
		}
		if vrf.Attrs().Flags&net.FlagUp == 0 {
			return 0, false
		}
		return int(vrf.Table), true
	}
	return 0, false
}

// InterfaceLive reports whether name currently exists in the kernel's
// link table.
func (r *Resolver) InterfaceLive(name string) bool {
	links, err := r.linkList()
	if err != nil {
		return false
	}
	for _, l := range links {
		if l.Attrs().Name == name {
			return true
		}
	}
	return false
}

// FirstNonLoopbackInterface returns the first non-loopback link known to
// the kernel, the §4.5 outgoing-interface fallback of last resort.
func (r *Resolver) FirstNonLoopbackInterface() (string, bool) {
	links, err := r.linkList()
	if err != nil {
		return "", false
	}
	for _, l := range links {
		a := l.Attrs()
		if a.Flags&net.FlagLoopback != 0 || a.Name == "lo" {
			continue
		}
		return a.Name, true
	}
	return "", false
}

// InterfaceIndex returns the kernel ifindex for name, the form
// pkg/fpm.Nexthop and the FPM local-SID NH need rather than a name.
func (r *Resolver) InterfaceIndex(name string) (int, bool) {
	links, err := r.linkList()
	if err != nil {
		return 0, false
	}
	for _, l := range links {
		if l.Attrs().Name == name {
			return l.Attrs().Index, true
		}
	}
	return 0, false
}

// Watch subscribes to kernel link updates and translates them into
// Events until ctx is cancelled.
func (r *Resolver) Watch(ctx context.Context) (<-chan Event, error) {
	updates := make(chan netlink.LinkUpdate)
	done := make(chan struct{})
	if err := netlink.LinkSubscribe(updates, done); err != nil {
		return nil, err
	}
	out := make(chan Event, 16)
	go func() {
		defer close(out)
		defer close(done)
		for {
			select {
			case <-ctx.Done():
				return
			case u, ok := <-updates:
				if !ok {
					return
				}
				if ev := translate(u); ev != nil {
					out <- *ev
				}
			}
		}
	}()
	return out, nil
}

func translate(u netlink.LinkUpdate) *Event {
	attrs := u.Link.Attrs()
	up := attrs.Flags&net.FlagUp != 0
	_, isVRF := u.Link.(*netlink.Vrf)
	switch {
	case isVRF && up:
		return &Event{Kind: VRFUp, Name: attrs.Name}
	case isVRF && !up:
		return &Event{Kind: VRFDown, Name: attrs.Name}
	case up:
		return &Event{Kind: InterfaceUp, Name: attrs.Name}
	default:
		return &Event{Kind: InterfaceDown, Name: attrs.Name}
	}
}
