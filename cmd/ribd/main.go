// Command ribd is the routing-information broker: it owns the
// forwarding-plane relationship, accepting Forwarding Broker Client
// connections from staticd and isisd, mirroring every installed local
// SID to the FPM, and fanning out VRF/interface lifecycle events it
// observes directly from the kernel (spec.md §1, §4.5, §4.6, §4.7).
package main

import (
	"context"
	"flag"
	"fmt"
	"net"
	"net/netip"
	"os"
	"sync"

	"github.com/google/subcommands"
	"github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"

	"github.com/kernelcarrier/srv6d/pkg/broker"
	"github.com/kernelcarrier/srv6d/pkg/daemonutil"
	"github.com/kernelcarrier/srv6d/pkg/fpm"
	"github.com/kernelcarrier/srv6d/pkg/netfam"
	"github.com/kernelcarrier/srv6d/pkg/srv6"
)

var (
	listenSock = flag.String("listen-socket", "/run/srv6d/broker.sock", "Unix domain socket staticd/isisd dial")
	fpmAddr    = flag.String("fpm-addr", "127.0.0.1:2620", "FPM Netlink server address")
	pidFile    = flag.String("pid-file", "/run/srv6d/ribd.pid", "exclusive PID-file lock path")
)

// installedRoute is one row of the show-routes table: the route-mirror
// descriptor ribd most recently sent to the FPM for one local SID
// address.
type installedRoute struct {
	Address  [16]byte
	Behavior srv6.Behavior
	OIF      string
	Sent     bool
}

type app struct {
	log      *logrus.Entry
	resolver *netfam.Resolver
	fpmConn  net.Conn

	mu       sync.Mutex
	peers    map[*broker.Peer]struct{}
	nexthops map[netip.Addr][]*broker.Peer
	routes   map[[16]byte]*installedRoute
	seq      uint32
}

func main() {
	subcommands.Register(subcommands.HelpCommand(), "")
	subcommands.Register(subcommands.FlagsCommand(), "")
	subcommands.Register(subcommands.CommandsCommand(), "")

	flag.Parse()

	d, err := daemonutil.New("ribd", *pidFile)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	fpmConn, err := net.Dial("tcp", *fpmAddr)
	if err != nil {
		d.Log.WithError(err).Fatal("dialing FPM")
	}

	a := &app{
		log:      d.Log,
		resolver: netfam.NewResolver(),
		fpmConn:  fpmConn,
		peers:    map[*broker.Peer]struct{}{},
		nexthops: map[netip.Addr][]*broker.Peer{},
		routes:   map[[16]byte]*installedRoute{},
	}

	subcommands.Register(&showRoutesCommand{app: a}, "")

	_ = os.Remove(*listenSock)
	ln, err := net.Listen("unix", *listenSock)
	if err != nil {
		d.Log.WithError(err).Fatal("listening on broker socket")
	}
	srv := broker.NewServer(ln, d.Log)

	d.Go(func(ctx context.Context) error {
		<-ctx.Done()
		return srv.Close()
	})
	d.Go(func(ctx context.Context) error {
		return srv.Serve(a, a.onAccept, a.onClose)
	})
	d.Go(func(ctx context.Context) error {
		return a.watchResources(ctx)
	})

	d.Ready()
	d.Log.Info("ribd ready")

	ctx := d.Context()
	if flag.NArg() > 0 {
		os.Exit(int(subcommands.Execute(ctx)))
	}
	if err := d.Wait(); err != nil {
		d.Log.WithError(err).Fatal("daemon exited with error")
	}
}

func (a *app) onAccept(p *broker.Peer) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.peers[p] = struct{}{}
	a.log.WithField("peer", p.RemoteAddr()).Info("broker: peer connected")
}

func (a *app) onClose(p *broker.Peer) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.peers, p)
	for addr, ps := range a.nexthops {
		filtered := ps[:0]
		for _, q := range ps {
			if q != p {
				filtered = append(filtered, q)
			}
		}
		a.nexthops[addr] = filtered
	}
}

// watchResources mirrors every kernel VRF/interface transition to every
// connected peer — in this single-process delivery ribd is both the
// broker and the forwarding-plane owner, so these events are observed
// directly rather than relayed from elsewhere (SPEC_FULL.md §3).
func (a *app) watchResources(ctx context.Context) error {
	events, err := a.resolver.Watch(ctx)
	if err != nil {
		return err
	}
	for ev := range events {
		a.fanOut(ev)
	}
	return ctx.Err()
}

func (a *app) fanOut(ev netfam.Event) {
	a.mu.Lock()
	peers := make([]*broker.Peer, 0, len(a.peers))
	for p := range a.peers {
		peers = append(peers, p)
	}
	a.mu.Unlock()

	for _, p := range peers {
		var err error
		switch ev.Kind {
		case netfam.VRFUp:
			tableID, _ := a.resolver.VRFLive(ev.Name)
			err = p.NotifyVRFUp(ev.Name, tableID)
		case netfam.VRFDown:
			err = p.NotifyVRFDown(ev.Name)
		case netfam.InterfaceUp:
			err = p.NotifyInterfaceUp(ev.Name)
			a.reannounceNexthops(p)
		case netfam.InterfaceDown:
			err = p.NotifyInterfaceDown(ev.Name)
		}
		if err != nil {
			a.log.WithError(err).Warn("broker: notify failed")
		}
	}
}

// reannounceNexthops re-sends NEXTHOP_UPDATE for every address p
// registered, on the theory that an interface coming up is the only
// signal this core has that a previously unresolved nexthop might now
// resolve (remote-SID / full ND resolution is out of scope, spec.md §1
// Non-goals).
func (a *app) reannounceNexthops(p *broker.Peer) {
	a.mu.Lock()
	var mine []netip.Addr
	for addr, ps := range a.nexthops {
		for _, q := range ps {
			if q == p {
				mine = append(mine, addr)
			}
		}
	}
	a.mu.Unlock()
	for _, addr := range mine {
		if err := p.NotifyNexthopUpdate(addr); err != nil {
			a.log.WithError(err).Warn("broker: nexthop re-announce failed")
		}
	}
}

// --- broker.ServerHandler ----------------------------------------------

func (a *app) HandleAddLocalSID(peer *broker.Peer, desc srv6.SIDDescriptor) {
	outcome := a.mirrorRoute(unix.RTM_NEWROUTE, desc)
	a.mu.Lock()
	a.routes[desc.Address] = &installedRoute{Address: desc.Address, Behavior: desc.Behavior, OIF: desc.OIF, Sent: outcome == broker.OutcomeInstalled}
	a.mu.Unlock()
	if err := peer.NotifyRouteOwner(netip.AddrFrom16(desc.Address).Unmap(), outcome); err != nil {
		a.log.WithError(err).Warn("broker: route_notify_owner failed")
	}
}

func (a *app) HandleDelLocalSID(peer *broker.Peer, desc srv6.SIDDescriptor) {
	outcome := a.mirrorRoute(unix.RTM_DELROUTE, desc)
	a.mu.Lock()
	delete(a.routes, desc.Address)
	a.mu.Unlock()
	if err := peer.NotifyRouteOwner(netip.AddrFrom16(desc.Address).Unmap(), outcome); err != nil {
		a.log.WithError(err).Warn("broker: route_notify_owner failed")
	}
}

func (a *app) HandleNexthopRegister(peer *broker.Peer, addr netip.Addr) {
	a.mu.Lock()
	a.nexthops[addr] = append(a.nexthops[addr], peer)
	a.mu.Unlock()
}

func (a *app) HandleNexthopUnregister(peer *broker.Peer, addr netip.Addr) {
	a.mu.Lock()
	ps := a.nexthops[addr]
	filtered := ps[:0]
	for _, q := range ps {
		if q != peer {
			filtered = append(filtered, q)
		}
	}
	a.nexthops[addr] = filtered
	a.mu.Unlock()
}

// mirrorRoute encodes desc as one FPM route message and writes it to the
// FPM connection (spec.md §4.7). It returns the ROUTE_NOTIFY_OWNER
// outcome to report back to the declaring peer.
func (a *app) mirrorRoute(msgType uint16, desc srv6.SIDDescriptor) broker.Outcome {
	oif, ok := a.resolver.InterfaceIndex(desc.OIF)
	if !ok {
		if msgType == unix.RTM_NEWROUTE {
			return broker.OutcomeFailInstall
		}
		return broker.OutcomeRemoveFail
	}

	localSID := &fpm.LocalSIDEncap{Action: uint8(desc.Behavior.WireCode())}
	if desc.Flavor.NextCSID {
		localSID.BlockLen = uint8(desc.Flavor.BlockLen)
		localSID.NodeLen = uint8(desc.Flavor.NodeLen)
	}
	if desc.Behavior.RequiresVRF() {
		localSID.VRFName = desc.VRFName
	}
	if desc.Behavior.RequiresAdjacency() && desc.AdjV6.Is6() {
		localSID.NH6 = desc.AdjV6
	}

	a.mu.Lock()
	a.seq++
	seq := a.seq
	a.mu.Unlock()

	dst := netip.PrefixFrom(netip.AddrFrom16(desc.Address), 128)
	msg := fpm.RouteMessage{
		Type:      msgType,
		Seq:       seq,
		Dst:       dst,
		Table:     desc.TableID,
		Protocol:  unix.RTPROT_ZEBRA,
		Scope:     unix.RT_SCOPE_UNIVERSE,
		RouteType: unix.RTN_UNICAST,
		Nexthops:  []fpm.Nexthop{{OIF: oif}},
		LocalSID:  localSID,
	}

	buf := make([]byte, 512)
	n := fpm.EncodeRoute(buf, msg)
	if n <= 0 {
		a.log.WithField("sid", desc.Address).Warn("fpm: encode failed")
		if msgType == unix.RTM_NEWROUTE {
			return broker.OutcomeFailInstall
		}
		return broker.OutcomeRemoveFail
	}
	if _, err := a.fpmConn.Write(buf[:n]); err != nil {
		a.log.WithError(err).Warn("fpm: write failed")
		if msgType == unix.RTM_NEWROUTE {
			return broker.OutcomeFailInstall
		}
		return broker.OutcomeRemoveFail
	}
	if msgType == unix.RTM_NEWROUTE {
		return broker.OutcomeInstalled
	}
	return broker.OutcomeRemoved
}

// showRoutesCommand implements `ribd show-routes` (SPEC_FULL.md §6.2).
type showRoutesCommand struct{ app *app }

func (*showRoutesCommand) Name() string     { return "show-routes" }
func (*showRoutesCommand) Synopsis() string { return "print every route ribd has mirrored to the FPM" }
func (*showRoutesCommand) Usage() string {
	return "show-routes:\n  print every local SID currently mirrored to the FPM.\n"
}
func (*showRoutesCommand) SetFlags(f *flag.FlagSet) {}
func (c *showRoutesCommand) Execute(_ context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	c.app.mu.Lock()
	defer c.app.mu.Unlock()
	for _, r := range c.app.routes {
		fmt.Printf("%x\t%s\tif=%s\tinstalled=%v\n", r.Address, r.Behavior.DisplayString(), r.OIF, r.Sent)
	}
	return subcommands.ExitSuccess
}
