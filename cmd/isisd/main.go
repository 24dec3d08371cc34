// Command isisd is the IS-IS daemon: it owns per-area SRv6 locators,
// allocates End.X SIDs from link-state adjacencies, and keeps one
// Forwarding Broker Client connection open (spec.md §1, §4.2, §4.4,
// §4.5). It does not speak IS-IS on the wire — adjacency lifecycle is
// driven off interface liveness (DESIGN.md, "Open Question decisions") and
// SRv6 Locator TLV bytes are produced by pkg/isistlv for show-locators,
// not flooded.
package main

import (
	"context"
	"flag"
	"fmt"
	"net"
	"net/netip"
	"os"

	"github.com/google/subcommands"
	"github.com/sirupsen/logrus"

	"github.com/kernelcarrier/srv6d/pkg/broker"
	"github.com/kernelcarrier/srv6d/pkg/config"
	"github.com/kernelcarrier/srv6d/pkg/daemonutil"
	"github.com/kernelcarrier/srv6d/pkg/isistlv"
	"github.com/kernelcarrier/srv6d/pkg/netfam"
	"github.com/kernelcarrier/srv6d/pkg/srv6"
)

var (
	configPath  = flag.String("config", "/etc/srv6d/isisd.toml", "path to the TOML configuration file")
	brokerSock  = flag.String("broker-socket", "/run/srv6d/broker.sock", "forwarding broker Unix domain socket")
	pidFile     = flag.String("pid-file", "/run/srv6d/isisd.pid", "exclusive PID-file lock path")
	sendRateRPS = flag.Float64("send-rate", 50, "rate of the controller's send limiter; sends are neither delayed nor dropped by it")
)

type app struct {
	log  *logrus.Entry
	ctrl *srv6.Controller

	areas map[string]*srv6.Area
	mgrs  map[string]*srv6.AdjacencyManager

	adjacencies   map[string]*srv6.Adjacency
	adjacencyArea map[string]string   // adjacency ID -> area ID
	byInterface   map[string][]string // ifname -> adjacency IDs
}

func main() {
	subcommands.Register(subcommands.HelpCommand(), "")
	subcommands.Register(subcommands.FlagsCommand(), "")
	subcommands.Register(subcommands.CommandsCommand(), "")

	flag.Parse()

	d, err := daemonutil.New("isisd", *pidFile)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	resolver := netfam.NewResolver()
	ctrl := srv6.NewController(resolver, nil /* dispatcher attached on connect */, *sendRateRPS, d.Log)

	a := &app{
		log:           d.Log,
		ctrl:          ctrl,
		areas:         map[string]*srv6.Area{},
		mgrs:          map[string]*srv6.AdjacencyManager{},
		adjacencies:   map[string]*srv6.Adjacency{},
		adjacencyArea: map[string]string{},
		byInterface:   map[string][]string{},
	}

	subcommands.Register(&showLocatorsCommand{app: a}, "")
	subcommands.Register(&showAdjacencySIDsCommand{app: a}, "")
	subcommands.Register(&reloadCommand{app: a}, "")

	ctx := d.Context()

	if err := a.loadConfig(*configPath); err != nil {
		d.Log.WithError(err).Fatal("loading configuration")
	}

	d.Go(func(ctx context.Context) error {
		return runBrokerClient(ctx, d, a)
	})
	d.Go(func(ctx context.Context) error {
		return a.watchInterfaces(ctx, resolver)
	})

	d.Ready()
	d.Log.Info("isisd ready")

	if flag.NArg() > 0 {
		os.Exit(int(subcommands.Execute(ctx)))
	}
	if err := d.Wait(); err != nil {
		d.Log.WithError(err).Fatal("daemon exited with error")
	}
}

// loadConfig (re)builds every area, its Adjacency-SID Manager, and its
// declared adjacencies from the TOML file at path. On a later reload an
// existing area keeps its manager and adjacencies and only gains the
// locators (and chunks) the file newly lists; freshly-seen area and
// adjacency IDs are created (matching §6's idempotent-reapply contract).
func (a *app) loadConfig(path string) error {
	f, err := config.LoadIsis(path)
	if err != nil {
		return err
	}
	for _, ac := range f.Areas {
		area, ok := a.areas[ac.ID]
		if !ok {
			area = srv6.NewArea(ac.ID)
			a.areas[ac.ID] = area
		}
		if err := config.ApplyAreaLocators(ac, area.Locators); err != nil {
			return err
		}
		for _, loc := range area.Locators.Locators() {
			if _, err := area.Locators.AllocChunk(loc.Name, ac.OwnerProto); err != nil {
				return err
			}
		}
		if _, ok := a.mgrs[ac.ID]; !ok {
			flavor, err := config.FlavorBehavior(ac.Flavor)
			if err != nil {
				return err
			}
			mgr := srv6.NewAdjacencyManager(area, ac.OwnerProto, flavor)
			mgr.SetObserver(a.ctrl)
			area.Locators.SetObserver(mgr)
			a.mgrs[ac.ID] = mgr
		}
	}
	for _, adjc := range f.Adjacencies {
		if _, ok := a.adjacencies[adjc.ID]; ok {
			continue
		}
		neighbor, err := config.ParseNeighborV6(adjc.NeighborV6)
		if err != nil {
			return err
		}
		circuit, err := config.ParseCircuit(adjc.Circuit)
		if err != nil {
			return err
		}
		adj := &srv6.Adjacency{
			ID:         adjc.ID,
			IfName:     adjc.IfName,
			NeighborV6: neighbor,
			Circuit:    circuit,
			HasIPv6:    true,
		}
		a.adjacencies[adjc.ID] = adj
		a.adjacencyArea[adjc.ID] = adjc.Area
		a.byInterface[adjc.IfName] = append(a.byInterface[adjc.IfName], adjc.ID)
	}
	return nil
}

// watchInterfaces drives every declared adjacency's lifecycle off real
// interface up/down transitions (DESIGN.md, "Open Question decisions").
func (a *app) watchInterfaces(ctx context.Context, resolver *netfam.Resolver) error {
	events, err := resolver.Watch(ctx)
	if err != nil {
		return err
	}
	for ev := range events {
		switch ev.Kind {
		case netfam.InterfaceUp:
			a.adjacencyUp(ev.Name)
		case netfam.InterfaceDown:
			a.adjacencyDown(ev.Name)
		}
	}
	return ctx.Err()
}

func (a *app) adjacencyUp(ifName string) {
	for _, id := range a.byInterface[ifName] {
		adj, mgr := a.adjacencyAndManager(id)
		if mgr == nil {
			continue
		}
		mgr.AdjUp(adj)
		if adj.HasIPv6 {
			if err := mgr.AdjIPv6Enabled(adj); err != nil {
				a.log.WithField("adjacency", adj.ID).WithError(err).Warn("adjacency-sid allocation failed")
			}
		}
	}
}

func (a *app) adjacencyDown(ifName string) {
	for _, id := range a.byInterface[ifName] {
		adj, mgr := a.adjacencyAndManager(id)
		if mgr == nil {
			continue
		}
		mgr.AdjDown(adj)
	}
}

func (a *app) adjacencyAndManager(id string) (*srv6.Adjacency, *srv6.AdjacencyManager) {
	adj, ok := a.adjacencies[id]
	if !ok {
		return nil, nil
	}
	return adj, a.mgrs[a.adjacencyArea[id]]
}

func runBrokerClient(ctx context.Context, d *daemonutil.Daemon, a *app) error {
	resyncers := make([]broker.Resyncer, 0, len(a.mgrs))
	for _, mgr := range a.mgrs {
		resyncers = append(resyncers, mgr)
	}
	resyncers = append(resyncers, a.ctrl)

	rc := broker.NewReconnectingClient(func() (net.Conn, error) {
		return net.Dial("unix", *brokerSock)
	}, a, a, d.Log, resyncers...)
	rc.OnConnect(func(c *broker.Client) { a.ctrl.AttachDispatcher(c) })

	go func() {
		<-ctx.Done()
		rc.Stop()
	}()
	rc.Run()
	return nil
}

// --- broker.NotificationSink ---------------------------------------------
//
// isisd has no VRF- or nexthop-gated Static SIDs, so only interface
// events matter, and those are already driven directly off pkg/netfam in
// watchInterfaces; a broker-relayed copy would double-fire the same
// transition, so these are no-ops, kept to satisfy the interface.

func (a *app) HandleVRFUp(name string)             {}
func (a *app) HandleVRFDown(name string)           {}
func (a *app) HandleInterfaceUp(name string)       {}
func (a *app) HandleInterfaceDown(name string)     {}
func (a *app) HandleNexthopUpdate(addr netip.Addr) {}

// HandleRouteNotifyOwner implements broker.RouteOwnerSink (spec.md §6,
// §8 scenario 6): a FAIL_INSTALL/REMOVE_FAIL/BETTER_ADMIN_WON outcome
// for one of isisd's End.X SIDs drops it to not-installed, without
// re-dispatching; only the Resync that follows a broker reconnect sends
// it again.
func (a *app) HandleRouteNotifyOwner(addr netip.Addr, outcome broker.Outcome) {
	switch outcome {
	case broker.OutcomeFailInstall, broker.OutcomeRemoveFail, broker.OutcomeBetterAdminWon:
	default:
		return
	}
	address := addr.As16()
	for _, area := range a.areas {
		sid, ok := area.LookupEndX(address)
		if !ok || !sid.Sent {
			continue
		}
		sid.Sent = false
		a.log.WithField("sid", sid.Address).WithField("outcome", outcome).Warn("route_notify_owner: dropping to not-installed")
		return
	}
}

// showLocatorsCommand implements `isisd show-locators` (SPEC_FULL.md
// §6.2): one line per locator, with its SRv6 Locator TLV byte length as
// a sanity check that TLV production actually runs.
type showLocatorsCommand struct{ app *app }

func (*showLocatorsCommand) Name() string     { return "show-locators" }
func (*showLocatorsCommand) Synopsis() string { return "print every area's defined locators" }
func (*showLocatorsCommand) Usage() string {
	return "show-locators:\n  print every area's locators and their TLV encoding size.\n"
}
func (*showLocatorsCommand) SetFlags(f *flag.FlagSet) {}
func (c *showLocatorsCommand) Execute(_ context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	for areaID, area := range c.app.areas {
		for _, loc := range area.Locators.Locators() {
			tlv := isistlv.EncodeLocatorTLV(loc, 0)
			fmt.Printf("area=%s\tlocator=%s\tprefix=%s\tup=%v\ttlv_bytes=%d\n",
				areaID, loc.Name, loc.Prefix, loc.Up, len(tlv))
		}
	}
	return subcommands.ExitSuccess
}

// showAdjacencySIDsCommand implements `isisd show-adjacency-sids`.
type showAdjacencySIDsCommand struct{ app *app }

func (*showAdjacencySIDsCommand) Name() string     { return "show-adjacency-sids" }
func (*showAdjacencySIDsCommand) Synopsis() string { return "print every advertised End.X SID" }
func (*showAdjacencySIDsCommand) Usage() string {
	return "show-adjacency-sids:\n  print every End.X SID currently advertised.\n"
}
func (*showAdjacencySIDsCommand) SetFlags(f *flag.FlagSet) {}
func (c *showAdjacencySIDsCommand) Execute(_ context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	for areaID, area := range c.app.areas {
		for _, sid := range area.EndXSIDs() {
			fmt.Printf("area=%s\t%x\t%s\tneighbor=%s\tif=%s\tsent=%v\n",
				areaID, sid.Address, sid.Behavior.DisplayString(), sid.NeighborV6, sid.IfName, sid.Sent)
		}
	}
	return subcommands.ExitSuccess
}

// reloadCommand implements `isisd reload`.
type reloadCommand struct{ app *app }

func (*reloadCommand) Name() string             { return "reload" }
func (*reloadCommand) Synopsis() string         { return "re-read and re-apply the configuration file" }
func (*reloadCommand) Usage() string            { return "reload:\n  re-read the configuration file.\n" }
func (*reloadCommand) SetFlags(f *flag.FlagSet) {}
func (c *reloadCommand) Execute(_ context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if err := c.app.loadConfig(*configPath); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitFailure
	}
	return subcommands.ExitSuccess
}
