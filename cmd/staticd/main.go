// Command staticd is the static-routes daemon: it loads the declared
// `[[static_sids]]` table, drives it through the Installation Controller,
// and keeps one Forwarding Broker Client connection open (spec.md §1,
// §4.3, §4.5).
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
	"github.com/kernelcarrier/srv6d/pkg/netfam"
	"github.com/kernelcarrier/srv6d/pkg/srv6"
)

var (
	configPath  = flag.String("config", "/etc/srv6d/staticd.toml", "path to the TOML configuration file")
	brokerSock  = flag.String("broker-socket", "/run/srv6d/broker.sock", "forwarding broker Unix domain socket")
	pidFile     = flag.String("pid-file", "/run/srv6d/staticd.pid", "exclusive PID-file lock path")
	sendRateRPS = flag.Float64("send-rate", 50, "rate of the controller's send limiter; sends are neither delayed nor dropped by it")
)

type app struct {
	log     *logrus.Entry
	table   *srv6.StaticTable
	ctrl    *srv6.Controller
	cfgPath string
}

func main() {
	subcommands.Register(subcommands.HelpCommand(), "")
	subcommands.Register(subcommands.FlagsCommand(), "")
	subcommands.Register(subcommands.CommandsCommand(), "")

	flag.Parse()

	d, err := daemonutil.New("staticd", *pidFile)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	resolver := netfam.NewResolver()
	table := srv6.NewStaticTable()
	ctrl := srv6.NewController(resolver, nil /* dispatcher attached below */, *sendRateRPS, d.Log)
	ctrl.AttachStaticTable(table)
	table.SetObserver(ctrl)

	a := &app{log: d.Log, table: table, ctrl: ctrl, cfgPath: *configPath}

	subcommands.Register(&showSIDsCommand{app: a}, "")
	subcommands.Register(&reloadCommand{app: a}, "")

	ctx := d.Context()

	f, err := config.Load(*configPath)
	if err != nil {
		d.Log.WithError(err).Fatal("loading configuration")
	}
	if err := config.Apply(f, srv6.NewRegistry(), table); err != nil {
		d.Log.WithError(err).Fatal("applying configuration")
	}

	d.Go(func(ctx context.Context) error {
		return runBrokerClient(ctx, d, a)
	})

	d.Ready()
	d.Log.Info("staticd ready")

	if flag.NArg() > 0 {
		os.Exit(int(subcommands.Execute(ctx)))
	}
	if err := d.Wait(); err != nil {
		d.Log.WithError(err).Fatal("daemon exited with error")
	}
}

func runBrokerClient(ctx context.Context, d *daemonutil.Daemon, a *app) error {
	rc := broker.NewReconnectingClient(func() (net.Conn, error) {
		return net.Dial("unix", *brokerSock)
	}, a.ctrl, a, d.Log, a.ctrl)
	rc.OnConnect(func(c *broker.Client) { a.ctrl.AttachDispatcher(c) })

	go func() {
		<-ctx.Done()
		rc.Stop()
	}()
	rc.Run()
	return nil
}

// HandleRouteNotifyOwner implements broker.RouteOwnerSink (spec.md §6,
// §8 scenario 6): a FAIL_INSTALL/REMOVE_FAIL/BETTER_ADMIN_WON outcome
// means ribd's forwarding-plane state no longer matches SENT_TO_BROKER,
// so the flag is dropped to reflect reality. This never re-dispatches;
// the next qualifying resource event or Resync is what retries.
func (a *app) HandleRouteNotifyOwner(addr netip.Addr, outcome broker.Outcome) {
	switch outcome {
	case broker.OutcomeFailInstall, broker.OutcomeRemoveFail, broker.OutcomeBetterAdminWon:
	default:
		return
	}
	sid, ok := a.table.Lookup(addr.As16())
	if !ok || !sid.Sent {
		return
	}
	sid.Sent = false
	a.log.WithField("sid", sid.Address).WithField("outcome", outcome).Warn("route_notify_owner: dropping to not-installed")
}

// showSIDsCommand implements `staticd show-sids` (SPEC_FULL.md §6.2).
type showSIDsCommand struct{ app *app }

func (*showSIDsCommand) Name() string             { return "show-sids" }
func (*showSIDsCommand) Synopsis() string          { return "print the declared static SID table" }
func (*showSIDsCommand) Usage() string             { return "show-sids:\n  print every declared static SID.\n" }
func (*showSIDsCommand) SetFlags(f *flag.FlagSet)  {}
func (c *showSIDsCommand) Execute(_ context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	for _, s := range c.app.table.All() {
		fmt.Printf("%x\t%s\tvrf=%s\tif=%s\tvalid=%v\tsent=%v\n",
			s.Address, s.Behavior.DisplayString(), s.VRFName, s.IfName, s.Valid, s.Sent)
	}
	return subcommands.ExitSuccess
}

// reloadCommand implements `staticd reload`: re-reads the config file
// and re-applies it, relying on every config operation's idempotence
// (spec.md §6 "each operation is idempotent on the resulting state").
type reloadCommand struct{ app *app }

func (*reloadCommand) Name() string            { return "reload" }
func (*reloadCommand) Synopsis() string         { return "re-read and re-apply the configuration file" }
func (*reloadCommand) Usage() string            { return "reload:\n  re-read the configuration file.\n" }
func (*reloadCommand) SetFlags(f *flag.FlagSet) {}
func (c *reloadCommand) Execute(_ context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	f, err := config.Load(c.app.cfgPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitFailure
	}
	if err := config.Apply(f, srv6.NewRegistry(), c.app.table); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitFailure
	}
	return subcommands.ExitSuccess
}
