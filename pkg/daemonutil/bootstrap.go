// Package daemonutil is the shared process bootstrap every daemon
// binary (staticd, isisd, ribd) goes through before touching the SRv6
// core: PID-file locking, systemd readiness/watchdog notification,
// structured logging, and goroutine supervision (SPEC_FULL.md §1.1,
// §6.3).
package daemonutil

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
	"github.com/gofrs/flock"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// Daemon bundles the process-lifetime resources one daemon binary
// needs: an exclusive PID-file lock, a cancellable context wired to
// SIGINT/SIGTERM, a supervised goroutine group, and a logger.
type Daemon struct {
	Log *logrus.Entry

	ctx   context.Context
	group *errgroup.Group
	lock  *flock.Flock
	stop  func()
}

// New acquires pidPath as an exclusive lock (refusing to start a second
// instance of the same daemon), builds a logrus logger with a
// daemon=name field attached to every entry, and wires a context cancelled on
// SIGINT/SIGTERM.
func New(name, pidPath string) (*Daemon, error) {
	lock := flock.New(pidPath)
	locked, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("daemonutil: locking %s: %w", pidPath, err)
	}
	if !locked {
		return nil, fmt.Errorf("daemonutil: %s already locked by another instance", pidPath)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	group, gctx := errgroup.WithContext(ctx)

	log := logrus.NewEntry(logrus.StandardLogger()).WithField("daemon", name)

	return &Daemon{
		Log:   log,
		ctx:   gctx,
		group: group,
		lock:  lock,
		stop:  stop,
	}, nil
}

// Context returns the context that is cancelled on SIGINT/SIGTERM or
// when any supervised goroutine returns an error (§5 "cancelled on
// SIGINT/SIGTERM").
func (d *Daemon) Context() context.Context { return d.ctx }

// Go runs fn as a supervised goroutine: the daemon's Wait call returns
// fn's error, and ctx is cancelled for every other goroutine in the
// group the moment one of them returns non-nil (§5; the broker client,
// ribd's broker server, and the netfam watchers each run this way).
func (d *Daemon) Go(fn func(ctx context.Context) error) {
	d.group.Go(func() error { return fn(d.ctx) })
}

// Ready tells systemd the daemon finished startup (config loaded,
// sockets open) and, if WATCHDOG_USEC is set, starts refreshing the
// watchdog on a ticker derived from it. Both calls are no-ops outside
// systemd (§6.3).
func (d *Daemon) Ready() {
	_, _ = daemon.SdNotify(false, daemon.SdNotifyReady)
	interval, err := daemon.SdWatchdogEnabled(false)
	if err != nil || interval == 0 {
		return
	}
	d.Go(func(ctx context.Context) error {
		ticker := time.NewTicker(interval / 2)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return nil
			case <-ticker.C:
				_, _ = daemon.SdNotify(false, daemon.SdNotifyWatchdog)
			}
		}
	})
}

// Wait blocks until every supervised goroutine has returned, then
// releases the PID-file lock. It returns the first non-nil error from
// the group, if any.
func (d *Daemon) Wait() error {
	err := d.group.Wait()
	d.stop()
	if unlockErr := d.lock.Unlock(); unlockErr != nil && err == nil {
		err = fmt.Errorf("daemonutil: unlocking pid file: %w", unlockErr)
	}
	_ = os.Remove(d.lock.Path())
	return err
}
