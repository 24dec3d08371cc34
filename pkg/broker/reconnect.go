package broker

import (
	"net"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/sirupsen/logrus"
)

// Resyncer is called once per reconnect; each implementation clears its
// own SENT flags and re-sends everything still valid (§5).
type Resyncer interface {
	Resync()
}

// Dialer opens a fresh connection to the broker, typically
// net.Dial("unix", path).
type Dialer func() (net.Conn, error)

// ReconnectingClient owns the broker socket's lifetime: it dials,
// serves Run until the connection drops, then backs off and redials,
// forever, until Stop is called.
type ReconnectingClient struct {
	dial      Dialer
	log       *logrus.Entry
	sink      NotificationSink
	owner     RouteOwnerSink
	resyncers []Resyncer

	onConnect func(*Client)

	stop chan struct{}

	current *Client
}

// OnConnect installs a hook run on every successful dial, before the
// resyncers — typically used to point a srv6.Controller's
// BrokerDispatcher at the freshly dialed Client.
func (r *ReconnectingClient) OnConnect(fn func(*Client)) { r.onConnect = fn }

// NewReconnectingClient builds a supervisor that keeps one broker
// connection alive. resyncers are called, in order, after every
// successful dial (and after the OnConnect hook).
func NewReconnectingClient(dial Dialer, sink NotificationSink, owner RouteOwnerSink, log *logrus.Entry, resyncers ...Resyncer) *ReconnectingClient {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &ReconnectingClient{
		dial:      dial,
		log:       log,
		sink:      sink,
		owner:     owner,
		resyncers: resyncers,
		stop:      make(chan struct{}),
	}
}

// Client returns the current underlying Client, or nil before the first
// successful dial. Safe to call only from the same goroutine driving
// Run, matching the rest of this package's single-writer discipline.
func (r *ReconnectingClient) Client() *Client { return r.current }

// Run dials, serves, and redials until Stop is called. It never returns
// until then, so callers run it in its own goroutine (typically inside
// the daemon's errgroup, per SPEC_FULL.md §5).
func (r *ReconnectingClient) Run() {
	b := backoff.NewExponentialBackOff()
	for {
		select {
		case <-r.stop:
			return
		default:
		}

		conn, err := r.dial()
		if err != nil {
			d := b.NextBackOff()
			if d == backoff.Stop {
				b.Reset()
				d = b.MaxInterval
			}
			r.log.WithError(err).WithField("retry_in", d).Warn("broker: dial failed")
			select {
			case <-time.After(d):
				continue
			case <-r.stop:
				return
			}
		}
		b.Reset()

		r.current = NewClient(conn, r.log)
		r.log.Info("broker: connected")
		if r.onConnect != nil {
			r.onConnect(r.current)
		}
		for _, rs := range r.resyncers {
			rs.Resync()
		}

		err = r.current.Run(r.sink, r.owner)
		r.log.WithError(err).Warn("broker: connection lost, reconnecting")
		r.current = nil
	}
}

// Stop ends Run's loop after its current attempt.
func (r *ReconnectingClient) Stop() { close(r.stop) }
