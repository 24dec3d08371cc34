package broker

import (
	"fmt"
	"net"
	"net/netip"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/kernelcarrier/srv6d/pkg/srv6"
)

// NotificationSink receives the inbound half of the broker protocol —
// VRF/interface lifecycle, nexthop resolution, and route-install acks —
// translated into the calls the Installation Controller expects (§4.6).
type NotificationSink interface {
	HandleVRFUp(name string)
	HandleVRFDown(name string)
	HandleInterfaceUp(name string)
	HandleInterfaceDown(name string)
	HandleNexthopUpdate(addr netip.Addr)
}

// RouteOwnerSink is notified of ROUTE_NOTIFY_OWNER outcomes for routes
// ribd mirrored to the FPM (§6, §8 scenario 6). It never triggers a
// spontaneous re-send; the caller decides what, if anything, to do.
type RouteOwnerSink interface {
	HandleRouteNotifyOwner(addr netip.Addr, outcome Outcome)
}

// Client is one Forwarding Broker Client connection. It implements
// srv6.BrokerDispatcher for outbound ADD_LOCALSID/DEL_LOCALSID and runs a
// read loop that demultiplexes inbound frames to a NotificationSink and
// an optional RouteOwnerSink.
//
// Per spec.md §5, every data-structure mutation driven by a notification
// must happen on the single command-loop goroutine; callers are expected
// to invoke Run from that goroutine, or to hop the decoded event onto it
// themselves before calling into srv6.Controller.
type Client struct {
	conn net.Conn
	log  *logrus.Entry

	mu sync.Mutex // serializes frame writes only; reads happen on Run's goroutine
}

// NewClient wraps an already-dialed connection (typically an AF_UNIX
// SOCK_STREAM socket to the broker).
func NewClient(conn net.Conn, log *logrus.Entry) *Client {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Client{conn: conn, log: log}
}

// AddLocalSID implements srv6.BrokerDispatcher.
func (c *Client) AddLocalSID(desc srv6.SIDDescriptor) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := writeFrame(c.conn, MsgAddLocalSID, encodeAddLocalSID(desc)); err != nil {
		return &srv6.BrokerSendFailure{Op: "add_localsid", Err: err}
	}
	return nil
}

// DelLocalSID implements srv6.BrokerDispatcher.
func (c *Client) DelLocalSID(desc srv6.SIDDescriptor) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := writeFrame(c.conn, MsgDelLocalSID, encodeDelLocalSID(desc)); err != nil {
		return &srv6.BrokerSendFailure{Op: "del_localsid", Err: err}
	}
	return nil
}

// RegisterNexthop and UnregisterNexthop send NEXTHOP_REGISTER /
// NEXTHOP_UNREGISTER. No code in this module calls them; End.X
// allocation does not wait on nexthop registration.
func (c *Client) RegisterNexthop(addr netip.Addr) error {
	return c.sendAddr(MsgNexthopRegister, addr)
}
func (c *Client) UnregisterNexthop(addr netip.Addr) error {
	return c.sendAddr(MsgNexthopUnregister, addr)
}

func (c *Client) sendAddr(typ MessageType, addr netip.Addr) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return writeFrame(c.conn, typ, encodeNexthopUpdate(addr))
}

// Run drains inbound frames until the connection closes or fails,
// dispatching each to sink (and owner, if non-nil, for
// ROUTE_NOTIFY_OWNER). It returns the error that ended the loop; a clean
// close by the peer surfaces from readFrame as io.EOF, so Run never
// returns nil.
func (c *Client) Run(sink NotificationSink, owner RouteOwnerSink) error {
	for {
		f, err := readFrame(c.conn)
		if err != nil {
			return err
		}
		if err := c.dispatch(f, sink, owner); err != nil {
			c.log.WithError(err).Warn("broker: dropping malformed frame")
		}
	}
}

func (c *Client) dispatch(f frame, sink NotificationSink, owner RouteOwnerSink) error {
	switch f.typ {
	case MsgVRFUp:
		name, _, err := decodeVRFUp(f.payload)
		if err != nil {
			return err
		}
		sink.HandleVRFUp(name)
	case MsgVRFDown:
		name, err := decodeName(f.payload)
		if err != nil {
			return err
		}
		sink.HandleVRFDown(name)
	case MsgInterfaceUp:
		name, err := decodeName(f.payload)
		if err != nil {
			return err
		}
		sink.HandleInterfaceUp(name)
	case MsgInterfaceDown:
		name, err := decodeName(f.payload)
		if err != nil {
			return err
		}
		sink.HandleInterfaceDown(name)
	case MsgNexthopUpdate:
		addr, err := decodeNexthopUpdate(f.payload)
		if err != nil {
			return err
		}
		sink.HandleNexthopUpdate(addr)
	case MsgRouteNotifyOwner:
		if owner == nil {
			return nil
		}
		addr, outcome, err := decodeRouteNotifyOwner(f.payload)
		if err != nil {
			return err
		}
		owner.HandleRouteNotifyOwner(addr, outcome)
	default:
		return fmt.Errorf("broker: unexpected inbound message type %d", f.typ)
	}
	return nil
}

// Close closes the underlying connection.
func (c *Client) Close() error { return c.conn.Close() }
