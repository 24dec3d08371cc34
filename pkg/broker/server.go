package broker

import (
	"fmt"
	"net"
	"net/netip"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/kernelcarrier/srv6d/pkg/srv6"
)

// ServerHandler receives the inbound half of the broker protocol as seen
// from ribd: the ADD/DEL_LOCALSID and nexthop registration requests every
// connected staticd or isisd sends (spec.md §1 "ribd ... owns the
// forwarding-plane relationship", §4.6).
type ServerHandler interface {
	HandleAddLocalSID(peer *Peer, desc srv6.SIDDescriptor)
	HandleDelLocalSID(peer *Peer, desc srv6.SIDDescriptor)
	HandleNexthopRegister(peer *Peer, addr netip.Addr)
	HandleNexthopUnregister(peer *Peer, addr netip.Addr)
}

// Peer is one accepted broker connection, from ribd's point of view: the
// server-side counterpart of Client. It decodes inbound ADD/DEL_LOCALSID
// and nexthop-registration frames and sends outbound VRF/interface/nexthop
// notifications and ROUTE_NOTIFY_OWNER acks back to the one client that
// dialed in.
type Peer struct {
	conn net.Conn
	log  *logrus.Entry

	mu sync.Mutex // serializes frame writes only; reads happen on Run's goroutine
}

// NewPeer wraps an accepted connection.
func NewPeer(conn net.Conn, log *logrus.Entry) *Peer {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Peer{conn: conn, log: log}
}

// RemoteAddr identifies the peer for logging; Unix sockets report the
// socket path, which is typically empty for SOCK_STREAM clients.
func (p *Peer) RemoteAddr() net.Addr { return p.conn.RemoteAddr() }

// NotifyVRFUp and NotifyVRFDown report a VRF's lifecycle transition
// (spec.md §8 scenario 2).
func (p *Peer) NotifyVRFUp(name string, tableID int) error {
	return p.send(MsgVRFUp, encodeVRFUp(name, tableID))
}
func (p *Peer) NotifyVRFDown(name string) error {
	return p.send(MsgVRFDown, encodeName(name))
}

// NotifyInterfaceUp and NotifyInterfaceDown report an interface's
// lifecycle transition (spec.md §8 scenario 1).
func (p *Peer) NotifyInterfaceUp(name string) error {
	return p.send(MsgInterfaceUp, encodeName(name))
}
func (p *Peer) NotifyInterfaceDown(name string) error {
	return p.send(MsgInterfaceDown, encodeName(name))
}

// NotifyNexthopUpdate reports resolution of a registered nexthop.
func (p *Peer) NotifyNexthopUpdate(addr netip.Addr) error {
	return p.send(MsgNexthopUpdate, encodeNexthopUpdate(addr))
}

// NotifyRouteOwner reports the install/remove outcome for a route ribd
// mirrored to the FPM on this peer's behalf (spec.md §6, §8 scenario 6).
func (p *Peer) NotifyRouteOwner(addr netip.Addr, outcome Outcome) error {
	return p.send(MsgRouteNotifyOwner, encodeRouteNotifyOwner(addr, outcome))
}

func (p *Peer) send(typ MessageType, payload []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return writeFrame(p.conn, typ, payload)
}

// Run drains inbound frames from this peer until the connection closes or
// fails, dispatching ADD/DEL_LOCALSID and nexthop-registration requests to
// handler. It returns the error that ended the loop.
func (p *Peer) Run(handler ServerHandler) error {
	for {
		f, err := readFrame(p.conn)
		if err != nil {
			return err
		}
		if err := p.dispatch(f, handler); err != nil {
			p.log.WithError(err).Warn("broker: dropping malformed frame from peer")
		}
	}
}

func (p *Peer) dispatch(f frame, handler ServerHandler) error {
	switch f.typ {
	case MsgAddLocalSID:
		desc, err := decodeAddLocalSID(f.payload)
		if err != nil {
			return err
		}
		handler.HandleAddLocalSID(p, desc)
	case MsgDelLocalSID:
		desc, err := decodeDelLocalSID(f.payload)
		if err != nil {
			return err
		}
		handler.HandleDelLocalSID(p, desc)
	case MsgNexthopRegister:
		addr, err := decodeNexthopUpdate(f.payload)
		if err != nil {
			return err
		}
		handler.HandleNexthopRegister(p, addr)
	case MsgNexthopUnregister:
		addr, err := decodeNexthopUpdate(f.payload)
		if err != nil {
			return err
		}
		handler.HandleNexthopUnregister(p, addr)
	default:
		return fmt.Errorf("broker: unexpected inbound message type %d from peer", f.typ)
	}
	return nil
}

// Close closes the underlying connection.
func (p *Peer) Close() error { return p.conn.Close() }

// Server accepts broker connections from staticd/isisd clients. Each
// accepted connection becomes a Peer, handed to onAccept before its read
// loop starts so the caller can register it (e.g. to fan out VRF/interface
// notifications to every connected peer).
type Server struct {
	listener net.Listener
	log      *logrus.Entry
}

// NewServer wraps an already-bound listener, typically
// net.Listen("unix", path).
func NewServer(listener net.Listener, log *logrus.Entry) *Server {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Server{listener: listener, log: log}
}

// Serve accepts connections until the listener closes, running each
// peer's read loop in its own goroutine. onAccept is called synchronously
// before the peer's loop starts, and onClose once the loop ends.
func (s *Server) Serve(handler ServerHandler, onAccept func(*Peer), onClose func(*Peer)) error {
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			return err
		}
		peer := NewPeer(conn, s.log)
		if onAccept != nil {
			onAccept(peer)
		}
		go func() {
			err := peer.Run(handler)
			s.log.WithError(err).Info("broker: peer disconnected")
			if onClose != nil {
				onClose(peer)
			}
		}()
	}
}

// Close stops accepting new connections.
func (s *Server) Close() error { return s.listener.Close() }
