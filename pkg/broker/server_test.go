package broker

import (
	"net"
	"net/netip"
	"testing"

	"github.com/kernelcarrier/srv6d/pkg/srv6"
)

type recordingHandler struct {
	added  []srv6.SIDDescriptor
	nhRegs []netip.Addr
}

func (h *recordingHandler) HandleAddLocalSID(peer *Peer, desc srv6.SIDDescriptor) {
	h.added = append(h.added, desc)
}
func (h *recordingHandler) HandleDelLocalSID(peer *Peer, desc srv6.SIDDescriptor) {}
func (h *recordingHandler) HandleNexthopRegister(peer *Peer, addr netip.Addr) {
	h.nhRegs = append(h.nhRegs, addr)
}
func (h *recordingHandler) HandleNexthopUnregister(peer *Peer, addr netip.Addr) {}

func TestServerDispatchesAddLocalSIDFromPeer(t *testing.T) {
	clientConn, serverConn := net.Pipe()
	defer clientConn.Close()

	peer := NewPeer(serverConn, nil)
	handler := &recordingHandler{}
	go peer.Run(handler)

	client := NewClient(clientConn, nil)
	desc := srv6.SIDDescriptor{Address: [16]byte{0x20, 0x01}, Behavior: srv6.End, OIF: "eth0"}
	if err := client.AddLocalSID(desc); err != nil {
		t.Fatalf("AddLocalSID: %v", err)
	}

	waitFor(t, func() bool { return len(handler.added) == 1 })
	if handler.added[0].Address != desc.Address {
		t.Errorf("got address %x, want %x", handler.added[0].Address, desc.Address)
	}
}

func TestServerNotifiesPeerOfVRFUp(t *testing.T) {
	clientConn, serverConn := net.Pipe()
	defer clientConn.Close()

	peer := NewPeer(serverConn, nil)
	go peer.Run(&recordingHandler{})

	sink := &recordingSink{}
	client := NewClient(clientConn, nil)
	go client.Run(sink, nil)

	if err := peer.NotifyVRFUp("blue", 100); err != nil {
		t.Fatalf("NotifyVRFUp: %v", err)
	}

	waitFor(t, func() bool { return len(sink.vrfUp) == 1 })
}

func TestServerServeAcceptsAndDispatches(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()

	srv := NewServer(ln, nil)
	handler := &recordingHandler{}
	accepted := make(chan *Peer, 1)
	go srv.Serve(handler, func(p *Peer) { accepted <- p }, nil)

	conn, err := net.Dial("tcp", ln.Addr().String())
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	client := NewClient(conn, nil)
	desc := srv6.SIDDescriptor{Address: [16]byte{0x30}, Behavior: srv6.End, OIF: "eth1"}
	if err := client.AddLocalSID(desc); err != nil {
		t.Fatalf("AddLocalSID: %v", err)
	}

	peer := <-accepted
	waitFor(t, func() bool { return len(handler.added) == 1 })
	if peer == nil {
		t.Fatal("expected a non-nil accepted peer")
	}
}
