package broker

import (
	"net"
	"net/netip"
	"testing"
	"time"

	"github.com/kernelcarrier/srv6d/pkg/srv6"
)

type recordingSink struct {
	vrfUp, vrfDown             []string
	interfaceUp, interfaceDown []string
	nexthop                    []netip.Addr
}

func (s *recordingSink) HandleVRFUp(name string)             { s.vrfUp = append(s.vrfUp, name) }
func (s *recordingSink) HandleVRFDown(name string)           { s.vrfDown = append(s.vrfDown, name) }
func (s *recordingSink) HandleInterfaceUp(name string)       { s.interfaceUp = append(s.interfaceUp, name) }
func (s *recordingSink) HandleInterfaceDown(name string)     { s.interfaceDown = append(s.interfaceDown, name) }
func (s *recordingSink) HandleNexthopUpdate(addr netip.Addr) { s.nexthop = append(s.nexthop, addr) }

func TestClientAddLocalSIDWritesFrame(t *testing.T) {
	serverConn, clientConn := net.Pipe()
	defer serverConn.Close()
	defer clientConn.Close()

	client := NewClient(clientConn, nil)
	done := make(chan error, 1)
	go func() {
		desc := srv6.SIDDescriptor{Address: [16]byte{0x20, 0x01}, Behavior: srv6.End, OIF: "eth0"}
		done <- client.AddLocalSID(desc)
	}()

	f, err := readFrame(serverConn)
	if err != nil {
		t.Fatalf("server readFrame: %v", err)
	}
	if f.typ != MsgAddLocalSID {
		t.Fatalf("type = %d, want MsgAddLocalSID", f.typ)
	}
	if err := <-done; err != nil {
		t.Fatalf("AddLocalSID: %v", err)
	}
}

func TestClientRunDispatchesNotifications(t *testing.T) {
	serverConn, clientConn := net.Pipe()
	defer serverConn.Close()
	defer clientConn.Close()

	client := NewClient(clientConn, nil)
	sink := &recordingSink{}
	runErr := make(chan error, 1)
	go func() { runErr <- client.Run(sink, nil) }()

	if err := writeFrame(serverConn, MsgVRFUp, encodeVRFUp("red", 100)); err != nil {
		t.Fatalf("writeFrame: %v", err)
	}
	if err := writeFrame(serverConn, MsgInterfaceUp, encodeName("eth0")); err != nil {
		t.Fatalf("writeFrame: %v", err)
	}

	deadline := time.After(2 * time.Second)
	for len(sink.vrfUp) == 0 || len(sink.interfaceUp) == 0 {
		select {
		case <-deadline:
			t.Fatalf("timed out waiting for dispatch, got %+v", sink)
		case <-time.After(time.Millisecond):
		}
	}
	if sink.vrfUp[0] != "red" {
		t.Errorf("vrfUp = %v, want [red]", sink.vrfUp)
	}
	if sink.interfaceUp[0] != "eth0" {
		t.Errorf("interfaceUp = %v, want [eth0]", sink.interfaceUp)
	}

	serverConn.Close()
	<-runErr
}
