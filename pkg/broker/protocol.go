// Package broker implements the Forwarding Broker protocol (spec.md §4.6):
// the length-prefixed message stream staticd and isisd (Client) speak to
// ribd, the in-suite forwarding-plane broker (Server/Peer), over a Unix
// domain socket.
package broker

import (
	"encoding/binary"
	"fmt"
	"io"
	"net/netip"

	"github.com/kernelcarrier/srv6d/pkg/srv6"
)

// MessageType discriminates the frames carried on the broker socket
// (spec.md §6 "Broker protocol").
type MessageType uint8

const (
	MsgAddLocalSID MessageType = iota + 1
	MsgDelLocalSID
	MsgNexthopRegister
	MsgNexthopUnregister
	MsgRouteAdd
	MsgRouteDelete

	MsgVRFUp
	MsgVRFDown
	MsgInterfaceUp
	MsgInterfaceDown
	MsgNexthopUpdate
	MsgRouteNotifyOwner
)

// Outcome is the result code carried by a ROUTE_NOTIFY_OWNER frame
// (spec.md §6).
type Outcome uint8

const (
	OutcomeFailInstall Outcome = iota + 1
	OutcomeBetterAdminWon
	OutcomeInstalled
	OutcomeRemoved
	OutcomeRemoveFail
)

func (o Outcome) String() string {
	switch o {
	case OutcomeFailInstall:
		return "FAIL_INSTALL"
	case OutcomeBetterAdminWon:
		return "BETTER_ADMIN_WON"
	case OutcomeInstalled:
		return "INSTALLED"
	case OutcomeRemoved:
		return "REMOVED"
	case OutcomeRemoveFail:
		return "REMOVE_FAIL"
	default:
		return "UNKNOWN"
	}
}

// frame is one length-prefixed message: a uint32 big-endian length
// (covering type + payload), a one-byte MessageType, then the payload.
type frame struct {
	typ     MessageType
	payload []byte
}

func writeFrame(w io.Writer, typ MessageType, payload []byte) error {
	header := make([]byte, 5)
	binary.BigEndian.PutUint32(header, uint32(len(payload)+1))
	header[4] = byte(typ)
	if _, err := w.Write(header); err != nil {
		return err
	}
	if len(payload) == 0 {
		return nil
	}
	_, err := w.Write(payload)
	return err
}

func readFrame(r io.Reader) (frame, error) {
	header := make([]byte, 5)
	if _, err := io.ReadFull(r, header); err != nil {
		return frame{}, err
	}
	n := binary.BigEndian.Uint32(header)
	if n == 0 {
		return frame{}, fmt.Errorf("broker: zero-length frame")
	}
	payload := make([]byte, n-1)
	if len(payload) > 0 {
		if _, err := io.ReadFull(r, payload); err != nil {
			return frame{}, err
		}
	}
	return frame{typ: MessageType(header[4]), payload: payload}, nil
}

// --- payload encoding ------------------------------------------------------
//
// Every field is fixed-width or length-prefixed; strings carry a uint16
// byte count ahead of their bytes, matching the rest of this module's
// TLV conventions (see pkg/fpm for the bit-exact FPM sibling encoding).

type buf struct{ b []byte }

func (w *buf) u8(v uint8)   { w.b = append(w.b, v) }
func (w *buf) u16(v uint16) { w.b = binary.BigEndian.AppendUint16(w.b, v) }
func (w *buf) u32(v uint32) { w.b = binary.BigEndian.AppendUint32(w.b, v) }
func (w *buf) bytes16(v [16]byte) { w.b = append(w.b, v[:]...) }
func (w *buf) str(s string) {
	w.u16(uint16(len(s)))
	w.b = append(w.b, s...)
}
func (w *buf) addr(a netip.Addr) {
	if a.IsValid() {
		w.u8(1)
		w.bytes16(a.As16())
		return
	}
	w.u8(0)
}

type cursor struct {
	b   []byte
	off int
}

func (c *cursor) u8() (uint8, error) {
	if c.off+1 > len(c.b) {
		return 0, io.ErrUnexpectedEOF
	}
	v := c.b[c.off]
	c.off++
	return v, nil
}
func (c *cursor) u16() (uint16, error) {
	if c.off+2 > len(c.b) {
		return 0, io.ErrUnexpectedEOF
	}
	v := binary.BigEndian.Uint16(c.b[c.off:])
	c.off += 2
	return v, nil
}
func (c *cursor) u32() (uint32, error) {
	if c.off+4 > len(c.b) {
		return 0, io.ErrUnexpectedEOF
	}
	v := binary.BigEndian.Uint32(c.b[c.off:])
	c.off += 4
	return v, nil
}
func (c *cursor) bytes16() ([16]byte, error) {
	var out [16]byte
	if c.off+16 > len(c.b) {
		return out, io.ErrUnexpectedEOF
	}
	copy(out[:], c.b[c.off:c.off+16])
	c.off += 16
	return out, nil
}
func (c *cursor) str() (string, error) {
	n, err := c.u16()
	if err != nil {
		return "", err
	}
	if c.off+int(n) > len(c.b) {
		return "", io.ErrUnexpectedEOF
	}
	s := string(c.b[c.off : c.off+int(n)])
	c.off += int(n)
	return s, nil
}
func (c *cursor) addr() (netip.Addr, error) {
	present, err := c.u8()
	if err != nil {
		return netip.Addr{}, err
	}
	if present == 0 {
		return netip.Addr{}, nil
	}
	raw, err := c.bytes16()
	if err != nil {
		return netip.Addr{}, err
	}
	return netip.AddrFrom16(raw).Unmap(), nil
}

// encodeAddLocalSID writes the ADD_LOCALSID payload, including the
// context fields attached when the behavior requires them (spec.md §4.6): nexthops, table identifier,
// and the flavor descriptor.
func encodeAddLocalSID(desc srv6.SIDDescriptor) []byte {
	w := &buf{}
	w.bytes16(desc.Address)
	w.str(desc.OIF)
	w.u8(uint8(desc.Behavior.WireCode()))
	w.str(desc.VRFName)
	w.u32(uint32(desc.TableID))
	w.addr(desc.AdjV6)
	if desc.Flavor.NextCSID {
		w.u8(1)
		w.u8(uint8(desc.Flavor.BlockLen))
		w.u8(uint8(desc.Flavor.NodeLen))
	} else {
		w.u8(0)
	}
	return w.b
}

func decodeAddLocalSID(payload []byte) (srv6.SIDDescriptor, error) {
	var desc srv6.SIDDescriptor
	c := &cursor{b: payload}
	var err error
	if desc.Address, err = c.bytes16(); err != nil {
		return desc, err
	}
	if desc.OIF, err = c.str(); err != nil {
		return desc, err
	}
	action, err := c.u8()
	if err != nil {
		return desc, err
	}
	desc.Behavior = srv6.BehaviorFromWireCode(int(action))
	if desc.VRFName, err = c.str(); err != nil {
		return desc, err
	}
	tableID, err := c.u32()
	if err != nil {
		return desc, err
	}
	desc.TableID = int(tableID)
	if desc.AdjV6, err = c.addr(); err != nil {
		return desc, err
	}
	hasFlavor, err := c.u8()
	if err != nil {
		return desc, err
	}
	if hasFlavor == 1 {
		block, err := c.u8()
		if err != nil {
			return desc, err
		}
		node, err := c.u8()
		if err != nil {
			return desc, err
		}
		desc.Flavor = srv6.Flavor{NextCSID: true, BlockLen: int(block), NodeLen: int(node)}
	}
	return desc, nil
}

func encodeDelLocalSID(desc srv6.SIDDescriptor) []byte {
	w := &buf{}
	w.bytes16(desc.Address)
	w.str(desc.OIF)
	return w.b
}

func decodeDelLocalSID(payload []byte) (srv6.SIDDescriptor, error) {
	var desc srv6.SIDDescriptor
	c := &cursor{b: payload}
	var err error
	if desc.Address, err = c.bytes16(); err != nil {
		return desc, err
	}
	desc.OIF, err = c.str()
	return desc, err
}

func encodeName(name string) []byte {
	w := &buf{}
	w.str(name)
	return w.b
}

func decodeName(payload []byte) (string, error) {
	c := &cursor{b: payload}
	return c.str()
}

// encodeVRFUp's payload additionally carries the forwarding-plane table identifier
// (spec.md §8 scenario 2).
func encodeVRFUp(name string, tableID int) []byte {
	w := &buf{}
	w.str(name)
	w.u32(uint32(tableID))
	return w.b
}

func decodeVRFUp(payload []byte) (name string, tableID int, err error) {
	c := &cursor{b: payload}
	if name, err = c.str(); err != nil {
		return "", 0, err
	}
	t, err := c.u32()
	return name, int(t), err
}

func encodeNexthopUpdate(addr netip.Addr) []byte {
	w := &buf{}
	w.addr(addr)
	return w.b
}

func decodeNexthopUpdate(payload []byte) (netip.Addr, error) {
	c := &cursor{b: payload}
	return c.addr()
}

func encodeRouteNotifyOwner(addr netip.Addr, outcome Outcome) []byte {
	w := &buf{}
	w.addr(addr)
	w.u8(uint8(outcome))
	return w.b
}

func decodeRouteNotifyOwner(payload []byte) (netip.Addr, Outcome, error) {
	c := &cursor{b: payload}
	addr, err := c.addr()
	if err != nil {
		return addr, 0, err
	}
	o, err := c.u8()
	return addr, Outcome(o), err
}
