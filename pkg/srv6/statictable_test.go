package srv6

import "testing"

func TestStaticAddIdempotent(t *testing.T) {
	tbl := NewStaticTable()
	addr := [16]byte{0xfc, 0x00}
	s1 := tbl.Add(addr, End)
	s2 := tbl.Add(addr, EndT) // duplicate address: behavior argument ignored
	if s1 != s2 {
		t.Error("duplicate Add should return the existing descriptor")
	}
	if s1.Behavior != End {
		t.Errorf("existing descriptor behavior changed to %v", s1.Behavior)
	}
}

func TestStaticAttributeSetNotifiesObserver(t *testing.T) {
	tbl := NewStaticTable()
	var notified []*StaticSID
	tbl.SetObserver(staticObserverFunc{
		changed: func(s *StaticSID) { notified = append(notified, s) },
	})

	addr := [16]byte{0xfc, 0x00, 0x02}
	tbl.Add(addr, EndDT4)
	if err := tbl.SetAttribute(addr, Attribute{Kind: AttrVRF, VRFName: "red"}); err != nil {
		t.Fatalf("SetAttribute: %v", err)
	}
	if len(notified) != 2 { // once for Add, once for SetAttribute
		t.Fatalf("expected 2 notifications, got %d", len(notified))
	}
	sid, ok := tbl.Lookup(addr)
	if !ok || sid.VRFName != "red" {
		t.Errorf("Lookup after SetAttribute = %+v, ok=%v", sid, ok)
	}
}

func TestStaticDeleteIdempotent(t *testing.T) {
	tbl := NewStaticTable()
	addr := [16]byte{0xfc, 0x00, 0x03}
	tbl.Add(addr, End)
	tbl.Delete(addr)
	tbl.Delete(addr) // must not panic or error
	if _, ok := tbl.Lookup(addr); ok {
		t.Error("SID should be gone after delete")
	}
}

func TestStaticTablePreservesInsertionOrder(t *testing.T) {
	tbl := NewStaticTable()
	addrs := [][16]byte{
		{0xfc, 0x00, 0x03},
		{0xfc, 0x00, 0x01},
		{0xfc, 0x00, 0x02},
	}
	for _, a := range addrs {
		tbl.Add(a, End)
	}
	all := tbl.All()
	for i, s := range all {
		if s.Address != addrs[i] {
			t.Errorf("All()[%d] = %x, want %x (insertion order)", i, s.Address, addrs[i])
		}
	}
}

type staticObserverFunc struct {
	changed func(s *StaticSID)
	deleted func(s *StaticSID)
}

func (f staticObserverFunc) OnStaticSIDChanged(s *StaticSID) {
	if f.changed != nil {
		f.changed(s)
	}
}
func (f staticObserverFunc) OnStaticSIDDeleted(s *StaticSID) {
	if f.deleted != nil {
		f.deleted(s)
	}
}
