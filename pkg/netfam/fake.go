package netfam

// Fake is a deterministic in-memory stand-in for Resolver, for tests
// that need to drive VRF_UP/INTERFACE_UP style transitions without a
// kernel. It has Resolver's liveness and ifindex queries (and therefore
// satisfies srv6.ResourceResolver) but no Watch method.
type Fake struct {
	vrfs       map[string]int
	interfaces map[string]bool
	indexes    map[string]int
	firstNonLo string
	haveFirst  bool
}

// NewFake builds an empty Fake with nothing live.
func NewFake() *Fake {
	return &Fake{vrfs: map[string]int{}, interfaces: map[string]bool{}, indexes: map[string]int{}}
}

func (f *Fake) SetVRFUp(name string, tableID int) { f.vrfs[name] = tableID }
func (f *Fake) SetVRFDown(name string)            { delete(f.vrfs, name) }
func (f *Fake) SetInterfaceUp(name string)        { f.interfaces[name] = true }
func (f *Fake) SetInterfaceDown(name string)      { delete(f.interfaces, name) }

// SetInterfaceIndex records the ifindex InterfaceIndex returns for name.
func (f *Fake) SetInterfaceIndex(name string, index int) { f.indexes[name] = index }

func (f *Fake) InterfaceIndex(name string) (int, bool) {
	idx, ok := f.indexes[name]
	return idx, ok
}
func (f *Fake) SetFirstNonLoopback(name string) {
	f.firstNonLo, f.haveFirst = name, true
}
func (f *Fake) ClearFirstNonLoopback() {
	f.firstNonLo, f.haveFirst = "", false
}

func (f *Fake) VRFLive(name string) (int, bool) {
	id, ok := f.vrfs[name]
	return id, ok
}

func (f *Fake) InterfaceLive(name string) bool { return f.interfaces[name] }

func (f *Fake) FirstNonLoopbackInterface() (string, bool) {
	return f.firstNonLo, f.haveFirst
}
