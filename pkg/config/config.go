// Package config decodes the TOML configuration surface of staticd and
// isisd (spec.md §6 "Configuration surface"). It mirrors bamgate's own
// config package: a plain struct decoded with
// github.com/BurntSushi/toml, a missing file (fs.ErrNotExist) reported
// apart from other decode errors.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/netip"

	"github.com/BurntSushi/toml"

	"github.com/kernelcarrier/srv6d/pkg/srv6"
)

// LocatorConfig is one `[[locators]]` table entry (spec.md §6
// "locator_define").
type LocatorConfig struct {
	Name        string `toml:"name"`
	Prefix      string `toml:"prefix"`
	BlockLen    int    `toml:"block_len"`
	NodeLen     int    `toml:"node_len"`
	FunctionLen int    `toml:"function_len"`
	ArgumentLen int    `toml:"argument_len,omitempty"`
	USID        bool   `toml:"usid,omitempty"`
}

// StaticSIDConfig is one `[[static_sids]]` table entry (spec.md §6
// "sid_declare" + "sid_set_attribute"). At most one of VRF, IfName,
// AdjV6 is expected to be set, matching the one-of Attribute the core
// accepts.
type StaticSIDConfig struct {
	Address  string `toml:"address"`
	Behavior string `toml:"behavior"`
	VRF      string `toml:"vrf,omitempty"`
	IfName   string `toml:"ifname,omitempty"`
	AdjV6    string `toml:"adj_v6,omitempty"`
}

// File is the top-level decoded shape of a daemon's TOML config file
// (spec.md §6.1).
type File struct {
	Locators   []LocatorConfig   `toml:"locators"`
	StaticSIDs []StaticSIDConfig `toml:"static_sids"`
}

// Load reads and decodes path. A missing file and a malformed file both
// surface as a *srv6.ConfigError (§7): a missing file as "file not
// found" with its path, any other failure with the decode error's text
// in the message. The returned error does not wrap the decode error.
func Load(path string) (*File, error) {
	var f File
	if _, err := toml.DecodeFile(path, &f); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, srv6.NewConfigError("config", "file not found: %s", path)
		}
		return nil, srv6.NewConfigError("config", "decoding %s: %v", path, err)
	}
	return &f, nil
}

// Apply decodes every `[[locators]]` entry into registry and every
// `[[static_sids]]` entry into table, in file order (spec.md §5 "within
// a burst of configuration, SID additions are processed in the order
// declared"). The first constraint violation aborts with no partial
// locator left dangling past what CreateLocator/Add already committed —
// each operation is independently idempotent, matching §6's "each
// operation is idempotent on the resulting state".
func Apply(f *File, registry *srv6.Registry, table *srv6.StaticTable) error {
	for _, lc := range f.Locators {
		if err := applyLocator(lc, registry); err != nil {
			return err
		}
	}
	for _, sc := range f.StaticSIDs {
		if err := applyStaticSID(sc, table); err != nil {
			return err
		}
	}
	return nil
}

func applyLocator(lc LocatorConfig, registry *srv6.Registry) error {
	prefix, err := netip.ParsePrefix(lc.Prefix)
	if err != nil {
		return srv6.NewConfigError("locator_define", "locator %q: bad prefix %q: %v", lc.Name, lc.Prefix, err)
	}
	structure := srv6.Structure{
		BlockLen:    lc.BlockLen,
		NodeLen:     lc.NodeLen,
		FunctionLen: lc.FunctionLen,
		ArgumentLen: lc.ArgumentLen,
	}
	_, err = registry.CreateLocator(lc.Name, prefix, structure, lc.USID)
	return err
}

func applyStaticSID(sc StaticSIDConfig, table *srv6.StaticTable) error {
	addr, err := netip.ParseAddr(sc.Address)
	if err != nil {
		return srv6.NewConfigError("sid_declare", "bad address %q: %v", sc.Address, err)
	}
	behavior, ok := srv6.BehaviorFromCLIString(sc.Behavior)
	if !ok {
		return srv6.NewConfigError("sid_declare", "unknown behavior %q", sc.Behavior)
	}
	sid := table.Add(addr.As16(), behavior)

	switch {
	case sc.VRF != "":
		return table.SetAttribute(sid.Address, srv6.Attribute{Kind: srv6.AttrVRF, VRFName: sc.VRF})
	case sc.IfName != "":
		return table.SetAttribute(sid.Address, srv6.Attribute{Kind: srv6.AttrInterface, IfName: sc.IfName})
	case sc.AdjV6 != "":
		adjAddr, err := netip.ParseAddr(sc.AdjV6)
		if err != nil {
			return srv6.NewConfigError("sid_set_attribute", "bad adj_v6 %q: %v", sc.AdjV6, err)
		}
		return table.SetAttribute(sid.Address, srv6.Attribute{Kind: srv6.AttrAdjacencyV6, AdjV6: adjAddr})
	}
	return nil
}

// String renders f for the `show` subcommands' one-line table printer
// (spec.md §6.2); the pretty-printer itself stays a one-line fmt.Fprintf
// loop at the call site, not a method on File.
func (f *File) String() string {
	return fmt.Sprintf("%d locator(s), %d static SID(s)", len(f.Locators), len(f.StaticSIDs))
}
