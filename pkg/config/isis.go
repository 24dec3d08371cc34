package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/netip"

	"github.com/BurntSushi/toml"

	"github.com/kernelcarrier/srv6d/pkg/srv6"
)

// AreaConfig is one `[[areas]]` table entry in isisd's configuration: a
// named IS-IS area, the protocol identifier it allocates locator chunks
// under, the End.X flavor it advertises, and the locators it draws SIDs
// from (spec.md §4.2, §4.4).
type AreaConfig struct {
	ID         string          `toml:"id"`
	OwnerProto int             `toml:"owner_proto"`
	Flavor     string          `toml:"flavor"` // "end-x" or "ua"
	Locators   []LocatorConfig `toml:"locators"`
}

// AdjacencyConfig is one `[[adjacencies]]` table entry: a link-state
// adjacency isisd tracks for End.X allocation. Real IS-IS neighbor
// discovery is out of scope (spec.md §1 Non-goals), so the adjacency's
// existence and its bound interface are declared here; isisd drives its
// up/down/ipv6-enabled events off that interface's liveness via
// pkg/netfam (DESIGN.md, "Open Question decisions").
type AdjacencyConfig struct {
	ID         string `toml:"id"`
	Area       string `toml:"area"`
	IfName     string `toml:"ifname"`
	NeighborV6 string `toml:"neighbor_v6"`
	Circuit    string `toml:"circuit"` // "point-to-point" or "broadcast"
}

// IsisFile is the top-level decoded shape of isisd's TOML config file.
type IsisFile struct {
	Areas       []AreaConfig      `toml:"areas"`
	Adjacencies []AdjacencyConfig `toml:"adjacencies"`
}

// LoadIsis reads and decodes path, wrapping decode failures the same way
// Load does for staticd's configuration.
func LoadIsis(path string) (*IsisFile, error) {
	var f IsisFile
	if _, err := toml.DecodeFile(path, &f); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, srv6.NewConfigError("config", "file not found: %s", path)
		}
		return nil, srv6.NewConfigError("config", "decoding %s: %v", path, err)
	}
	return &f, nil
}

// ApplyAreaLocators defines every locator an area config lists, in file
// order, against registry (spec.md §6 "locator_define").
func ApplyAreaLocators(ac AreaConfig, registry *srv6.Registry) error {
	for _, lc := range ac.Locators {
		if err := applyLocator(lc, registry); err != nil {
			return fmt.Errorf("area %q: %w", ac.ID, err)
		}
	}
	return nil
}

// ParseCircuit parses an AdjacencyConfig.Circuit token into a
// srv6.CircuitType.
func ParseCircuit(s string) (srv6.CircuitType, error) {
	switch s {
	case "", "point-to-point":
		return srv6.CircuitPointToPoint, nil
	case "broadcast":
		return srv6.CircuitBroadcast, nil
	default:
		return 0, srv6.NewConfigError("adjacency", "unknown circuit type %q", s)
	}
}

// ParseNeighborV6 parses an AdjacencyConfig.NeighborV6 token.
func ParseNeighborV6(s string) (netip.Addr, error) {
	addr, err := netip.ParseAddr(s)
	if err != nil {
		return netip.Addr{}, srv6.NewConfigError("adjacency", "bad neighbor_v6 %q: %v", s, err)
	}
	return addr, nil
}

// FlavorBehavior resolves an AreaConfig.Flavor token to the Behavior the
// area's Adjacency-SID Manager mints (End.X or its compressed UA form).
func FlavorBehavior(s string) (srv6.Behavior, error) {
	switch s {
	case "", "end-x":
		return srv6.EndX, nil
	case "ua":
		return srv6.UA, nil
	default:
		return 0, srv6.NewConfigError("area", "unknown flavor %q", s)
	}
}
