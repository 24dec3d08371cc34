package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/kernelcarrier/srv6d/pkg/srv6"
)

func writeTempConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	return path
}

func TestLoadMissingFileReturnsConfigError(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.toml"))
	if err == nil {
		t.Fatal("expected error for missing config file")
	}
	var cfgErr *srv6.ConfigError
	if !errorsAs(err, &cfgErr) {
		t.Errorf("error = %v (%T), want *srv6.ConfigError", err, err)
	}
}

func TestLoadAndApply(t *testing.T) {
	path := writeTempConfig(t, `
[[locators]]
name = "L1"
prefix = "2001:db8::/48"
block_len = 32
node_len = 16
function_len = 16

[[static_sids]]
address = "fc00::1"
behavior = "end"

[[static_sids]]
address = "fc00::2"
behavior = "end-dt4"
vrf = "red"
`)
	f, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(f.Locators) != 1 || len(f.StaticSIDs) != 2 {
		t.Fatalf("decoded %+v", f)
	}

	registry := srv6.NewRegistry()
	table := srv6.NewStaticTable()
	if err := Apply(f, registry, table); err != nil {
		t.Fatalf("Apply: %v", err)
	}

	if _, ok := registry.Lookup("L1"); !ok {
		t.Error("locator L1 not created")
	}
	if table.Len() != 2 {
		t.Fatalf("table.Len() = %d, want 2", table.Len())
	}
	sid, ok := table.Lookup([16]byte{0xfc, 0x00, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 2})
	if !ok {
		t.Fatal("fc00::2 not declared")
	}
	if sid.VRFName != "red" {
		t.Errorf("VRFName = %q, want red", sid.VRFName)
	}
}

func TestApplyRejectsUnknownBehavior(t *testing.T) {
	path := writeTempConfig(t, `
[[static_sids]]
address = "fc00::1"
behavior = "not-a-real-behavior"
`)
	f, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if err := Apply(f, srv6.NewRegistry(), srv6.NewStaticTable()); err == nil {
		t.Error("expected ConfigError for unknown behavior")
	}
}

// errorsAs is a tiny local wrapper so this file doesn't need a second
// import alias for errors.As alongside config.go's own errors import.
func errorsAs(err error, target **srv6.ConfigError) bool {
	ce, ok := err.(*srv6.ConfigError)
	if !ok {
		return false
	}
	*target = ce
	return true
}
