package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/Klingon-tech/truthstamp/pkg/types"
)

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "truthstamp.conf")
	content := `# comment
network = testnet
rpc.port = 9000
rpc.allowed = 127.0.0.1, 10.0.0.0/8
rpc.cors = "http://localhost:3000"
log.json = yes
unknown.key = ignored
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	values, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile() error: %v", err)
	}
	cfg := DefaultMainnet()
	if err := ApplyFileConfig(cfg, values); err != nil {
		t.Fatalf("ApplyFileConfig() error: %v", err)
	}

	if cfg.Network != Testnet {
		t.Errorf("Network = %s, want testnet", cfg.Network)
	}
	if cfg.RPC.Port != 9000 {
		t.Errorf("RPC.Port = %d, want 9000", cfg.RPC.Port)
	}
	if len(cfg.RPC.AllowedIPs) != 2 || cfg.RPC.AllowedIPs[1] != "10.0.0.0/8" {
		t.Errorf("RPC.AllowedIPs = %v", cfg.RPC.AllowedIPs)
	}
	if len(cfg.RPC.CORSOrigins) != 1 || cfg.RPC.CORSOrigins[0] != "http://localhost:3000" {
		t.Errorf("RPC.CORSOrigins = %v", cfg.RPC.CORSOrigins)
	}
	if !cfg.Log.JSON {
		t.Error("Log.JSON should be true")
	}
}

func TestLoadFile_Missing(t *testing.T) {
	values, err := LoadFile(filepath.Join(t.TempDir(), "nope.conf"))
	if err != nil {
		t.Fatalf("missing file should not error: %v", err)
	}
	if len(values) != 0 {
		t.Errorf("values = %v, want empty", values)
	}
}

func TestLoadFile_BadLine(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.conf")
	os.WriteFile(path, []byte("network testnet\n"), 0644)
	if _, err := LoadFile(path); err == nil {
		t.Error("line without '=' should fail")
	}
}

func TestParseFlagsAndLoad(t *testing.T) {
	dir := t.TempDir()
	f, err := ParseFlags([]string{"--testnet", "--datadir", dir, "--rpc-port", "9100", "--rpc=false", "--log-level", "debug"})
	if err != nil {
		t.Fatalf("ParseFlags() error: %v", err)
	}
	cfg, err := Load(f)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if cfg.Network != Testnet {
		t.Errorf("Network = %s, want testnet", cfg.Network)
	}
	if cfg.RPC.Port != 9100 || cfg.RPC.Enabled {
		t.Errorf("RPC = %+v, want port 9100 disabled", cfg.RPC)
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("Log.Level = %s", cfg.Log.Level)
	}
	if _, err := os.Stat(cfg.ConfigFile()); err != nil {
		t.Errorf("default config file not written: %v", err)
	}
	if _, err := os.Stat(cfg.DBDir()); err != nil {
		t.Errorf("db dir not created: %v", err)
	}
}

func TestParseFlags_StrayFlag(t *testing.T) {
	if _, err := ParseFlags([]string{"--rpc", "oops", "--log-json"}); err == nil {
		t.Error("flag after positional argument should be rejected")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		ok     bool
	}{
		{"defaults", func(*Config) {}, true},
		{"bad network", func(c *Config) { c.Network = "devnet" }, false},
		{"bad port", func(c *Config) { c.RPC.Port = 70000 }, false},
		{"cidr allowed", func(c *Config) { c.RPC.AllowedIPs = []string{"192.168.0.0/16"} }, true},
		{"garbage allowed", func(c *Config) { c.RPC.AllowedIPs = []string{"localhost"} }, false},
		{"rate without burst", func(c *Config) { c.RPC.RateBurst = 0 }, false},
		{"bad log level", func(c *Config) { c.Log.Level = "loud" }, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultMainnet()
			tt.mutate(cfg)
			if err := Validate(cfg); (err == nil) != tt.ok {
				t.Errorf("Validate() error = %v, want ok=%v", err, tt.ok)
			}
		})
	}
}

func TestRules_Defaults(t *testing.T) {
	r := DefaultRules()
	if err := r.Validate(); err != nil {
		t.Fatalf("DefaultRules().Validate() error: %v", err)
	}
	if r.Tier(types.TierProfessional).WeightTenths != 20 {
		t.Error("professional multiplier should be 2.0")
	}
	if r.Tier(types.TierSpecialized).RewardSharePct != 80 {
		t.Error("specialized reward share should be 80%")
	}
	if r.Tier("unknown").MinStake != 0 {
		t.Error("unknown tier should have a zero rule")
	}
	if r.AppealWindow != 30*24*time.Hour || r.ArbitrationWindow != 7*24*time.Hour {
		t.Error("unexpected appeal windows")
	}
}

func TestRules_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Rules)
	}{
		{"zero quorum", func(r *Rules) { r.Quorum = 0 }},
		{"slash over 100", func(r *Rules) { r.SlashPct = 101 }},
		{"zero multiplier", func(r *Rules) { r.General.WeightTenths = 0 }},
		{"zero min stake", func(r *Rules) { r.Professional.MinStake = 0 }},
		{"share over 100", func(r *Rules) { r.Specialized.RewardSharePct = 120 }},
		{"zero window", func(r *Rules) { r.AppealWindow = 0 }},
		{"zero bond", func(r *Rules) { r.MinAppealBond = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := DefaultRules()
			tt.mutate(&r)
			if err := r.Validate(); err == nil {
				t.Error("Validate() should fail")
			}
		})
	}
}

func TestLoadGenesis(t *testing.T) {
	addr := types.Address{0x11, 19: 0x22}
	path := filepath.Join(t.TempDir(), "genesis.yaml")
	content := `network: testnet
insurance: 5000
alloc:
  ` + addr.String() + `: 100000
rules:
  quorum: 5
  appeal_window: 240h
  professional:
    min_stake: 2000
    weight_tenths: 25
    reward_share_pct: 95
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	g, err := LoadGenesis(path, Mainnet)
	if err != nil {
		t.Fatalf("LoadGenesis() error: %v", err)
	}
	if g.Network != Testnet || g.Insurance != 5000 {
		t.Errorf("genesis header = %+v", g)
	}
	if g.Rules.Quorum != 5 || g.Rules.AppealWindow != 240*time.Hour {
		t.Errorf("overrides not applied: quorum=%d window=%s", g.Rules.Quorum, g.Rules.AppealWindow)
	}
	if g.Rules.ClaimFee != DefaultRules().ClaimFee {
		t.Error("omitted fields should keep defaults")
	}
	if g.Rules.Professional.WeightTenths != 25 {
		t.Errorf("professional override = %+v", g.Rules.Professional)
	}

	allocs, err := g.Allocations()
	if err != nil || len(allocs) != 1 || allocs[0].Address != addr || allocs[0].Amount != 100000 {
		t.Errorf("Allocations() = %v, %v", allocs, err)
	}
}

func TestGenesis_HashAndRoundtrip(t *testing.T) {
	g := DefaultGenesis(Testnet)
	g.Alloc[types.Address{0x01}.String()] = 10
	h1, err := g.Hash()
	if err != nil {
		t.Fatalf("Hash() error: %v", err)
	}

	path := filepath.Join(t.TempDir(), "g.yaml")
	if err := WriteGenesis(path, g); err != nil {
		t.Fatalf("WriteGenesis() error: %v", err)
	}
	back, err := LoadGenesis(path, Mainnet)
	if err != nil {
		t.Fatalf("LoadGenesis() error: %v", err)
	}
	h2, _ := back.Hash()
	if h1 != h2 {
		t.Error("hash changed across write/load")
	}

	back.Rules.Quorum++
	h3, _ := back.Hash()
	if h3 == h1 {
		t.Error("hash ignores rule changes")
	}
}

func TestGenesis_BadAlloc(t *testing.T) {
	g := DefaultGenesis(Mainnet)
	g.Alloc["not-an-address"] = 1
	if err := g.Validate(); err == nil || !strings.Contains(err.Error(), "not-an-address") {
		t.Errorf("Validate() error = %v", err)
	}
}
