package config

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"

	"github.com/Klingon-tech/truthstamp/pkg/crypto"
	"github.com/Klingon-tech/truthstamp/pkg/types"
	"gopkg.in/yaml.v3"
)

// Genesis holds the protocol rules and the initial balances of a network.
// It is applied once, when a data directory is first initialized.
type Genesis struct {
	Network NetworkType `yaml:"network" json:"network"`

	// Alloc funds participant wallets (address -> base units).
	Alloc map[string]uint64 `yaml:"alloc" json:"alloc"`

	// Insurance seeds the insurance pool.
	Insurance uint64 `yaml:"insurance" json:"insurance"`

	Rules Rules `yaml:"rules" json:"rules"`
}

// DefaultGenesis returns the built-in genesis for network: default rules
// and no allocations.
func DefaultGenesis(network NetworkType) *Genesis {
	return &Genesis{
		Network: network,
		Alloc:   map[string]uint64{},
		Rules:   DefaultRules(),
	}
}

// LoadGenesis reads a YAML genesis file. Fields the file omits keep their
// defaults.
func LoadGenesis(path string, network NetworkType) (*Genesis, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read genesis: %w", err)
	}
	g := DefaultGenesis(network)
	if err := yaml.Unmarshal(data, g); err != nil {
		return nil, fmt.Errorf("parse genesis %s: %w", path, err)
	}
	if err := g.Validate(); err != nil {
		return nil, err
	}
	return g, nil
}

// Validate checks the rules and the allocation addresses.
func (g *Genesis) Validate() error {
	if g.Network != Mainnet && g.Network != Testnet {
		return fmt.Errorf("genesis: network must be %q or %q", Mainnet, Testnet)
	}
	if err := g.Rules.Validate(); err != nil {
		return fmt.Errorf("genesis: %w", err)
	}
	_, err := g.Allocations()
	return err
}

// Allocation is one parsed genesis balance.
type Allocation struct {
	Address types.Address
	Amount  uint64
}

// Allocations returns the parsed allocations sorted by address.
func (g *Genesis) Allocations() ([]Allocation, error) {
	out := make([]Allocation, 0, len(g.Alloc))
	for s, amount := range g.Alloc {
		addr, err := types.ParseAddress(s)
		if err != nil {
			return nil, fmt.Errorf("genesis: alloc %q: %w", s, err)
		}
		out = append(out, Allocation{Address: addr, Amount: amount})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Address.Compare(out[j].Address) < 0 })
	return out, nil
}

// Hash fingerprints the genesis so a data directory can refuse to start
// under different rules than it was created with.
func (g *Genesis) Hash() (types.Hash, error) {
	allocs, err := g.Allocations()
	if err != nil {
		return types.Hash{}, err
	}
	hexAlloc := make([][2]any, len(allocs))
	for i, a := range allocs {
		hexAlloc[i] = [2]any{a.Address.Hex(), a.Amount}
	}
	canonical := struct {
		Network   NetworkType `json:"network"`
		Alloc     [][2]any    `json:"alloc"`
		Insurance uint64      `json:"insurance"`
		Rules     Rules       `json:"rules"`
	}{g.Network, hexAlloc, g.Insurance, g.Rules}
	data, err := json.Marshal(canonical)
	if err != nil {
		return types.Hash{}, fmt.Errorf("genesis hash: %w", err)
	}
	return crypto.Hash(data), nil
}

// WriteGenesis writes g as YAML.
func WriteGenesis(path string, g *Genesis) error {
	data, err := yaml.Marshal(g)
	if err != nil {
		return fmt.Errorf("encode genesis: %w", err)
	}
	return os.WriteFile(path, data, 0644)
}
