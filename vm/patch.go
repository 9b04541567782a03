// Package vm realizes spec §6's VM contract: a pluggable EVM instance
// selected by a Patch (rule set). The interpreter itself — opcode
// dispatch, gas accounting, precompiles — is explicitly out of this
// system's core (spec §1) and is supplied by go-ethereum/core/vm; this
// package only adapts it to the require/commit protocol of spec §4.B.
package vm

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/params"
)

// Patch is spec §9's "polymorphism over rule sets": a runtime value
// threaded explicitly through mine_one, eth_call, eth_estimateGas and the
// trace endpoints, rather than baked into every type as a compile-time
// generic parameter.
type Patch struct {
	Name    string
	ChainID *big.Int
	Config  *params.ChainConfig
}

// allForksAtZero returns a ChainConfig with every fork already active at
// block/time zero: this node has no real historical chain to replay, so
// every configured rule set simply starts fully activated, the way a dev
// node's "latest" patch behaves in practice.
func allForksAtZero(chainID int64) *params.ChainConfig {
	zero := big.NewInt(0)
	cfg := *params.AllEthashProtocolChanges
	cfg.ChainID = big.NewInt(chainID)
	cfg.HomesteadBlock = zero
	cfg.EIP150Block = zero
	cfg.EIP155Block = zero
	cfg.EIP158Block = zero
	cfg.ByzantiumBlock = zero
	cfg.ConstantinopleBlock = zero
	cfg.PetersburgBlock = zero
	cfg.IstanbulBlock = zero
	cfg.MuirGlacierBlock = zero
	cfg.BerlinBlock = zero
	cfg.LondonBlock = zero
	return &cfg
}

// preByzantium returns a config that stops activating forks at EIP-160
// (the "classic-eip160" family): Homestead + EIP150 + EIP155/158 active,
// Byzantium and later never active.
func preByzantium(chainID int64) *params.ChainConfig {
	cfg := allForksAtZero(chainID)
	far := big.NewInt(1 << 62)
	cfg.ByzantiumBlock = far
	cfg.ConstantinopleBlock = far
	cfg.PetersburgBlock = far
	cfg.IstanbulBlock = far
	cfg.MuirGlacierBlock = far
	cfg.BerlinBlock = far
	cfg.LondonBlock = far
	return cfg
}

// homesteadOnly is the original Frontier/Homestead rule set ("classic"),
// predating EIP-150's gas repricing.
func homesteadOnly(chainID int64) *params.ChainConfig {
	cfg := preByzantium(chainID)
	far := big.NewInt(1 << 62)
	cfg.EIP150Block = far
	cfg.EIP155Block = far
	cfg.EIP158Block = far
	return cfg
}

// patchRegistry maps every spec §6 --chain name to a concrete rule set.
// Unknown names are a fatal CLI error, per spec §6.
var patchRegistry = map[string]func() *Patch{
	"classic": func() *Patch {
		return &Patch{Name: "classic", ChainID: big.NewInt(61), Config: homesteadOnly(61)}
	},
	"classic-eip160": func() *Patch {
		return &Patch{Name: "classic-eip160", ChainID: big.NewInt(61), Config: preByzantium(61)}
	},
	"foundation-byzantium": func() *Patch {
		return &Patch{Name: "foundation-byzantium", ChainID: big.NewInt(1), Config: allForksAtZero(1)}
	},
	"morden-homestead": func() *Patch {
		return &Patch{Name: "morden-homestead", ChainID: big.NewInt(62), Config: homesteadOnly(62)}
	},
	"morden-eip160": func() *Patch {
		return &Patch{Name: "morden-eip160", ChainID: big.NewInt(62), Config: preByzantium(62)}
	},
	"expanse-eip160": func() *Patch {
		return &Patch{Name: "expanse-eip160", ChainID: big.NewInt(2), Config: preByzantium(2)}
	},
	"musicoin-eip160": func() *Patch {
		return &Patch{Name: "musicoin-eip160", ChainID: big.NewInt(7762959), Config: preByzantium(7762959)}
	},
	"ubiq-eip160": func() *Patch {
		return &Patch{Name: "ubiq-eip160", ChainID: big.NewInt(8), Config: preByzantium(8)}
	},
	"ellaism-eip160": func() *Patch {
		return &Patch{Name: "ellaism-eip160", ChainID: big.NewInt(64), Config: preByzantium(64)}
	},
}

// PatchByName resolves a --chain flag value to a Patch. An unrecognized
// name is fatal, per spec §6.
func PatchByName(name string) (*Patch, error) {
	ctor, ok := patchRegistry[name]
	if !ok {
		return nil, fmt.Errorf("vm: unknown chain patch %q", name)
	}
	return ctor(), nil
}

// DefaultPatch is the rule set used when --chain is not given: the
// fully-activated Byzantium-and-later set most contract tooling expects
// from a development node.
func DefaultPatch() *Patch {
	p, _ := PatchByName("foundation-byzantium")
	return p
}
