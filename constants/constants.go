// Package constants holds the dev-node's fixed defaults: the CLI flag
// defaults of spec.md §6 and the fixed points of the domain (the
// reorg-lookback window the EVM's BLOCKHASH opcode can see).
package constants

import (
	"math/big"

	"github.com/evmdev/node/common"
)

const (
	// DefaultListenAddr is --listen's default.
	DefaultListenAddr = "127.0.0.1:8545"

	// DefaultAccountCount is --accounts' default: how many additional
	// random funded accounts are created alongside the --private-key one.
	DefaultAccountCount = 9

	// DefaultCallGas fills eth_call/eth_estimateGas requests that omit gas
	// (spec.md §4.E group 3).
	DefaultCallGas = 90000

	// MaxLastHashes bounds how many ancestor hashes BLOCKHASH can reach.
	MaxLastHashes = 256

	// MiningTickSeconds is the fallback mining-round interval when no wake
	// arrives in the meantime (spec.md §4.D).
	MiningTickSeconds = 10
)

// DefaultBalance is --balance's default: 0x10000000000000000000000000000.
func DefaultBalance() *big.Int {
	n := new(big.Int)
	n.SetString("10000000000000000000000000000", 16)
	return n
}

// BlackholeAddr is the well-known address used to model "burned" value:
// never a genesis account, never assigned a private key.
var BlackholeAddr = common.Address{1, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0}
