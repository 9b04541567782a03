// Package common re-exports the address/hash/bloom primitives this system
// shares with the rest of the Ethereum ecosystem, so that every hash we
// compute is bit-identical to a real client's.
package common

import (
	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

type (
	// Address is a 160-bit account identifier.
	Address = ethcommon.Address
	// Hash is a 256-bit Keccak output.
	Hash = ethcommon.Hash
)

// U256 is a 256-bit unsigned integer, used for balances, gas prices and
// storage slot values. Arithmetic on it must never wrap silently; callers
// that can underflow (see core/state.Stateful.transit) are expected to
// check before subtracting.
type U256 = uint256.Int

// BytesToAddress, HexToAddress, BytesToHash and HexToHash are re-exported
// for convenience at call sites that already import this package instead
// of go-ethereum/common.
var (
	BytesToAddress = ethcommon.BytesToAddress
	HexToAddress   = ethcommon.HexToAddress
	BytesToHash    = ethcommon.BytesToHash
	HexToHash      = ethcommon.HexToHash
)

// EmptyCodeHash is the Keccak-256 hash of the empty byte string, the
// canonical code_hash of an account with no code.
var EmptyCodeHash = ethcommon.HexToHash("0xc5d2460186f7233c927e7db2dcc703c0e500b653ca82273b7bfad8045d85a470")
