// Package types defines the world-state and chain-history value shapes of
// spec §3. Transaction, Receipt, Block, Header and Log are not redefined:
// they already have the exact shape this system needs in
// go-ethereum/core/types, with a canonical RLP encoding and a
// battle-tested Keccak(RLP(tx)) stability property (spec §8), so this
// package re-exports them instead of reinventing a codec this system
// explicitly treats as an external dependency (spec §6).
package types

import (
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/holiman/uint256"
)

type (
	// Account is the trie value keyed by Address: {nonce, balance,
	// storage_root, code_hash}.
	Account = ethtypes.StateAccount

	Transaction = ethtypes.Transaction
	Receipt     = ethtypes.Receipt
	Receipts    = ethtypes.Receipts
	Block       = ethtypes.Block
	Header      = ethtypes.Header
	Body        = ethtypes.Body
	Log         = ethtypes.Log
	Bloom       = ethtypes.Bloom
	AccessList  = ethtypes.AccessList
)

var (
	NewBlock           = ethtypes.NewBlock
	NewBlockWithHeader = ethtypes.NewBlockWithHeader
	NewReceipt         = ethtypes.NewReceipt
	CreateBloom        = ethtypes.CreateBloom
	BloomLookup        = ethtypes.BloomLookup
	NewTx              = ethtypes.NewTx
	NewTransaction     = ethtypes.NewTransaction
)

// MergeBloom ORs the blooms of a set of receipts into one, the definition
// spec §4.D step 4 requires for a block's logs_bloom. Each receipt's own
// bloom was already built with types.Bloom.Add's canonical three-position
// 11-bit-index scheme, so a plain byte-wise OR here reproduces
// logs_bloom(block) = OR over i of logs_bloom(receipts[i]).
func MergeBloom(receipts []*Receipt) Bloom {
	var out Bloom
	for _, r := range receipts {
		for i := range out {
			out[i] |= r.Bloom[i]
		}
	}
	return out
}

// NewEmptyAccount returns the Account value for a nonexistent address that
// has just received its first balance: nonce and balance zero, empty
// storage root, empty code hash.
func NewEmptyAccount() *Account {
	return &Account{
		Nonce:    0,
		Balance:  new(uint256.Int),
		Root:     ethtypes.EmptyRootHash,
		CodeHash: ethtypes.EmptyCodeHash.Bytes(),
	}
}
