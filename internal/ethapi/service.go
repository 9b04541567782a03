// Package ethapi implements the JSON-RPC method groups of spec §4.E as a
// set of service structs registered by namespace with
// github.com/ethereum/go-ethereum/rpc.Server, the same registration
// pattern the teacher's own node uses for its eth/net/web3 namespaces.
package ethapi

import (
	"crypto/ecdsa"

	"github.com/ethereum/go-ethereum/rpc"

	"github.com/evmdev/node/common"
	"github.com/evmdev/node/core/chain"
	"github.com/evmdev/node/core/state"
	"github.com/evmdev/node/core/types"
	"github.com/evmdev/node/rpcerr"
)

// findKey returns the held secret key for addr, or nil if the node does
// not control that account. Caller must hold the chain lock.
func findKey(c *chain.Chain, addr common.Address) *ecdsa.PrivateKey {
	for _, key := range c.AccountsLocked() {
		if chain.AddressOf(key) == addr {
			return key
		}
	}
	return nil
}

// resolveBlock applies spec §4.E group 2's block-tag rules: "latest" /
// "pending" / absent -> current height, "earliest" -> 0, a decoded
// integer -> that number (error if beyond the current height). Callers
// must already hold c's lock.
func resolveBlock(c *chain.Chain, bn rpc.BlockNumber) (*types.Block, error) {
	switch bn {
	case rpc.LatestBlockNumber, rpc.PendingBlockNumber:
		b, ok := c.BlockByNumber(c.Height())
		if !ok {
			return nil, rpcerr.New(rpcerr.NotFound, "no blocks yet")
		}
		return b, nil
	case rpc.EarliestBlockNumber:
		b, ok := c.BlockByNumber(0)
		if !ok {
			return nil, rpcerr.New(rpcerr.NotFound, "no genesis block")
		}
		return b, nil
	default:
		n := uint64(bn)
		if bn < 0 || n > c.Height() {
			return nil, rpcerr.New(rpcerr.UnsupportedQuery, "block %d beyond current height %d", bn, c.Height())
		}
		b, ok := c.BlockByNumber(n)
		if !ok {
			return nil, rpcerr.New(rpcerr.NotFound, "block %d not found", n)
		}
		return b, nil
	}
}

// stateAt opens a read-only Stateful at the state root of the block
// resolved from bn.
func stateAt(c *chain.Chain, bn rpc.BlockNumber) (*state.Stateful, *types.Block, error) {
	b, err := resolveBlock(c, bn)
	if err != nil {
		return nil, nil, err
	}
	return state.NewAt(c.Store(), common.Hash(b.Root())), b, nil
}
